package emulator

import (
	"path/filepath"
	"testing"
)

func TestSaveLoadStateRoundTrip(t *testing.T) {
	emu := NewEmulator()

	emu.CPU.WP = 0x8300
	emu.CPU.PC = 0x6010
	emu.CPU.ST = 0x2000
	emu.CPU.SignalInterrupt(3)
	emu.CPU.InstructionCount = 12345
	emu.CPU.Cycles = 987654

	saved, err := emu.SaveState()
	if err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	if len(saved) == 0 {
		t.Fatal("SaveState returned empty data")
	}

	// Mutate everything to prove LoadState actually restores it.
	emu.CPU.WP, emu.CPU.PC, emu.CPU.ST = 0, 0, 0
	emu.CPU.InstructionCount = 0
	emu.CPU.Cycles = 0
	emu.CPU.ClearInterrupt(3)

	if err := emu.LoadState(saved); err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}

	snap := emu.CPU.SaveSnapshot()
	if snap.WP != 0x8300 || snap.PC != 0x6010 || snap.ST != 0x2000 {
		t.Fatalf("register file not restored: %+v", snap)
	}
	if snap.InstructionCount != 12345 {
		t.Errorf("InstructionCount = %d, want 12345", snap.InstructionCount)
	}
	if snap.Cycles != 987654 {
		t.Errorf("Cycles = %d, want 987654", snap.Cycles)
	}
	if snap.InterruptFlag&(1<<3) == 0 {
		t.Error("pending-interrupt bitmask not restored")
	}
}

func TestSaveLoadStateOpcodeHistogram(t *testing.T) {
	emu := NewEmulator()
	emu.Bus.LoadROM(0, []byte{0x04, 0x5B}) // B *R11 (a harmless single instruction)
	if err := emu.CPU.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	saved, err := emu.SaveState()
	if err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}

	before := emu.CPU.OpcodeHistogram()

	fresh := NewEmulator()
	if err := fresh.LoadState(saved); err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	after := fresh.CPU.OpcodeHistogram()
	if before != after {
		t.Fatalf("opcode histogram not restored exactly: before=%v after=%v", before, after)
	}
}

func TestLoadStateShortReadDoesNotMutate(t *testing.T) {
	emu := NewEmulator()
	emu.CPU.WP, emu.CPU.PC, emu.CPU.ST = 0x1111, 0x2222, 0x3333

	err := emu.LoadState([]byte{0x01, 0x02})
	if err == nil {
		t.Fatal("expected LoadState to fail on a short read")
	}
	if emu.CPU.WP != 0x1111 || emu.CPU.PC != 0x2222 || emu.CPU.ST != 0x3333 {
		t.Fatal("LoadState mutated CPU state despite a short read")
	}
}

func TestSaveLoadStateFile(t *testing.T) {
	emu := NewEmulator()
	emu.CPU.WP = 0xBEEF
	emu.CPU.PC = 0xCAFE

	savePath := filepath.Join(t.TempDir(), "test_state.sav")
	if err := emu.SaveStateToFile(savePath); err != nil {
		t.Fatalf("SaveStateToFile failed: %v", err)
	}

	emu.CPU.WP, emu.CPU.PC = 0, 0

	if err := emu.LoadStateFromFile(savePath); err != nil {
		t.Fatalf("LoadStateFromFile failed: %v", err)
	}
	if emu.CPU.WP != 0xBEEF || emu.CPU.PC != 0xCAFE {
		t.Fatalf("state not restored from file: WP=%#04x PC=%#04x", emu.CPU.WP, emu.CPU.PC)
	}
}
