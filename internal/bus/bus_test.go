package bus

import "testing"

type stubPort struct {
	readValue uint8
	written   []uint8
}

func (s *stubPort) ReadPort() uint8 { return s.readValue }
func (s *stubPort) WritePort(value uint8) {
	s.written = append(s.written, value)
}

func TestScratchpadReadWrite(t *testing.T) {
	b := New()
	b.Write8(ScratchpadStart, 0x42)
	if got := b.Read8(ScratchpadStart); got != 0x42 {
		t.Fatalf("Read8(scratchpad) = %#x, want 0x42", got)
	}
}

func TestConsoleROMIsReadOnly(t *testing.T) {
	b := New()
	b.Write8(ConsoleROMStart, 0xFF)
	if got := b.Read8(ConsoleROMStart); got != 0 {
		t.Fatalf("Read8(console ROM) = %#x, want 0 (write should be dropped)", got)
	}
	if b.FlagsAt(ConsoleROMStart)&FlagROM == 0 {
		t.Fatalf("console ROM address missing FlagROM")
	}
}

func TestCartridgeWindows(t *testing.T) {
	b := New()
	low := make([]byte, 0x2000)
	low[0] = 0xAA
	high := make([]byte, 0x6000)
	high[5] = 0xBB
	b.LoadCartridge(low, high, nil)

	if got := b.Read8(CartLowStart); got != 0xAA {
		t.Fatalf("Read8(cart low) = %#x, want 0xAA", got)
	}
	if got := b.Read8(CartHighStart + 5); got != 0xBB {
		t.Fatalf("Read8(cart high+5) = %#x, want 0xBB", got)
	}

	b.Write8(CartLowStart, 0x99)
	if got := b.Read8(CartLowStart); got != 0xAA {
		t.Fatalf("cartridge window should be read-only, got %#x after write", got)
	}
}

func TestRead16Write16BigEndian(t *testing.T) {
	b := New()
	b.Write16(ScratchpadStart, 0x1234)
	if got := b.Read8(ScratchpadStart); got != 0x12 {
		t.Fatalf("high byte = %#x, want 0x12", got)
	}
	if got := b.Read8(ScratchpadStart + 1); got != 0x34 {
		t.Fatalf("low byte = %#x, want 0x34", got)
	}
	if got := b.Read16(ScratchpadStart); got != 0x1234 {
		t.Fatalf("Read16 = %#x, want 0x1234", got)
	}
}

func TestVDPPortRouting(t *testing.T) {
	b := New()
	read := &stubPort{readValue: 0x77}
	write := &stubPort{}
	b.SetVDPPorts(read, write)

	if got := b.Read8(VDPReadStart); got != 0x77 {
		t.Fatalf("Read8(VDP read port) = %#x, want 0x77", got)
	}
	b.Write8(VDPWriteStart, 0x55)
	if len(write.written) != 1 || write.written[0] != 0x55 {
		t.Fatalf("VDP write port did not receive 0x55: %v", write.written)
	}
}

func TestPSGAndGROMPortRouting(t *testing.T) {
	b := New()
	psg := &stubPort{}
	b.SetPSGPort(psg)
	b.Write8(SoundWrite, 0x9F)
	if len(psg.written) != 1 || psg.written[0] != 0x9F {
		t.Fatalf("PSG port did not receive 0x9F: %v", psg.written)
	}

	gromRead := &stubPort{readValue: 0x11}
	gromWrite := &stubPort{}
	b.SetGROMPorts(gromRead, gromWrite)
	if got := b.Read8(GROMReadStart); got != 0x11 {
		t.Fatalf("Read8(GROM read port) = %#x, want 0x11", got)
	}
	b.Write8(GROMWriteStart, 0x22)
	if len(gromWrite.written) != 1 || gromWrite.written[0] != 0x22 {
		t.Fatalf("GROM write port did not receive 0x22: %v", gromWrite.written)
	}
}

type trapStub struct {
	calls []uint16
}

func (tr *trapStub) OnAccess(address uint16, isWrite bool, value uint8) (uint8, bool) {
	tr.calls = append(tr.calls, address)
	return 0xEE, true
}

func TestTrapHandlerIntercepts(t *testing.T) {
	b := New()
	trap := &trapStub{}
	if err := b.RegisterTrapHandler(3, trap); err != nil {
		t.Fatalf("RegisterTrapHandler: %v", err)
	}
	b.SetTrap(0x1000, 0x1000, 3)

	if got := b.Read8(0x1000); got != 0xEE {
		t.Fatalf("Read8(trapped) = %#x, want 0xEE", got)
	}
	if len(trap.calls) != 1 || trap.calls[0] != 0x1000 {
		t.Fatalf("trap handler not invoked as expected: %v", trap.calls)
	}

	b.ClearTrap(0x1000, 0x1000)
	if b.FlagsAt(0x1000)&FlagTrapAccess != 0 {
		t.Fatalf("FlagTrapAccess should be cleared")
	}
}

func TestRegisterTrapHandlerRejectsOutOfRangeSlot(t *testing.T) {
	b := New()
	if err := b.RegisterTrapHandler(16, &trapStub{}); err == nil {
		t.Fatalf("expected error for out-of-range trap slot")
	}
}
