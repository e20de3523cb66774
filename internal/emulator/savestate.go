package emulator

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/ti99sim/ti99sim-go/internal/cpu"
)

// snapshotOpcodeEntries sizes the fixed binary layout: WP, PC, ST,
// pending-interrupt bitmask, instruction count, clock count, then one
// counter per opcode-histogram bucket, all little-endian.
const snapshotOpcodeEntries = 256

// SaveState encodes the CPU snapshot as a little-endian host-order byte
// dump: WP, PC, ST, pending-interrupt bitmask, instruction count, clock
// count, then the per-opcode-entry histogram in canonical opcode order.
func (e *Emulator) SaveState() ([]byte, error) {
	snap := e.CPU.SaveSnapshot()
	histogram := e.CPU.OpcodeHistogram()

	var buf bytes.Buffer
	fields := []interface{}{
		snap.WP, snap.PC, snap.ST, snap.InterruptFlag,
		snap.InstructionCount, snap.Cycles,
	}
	for _, f := range fields {
		if err := binary.Write(&buf, binary.LittleEndian, f); err != nil {
			return nil, fmt.Errorf("emulator: encoding CPU snapshot: %w", err)
		}
	}
	if err := binary.Write(&buf, binary.LittleEndian, histogram); err != nil {
		return nil, fmt.Errorf("emulator: encoding opcode histogram: %w", err)
	}

	return buf.Bytes(), nil
}

// LoadState decodes a snapshot written by SaveState and restores the CPU's
// register file, interrupt state, and counters. A short read aborts
// without mutating CPU state.
func (e *Emulator) LoadState(data []byte) error {
	r := bytes.NewReader(data)

	var wp, pc, st, interruptFlag uint16
	var instructionCount, cycles uint64
	fields := []interface{}{&wp, &pc, &st, &interruptFlag, &instructionCount, &cycles}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return fmt.Errorf("emulator: decoding CPU snapshot: %w", err)
		}
	}

	var histogram [snapshotOpcodeEntries]uint64
	if err := binary.Read(r, binary.LittleEndian, &histogram); err != nil {
		return fmt.Errorf("emulator: decoding opcode histogram: %w", err)
	}

	e.CPU.LoadSnapshot(cpu.Snapshot{
		WP: wp, PC: pc, ST: st,
		InterruptFlag:    interruptFlag,
		InstructionCount: instructionCount,
		Cycles:           cycles,
	})
	e.CPU.LoadOpcodeHistogram(histogram)

	return nil
}

// SaveStateToFile writes the current CPU snapshot to filename.
func (e *Emulator) SaveStateToFile(filename string) error {
	data, err := e.SaveState()
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}

// LoadStateFromFile restores a CPU snapshot previously written by
// SaveStateToFile.
func (e *Emulator) LoadStateFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("emulator: reading snapshot file: %w", err)
	}
	return e.LoadState(data)
}
