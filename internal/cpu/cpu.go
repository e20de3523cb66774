// Package cpu implements the TMS9900, the TI-99/4A's 16-bit big-endian CPU:
// a workspace-pointer register file (16 words in memory, not on-chip), a
// status register with arithmetic and interrupt-mask bits, BLWP/RTWP context
// switching, vectored interrupts, and CRU (Communication Register Unit) bit
// I/O. Registers live in memory at WP..WP+30, so every "register read" is a
// bus access — this mirrors how the original emulator had no register file
// struct at all, just a workspace pointer into the same memory array.
package cpu

import "fmt"

// Status register bit positions (MSB-first, matching the TMS9900 data sheet
// and original_source/src/core/tms9900.cpp's ST_* constants).
const (
	StatusLGT    = 0x8000 // logical greater than
	StatusAGT    = 0x4000 // arithmetic greater than
	StatusEQ     = 0x2000 // equal
	StatusCarry  = 0x1000 // carry
	StatusOVER   = 0x0800 // overflow
	StatusParity = 0x0400 // odd parity (byte ops only)
	StatusXOP    = 0x0200 // XOP in progress
	statusIntMask = 0x000F // interrupt mask, bits 12-15
)

// Interrupt vector base: level N vectors through WP/PC pair at 4*N.
const interruptVectorScale = 4

// Bus is the memory interface the CPU executes against. Addresses are
// always byte addresses; word accesses must be 2-byte aligned.
type Bus interface {
	Read8(address uint16) uint8
	Write8(address uint16, value uint8)
	Read16(address uint16) uint16
	Write16(address uint16, value uint16)
	IsFetchBreak(address uint16) bool
}

// CRU is the Communication Register Unit bus: single-bit and multi-bit I/O
// addressed relative to R12, independent of the main memory map.
type CRU interface {
	ReadBit(bitAddress int) bool
	WriteBit(bitAddress int, value bool)
}

// Logger receives a trace callback after each instruction executes, mirroring
// the teacher's LoggerInterface shape generalized to the TMS9900 register file.
type Logger interface {
	LogCPU(instruction uint16, wp, pc, st uint16, cycles uint64)

	// LogFault reports a non-fatal execution fault (an unassigned opcode, a
	// misaligned PC) to the debug hook. Reporting it is not the same as
	// crashing: the CPU still either executes the undefined no-op or halts
	// cleanly, depending on the fault.
	LogFault(reason string, address uint16)
}

// Debugger lets the CPU consult breakpoint/single-step state before each
// instruction fetch. A nil Debug field disables this entirely.
type Debugger interface {
	ShouldBreak(address uint16) bool
}

// CPU is the emulated TMS9900.
type CPU struct {
	WP uint16 // workspace pointer
	PC uint16 // program counter
	ST uint16 // status register

	Bus   Bus
	CRU   CRU
	Log   Logger
	Debug Debugger

	Cycles           uint64
	InstructionCount uint64
	Halted           bool

	interruptFlag uint16 // pending interrupt levels, bit N = level N pending
	idle          bool

	traps     [16]TrapHandler
	trapOwner [16]bool

	opHistogram [256]uint64
}

// TrapHandler intercepts CPU-initiated accesses to a region of memory,
// mirroring the original's RegisterTrapHandler/CallTrapB/CallTrapW protocol.
type TrapHandler interface {
	ReadTrap(address uint16) uint8
	WriteTrap(address uint16, value uint8)
}

// New creates a CPU wired to bus and cru; log may be nil.
func New(bus Bus, cru CRU, log Logger) *CPU {
	c := &CPU{Bus: bus, CRU: cru, Log: log}
	c.Reset()
	return c
}

// Reset simulates a hardware powerup: WP=PC=ST=0, then a context switch
// through the level-0 (RESET) vector, matching cTMS9900::Reset.
func (c *CPU) Reset() {
	c.WP = 0
	c.PC = 0
	c.ST = 0
	c.interruptFlag = 0
	c.idle = false
	c.Halted = false
	c.ContextSwitch(0)
}

// ContextSwitch performs a BLWP-style switch through the vector at
// 4*level: new WP and PC are read from memory, the old WP/PC/ST are saved
// into the new workspace's R13/R14/R15.
func (c *CPU) ContextSwitch(level uint8) {
	vector := uint16(level) * interruptVectorScale
	newWP := c.Bus.Read16(vector)
	newPC := c.Bus.Read16(vector + 2)

	oldWP, oldPC, oldST := c.WP, c.PC, c.ST
	c.WP = newWP
	c.PC = newPC
	c.writeReg(13, oldWP)
	c.writeReg(14, oldPC)
	c.writeReg(15, oldST)
	_ = oldST
}

// SignalInterrupt marks an interrupt level as pending.
func (c *CPU) SignalInterrupt(level uint8) { c.interruptFlag |= 1 << level }

// ClearInterrupt clears a pending interrupt level.
func (c *CPU) ClearInterrupt(level uint8) { c.interruptFlag &^= 1 << level }

func (c *CPU) interruptMask() uint8 { return uint8(c.ST & statusIntMask) }

// regAddr returns the memory address of register r (0-15) in the current workspace.
func (c *CPU) regAddr(r uint8) uint16 { return c.WP + uint16(r)*2 }

func (c *CPU) readReg(r uint8) uint16  { return c.Bus.Read16(c.regAddr(r)) }
func (c *CPU) writeReg(r uint8, v uint16) { c.Bus.Write16(c.regAddr(r), v) }

// checkInterrupts services the highest-priority pending interrupt whose
// level is at or below the current interrupt mask, per the TMS9900's
// priority scheme (lower level number = higher priority, level 0 highest).
func (c *CPU) checkInterrupts() {
	if c.interruptFlag == 0 {
		return
	}
	mask := c.interruptMask()
	for level := uint8(0); level <= 15 && level <= mask; level++ {
		if c.interruptFlag&(1<<level) != 0 {
			c.idle = false
			c.ContextSwitch(level)
			c.Cycles += 22
			return
		}
	}
}

// Step fetches and executes a single instruction, then services any
// pending interrupt. Returns an error for a genuinely unrecoverable fault
// (no TMS9900 opcode is ever "invalid" at the hardware level — unassigned
// bit patterns execute as undefined no-ops — so this is reserved for bus
// or trap errors bubbling up).
func (c *CPU) Step() error {
	if c.Halted {
		return nil
	}

	if c.PC&1 != 0 {
		c.Halted = true
		if c.Log != nil {
			c.Log.LogFault("misaligned PC", c.PC)
		}
		return nil
	}

	if (c.Debug != nil && c.Debug.ShouldBreak(c.PC)) || c.Bus.IsFetchBreak(c.PC) {
		c.Halted = true
		return nil
	}

	if c.idle {
		c.checkInterrupts()
		if c.idle {
			c.Cycles++
			return nil
		}
	}

	startPC := c.PC
	word := c.fetch()
	c.InstructionCount++

	if c.Log != nil {
		defer func() {
			c.Log.LogCPU(word, c.WP, startPC, c.ST, c.Cycles)
		}()
	}

	if err := c.execute(word); err != nil {
		return fmt.Errorf("cpu: %w (opcode %#04x at PC=%#04x WP=%#04x)", err, word, startPC, c.WP)
	}

	c.checkInterrupts()
	return nil
}

// Run executes instructions until targetCycles have elapsed.
func (c *CPU) Run(targetCycles uint64) error {
	for c.Cycles < targetCycles {
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}

func (c *CPU) fetch() uint16 {
	word := c.Bus.Read16(c.PC)
	c.PC += 2
	return word
}

// RegisterTrapHandler installs handler at slot (1-15, slot 0 reserved,
// matching the original's trap-list convention where index 0 means "none").
func (c *CPU) RegisterTrapHandler(slot int, handler TrapHandler) error {
	if slot <= 0 || slot >= len(c.traps) {
		return fmt.Errorf("cpu: trap slot %d out of range", slot)
	}
	c.traps[slot] = handler
	c.trapOwner[slot] = true
	return nil
}

// DeregisterTrapHandler removes whatever handler occupies slot.
func (c *CPU) DeregisterTrapHandler(slot int) {
	if slot > 0 && slot < len(c.traps) {
		c.traps[slot] = nil
		c.trapOwner[slot] = false
	}
}

// CallTrapB dispatches a byte access through the handler in slot, matching
// the original's CallTrapB entry point used by memory-mapped device traps.
func (c *CPU) CallTrapB(slot int, address uint16, isWrite bool, value uint8) uint8 {
	if slot <= 0 || slot >= len(c.traps) || c.traps[slot] == nil {
		return 0
	}
	if isWrite {
		c.traps[slot].WriteTrap(address, value)
		return 0
	}
	return c.traps[slot].ReadTrap(address)
}

// OpcodeHistogram returns a snapshot of per-opcode-bucket execution counts,
// matching the original's OpCodes[i].count profiling field.
func (c *CPU) OpcodeHistogram() [256]uint64 { return c.opHistogram }

// LoadOpcodeHistogram restores a previously saved opcode histogram, for
// snapshot round-tripping.
func (c *CPU) LoadOpcodeHistogram(h [256]uint64) { c.opHistogram = h }

// Snapshot captures the minimal CPU state needed to resume execution later:
// WP, PC, ST, pending-interrupt bitmask, instruction count, and clock count.
type Snapshot struct {
	WP, PC, ST       uint16
	InterruptFlag    uint16
	InstructionCount uint64
	Cycles           uint64
}

// SaveSnapshot captures the current register file and cycle counters.
func (c *CPU) SaveSnapshot() Snapshot {
	return Snapshot{
		WP: c.WP, PC: c.PC, ST: c.ST,
		InterruptFlag:    c.interruptFlag,
		InstructionCount: c.InstructionCount,
		Cycles:           c.Cycles,
	}
}

// LoadSnapshot restores a previously captured state.
func (c *CPU) LoadSnapshot(s Snapshot) {
	c.WP, c.PC, c.ST = s.WP, s.PC, s.ST
	c.interruptFlag = s.InterruptFlag
	c.InstructionCount = s.InstructionCount
	c.Cycles = s.Cycles
	c.idle = false
	c.Halted = false
}
