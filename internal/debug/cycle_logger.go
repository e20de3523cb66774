package debug

import (
	"fmt"
	"os"
	"sync"
)

// BusReader reads a byte off the 64K memory bus (avoids an import cycle
// back to internal/bus).
type BusReader interface {
	Read8(address uint16) uint8
}

// VDPStateReader exposes just enough VDP state for the cycle log line.
type VDPStateReader interface {
	GetScanline() int
	GetVBlankFlag() bool
	GetFrameCounter() uint32
}

// PSGStateReader exposes just enough PSG state for the cycle log line.
type PSGStateReader interface {
	GetVoiceState(voice int) (attenuation uint8, frequency uint16)
}

// CPUStateSnapshot captures TMS9900 register file state for one logged step.
type CPUStateSnapshot struct {
	WP, PC, ST uint16
	R          [16]uint16
	Cycles     uint64
}

// CycleLogger writes one line per LogCycle call to a text file (the
// emulator calls it once per master clock cycle), for post-mortem diffing
// against a known-good trace.
type CycleLogger struct {
	file         *os.File
	maxCycles    uint64
	startCycle   uint64
	currentCycle uint64
	totalCycles  uint64
	enabled      bool
	mu           sync.Mutex

	bus BusReader
	vdp VDPStateReader
	psg PSGStateReader
}

// NewCycleLogger creates a cycle logger writing to filename.
// maxCycles of 0 means unlimited; startCycle delays logging by that many steps.
func NewCycleLogger(filename string, maxCycles uint64, startCycle uint64, bus BusReader, vdp VDPStateReader, psg PSGStateReader) (*CycleLogger, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create cycle log file: %w", err)
	}

	logger := &CycleLogger{
		file:       file,
		maxCycles:  maxCycles,
		startCycle: startCycle,
		enabled:    true,
		bus:        bus,
		vdp:        vdp,
		psg:        psg,
	}

	fmt.Fprintf(file, "Cycle-by-Cycle Debug Log\n")
	fmt.Fprintf(file, "========================\n\n")
	if startCycle > 0 {
		fmt.Fprintf(file, "Start cycle offset: %d\n", startCycle)
	}
	if maxCycles > 0 {
		fmt.Fprintf(file, "Max cycles to log: %d\n", maxCycles)
	}
	fmt.Fprintf(file, "\nFormat: Step | WP | PC | ST | R0-R15 | VDP State | PSG State\n")
	fmt.Fprintf(file, "VDP State: Scanline | VBlank | FrameCounter\n")
	fmt.Fprintf(file, "PSG State: voice0-3 (Attenuation/Frequency)\n\n")

	return logger, nil
}

// LogCycle logs CPU, VDP, and PSG state for one step.
func (c *CycleLogger) LogCycle(cpuState *CPUStateSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return
	}

	c.totalCycles++

	if c.totalCycles < c.startCycle {
		return
	}
	if c.maxCycles > 0 && c.currentCycle >= c.maxCycles {
		c.enabled = false
		return
	}
	c.currentCycle++

	vdpScanline := -1
	vdpVBlank := false
	vdpFrame := uint32(0)
	if c.vdp != nil {
		vdpScanline = c.vdp.GetScanline()
		vdpVBlank = c.vdp.GetVBlankFlag()
		vdpFrame = c.vdp.GetFrameCounter()
	}

	fmt.Fprintf(c.file, "Step %8d | WP:%04X PC:%04X ST:%04X | ", c.totalCycles, cpuState.WP, cpuState.PC, cpuState.ST)
	for i := 0; i < 16; i++ {
		fmt.Fprintf(c.file, "R%d:%04X ", i, cpuState.R[i])
	}
	fmt.Fprintf(c.file, "| VDP:SL:%03d VB:%v FC:%06d | ", vdpScanline, vdpVBlank, vdpFrame)

	if c.psg != nil {
		fmt.Fprintf(c.file, "PSG:")
		for v := 0; v < 4; v++ {
			atten, freq := c.psg.GetVoiceState(v)
			fmt.Fprintf(c.file, " V%d:%02X/%04X", v, atten, freq)
		}
	}
	fmt.Fprintf(c.file, "\n")
}

// SetEnabled enables or disables logging.
func (c *CycleLogger) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

// Toggle flips the enabled flag.
func (c *CycleLogger) Toggle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = !c.enabled
}

// Close finalizes and closes the log file.
func (c *CycleLogger) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enabled = false

	if c.file != nil {
		fmt.Fprintf(c.file, "\n\nLog complete. Total steps logged: %d\n", c.currentCycle)
		err := c.file.Close()
		c.file = nil
		return err
	}
	return nil
}

// IsEnabled reports whether logging is currently active.
func (c *CycleLogger) IsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled && (c.maxCycles == 0 || c.currentCycle < c.maxCycles)
}

// GetStatus returns the current logging counters.
func (c *CycleLogger) GetStatus() (enabled bool, currentCycle uint64, totalCycles uint64, maxCycles uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled, c.currentCycle, c.totalCycles, c.maxCycles
}
