// Package clock implements the master clock scheduler that coordinates the
// CPU, VDP, and PSG step functions by cycle count, so the single-threaded
// cooperative worker advances each device exactly as often as its own clock
// divider requires.
package clock

import (
	"fmt"
)

// MasterClock represents the master clock scheduler.
// It coordinates all subsystems (CPU, VDP, PSG) based on clock cycles.
type MasterClock struct {
	// Current master clock cycle (64-bit to avoid overflow)
	Cycle uint64

	// Clock speeds (cycles per second)
	CPUSpeed uint32 // TMS9900 instruction clock, e.g. 3,000,000 Hz
	VDPSpeed uint32 // same cycle grid as the CPU; the VDP keeps its own dot/frame timing internally
	PSGSpeed uint32 // host audio sample rate, e.g. 44,100 Hz

	// Component cycle counters (when each component should run next)
	CPUNextCycle uint64
	VDPNextCycle uint64
	PSGNextCycle uint64

	// Component step functions
	CPUStep func(cycles uint64) error
	VDPStep func(cycles uint64) error
	PSGStep func(cycles uint64) error
}

// NewMasterClock creates a new master clock scheduler.
func NewMasterClock(cpuSpeed, vdpSpeed, psgSpeed uint32) *MasterClock {
	return &MasterClock{
		CPUSpeed: cpuSpeed,
		VDPSpeed: vdpSpeed,
		PSGSpeed: psgSpeed,
	}
}

// Step advances the clock by one master cycle, running any component whose
// next-due cycle has arrived. Returns the number of cycles advanced.
func (c *MasterClock) Step() (uint64, error) {
	// Check CPU
	if c.CPUStep != nil && c.Cycle >= c.CPUNextCycle {
		cyclesToRun := c.Cycle - c.CPUNextCycle + 1
		if err := c.CPUStep(cyclesToRun); err != nil {
			return 0, fmt.Errorf("clock: CPU step error: %w", err)
		}
		// CPU runs every cycle
		c.CPUNextCycle = c.Cycle + 1
	}

	// Check VDP (same cycle grid as the CPU)
	if c.VDPStep != nil && c.Cycle >= c.VDPNextCycle {
		cyclesToRun := c.Cycle - c.VDPNextCycle + 1
		if err := c.VDPStep(cyclesToRun); err != nil {
			return 0, fmt.Errorf("clock: VDP step error: %w", err)
		}
		c.VDPNextCycle = c.Cycle + 1
	}

	// Check PSG (runs at the host sample rate)
	if c.PSGStep != nil && c.Cycle >= c.PSGNextCycle {
		cyclesToRun := c.Cycle - c.PSGNextCycle + 1
		if err := c.PSGStep(cyclesToRun); err != nil {
			return 0, fmt.Errorf("clock: PSG step error: %w", err)
		}
		psgCyclesPerSample := uint64(1)
		if c.PSGSpeed != 0 {
			if ratio := uint64(c.CPUSpeed / c.PSGSpeed); ratio > 0 {
				psgCyclesPerSample = ratio
			}
		}
		c.PSGNextCycle = c.Cycle + psgCyclesPerSample
	}

	// Advance master clock
	c.Cycle++
	return 1, nil
}

// StepCycles advances the clock by a specific number of cycles.
func (c *MasterClock) StepCycles(cycles uint64) error {
	for i := uint64(0); i < cycles; i++ {
		if _, err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}

// GetCycle returns the current master clock cycle.
func (c *MasterClock) GetCycle() uint64 {
	return c.Cycle
}

// Reset resets the clock scheduler.
func (c *MasterClock) Reset() {
	c.Cycle = 0
	c.CPUNextCycle = 0
	c.VDPNextCycle = 0
	c.PSGNextCycle = 0
}
