// Package emulator wires the TMS9900 CPU, the 64K bus, the TMS9918A VDP,
// the TMS9919 PSG, and the TMS5220 speech chip together into a runnable
// TI-99/4A: it owns the master clock scheduler, the cartridge container,
// and the console ROM image, and exposes a frame-at-a-time API for a host
// front end to drive.
package emulator

import (
	"fmt"
	"time"

	"github.com/ti99sim/ti99sim-go/internal/bus"
	"github.com/ti99sim/ti99sim-go/internal/cartridge"
	"github.com/ti99sim/ti99sim-go/internal/clock"
	"github.com/ti99sim/ti99sim-go/internal/cpu"
	"github.com/ti99sim/ti99sim-go/internal/debug"
	"github.com/ti99sim/ti99sim-go/internal/psg"
	"github.com/ti99sim/ti99sim-go/internal/speech"
	"github.com/ti99sim/ti99sim-go/internal/vdp"
)

// Clock rates. The TMS9900 runs at 3MHz; the VDP is driven on the same
// cycle grid (it keeps its own scanline/frame counters internally) and
// the PSG is pulled at the host's audio sample rate.
const (
	cpuClockHz    = 3_000_000
	sampleRateHz  = 44_100
	psgBufferSize = 1024

	// NTSC: 262 scanlines/frame at 60Hz. PAL: 313 scanlines/frame at 50Hz.
	// Both approximate the CPU-cycle-per-scanline divider from the CPU
	// clock rather than reproducing the VDP's own independent dot clock.
	ntscScanlinesPerFrame = 262
	ntscCyclesPerScanline = cpuClockHz / (ntscScanlinesPerFrame * 60)
	palScanlinesPerFrame  = 313
	palCyclesPerScanline  = cpuClockHz / (palScanlinesPerFrame * 50)

	samplesPerFrame = sampleRateHz / 60

	vdpStatusTrapSlot  = 0
	bankSwitchTrapSlot = 1
)

// Emulator is a fully wired TI-99/4A: CPU, bus, VDP, PSG, speech chip, and
// the cartridge/GROM state they share, driven frame-by-frame by a master
// clock scheduler.
type Emulator struct {
	CPU    *cpu.CPU
	Bus    *bus.Bus
	VDP    *vdp.VDP
	PSG    *psg.PSG
	Speech *speech.Chip
	GROM   *cartridge.GROM

	Cartridge *cartridge.Container

	Clock  *clock.MasterClock
	Logger *debug.Logger

	CycleLogger *debug.CycleLogger

	// Debugger holds breakpoint/watch/call-stack state for a host's
	// interactive debug mode. It is always present (armed with nothing by
	// default) so the CPU can unconditionally consult it before each fetch.
	Debugger *debug.Debugger

	PAL bool // false = NTSC (60Hz/262 lines), true = PAL (50Hz/313 lines)

	Running bool
	Paused  bool

	FrameLimitEnabled bool
	TargetFPS         float64
	FrameTime         time.Duration
	LastFrameTime     time.Time

	FPS           float64
	FrameCount    uint64
	FPSUpdateTime time.Time

	AudioSampleBuffer []float32
	audioSampleIndex  int

	scanlineCycleCounter uint64
}

// NewEmulator creates an NTSC emulator with a fresh 10,000-entry logger.
func NewEmulator() *Emulator {
	return NewEmulatorWithLogger(debug.NewLogger(10000))
}

// NewEmulatorWithLogger creates an emulator that logs through logger (which
// may be nil to disable logging entirely).
func NewEmulatorWithLogger(logger *debug.Logger) *Emulator {
	b := bus.New()
	if logger != nil {
		b.SetLogger(logger)
	}

	v := vdp.New()
	p := psg.New(cpuClockHz, sampleRateHz, psgBufferSize)
	vsm := speech.NewVSM(nil)
	sp := speech.NewChip(vsm, logger)
	grom := cartridge.NewGROM(cartridge.New())

	b.SetVDPPorts(v.DataPort(), v.DataPort())
	b.SetPSGPort(p)
	b.SetSpeechPorts(sp, sp)
	b.SetGROMPorts(grom, grom)

	// The status/address-latch half of the VDP's read and write ports
	// lives one byte above the data half (0x8802, 0x8C02); the data port
	// registered above already answers the rest of each mirrored window.
	statusTrap := vdpStatusTrap{v}
	_ = b.RegisterTrapHandler(vdpStatusTrapSlot, statusTrap)
	b.SetTrap(bus.VDPReadStart+2, bus.VDPReadStart+2, vdpStatusTrapSlot)
	b.SetTrap(bus.VDPWriteStart+2, bus.VDPWriteStart+2, vdpStatusTrapSlot)

	var cpuLog cpu.Logger
	if logger != nil {
		cpuLog = cpuLogAdapter{logger}
	}
	c := cpu.New(b, nil, cpuLog)

	dbg := debug.NewDebugger()
	b.SetDebugHook(dbg)
	c.Debug = dbg

	mc := clock.NewMasterClock(cpuClockHz, cpuClockHz, sampleRateHz)

	e := &Emulator{
		CPU:               c,
		Bus:               b,
		VDP:               v,
		PSG:               p,
		Speech:            sp,
		GROM:              grom,
		Clock:             mc,
		Logger:            logger,
		Debugger:          dbg,
		FrameLimitEnabled: true,
		TargetFPS:         60.0,
		FrameTime:         time.Second / 60,
		LastFrameTime:     time.Now(),
		FPSUpdateTime:     time.Now(),
		AudioSampleBuffer: make([]float32, samplesPerFrame),
	}

	// The scheduler's cyclesToRun argument is a count of real master clock
	// cycles owed to the CPU, not instructions: each instruction burns a
	// variable number of cycles (its documented base cost plus any
	// addressing-mode surcharge, both tallied into c.Cycles as it executes),
	// so we run instructions until the owed cycles are used up rather than
	// running exactly `cycles` instructions. An instruction that overshoots
	// leaves a debt that later calls pay off before running another one.
	var owed int64
	mc.CPUStep = func(cycles uint64) error {
		owed += int64(cycles)
		for owed > 0 {
			before := c.Cycles
			if err := c.Step(); err != nil {
				return err
			}
			owed -= int64(c.Cycles - before)
			if c.Halted {
				// A breakpoint, fetch-break flag, or misaligned-PC fault
				// stopped the CPU; stop feeding it cycles until a host
				// explicitly clears Halted (Reset, or resuming past the
				// break) rather than spinning here forever.
				owed = 0
				return nil
			}
		}
		return nil
	}
	mc.VDPStep = func(cycles uint64) error {
		e.advanceVDP(cycles)
		return nil
	}
	mc.PSGStep = func(cycles uint64) error {
		p.Run(int(cycles))
		return nil
	}

	return e
}

// cpuLogAdapter adapts debug.Logger's structured (level, message, data) log
// call to the cpu package's instruction-trace Logger interface, so the CPU
// never needs to import internal/debug directly.
type cpuLogAdapter struct{ l *debug.Logger }

func (a cpuLogAdapter) LogCPU(instruction uint16, wp, pc, st uint16, cycles uint64) {
	a.l.LogCPU(debug.LogLevelTrace, fmt.Sprintf("op=%#04x WP=%#04x PC=%#04x ST=%#04x", instruction, wp, pc, st), map[string]interface{}{
		"cycles": cycles,
	})
}

func (a cpuLogAdapter) LogFault(reason string, address uint16) {
	a.l.LogCPU(debug.LogLevelWarning, fmt.Sprintf("fault: %s at PC=%#04x", reason, address), nil)
}

// vdpStatusTrap intercepts the single-byte status-read / address-write
// sub-address within the VDP's mirrored port window; the rest of the
// window is the VRAM data port registered directly with the bus.
type vdpStatusTrap struct{ v *vdp.VDP }

func (t vdpStatusTrap) OnAccess(address uint16, isWrite bool, value uint8) (uint8, bool) {
	if isWrite {
		t.v.WriteAddress(value)
		return 0, true
	}
	return t.v.ReadStatus(), true
}

func (e *Emulator) advanceVDP(cycles uint64) {
	cyclesPerScanline := uint64(ntscCyclesPerScanline)
	if e.PAL {
		cyclesPerScanline = uint64(palCyclesPerScanline)
	}
	if cyclesPerScanline == 0 {
		cyclesPerScanline = 1
	}
	e.scanlineCycleCounter += cycles
	for e.scanlineCycleCounter >= cyclesPerScanline {
		e.scanlineCycleCounter -= cyclesPerScanline
		wasBlank := e.VDP.GetVBlankFlag()
		e.VDP.AdvanceScanline()
		if e.VDP.GetVBlankFlag() && !wasBlank {
			// Real hardware composites its output once per frame, at the
			// start of vertical blank. The redraw is forced whenever
			// FrameCount is 0: on the first frame, and on the frame after
			// each once-a-second FPS update resets the count.
			e.VDP.Render(e.FrameCount == 0)
		}
		if e.VDP.GetVBlankFlag() && e.VDP.InterruptLine {
			e.CPU.SignalInterrupt(1)
			e.VDP.InterruptLine = false
		}
	}
}

// LoadSystemROM installs the console ROM image at 0x0000-0x1FFF. The CPU's
// reset vector (WP/PC at address 0/2) lives inside this image, so it must
// be loaded before Reset is meaningful.
func (e *Emulator) LoadSystemROM(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("emulator: empty system ROM image")
	}
	if len(data) > bus.ConsoleROMEnd-bus.ConsoleROMStart+1 {
		return fmt.Errorf("emulator: system ROM image too large (%d bytes)", len(data))
	}
	e.Bus.LoadROM(bus.ConsoleROMStart, data)
	return nil
}

// LoadCartridge wires c's currently-selected banks into the bus and arms a
// trap that re-maps them whenever the CPU writes to a bank-switched
// cartridge window.
func (e *Emulator) LoadCartridge(c *cartridge.Container) error {
	if c == nil {
		return fmt.Errorf("emulator: nil cartridge")
	}
	e.Cartridge = c
	e.refreshCartridgeBanks()

	trap := cartBankSwitchTrap{e}
	if err := e.Bus.RegisterTrapHandler(bankSwitchTrapSlot, trap); err != nil {
		return fmt.Errorf("emulator: registering bank-switch trap: %w", err)
	}
	e.Bus.SetTrap(bus.CartLowStart, bus.CartLowEnd, bankSwitchTrapSlot)
	e.Bus.SetTrap(bus.CartHighStart, bus.CartHighEnd, bankSwitchTrapSlot)
	e.Bus.SetTrap(bus.DSRStart, bus.DSREnd, bankSwitchTrapSlot)

	return nil
}

// refreshCartridgeBanks re-reads the container's current-bank pointers and
// re-maps the low/high/DSR windows on the bus; call after any bank switch.
func (e *Emulator) refreshCartridgeBanks() {
	if e.Cartridge == nil {
		e.Bus.LoadCartridge(nil, nil, nil)
		return
	}
	e.Bus.LoadCartridge(
		regionBankData(e.Cartridge, cartLowRegionIndex),
		regionBankData(e.Cartridge, cartHighRegionIndex),
		regionBankData(e.Cartridge, dsrRegionIndex),
	)
}

// The container addresses CPU memory in 16 4KiB slots covering the full
// 64K space: DSR (0x4000-0x5FFF) is slots 4-5, the cartridge low window
// (0x6000-0x7FFF) is slots 6-7, and the high window (0xA000-0xFFFF) is
// slots 10-15. Bus.LoadCartridge only maps one contiguous slice per
// window, so only each window's first slot is wired; multi-slot windows
// with independently-switched banks per slot are outside this emulator's
// scope (real carts overwhelmingly bank-switch the whole window at once).
const (
	dsrRegionIndex      = 4
	cartLowRegionIndex  = 6
	cartHighRegionIndex = 10
)

func regionBankData(c *cartridge.Container, regionIndex int) []byte {
	r := &c.CPU[regionIndex]
	if r.NumBanks == 0 {
		return nil
	}
	return r.Banks[r.CurBank].Data
}

// cartBankSwitchTrap intercepts writes into a bank-switched cartridge
// window and re-points the container's current-bank pointer. Reads fall
// through unhandled, so the normal ROM-window lookup in Bus.Read8 serves
// them. Real multi-bank TI cartridges vary in their exact select-line
// wiring; this emulator uses the common convention of selecting by the
// low bits of the accessed address rather than the byte written.
type cartBankSwitchTrap struct{ e *Emulator }

func (t cartBankSwitchTrap) OnAccess(address uint16, isWrite bool, value uint8) (uint8, bool) {
	if !isWrite {
		return 0, false
	}
	t.e.selectBank(address)
	return 0, true
}

func (e *Emulator) selectBank(address uint16) {
	if e.Cartridge == nil {
		return
	}
	regionIndex := cartLowRegionIndex
	switch {
	case address >= bus.CartHighStart:
		regionIndex = cartHighRegionIndex
	case address >= bus.DSRStart && address < bus.CartLowStart:
		regionIndex = dsrRegionIndex
	}
	r := &e.Cartridge.CPU[regionIndex]
	if r.NumBanks <= 1 {
		return
	}
	r.CurBank = int(address) % r.NumBanks
	e.refreshCartridgeBanks()
}

// Reset powers the CPU back up through the console ROM's reset vector and
// resets the clock scheduler; VDP, PSG, and speech state survive a reset,
// matching real hardware (only the CPU sees a RESET line).
func (e *Emulator) Reset() {
	e.CPU.Reset()
	e.Clock.Reset()
	e.scanlineCycleCounter = 0
}

// Start begins free-running execution.
func (e *Emulator) Start() {
	e.Running = true
	e.Paused = false
}

// Stop halts execution entirely.
func (e *Emulator) Stop() {
	e.Running = false
}

// Pause suspends execution without resetting any state.
func (e *Emulator) Pause() {
	e.Paused = true
}

// Resume continues execution after Pause.
func (e *Emulator) Resume() {
	e.Paused = false
}

// SetFrameLimit toggles host-side frame pacing (disable for headless runs).
func (e *Emulator) SetFrameLimit(enabled bool) {
	e.FrameLimitEnabled = enabled
}

// RunFrame advances the emulator by one video frame's worth of cycles,
// filling AudioSampleBuffer with this frame's PSG output.
func (e *Emulator) RunFrame() error {
	if !e.Running || e.Paused {
		return nil
	}

	scanlinesPerFrame := uint64(ntscScanlinesPerFrame)
	cyclesPerScanline := uint64(ntscCyclesPerScanline)
	if e.PAL {
		scanlinesPerFrame = palScanlinesPerFrame
		cyclesPerScanline = palCyclesPerScanline
	}
	cyclesPerFrame := scanlinesPerFrame * cyclesPerScanline

	for i := uint64(0); i < cyclesPerFrame; i++ {
		if _, err := e.Clock.Step(); err != nil {
			return fmt.Errorf("emulator: clock step error: %w", err)
		}
		if e.CycleLogger != nil && e.CycleLogger.IsEnabled() {
			snap := e.CPU.SaveSnapshot()
			e.CycleLogger.LogCycle(&debug.CPUStateSnapshot{
				WP: snap.WP, PC: snap.PC, ST: snap.ST, Cycles: snap.Cycles,
			})
		}
	}

	e.collectAudio()

	e.FrameCount++
	now := time.Now()
	if now.Sub(e.FPSUpdateTime) >= time.Second {
		e.FPS = float64(e.FrameCount) / now.Sub(e.FPSUpdateTime).Seconds()
		e.FrameCount = 0
		e.FPSUpdateTime = now
	}

	if e.FrameLimitEnabled {
		if elapsed := now.Sub(e.LastFrameTime); elapsed < e.FrameTime {
			time.Sleep(e.FrameTime - elapsed)
		}
	}
	e.LastFrameTime = time.Now()

	return nil
}

// collectAudio drains the PSG's mix buffer into AudioSampleBuffer.
func (e *Emulator) collectAudio() {
	buf, n := e.PSG.GetBuffer()
	copy(e.AudioSampleBuffer, buf[:n])
	e.audioSampleIndex = n
	e.PSG.ResetBuffer()
}

// AudioSamples returns the PCM samples generated by the most recent frame.
func (e *Emulator) AudioSamples() []float32 {
	return e.AudioSampleBuffer[:e.audioSampleIndex]
}

// FrameBuffer returns the VDP's most recently rendered 256x192 RGB888 frame.
func (e *Emulator) FrameBuffer() []uint32 {
	return e.VDP.FrameBuffer()
}

// GetFPS returns the most recently measured frames-per-second.
func (e *Emulator) GetFPS() float64 {
	return e.FPS
}
