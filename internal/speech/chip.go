package speech

import "github.com/ti99sim/ti99sim-go/internal/debug"

// Command bytes recognized on the speech write port, matching the real
// chip's byte-wise interface.
const (
	cmdLoadAddress = 0x40 // 0x4v, issued 5 times, low nibble first
	cmdReadBranch  = 0x10 // read-and-branch one byte from VSM
	cmdSpeak       = 0x50 // speak-external: begin playback from loaded address
	cmdReset       = 0x70 // reset
)

// statusBusy is the byte read back while a phrase is still playing.
const statusBusy = 0xE0

// Chip exposes the TMS5220's byte-wise command interface over a VSM image:
// load a 20-bit address with five 0x4v writes, then either 0x10 to
// read-and-branch a byte (used by the dictionary walk) or 0x50 to begin
// playback. Status reads return the busy flag until playback completes.
type Chip struct {
	vsm *VSM

	loadAddress uint32
	loadNibbles int
	lastByte    uint8

	decodedFrames []Frame
	playFrameIdx  int
	playing       bool

	log *debug.Logger
}

// NewChip wires a Chip to vsm, optionally logging command/status traffic.
func NewChip(vsm *VSM, log *debug.Logger) *Chip {
	return &Chip{vsm: vsm, log: log}
}

// SetLogger attaches or replaces the debug logger.
func (c *Chip) SetLogger(log *debug.Logger) { c.log = log }

// WritePort implements bus.Port for the speech write port (0x9400).
func (c *Chip) WritePort(value uint8) { c.Write(value) }

// ReadPort implements bus.Port for the speech read port (0x9000): the busy
// status bit while a phrase plays, 0 once playback completes.
func (c *Chip) ReadPort() uint8 { return c.ReadStatus() }

// Write decodes one command byte.
func (c *Chip) Write(value uint8) {
	switch {
	case value&0xF0 == cmdLoadAddress:
		nibble := uint32(value & 0x0F)
		shift := 4 * uint(c.loadNibbles)
		c.loadAddress = c.loadAddress&^(0x0F<<shift) | nibble<<shift
		c.loadNibbles++
		if c.loadNibbles >= 5 {
			c.loadNibbles = 0
			c.loadAddress &= 0xFFFFF // 20-bit VSM address space
		}
	case value == cmdReadBranch:
		c.readBranch()
	case value == cmdSpeak:
		c.speakExternal()
	case value == cmdReset:
		c.reset()
	}
}

// readBranch fetches one byte of VSM data from the current load address and
// advances it, mirroring the chip's read-and-branch addressing used by the
// dictionary-walk driver.
func (c *Chip) readBranch() {
	addr := c.loadAddress & 0x7FFF
	c.lastByte = c.vsm.rom[addr]
	c.loadAddress = (c.loadAddress + 1) & 0x7FFF
}

// ReadData returns the byte most recently fetched by a read-and-branch
// command, matching say.cpp's `speech->ReadData(0)` calls after each 0x10.
func (c *Chip) ReadData() uint8 { return c.lastByte }

func (c *Chip) speakExternal() {
	addr := uint16(c.loadAddress & 0x7FFF)
	data := c.vsm.rom[addr:]
	frames, _ := DecodeFrames(data) // a truncated phrase still plays whatever frames decoded

	c.decodedFrames = frames
	c.playFrameIdx = 0
	c.playing = len(frames) > 0
	if c.log != nil {
		c.log.LogSpeech(debug.LogLevelDebug, "speak-external", map[string]interface{}{
			"address": addr,
			"frames":  len(frames),
		})
	}
}

func (c *Chip) reset() {
	c.loadAddress = 0
	c.loadNibbles = 0
	c.playing = false
	c.decodedFrames = nil
}

// ReadStatus returns the busy flag. The frame-by-frame playback clock is
// advanced externally via Advance, matching the single-threaded cooperative
// model where the worker polls status with a delay between steps.
func (c *Chip) ReadStatus() uint8 {
	if c.playing {
		return statusBusy
	}
	return 0
}

// Advance consumes one decoded frame per call, clearing the busy flag once
// the queued phrase's frames are exhausted (a stand-in for the real chip's
// internal frame-rate clock, since frame-accurate audio synthesis is not in
// scope here).
func (c *Chip) Advance() {
	if !c.playing {
		return
	}
	c.playFrameIdx++
	if c.playFrameIdx >= len(c.decodedFrames) {
		c.playing = false
	}
}

// Playing reports whether a phrase is still being consumed.
func (c *Chip) Playing() bool { return c.playing }

// Say resolves phrase through the dictionary (falling back to spelling),
// then drives the wire-level load-address/speak-external sequence for each
// resulting phrase exactly as a real driver would: five 0x4v loads of the
// 20-bit data offset, followed by 0x50.
func (c *Chip) Say(phrase string) {
	for _, offset := range c.vsm.locateAll(phrase) {
		c.loadAndSpeak(offset)
	}
}

func (c *Chip) loadAndSpeak(address uint32) {
	for i := 0; i < 5; i++ {
		c.Write(uint8(cmdLoadAddress | ((address >> (4 * uint(i))) & 0x0F)))
	}
	c.Write(cmdSpeak)
}
