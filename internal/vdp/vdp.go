// Package vdp implements the TMS9918A Video Display Processor: 16KB of
// VRAM addressed through a two-byte latched address/data port pair, 8
// write-only mode registers, a read-once status register, and the four
// classic video modes (Graphics I, Text, Multicolor, Graphics II/bitmap)
// plus the 32-entry sprite attribute table. Registers and VRAM access
// mirror the teacher's register-write/VRAM-address-latch shape generalized
// from a made-up SNES-style PPU to the real TMS9918A port protocol.
package vdp

import "github.com/ti99sim/ti99sim-go/internal/bus"

// Mode register bits (register 1), matching VDP_M1/VDP_M2/VDP_M3 naming
// used by the original console/SDL front ends.
const (
	Reg1Blank     = 0x40
	Reg1IntEnable = 0x20
	Reg1M1        = 0x10 // Text mode
	Reg1M2        = 0x08 // Multicolor mode (paired with register 0 bit for Graphics II)
	Reg1Size16    = 0x02 // sprites are 16x16 instead of 8x8
	Reg1SizeMag   = 0x01 // sprites are magnified 2x
)

const (
	Reg0M3 = 0x02 // Graphics II / bitmap mode bit, register 0

	vramSize      = 16384
	screenWidth   = 256
	screenHeight  = 192
	maxSprites    = 32
	spriteTableSz = 32 * 4

	// maxImageTableSize is sized for text mode's 40x24 name table, the
	// largest of the four modes (graphics modes use 32x24 = 768).
	maxImageTableSize = 40 * 24

	// charSlots covers Graphics II's three independently-addressed thirds
	// of the pattern/color tables (256 character slots each); the other
	// three modes only ever touch slots 0-255.
	charSlots = 3 * 256

	patternTableSize    = 2048
	spriteDescTableSize = 2048
)

// Memory-type flags, one set per VRAM address, identifying which table(s)
// currently claim it. A write that changes a flagged byte's value updates
// the matching dirty bitmap and use counter below instead of forcing a
// full-screen redraw.
type memFlag uint8

const (
	memImageTable memFlag = 1 << iota
	memPatternTable
	memColorTable
	memSpriteAttrTable
	memSpriteDescTable
)

// Mode identifies the active TMS9918A display mode.
type Mode int

const (
	ModeGraphicsI Mode = iota
	ModeText
	ModeMulticolor
	ModeGraphicsII
)

// VDP is the emulated TMS9918A.
type VDP struct {
	VRAM [vramSize]uint8

	registers [8]uint8
	status    uint8

	addrLatch    uint8
	addrLatched  bool
	addr         uint16
	readAhead    uint8
	autoIncrement bool

	frameCounter uint32
	scanline     int
	vblank       bool

	frameBuffer [screenWidth * screenHeight]uint32
	dirty       bool

	// memType records, per VRAM address, which table(s) own that byte
	// (image/pattern/color/sprite-attr/sprite-desc, possibly more than one
	// where tables overlap). Rebuilt by recomputeMemoryMap whenever a mode
	// or table-base register changes.
	memType [vramSize]memFlag

	// charUse and spriteCharUse count how many image-table cells (or
	// sprite-attribute entries) currently reference each pattern slot;
	// refresh only needs to touch a pattern's on-screen cells when its use
	// count is nonzero.
	charUse       [charSlots]int16
	spriteCharUse [256]int16

	// screenChanged/patternChanged/spritesChanged are dirty bitmaps consulted
	// by refresh: a VRAM write only flips the bit(s) for the table(s) it
	// belongs to, so an unforced refresh repaints just what moved.
	screenChanged  [maxImageTableSize]bool
	patternChanged [charSlots]bool
	spritesChanged bool

	// InterruptLine is pulled by SetVBlank when register 1's interrupt-enable
	// bit is set, for the emulator to observe and raise a CPU interrupt.
	InterruptLine bool
}

// New creates a VDP with all registers and VRAM zeroed.
func New() *VDP {
	v := &VDP{}
	v.recomputeMemoryMap()
	return v
}

// imageTableSize is the active mode's name-table length: 40x24 in text
// mode, 32x24 everywhere else.
func (v *VDP) imageTableSize() int {
	if v.Mode() == ModeText {
		return 40 * 24
	}
	return 32 * 24
}

// Mode returns the active display mode decoded from registers 0 and 1.
func (v *VDP) Mode() Mode {
	m1 := v.registers[1]&Reg1M1 != 0
	m2 := v.registers[1]&Reg1M2 != 0
	m3 := v.registers[0]&Reg0M3 != 0
	switch {
	case m3:
		return ModeGraphicsII
	case m1:
		return ModeText
	case m2:
		return ModeMulticolor
	default:
		return ModeGraphicsI
	}
}

func (v *VDP) tableBase(reg uint8, mask uint8, shift uint) uint16 {
	return uint16(v.registers[reg]&mask) << shift
}

// NameTableBase is register 2's table address (pattern name table).
func (v *VDP) NameTableBase() uint16 { return v.tableBase(2, 0x0F, 10) }

// ColorTableBase is register 3's table address.
func (v *VDP) ColorTableBase() uint16 {
	if v.Mode() == ModeGraphicsII {
		return v.tableBase(3, 0x80, 6)
	}
	return uint16(v.registers[3]) << 6
}

// PatternTableBase is register 4's table address.
func (v *VDP) PatternTableBase() uint16 {
	if v.Mode() == ModeGraphicsII {
		return v.tableBase(4, 0x04, 11)
	}
	return uint16(v.registers[4]&0x07) << 11
}

// SpriteAttrTableBase is register 5's table address.
func (v *VDP) SpriteAttrTableBase() uint16 { return uint16(v.registers[5]&0x7F) << 7 }

// SpritePatternTableBase is register 6's table address.
func (v *VDP) SpritePatternTableBase() uint16 { return uint16(v.registers[6]&0x07) << 11 }

// TextColor returns the foreground/background color pair from register 7.
func (v *VDP) TextColor() (fg, bg uint8) {
	return v.registers[7] >> 4, v.registers[7] & 0x0F
}

// ReadStatus reads and clears the status register (F/5S/C/fifth-sprite
// flags), also resetting the address latch like real hardware.
func (v *VDP) ReadStatus() uint8 {
	s := v.status
	v.status &^= 0xE0 // clear the frame (F), fifth-sprite (5S) and collision (C) flags on read
	v.addrLatched = false
	v.InterruptLine = false
	return s
}

// WriteAddress handles the two-byte address/register-write protocol on the
// VDP's write port: the first byte latches the low address bits, the
// second either completes a VRAM read setup (top bits 0), a VRAM write
// setup (top bits 1), or a register write (top two bits 10).
func (v *VDP) WriteAddress(value uint8) {
	if !v.addrLatched {
		v.addrLatch = value
		v.addrLatched = true
		return
	}
	v.addrLatched = false

	switch value & 0xC0 {
	case 0x80: // register write
		reg := value & 0x07
		v.registers[reg] = v.addrLatch
		// Registers 0-6 can move a table base or flip the mode bits that
		// change table sizes (text vs. graphics name table length, Graphics
		// II's tripled pattern/color tables); either invalidates every
		// offset previously computed against the old layout.
		if reg <= 6 {
			v.recomputeMemoryMap()
		}
	default:
		v.addr = (uint16(value&0x3F) << 8) | uint16(v.addrLatch)
		if value&0x40 == 0 {
			v.readAhead = v.VRAM[v.addr]
			v.addr = (v.addr + 1) & 0x3FFF
		}
	}
}

// ReadData returns the read-ahead buffer and primes the next byte,
// matching the VDP's one-byte-behind VRAM read pipeline.
func (v *VDP) ReadData() uint8 {
	value := v.readAhead
	v.readAhead = v.VRAM[v.addr]
	v.addr = (v.addr + 1) & 0x3FFF
	return value
}

// WriteData writes value at the current VRAM address and advances it.
func (v *VDP) WriteData(value uint8) {
	addr := v.addr
	if old := v.VRAM[addr]; old != value {
		v.markDirty(addr, old, value)
	}
	v.VRAM[addr] = value
	v.readAhead = value
	v.addr = (v.addr + 1) & 0x3FFF
	v.dirty = true
}

// recomputeMemoryMap rebuilds memType from the current table-base registers
// and mode, then forces every dirty bitmap and the per-slot use counters
// back to "fully dirty": a table move invalidates every offset the old
// bitmaps were tracking, the same way the original console's SetMode
// override forces a full repaint and rescans the name table for m_CharUse.
func (v *VDP) recomputeMemoryMap() {
	for i := range v.memType {
		v.memType[i] = 0
	}

	graphicsII := v.Mode() == ModeGraphicsII
	imageSize := v.imageTableSize()

	nameBase := v.NameTableBase()
	for i := 0; i < imageSize; i++ {
		v.memType[(int(nameBase)+i)&0x3FFF] |= memImageTable
	}

	patternSize := patternTableSize
	if graphicsII {
		patternSize = 3 * patternTableSize
	}
	patternBase := v.PatternTableBase()
	for i := 0; i < patternSize; i++ {
		v.memType[(int(patternBase)+i)&0x3FFF] |= memPatternTable
	}

	if v.Mode() != ModeText {
		colorSize := 32
		if graphicsII {
			colorSize = 3 * patternTableSize
		}
		colorBase := v.ColorTableBase()
		for i := 0; i < colorSize; i++ {
			v.memType[(int(colorBase)+i)&0x3FFF] |= memColorTable
		}

		attrBase := v.SpriteAttrTableBase()
		for i := 0; i < spriteTableSz; i++ {
			v.memType[(int(attrBase)+i)&0x3FFF] |= memSpriteAttrTable
		}

		descBase := v.SpritePatternTableBase()
		for i := 0; i < spriteDescTableSize; i++ {
			v.memType[(int(descBase)+i)&0x3FFF] |= memSpriteDescTable
		}
	}

	for i := range v.charUse {
		v.charUse[i] = 0
	}
	for i := 0; i < imageSize; i++ {
		name := v.VRAM[(int(nameBase)+i)&0x3FFF]
		bank := 0
		if graphicsII {
			bank = i &^ 0xFF
		}
		v.charUse[bank+int(name)]++
	}

	for i := range v.screenChanged {
		v.screenChanged[i] = true
	}
	for i := range v.patternChanged {
		v.patternChanged[i] = true
	}
	v.spritesChanged = true
	v.dirty = true
}

// markDirty updates the use counters and dirty bitmaps for a VRAM write that
// changed a byte currently claimed by one of the active tables, mirroring
// the original console's WriteData override: a write only touches the
// bitmaps for the table(s) it belongs to, so a later unforced refresh only
// repaints what actually moved.
func (v *VDP) markDirty(addr uint16, old, value uint8) {
	flags := v.memType[addr]
	if flags == 0 {
		return
	}

	graphicsII := v.Mode() == ModeGraphicsII

	if flags&memImageTable != 0 {
		offset := int(addr-v.NameTableBase()) & 0x3FFF
		if offset < len(v.screenChanged) {
			v.screenChanged[offset] = true
			bank := 0
			if graphicsII {
				bank = offset &^ 0xFF
			}
			v.charUse[bank+int(old)]--
			v.charUse[bank+int(value)]++
		}
	}

	if flags&memPatternTable != 0 {
		slot := (int(addr-v.PatternTableBase()) & 0x3FFF) / 8
		if slot < len(v.patternChanged) {
			v.patternChanged[slot] = true
		}
	}

	if flags&memColorTable != 0 {
		if graphicsII {
			// One color byte per pattern row, same granularity as the
			// pattern table itself.
			slot := (int(addr-v.ColorTableBase()) & 0x3FFF) / 8
			if slot < len(v.patternChanged) {
				v.patternChanged[slot] = true
			}
		} else {
			// One color byte covers 8 consecutive character slots.
			base := (int(addr-v.ColorTableBase()) & 0x3FFF) * 8
			for i := 0; i < 8 && base+i < len(v.patternChanged); i++ {
				v.patternChanged[base+i] = true
			}
		}
	}

	if flags&memSpriteAttrTable != 0 {
		entryOffset := int(addr-v.SpriteAttrTableBase()) & 0x3FFF
		if entryOffset%4 == 2 { // the pattern-index byte of a 4-byte sprite entry
			count := 1
			if v.registers[1]&Reg1Size16 != 0 {
				count = 4
			}
			for i := 0; i < count; i++ {
				v.spriteCharUse[uint8(i)+old]--
				v.spriteCharUse[uint8(i)+value]++
			}
		}
		v.spritesChanged = true
	}

	if flags&memSpriteDescTable != 0 {
		index := (int(addr-v.SpritePatternTableBase()) & 0x3FFF) / 8
		if index < len(v.spriteCharUse) && v.spriteCharUse[index] > 0 {
			v.spritesChanged = true
		}
	}
}

// ReadPort/WritePort implement bus.Port for the VDP read/write port pair.
// Two Port values are registered with the bus: one wired to ReadStatus/
// WriteAddress (control port) and one to ReadData/WriteData (data port).
type dataPort struct{ v *VDP }
type statusPort struct{ v *VDP }

func (p dataPort) ReadPort() uint8         { return p.v.ReadData() }
func (p dataPort) WritePort(value uint8)   { p.v.WriteData(value) }
func (p statusPort) ReadPort() uint8       { return p.v.ReadStatus() }
func (p statusPort) WritePort(value uint8) { p.v.WriteAddress(value) }

// DataPort returns the bus.Port for VRAM data access (register at 0x8800/0x8C00).
func (v *VDP) DataPort() bus.Port { return dataPort{v} }

// StatusPort returns the bus.Port for status read / address-latch write.
func (v *VDP) StatusPort() bus.Port { return statusPort{v} }

// GetScanline implements debug.VDPStateReader.
func (v *VDP) GetScanline() int { return v.scanline }

// GetVBlankFlag implements debug.VDPStateReader.
func (v *VDP) GetVBlankFlag() bool { return v.vblank }

// GetFrameCounter implements debug.VDPStateReader.
func (v *VDP) GetFrameCounter() uint32 { return v.frameCounter }

// AdvanceScanline moves to the next scanline, setting the VBlank flag and
// status F bit (and interrupt line, if enabled) when entering line 192.
func (v *VDP) AdvanceScanline() {
	v.scanline++
	if v.scanline == screenHeight {
		v.vblank = true
		v.status |= 0x80
		if v.registers[1]&Reg1IntEnable != 0 {
			v.InterruptLine = true
		}
	}
	if v.scanline >= 262 {
		v.scanline = 0
		v.vblank = false
		v.frameCounter++
	}
}

// FrameBuffer returns the most recently rendered 256x192 RGB888 frame.
func (v *VDP) FrameBuffer() []uint32 { return v.frameBuffer[:] }
