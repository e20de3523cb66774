package vdp

// palette is the TMS9918A's fixed 16-color RGB888 palette (index 0 is
// "transparent" wherever a mode treats it as background-showing).
var palette = [16]uint32{
	0x000000, 0x000000, 0x21C842, 0x5EDC78,
	0x5455ED, 0x7D76FC, 0xD4524D, 0x42EBF5,
	0xFC5554, 0xFF7978, 0xD4C154, 0xE6CE80,
	0x21B03B, 0xC95BBA, 0xCCCCCC, 0xFFFFFF,
}

// Render draws the current VRAM contents into the frame buffer for the
// active mode, mirroring the teacher's renderBackgroundLayer/renderSprites
// split but against the TMS9918A's four fixed modes instead of
// scrollable/paletted background layers. force redraws every cell
// regardless of dirty state (a mode change or a freshly loaded VRAM image);
// otherwise only cells the dirty bitmaps mark as changed are touched.
func (v *VDP) Render(force bool) {
	v.refresh(force)
}

// refresh is the lazy redraw path: walk changed patterns to propagate their
// dirty state onto the screen cells that reference them, repaint only what
// that leaves dirty (or everything, if forced), and clear the bitmaps it
// consumed.
func (v *VDP) refresh(force bool) {
	if !force && !v.dirty {
		return
	}

	mode := v.Mode()

	for slot := range v.patternChanged {
		if !v.patternChanged[slot] {
			continue
		}
		if v.charUse[slot] > 0 {
			v.markCellsUsingPattern(slot, mode)
		}
		v.patternChanged[slot] = false
	}

	switch mode {
	case ModeText:
		v.renderText(force)
	case ModeMulticolor:
		v.renderMulticolor(force)
	case ModeGraphicsII:
		v.renderGraphicsII(force)
	default:
		v.renderGraphicsI(force)
	}

	if force || v.spritesChanged {
		v.renderSprites()
		v.spritesChanged = false
	}

	for i := range v.screenChanged {
		v.screenChanged[i] = false
	}
	v.dirty = false
}

// markCellsUsingPattern flags every image-table cell currently displaying
// pattern slot as screen-changed, so a pattern edit repaints only the cells
// that reference it rather than the whole screen. In Graphics II, slot's
// high bits pick which third of the name table to scan (the same third the
// pattern itself belongs to); the other modes scan the whole table.
func (v *VDP) markCellsUsingPattern(slot int, mode Mode) {
	nameBase := v.NameTableBase()
	bank := 0
	name := slot
	if mode == ModeGraphicsII {
		bank = slot &^ 0xFF
		name = slot & 0xFF
	}

	remaining := v.charUse[slot]
	size := v.imageTableSize()
	for i := 0; i < size && remaining > 0; i++ {
		if mode == ModeGraphicsII && i&^0xFF != bank {
			continue
		}
		if int(v.VRAM[(int(nameBase)+i)&0x3FFF]) == name {
			v.screenChanged[i] = true
			remaining--
		}
	}
}

func (v *VDP) setPixel(x, y int, color uint32) {
	if x < 0 || x >= screenWidth || y < 0 || y >= screenHeight {
		return
	}
	v.frameBuffer[y*screenWidth+x] = color
}

// renderGraphicsI: 32x24 name table of 8x8 patterns, one color pair per
// 8-row pattern group (color table indexed by pattern/8).
func (v *VDP) renderGraphicsI(force bool) {
	nameBase := v.NameTableBase()
	colorBase := v.ColorTableBase()
	patternBase := v.PatternTableBase()

	for row := 0; row < 24; row++ {
		for col := 0; col < 32; col++ {
			cell := row*32 + col
			if !force && !v.screenChanged[cell] {
				continue
			}
			name := v.VRAM[nameBase+uint16(cell)]
			colorByte := v.VRAM[colorBase+uint16(name)/8]
			fg, bg := colorByte>>4, colorByte&0x0F
			for line := 0; line < 8; line++ {
				patByte := v.VRAM[patternBase+uint16(name)*8+uint16(line)]
				for bit := 0; bit < 8; bit++ {
					set := patByte&(0x80>>uint(bit)) != 0
					idx := bg
					if set {
						idx = fg
					}
					v.setPixel(col*8+bit, row*8+line, v.colorOf(idx))
				}
			}
		}
	}
}

// renderMulticolor: 32x24 name table of 8x8 patterns split into 4x4 blocks,
// each spanning 2 pixel rows of one 2-color nibble pair.
func (v *VDP) renderMulticolor(force bool) {
	nameBase := v.NameTableBase()
	patternBase := v.PatternTableBase()

	for row := 0; row < 24; row++ {
		for col := 0; col < 32; col++ {
			cell := row*32 + col
			if !force && !v.screenChanged[cell] {
				continue
			}
			name := v.VRAM[nameBase+uint16(cell)]
			for line := 0; line < 8; line++ {
				patByte := v.VRAM[patternBase+uint16(name)*8+uint16((line/4)*4+(line%4)/2)]
				left, right := patByte>>4, patByte&0x0F
				for x := 0; x < 4; x++ {
					v.setPixel(col*8+x, row*8+line, v.colorOf(left))
				}
				for x := 4; x < 8; x++ {
					v.setPixel(col*8+x, row*8+line, v.colorOf(right))
				}
			}
		}
	}
}

// renderGraphicsII: like Graphics I but the pattern and color tables are
// split into 3 thirds (one per 8-row band of the 192-line screen), each
// indexed by name independently instead of sharing one 256-entry table.
func (v *VDP) renderGraphicsII(force bool) {
	nameBase := v.NameTableBase()
	colorBase := v.ColorTableBase()
	patternBase := v.PatternTableBase()

	for row := 0; row < 24; row++ {
		third := uint16(row/8) * 0x800
		for col := 0; col < 32; col++ {
			cell := row*32 + col
			if !force && !v.screenChanged[cell] {
				continue
			}
			name := uint16(v.VRAM[nameBase+uint16(cell)])
			for line := 0; line < 8; line++ {
				patOffset := third + name*8 + uint16(line)
				patByte := v.VRAM[patternBase+patOffset]
				colorByte := v.VRAM[colorBase+patOffset]
				fg, bg := colorByte>>4, colorByte&0x0F
				for bit := 0; bit < 8; bit++ {
					set := patByte&(0x80>>uint(bit)) != 0
					idx := bg
					if set {
						idx = fg
					}
					v.setPixel(col*8+bit, row*8+line, v.colorOf(idx))
				}
			}
		}
	}
}

// renderText: 40x24 characters, 6x8 pixels each, fixed foreground/background
// from register 7 (no per-character color in text mode).
func (v *VDP) renderText(force bool) {
	nameBase := v.NameTableBase()
	patternBase := v.PatternTableBase()
	fgIdx, bgIdx := v.TextColor()
	fg, bg := v.colorOf(fgIdx), v.colorOf(bgIdx)

	for row := 0; row < 24; row++ {
		for col := 0; col < 40; col++ {
			cell := row*40 + col
			if !force && !v.screenChanged[cell] {
				continue
			}
			name := v.VRAM[nameBase+uint16(cell)]
			for line := 0; line < 8; line++ {
				patByte := v.VRAM[patternBase+uint16(name)*8+uint16(line)]
				for bit := 0; bit < 6; bit++ {
					color := bg
					if patByte&(0x80>>uint(bit)) != 0 {
						color = fg
					}
					v.setPixel(col*6+bit, row*8+line, color)
				}
			}
		}
	}
}

func (v *VDP) colorOf(index uint8) uint32 {
	if index == 0 {
		return palette[0]
	}
	return palette[index&0x0F]
}

// renderSprites draws up to maxSprites entries from the sprite attribute
// table, honoring size/magnification from register 1 and setting the
// fifth-sprite status flags when a scanline exceeds 4 visible sprites.
func (v *VDP) renderSprites() {
	base := v.SpriteAttrTableBase()
	patBase := v.SpritePatternTableBase()
	size16 := v.registers[1]&Reg1Size16 != 0
	mag := v.registers[1]&Reg1SizeMag != 0

	spriteSize := 8
	if size16 {
		spriteSize = 16
	}
	scale := 1
	if mag {
		scale = 2
	}

	perLine := make(map[int]int)

	for i := 0; i < maxSprites; i++ {
		addr := base + uint16(i*4)
		y := int(v.VRAM[addr])
		if y == 0xD0 { // sprite list terminator (Graphics I/II convention)
			break
		}
		y = (y + 1) & 0xFF
		if y > 0xE0 {
			y -= 256 // wraps to negative (off top of screen)
		}
		x := int(v.VRAM[addr+1])
		pattern := v.VRAM[addr+2]
		if size16 {
			pattern &^= 0x03
		}
		flags := v.VRAM[addr+3]
		if flags&0x80 != 0 {
			x -= 32
		}
		colorIdx := flags & 0x0F

		for row := 0; row < spriteSize*scale; row++ {
			line := y + row
			if line < 0 || line >= screenHeight {
				continue
			}
			perLine[line]++
			if perLine[line] > 4 {
				v.status |= 0x40 // 5th sprite flag
				continue
			}
			patRow := row / scale
			patByte := v.VRAM[patBase+uint16(pattern)*8+uint16(patRow%8)+uint16(patRow/8)*16]
			for col := 0; col < spriteSize*scale; col++ {
				bit := col / scale
				if patByte&(0x80>>uint(bit%8)) == 0 {
					continue
				}
				if colorIdx == 0 {
					continue // transparent
				}
				v.setPixel(x+col, line, v.colorOf(colorIdx))
			}
		}
	}
}
