// Package speech implements the TMS5220 speech synthesizer's byte-wise
// command interface and its VSM (Voice Synthesis Memory) dictionary: a
// 32 KiB ROM laid out as a binary search tree of phrase nodes followed by
// bit-packed LPC frames. The chip itself (the actual speech synthesis
// engine) is out of scope; this package exposes only the write-byte sink,
// the dictionary walk that resolves a phrase to its frame data, and the
// frame decoder that unpacks that data into LPC reflection coefficients.
package speech

import (
	"errors"
	"strings"
)

// ErrDictMiss is returned when no phrase in the VSM matches the requested
// string even after the spelling fallback would be required by the caller.
var ErrDictMiss = errors.New("speech: phrase not found in dictionary")

const vsmSize = 0x8000

// node is one binary-tree entry in the VSM: a phrase, links to the
// lexicographically smaller (prev) and larger (next) subtrees, and the
// location of its bit-packed frame data.
type node struct {
	phrase     string
	prevOffset uint16
	nextOffset uint16
	dataOffset uint16
	dataLength uint8
}

// VSM wraps a 32 KiB speech ROM image for dictionary lookups.
type VSM struct {
	rom [vsmSize]byte
}

// NewVSM wraps rom (which must be exactly 32 KiB, zero-padded if shorter)
// for dictionary traversal.
func NewVSM(rom []byte) *VSM {
	v := &VSM{}
	copy(v.rom[:], rom)
	return v
}

// readNode decodes the node at the given byte offset into the ROM, matching
// the real chip's "load address, then five read-and-branch bytes" protocol
// but operating directly on the backing array rather than issuing 0x10
// command bytes (Chip.readBranch is the register-level read-and-branch
// path).
func (v *VSM) readNode(offset uint16) node {
	var n node
	p := int(offset)
	length := int(v.rom[p])
	p++
	n.phrase = string(v.rom[p : p+length])
	p += length
	n.prevOffset = uint16(v.rom[p])<<8 | uint16(v.rom[p+1])
	p += 2
	n.nextOffset = uint16(v.rom[p])<<8 | uint16(v.rom[p+1])
	p += 2
	p++ // unknown byte
	n.dataOffset = uint16(v.rom[p])<<8 | uint16(v.rom[p+1])
	p += 2
	n.dataLength = v.rom[p]
	return n
}

// Locate walks the binary tree from the root (offset 1) comparing a
// case-insensitive phrase prefix, descending to prevOffset when phrase is
// lexicographically smaller or nextOffset when larger, until an exact-length
// match is found or an offset of 0 is reached (not found).
func (v *VSM) Locate(phrase string) (dataOffset uint16, dataLength uint8, ok bool) {
	if v.rom[0] != 0xAA {
		return 0, 0, false
	}
	upper := strings.ToUpper(phrase)
	offset := uint16(1)
	for {
		n := v.readNode(offset)
		delta := strings.Compare(upper, strings.ToUpper(n.phrase))
		if delta == 0 && len(n.phrase) == len(upper) {
			return n.dataOffset, n.dataLength, true
		}
		if delta <= 0 {
			offset = n.prevOffset
		} else {
			offset = n.nextOffset
		}
		if offset == 0 {
			return 0, 0, false
		}
	}
}

// LocateStrict is Locate without the spelling fallback, returning
// ErrDictMiss on a miss. Used by tooling that needs to distinguish a
// direct dictionary hit from the driver's recoverable fallback behavior.
func (v *VSM) LocateStrict(phrase string) (offset uint16, length uint8, err error) {
	if offset, length, ok := v.Locate(phrase); ok {
		return offset, length, nil
	}
	return 0, 0, ErrDictMiss
}

// FrameData returns the raw bit-packed frame bytes for a phrase already
// located via Locate.
func (v *VSM) FrameData(offset uint16, length uint8) []byte {
	return v.rom[offset : int(offset)+int(length)]
}

// locateAll resolves phrase to the ordered list of VSM data offsets that
// must be spoken in sequence: a direct hit is one offset; a miss falls
// back to spelling — a single missing character says the fixed "UHOH"
// phrase (if present), a longer miss recurses per character.
func (v *VSM) locateAll(phrase string) []uint32 {
	if offset, _, ok := v.Locate(phrase); ok {
		return []uint32{uint32(offset)}
	}
	if len(phrase) <= 1 {
		if offset, _, ok := v.Locate("UHOH"); ok {
			return []uint32{uint32(offset)}
		}
		return nil
	}
	var offsets []uint32
	for _, ch := range phrase {
		offsets = append(offsets, v.locateAll(string(ch))...)
	}
	return offsets
}
