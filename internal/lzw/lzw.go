// Package lzw implements the variable-width LZW codec used to compress
// cartridge ROM/GROM banks in the v2 container format: 9..16-bit codes,
// a CLEAR code that resets the dictionary, and an EOF code that terminates
// the stream. Encoding uses a hash-chained dictionary; decoding unwinds
// chained codes through a prefix stack, handling the classic K-ω-K case
// where a code references the entry currently being built.
package lzw

import (
	"errors"

	"github.com/ti99sim/ti99sim-go/internal/bitio"
)

const (
	codeClear     = 256
	codeEOF       = 257
	codeFirstFree = 258

	minBits = 9

	// DefaultMaxBits is the width ceiling used by callers with no format
	// constraint of their own (the generic codec's top of range).
	DefaultMaxBits = 16

	// CartridgeMaxBits is the width ceiling the cartridge v2 container
	// format uses for ROM/GROM bank compression, matching the original
	// cCartridge::SaveBufferLZW's `cEncodeLZW(15)`.
	CartridgeMaxBits = 15

	codeMax = 1 << DefaultMaxBits

	endPattern = -1
)

// ErrInvalidStream is returned when a decode encounters a code that cannot
// be valid given the dictionary built so far.
var ErrInvalidStream = errors.New("lzw: invalid compressed stream")

// ErrEmptyInput is returned by Encode when given a zero-length buffer.
var ErrEmptyInput = errors.New("lzw: empty input")

// Sink receives a contiguous run of encoded or decoded bytes. Returning
// false aborts the operation, mirroring the original codec's buffer-full
// write callback contract.
type Sink func(data []byte) bool

type encoder struct {
	w          *bitio.Writer
	maxBits    int
	nBits      int
	maxCode    int
	freeCode   int
	appendChar []byte
	firstHash  []int
	nextHash   []int
}

func newEncoder(maxBits int) *encoder {
	e := &encoder{
		w:          bitio.NewWriter(),
		maxBits:    maxBits,
		appendChar: make([]byte, codeMax),
		firstHash:  make([]int, codeMax),
		nextHash:   make([]int, codeMax),
	}
	e.initTable()
	return e
}

func (e *encoder) initTable() {
	e.nBits = minBits
	e.maxCode = 1 << uint(e.nBits)
	for i := 0; i < 256; i++ {
		e.firstHash[i] = endPattern
		e.nextHash[i] = endPattern
	}
	e.freeCode = codeFirstFree
}

func (e *encoder) writeCode(code int) {
	e.w.WriteBits(uint32(code), e.nBits)
}

// lookup walks the hash chain rooted at prefix looking for an entry whose
// appended character is ch. Returns the extended index and whether the
// chain was empty (so addCode knows whether to patch firstHash or nextHash).
func (e *encoder) lookup(prefix int, ch byte) (extended int, lastIndex int, hashWasEmpty bool, found bool) {
	lastIndex = prefix
	index := e.firstHash[prefix]
	hashWasEmpty = index == endPattern
	for index != endPattern {
		if e.appendChar[index] == ch {
			return index, lastIndex, hashWasEmpty, true
		}
		lastIndex = index
		index = e.nextHash[index]
	}
	return 0, lastIndex, hashWasEmpty, false
}

func (e *encoder) addCode(lastIndex int, hashWasEmpty bool, ch byte) int {
	if hashWasEmpty {
		e.firstHash[lastIndex] = e.freeCode
	} else {
		e.nextHash[lastIndex] = e.freeCode
	}
	if e.freeCode != codeMax {
		e.firstHash[e.freeCode] = endPattern
		e.nextHash[e.freeCode] = endPattern
		e.appendChar[e.freeCode] = ch
		result := e.freeCode
		e.freeCode++
		return result
	}
	return e.freeCode
}

// Encode compresses data at DefaultMaxBits and delivers the entire
// compressed stream to sink in one call once encoding completes.
func Encode(data []byte, sink Sink) error {
	return EncodeMaxBits(data, DefaultMaxBits, sink)
}

// EncodeMaxBits compresses data, growing the code width up to maxBits
// (9..16) before falling back to emitting a CLEAR and restarting the
// dictionary. Use CartridgeMaxBits to match the cartridge v2 container
// format exactly.
func EncodeMaxBits(data []byte, maxBits int, sink Sink) error {
	if len(data) == 0 {
		return ErrEmptyInput
	}

	e := newEncoder(maxBits)
	e.writeCode(codeClear)

	pos := 0
	prefix := int(data[pos])
	pos++

	for pos < len(data) {
		ch := data[pos]
		pos++

		extended, lastIndex, hashWasEmpty, found := e.lookup(prefix, ch)
		for found {
			prefix = extended
			if pos >= len(data) {
				goto flushTail
			}
			ch = data[pos]
			pos++
			extended, lastIndex, hashWasEmpty, found = e.lookup(prefix, ch)
		}

		e.writeCode(prefix)

		if added := e.addCode(lastIndex, hashWasEmpty, ch); added >= e.maxCode {
			if e.nBits == e.maxBits {
				e.writeCode(codeClear)
				e.initTable()
			} else {
				e.nBits++
				e.maxCode <<= 1
			}
		}
		prefix = int(ch)
	}

flushTail:
	e.writeCode(prefix)
	e.writeCode(codeEOF)

	out := e.w.Flush()
	if !sink(out) {
		return errors.New("lzw: sink rejected output")
	}
	return nil
}

// Decode expands an LZW stream produced by Encode (DefaultMaxBits),
// invoking sink once with the fully decoded byte slice. Sink returning
// false aborts decoding.
func Decode(data []byte, sink Sink) error {
	return DecodeMaxBits(data, DefaultMaxBits, sink)
}

// DecodeMaxBits expands an LZW stream produced at the given maxBits
// ceiling. Use CartridgeMaxBits to match the cartridge v2 container format.
func DecodeMaxBits(data []byte, maxBits int, sink Sink) error {
	r := bitio.NewReader(data)

	appendChar := make([]byte, codeMax)
	nextCode := make([]int, codeMax)

	nBits := minBits
	codeMask := uint32(1<<uint(nBits)) - 1
	freeCode := codeFirstFree

	reset := func() {
		nBits = minBits
		codeMask = uint32(1<<uint(nBits)) - 1
		freeCode = codeFirstFree
	}

	var out []byte
	stack := make([]byte, 0, 1<<12)

	var ch byte
	var prefix int

	for {
		code, err := r.ReadBits(nBits)
		if err != nil {
			return ErrInvalidStream
		}

		switch code {
		case codeEOF:
			if !sink(out) {
				return errors.New("lzw: sink rejected output")
			}
			return nil

		case codeClear:
			reset()
			c, err := r.ReadBits(nBits)
			if err != nil {
				return ErrInvalidStream
			}
			ch = byte(c)
			prefix = int(c)
			out = append(out, ch)

		default:
			index := int(code)

			if int(code) >= freeCode {
				if int(code) > freeCode {
					return ErrInvalidStream
				}
				index = prefix
				stack = append(stack, ch)
			}

			for index > 0xFF {
				stack = append(stack, appendChar[index])
				index = nextCode[index]
			}
			ch = byte(index)

			out = append(out, ch)
			for i := len(stack) - 1; i >= 0; i-- {
				out = append(out, stack[i])
			}
			stack = stack[:0]

			if freeCode >= codeMax {
				return ErrInvalidStream
			}
			appendChar[freeCode] = ch
			nextCode[freeCode] = prefix
			freeCode++
			prefix = int(code)

			if uint32(freeCode) > codeMask && nBits != maxBits {
				nBits++
				codeMask = (codeMask << 1) | 1
			}
		}
	}
}
