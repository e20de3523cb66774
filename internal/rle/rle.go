// Package rle implements the run-length codec used to persist
// battery-backed cartridge RAM (.ram sidecar files): each record is a
// big-endian u16 tag followed by either one repeated byte (run, high bit
// set, low 15 bits = run length) or that many literal bytes (tag itself is
// the literal count). Runs shorter than minRun are not worth encoding as a
// run and fold into the surrounding literal span.
package rle

import (
	"encoding/binary"
	"errors"
)

const (
	minRun  = 4
	maxRun  = 0x7FFF
	runFlag = 0x8000
)

// ErrInvalidStream is returned when a zero-length literal tag (reserved,
// never produced by Encode) is found while decoding.
var ErrInvalidStream = errors.New("rle: invalid compressed stream")

func runLength(data []byte, last byte) int {
	n := 0
	for n < len(data) && data[n] == last && n < maxRun {
		n++
	}
	return n
}

// Encode compresses data into the tag-framed wire format described above.
func Encode(data []byte) []byte {
	var out []byte
	pos := 0

	for pos < len(data) {
		run := runLength(data[pos:], data[pos])

		if run >= minRun {
			out = appendTag(out, uint16(run)|runFlag)
			out = append(out, data[pos])
			pos += run
			continue
		}

		// Accumulate a literal span until we find a run worth breaking
		// out for, mirroring the original's lookahead merge of short runs.
		literalStart := pos
		literalLen := run
		nextPos := pos + run

		for nextPos < len(data) {
			spanRun := runLength(data[nextPos:], data[nextPos])
			if spanRun >= minRun {
				break
			}
			if spanRun == 0 {
				spanRun = 1
			}
			if literalLen+spanRun > maxRun {
				break
			}
			literalLen += spanRun
			nextPos += spanRun
		}

		out = appendTag(out, uint16(literalLen))
		out = append(out, data[literalStart:literalStart+literalLen]...)
		pos = literalStart + literalLen
	}

	return out
}

func appendTag(out []byte, tag uint16) []byte {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], tag)
	return append(out, buf[:]...)
}

// Decode expands data produced by Encode back into length bytes.
func Decode(data []byte, length int) ([]byte, error) {
	out, _, err := DecodeAt(data, length)
	return out, err
}

// DecodeAt expands the RLE records at the start of data until length bytes
// have been produced, returning the decoded bytes and the number of input
// bytes consumed. This lets callers decode several back-to-back records
// (as in the cartridge RAM sidecar, one per battery-backed bank) from a
// single buffer without pre-splitting it.
func DecodeAt(data []byte, length int) ([]byte, int, error) {
	out := make([]byte, 0, length)
	pos := 0

	for len(out) < length {
		if pos+2 > len(data) {
			return nil, pos, ErrInvalidStream
		}
		tag := binary.BigEndian.Uint16(data[pos:])
		pos += 2

		if tag&runFlag != 0 {
			count := int(tag &^ runFlag)
			if pos+1 > len(data) {
				return nil, pos, ErrInvalidStream
			}
			runChar := data[pos]
			pos++
			for i := 0; i < count; i++ {
				out = append(out, runChar)
			}
		} else {
			if tag == 0 {
				return nil, pos, ErrInvalidStream
			}
			count := int(tag)
			if pos+count > len(data) {
				return nil, pos, ErrInvalidStream
			}
			out = append(out, data[pos:pos+count]...)
			pos += count
		}
	}

	if len(out) != length {
		return nil, pos, ErrInvalidStream
	}
	return out, pos, nil
}
