// Package cassette implements the three-pass Miller/Biphase-Mark demodulator
// that recovers TI-99/4A cassette recordings from a WAV capture: track
// location (locating the runs of signal that look like recorded data),
// bit-cell extraction (turning a located run into a 0/1 bit stream), and
// record framing (turning that bit stream into checksummed 64-byte chunks).
package cassette

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Sentinel errors for WAV parsing.
var (
	ErrNotRIFF       = errors.New("cassette: not a RIFF file")
	ErrNotWAVE       = errors.New("cassette: not a WAVE file")
	ErrNoFormatChunk = errors.New("cassette: missing fmt chunk")
	ErrNoDataChunk   = errors.New("cassette: missing data chunk")
	ErrNotPCM        = errors.New("cassette: unsupported WAVE format (PCM only)")
)

const waveFormatPCM = 1

// Format is the decoded contents of a WAVE `fmt ` chunk.
type Format struct {
	Channels      int
	SampleRate    int
	BitsPerSample int // rounded up to a multiple of 8
	BlockAlign    int // bytes per frame (all channels)
}

// Tape is a WAV capture reduced to its PCM sample data and format, ready for
// demodulation. Only the first channel of a multi-channel file is used.
type Tape struct {
	Format  Format
	samples []int
}

// Load parses a RIFF/WAVE byte stream and extracts mono samples from its
// first channel, matching original_source's CheckHeader chunk walk and the
// GetSampleMono8/16/32 and GetSampleStereo8/16/32 per-format sample readers.
func Load(data []byte) (*Tape, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" {
		return nil, ErrNotRIFF
	}
	if string(data[8:12]) != "WAVE" {
		return nil, ErrNotWAVE
	}

	var format *Format
	var rawFormat struct {
		tag           uint16
		channels      uint16
		sampleRate    uint32
		bitsPerSample uint16
		blockAlign    uint16
	}
	var sampleData []byte

	pos := 12
	for pos+8 <= len(data) {
		tag := string(data[pos : pos+4])
		length := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+length > len(data) {
			length = len(data) - body
		}

		switch tag {
		case "fmt ":
			if length < 16 {
				return nil, fmt.Errorf("cassette: fmt chunk too short (%d bytes)", length)
			}
			chunk := data[body : body+length]
			rawFormat.tag = binary.LittleEndian.Uint16(chunk[0:2])
			rawFormat.channels = binary.LittleEndian.Uint16(chunk[2:4])
			rawFormat.sampleRate = binary.LittleEndian.Uint32(chunk[4:8])
			rawFormat.bitsPerSample = binary.LittleEndian.Uint16(chunk[14:16])
			rawFormat.blockAlign = binary.LittleEndian.Uint16(chunk[12:14])
			bits := int(rawFormat.bitsPerSample+7) &^ 7
			if bits == 0 {
				bits = 8
			}
			format = &Format{
				Channels:      int(rawFormat.channels),
				SampleRate:    int(rawFormat.sampleRate),
				BitsPerSample: bits,
				BlockAlign:    int(rawFormat.blockAlign),
			}
		case "data":
			sampleData = data[body : body+length]
		}

		pos = body + length
		if pos%2 == 1 {
			pos++ // chunks are word-aligned
		}
	}

	if format == nil {
		return nil, ErrNoFormatChunk
	}
	if sampleData == nil {
		return nil, ErrNoDataChunk
	}
	if rawFormat.tag != waveFormatPCM {
		return nil, ErrNotPCM
	}
	if format.Channels < 1 {
		format.Channels = 1
	}
	if format.BlockAlign == 0 {
		format.BlockAlign = format.Channels * format.BitsPerSample / 8
	}

	samples, err := decodeSamples(sampleData, *format)
	if err != nil {
		return nil, err
	}
	return &Tape{Format: *format, samples: samples}, nil
}

// decodeSamples extracts one (signed, DC-centered-at-zero for 8-bit) sample
// per frame from the first channel, stepping by BlockAlign bytes.
func decodeSamples(data []byte, format Format) ([]int, error) {
	frameBytes := format.BlockAlign
	if frameBytes <= 0 {
		return nil, fmt.Errorf("cassette: invalid block align")
	}
	count := len(data) / frameBytes
	samples := make([]int, 0, count)

	bytesPerSample := format.BitsPerSample / 8
	for i := 0; i < count; i++ {
		frame := data[i*frameBytes:]
		var v int
		switch bytesPerSample {
		case 1:
			v = int(frame[0]) - 0x80
		case 2:
			v = int(int16(binary.LittleEndian.Uint16(frame[0:2])))
		case 4:
			v = int(int32(binary.LittleEndian.Uint32(frame[0:4])))
		default:
			return nil, fmt.Errorf("cassette: unsupported sample width (%d bits)", format.BitsPerSample)
		}
		samples = append(samples, v)
	}
	return samples, nil
}

// Samples returns the decoded mono sample stream.
func (t *Tape) Samples() []int { return t.samples }
