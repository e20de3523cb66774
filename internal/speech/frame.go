package speech

import (
	"errors"

	"github.com/ti99sim/ti99sim-go/internal/bitio"
)

// ErrNoStopFrame is returned when frame data runs out before a STOP frame
// (energy index 0x0F) is encountered.
var ErrNoStopFrame = errors.New("speech: end of speech data reached with no stop frame")

// FrameKind classifies a decoded LPC frame.
type FrameKind int

const (
	FrameVoiced FrameKind = iota
	FrameUnvoiced
	FrameRepeat
	FrameSilence
	FrameStop
)

// Frame is one decoded variable-width LPC frame: a 4-bit energy index
// followed, unless it is a zero or stop frame, by a repeat flag, a 6-bit
// pitch, and (when not a repeat) ten reflection coefficients of width
// (5,5,4,4) always and (4,4,4,3,3,3) more when pitch != 0.
type Frame struct {
	Kind         FrameKind
	Energy       int
	Pitch        int
	Coefficients []int
}

// DecodeFrames unpacks every frame from a phrase's bit-packed data until a
// stop frame is reached, returning ErrNoStopFrame if the data is exhausted
// first.
func DecodeFrames(data []byte) ([]Frame, error) {
	r := bitio.NewReader(data)
	var frames []Frame
	for {
		f, stop, err := decodeFrame(r)
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
		if stop {
			return frames, nil
		}
	}
}

func decodeFrame(r *bitio.Reader) (Frame, bool, error) {
	energy, err := r.ReadBits(4)
	if err != nil {
		return Frame{}, false, ErrNoStopFrame
	}

	switch energy {
	case 0x00:
		return Frame{Kind: FrameSilence}, false, nil
	case 0x0F:
		return Frame{Kind: FrameStop}, true, nil
	}

	repeatBit, err := r.ReadBits(1)
	if err != nil {
		return Frame{}, false, ErrNoStopFrame
	}
	pitch, err := r.ReadBits(6)
	if err != nil {
		return Frame{}, false, ErrNoStopFrame
	}

	f := Frame{Energy: int(energy), Pitch: int(pitch)}
	if repeatBit != 0 {
		f.Kind = FrameRepeat
		return f, false, nil
	}

	widths := []int{5, 5, 4, 4}
	if pitch != 0 {
		f.Kind = FrameVoiced
		widths = append(widths, 4, 4, 4, 3, 3, 3)
	} else {
		f.Kind = FrameUnvoiced
	}
	for _, w := range widths {
		k, err := r.ReadBits(w)
		if err != nil {
			return Frame{}, false, ErrNoStopFrame
		}
		f.Coefficients = append(f.Coefficients, int(k))
	}
	return f, false, nil
}

// EncodeFrames packs frames back into bit-packed VSM frame data, the
// inverse of DecodeFrames, used by the speech ROM builder.
func EncodeFrames(frames []Frame) []byte {
	w := bitio.NewWriter()
	for _, f := range frames {
		switch f.Kind {
		case FrameSilence:
			w.WriteBits(0x00, 4)
		case FrameStop:
			w.WriteBits(0x0F, 4)
		case FrameRepeat:
			w.WriteBits(uint32(f.Energy), 4)
			w.WriteBits(1, 1)
			w.WriteBits(uint32(f.Pitch), 6)
		case FrameVoiced, FrameUnvoiced:
			w.WriteBits(uint32(f.Energy), 4)
			w.WriteBits(0, 1)
			w.WriteBits(uint32(f.Pitch), 6)
			widths := []int{5, 5, 4, 4}
			if f.Kind == FrameVoiced {
				widths = append(widths, 4, 4, 4, 3, 3, 3)
			}
			for i, width := range widths {
				if i < len(f.Coefficients) {
					w.WriteBits(uint32(f.Coefficients[i]), width)
				}
			}
		}
	}
	return w.Flush()
}
