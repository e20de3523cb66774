// Package psg implements the TMS9919 (a TI-branded SN76489 variant):
// 3 square-wave tone channels, 1 noise channel, and a shared 4-bit-per-
// channel volume attenuation scheme, driven entirely by single-byte writes
// through the console's sound port (the chip is write-only — there is no
// readable status). The noise LFSR uses the TI's bit-exact preset and
// feedback masks rather than a selectable Sega-style config, and tone
// register 0 divides as 1024 rather than 1 (the TI never special-cased the
// zero-frequency case the way some Sega consoles came to rely on).
package psg

import "math"

const (
	toneChannels = 3
	channels     = 4 // 3 tone + 1 noise

	toneZeroValue = 1024
	clockDivider  = 16

	// Bit-exact LFSR constants for the TI variant of the chip: the shift
	// register is logically wider than 16 bits to accommodate the
	// white-noise feedback mask's bit 16.
	lfsrPreset            = 0x0F35
	feedbackWhiteNoise    = 0x12000
	feedbackPeriodicNoise = 0x08000
)

// volumeTable converts a 4-bit attenuation code (0 = loudest, 15 = silent)
// to a linear amplitude, each step roughly -2dB, matching the chip's
// logarithmic attenuator.
var volumeTable [16]float32

func init() {
	for i := 0; i < 15; i++ {
		volumeTable[i] = float32(math.Pow(10, -2.0*float64(i)/20.0))
	}
	volumeTable[15] = 0
}

// PSG is the emulated TMS9919.
type PSG struct {
	toneReg     [toneChannels]uint16
	toneCounter [toneChannels]uint16
	toneOutput  [toneChannels]bool

	noiseReg     uint8
	noiseCounter uint16
	noiseShift   uint32
	noiseToggle  bool
	noiseOut     bool

	attenuation [channels]uint8 // 0-2 tone, 3 noise

	latchedChannel uint8
	latchedType    uint8 // 0 = tone/noise, 1 = volume

	clocksPerSample float64
	clockCounter    float64
	clockDivCounter int

	gain float32

	channelBuffers [channels][]float32
	mixBuffer      []float32
	bufferPos      int
}

// New creates a PSG clocked at clockFreq Hz, producing sampleRate audio
// samples per second into buffers holding bufferSize samples.
func New(clockFreq, sampleRate, bufferSize int) *PSG {
	p := &PSG{
		clocksPerSample: float64(clockFreq) / float64(sampleRate),
		gain:            0.25,
		mixBuffer:       make([]float32, bufferSize),
		noiseShift:      lfsrPreset,
	}
	for ch := range p.channelBuffers {
		p.channelBuffers[ch] = make([]float32, bufferSize)
	}
	p.Reset()
	return p
}

// Reset restores power-on defaults: all channels silent, LFSR reseeded.
func (p *PSG) Reset() {
	p.toneReg = [toneChannels]uint16{}
	p.toneCounter = [toneChannels]uint16{}
	p.toneOutput = [toneChannels]bool{}
	p.noiseReg = 0
	p.noiseCounter = 0
	p.noiseShift = lfsrPreset
	p.noiseToggle = false
	p.noiseOut = false
	for i := range p.attenuation {
		p.attenuation[i] = 0x0F
	}
	p.latchedChannel = 0
	p.latchedType = 0
	p.clockDivCounter = 0
	p.clockCounter = 0
	p.bufferPos = 0
}

// WritePort implements bus.Port for the sound write port (0x8400-0x87FF).
func (p *PSG) WritePort(value uint8) { p.Write(value) }

// ReadPort implements bus.Port; the TMS9919 has no read path.
func (p *PSG) ReadPort() uint8 { return 0xFF }

// Write decodes one byte of the chip's latch/data write protocol:
//
//	1 CC T DDDD  - LATCH byte: channel (0-2 tone, 3 noise), type (0=tone/noise, 1=volume)
//	0 X DDDDDD   - DATA byte: high 6 bits of the last-latched tone register
func (p *PSG) Write(value uint8) {
	if value&0x80 != 0 {
		p.latchedChannel = (value >> 5) & 0x03
		p.latchedType = (value >> 4) & 0x01
		data := value & 0x0F

		if p.latchedType == 1 {
			p.attenuation[p.latchedChannel] = data
			return
		}
		if p.latchedChannel < toneChannels {
			p.toneReg[p.latchedChannel] = (p.toneReg[p.latchedChannel] & 0x3F0) | uint16(data)
		} else {
			p.noiseReg = data & 0x07
			p.noiseShift = lfsrPreset
		}
		return
	}

	if p.latchedType != 0 {
		return
	}
	if p.latchedChannel < toneChannels {
		data := uint16(value & 0x3F)
		p.toneReg[p.latchedChannel] = (p.toneReg[p.latchedChannel] & 0x0F) | (data << 4)
	} else {
		p.noiseReg = value & 0x07
		p.noiseShift = lfsrPreset
	}
}

// Clock advances chip state by one input clock (the chip itself divides
// this by 16 internally).
func (p *PSG) Clock() {
	p.clockDivCounter++
	if p.clockDivCounter < clockDivider {
		return
	}
	p.clockDivCounter = 0

	for i := 0; i < toneChannels; i++ {
		if p.toneCounter[i] > 0 {
			p.toneCounter[i]--
			continue
		}
		if p.toneReg[i] == 0 {
			p.toneCounter[i] = toneZeroValue
		} else {
			p.toneCounter[i] = p.toneReg[i]
		}
		p.toneOutput[i] = !p.toneOutput[i]
	}

	if p.noiseCounter > 0 {
		p.noiseCounter--
		return
	}
	switch p.noiseReg & 0x03 {
	case 0:
		p.noiseCounter = 0x10
	case 1:
		p.noiseCounter = 0x20
	case 2:
		p.noiseCounter = 0x40
	case 3:
		if p.toneReg[2] == 0 {
			p.noiseCounter = toneZeroValue
		} else {
			p.noiseCounter = p.toneReg[2]
		}
	}

	p.noiseToggle = !p.noiseToggle
	if !p.noiseToggle {
		return
	}

	p.noiseOut = p.noiseShift&1 != 0
	feedbackMask := uint32(feedbackPeriodicNoise)
	if p.noiseReg&0x04 != 0 {
		feedbackMask = feedbackWhiteNoise
	}
	if p.noiseShift&1 != 0 {
		p.noiseShift ^= feedbackMask
	}
	p.noiseShift >>= 1
}

// GetVoiceState implements debug.PSGStateReader for voices 0-2 (tone) and 3 (noise).
func (p *PSG) GetVoiceState(voice int) (attenuation uint8, frequency uint16) {
	if voice < 0 || voice >= channels {
		return 0x0F, 0
	}
	if voice == 3 {
		return p.attenuation[3], uint16(p.noiseReg)
	}
	return p.attenuation[voice], p.toneReg[voice]
}

// ResetBuffer rewinds the sample buffer position to 0, for starting a new
// audio frame without reallocating.
func (p *PSG) ResetBuffer() { p.bufferPos = 0 }

// Run advances the chip clocks steps, accumulating samples into the
// per-channel buffers from the current position. Multiple Run calls can be
// interleaved with register writes within one frame for cycle accuracy.
// Returns the number of samples dropped due to buffer overflow.
func (p *PSG) Run(clocks int) int {
	dropped := 0
	for i := 0; i < clocks; i++ {
		p.Clock()
		p.clockCounter++
		if p.clockCounter < p.clocksPerSample {
			continue
		}
		p.clockCounter -= p.clocksPerSample

		if p.bufferPos >= len(p.mixBuffer) {
			dropped++
			continue
		}
		for ch := 0; ch < toneChannels; ch++ {
			if p.toneOutput[ch] {
				p.channelBuffers[ch][p.bufferPos] = volumeTable[p.attenuation[ch]]
			} else {
				p.channelBuffers[ch][p.bufferPos] = 0
			}
		}
		if p.noiseOut {
			p.channelBuffers[3][p.bufferPos] = volumeTable[p.attenuation[3]]
		} else {
			p.channelBuffers[3][p.bufferPos] = 0
		}
		p.bufferPos++
	}
	return dropped
}

// GenerateSamples resets the buffer then runs clocks input clocks,
// returning the number of samples dropped due to overflow.
func (p *PSG) GenerateSamples(clocks int) int {
	p.ResetBuffer()
	return p.Run(clocks)
}

// GetBuffer mixes the 4 per-channel buffers into a mono buffer with gain
// applied. The returned slice is reused across calls.
func (p *PSG) GetBuffer() ([]float32, int) {
	for i := 0; i < p.bufferPos; i++ {
		p.mixBuffer[i] = (p.channelBuffers[0][i] + p.channelBuffers[1][i] +
			p.channelBuffers[2][i] + p.channelBuffers[3][i]) * p.gain
	}
	return p.mixBuffer, p.bufferPos
}

// SetGain sets the gain applied to the mixed output (default 0.25).
func (p *PSG) SetGain(gain float32) { p.gain = gain }

// GetGain returns the current gain.
func (p *PSG) GetGain() float32 { return p.gain }
