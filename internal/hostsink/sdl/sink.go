// Package sdl is a reference host front end for the TI-99/4A core: it opens
// an SDL2 window that blits the VDP's framebuffer and an SDL2 audio device
// that queues the PSG's PCM output. No core package imports this one — it
// only consumes the small, self-contained interfaces below, the same
// separation the original project drew between its emulation core and its
// SDL-based front end.
package sdl

import (
	"fmt"
	"math"

	sdl "github.com/veandco/go-sdl2/sdl"
)

const (
	screenWidth   = 256
	screenHeight  = 192
	windowScale   = 3
	sampleRateHz  = 44100
	audioChannels = 1
)

// FrameSource supplies the most recently rendered VDP frame.
type FrameSource interface {
	FrameBuffer() []uint32
}

// AudioSource supplies the PCM samples produced by the most recent frame.
type AudioSource interface {
	AudioSamples() []float32
}

// Sink owns an SDL window/renderer/texture and an SDL audio device, and
// pushes one source's frame/audio output to the screen and speakers each
// time Present is called.
type Sink struct {
	window   *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture
	audioDev sdl.AudioDeviceID

	title string
}

// Open initializes SDL video and audio and creates a window sized to the
// VDP's 256x192 frame, scaled up for visibility.
func Open(title string) (*Sink, error) {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_AUDIO); err != nil {
		return nil, fmt.Errorf("hostsink/sdl: init: %w", err)
	}

	window, err := sdl.CreateWindow(
		title,
		sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
		screenWidth*windowScale, screenHeight*windowScale,
		sdl.WINDOW_SHOWN,
	)
	if err != nil {
		sdl.Quit()
		return nil, fmt.Errorf("hostsink/sdl: create window: %w", err)
	}

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
	if err != nil {
		window.Destroy()
		sdl.Quit()
		return nil, fmt.Errorf("hostsink/sdl: create renderer: %w", err)
	}

	texture, err := renderer.CreateTexture(sdl.PIXELFORMAT_RGB888, sdl.TEXTUREACCESS_STREAMING, screenWidth, screenHeight)
	if err != nil {
		renderer.Destroy()
		window.Destroy()
		sdl.Quit()
		return nil, fmt.Errorf("hostsink/sdl: create texture: %w", err)
	}

	audioSpec := sdl.AudioSpec{
		Freq:     sampleRateHz,
		Format:   sdl.AUDIO_F32,
		Channels: audioChannels,
		Samples:  1024,
	}
	audioDev, err := sdl.OpenAudioDevice("", false, &audioSpec, nil, 0)
	if err != nil {
		texture.Destroy()
		renderer.Destroy()
		window.Destroy()
		sdl.Quit()
		return nil, fmt.Errorf("hostsink/sdl: open audio device: %w", err)
	}
	sdl.PauseAudioDevice(audioDev, false)

	return &Sink{window: window, renderer: renderer, texture: texture, audioDev: audioDev, title: title}, nil
}

// Present blits src's current frame to the window and queues src's current
// frame of audio samples.
func (s *Sink) Present(frames FrameSource, audio AudioSource) error {
	pixels := frames.FrameBuffer()
	if len(pixels) != screenWidth*screenHeight {
		return fmt.Errorf("hostsink/sdl: unexpected framebuffer size %d", len(pixels))
	}
	if err := s.texture.Update(nil, pixelsToBytes(pixels), screenWidth*4); err != nil {
		return fmt.Errorf("hostsink/sdl: update texture: %w", err)
	}

	s.renderer.Clear()
	if err := s.renderer.Copy(s.texture, nil, nil); err != nil {
		return fmt.Errorf("hostsink/sdl: copy texture: %w", err)
	}
	s.renderer.Present()

	samples := audio.AudioSamples()
	if len(samples) > 0 {
		if err := sdl.QueueAudio(s.audioDev, float32SliceToBytes(samples)); err != nil {
			return fmt.Errorf("hostsink/sdl: queue audio: %w", err)
		}
	}
	return nil
}

// PollQuit drains the SDL event queue and reports whether a quit was
// requested (window close or Escape).
func (s *Sink) PollQuit() bool {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			return true
		case *sdl.KeyboardEvent:
			if e.Type == sdl.KEYDOWN && e.Keysym.Sym == sdl.K_ESCAPE {
				return true
			}
		}
	}
	return false
}

// Close tears down the audio device, renderer, texture, and window.
func (s *Sink) Close() {
	sdl.CloseAudioDevice(s.audioDev)
	s.texture.Destroy()
	s.renderer.Destroy()
	s.window.Destroy()
	sdl.Quit()
}

func pixelsToBytes(pixels []uint32) []byte {
	out := make([]byte, len(pixels)*4)
	for i, p := range pixels {
		out[i*4+0] = byte(p >> 16)
		out[i*4+1] = byte(p >> 8)
		out[i*4+2] = byte(p)
		out[i*4+3] = 0xFF
	}
	return out
}

func float32SliceToBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		bits := math.Float32bits(s)
		out[i*4+0] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	return out
}
