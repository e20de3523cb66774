package psg

import "testing"

func TestWriteLatchesToneRegisterLowBits(t *testing.T) {
	p := New(3579545, 44100, 1024)
	p.Write(0x8E) // 1 00 0 1110: channel 0, tone, low 4 bits = 0xE
	if p.toneReg[0] != 0x00E {
		t.Fatalf("toneReg[0] = %#03x, want 0x00E", p.toneReg[0])
	}
	p.Write(0x05) // data byte, high 6 bits = 0x05
	if p.toneReg[0] != 0x05E {
		t.Fatalf("toneReg[0] = %#03x, want 0x05E", p.toneReg[0])
	}
}

func TestWriteLatchesVolume(t *testing.T) {
	p := New(3579545, 44100, 1024)
	p.Write(0x90 | 0x05) // 1 00 1 0101: channel 0, volume, attenuation 5
	if p.attenuation[0] != 5 {
		t.Fatalf("attenuation[0] = %d, want 5", p.attenuation[0])
	}
}

func TestGetVoiceStateReturnsToneAndNoise(t *testing.T) {
	p := New(3579545, 44100, 1024)
	p.Write(0x8A) // channel 0 tone low = 0xA
	p.Write(0x01) // high bits = 0x01
	p.Write(0x90) // channel 0 volume = 0

	att, freq := p.GetVoiceState(0)
	if att != 0 || freq != 0x01A {
		t.Fatalf("GetVoiceState(0) = (%d, %#03x), want (0, 0x01A)", att, freq)
	}

	p.Write(0xE4) // channel 3 (noise), type 0, data 0x04 (white noise, /32)
	_, noiseFreq := p.GetVoiceState(3)
	if noiseFreq != 0x04 {
		t.Fatalf("GetVoiceState(3) frequency = %#x, want 0x04", noiseFreq)
	}
}

func TestResetSilencesAllChannels(t *testing.T) {
	p := New(3579545, 44100, 1024)
	p.Write(0x90) // channel 0 volume 0 (loud)
	p.Reset()
	for ch := 0; ch < channels; ch++ {
		att, _ := p.GetVoiceState(ch)
		if att != 0x0F {
			t.Fatalf("channel %d attenuation after reset = %d, want 0x0F (silent)", ch, att)
		}
	}
}

func TestToneOutputTogglesAtHalfPeriod(t *testing.T) {
	p := New(16, 1, 1024) // 16 clocks per internal tick, 1 sample per run
	p.Write(0x80)         // channel 0 tone low = 0
	p.Write(0x01)         // high bits = 1 -> toneReg[0] = 0x010 = 16
	p.Write(0x90)         // channel 0 full volume (attenuation 0)

	toggles := 0
	last := p.toneOutput[0]
	for i := 0; i < 16*16*4; i++ {
		p.Clock()
		if p.toneOutput[0] != last {
			toggles++
			last = p.toneOutput[0]
		}
	}
	if toggles == 0 {
		t.Fatalf("expected tone output to toggle, got 0 toggles")
	}
}

func TestGenerateSamplesProducesNonZeroOutputWhenUnmuted(t *testing.T) {
	p := New(3579545, 44100, 64)
	p.Write(0x80) // tone low 0
	p.Write(0x00) // tone high 0 -> toneReg = 0, treated as toneZeroValue (1024)
	p.Write(0x90) // full volume

	dropped := p.GenerateSamples(4096)
	if dropped != 0 {
		t.Fatalf("GenerateSamples dropped %d samples unexpectedly", dropped)
	}
	buf, n := p.GetBuffer()
	if n == 0 {
		t.Fatalf("expected samples to be produced")
	}
	nonZero := false
	for i := 0; i < n; i++ {
		if buf[i] != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Fatalf("expected some non-zero samples with channel unmuted")
	}
}

func TestWritePortAndReadPortSatisfyBusPort(t *testing.T) {
	p := New(3579545, 44100, 1024)
	p.WritePort(0x9F) // channel 3 (noise) volume silent
	if att, _ := p.GetVoiceState(3); att != 0x0F {
		t.Fatalf("attenuation = %d, want 0x0F", att)
	}
	if p.ReadPort() != 0xFF {
		t.Fatalf("ReadPort() should return 0xFF (write-only chip)")
	}
}
