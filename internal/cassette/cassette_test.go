package cassette

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func byteBits(b byte) []int {
	bits := make([]int, 8)
	for i := 0; i < 8; i++ {
		bits[i] = int((b >> (7 - i)) & 1)
	}
	return bits
}

func zeros(n int) []int {
	return make([]int, n)
}

func ones(n int) []int {
	bits := make([]int, n)
	for i := range bits {
		bits[i] = 1
	}
	return bits
}

func appendChunk(bits []int, data [64]byte) []int {
	bits = append(bits, zeros(8)...)
	bits = append(bits, ones(8)...)
	sum := 0
	for _, b := range data {
		bits = append(bits, byteBits(b)...)
		sum += int(b)
	}
	bits = append(bits, byteBits(byte(sum))...)
	return bits
}

func buildRecordedBits(records [][64]byte) []int {
	var bits []int
	bits = append(bits, zeros(0x300)...)
	bits = append(bits, ones(8)...)
	bits = append(bits, byteBits(byte(len(records)))...)
	bits = append(bits, byteBits(byte(len(records)))...)
	for _, rec := range records {
		bits = appendChunk(bits, rec)
		bits = appendChunk(bits, rec)
	}
	return bits
}

func TestDecodeTrackRecoversTwoCleanRecords(t *testing.T) {
	var rec1, rec2 [64]byte
	for i := range rec1 {
		rec1[i] = byte(i)
		rec2[i] = byte(255 - i)
	}

	bits := buildRecordedBits([][64]byte{rec1, rec2})
	chunks, err := DecodeTrack(bits)
	if err != nil {
		t.Fatalf("DecodeTrack() error = %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("len(chunks) = %d, want 2", len(chunks))
	}
	if chunks[0].Data != rec1 || chunks[1].Data != rec2 {
		t.Fatalf("decoded data mismatch")
	}
	if chunks[0].Status != '.' || chunks[1].Status != '.' {
		t.Fatalf("status = %q, %q, want clean", chunks[0].Status, chunks[1].Status)
	}
	if Progress(chunks) != ".." {
		t.Fatalf("Progress() = %q, want \"..\"", Progress(chunks))
	}

	flat := Flatten(chunks)
	want := append(append([]byte{}, rec1[:]...), rec2[:]...)
	if !bytes.Equal(flat, want) {
		t.Fatalf("Flatten() mismatch")
	}
}

func TestDecodeTrackFallsBackToSecondaryCopy(t *testing.T) {
	var rec [64]byte
	for i := range rec {
		rec[i] = byte(i * 3)
	}

	bits := buildRecordedBits([][64]byte{rec})

	// Corrupt the first copy's checksum byte so the primary copy fails and
	// the demod must fall back to the second copy.
	firstChecksumStart := 0x300 + 8 + 8 + 8 + 8 + 8 + 8*64
	for i := 0; i < 8; i++ {
		bits[firstChecksumStart+i] ^= 1
	}

	chunks, err := DecodeTrack(bits)
	if err != nil {
		t.Fatalf("DecodeTrack() error = %v", err)
	}
	if chunks[0].Data != rec {
		t.Fatalf("expected secondary copy to recover correct data")
	}
}

func TestDecodeTrackErrorsWithoutHeader(t *testing.T) {
	_, err := DecodeTrack(zeros(10))
	if err == nil {
		t.Fatalf("expected error when no header is present")
	}
}

func TestDecodeTrackErrorsOnMismatchedCounts(t *testing.T) {
	var bits []int
	bits = append(bits, zeros(0x300)...)
	bits = append(bits, ones(8)...)
	bits = append(bits, byteBits(1)...)
	bits = append(bits, byteBits(2)...)

	_, err := DecodeTrack(bits)
	if err == nil {
		t.Fatalf("expected error on mismatched record counts")
	}
}

func writeWAV(t *testing.T, channels, bitsPerSample int, sampleRate int, samples []int) []byte {
	t.Helper()
	blockAlign := channels * bitsPerSample / 8
	dataBytes := len(samples) * bitsPerSample / 8

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(4+8+16+8+dataBytes))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(waveFormatPCM))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataBytes))
	for _, s := range samples {
		switch bitsPerSample {
		case 8:
			buf.WriteByte(byte(s + 0x80))
		case 16:
			binary.Write(&buf, binary.LittleEndian, int16(s))
		}
	}
	return buf.Bytes()
}

func TestLoadParsesMono8BitWAV(t *testing.T) {
	samples := []int{-10, 0, 10, 20, -20}
	data := writeWAV(t, 1, 8, 44100, samples)

	tape, err := Load(data)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if tape.Format.Channels != 1 || tape.Format.SampleRate != 44100 || tape.Format.BitsPerSample != 8 {
		t.Fatalf("Format = %+v, unexpected", tape.Format)
	}
	if len(tape.Samples()) != len(samples) {
		t.Fatalf("len(Samples()) = %d, want %d", len(tape.Samples()), len(samples))
	}
	for i, s := range samples {
		if tape.Samples()[i] != s {
			t.Fatalf("sample %d = %d, want %d", i, tape.Samples()[i], s)
		}
	}
}

func TestLoadParsesStereo16BitWAVUsingFirstChannel(t *testing.T) {
	// Two channels interleaved; decodeSamples should step by BlockAlign and
	// only read the first channel's value.
	samples := []int{1000, -1000, 2000, -2000}
	data := writeWAV(t, 2, 16, 22050, samples)

	tape, err := Load(data)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(tape.Samples()) != 2 {
		t.Fatalf("len(Samples()) = %d, want 2 (first channel only)", len(tape.Samples()))
	}
	if tape.Samples()[0] != 1000 || tape.Samples()[1] != 2000 {
		t.Fatalf("Samples() = %v, want first-channel values", tape.Samples())
	}
}

func TestLoadRejectsNonRIFF(t *testing.T) {
	if _, err := Load([]byte("not a wav file")); err != ErrNotRIFF {
		t.Fatalf("Load() error = %v, want ErrNotRIFF", err)
	}
}

func TestLoadRejectsMissingDataChunk(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(4+8+16))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(waveFormatPCM))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(44100))
	binary.Write(&buf, binary.LittleEndian, uint32(44100))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(8))

	if _, err := Load(buf.Bytes()); err != ErrNoDataChunk {
		t.Fatalf("Load() error = %v, want ErrNoDataChunk", err)
	}
}
