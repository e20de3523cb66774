package rle

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripMixed(t *testing.T) {
	data := append(bytes.Repeat([]byte{0xFF}, 10), []byte("hello world")...)
	data = append(data, bytes.Repeat([]byte{0x00}, 6)...)

	encoded := Encode(data)
	decoded, err := Decode(encoded, len(data))
	require.NoError(t, err)
	require.Equal(t, data, decoded)
}

func TestRoundTripShortRunStaysLiteral(t *testing.T) {
	// A run of 3 is below minRun and must be folded into a literal span,
	// not encoded as its own run tag.
	data := []byte{1, 2, 2, 2, 3, 4}
	encoded := Encode(data)

	// Tag should be a single literal record covering all 6 bytes: 2-byte
	// big-endian tag (0x0006) + 6 literal bytes.
	require.Len(t, encoded, 8)
	require.Equal(t, byte(0x00), encoded[0])
	require.Equal(t, byte(0x06), encoded[1])

	decoded, err := Decode(encoded, len(data))
	require.NoError(t, err)
	require.Equal(t, data, decoded)
}

func TestRoundTripLongRunUsesRunTag(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 100)
	encoded := Encode(data)

	// 2-byte tag + 1 payload byte for a pure run.
	require.Equal(t, []byte{0x80, 0x64, 0xAB}, encoded)

	decoded, err := Decode(encoded, len(data))
	require.NoError(t, err)
	require.Equal(t, data, decoded)
}

func TestRoundTripEmpty(t *testing.T) {
	encoded := Encode(nil)
	require.Empty(t, encoded)

	decoded, err := Decode(encoded, 0)
	require.NoError(t, err)
	require.Empty(t, decoded)
}

func TestDecodeRejectsZeroLiteralTag(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x00}, 1)
	require.ErrorIs(t, err, ErrInvalidStream)
}

func TestDecodeRejectsTruncatedStream(t *testing.T) {
	_, err := Decode([]byte{0x00}, 1)
	require.ErrorIs(t, err, ErrInvalidStream)
}
