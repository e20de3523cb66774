package lzw

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, data []byte) []byte {
	t.Helper()

	var compressed []byte
	err := Encode(data, func(chunk []byte) bool {
		compressed = append(compressed, chunk...)
		return true
	})
	require.NoError(t, err)

	var decoded []byte
	err = Decode(compressed, func(chunk []byte) bool {
		decoded = append(decoded, chunk...)
		return true
	})
	require.NoError(t, err)

	return decoded
}

func TestRoundTripSimple(t *testing.T) {
	data := []byte("THE QUICK BROWN FOX JUMPS OVER THE LAZY DOG, THE QUICK BROWN FOX")
	require.Equal(t, data, roundTrip(t, data))
}

func TestRoundTripSingleByte(t *testing.T) {
	data := []byte{0x42}
	require.Equal(t, data, roundTrip(t, data))
}

func TestRoundTripRepeatedPastFirstFreeCode(t *testing.T) {
	// Grows the dictionary past codeFirstFree (258) with a repeated
	// two-symbol pattern. The few dozen entries it adds stay below 512, so
	// the code width stays at 9 bits; TestRoundTripAllByteValues crosses it.
	data := bytes.Repeat([]byte{'A', 'B'}, 400)
	require.Equal(t, data, roundTrip(t, data))
}

func TestRoundTripAllByteValues(t *testing.T) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	data = bytes.Repeat(data, 4)
	require.Equal(t, data, roundTrip(t, data))
}

func TestEncodeEmptyInput(t *testing.T) {
	err := Encode(nil, func([]byte) bool { return true })
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestDecodeInvalidStream(t *testing.T) {
	garbage := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	err := Decode(garbage, func([]byte) bool { return true })
	require.Error(t, err)
}

func TestDecodeSinkRejection(t *testing.T) {
	data := []byte("AAAA")
	var compressed []byte
	require.NoError(t, Encode(data, func(chunk []byte) bool {
		compressed = append(compressed, chunk...)
		return true
	}))

	err := Decode(compressed, func([]byte) bool { return false })
	require.Error(t, err)
}
