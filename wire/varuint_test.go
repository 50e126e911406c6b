package wire

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEncodeLiterals checks the literal byte sequences from spec.md §8
// scenario 1.
func TestEncodeLiterals(t *testing.T) {
	cases := []struct {
		n    uint64
		want []byte
	}{
		{0, []byte{0x00}},
		{254, []byte{0xfe}},
		{255, []byte{0xff, 0x80}},
		{256, []byte{0xff, 0x01, 0x80}},
		{382, []byte{0xff, 0x7f, 0x80}},
		{383, []byte{0xff, 0x00, 0x01, 0x80}},
	}
	for _, c := range cases {
		got := EncodeVarUint(nil, c.n)
		assert.Equalf(t, c.want, got, "encode(%d)", c.n)
	}
}

// TestVarUintRoundTrip is property P1: for all n, decode(encode(n)) == n,
// and encode produces at most MaxVarUintLen bytes.
func TestVarUintRoundTrip(t *testing.T) {
	samples := []uint64{
		0, 1, 254, 255, 256, 382, 383, 1000, 1 << 16, 1 << 32,
		math.MaxUint32, math.MaxInt64, math.MaxUint64, math.MaxUint64 - 1,
	}
	for _, n := range samples {
		enc := EncodeVarUint(nil, n)
		require.LessOrEqualf(t, len(enc), MaxVarUintLen, "n=%d", n)
		got, pos, err := DecodeVarUint(enc, 0)
		require.NoError(t, err)
		assert.Equal(t, len(enc), pos)
		assert.Equalf(t, n, got, "n=%d enc=%v", n, enc)
	}
}

// TestStringRoundTrip is property P2.
func TestStringRoundTrip(t *testing.T) {
	samples := [][]byte{
		nil, []byte(""), []byte("a"), []byte("apple"),
		make([]byte, 1000),
	}
	for _, s := range samples {
		enc := EncodeString(nil, s)
		got, pos, err := DecodeString(enc, 0, true)
		require.NoError(t, err)
		assert.Equal(t, len(enc), pos)
		if len(s) == 0 {
			assert.Empty(t, got)
		} else {
			assert.Equal(t, s, got)
		}
	}
}

func TestDecodeTruncated(t *testing.T) {
	_, pos, err := DecodeVarUint([]byte{0xff, 0x01}, 0)
	require.Error(t, err)
	assert.Equal(t, 0, pos)
}

func TestDecodeStringNeedsMoreBytes(t *testing.T) {
	_, _, err := DecodeString([]byte{0x05, 'a', 'b'}, 0, true)
	require.Error(t, err)
}
