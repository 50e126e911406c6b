package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPrefixCompressionFidelity is property P8 and spec.md §8 scenario 6:
// ["apple", "apply", "apricot"] yields reuse bytes 0, 4, 2.
func TestPrefixCompressionFidelity(t *testing.T) {
	terms := [][]byte{[]byte("apple"), []byte("apply"), []byte("apricot")}
	enc := &PrefixEncoder{}
	var reuses []byte
	frames := make([][]byte, len(terms))
	for i, term := range terms {
		f := enc.Next(term)
		frames[i] = f
		reuses = append(reuses, f[0])
	}
	assert.Equal(t, []byte{0, 4, 2}, reuses)

	dec := &PrefixDecoder{}
	for i, f := range frames {
		got, err := dec.Next(f)
		require.NoError(t, err)
		assert.Equal(t, terms[i], got)
	}
}

func TestPrefixCompressionBatched(t *testing.T) {
	terms := [][]byte{[]byte("alpha"), []byte("alphabet"), []byte("beta")}
	enc := &PrefixEncoder{Batched: true}
	dec := &PrefixDecoder{Batched: true}
	for _, term := range terms {
		f := enc.Next(term)
		got, err := dec.Next(f)
		require.NoError(t, err)
		assert.Equal(t, term, got)
	}
}

func TestPrefixCompressionCapAt255(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	longer := append(append([]byte{}, long...), 'b')

	enc := &PrefixEncoder{}
	_ = enc.Next(long)
	f := enc.Next(longer)
	assert.Equal(t, byte(255), f[0])
}
