package varint

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacking(t *testing.T) {
	t.Parallel()

	for _, n := range []uint64{0, 1, 127, 128, 300, 1 << 32, 1<<64 - 1} {
		packed := Pack64(n)
		unpacked, read, err := Unpack64(packed)
		require.NoError(t, err)
		assert.Equal(t, n, unpacked)
		assert.Equal(t, len(packed), read)
	}

	_, _, err := Unpack8(Pack64(256))
	var exceeded *ValueExceededError
	assert.True(t, errors.As(err, &exceeded), "256 must not fit into uint8")

	_, _, err = Unpack64(nil)
	assert.ErrorIs(t, err, ErrBufEmpty)
}

func TestBlocks(t *testing.T) {
	t.Parallel()

	data := append(PrependLength([]byte("header")), []byte("rest")...)
	block, n, err := GetNextBlock(data)
	require.NoError(t, err)
	assert.Equal(t, "header", string(block))
	assert.Equal(t, "rest", string(data[n:]))

	_, _, err = GetNextBlock([]byte{10, 1, 2})
	assert.ErrorIs(t, err, ErrBufTooSmall)
}
