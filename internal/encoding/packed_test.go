package encoding

import (
	"testing"

	"github.com/CVDpl/go-lmtable/internal/common"
	"github.com/stretchr/testify/require"
)

func TestFieldLittleEndianLayout(t *testing.T) {
	buf := make([]byte, 8)
	require.NoError(t, WriteField(buf, 1, 3, 0x0A0B0C))
	require.Equal(t, []byte{0, 0x0C, 0x0B, 0x0A, 0, 0, 0, 0}, buf)

	v, err := ReadField(buf, 1, 3)
	require.NoError(t, err)
	require.Equal(t, uint32(0x0A0B0C), v)
}

func TestFieldWidths(t *testing.T) {
	for width := 1; width <= 4; width++ {
		buf := make([]byte, 6)
		max := MaxValue(width)
		require.NoError(t, WriteField(buf, 2, width, max))
		got, err := ReadField(buf, 2, width)
		require.NoError(t, err)
		require.Equal(t, max, got, "width %d", width)

		// neighbouring bytes are untouched
		require.Zero(t, buf[0])
		require.Zero(t, buf[1])
	}
}

func TestFieldNoSignExtension(t *testing.T) {
	buf := []byte{0xFF, 0xFF, 0xFF}
	v, err := ReadField(buf, 0, 3)
	require.NoError(t, err)
	require.Equal(t, uint32(0xFFFFFF), v)
}

func TestFieldBoundsChecked(t *testing.T) {
	buf := make([]byte, 4)

	_, err := ReadField(buf, 2, 3)
	require.ErrorIs(t, err, common.ErrShortBuffer)

	err = WriteField(buf, -1, 2, 1)
	require.ErrorIs(t, err, common.ErrShortBuffer)

	_, err = ReadField(buf, 0, 5)
	require.ErrorIs(t, err, common.ErrBadWidth)

	err = WriteField(buf, 0, 1, 256)
	require.ErrorIs(t, err, common.ErrBadWidth)
}

func TestFieldAccessor(t *testing.T) {
	rec := make([]byte, 12)
	word := Field{Offset: 0, Width: 3}
	prob := Field{Offset: 3, Width: 4}
	bound := Field{Offset: 8, Width: 4}

	word.Put(rec, 70000)
	prob.Put(rec, 0xDEADBEEF)
	bound.Put(rec, 42)

	require.Equal(t, uint32(70000), word.Get(rec))
	require.Equal(t, uint32(0xDEADBEEF), prob.Get(rec))
	require.Equal(t, uint32(42), bound.Get(rec))
	require.Equal(t, 12, bound.End())
}
