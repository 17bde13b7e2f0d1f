package mempool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type entry struct {
	a, b uint32
	pos  uint32
}

func TestAllocAcrossBlocks(t *testing.T) {
	p := New[entry](4)
	ptrs := make([]*entry, 0, 10)
	for i := 0; i < 10; i++ {
		e := p.Alloc()
		require.Zero(t, *e)
		e.pos = uint32(i)
		ptrs = append(ptrs, e)
	}
	require.Equal(t, 10, p.Len())
	require.Equal(t, 3, p.Blocks())

	// earlier entries stay valid after new blocks are added
	for i, e := range ptrs {
		require.Equal(t, uint32(i), e.pos)
	}
}

func TestReset(t *testing.T) {
	p := New[entry](2)
	p.Alloc()
	p.Alloc()
	p.Alloc()
	p.Reset()
	require.Zero(t, p.Len())
	require.Zero(t, p.Blocks())

	e := p.Alloc()
	require.Zero(t, *e)
	require.Equal(t, 1, p.Len())
}

func TestZeroBlockSize(t *testing.T) {
	p := New[entry](0)
	require.Equal(t, 1, p.BlockSize())
	p.Alloc()
	p.Alloc()
	require.Equal(t, 2, p.Blocks())
}
