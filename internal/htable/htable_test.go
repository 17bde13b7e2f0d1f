package htable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnterFind(t *testing.T) {
	tb := New[int](4)

	v, inserted := tb.Enter(7, 70)
	require.True(t, inserted)
	require.Equal(t, 70, v)

	got, ok := tb.Find(7)
	require.True(t, ok)
	require.Equal(t, 70, got)

	_, ok = tb.Find(8)
	require.False(t, ok)
}

func TestEnterExistingKeepsFirst(t *testing.T) {
	tb := New[string](4)
	tb.Enter(1, "first")

	v, inserted := tb.Enter(1, "second")
	require.False(t, inserted)
	require.Equal(t, "first", v)
	require.Equal(t, 1, tb.Len())
}

func TestGrowPreservesEntries(t *testing.T) {
	tb := New[uint64](1)
	initial := tb.Slots()
	const n = 10000
	for i := uint64(0); i < n; i++ {
		_, inserted := tb.Enter(i<<32|(i*31), i)
		require.True(t, inserted)
	}
	require.Equal(t, n, tb.Len())
	require.Greater(t, tb.Slots(), initial)

	for i := uint64(0); i < n; i++ {
		v, ok := tb.Find(i<<32 | (i * 31))
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	lookups, probes := tb.Stats()
	require.GreaterOrEqual(t, probes, lookups)
}
