package lmtable

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrainCodebookFewValues(t *testing.T) {
	got := TrainCodebook([]float32{-1, -3, -1, -2}, 8)
	assert.Equal(t, []float32{-3, -2, -1}, got)

	assert.Equal(t, []float32{0}, TrainCodebook(nil, 8))
}

func TestTrainCodebookBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	values := make([]float32, 5000)
	for i := range values {
		values[i] = -rng.Float32() * 7
	}
	centers := TrainCodebook(values, 16)
	require.LessOrEqual(t, len(centers), 16)
	require.True(t, sort.SliceIsSorted(centers, func(i, j int) bool { return centers[i] < centers[j] }))

	cb := &Codebook{Prob: centers}
	for _, v := range values[:200] {
		c := cb.ResolveProb(cb.nearestProb(v))
		// uniform data over 7 units with 16 centers
		assert.InDelta(t, v, c, 0.5)
	}
}

func TestCodebookResolvePanicsOutOfRange(t *testing.T) {
	cb := &Codebook{Prob: []float32{-1, -2}, Backoff: []float32{0}}
	assert.Equal(t, float32(-2), cb.ResolveProb(1))
	assert.Equal(t, float32(0), cb.ResolveBackoff(0))
	assert.Panics(t, func() { cb.ResolveProb(2) })
	assert.Panics(t, func() { cb.ResolveBackoff(1) })
}

func TestLayoutSizes(t *testing.T) {
	cases := []struct {
		typ  NodeType
		size int
	}{
		{Internal, 3 + 4 + 4 + 4},
		{QInternal, 3 + 1 + 1 + 4},
		{Leaf, 3 + 4},
		{QLeaf, 3 + 1},
	}
	for _, tc := range cases {
		t.Run(tc.typ.String(), func(t *testing.T) {
			lay := NewLayout(tc.typ, 3)
			assert.Equal(t, tc.size, lay.Size)
			assert.Equal(t, tc.size, RecordSize(tc.typ, 3))
			assert.Equal(t, 0, lay.Word.Offset)
			assert.Equal(t, 3, lay.Prob.Offset)
			assert.Equal(t, !tc.typ.IsLeaf(), lay.HasChildren())
		})
	}
}

func TestLevelTypes(t *testing.T) {
	assert.Equal(t, []NodeType{Leaf}, levelTypes(1, false)[1:])
	assert.Equal(t, []NodeType{QInternal, QInternal, QLeaf}, levelTypes(3, true)[1:])
}
