package lmtable

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenarioTable holds a=1, b=2 and the bigram (a b); </s>=3 is unknown.
func scenarioTable(t *testing.T) *Table {
	t.Helper()
	tb, err := New(Config{MaxLevel: 2, Capacities: []int{2, 1}, Options: testOptions()})
	require.NoError(t, err)
	_, err = tb.Insert([]uint32{1}, -1.0, -0.1)
	require.NoError(t, err)
	_, err = tb.Insert([]uint32{2}, -1.2, -0.2)
	require.NoError(t, err)
	n, err := tb.Insert([]uint32{1, 2}, -0.5, 0)
	require.NoError(t, err)
	require.Equal(t, Node{Level: 2, Pos: 0}, n)
	require.NoError(t, tb.Finalize())
	return tb
}

func TestFindFullBigramMatch(t *testing.T) {
	tb := scenarioTable(t)

	m := tb.Find([]uint32{1, 2})
	require.True(t, m.Complete())
	require.Equal(t, 2, m.Level())
	assert.Equal(t, float64(float32(-0.5)), tb.LogProb(m.Node))

	s := tb.Score([]uint32{1, 2})
	assert.Equal(t, float64(float32(-0.5)), s.LogProb)
	assert.Equal(t, 2, s.MatchedOrder)
	assert.False(t, s.BackedOff)
}

func TestFindPartialMatch(t *testing.T) {
	tb := scenarioTable(t)

	m := tb.Find([]uint32{1, 99})
	require.False(t, m.Complete())
	require.Equal(t, 1, m.Level())
	assert.Equal(t, float64(float32(-0.1)), tb.Backoff(m.Node))

	m = tb.Find([]uint32{99, 1})
	assert.Equal(t, 0, m.Level())
	assert.True(t, m.Node.IsRoot())
}

func TestScoreBackoff(t *testing.T) {
	tb := scenarioTable(t)

	// (b a) is absent: bow(b) + p(a)
	s := tb.Score([]uint32{2, 1})
	assert.True(t, s.BackedOff)
	assert.Equal(t, 1, s.MatchedOrder)
	assert.InDelta(t, float64(float32(-0.2))+float64(float32(-1.0)), s.LogProb, 1e-12)

	// unknown predicted word falls to the floor after the context back-off
	s = tb.Score([]uint32{1, 3})
	assert.Equal(t, 0, s.MatchedOrder)
	assert.InDelta(t, float64(float32(-0.1))+LogProbFloor, s.LogProb, 1e-12)

	// unknown context contributes no back-off
	s = tb.Score([]uint32{3, 2})
	assert.InDelta(t, float64(float32(-1.2)), s.LogProb, 1e-12)

	assert.InDelta(t, math.Pow(10, float64(float32(-0.5))), tb.Probability([]uint32{1, 2}), 1e-9)
}

func TestChildlessParentHasEmptyRange(t *testing.T) {
	tb := scenarioTable(t)

	lo, hi := tb.ChildRange(Node{Level: 1, Pos: 0})
	assert.Equal(t, 0, lo)
	assert.Equal(t, 1, hi)

	lo, hi = tb.ChildRange(Node{Level: 1, Pos: 1})
	assert.Equal(t, lo, hi)

	lo, hi = tb.ChildRange(Node{Level: 2, Pos: 0})
	assert.Equal(t, 0, lo+hi)
}

func TestInsertErrors(t *testing.T) {
	fresh := func() *Table {
		tb, err := New(Config{MaxLevel: 3, Capacities: []int{3, 3, 3}})
		require.NoError(t, err)
		return tb
	}

	t.Run("word order", func(t *testing.T) {
		tb := fresh()
		_, err := tb.Insert([]uint32{5}, -1, 0)
		require.NoError(t, err)
		_, err = tb.Insert([]uint32{4}, -1, 0)
		require.ErrorIs(t, err, ErrOutOfOrder)
		_, err = tb.Insert([]uint32{5}, -1, 0)
		require.ErrorIs(t, err, ErrOutOfOrder)
	})

	t.Run("skipped level", func(t *testing.T) {
		tb := fresh()
		_, err := tb.Insert([]uint32{1}, -1, 0)
		require.NoError(t, err)
		_, err = tb.Insert([]uint32{1, 1, 1}, -1, 0)
		require.ErrorIs(t, err, ErrOutOfOrder)
	})

	t.Run("sealed level", func(t *testing.T) {
		tb := fresh()
		_, err := tb.Insert([]uint32{1}, -1, 0)
		require.NoError(t, err)
		_, err = tb.Insert([]uint32{1, 2}, -1, 0)
		require.NoError(t, err)
		_, err = tb.Insert([]uint32{2}, -1, 0)
		require.ErrorIs(t, err, ErrLevelSealed)
	})

	t.Run("missing parent", func(t *testing.T) {
		tb := fresh()
		_, err := tb.Insert([]uint32{1}, -1, 0)
		require.NoError(t, err)
		_, err = tb.Insert([]uint32{7, 2}, -1, 0)
		require.ErrorIs(t, err, ErrMissingParent)
	})

	t.Run("parent order", func(t *testing.T) {
		tb := fresh()
		for _, w := range []uint32{1, 2} {
			_, err := tb.Insert([]uint32{w}, -1, 0)
			require.NoError(t, err)
		}
		_, err := tb.Insert([]uint32{2, 1}, -1, 0)
		require.NoError(t, err)
		_, err = tb.Insert([]uint32{1, 9}, -1, 0)
		require.ErrorIs(t, err, ErrOutOfOrder)
	})

	t.Run("capacity", func(t *testing.T) {
		tb := fresh()
		for _, w := range []uint32{1, 2, 3} {
			_, err := tb.Insert([]uint32{w}, -1, 0)
			require.NoError(t, err)
		}
		_, err := tb.Insert([]uint32{4}, -1, 0)
		require.ErrorIs(t, err, ErrCapacity)
	})

	t.Run("bad ngram", func(t *testing.T) {
		tb := fresh()
		_, err := tb.Insert(nil, -1, 0)
		require.ErrorIs(t, err, ErrBadNgram)
		_, err = tb.Insert([]uint32{1, 2, 3, 4}, -1, 0)
		require.ErrorIs(t, err, ErrBadNgram)
		_, err = tb.Insert([]uint32{1 << 24}, -1, 0)
		require.ErrorIs(t, err, ErrBadNgram)
	})

	t.Run("finalized", func(t *testing.T) {
		tb := fresh()
		require.NoError(t, tb.Finalize())
		_, err := tb.Insert([]uint32{1}, -1, 0)
		require.ErrorIs(t, err, ErrFinalized)
	})

	t.Run("codebook", func(t *testing.T) {
		tb, err := New(Config{MaxLevel: 2, Quantized: true, Capacities: []int{1, 1}})
		require.NoError(t, err)
		_, err = tb.Insert([]uint32{1}, -1, 0)
		require.ErrorIs(t, err, ErrNoCodebook)
		require.ErrorIs(t, tb.SetCodebook(2, &Codebook{Prob: []float32{-1}, Backoff: []float32{0}}), ErrCorrupt)
		require.ErrorIs(t, tb.Finalize(), ErrNoCodebook)
	})
}

func TestFindIdempotent(t *testing.T) {
	levels := genCorpus(1, 30, 3)
	tb := buildTable(t, levels, false, testOptions(), nil)

	for _, q := range queries(levels, 30, 2) {
		a := tb.Find(q)
		b := tb.Find(q)
		require.Equal(t, a, b, "query %v", q)
		require.Equal(t, tb.find(q, false), a, "query %v", q)
	}
	for _, lv := range levels {
		for _, g := range lv {
			m := tb.Find(g.ids)
			require.True(t, m.Complete(), "stored %v", g.ids)
			assert.Equal(t, float64(g.prob), tb.LogProb(m.Node))
			if m.Level() < tb.MaxLevel() {
				assert.Equal(t, float64(g.bow), tb.Backoff(m.Node))
			}
		}
	}
	st := tb.Stats()
	assert.Greater(t, st.CacheHits, uint64(0))
	assert.Greater(t, st.CacheResets, uint64(0))
}

func TestFindCapsAtMaxLevel(t *testing.T) {
	levels := genCorpus(3, 10, 2)
	tb := buildTable(t, levels, false, nil, nil)

	ng := append(append([]uint32{}, levels[1][0].ids...), 1)
	m := tb.Find(ng)
	assert.Equal(t, 2, m.Level())
	assert.False(t, m.Complete())
}

func TestScanSorted(t *testing.T) {
	levels := genCorpus(4, 25, 3)
	tb := buildTable(t, levels, false, nil, nil)

	seen := make([]int, tb.MaxLevel()+1)
	var walk func(parent Node)
	walk = func(parent Node) {
		var prev int64 = -1
		for c := tb.Children(parent); c.Next(); {
			require.Greater(t, int64(c.Word()), prev)
			prev = int64(c.Word())
			seen[c.Level()]++
			walk(c.Node())
		}
	}
	walk(Node{})
	for l := 1; l <= tb.MaxLevel(); l++ {
		assert.Equal(t, tb.Count(l), seen[l], "level %d", l)
	}

	g := levels[1][0]
	c, err := tb.Scan(g.ids)
	require.NoError(t, err)
	var got []uint32
	for c.Next() {
		got = append(got, c.Word())
		require.True(t, tb.Find(append(append([]uint32{}, g.ids...), c.Word())).Complete())
	}
	var want []uint32
	for _, h := range levels[2] {
		if h.ids[0] == g.ids[0] && h.ids[1] == g.ids[1] {
			want = append(want, h.ids[2])
		}
	}
	assert.Equal(t, want, got)

	_, err = tb.Scan([]uint32{99, 99})
	require.ErrorIs(t, err, ErrMissingParent)
	_, err = tb.Scan([]uint32{1, 2, 3})
	require.ErrorIs(t, err, ErrBadNgram)
}

func TestQuantizedAgreesOnMatchedLevels(t *testing.T) {
	levels := genCorpus(5, 30, 3)
	plain := buildTable(t, levels, false, nil, nil)
	quant := buildTable(t, levels, true, nil, nil)

	for l := 1; l <= 3; l++ {
		assert.Less(t, quant.Layout(l).Size, plain.Layout(l).Size)
	}
	for _, q := range queries(levels, 30, 6) {
		mp, mq := plain.Find(q), quant.Find(q)
		require.Equal(t, mp, mq, "query %v", q)
		if !mp.Complete() {
			continue
		}
		cb := quant.Codebook(mq.Level())
		want := float64(cb.Prob[cb.nearestProb(float32(plain.LogProb(mp.Node)))])
		assert.Equal(t, want, quant.LogProb(mq.Node))
	}
}

func TestLongestSuffix(t *testing.T) {
	tb := scenarioTable(t)
	assert.Equal(t, []uint32{1, 2}, tb.LongestSuffix([]uint32{7, 1, 2}))
	assert.Equal(t, []uint32{2}, tb.LongestSuffix([]uint32{2, 2}))
	assert.Nil(t, tb.LongestSuffix([]uint32{3}))
}

func TestClose(t *testing.T) {
	tb := scenarioTable(t)
	require.NoError(t, tb.Close())
	require.NoError(t, tb.Close())
	_, err := tb.Insert([]uint32{1}, 0, 0)
	require.True(t, errors.Is(err, ErrClosed))
}
