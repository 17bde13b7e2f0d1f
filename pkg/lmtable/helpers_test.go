package lmtable

import (
	"bytes"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

type gram struct {
	ids  []uint32
	prob float32
	bow  float32
}

// genCorpus returns a prefix-closed n-gram set over words 0..vocab-1, each
// level sorted lexicographically.
func genCorpus(seed int64, vocab, order int) [][]gram {
	rng := rand.New(rand.NewSource(seed))
	levels := make([][]gram, order)
	for w := 0; w < vocab; w++ {
		levels[0] = append(levels[0], gram{
			ids:  []uint32{uint32(w)},
			prob: -rng.Float32() * 6,
			bow:  -rng.Float32(),
		})
	}
	for l := 1; l < order; l++ {
		for _, p := range levels[l-1] {
			for w := 0; w < vocab; w++ {
				if rng.Intn(4) != 0 {
					continue
				}
				g := gram{ids: append(slices.Clone(p.ids), uint32(w)), prob: -rng.Float32() * 4}
				if l < order-1 {
					g.bow = -rng.Float32()
				}
				levels[l] = append(levels[l], g)
			}
		}
	}
	return levels
}

func trainBooks(levels [][]gram) []*Codebook {
	books := make([]*Codebook, len(levels)+1)
	for l := 1; l <= len(levels); l++ {
		var probs, bows []float32
		for _, g := range levels[l-1] {
			probs = append(probs, g.prob)
			bows = append(bows, g.bow)
		}
		books[l] = &Codebook{Prob: TrainCodebook(probs, 256)}
		if l < len(levels) {
			books[l].Backoff = TrainCodebook(bows, 256)
		}
	}
	return books
}

// buildTable inserts levels into a new finalized table. Quantized tables use
// books, trained from levels when nil.
func buildTable(t testing.TB, levels [][]gram, quantized bool, opts *Options, books []*Codebook) *Table {
	t.Helper()
	caps := make([]int, len(levels))
	for i, l := range levels {
		caps[i] = len(l)
	}
	tb, err := New(Config{MaxLevel: len(levels), Quantized: quantized, Capacities: caps, Options: opts})
	require.NoError(t, err)
	if quantized {
		if books == nil {
			books = trainBooks(levels)
		}
		for l := 1; l <= len(levels); l++ {
			require.NoError(t, tb.SetCodebook(l, books[l]))
		}
	}
	for _, lv := range levels {
		for _, g := range lv {
			_, err := tb.Insert(g.ids, g.prob, g.bow)
			require.NoError(t, err, "insert %v", g.ids)
		}
	}
	require.NoError(t, tb.Finalize())
	return tb
}

func tableBytes(t testing.TB, tb *Table) []byte {
	t.Helper()
	var buf bytes.Buffer
	n, err := tb.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)
	return buf.Bytes()
}

// queries returns every stored n-gram plus random n-grams that may or may
// not be stored, some with out-of-vocabulary words.
func queries(levels [][]gram, vocab int, seed int64) [][]uint32 {
	var out [][]uint32
	for _, lv := range levels {
		for _, g := range lv {
			out = append(out, g.ids)
		}
	}
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(len(levels)+1)
		q := make([]uint32, n)
		for j := range q {
			q[j] = uint32(rng.Intn(vocab + 3))
		}
		out = append(out, q)
	}
	return out
}

func testOptions() *Options {
	opts := DefaultOptions()
	opts.BigramCacheEntries = 64
	return opts
}
