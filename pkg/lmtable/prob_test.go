package lmtable

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomSentences(n, vocab int, seed int64) [][]uint32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]uint32, n)
	for i := range out {
		s := make([]uint32, 2+rng.Intn(12))
		for j := range s {
			s[j] = uint32(rng.Intn(vocab + 2))
		}
		out[i] = s
	}
	return out
}

func TestScoreBatchMatchesSerial(t *testing.T) {
	levels := genCorpus(41, 30, 3)
	opts := testOptions()
	opts.BigramBloomFPR = 0.01
	tb := buildTable(t, levels, false, opts, nil)
	sentences := randomSentences(300, 30, 42)

	got, err := tb.ScoreBatch(context.Background(), sentences, 8)
	require.NoError(t, err)
	require.Len(t, got, len(sentences))
	for i, s := range sentences {
		assert.Equal(t, tb.ScoreSentence(s), got[i], "sentence %d", i)
	}
}

func TestScoreBatchRequiresFinalized(t *testing.T) {
	tb, err := New(Config{MaxLevel: 1, Capacities: []int{1}})
	require.NoError(t, err)
	_, err = tb.ScoreBatch(context.Background(), nil, 1)
	require.ErrorIs(t, err, ErrNotFinalized)
}

func TestScoreBatchCanceled(t *testing.T) {
	tb := scenarioTable(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tb.ScoreBatch(ctx, randomSentences(10, 3, 1), 2)
	require.ErrorIs(t, err, context.Canceled)
}

func TestScoreSentenceUsesOrderWindow(t *testing.T) {
	tb := scenarioTable(t)
	// only the last two words condition each prediction
	a := tb.ScoreSentence([]uint32{9, 9, 1, 2})
	b := tb.ScoreSentence([]uint32{9, 1, 2})
	assert.InDelta(t, a-tb.LogProbability([]uint32{9, 9}), b, 1e-9)
}

func TestScoreTruncatesLongQueries(t *testing.T) {
	tb := scenarioTable(t)
	assert.Equal(t, tb.Score([]uint32{1, 2}), tb.Score([]uint32{5, 6, 1, 2}))
}
