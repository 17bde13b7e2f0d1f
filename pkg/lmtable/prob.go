package lmtable

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/CVDpl/go-lmtable/internal/common"
)

func math32frombits(raw uint32) float32 { return math.Float32frombits(raw) }

func floorLogProb(p float32) float64 {
	v := float64(p)
	if math.IsNaN(v) || v < LogProbFloor {
		return LogProbFloor
	}
	return v
}

// Score is the result of a back-off probability query.
type Score struct {
	// LogProb is log10 P(w | context), floored at LogProbFloor per term.
	LogProb float64
	// MatchedOrder is the length of the n-gram whose probability was used;
	// 0 when the predicted word is unknown.
	MatchedOrder int
	// BackedOff reports whether the full query was not stored.
	BackedOff bool
}

// Score returns the back-off log10 probability of the last word of ng given
// the preceding words. Only the last MaxLevel words are considered. When
// w1..wn is absent the back-off weight of w1..w(n-1), if stored, is added and
// the query continues with w2..wn.
func (t *Table) Score(ng []uint32) Score {
	if len(ng) > t.maxlev {
		ng = ng[len(ng)-t.maxlev:]
	}
	var s Score
	for len(ng) > 0 {
		m := t.Find(ng)
		if m.Complete() {
			s.LogProb += t.LogProb(m.Node)
			s.MatchedOrder = len(ng)
			return s
		}
		s.BackedOff = true
		if len(ng) > 1 && m.Level() == len(ng)-1 {
			s.LogProb += t.Backoff(m.Node)
		}
		ng = ng[1:]
	}
	s.LogProb += LogProbFloor
	return s
}

// LogProbability returns log10 P(w | context) for the last word of ng.
func (t *Table) LogProbability(ng []uint32) float64 { return t.Score(ng).LogProb }

// Probability returns P(w | context) for the last word of ng.
func (t *Table) Probability(ng []uint32) float64 {
	return math.Pow(10, t.LogProbability(ng))
}

// ScoreSentence sums the log10 probabilities of ids[1:], each conditioned on
// the words before it. ids normally starts with <s> and ends with </s>.
func (t *Table) ScoreSentence(ids []uint32) float64 {
	var total float64
	for i := 1; i < len(ids); i++ {
		lo := 0
		if i+1 > t.maxlev {
			lo = i + 1 - t.maxlev
		}
		total += t.LogProbability(ids[lo : i+1])
	}
	return total
}

// ScoreBatch scores sentences concurrently with up to workers goroutines.
// The table must be finalized.
func (t *Table) ScoreBatch(ctx context.Context, sentences [][]uint32, workers int) ([]float64, error) {
	if !t.finalized {
		return nil, common.ErrNotFinalized
	}
	if t.closed.Load() {
		return nil, common.ErrClosed
	}
	if workers <= 0 {
		workers = 1
	}
	out := make([]float64, len(sentences))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range sentences {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("sentence %d: %w", i, err)
			}
			out[i] = t.ScoreSentence(sentences[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
