package lmtable

import (
	"fmt"
	"math"
	"sort"

	"github.com/CVDpl/go-lmtable/internal/common"
)

// Codebook maps quantization classes of one level to reconstructed
// log-probabilities and back-off weights. Leaf levels have no back-off centers.
type Codebook struct {
	Prob    []float32
	Backoff []float32
}

// ResolveProb returns the probability center of class.
// An out-of-range class means the model is corrupt; loading validates every
// stored class, so reaching the panic is an invariant violation.
func (c *Codebook) ResolveProb(class uint8) float32 {
	if int(class) >= len(c.Prob) {
		panic(fmt.Sprintf("lmtable: probability class %d outside codebook of %d centers", class, len(c.Prob)))
	}
	return c.Prob[class]
}

// ResolveBackoff returns the back-off center of class.
func (c *Codebook) ResolveBackoff(class uint8) float32 {
	if int(class) >= len(c.Backoff) {
		panic(fmt.Sprintf("lmtable: back-off class %d outside codebook of %d centers", class, len(c.Backoff)))
	}
	return c.Backoff[class]
}

// validate checks the codebook shape for a level of type t.
func (c *Codebook) validate(level int, t NodeType) error {
	if len(c.Prob) == 0 || len(c.Prob) > common.MaxCenters {
		return fmt.Errorf("%w: level %d has %d probability centers", common.ErrCorrupt, level, len(c.Prob))
	}
	if t.IsLeaf() {
		if len(c.Backoff) != 0 {
			return fmt.Errorf("%w: leaf level %d has back-off centers", common.ErrCorrupt, level)
		}
		return nil
	}
	if len(c.Backoff) == 0 || len(c.Backoff) > common.MaxCenters {
		return fmt.Errorf("%w: level %d has %d back-off centers", common.ErrCorrupt, level, len(c.Backoff))
	}
	return nil
}

// nearestProb returns the class whose center is closest to v.
func (c *Codebook) nearestProb(v float32) uint8 { return nearest(c.Prob, v) }

// nearestBackoff returns the class whose back-off center is closest to v.
func (c *Codebook) nearestBackoff(v float32) uint8 { return nearest(c.Backoff, v) }

func nearest(centers []float32, v float32) uint8 {
	best, bestDist := 0, math.Inf(1)
	for i, c := range centers {
		d := math.Abs(float64(c) - float64(v))
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return uint8(best)
}

// TrainCodebook computes at most k centers for values with 1-D Lloyd
// iterations seeded at evenly spaced quantiles. Centers are returned sorted.
func TrainCodebook(values []float32, k int) []float32 {
	if k <= 0 || k > common.MaxCenters {
		k = common.MaxCenters
	}
	if len(values) == 0 {
		return []float32{0}
	}

	sorted := make([]float64, len(values))
	for i, v := range values {
		sorted[i] = float64(v)
	}
	sort.Float64s(sorted)

	distinct := sorted[:1]
	for _, v := range sorted[1:] {
		if v != distinct[len(distinct)-1] {
			distinct = append(distinct, v)
		}
	}
	// Few distinct values: every value is its own center.
	if len(distinct) <= k {
		out := make([]float32, len(distinct))
		for i, v := range distinct {
			out[i] = float32(v)
		}
		return out
	}

	centers := make([]float64, k)
	for i := range centers {
		centers[i] = sorted[(2*i+1)*len(sorted)/(2*k)]
	}

	sums := make([]float64, k)
	counts := make([]int, k)
	for iter := 0; iter < 20; iter++ {
		for i := range sums {
			sums[i], counts[i] = 0, 0
		}
		// values and centers are both sorted, so assignment is a merge
		c := 0
		for _, v := range sorted {
			for c+1 < k && math.Abs(centers[c+1]-v) <= math.Abs(centers[c]-v) {
				c++
			}
			sums[c] += v
			counts[c]++
		}
		moved := false
		for i := range centers {
			if counts[i] == 0 {
				continue
			}
			m := sums[i] / float64(counts[i])
			if m != centers[i] {
				centers[i] = m
				moved = true
			}
		}
		sort.Float64s(centers)
		if !moved {
			break
		}
	}

	out := make([]float32, 0, k)
	for i, c := range centers {
		if i > 0 && float32(c) == out[len(out)-1] {
			continue
		}
		out = append(out, float32(c))
	}
	return out
}
