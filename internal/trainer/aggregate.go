package trainer

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"randsearch/internal/noise"
	"randsearch/internal/rollout"
)

type aggregateStats struct {
	Retained   int
	RewardMean float64
	RewardStd  float64
}

// aggregate turns a slice of scored antithetic trials into an average-ascent
// gradient estimate. Trials are trimmed to the top deltasUsed of numDeltas by
// the better reward of each pair (ties at the cutoff are kept), the retained
// reward pairs are normalized by their pooled standard deviation, and each
// retained perturbation is reconstructed from the noise table and weighted by
// its normalized reward difference.
func aggregate(trials []rollout.Trial, table *noise.Table, dim, deltasUsed, numDeltas int) ([]float64, aggregateStats, error) {
	if len(trials) == 0 {
		return nil, aggregateStats{}, ErrEmptyBatch
	}

	kept := trials
	if deltasUsed < numDeltas {
		maxRewards := make([]float64, len(trials))
		for i, t := range trials {
			maxRewards[i] = math.Max(t.Rewards[0], t.Rewards[1])
		}
		sorted := append([]float64(nil), maxRewards...)
		sort.Float64s(sorted)
		cut := percentile(sorted, 1-float64(deltasUsed)/float64(numDeltas))
		kept = kept[:0:0]
		for i, t := range trials {
			if maxRewards[i] >= cut {
				kept = append(kept, t)
			}
		}
	}
	if len(kept) == 0 {
		return nil, aggregateStats{}, ErrEmptyBatch
	}

	pooled := make([]float64, 0, 2*len(kept))
	for _, t := range kept {
		pooled = append(pooled, t.Rewards[0], t.Rewards[1])
	}
	mean := stat.Mean(pooled, nil)
	std := stat.PopStdDev(pooled, nil)
	if std == 0 || math.IsNaN(std) {
		return nil, aggregateStats{}, ErrZeroVariance
	}

	grad := make([]float64, dim)
	for _, t := range kept {
		delta, err := table.Get(t.Offset, dim)
		if err != nil {
			return nil, aggregateStats{}, fmt.Errorf("trainer: reconstruct offset %d: %w", t.Offset, err)
		}
		floats.AddScaled(grad, (t.Rewards[0]-t.Rewards[1])/std, delta)
	}
	floats.Scale(1/float64(len(kept)), grad)

	return grad, aggregateStats{Retained: len(kept), RewardMean: mean, RewardStd: std}, nil
}

// percentile is the linear-interpolated quantile of an ascending-sorted
// slice, q in [0, 1]. The interpolation point sits at q*(n-1).
func percentile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := q * float64(n-1)
	i := int(math.Floor(h))
	if i >= n-1 {
		return sorted[n-1]
	}
	return sorted[i] + (h-math.Floor(h))*(sorted[i+1]-sorted[i])
}
