package obsfilter

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const minStd = 1e-8

// MeanStd keeps Welford running statistics over every observation seen plus a
// separate delta buffer accumulated since the last sync, so a worker's
// incremental contribution can be shipped without resending full history.
type MeanStd struct {
	update bool
	clip   float64

	run welford
	buf welford
}

// NewMeanStd creates a filter for dim-sized observations. clip > 0 bounds the
// normalized output to [-clip, clip]; clip == 0 disables clipping. Update mode
// starts on.
func NewMeanStd(dim int, clip float64) *MeanStd {
	return &MeanStd{
		update: true,
		clip:   clip,
		run:    newWelford(dim),
		buf:    newWelford(dim),
	}
}

func (f *MeanStd) SetUpdate(update bool) {
	f.update = update
}

func (f *MeanStd) Normalize(x []float64) []float64 {
	if f.update {
		f.run.push(x)
		f.buf.push(x)
	}
	out := make([]float64, len(x))
	copy(out, x)
	if f.run.n > 0 {
		floats.Sub(out, f.run.mean)
		for i := range out {
			out[i] /= math.Max(f.run.std(i), minStd)
		}
	}
	if f.clip > 0 {
		for i := range out {
			out[i] = math.Max(-f.clip, math.Min(f.clip, out[i]))
		}
	}
	return out
}

func (f *MeanStd) Snapshot() Snapshot {
	return Snapshot{
		Dim:         len(f.run.mean),
		Count:       f.run.n,
		Mean:        append([]float64(nil), f.run.mean...),
		M2:          append([]float64(nil), f.run.m2...),
		BufferCount: f.buf.n,
		BufferMean:  append([]float64(nil), f.buf.mean...),
		BufferM2:    append([]float64(nil), f.buf.m2...),
	}
}

func (f *MeanStd) Merge(delta Snapshot) error {
	if delta.BufferCount == 0 {
		return nil
	}
	if delta.Dim != len(f.run.mean) {
		return fmt.Errorf("obsfilter: merge dim %d into filter dim %d", delta.Dim, len(f.run.mean))
	}
	f.run.combine(delta.BufferCount, delta.BufferMean, delta.BufferM2)
	return nil
}

func (f *MeanStd) ClearBuffer() {
	f.buf = newWelford(len(f.buf.mean))
}

func (f *MeanStd) Sync(ref Snapshot) error {
	if ref.Dim != len(f.run.mean) {
		return fmt.Errorf("obsfilter: sync dim %d into filter dim %d", ref.Dim, len(f.run.mean))
	}
	f.run.n = ref.Count
	copy(f.run.mean, ref.Mean)
	copy(f.run.m2, ref.M2)
	return nil
}

// welford is an (n, mean, M2) accumulator over vectors.
type welford struct {
	n    float64
	mean []float64
	m2   []float64
}

func newWelford(dim int) welford {
	return welford{
		mean: make([]float64, dim),
		m2:   make([]float64, dim),
	}
}

func (w *welford) push(x []float64) {
	w.n++
	for i, v := range x {
		delta := v - w.mean[i]
		w.mean[i] += delta / w.n
		w.m2[i] += delta * (v - w.mean[i])
	}
}

// combine folds another (n, mean, M2) triple into this one using the
// parallel-variance combination, weighting by counts. The result is invariant
// to combination order and batching granularity up to floating-point
// tolerance.
func (w *welford) combine(n float64, mean, m2 []float64) {
	if n == 0 {
		return
	}
	if w.n == 0 {
		w.n = n
		copy(w.mean, mean)
		copy(w.m2, m2)
		return
	}
	total := w.n + n
	for i := range w.mean {
		delta := mean[i] - w.mean[i]
		w.m2[i] += m2[i] + delta*delta*w.n*n/total
		w.mean[i] += delta * n / total
	}
	w.n = total
}

func (w *welford) std(i int) float64 {
	if w.n < 2 {
		return 1
	}
	return math.Sqrt(w.m2[i] / w.n)
}
