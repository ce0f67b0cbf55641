// Package obsfilter provides online observation normalizers whose incremental
// state can be merged across workers and resynchronized by the coordinator.
package obsfilter

import (
	"fmt"
	"strings"
)

type Kind string

const (
	KindNone    Kind = "none"
	KindMeanStd Kind = "mean-std"
)

func ParseKind(s string) (Kind, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "", string(KindNone):
		return KindNone, nil
	case string(KindMeanStd), "meanstd", "mean_std":
		return KindMeanStd, nil
	default:
		return "", fmt.Errorf("obsfilter: unsupported kind: %s", s)
	}
}

// Filter normalizes observations before policy evaluation. Implementations
// are owned by a single goroutine; the coordinator and workers exchange state
// only through immutable Snapshots.
type Filter interface {
	// Normalize maps an observation to its normalized form. When update mode
	// is on, the raw observation is folded into the delta buffer first.
	Normalize(x []float64) []float64
	// SetUpdate toggles whether observations seen by Normalize are recorded.
	// Evaluation rollouts run with update off.
	SetUpdate(update bool)
	// Snapshot returns an immutable copy of the running statistics and the
	// delta buffer, safe to transmit.
	Snapshot() Snapshot
	// Merge folds another filter's delta buffer into this filter's running
	// statistics. Merging is commutative and associative.
	Merge(delta Snapshot) error
	// ClearBuffer resets only the delta buffer, not the running statistics.
	ClearBuffer()
	// Sync overwrites the running statistics wholesale from a reference copy.
	Sync(ref Snapshot) error
}

// New constructs the filter for a configured kind and observation dimension.
func New(kind Kind, dim int) (Filter, error) {
	switch kind {
	case KindNone:
		return &Passthrough{}, nil
	case KindMeanStd:
		return NewMeanStd(dim, 0), nil
	default:
		return nil, fmt.Errorf("obsfilter: unsupported kind: %s", kind)
	}
}

// Snapshot is the wire form of a filter: running statistics plus the delta
// accumulated since the last sync. All slices are private copies.
type Snapshot struct {
	Dim int `json:"dim"`

	Count float64   `json:"count"`
	Mean  []float64 `json:"mean,omitempty"`
	M2    []float64 `json:"m2,omitempty"`

	BufferCount float64   `json:"buffer_count"`
	BufferMean  []float64 `json:"buffer_mean,omitempty"`
	BufferM2    []float64 `json:"buffer_m2,omitempty"`
}

// Passthrough is the "none" filter: observations flow through untouched and
// no statistics are kept.
type Passthrough struct{}

func (*Passthrough) Normalize(x []float64) []float64 { return x }
func (*Passthrough) SetUpdate(bool)                  {}
func (*Passthrough) Snapshot() Snapshot              { return Snapshot{} }
func (*Passthrough) Merge(Snapshot) error            { return nil }
func (*Passthrough) ClearBuffer()                    {}
func (*Passthrough) Sync(Snapshot) error             { return nil }
