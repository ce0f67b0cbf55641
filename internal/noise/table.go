package noise

import (
	"errors"
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultSize is the table length used for real training runs. It is large
// enough that concurrently sampled slices of policy-sized dimension are
// overwhelmingly non-overlapping.
const DefaultSize = 250_000_000

var ErrOutOfRange = errors.New("noise: slice out of range")

// Table is an immutable buffer of standard-normal draws shared read-only by
// every worker. A slice of it, addressed by a plain integer offset, stands in
// for an entire perturbation vector on the wire.
type Table struct {
	values []float64
}

// NewTable draws size standard-normal values from a PCG source seeded with
// seed. The content is bit-reproducible for a fixed (size, seed) pair, which
// is what lets the coordinator reconstruct any worker's perturbation from the
// offset alone.
func NewTable(size int, seed uint64) (*Table, error) {
	if size <= 0 {
		return nil, fmt.Errorf("noise: table size must be > 0, got %d", size)
	}
	normal := distuv.Normal{
		Mu:    0,
		Sigma: 1,
		Src:   rand.NewSource(seed),
	}
	values := make([]float64, size)
	for i := range values {
		values[i] = normal.Rand()
	}
	return &Table{values: values}, nil
}

func (t *Table) Len() int {
	return len(t.values)
}

// Get returns the contiguous slice [offset, offset+dim). The returned slice
// aliases the table and must not be written to.
func (t *Table) Get(offset, dim int) ([]float64, error) {
	if offset < 0 || dim < 0 || offset+dim > len(t.values) {
		return nil, fmt.Errorf("noise: get offset=%d dim=%d len=%d: %w", offset, dim, len(t.values), ErrOutOfRange)
	}
	return t.values[offset : offset+dim], nil
}

// Stream is a per-consumer offset sampler. The table itself is never mutated,
// so streams are the only consumer-local state and need no cross-consumer
// locking. A Stream must not be shared between goroutines.
type Stream struct {
	table *Table
	rng   *rand.Rand
}

// Stream creates an offset sampler with its own independently seeded source.
func (t *Table) Stream(seed uint64) *Stream {
	return &Stream{
		table: t,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// SampleOffset draws a uniform offset in [0, len-dim] such that
// Get(offset, dim) is always in bounds.
func (s *Stream) SampleOffset(dim int) (int, error) {
	if dim <= 0 {
		return 0, fmt.Errorf("noise: sample dim must be > 0, got %d", dim)
	}
	if dim > len(s.table.values) {
		return 0, fmt.Errorf("noise: sample dim=%d len=%d: %w", dim, len(s.table.values), ErrOutOfRange)
	}
	return s.rng.Intn(len(s.table.values) - dim + 1), nil
}
