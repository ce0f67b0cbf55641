// Package checkpoint persists training state as versioned blobs keyed by run.
package checkpoint

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when a restored weight vector does not fit
// the policy it is loaded into. It is fatal before any training resumes.
var ErrDimensionMismatch = errors.New("checkpoint: weight vector dimensionality mismatch")

// Store defines persistence for checkpoints, run summaries, and per-run
// reward history.
type Store interface {
	Init(ctx context.Context) error
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error
	GetCheckpoint(ctx context.Context, runID string) (Checkpoint, bool, error)
	SaveRun(ctx context.Context, record RunRecord) error
	GetRun(ctx context.Context, runID string) (RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]RunRecord, error)
	SaveRewardHistory(ctx context.Context, runID string, history []float64) error
	GetRewardHistory(ctx context.Context, runID string) ([]float64, bool, error)
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
