package trainer

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyBatch means percentile trimming retained zero trials. It is
	// fatal to the training step and never treated as a zero gradient.
	ErrEmptyBatch = errors.New("trainer: no trials retained after trimming")

	// ErrZeroVariance means the retained rewards have zero standard
	// deviation, so normalization would divide by zero.
	ErrZeroVariance = errors.New("trainer: retained rewards have zero variance")
)

// WorkerError reports a failed worker batch. The step join surfaces it
// instead of proceeding with a partial result set.
type WorkerError struct {
	Worker int
	Err    error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("trainer: worker %d: %v", e.Worker, e.Err)
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}
