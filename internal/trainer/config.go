package trainer

import (
	"fmt"

	"github.com/rs/zerolog"

	"randsearch/internal/metrics"
	"randsearch/internal/noise"
	"randsearch/internal/obsfilter"
)

type FailurePolicy string

const (
	// FailStep aborts the training step on the first worker failure, leaving
	// the canonical weights untouched.
	FailStep FailurePolicy = "fail-step"
	// Replace rebuilds a failed worker from its factory and re-dispatches the
	// same batch, bounded by MaxWorkerRestarts per run.
	Replace FailurePolicy = "replace"
)

// Config is the full training surface, validated once at startup.
type Config struct {
	NumWorkers    int
	NumDeltas     int
	DeltasUsed    int
	DeltaStd      float64
	RolloutLength int
	StepSize      float64
	Momentum      float64
	RewardShift   float64
	Seed          int64

	ObservationFilter obsfilter.Kind

	NoiseSize int

	EvalInterval int
	EvalRollouts int

	FailurePolicy     FailurePolicy
	MaxWorkerRestarts int

	Logger  zerolog.Logger
	Metrics *metrics.Set
}

func (c *Config) normalize() error {
	if c.NumWorkers <= 0 {
		return fmt.Errorf("trainer: num workers must be > 0, got %d", c.NumWorkers)
	}
	if c.NumDeltas <= 0 {
		return fmt.Errorf("trainer: num deltas must be > 0, got %d", c.NumDeltas)
	}
	if c.DeltasUsed <= 0 {
		c.DeltasUsed = c.NumDeltas
	}
	// The original clamps rather than rejects.
	if c.DeltasUsed > c.NumDeltas {
		c.DeltasUsed = c.NumDeltas
	}
	if c.DeltaStd <= 0 {
		return fmt.Errorf("trainer: delta std must be > 0, got %v", c.DeltaStd)
	}
	if c.RolloutLength <= 0 {
		return fmt.Errorf("trainer: rollout length must be > 0, got %d", c.RolloutLength)
	}
	if c.StepSize <= 0 {
		return fmt.Errorf("trainer: step size must be > 0, got %v", c.StepSize)
	}
	if c.Momentum < 0 || c.Momentum >= 1 {
		return fmt.Errorf("trainer: momentum must be in [0, 1), got %v", c.Momentum)
	}
	if c.ObservationFilter == "" {
		c.ObservationFilter = obsfilter.KindMeanStd
	}
	switch c.ObservationFilter {
	case obsfilter.KindNone, obsfilter.KindMeanStd:
	default:
		return fmt.Errorf("trainer: unsupported observation filter: %s", c.ObservationFilter)
	}
	if c.NoiseSize <= 0 {
		c.NoiseSize = noise.DefaultSize
	}
	if c.EvalInterval < 0 {
		return fmt.Errorf("trainer: eval interval must be >= 0, got %d", c.EvalInterval)
	}
	if c.EvalInterval > 0 && c.EvalRollouts <= 0 {
		c.EvalRollouts = defaultEvalRollouts
	}
	if c.FailurePolicy == "" {
		c.FailurePolicy = FailStep
	}
	switch c.FailurePolicy {
	case FailStep, Replace:
	default:
		return fmt.Errorf("trainer: unsupported failure policy: %s", c.FailurePolicy)
	}
	if c.FailurePolicy == Replace && c.MaxWorkerRestarts <= 0 {
		c.MaxWorkerRestarts = defaultMaxWorkerRestarts
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewNop()
	}
	return nil
}

const (
	defaultEvalRollouts      = 100
	defaultMaxWorkerRestarts = 3
)
