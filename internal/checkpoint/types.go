package checkpoint

import "randsearch/internal/obsfilter"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Checkpoint is the externally persisted training state: the canonical weight
// vector, the run counters, the merged observation filter, and the optimizer
// accumulator. It is an opaque blob to everything but the trainer.
type Checkpoint struct {
	VersionedRecord
	RunID     string             `json:"run_id"`
	Step      int                `json:"step"`
	Weights   []float64          `json:"weights"`
	Episodes  int64              `json:"episodes"`
	Timesteps int64              `json:"timesteps"`
	Filter    obsfilter.Snapshot `json:"filter"`
	Optimizer OptimizerState     `json:"optimizer"`
}

// OptimizerState is the update rule's accumulator; empty for plain SGD.
type OptimizerState struct {
	Velocity []float64 `json:"velocity,omitempty"`
}

// RunRecord summarizes one training run for listing.
type RunRecord struct {
	VersionedRecord
	RunID     string  `json:"run_id"`
	EnvName   string  `json:"env_name"`
	Steps     int     `json:"steps"`
	BestEval  float64 `json:"best_eval"`
	FinalEval float64 `json:"final_eval"`
}
