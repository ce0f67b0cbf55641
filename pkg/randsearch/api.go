// Package randsearch is the embedding API: it wires a trainer to a
// checkpoint store and runs complete training runs under stable run IDs.
package randsearch

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"randsearch/internal/checkpoint"
	"randsearch/internal/env"
	"randsearch/internal/metrics"
	"randsearch/internal/obsfilter"
	"randsearch/internal/trainer"
)

const defaultDBPath = "randsearch.db"

type Options struct {
	StoreKind string
	DBPath    string
	Logger    zerolog.Logger
	Metrics   *metrics.Set
}

type Client struct {
	store checkpoint.Store
	log   zerolog.Logger
	met   *metrics.Set
}

// RunRequest configures one training run. Zero values take the documented
// defaults; Resume continues a stored run under its existing ID.
type RunRequest struct {
	Env        string
	Iterations int

	Workers       int
	Deltas        int
	DeltasUsed    int
	DeltaStd      float64
	RolloutLength int
	StepSize      float64
	Momentum      float64
	RewardShift   float64
	Seed          int64

	ObservationFilter string
	NoiseSize         int

	EvalInterval int
	EvalRollouts int

	FailurePolicy     string
	MaxWorkerRestarts int

	Resume string
}

type RunSummary struct {
	RunID     string
	Env       string
	Steps     int
	Episodes  int64
	Timesteps int64
	BestEval  float64
	FinalEval float64
}

func New(opts Options) (*Client, error) {
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	store, err := checkpoint.NewStore(opts.StoreKind, dbPath)
	if err != nil {
		return nil, err
	}
	return &Client{store: store, log: opts.Logger, met: opts.Metrics}, nil
}

// NewWithStore wraps an existing store, which the caller keeps ownership of.
func NewWithStore(store checkpoint.Store, log zerolog.Logger) *Client {
	return &Client{store: store, log: log}
}

func (c *Client) Close() error {
	return checkpoint.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

// Environments lists the registered environment names.
func (c *Client) Environments() []string {
	return env.Registered()
}

// Run executes req.Iterations training steps, evaluating on the configured
// interval and once more at the end, then persists the checkpoint, the run
// record, and the per-evaluation reward history.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Env == "" {
		req.Env = env.CartPoleName
	}
	if req.Iterations <= 0 {
		req.Iterations = 100
	}
	if req.Workers <= 0 {
		req.Workers = 2
	}
	if req.Deltas <= 0 {
		req.Deltas = 8
	}
	if req.DeltaStd <= 0 {
		req.DeltaStd = 0.02
	}
	if req.RolloutLength <= 0 {
		req.RolloutLength = 1000
	}
	if req.StepSize <= 0 {
		req.StepSize = 0.01
	}
	if req.EvalInterval < 0 {
		req.EvalInterval = 0
	}
	if req.EvalRollouts <= 0 {
		req.EvalRollouts = 10
	}

	filterKind, err := obsfilter.ParseKind(req.ObservationFilter)
	if err != nil {
		return RunSummary{}, err
	}
	if req.ObservationFilter == "" {
		filterKind = obsfilter.KindMeanStd
	}

	cfg := trainer.Config{
		NumWorkers:        req.Workers,
		NumDeltas:         req.Deltas,
		DeltasUsed:        req.DeltasUsed,
		DeltaStd:          req.DeltaStd,
		RolloutLength:     req.RolloutLength,
		StepSize:          req.StepSize,
		Momentum:          req.Momentum,
		RewardShift:       req.RewardShift,
		Seed:              req.Seed,
		ObservationFilter: filterKind,
		NoiseSize:         req.NoiseSize,
		EvalRollouts:      req.EvalRollouts,
		FailurePolicy:     trainer.FailurePolicy(req.FailurePolicy),
		MaxWorkerRestarts: req.MaxWorkerRestarts,
		Logger:            c.log,
		Metrics:           c.met,
	}
	t, err := trainer.New(cfg, req.Env)
	if err != nil {
		return RunSummary{}, err
	}
	defer t.Close()

	runID := req.Resume
	var history []float64
	if runID != "" {
		cp, ok, err := c.store.GetCheckpoint(ctx, runID)
		if err != nil {
			return RunSummary{}, err
		}
		if !ok {
			return RunSummary{}, fmt.Errorf("randsearch: no checkpoint for run %s", runID)
		}
		if err := t.Restore(ctx, cp); err != nil {
			return RunSummary{}, err
		}
		if prior, ok, err := c.store.GetRewardHistory(ctx, runID); err != nil {
			return RunSummary{}, err
		} else if ok {
			history = prior
		}
	} else {
		runID = uuid.NewString()
	}

	best := math.Inf(-1)
	for _, r := range history {
		best = math.Max(best, r)
	}

	// Evaluation happens at the client layer so each pass can extend the
	// stored reward history; the trainer itself only syncs filters.
	interval := req.EvalInterval
	if interval <= 0 || interval > req.Iterations {
		interval = req.Iterations
	}
	var final float64
	for done := 0; done < req.Iterations; {
		span := interval
		if remaining := req.Iterations - done; span > remaining {
			span = remaining
		}
		if _, err := t.Run(ctx, span); err != nil {
			return RunSummary{}, err
		}
		done += span

		report, err := t.Evaluate(ctx)
		if err != nil {
			return RunSummary{}, err
		}
		final = report.RewardMean
		best = math.Max(best, final)
		history = append(history, final)
	}

	if err := c.store.SaveCheckpoint(ctx, t.Checkpoint(runID)); err != nil {
		return RunSummary{}, err
	}
	record := checkpoint.RunRecord{
		VersionedRecord: checkpoint.Stamp(),
		RunID:           runID,
		EnvName:         req.Env,
		Steps:           t.Step(),
		BestEval:        best,
		FinalEval:       final,
	}
	if err := c.store.SaveRun(ctx, record); err != nil {
		return RunSummary{}, err
	}
	if err := c.store.SaveRewardHistory(ctx, runID, history); err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		RunID:     runID,
		Env:       req.Env,
		Steps:     t.Step(),
		Episodes:  t.Episodes(),
		Timesteps: t.Timesteps(),
		BestEval:  best,
		FinalEval: final,
	}, nil
}

// Evaluate restores a stored run and scores its unperturbed weights.
func (c *Client) Evaluate(ctx context.Context, runID string, rollouts int) (trainer.EvalReport, error) {
	record, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return trainer.EvalReport{}, err
	}
	if !ok {
		return trainer.EvalReport{}, fmt.Errorf("randsearch: unknown run %s", runID)
	}
	cp, ok, err := c.store.GetCheckpoint(ctx, runID)
	if err != nil {
		return trainer.EvalReport{}, err
	}
	if !ok {
		return trainer.EvalReport{}, fmt.Errorf("randsearch: no checkpoint for run %s", runID)
	}

	if rollouts <= 0 {
		rollouts = 10
	}
	cfg := trainer.Config{
		NumWorkers:        1,
		NumDeltas:         1,
		DeltaStd:          0.01,
		RolloutLength:     1,
		StepSize:          0.01,
		ObservationFilter: filterKindOf(cp),
		NoiseSize:         1024,
		EvalRollouts:      rollouts,
		Logger:            c.log,
	}
	t, err := trainer.New(cfg, record.EnvName)
	if err != nil {
		return trainer.EvalReport{}, err
	}
	defer t.Close()
	if err := t.Restore(ctx, cp); err != nil {
		return trainer.EvalReport{}, err
	}
	return t.Evaluate(ctx)
}

// ListRuns returns the stored run records.
func (c *Client) ListRuns(ctx context.Context) ([]checkpoint.RunRecord, error) {
	return c.store.ListRuns(ctx)
}

// Checkpoint fetches the stored checkpoint for a run.
func (c *Client) Checkpoint(ctx context.Context, runID string) (checkpoint.Checkpoint, error) {
	cp, ok, err := c.store.GetCheckpoint(ctx, runID)
	if err != nil {
		return checkpoint.Checkpoint{}, err
	}
	if !ok {
		return checkpoint.Checkpoint{}, fmt.Errorf("randsearch: no checkpoint for run %s", runID)
	}
	return cp, nil
}

// RewardHistory fetches the per-evaluation reward means for a run.
func (c *Client) RewardHistory(ctx context.Context, runID string) ([]float64, error) {
	history, ok, err := c.store.GetRewardHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("randsearch: no reward history for run %s", runID)
	}
	return history, nil
}

// filterKindOf infers the filter kind a checkpoint was trained with from its
// stored statistics.
func filterKindOf(cp checkpoint.Checkpoint) obsfilter.Kind {
	if cp.Filter.Dim > 0 {
		return obsfilter.KindMeanStd
	}
	return obsfilter.KindNone
}
