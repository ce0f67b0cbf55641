// Package trainer coordinates the search: it owns the canonical weight
// vector, the shared noise table, and the merged observation filter, and
// drives a pool of rollout workers through dispatch/join barriers.
package trainer

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"randsearch/internal/checkpoint"
	"randsearch/internal/env"
	"randsearch/internal/noise"
	"randsearch/internal/obsfilter"
	"randsearch/internal/optimizer"
	"randsearch/internal/policy"
	"randsearch/internal/rollout"
)

type Trainer struct {
	cfg Config

	envName string
	obsDim  int
	actDim  int
	dim     int

	table   *noise.Table
	weights []float64
	opt     optimizer.Optimizer
	filter  obsfilter.Filter
	pool    *pool

	step      int
	episodes  int64
	timesteps int64
}

// StepReport summarizes one completed training step.
type StepReport struct {
	Step       int
	Trials     int
	Retained   int
	RewardMean float64
	RewardStd  float64
	GradNorm   float64
	EnvSteps   int
}

// EvalReport summarizes one evaluation pass of the unperturbed weights.
type EvalReport struct {
	Step       int
	Rollouts   int
	RewardMean float64
	RewardStd  float64
}

// New builds a trainer for a registered environment. Each worker gets its own
// environment instance and filter, seeded deterministically from cfg.Seed, and
// a read-only handle on one shared noise table.
func New(cfg Config, envName string) (*Trainer, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	probe, err := env.New(envName, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("trainer: %w", err)
	}
	obsDim, actDim := probe.ObservationSize(), probe.ActionSize()
	dim := obsDim * actDim

	cfg.Logger.Info().
		Int("size", cfg.NoiseSize).
		Str("bytes", humanize.Bytes(uint64(cfg.NoiseSize)*8)).
		Msg("allocating noise table")
	table, err := noise.NewTable(cfg.NoiseSize, uint64(cfg.Seed))
	if err != nil {
		return nil, fmt.Errorf("trainer: %w", err)
	}

	filter, err := obsfilter.New(cfg.ObservationFilter, obsDim)
	if err != nil {
		return nil, fmt.Errorf("trainer: %w", err)
	}

	var opt optimizer.Optimizer
	if cfg.Momentum > 0 {
		opt = optimizer.NewMomentum(cfg.StepSize, cfg.Momentum)
	} else {
		opt = optimizer.SGD{LearningRate: cfg.StepSize}
	}

	t := &Trainer{
		cfg:     cfg,
		envName: envName,
		obsDim:  obsDim,
		actDim:  actDim,
		dim:     dim,
		table:   table,
		weights: make([]float64, dim),
		opt:     opt,
		filter:  filter,
	}
	t.pool, err = newPool(cfg.NumWorkers, t.buildWorker)
	if err != nil {
		return nil, err
	}

	cfg.Logger.Info().
		Str("env", envName).
		Int("workers", cfg.NumWorkers).
		Int("deltas", cfg.NumDeltas).
		Int("policy_dim", dim).
		Msg("trainer ready")
	return t, nil
}

func (t *Trainer) buildWorker(id int) (*rollout.Worker, error) {
	seed := t.cfg.Seed + 7*int64(id)
	e, err := env.New(t.envName, seed)
	if err != nil {
		return nil, err
	}
	f, err := obsfilter.New(t.cfg.ObservationFilter, t.obsDim)
	if err != nil {
		return nil, err
	}
	p, err := policy.NewLinear(t.obsDim, t.actDim, f)
	if err != nil {
		return nil, err
	}
	return rollout.NewWorker(rollout.WorkerConfig{
		ID:            id,
		Env:           e,
		Policy:        p,
		Noise:         t.table,
		StreamSeed:    uint64(seed),
		DeltaStd:      t.cfg.DeltaStd,
		RolloutLength: t.cfg.RolloutLength,
	})
}

// Close releases the worker pool. The trainer is unusable afterwards.
func (t *Trainer) Close() {
	t.pool.close()
}

func (t *Trainer) Step() int        { return t.step }
func (t *Trainer) Episodes() int64  { return t.episodes }
func (t *Trainer) Timesteps() int64 { return t.timesteps }

// Weights returns a copy of the canonical weight vector.
func (t *Trainer) Weights() []float64 {
	return append([]float64(nil), t.weights...)
}

// partition splits n units across the pool, spreading the remainder over the
// first slots.
func (t *Trainer) partition(n int) []int {
	counts := make([]int, t.pool.size())
	base, rem := n/len(counts), n%len(counts)
	for i := range counts {
		counts[i] = base
		if i < rem {
			counts[i]++
		}
	}
	return counts
}

// collectTrials dispatches per-worker trial counts against the current
// weights and joins all futures. Under the replace policy a failed worker is
// rebuilt and its share re-dispatched; under fail-step the first failure
// aborts the whole batch.
func (t *Trainer) collectTrials(ctx context.Context, counts []int, shift float64, evaluate bool) ([]rollout.Trial, int, error) {
	weights := t.Weights()
	futures := make([]<-chan response, len(counts))
	for i, n := range counts {
		if n == 0 {
			continue
		}
		futures[i] = t.pool.dispatchTrials(ctx, i, weights, n, shift, evaluate)
	}

	var trials []rollout.Trial
	steps := 0
	for i, fut := range futures {
		if fut == nil {
			continue
		}
		resp := <-fut
		for resp.err != nil {
			if ctx.Err() != nil || t.cfg.FailurePolicy != Replace {
				return nil, 0, &WorkerError{Worker: i, Err: resp.err}
			}
			t.cfg.Logger.Warn().Err(resp.err).Int("worker", i).Msg("replacing failed worker")
			if err := t.pool.replace(i, t.cfg.MaxWorkerRestarts); err != nil {
				return nil, 0, &WorkerError{Worker: i, Err: err}
			}
			t.cfg.Metrics.WorkerRestarts.Inc()
			resp = <-t.pool.dispatchTrials(ctx, i, weights, counts[i], shift, evaluate)
		}
		trials = append(trials, resp.batch.Trials...)
		steps += resp.batch.Steps
	}
	return trials, steps, nil
}

// TrainStep runs one full search iteration: dispatch the perturbation trials,
// trim and normalize the returned rewards, estimate the gradient, and apply
// the optimizer update. The canonical weights change only if every stage
// succeeds.
func (t *Trainer) TrainStep(ctx context.Context) (StepReport, error) {
	start := time.Now()

	trials, envSteps, err := t.collectTrials(ctx, t.partition(t.cfg.NumDeltas), t.cfg.RewardShift, false)
	if err != nil {
		return StepReport{}, err
	}

	grad, stats, err := aggregate(trials, t.table, t.dim, t.cfg.DeltasUsed, t.cfg.NumDeltas)
	if err != nil {
		return StepReport{}, err
	}
	delta, err := t.opt.Step(grad)
	if err != nil {
		return StepReport{}, err
	}
	floats.Sub(t.weights, delta)

	t.step++
	t.episodes += 2 * int64(len(trials))
	t.timesteps += int64(envSteps)

	gradNorm := floats.Norm(grad, 2)
	t.cfg.Metrics.TrainSteps.Inc()
	t.cfg.Metrics.Episodes.Add(float64(2 * len(trials)))
	t.cfg.Metrics.Timesteps.Add(float64(envSteps))
	t.cfg.Metrics.GradNorm.Set(gradNorm)
	t.cfg.Metrics.StepDuration.Observe(time.Since(start).Seconds())

	report := StepReport{
		Step:       t.step,
		Trials:     len(trials),
		Retained:   stats.Retained,
		RewardMean: stats.RewardMean,
		RewardStd:  stats.RewardStd,
		GradNorm:   gradNorm,
		EnvSteps:   envSteps,
	}
	t.cfg.Logger.Info().
		Int("step", report.Step).
		Int("trials", report.Trials).
		Int("retained", report.Retained).
		Float64("reward_mean", report.RewardMean).
		Float64("grad_norm", report.GradNorm).
		Int64("timesteps", t.timesteps).
		Msg("train step")
	return report, nil
}

// SyncFilters consolidates the workers' observation statistics: pull every
// delta buffer, merge them into the coordinator filter, then push the merged
// state back and clear the buffers. The barrier is all-or-nothing.
func (t *Trainer) SyncFilters(ctx context.Context) error {
	pulls := make([]<-chan response, t.pool.size())
	for i := range pulls {
		pulls[i] = t.pool.dispatchFilterPull(ctx, i)
	}
	for i, fut := range pulls {
		resp := <-fut
		if resp.err != nil {
			return &WorkerError{Worker: i, Err: resp.err}
		}
		if err := t.filter.Merge(resp.snap); err != nil {
			return &WorkerError{Worker: i, Err: err}
		}
	}

	t.filter.ClearBuffer()
	ref := t.filter.Snapshot()
	pushes := make([]<-chan response, t.pool.size())
	for i := range pushes {
		pushes[i] = t.pool.dispatchFilterPush(ctx, i, ref)
	}
	for i, fut := range pushes {
		if resp := <-fut; resp.err != nil {
			return &WorkerError{Worker: i, Err: resp.err}
		}
	}
	return nil
}

// Evaluate scores the unperturbed weights over the configured number of
// rollouts with no reward shift, no filter updates, and the environment's own
// episode limit. Evaluation consumes no training timesteps.
func (t *Trainer) Evaluate(ctx context.Context) (EvalReport, error) {
	rollouts := t.cfg.EvalRollouts
	if rollouts <= 0 {
		rollouts = defaultEvalRollouts
	}
	trials, _, err := t.collectTrials(ctx, t.partition(rollouts), 0, true)
	if err != nil {
		return EvalReport{}, err
	}
	rewards := make([]float64, len(trials))
	for i, trial := range trials {
		rewards[i] = trial.Rewards[0]
	}
	mean := stat.Mean(rewards, nil)
	std := stat.PopStdDev(rewards, nil)

	t.cfg.Metrics.EvalRewardMean.Set(mean)
	t.cfg.Metrics.EvalRewardStd.Set(std)
	t.cfg.Logger.Info().
		Int("step", t.step).
		Int("rollouts", len(rewards)).
		Float64("reward_mean", mean).
		Float64("reward_std", std).
		Msg("evaluation")
	return EvalReport{Step: t.step, Rollouts: len(rewards), RewardMean: mean, RewardStd: std}, nil
}

// Run drives iterations training steps. Filter statistics are consolidated
// after every step; on evaluation steps the consolidation is skipped in favor
// of the evaluation pass. The latest evaluation is returned, if any ran.
func (t *Trainer) Run(ctx context.Context, iterations int) (EvalReport, error) {
	var last EvalReport
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		if _, err := t.TrainStep(ctx); err != nil {
			return last, err
		}
		if t.cfg.EvalInterval > 0 && t.step%t.cfg.EvalInterval == 0 {
			report, err := t.Evaluate(ctx)
			if err != nil {
				return last, err
			}
			last = report
			continue
		}
		if err := t.SyncFilters(ctx); err != nil {
			return last, err
		}
	}
	return last, nil
}

// Checkpoint captures the full training state under a run identifier.
func (t *Trainer) Checkpoint(runID string) checkpoint.Checkpoint {
	cp := checkpoint.Checkpoint{
		VersionedRecord: checkpoint.Stamp(),
		RunID:           runID,
		Step:            t.step,
		Weights:         t.Weights(),
		Episodes:        t.episodes,
		Timesteps:       t.timesteps,
		Filter:          t.filter.Snapshot(),
	}
	if m, ok := t.opt.(*optimizer.Momentum); ok {
		cp.Optimizer.Velocity = m.Velocity()
	}
	return cp
}

// Restore resets the trainer from a checkpoint and pushes the restored filter
// state to every worker. The checkpoint must match the policy dimensionality.
func (t *Trainer) Restore(ctx context.Context, cp checkpoint.Checkpoint) error {
	if len(cp.Weights) != t.dim {
		return fmt.Errorf("trainer: restore %d weights into dim %d: %w",
			len(cp.Weights), t.dim, checkpoint.ErrDimensionMismatch)
	}
	copy(t.weights, cp.Weights)
	t.step = cp.Step
	t.episodes = cp.Episodes
	t.timesteps = cp.Timesteps
	if err := t.filter.Sync(cp.Filter); err != nil {
		return fmt.Errorf("trainer: restore filter: %w", err)
	}
	if m, ok := t.opt.(*optimizer.Momentum); ok && len(cp.Optimizer.Velocity) > 0 {
		m.SetVelocity(cp.Optimizer.Velocity)
	}

	ref := t.filter.Snapshot()
	futures := make([]<-chan response, t.pool.size())
	for i := range futures {
		futures[i] = t.pool.dispatchFilterPush(ctx, i, ref)
	}
	for i, fut := range futures {
		if resp := <-fut; resp.err != nil {
			return &WorkerError{Worker: i, Err: resp.err}
		}
	}
	return nil
}
