// Package rollout runs full-episode policy evaluations and antithetic trial
// batches inside an isolated worker.
package rollout

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"randsearch/internal/env"
	"randsearch/internal/noise"
	"randsearch/internal/obsfilter"
	"randsearch/internal/policy"
)

// EvalOffset marks a trial that ran the unperturbed weights; it never indexes
// the noise table.
const EvalOffset = -1

// Trial is one scored perturbation: the noise offset that reconstructs it and
// the antithetic reward pair. Evaluation trials carry a single return in
// Rewards[0]. Trials are never mutated after creation.
type Trial struct {
	Offset  int        `json:"offset"`
	Rewards [2]float64 `json:"rewards"`
}

// IsEval reports whether the trial was an evaluation-only rollout.
func (t Trial) IsEval() bool { return t.Offset == EvalOffset }

// Batch is the unit of work returned by one worker for one dispatch. Steps
// sums environment steps across the batch's training rollouts.
type Batch struct {
	Worker int
	Trials []Trial
	Steps  int
}

type WorkerConfig struct {
	ID            int
	Env           env.Env
	Policy        policy.Policy
	Noise         *noise.Table
	StreamSeed    uint64
	DeltaStd      float64
	RolloutLength int
}

// Worker owns one environment, one policy, and a read-only noise-table
// handle with a private offset stream. It is driven by a single goroutine.
type Worker struct {
	id            int
	env           env.Env
	policy        policy.Policy
	noise         *noise.Table
	stream        *noise.Stream
	deltaStd      float64
	rolloutLength int

	perturbed []float64
}

func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Env == nil {
		return nil, errors.New("rollout: env is required")
	}
	if cfg.Policy == nil {
		return nil, errors.New("rollout: policy is required")
	}
	if cfg.Noise == nil {
		return nil, errors.New("rollout: noise table is required")
	}
	if cfg.DeltaStd <= 0 {
		return nil, fmt.Errorf("rollout: delta std must be > 0, got %v", cfg.DeltaStd)
	}
	if cfg.RolloutLength <= 0 {
		return nil, fmt.Errorf("rollout: rollout length must be > 0, got %d", cfg.RolloutLength)
	}
	return &Worker{
		id:            cfg.ID,
		env:           cfg.Env,
		policy:        cfg.Policy,
		noise:         cfg.Noise,
		stream:        cfg.Noise.Stream(cfg.StreamSeed),
		deltaStd:      cfg.DeltaStd,
		rolloutLength: cfg.RolloutLength,
		perturbed:     make([]float64, cfg.Policy.Dim()),
	}, nil
}

func (w *Worker) ID() int { return w.id }

// Rollout runs one episode of at most maxSteps, accumulating reward - shift
// per step and stopping early on the terminal signal. Observations flow
// through the policy's filter, which records them when update mode is on.
func (w *Worker) Rollout(ctx context.Context, shift float64, maxSteps int) (float64, int, error) {
	obs, err := w.env.Reset()
	if err != nil {
		return 0, 0, fmt.Errorf("rollout: reset: %w", err)
	}
	var total float64
	steps := 0
	for steps < maxSteps {
		if err := ctx.Err(); err != nil {
			return 0, steps, err
		}
		action, err := w.policy.Act(obs)
		if err != nil {
			return 0, steps, fmt.Errorf("rollout: act: %w", err)
		}
		next, reward, done, err := w.env.Step(action)
		if err != nil {
			return 0, steps, fmt.Errorf("rollout: step: %w", err)
		}
		steps++
		total += reward - shift
		if done {
			break
		}
		obs = next
	}
	return total, steps, nil
}

// RunTrials executes count trials against baseWeights. Training trials draw a
// fresh offset, scale the noise slice by the perturbation std, and run the
// antithetic pair with filter updates on. Evaluation trials run the
// unperturbed weights once with no shift, filter updates off, and the
// environment's own episode limit.
func (w *Worker) RunTrials(ctx context.Context, baseWeights []float64, count int, shift float64, evaluate bool) (Batch, error) {
	if len(baseWeights) != w.policy.Dim() {
		return Batch{}, fmt.Errorf("rollout: base weights length %d, policy dim %d", len(baseWeights), w.policy.Dim())
	}
	batch := Batch{Worker: w.id, Trials: make([]Trial, 0, count)}
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return Batch{}, err
		}
		if evaluate {
			trial, err := w.runEval(ctx, baseWeights)
			if err != nil {
				return Batch{}, err
			}
			batch.Trials = append(batch.Trials, trial)
			continue
		}
		trial, steps, err := w.runPair(ctx, baseWeights, shift)
		if err != nil {
			return Batch{}, err
		}
		batch.Trials = append(batch.Trials, trial)
		batch.Steps += steps
	}
	return batch, nil
}

func (w *Worker) runEval(ctx context.Context, baseWeights []float64) (Trial, error) {
	if err := w.policy.SetWeights(baseWeights); err != nil {
		return Trial{}, err
	}
	w.policy.Filter().SetUpdate(false)
	defer w.policy.Filter().SetUpdate(true)

	reward, _, err := w.Rollout(ctx, 0, w.env.MaxEpisodeSteps())
	if err != nil {
		return Trial{}, err
	}
	return Trial{Offset: EvalOffset, Rewards: [2]float64{reward, 0}}, nil
}

func (w *Worker) runPair(ctx context.Context, baseWeights []float64, shift float64) (Trial, int, error) {
	dim := w.policy.Dim()
	offset, err := w.stream.SampleOffset(dim)
	if err != nil {
		return Trial{}, 0, err
	}
	delta, err := w.noise.Get(offset, dim)
	if err != nil {
		// An in-bounds sampled offset can only fail addressing if the caller
		// raced a table swap; retry once with a fresh offset per contract.
		offset, err = w.stream.SampleOffset(dim)
		if err != nil {
			return Trial{}, 0, err
		}
		if delta, err = w.noise.Get(offset, dim); err != nil {
			return Trial{}, 0, err
		}
	}

	w.policy.Filter().SetUpdate(true)

	copy(w.perturbed, baseWeights)
	floats.AddScaled(w.perturbed, w.deltaStd, delta)
	if err := w.policy.SetWeights(w.perturbed); err != nil {
		return Trial{}, 0, err
	}
	posReward, posSteps, err := w.Rollout(ctx, shift, w.rolloutLength)
	if err != nil {
		return Trial{}, 0, err
	}

	copy(w.perturbed, baseWeights)
	floats.AddScaled(w.perturbed, -w.deltaStd, delta)
	if err := w.policy.SetWeights(w.perturbed); err != nil {
		return Trial{}, 0, err
	}
	negReward, negSteps, err := w.Rollout(ctx, shift, w.rolloutLength)
	if err != nil {
		return Trial{}, 0, err
	}

	return Trial{Offset: offset, Rewards: [2]float64{posReward, negReward}}, posSteps + negSteps, nil
}

// FilterSnapshot exposes the worker filter's running statistics and delta
// buffer for centralized consolidation.
func (w *Worker) FilterSnapshot() obsfilter.Snapshot {
	return w.policy.Filter().Snapshot()
}

// SyncFilter overwrites the worker filter's running statistics from the
// coordinator's merged copy.
func (w *Worker) SyncFilter(ref obsfilter.Snapshot) error {
	return w.policy.Filter().Sync(ref)
}

func (w *Worker) ClearFilterBuffer() {
	w.policy.Filter().ClearBuffer()
}

func (w *Worker) SetWeights(weights []float64) error {
	return w.policy.SetWeights(weights)
}

func (w *Worker) Weights() []float64 {
	return w.policy.Weights()
}
