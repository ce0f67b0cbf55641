package rollout

import (
	"context"
	"math"
	"testing"

	"randsearch/internal/env"
	"randsearch/internal/noise"
	"randsearch/internal/obsfilter"
	"randsearch/internal/policy"
)

// linearEnv pays reward equal to the action's first component, with a fixed
// observation, for a fixed number of steps.
type linearEnv struct {
	obs      []float64
	episode  int
	steps    int
	maxSteps int
}

func newLinearEnv(obs []float64, maxSteps int) *linearEnv {
	return &linearEnv{obs: obs, maxSteps: maxSteps}
}

func (e *linearEnv) Reset() ([]float64, error) {
	e.episode++
	e.steps = 0
	return append([]float64(nil), e.obs...), nil
}

func (e *linearEnv) Step(action []float64) ([]float64, float64, bool, error) {
	e.steps++
	return append([]float64(nil), e.obs...), action[0], e.steps >= e.maxSteps, nil
}

func (e *linearEnv) ObservationSize() int { return len(e.obs) }
func (e *linearEnv) ActionSize() int      { return 1 }
func (e *linearEnv) MaxEpisodeSteps() int { return e.maxSteps }

// recordingPolicy captures every weight vector assigned to it.
type recordingPolicy struct {
	policy.Policy
	assigned [][]float64
}

func (p *recordingPolicy) SetWeights(w []float64) error {
	p.assigned = append(p.assigned, append([]float64(nil), w...))
	return p.Policy.SetWeights(w)
}

func newTestWorker(t *testing.T, e env.Env, filter obsfilter.Filter, tableSize int, deltaStd float64) (*Worker, *recordingPolicy, *noise.Table) {
	t.Helper()
	table, err := noise.NewTable(tableSize, 12345)
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	linear, err := policy.NewLinear(e.ObservationSize(), e.ActionSize(), filter)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	recorder := &recordingPolicy{Policy: linear}
	worker, err := NewWorker(WorkerConfig{
		ID:            1,
		Env:           e,
		Policy:        recorder,
		Noise:         table,
		StreamSeed:    99,
		DeltaStd:      deltaStd,
		RolloutLength: 5,
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	return worker, recorder, table
}

func TestRolloutAccumulatesShiftedReward(t *testing.T) {
	e := newLinearEnv([]float64{1, 0}, 4)
	worker, _, _ := newTestWorker(t, e, nil, 1024, 0.02)
	if err := worker.SetWeights([]float64{2, 0}); err != nil {
		t.Fatalf("set weights: %v", err)
	}
	// action = 2 each step, shift 0.5, 4 steps: (2-0.5)*4.
	total, steps, err := worker.Rollout(context.Background(), 0.5, 10)
	if err != nil {
		t.Fatalf("rollout: %v", err)
	}
	if steps != 4 {
		t.Fatalf("steps = %d, want 4", steps)
	}
	if math.Abs(total-6) > 1e-12 {
		t.Fatalf("total = %v, want 6", total)
	}
}

func TestRolloutHonorsMaxSteps(t *testing.T) {
	e := newLinearEnv([]float64{1, 0}, 100)
	worker, _, _ := newTestWorker(t, e, nil, 1024, 0.02)
	_, steps, err := worker.Rollout(context.Background(), 0, 3)
	if err != nil {
		t.Fatalf("rollout: %v", err)
	}
	if steps != 3 {
		t.Fatalf("steps = %d, want 3", steps)
	}
}

func TestRunTrialsAntitheticReconstruction(t *testing.T) {
	const deltaStd = 0.05
	e := newLinearEnv([]float64{1, 1}, 5)
	worker, recorder, table := newTestWorker(t, e, nil, 4096, deltaStd)

	base := []float64{0.3, -0.7}
	batch, err := worker.RunTrials(context.Background(), base, 2, 0, false)
	if err != nil {
		t.Fatalf("run trials: %v", err)
	}
	if len(batch.Trials) != 2 {
		t.Fatalf("trials = %d, want 2", len(batch.Trials))
	}
	// Two weight assignments per trial: base+delta then base-delta.
	if len(recorder.assigned) != 4 {
		t.Fatalf("weight assignments = %d, want 4", len(recorder.assigned))
	}
	for i, trial := range batch.Trials {
		slice, err := table.Get(trial.Offset, len(base))
		if err != nil {
			t.Fatalf("reconstruct offset %d: %v", trial.Offset, err)
		}
		pos := recorder.assigned[2*i]
		neg := recorder.assigned[2*i+1]
		for j := range base {
			wantPos := base[j] + deltaStd*slice[j]
			wantNeg := base[j] - deltaStd*slice[j]
			if pos[j] != wantPos {
				t.Fatalf("trial %d: pos weight[%d] = %v, want %v", i, j, pos[j], wantPos)
			}
			if neg[j] != wantNeg {
				t.Fatalf("trial %d: neg weight[%d] = %v, want %v", i, j, neg[j], wantNeg)
			}
		}
	}
}

func TestRunTrialsRewardPairMatchesPerturbation(t *testing.T) {
	const deltaStd = 0.1
	e := newLinearEnv([]float64{1, 1}, 5)
	worker, _, table := newTestWorker(t, e, nil, 4096, deltaStd)

	base := []float64{0, 0}
	batch, err := worker.RunTrials(context.Background(), base, 1, 0, false)
	if err != nil {
		t.Fatalf("run trials: %v", err)
	}
	trial := batch.Trials[0]
	slice, _ := table.Get(trial.Offset, 2)
	// action is the dot product of weights with obs (1,1); 5 steps per episode.
	wantPos := 5 * deltaStd * (slice[0] + slice[1])
	if math.Abs(trial.Rewards[0]-wantPos) > 1e-9 {
		t.Fatalf("pos reward = %v, want %v", trial.Rewards[0], wantPos)
	}
	if math.Abs(trial.Rewards[1]+wantPos) > 1e-9 {
		t.Fatalf("neg reward = %v, want %v", trial.Rewards[1], -wantPos)
	}
	if batch.Steps != 10 {
		t.Fatalf("steps = %d, want 10", batch.Steps)
	}
}

func TestRunTrialsEvaluate(t *testing.T) {
	e := newLinearEnv([]float64{2, 0}, 6)
	filter := obsfilter.NewMeanStd(2, 0)
	worker, _, _ := newTestWorker(t, e, filter, 1024, 0.02)

	base := []float64{1, 0}
	batch, err := worker.RunTrials(context.Background(), base, 3, 1.5, true)
	if err != nil {
		t.Fatalf("run trials: %v", err)
	}
	if batch.Steps != 0 {
		t.Fatalf("evaluation must not count steps, got %d", batch.Steps)
	}
	for _, trial := range batch.Trials {
		if !trial.IsEval() {
			t.Fatalf("expected eval sentinel, got offset %d", trial.Offset)
		}
		if trial.Rewards[1] != 0 {
			t.Fatalf("eval trial carries a pair: %v", trial.Rewards)
		}
	}
	// Evaluation rollouts must not touch filter statistics; the observation
	// would otherwise normalize away from its raw value.
	if snap := worker.FilterSnapshot(); snap.Count != 0 {
		t.Fatalf("filter recorded %v observations during evaluation", snap.Count)
	}
}

func TestRunTrialsBaseWeightsUntouched(t *testing.T) {
	e := newLinearEnv([]float64{1, 1}, 3)
	worker, _, _ := newTestWorker(t, e, nil, 2048, 0.3)
	base := []float64{0.5, -0.5}
	if _, err := worker.RunTrials(context.Background(), base, 4, 0, false); err != nil {
		t.Fatalf("run trials: %v", err)
	}
	if base[0] != 0.5 || base[1] != -0.5 {
		t.Fatalf("base weights mutated: %v", base)
	}
}

func TestFilterSnapshotFlowsThroughWorker(t *testing.T) {
	e := newLinearEnv([]float64{3, -1}, 4)
	filter := obsfilter.NewMeanStd(2, 0)
	worker, _, _ := newTestWorker(t, e, filter, 1024, 0.02)

	if _, err := worker.RunTrials(context.Background(), []float64{0, 0}, 2, 0, false); err != nil {
		t.Fatalf("run trials: %v", err)
	}
	snap := worker.FilterSnapshot()
	if snap.BufferCount == 0 {
		t.Fatal("training rollouts should fill the filter delta buffer")
	}
	worker.ClearFilterBuffer()
	if worker.FilterSnapshot().BufferCount != 0 {
		t.Fatal("clear buffer did not reset delta state")
	}
}
