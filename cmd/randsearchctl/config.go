package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"randsearch/pkg/randsearch"
)

// fileConfig is the YAML form of a training run. Every field is optional;
// zero values fall back to the client defaults.
type fileConfig struct {
	Env        string `yaml:"env"`
	Iterations int    `yaml:"iterations"`

	Workers       int     `yaml:"workers"`
	Deltas        int     `yaml:"deltas"`
	DeltasUsed    int     `yaml:"deltas_used"`
	DeltaStd      float64 `yaml:"delta_std"`
	RolloutLength int     `yaml:"rollout_length"`
	StepSize      float64 `yaml:"step_size"`
	Momentum      float64 `yaml:"momentum"`
	RewardShift   float64 `yaml:"reward_shift"`
	Seed          int64   `yaml:"seed"`

	ObservationFilter string `yaml:"observation_filter"`
	NoiseSize         int    `yaml:"noise_size"`

	EvalInterval int `yaml:"eval_interval"`
	EvalRollouts int `yaml:"eval_rollouts"`

	FailurePolicy     string `yaml:"failure_policy"`
	MaxWorkerRestarts int    `yaml:"max_worker_restarts"`
}

func loadRunConfig(path string) (randsearch.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return randsearch.RunRequest{}, fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return randsearch.RunRequest{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := fc.validate(); err != nil {
		return randsearch.RunRequest{}, fmt.Errorf("config %s: %w", path, err)
	}
	return fc.request(), nil
}

func (fc fileConfig) validate() error {
	if fc.Iterations < 0 {
		return fmt.Errorf("iterations must be >= 0, got %d", fc.Iterations)
	}
	if fc.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", fc.Workers)
	}
	if fc.Deltas < 0 {
		return fmt.Errorf("deltas must be >= 0, got %d", fc.Deltas)
	}
	if fc.DeltaStd < 0 {
		return fmt.Errorf("delta_std must be >= 0, got %v", fc.DeltaStd)
	}
	if fc.StepSize < 0 {
		return fmt.Errorf("step_size must be >= 0, got %v", fc.StepSize)
	}
	if fc.Momentum < 0 || fc.Momentum >= 1 {
		return fmt.Errorf("momentum must be in [0, 1), got %v", fc.Momentum)
	}
	return nil
}

func (fc fileConfig) request() randsearch.RunRequest {
	return randsearch.RunRequest{
		Env:               fc.Env,
		Iterations:        fc.Iterations,
		Workers:           fc.Workers,
		Deltas:            fc.Deltas,
		DeltasUsed:        fc.DeltasUsed,
		DeltaStd:          fc.DeltaStd,
		RolloutLength:     fc.RolloutLength,
		StepSize:          fc.StepSize,
		Momentum:          fc.Momentum,
		RewardShift:       fc.RewardShift,
		Seed:              fc.Seed,
		ObservationFilter: fc.ObservationFilter,
		NoiseSize:         fc.NoiseSize,
		EvalInterval:      fc.EvalInterval,
		EvalRollouts:      fc.EvalRollouts,
		FailurePolicy:     fc.FailurePolicy,
		MaxWorkerRestarts: fc.MaxWorkerRestarts,
	}
}
