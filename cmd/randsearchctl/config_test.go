package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadRunConfig(t *testing.T) {
	path := writeConfig(t, `
env: cart-pole
iterations: 50
workers: 4
deltas: 16
deltas_used: 8
delta_std: 0.03
rollout_length: 500
step_size: 0.02
momentum: 0.9
seed: 42
observation_filter: mean-std
eval_interval: 10
eval_rollouts: 5
failure_policy: replace
max_worker_restarts: 2
`)

	req, err := loadRunConfig(path)
	if err != nil {
		t.Fatalf("loadRunConfig: %v", err)
	}
	if req.Env != "cart-pole" {
		t.Fatalf("env = %q", req.Env)
	}
	if req.Iterations != 50 || req.Workers != 4 || req.Deltas != 16 || req.DeltasUsed != 8 {
		t.Fatalf("unexpected counts: %+v", req)
	}
	if req.DeltaStd != 0.03 || req.StepSize != 0.02 || req.Momentum != 0.9 {
		t.Fatalf("unexpected hyperparameters: %+v", req)
	}
	if req.ObservationFilter != "mean-std" {
		t.Fatalf("filter = %q", req.ObservationFilter)
	}
	if req.FailurePolicy != "replace" || req.MaxWorkerRestarts != 2 {
		t.Fatalf("failure policy = %q restarts = %d", req.FailurePolicy, req.MaxWorkerRestarts)
	}
}

func TestLoadRunConfigDefaultsToZeroValues(t *testing.T) {
	path := writeConfig(t, "env: cart-pole\n")
	req, err := loadRunConfig(path)
	if err != nil {
		t.Fatalf("loadRunConfig: %v", err)
	}
	if req.Workers != 0 || req.Iterations != 0 || req.Seed != 0 {
		t.Fatalf("zero values not preserved: %+v", req)
	}
}

func TestLoadRunConfigRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"negative workers": "workers: -1\n",
		"negative deltas":  "deltas: -4\n",
		"momentum too big": "momentum: 1.5\n",
		"bad yaml":         "env: [unclosed\n",
	}
	for name, body := range cases {
		if _, err := loadRunConfig(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: accepted", name)
		}
	}
}

func TestLoadRunConfigMissingFile(t *testing.T) {
	if _, err := loadRunConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
}
