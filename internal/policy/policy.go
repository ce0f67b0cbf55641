// Package policy treats a policy as an opaque flat parameter vector plus an
// evaluation function mapping observations to actions.
package policy

import "randsearch/internal/obsfilter"

// Policy maps a (filtered) observation to an action. Each worker owns a
// private instance; only the coordinator holds the canonical weight vector.
type Policy interface {
	// Act evaluates the policy on one observation. The observation passes
	// through the policy's filter first.
	Act(obs []float64) ([]float64, error)
	// SetWeights replaces the parameter vector. The slice is copied.
	SetWeights(w []float64) error
	// Weights returns a copy of the current parameter vector.
	Weights() []float64
	// Dim is the length of the flat parameter vector.
	Dim() int
	// Filter is the observation normalizer owned by this policy.
	Filter() obsfilter.Filter
}

// Factory builds a fresh policy instance, one per worker.
type Factory func() (Policy, error)
