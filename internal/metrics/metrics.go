// Package metrics exposes prometheus collectors for training throughput and
// evaluation quality.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Set struct {
	Timesteps      prometheus.Counter
	Episodes       prometheus.Counter
	TrainSteps     prometheus.Counter
	WorkerRestarts prometheus.Counter
	StepDuration   prometheus.Histogram
	GradNorm       prometheus.Gauge
	EvalRewardMean prometheus.Gauge
	EvalRewardStd  prometheus.Gauge
}

// New registers the trainer collectors on reg and returns them.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		Timesteps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "randsearch_env_timesteps_total",
			Help: "Cumulative environment steps consumed by training rollouts.",
		}),
		Episodes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "randsearch_episodes_total",
			Help: "Cumulative training episodes (two per antithetic trial).",
		}),
		TrainSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "randsearch_train_steps_total",
			Help: "Completed training steps.",
		}),
		WorkerRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "randsearch_worker_restarts_total",
			Help: "Workers rebuilt after a rollout failure.",
		}),
		StepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "randsearch_step_duration_seconds",
			Help:    "Wall-clock duration of one training step.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
		GradNorm: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "randsearch_gradient_norm",
			Help: "Euclidean norm of the latest aggregated gradient estimate.",
		}),
		EvalRewardMean: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "randsearch_eval_reward_mean",
			Help: "Mean return of the latest evaluation pass.",
		}),
		EvalRewardStd: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "randsearch_eval_reward_std",
			Help: "Return standard deviation of the latest evaluation pass.",
		}),
	}
	reg.MustRegister(
		s.Timesteps, s.Episodes, s.TrainSteps, s.WorkerRestarts,
		s.StepDuration, s.GradNorm, s.EvalRewardMean, s.EvalRewardStd,
	)
	return s
}

// NewNop returns a set registered on a private registry, for callers that do
// not scrape.
func NewNop() *Set {
	return New(prometheus.NewRegistry())
}
