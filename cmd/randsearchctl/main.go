// randsearchctl trains linear policies by randomized search over weight
// perturbations and inspects the stored runs.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"randsearch/internal/metrics"
	"randsearch/pkg/randsearch"
)

type rootOptions struct {
	storeKind string
	dbPath    string
	logLevel  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "randsearchctl",
		Short:         "Train and inspect randomized-search policies",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.storeKind, "store", "memory", "checkpoint store backend: memory|sqlite")
	root.PersistentFlags().StringVar(&opts.dbPath, "db-path", "randsearch.db", "sqlite database path")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: trace|debug|info|warn|error")
	root.AddCommand(
		newTrainCmd(opts),
		newEvalCmd(opts),
		newRunsCmd(opts),
		newHistoryCmd(opts),
		newCheckpointCmd(opts),
		newEnvsCmd(opts),
	)
	return root
}

func (o *rootOptions) logger() (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(o.logLevel)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("parse log level: %w", err)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()
	return log, nil
}

func (o *rootOptions) client(log zerolog.Logger, met *metrics.Set) (*randsearch.Client, error) {
	return randsearch.New(randsearch.Options{
		StoreKind: o.storeKind,
		DBPath:    o.dbPath,
		Logger:    log,
		Metrics:   met,
	})
}

func newTrainCmd(opts *rootOptions) *cobra.Command {
	var (
		configPath  string
		metricsAddr string
		flagReq     randsearch.RunRequest
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run a training loop and persist its checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := flagReq
			if configPath != "" {
				base, err := loadRunConfig(configPath)
				if err != nil {
					return err
				}
				overlayFlags(cmd, &base, flagReq)
				base.Resume = flagReq.Resume
				req = base
			}

			log, err := opts.logger()
			if err != nil {
				return err
			}
			registry := prometheus.NewRegistry()
			client, err := opts.client(log, metrics.New(registry))
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()
			if err := client.Init(cmd.Context()); err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			var server *http.Server
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
				server = &http.Server{Addr: metricsAddr, Handler: mux}
				g.Go(func() error {
					log.Info().Str("addr", metricsAddr).Msg("serving metrics")
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
			}
			g.Go(func() error {
				defer func() {
					if server != nil {
						shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
						defer cancel()
						_ = server.Shutdown(shutdownCtx)
					}
				}()
				summary, err := client.Run(ctx, req)
				if err != nil {
					return err
				}
				fmt.Printf("run=%s env=%s steps=%d episodes=%d timesteps=%d best=%.3f final=%.3f\n",
					summary.RunID, summary.Env, summary.Steps, summary.Episodes,
					summary.Timesteps, summary.BestEval, summary.FinalEval)
				return nil
			})
			return g.Wait()
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "YAML run configuration")
	f.StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9090")
	f.StringVar(&flagReq.Env, "env", "", "environment name")
	f.IntVar(&flagReq.Iterations, "iterations", 0, "training steps to run")
	f.IntVar(&flagReq.Workers, "workers", 0, "rollout workers")
	f.IntVar(&flagReq.Deltas, "deltas", 0, "perturbation pairs per step")
	f.IntVar(&flagReq.DeltasUsed, "deltas-used", 0, "top pairs kept for the update (0 keeps all)")
	f.Float64Var(&flagReq.DeltaStd, "delta-std", 0, "perturbation standard deviation")
	f.IntVar(&flagReq.RolloutLength, "rollout-length", 0, "max steps per training rollout")
	f.Float64Var(&flagReq.StepSize, "step-size", 0, "optimizer learning rate")
	f.Float64Var(&flagReq.Momentum, "momentum", 0, "momentum coefficient (0 for plain SGD)")
	f.Float64Var(&flagReq.RewardShift, "reward-shift", 0, "constant subtracted from every step reward")
	f.Int64Var(&flagReq.Seed, "seed", 0, "master seed")
	f.StringVar(&flagReq.ObservationFilter, "filter", "", "observation filter: none|mean-std")
	f.IntVar(&flagReq.NoiseSize, "noise-size", 0, "shared noise table entries")
	f.IntVar(&flagReq.EvalInterval, "eval-interval", 0, "steps between evaluation passes")
	f.IntVar(&flagReq.EvalRollouts, "eval-rollouts", 0, "rollouts per evaluation pass")
	f.StringVar(&flagReq.FailurePolicy, "failure-policy", "", "worker failure policy: fail-step|replace")
	f.IntVar(&flagReq.MaxWorkerRestarts, "max-restarts", 0, "worker restarts allowed under replace")
	f.StringVar(&flagReq.Resume, "resume", "", "run ID to continue from its checkpoint")
	return cmd
}

// overlayFlags copies every flag the user set explicitly over the file
// configuration, so the command line wins field by field.
func overlayFlags(cmd *cobra.Command, base *randsearch.RunRequest, flags randsearch.RunRequest) {
	set := cmd.Flags().Changed
	if set("env") {
		base.Env = flags.Env
	}
	if set("iterations") {
		base.Iterations = flags.Iterations
	}
	if set("workers") {
		base.Workers = flags.Workers
	}
	if set("deltas") {
		base.Deltas = flags.Deltas
	}
	if set("deltas-used") {
		base.DeltasUsed = flags.DeltasUsed
	}
	if set("delta-std") {
		base.DeltaStd = flags.DeltaStd
	}
	if set("rollout-length") {
		base.RolloutLength = flags.RolloutLength
	}
	if set("step-size") {
		base.StepSize = flags.StepSize
	}
	if set("momentum") {
		base.Momentum = flags.Momentum
	}
	if set("reward-shift") {
		base.RewardShift = flags.RewardShift
	}
	if set("seed") {
		base.Seed = flags.Seed
	}
	if set("filter") {
		base.ObservationFilter = flags.ObservationFilter
	}
	if set("noise-size") {
		base.NoiseSize = flags.NoiseSize
	}
	if set("eval-interval") {
		base.EvalInterval = flags.EvalInterval
	}
	if set("eval-rollouts") {
		base.EvalRollouts = flags.EvalRollouts
	}
	if set("failure-policy") {
		base.FailurePolicy = flags.FailurePolicy
	}
	if set("max-restarts") {
		base.MaxWorkerRestarts = flags.MaxWorkerRestarts
	}
}

func newEvalCmd(opts *rootOptions) *cobra.Command {
	var rollouts int
	cmd := &cobra.Command{
		Use:   "eval RUN_ID",
		Short: "Score the stored weights of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := opts.logger()
			if err != nil {
				return err
			}
			client, err := opts.client(log, nil)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			report, err := client.Evaluate(cmd.Context(), args[0], rollouts)
			if err != nil {
				return err
			}
			fmt.Printf("run=%s rollouts=%d reward_mean=%.3f reward_std=%.3f\n",
				args[0], report.Rollouts, report.RewardMean, report.RewardStd)
			return nil
		},
	}
	cmd.Flags().IntVar(&rollouts, "rollouts", 10, "evaluation rollouts")
	return cmd
}

func newRunsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := opts.logger()
			if err != nil {
				return err
			}
			client, err := opts.client(log, nil)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			records, err := client.ListRuns(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("%-36s  %-16s  %8s  %10s  %10s\n", "RUN", "ENV", "STEPS", "BEST", "FINAL")
			for _, r := range records {
				fmt.Printf("%-36s  %-16s  %8d  %10.3f  %10.3f\n",
					r.RunID, r.EnvName, r.Steps, r.BestEval, r.FinalEval)
			}
			return nil
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history RUN_ID",
		Short: "Print the per-evaluation reward means of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := opts.logger()
			if err != nil {
				return err
			}
			client, err := opts.client(log, nil)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			history, err := client.RewardHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for i, r := range history {
				fmt.Printf("%4d  %10.3f\n", i+1, r)
			}
			return nil
		},
	}
}

func newCheckpointCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect stored checkpoints",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show RUN_ID",
		Short: "Print a checkpoint summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			log, err := opts.logger()
			if err != nil {
				return err
			}
			client, err := opts.client(log, nil)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			cp, err := client.Checkpoint(c.Context(), args[0])
			if err != nil {
				return err
			}
			summary := struct {
				RunID              string  `json:"run_id"`
				Step               int     `json:"step"`
				WeightDim          int     `json:"weight_dim"`
				Episodes           int64   `json:"episodes"`
				Timesteps          int64   `json:"timesteps"`
				FilterObservations float64 `json:"filter_observations"`
			}{cp.RunID, cp.Step, len(cp.Weights), cp.Episodes, cp.Timesteps, cp.Filter.Count}
			out, err := json.MarshalIndent(summary, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	})
	return cmd
}

func newEnvsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "envs",
		Short: "List registered environments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := opts.logger()
			if err != nil {
				return err
			}
			client, err := opts.client(log, nil)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			for _, name := range client.Environments() {
				fmt.Println(name)
			}
			return nil
		},
	}
}
