// Package main provides the senseval binary.
// It scores a sense-induction system's key against a gold key using k-fold
// cross-validated remapping.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricesearch/senseval/internal/bus"
	"github.com/ricesearch/senseval/internal/config"
	"github.com/ricesearch/senseval/internal/history"
	"github.com/ricesearch/senseval/internal/pkg/errors"
	"github.com/ricesearch/senseval/internal/pkg/logger"
	"github.com/ricesearch/senseval/internal/runner"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usageLine = "senseval [--no-remapping] gold.key to-test.key [remapped.key]"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(errors.ExitCode(err))
	}
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   usageLine,
		Short: "Senseval - cross-validated scoring of sense-induction keys",
		Long: `Senseval scores the key produced by a word sense induction system against
a gold key. Instances are split into folds; for every fold the induced
labels are remapped onto gold senses using the other folds and the held-out
fold is scored.

The report has one row per term and a final "all" row:
  term  average  recall  fscore

Examples:
  senseval gold.key system.key                  # Jaccard, 5 folds
  senseval gold.key system.key remapped.key     # Also write remapped key
  senseval --no-remapping gold.key system.key   # Score labels as given
  senseval -m gamma --folds 10 gold.key system.key`,
		Args:         cobra.ArbitraryArgs,
		RunE:         runEval,
		SilenceUsage: true,
	}
	rootCmd.SetOut(stdout)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file path")
	flags.StringP("metric", "m", "", "scoring metric (jaccard, gamma, exact, wndcg)")
	flags.Int("folds", 0, "number of cross-validation folds")
	flags.Uint64("seed", 0, "fold permutation seed")
	flags.Int("workers", 0, "folds evaluated in parallel")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text, json)")
	flags.String("metrics-file", "", "write Prometheus metrics to this file")

	rootCmd.Flags().Bool("no-remapping", false, "score the test key without remapping")

	rootCmd.AddCommand(
		versionCmd(),
		historyCmd(),
		watchCmd(),
		eventsCmd(),
	)

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "senseval %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}

func runEval(cmd *cobra.Command, args []string) error {
	// Too few keys is a guided no-op rather than a failure.
	if len(args) < 2 {
		fmt.Fprintln(cmd.OutOrStdout(), "usage: "+usageLine)
		return nil
	}
	if len(args) > 3 {
		return errors.ValidationError(fmt.Sprintf("expected at most 3 arguments, got %d", len(args)))
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	noRemapping, _ := cmd.Flags().GetBool("no-remapping")
	req := runner.Request{
		GoldPath: args[0],
		TestPath: args[1],
		Remap:    cfg.Evaluation.Remapping && !noRemapping,
	}
	if len(args) == 3 {
		req.OutputPath = args[2]
	}

	ctx, stop := commandContext(cmd)
	defer stop()

	eventBus, err := bus.NewBus(cfg.Bus, log)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}
	defer func() {
		if err := eventBus.Close(); err != nil {
			log.WithError(err).Warn("Failed to close event bus")
		}
	}()

	opts := runner.Options{
		Config: cfg,
		Logger: log,
		Stdout: cmd.OutOrStdout(),
		Bus:    eventBus,
	}

	if cfg.HistoryEnabled() {
		store, err := openHistory(cfg)
		if err != nil {
			log.WithError(err).Warn("Run history disabled")
		} else {
			defer store.Close()
			opts.History = store
		}
	}

	log.Debug("Starting evaluation",
		"version", version,
		"metric", cfg.Evaluation.Metric,
		"folds", cfg.Evaluation.Folds,
		"seed", cfg.Evaluation.Seed,
		"remap", req.Remap,
	)

	_, err = runner.New(opts).Run(ctx, req)
	return err
}

// loadConfig loads the config file and environment, then applies any flags
// the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	configPath, _ := flags.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if flags.Changed("metric") {
		cfg.Evaluation.Metric, _ = flags.GetString("metric")
	}
	if flags.Changed("folds") {
		cfg.Evaluation.Folds, _ = flags.GetInt("folds")
	}
	if flags.Changed("seed") {
		cfg.Evaluation.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("workers") {
		cfg.Evaluation.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Log.Format, _ = flags.GetString("log-format")
	}
	if flags.Changed("metrics-file") {
		cfg.Metrics.File, _ = flags.GetString("metrics-file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openHistory(cfg *config.Config) (*history.Store, error) {
	return history.NewStore(cfg.History.RedisURL, time.Duration(cfg.History.TTLHours)*time.Hour)
}

// commandContext returns a context cancelled on interrupt.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
