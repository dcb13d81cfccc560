package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricesearch/senseval/internal/bus"
	"github.com/ricesearch/senseval/internal/history"
	"github.com/ricesearch/senseval/internal/pkg/errors"
	"github.com/ricesearch/senseval/internal/pkg/logger"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past evaluation runs recorded in Redis",
		Long: `List evaluation runs recorded in the Redis run history, oldest first.

History is recorded only when a Redis URL is configured
(history.redis_url or SENSEVAL_REDIS_URL).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cfg.HistoryEnabled() {
				return errors.New(errors.CodeValidation, "run history is not configured")
			}

			since, _ := cmd.Flags().GetDuration("since")
			limit, _ := cmd.Flags().GetInt("limit")
			all, _ := cmd.Flags().GetBool("all-metrics")

			store, err := openHistory(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := commandContext(cmd)
			defer stop()

			metricNames := []string{strings.ToLower(cfg.Evaluation.Metric)}
			if all {
				if metricNames, err = store.Metrics(ctx); err != nil {
					return err
				}
			}

			var records []history.Record
			for _, name := range metricNames {
				recs, err := store.Load(ctx, name, time.Now().Add(-since))
				if err != nil {
					return err
				}
				records = append(records, recs...)
			}
			if limit > 0 && len(records) > limit {
				records = records[len(records)-limit:]
			}

			return writeHistory(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().Duration("since", 7*24*time.Hour, "how far back to list runs")
	cmd.Flags().Int("limit", 0, "show only the most recent runs (0 for all)")
	cmd.Flags().Bool("all-metrics", false, "list runs of every metric")

	return cmd
}

func writeHistory(w io.Writer, records []history.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tID\tMETRIC\tFOLDS\tREMAP\tAVERAGE\tRECALL\tFSCORE")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\t%.4f\t%.4f\t%.4f\n",
			r.StartedAt.Format(time.RFC3339), r.ID, r.Metric, r.Folds, r.Remapped,
			r.All.Average, r.All.Recall, r.All.FScore)
	}
	return tw.Flush()
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print evaluation results as they are published on the bus",
		Long: `Subscribe to the evaluation topic and print a line for every completed run
until interrupted. Requires a kafka bus; the in-process buses only see events
from the same process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.BusType() != "kafka" {
				return errors.New(errors.CodeValidation, "watch requires the kafka bus").
					WithDetail("bus_type", cfg.Bus.Type)
			}
			log := logger.New(cfg.Log.Level, cfg.Log.Format)

			cfg.Bus.EventLog = ""
			eventBus, err := bus.NewBus(cfg.Bus, log)
			if err != nil {
				return fmt.Errorf("failed to create event bus: %w", err)
			}
			defer eventBus.Close()

			ctx, stop := commandContext(cmd)
			defer stop()

			out := cmd.OutOrStdout()
			err = eventBus.Subscribe(ctx, cfg.Bus.Topic, func(_ context.Context, event bus.Event) error {
				return printEvent(out, event)
			})
			if err != nil {
				return err
			}

			log.Info("Watching evaluation results", "topic", cfg.Bus.Topic)
			<-ctx.Done()
			return nil
		},
	}
}

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List or replay evaluation events from the event log",
		Long: `Read the JSON lines event log written when bus.event_log is set.

With --replay the selected events are published again on the configured
bus, in the order they were logged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			path, _ := cmd.Flags().GetString("log")
			if path == "" {
				path = cfg.Bus.EventLog
			}
			if path == "" {
				return errors.New(errors.CodeValidation, "no event log configured")
			}

			since, _ := cmd.Flags().GetDuration("since")
			limit, _ := cmd.Flags().GetInt("limit")
			replay, _ := cmd.Flags().GetBool("replay")

			filter := bus.EventFilter{
				Type:  bus.TypeEvaluationCompleted,
				Limit: limit,
			}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}

			if !replay {
				events, err := bus.ReadEventLog(path, filter)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, e := range events {
					if err := printEvent(out, e.Event); err != nil {
						return err
					}
				}
				return nil
			}

			log := logger.New(cfg.Log.Level, cfg.Log.Format)

			// Replaying must not append to the log being read.
			cfg.Bus.EventLog = ""
			eventBus, err := bus.NewBus(cfg.Bus, log)
			if err != nil {
				return fmt.Errorf("failed to create event bus: %w", err)
			}
			defer eventBus.Close()

			eventLog, err := bus.OpenEventLog(path)
			if err != nil {
				return err
			}
			defer eventLog.Close()

			ctx, stop := commandContext(cmd)
			defer stop()

			n, err := eventLog.Replay(ctx, eventBus, filter)
			log.Info("Replayed evaluation events", "path", path, "bus_type", cfg.Bus.Type, "count", n)
			return err
		},
	}

	cmd.Flags().String("log", "", "event log path (defaults to bus.event_log)")
	cmd.Flags().Duration("since", 0, "only events newer than this (0 for all)")
	cmd.Flags().Int("limit", 0, "maximum number of events (0 for all)")
	cmd.Flags().Bool("replay", false, "publish the events on the configured bus")

	return cmd
}

// printEvent writes a one-line summary of an evaluation event.
func printEvent(w io.Writer, event bus.Event) error {
	var r history.Record
	if err := event.Decode(&r); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s\t%s\t%s\tfolds=%d\tremap=%t\taverage=%.4f\trecall=%.4f\tfscore=%.4f\n",
		time.UnixMilli(event.Timestamp).UTC().Format(time.RFC3339), r.ID, r.Metric, r.Folds, r.Remapped,
		r.All.Average, r.All.Recall, r.All.FScore)
	return err
}
