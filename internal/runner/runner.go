// Package runner executes one evaluation end to end: load keys, evaluate,
// report, then publish and record the outcome.
package runner

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ricesearch/senseval/internal/bus"
	"github.com/ricesearch/senseval/internal/config"
	"github.com/ricesearch/senseval/internal/evaluation"
	"github.com/ricesearch/senseval/internal/history"
	"github.com/ricesearch/senseval/internal/key"
	"github.com/ricesearch/senseval/internal/metrics"
	"github.com/ricesearch/senseval/internal/pkg/errors"
	"github.com/ricesearch/senseval/internal/pkg/logger"
	"github.com/ricesearch/senseval/internal/remap"
	"github.com/ricesearch/senseval/internal/scoring"
)

// sideEffectTimeout bounds each publish and history write.
const sideEffectTimeout = 10 * time.Second

// Request names the inputs of one run.
type Request struct {
	GoldPath   string
	TestPath   string
	OutputPath string // remapped key destination; empty disables
	Remap      bool
}

// HistoryStore records completed runs.
type HistoryStore interface {
	Save(ctx context.Context, r history.Record) error
}

// Options configures a Runner. Only Config is required.
type Options struct {
	Config  *config.Config
	Logger  *logger.Logger
	Stdout  io.Writer
	Bus     bus.Bus
	History HistoryStore
	Metrics *metrics.Metrics
}

// Runner executes evaluation runs.
type Runner struct {
	cfg     *config.Config
	log     *logger.Logger
	stdout  io.Writer
	bus     bus.Bus
	history HistoryStore
	metrics *metrics.Metrics
}

// New creates a runner.
func New(opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Bus == nil {
		opts.Bus = bus.NopBus{}
	}

	return &Runner{
		cfg:     opts.Config,
		log:     opts.Logger,
		stdout:  opts.Stdout,
		bus:     bus.Instrument(opts.Bus, opts.Metrics),
		history: opts.History,
		metrics: opts.Metrics,
	}
}

// Metrics returns the metrics the runner records into.
func (r *Runner) Metrics() *metrics.Metrics {
	return r.metrics
}

// Run evaluates the request and writes the report to stdout. Publishing,
// history and the metrics file are best effort: their failures are logged
// and never fail the run.
func (r *Runner) Run(ctx context.Context, req Request) (report *evaluation.Report, err error) {
	start := time.Now()
	runID := uuid.NewString()
	log := r.log.WithRun(runID)

	defer func() {
		r.metrics.RecordRun(time.Since(start), err)
		if err != nil {
			log.WithError(err).Error("Evaluation failed", "code", errors.CodeOf(err))
		}
		r.writeMetricsFile(log)
	}()

	metric, err := scoring.New(r.cfg.Evaluation.Metric)
	if err != nil {
		return nil, err
	}

	gold, test, err := loadKeys(ctx, key.NewLoader(log), req.GoldPath, req.TestPath)
	if err != nil {
		return nil, err
	}

	var remapper evaluation.Remapper
	if req.Remap {
		remapper = remap.Graded{}
	}

	var out *bufio.Writer
	if req.OutputPath != "" {
		f, ferr := os.Create(req.OutputPath)
		if ferr != nil {
			return nil, errors.IOError("creating remapped key file", ferr).WithDetail("path", req.OutputPath)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = errors.IOError("closing remapped key file", cerr).WithDetail("path", req.OutputPath)
			}
		}()
		out = bufio.NewWriter(f)
	}

	opts := evaluation.Options{
		Folds:    r.cfg.Evaluation.Folds,
		Seed:     r.cfg.Evaluation.Seed,
		Workers:  r.cfg.Evaluation.Workers,
		Remapper: remapper,
		Metric:   metric,
		Logger:   log,
		Observer: r.metrics,
	}
	if out != nil {
		opts.Output = out
	}
	ev, err := evaluation.NewEvaluator(opts)
	if err != nil {
		return nil, err
	}

	res, err := ev.Run(ctx, gold, test)
	if err != nil {
		return nil, err
	}
	if out != nil {
		if ferr := out.Flush(); ferr != nil {
			return nil, errors.IOError("writing remapped key file", ferr).WithDetail("path", req.OutputPath)
		}
	}

	report, err = evaluation.Summarize(gold, res.Scores)
	if err != nil {
		return nil, err
	}
	if err = evaluation.WriteReport(r.stdout, report); err != nil {
		return nil, err
	}
	r.metrics.RecordReport(metric.Name(), report)

	record := history.Record{
		ID:              runID,
		Metric:          metric.Name(),
		Folds:           r.cfg.Evaluation.Folds,
		Seed:            r.cfg.Evaluation.Seed,
		Remapped:        req.Remap,
		GoldPath:        req.GoldPath,
		TestPath:        req.TestPath,
		GoldFingerprint: key.Fingerprint(gold),
		TestFingerprint: key.Fingerprint(test),
		StartedAt:       start.UTC(),
		DurationMs:      time.Since(start).Milliseconds(),
		Terms:           report.Terms,
		All:             report.All,
	}

	log.Info("Evaluation completed",
		"metric", record.Metric,
		"average", report.All.Average,
		"recall", report.All.Recall,
		"fscore", report.All.FScore,
		"duration_ms", record.DurationMs,
	)

	r.publish(ctx, log, record)
	r.save(ctx, log, record)

	return report, nil
}

// loadKeys reads the gold and test keys concurrently.
func loadKeys(ctx context.Context, loader *key.Loader, goldPath, testPath string) (*key.Key, *key.Key, error) {
	var gold, test *key.Key
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		gold, err = loader.Load(goldPath)
		return err
	})
	g.Go(func() error {
		var err error
		test, err = loader.Load(testPath)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return gold, test, nil
}

func (r *Runner) publish(ctx context.Context, log *logger.Logger, record history.Record) {
	event, err := bus.NewEvent(bus.TypeEvaluationCompleted, record)
	if err != nil {
		log.WithError(err).Warn("Failed to build evaluation event")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
	defer cancel()

	if err := r.bus.Publish(ctx, r.cfg.Bus.Topic, event); err != nil {
		log.WithError(err).Warn("Failed to publish evaluation event", "topic", r.cfg.Bus.Topic)
		return
	}
	log.Debug("Published evaluation event", "topic", r.cfg.Bus.Topic, "event_id", event.ID)
}

func (r *Runner) save(ctx context.Context, log *logger.Logger, record history.Record) {
	if r.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
	defer cancel()

	if err := r.history.Save(ctx, record); err != nil {
		log.WithError(err).Warn("Failed to save run history")
	}
}

func (r *Runner) writeMetricsFile(log *logger.Logger) {
	path := strings.TrimSpace(r.cfg.Metrics.File)
	if path == "" {
		return
	}
	if err := r.metrics.WriteFile(path); err != nil {
		log.WithError(err).Warn("Failed to write metrics file", "path", path)
	}
}
