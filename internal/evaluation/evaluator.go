// Package evaluation runs the cross-validated comparison of an induced sense
// key against a gold key: fold partitioning, per-fold remapping and scoring,
// and aggregation into per-term figures.
package evaluation

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ricesearch/senseval/internal/key"
	"github.com/ricesearch/senseval/internal/pkg/errors"
	"github.com/ricesearch/senseval/internal/pkg/logger"
)

// Options configures an Evaluator.
type Options struct {
	Folds   int    // default DefaultFolds
	Seed    uint64 // used as given; callers normally pass DefaultSeed
	Workers int    // folds evaluated concurrently; default 1

	// Remapper and Metric must be safe for concurrent use when Workers > 1.
	Remapper Remapper // nil disables remapping
	Metric   Metric

	// Output receives each fold's remapped key, in fold order. The
	// evaluator never closes it.
	Output io.Writer

	Logger   *logger.Logger
	Observer Observer
}

// Evaluator orchestrates fold-scoped remapping and scoring.
type Evaluator struct {
	folds    int
	seed     uint64
	workers  int
	remapper Remapper
	metric   Metric
	output   io.Writer
	log      *logger.Logger
	observer Observer
}

// NewEvaluator creates a new evaluator.
func NewEvaluator(opts Options) (*Evaluator, error) {
	if opts.Metric == nil {
		return nil, errors.ValidationError("metric is required")
	}
	if opts.Folds == 0 {
		opts.Folds = DefaultFolds
	}
	if opts.Folds < 1 {
		return nil, errors.ValidationError(fmt.Sprintf("fold count must be at least 1, got %d", opts.Folds))
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Remapper == nil {
		opts.Remapper = Identity{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}

	return &Evaluator{
		folds:    opts.Folds,
		seed:     opts.Seed,
		workers:  opts.Workers,
		remapper: opts.Remapper,
		metric:   opts.Metric,
		output:   opts.Output,
		log:      opts.Logger,
		observer: opts.Observer,
	}, nil
}

type foldResult struct {
	remapped *key.Key
	scores   map[string]float64
	stats    FoldStats
}

// Run evaluates test against gold and returns the merged instance scores.
// Folds are independent: each fold's scores cover a disjoint slice of the
// universe, so they are collected per fold and merged after all folds finish.
func (e *Evaluator) Run(ctx context.Context, gold, test *key.Key) (*Result, error) {
	part, err := NewPartition(gold.Instances(), e.folds, e.seed)
	if err != nil {
		return nil, err
	}
	senseCounts := gold.SenseCounts()

	e.log.Info("Starting evaluation",
		"metric", e.metric.Name(),
		"folds", part.K(),
		"instances", len(part.Universe),
		"workers", e.workers,
	)

	results := make([]foldResult, part.K())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for j := range part.K() {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.runFold(j, part, gold, test, senseCounts)
			if err != nil {
				return fmt.Errorf("fold %d: %w", j, err)
			}
			results[j] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]float64, len(part.Universe))
	stats := make([]FoldStats, 0, part.K())
	for j, res := range results {
		if e.output != nil {
			if err := key.Write(e.output, res.remapped); err != nil {
				return nil, err
			}
		}
		for id, score := range res.scores {
			if _, dup := merged[id]; dup {
				return nil, errors.PartitionError(fmt.Sprintf("instance %q scored in more than one fold", id)).
					WithDetail("fold", fmt.Sprintf("%d", j))
			}
			merged[id] = score
		}

		e.log.WithFold(j).Debug("Fold completed",
			"training", res.stats.Training,
			"tested", res.stats.Tested,
			"scored", res.stats.Scored,
			"duration_ms", res.stats.Duration.Milliseconds(),
		)
		if e.observer != nil {
			e.observer.FoldCompleted(res.stats)
		}
		stats = append(stats, res.stats)
	}

	return &Result{
		Scores:    merged,
		Partition: part,
		Folds:     stats,
	}, nil
}

func (e *Evaluator) runFold(j int, part *Partition, gold, test *key.Key, senseCounts map[string]int) (foldResult, error) {
	start := time.Now()
	training := part.Training[j]

	remapped, err := e.remapper.Remap(gold, test, training)
	if err != nil {
		return foldResult{}, err
	}
	if remapped == nil {
		return foldResult{}, errors.InvariantError("remapper returned no key")
	}

	toTest := part.HeldOut(training)
	scores, err := e.metric.Score(remapped, gold, toTest, senseCounts)
	if err != nil {
		return foldResult{}, err
	}
	for id := range scores {
		if !toTest.Contains(id) {
			return foldResult{}, errors.PartitionError(fmt.Sprintf("metric scored instance %q outside the held-out fold", id))
		}
	}

	return foldResult{
		remapped: remapped,
		scores:   scores,
		stats: FoldStats{
			Fold:     j,
			Training: len(training),
			Tested:   len(toTest),
			Scored:   len(scores),
			Duration: time.Since(start),
		},
	}, nil
}
