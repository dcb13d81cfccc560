package metrics

import (
	"sync"
	"time"

	"github.com/ricesearch/senseval/internal/evaluation"
	"github.com/ricesearch/senseval/internal/pkg/errors"
)

// Metrics holds all evaluation metrics. It implements evaluation.Observer
// and bus.PublishRecorder.
type Metrics struct {
	// Run metrics
	RunsTotal   *Counter
	RunErrors   *CounterVec // labels: code
	RunDuration *Histogram

	// Fold metrics
	FoldsTotal        *Counter
	FoldDuration      *Histogram
	InstancesTested   *Counter
	InstancesScored   *Counter
	TrainingInstances *Histogram

	// Score metrics
	AverageScore *GaugeVec // labels: metric
	Recall       *GaugeVec // labels: metric
	FScore       *GaugeVec // labels: metric
	TermFScore   *GaugeVec // labels: metric, term

	// Bus metrics
	BusEventsPublished *CounterVec   // labels: topic, type
	BusEventLatency    *HistogramVec // labels: topic
	BusErrors          *CounterVec   // labels: topic

	LastRunTimestamp *Gauge

	mu sync.Mutex
}

// New creates a new metrics instance with all metrics initialized.
func New() *Metrics {
	return &Metrics{
		RunsTotal:   NewCounter("senseval_runs_total", "Total number of evaluation runs", nil),
		RunErrors:   NewCounterVec("senseval_run_errors_total", "Total number of failed evaluation runs", []string{"code"}),
		RunDuration: NewHistogram("senseval_run_duration_ms", "Evaluation run duration in milliseconds", nil),

		FoldsTotal:        NewCounter("senseval_folds_total", "Total number of processed folds", nil),
		FoldDuration:      NewHistogram("senseval_fold_duration_ms", "Fold remap and score duration in milliseconds", nil),
		InstancesTested:   NewCounter("senseval_instances_tested_total", "Total number of held-out instances", nil),
		InstancesScored:   NewCounter("senseval_instances_scored_total", "Total number of held-out instances the metric scored", nil),
		TrainingInstances: NewHistogram("senseval_training_instances", "Training set size per fold", []float64{10, 100, 1000, 10000, 100000}),

		AverageScore: NewGaugeVec("senseval_average_score", "Mean instance score of the last run", []string{"metric"}),
		Recall:       NewGaugeVec("senseval_recall", "Fraction of gold instances scored in the last run", []string{"metric"}),
		FScore:       NewGaugeVec("senseval_fscore", "Harmonic mean of average score and recall of the last run", []string{"metric"}),
		TermFScore:   NewGaugeVec("senseval_term_fscore", "Per-term F-score of the last run", []string{"metric", "term"}),

		BusEventsPublished: NewCounterVec("senseval_bus_events_published_total", "Total number of events published", []string{"topic", "type"}),
		BusEventLatency:    NewHistogramVec("senseval_bus_event_latency_seconds", "Event publish latency in seconds", []string{"topic"}, []float64{0.001, 0.01, 0.1, 1, 10}),
		BusErrors:          NewCounterVec("senseval_bus_errors_total", "Total number of failed publishes", []string{"topic"}),

		LastRunTimestamp: NewGauge("senseval_last_run_timestamp_seconds", "Unix time the last run finished", nil),
	}
}

// FoldCompleted records one processed fold.
func (m *Metrics) FoldCompleted(stats evaluation.FoldStats) {
	m.FoldsTotal.Inc()
	m.FoldDuration.Observe(float64(stats.Duration.Microseconds()) / 1000.0)
	m.InstancesTested.Add(int64(stats.Tested))
	m.InstancesScored.Add(int64(stats.Scored))
	m.TrainingInstances.Observe(float64(stats.Training))
}

// RecordReport stores the aggregate and per-term figures of a finished run.
// Term gauges from earlier reports are cleared.
func (m *Metrics) RecordReport(metric string, r *evaluation.Report) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AverageScore.WithLabels(metric).Set(r.All.Average)
	m.Recall.WithLabels(metric).Set(r.All.Recall)
	m.FScore.WithLabels(metric).Set(r.All.FScore)

	m.TermFScore.reset()
	for _, ts := range r.Terms {
		m.TermFScore.WithLabels(metric, ts.Term).Set(ts.FScore)
	}
}

// RecordRun records a finished run and its outcome.
func (m *Metrics) RecordRun(duration time.Duration, err error) {
	m.RunsTotal.Inc()
	m.RunDuration.Observe(float64(duration.Microseconds()) / 1000.0)
	m.LastRunTimestamp.Set(float64(time.Now().Unix()))

	if err != nil {
		code := errors.CodeOf(err)
		if code == "" {
			code = errors.CodeInternal
		}
		m.RunErrors.WithLabels(code).Inc()
	}
}

// RecordBusPublish records one event bus publish.
func (m *Metrics) RecordBusPublish(topic, eventType string, latency time.Duration, err error) {
	m.BusEventsPublished.WithLabels(topic, eventType).Inc()
	m.BusEventLatency.WithLabels(topic).Observe(latency.Seconds())
	if err != nil {
		m.BusErrors.WithLabels(topic).Inc()
	}
}
