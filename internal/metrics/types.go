// Package metrics records evaluation run statistics and writes them in the
// Prometheus text exposition format.
package metrics

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// desc is the identity shared by every metric type.
type desc struct {
	name   string
	help   string
	labels map[string]string
}

func newDesc(name, help string, labels map[string]string) desc {
	if labels == nil {
		labels = map[string]string{}
	}
	return desc{name: name, help: help, labels: labels}
}

// Name returns the metric name.
func (d *desc) Name() string { return d.name }

// Help returns the metric help text.
func (d *desc) Help() string { return d.help }

// Labels returns a copy of the metric labels.
func (d *desc) Labels() map[string]string { return maps.Clone(d.labels) }

// Counter only goes up.
type Counter struct {
	desc
	n atomic.Int64
}

// NewCounter creates a counter.
func NewCounter(name, help string, labels map[string]string) *Counter {
	return &Counter{desc: newDesc(name, help, labels)}
}

// Inc adds one.
func (c *Counter) Inc() { c.n.Add(1) }

// Add adds delta. Negative deltas are ignored.
func (c *Counter) Add(delta int64) {
	if delta > 0 {
		c.n.Add(delta)
	}
}

// Value returns the current count.
func (c *Counter) Value() int64 { return c.n.Load() }

// Gauge holds a float64 that can go up and down, kept as IEEE 754 bits so
// updates are lock free.
type Gauge struct {
	desc
	bits atomic.Uint64
}

// NewGauge creates a gauge.
func NewGauge(name, help string, labels map[string]string) *Gauge {
	return &Gauge{desc: newDesc(name, help, labels)}
}

// Set stores v.
func (g *Gauge) Set(v float64) { g.bits.Store(math.Float64bits(v)) }

// Add adds delta.
func (g *Gauge) Add(delta float64) {
	for {
		old := g.bits.Load()
		if g.bits.CompareAndSwap(old, math.Float64bits(math.Float64frombits(old)+delta)) {
			return
		}
	}
}

// Value returns the current value.
func (g *Gauge) Value() float64 { return math.Float64frombits(g.bits.Load()) }

// DefaultBuckets are millisecond duration bounds.
var DefaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Histogram counts observations into upper-bounded buckets.
type Histogram struct {
	desc
	bounds []float64 // ascending

	mu    sync.Mutex
	hits  []int64 // per bucket, +Inf last
	sum   float64
	count int64
}

// HistogramSnapshot is a consistent read of a histogram.
type HistogramSnapshot struct {
	Bounds     []float64
	Cumulative []int64 // one per bound, then +Inf
	Sum        float64
	Count      int64
}

// NewHistogram creates a histogram. Nil buckets mean DefaultBuckets; the
// bounds need not be sorted.
func NewHistogram(name, help string, buckets []float64) *Histogram {
	return newHistogram(newDesc(name, help, nil), buckets)
}

func newHistogram(d desc, buckets []float64) *Histogram {
	if len(buckets) == 0 {
		buckets = DefaultBuckets
	}
	bounds := slices.Clone(buckets)
	slices.Sort(bounds)
	return &Histogram{desc: d, bounds: bounds, hits: make([]int64, len(bounds)+1)}
}

// Observe records v in the first bucket whose bound is at least v.
func (h *Histogram) Observe(v float64) {
	i := sort.SearchFloat64s(h.bounds, v)

	h.mu.Lock()
	h.hits[i]++
	h.sum += v
	h.count++
	h.mu.Unlock()
}

// Snapshot returns the bucket counts in cumulative form with sum and count.
func (h *Histogram) Snapshot() HistogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	cum := make([]int64, len(h.hits))
	var run int64
	for i, n := range h.hits {
		run += n
		cum[i] = run
	}
	return HistogramSnapshot{Bounds: slices.Clone(h.bounds), Cumulative: cum, Sum: h.sum, Count: h.count}
}

// vec holds one child metric per distinct label value tuple.
type vec[T any] struct {
	name       string
	help       string
	labelNames []string

	mu       sync.RWMutex
	children map[string]T
}

// Name returns the metric name.
func (v *vec[T]) Name() string { return v.name }

// Help returns the metric help text.
func (v *vec[T]) Help() string { return v.help }

// child returns the metric for values, creating it on first use. It panics
// when the number of values does not match the label names.
func (v *vec[T]) child(values []string, create func(desc) T) T {
	if len(values) != len(v.labelNames) {
		panic(fmt.Sprintf("metric %s: expected %d label values, got %d", v.name, len(v.labelNames), len(values)))
	}
	key := strings.Join(values, "\xff")

	v.mu.RLock()
	c, ok := v.children[key]
	v.mu.RUnlock()
	if ok {
		return c
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if c, ok := v.children[key]; ok {
		return c
	}
	labels := make(map[string]string, len(values))
	for i, name := range v.labelNames {
		labels[name] = values[i]
	}
	c = create(newDesc(v.name, v.help, labels))
	if v.children == nil {
		v.children = make(map[string]T)
	}
	v.children[key] = c
	return c
}

// Children returns the child metrics ordered by label values.
func (v *vec[T]) Children() []T {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]T, 0, len(v.children))
	for _, key := range slices.Sorted(maps.Keys(v.children)) {
		out = append(out, v.children[key])
	}
	return out
}

func (v *vec[T]) reset() {
	v.mu.Lock()
	v.children = nil
	v.mu.Unlock()
}

// GaugeVec is a gauge family partitioned by labels.
type GaugeVec struct{ vec[*Gauge] }

// NewGaugeVec creates a gauge family.
func NewGaugeVec(name, help string, labelNames []string) *GaugeVec {
	return &GaugeVec{vec[*Gauge]{name: name, help: help, labelNames: labelNames}}
}

// WithLabels returns the gauge for the label values, in label name order.
func (gv *GaugeVec) WithLabels(values ...string) *Gauge {
	return gv.child(values, func(d desc) *Gauge { return &Gauge{desc: d} })
}

// CounterVec is a counter family partitioned by labels.
type CounterVec struct{ vec[*Counter] }

// NewCounterVec creates a counter family.
func NewCounterVec(name, help string, labelNames []string) *CounterVec {
	return &CounterVec{vec[*Counter]{name: name, help: help, labelNames: labelNames}}
}

// WithLabels returns the counter for the label values, in label name order.
func (cv *CounterVec) WithLabels(values ...string) *Counter {
	return cv.child(values, func(d desc) *Counter { return &Counter{desc: d} })
}

// HistogramVec is a histogram family partitioned by labels. All children
// share the same buckets.
type HistogramVec struct {
	vec[*Histogram]
	buckets []float64
}

// NewHistogramVec creates a histogram family.
func NewHistogramVec(name, help string, labelNames []string, buckets []float64) *HistogramVec {
	return &HistogramVec{vec: vec[*Histogram]{name: name, help: help, labelNames: labelNames}, buckets: buckets}
}

// WithLabels returns the histogram for the label values, in label name order.
func (hv *HistogramVec) WithLabels(values ...string) *Histogram {
	return hv.child(values, func(d desc) *Histogram { return newHistogram(d, hv.buckets) })
}
