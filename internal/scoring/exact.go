package scoring

import "github.com/ricesearch/senseval/internal/key"

// Exact scores 1 when the test's highest-weighted sense is among the gold's
// highest-weighted senses, else 0.
type Exact struct{}

// Name returns the metric name.
func (Exact) Name() string { return "exact" }

// Score implements evaluation.Metric.
func (Exact) Score(test, gold *key.Key, instances key.InstanceSet, senseCounts map[string]int) (map[string]float64, error) {
	return scoreEach(test, gold, instances, senseCounts, exact), nil
}

func exact(gold, test key.Labels, _ int) (float64, bool) {
	goldTop := gold.Top()
	if len(goldTop) == 0 {
		return 0, false
	}
	for _, t := range test.Top() {
		for _, g := range goldTop {
			if t == g {
				return 1, true
			}
		}
	}
	return 0, true
}
