package scoring

import "github.com/ricesearch/senseval/internal/key"

// Jaccard scores |G ∩ T| / |G ∪ T| over the senses with positive weight.
type Jaccard struct{}

// Name returns the metric name.
func (Jaccard) Name() string { return "jaccard" }

// Score implements evaluation.Metric.
func (Jaccard) Score(test, gold *key.Key, instances key.InstanceSet, senseCounts map[string]int) (map[string]float64, error) {
	return scoreEach(test, gold, instances, senseCounts, jaccard), nil
}

func jaccard(gold, test key.Labels, _ int) (float64, bool) {
	g := gold.Positive()
	t := test.Positive()

	union := len(g)
	inter := 0
	for sense := range t {
		if _, ok := g[sense]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0, false
	}
	return float64(inter) / float64(union), true
}
