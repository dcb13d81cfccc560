package scoring

import (
	"cmp"
	"math"
	"slices"

	"github.com/ricesearch/senseval/internal/key"
)

// WNDCG scores the test's sense ranking with normalized discounted cumulative
// gain, using gold weights as gains. Ranks are cut at the number of gold
// senses with positive weight.
type WNDCG struct{}

// Name returns the metric name.
func (WNDCG) Name() string { return "wndcg" }

// Score implements evaluation.Metric.
func (WNDCG) Score(test, gold *key.Key, instances key.InstanceSet, senseCounts map[string]int) (map[string]float64, error) {
	return scoreEach(test, gold, instances, senseCounts, wndcg), nil
}

func wndcg(gold, test key.Labels, _ int) (float64, bool) {
	ideal := make([]float64, 0, len(gold))
	for _, w := range gold {
		if w > 0 {
			ideal = append(ideal, w)
		}
	}
	if len(ideal) == 0 {
		return 0, false
	}
	slices.SortFunc(ideal, func(a, b float64) int { return cmp.Compare(b, a) })

	ranked := rankByWeight(test)
	gains := make([]float64, len(ranked))
	for i, sense := range ranked {
		gains[i] = gold[sense]
	}

	k := len(ideal)
	idcg := dcg(ideal, k)
	if idcg == 0 {
		return 0, false
	}
	return dcg(gains, k) / idcg, true
}

// dcg calculates discounted cumulative gain of the first k gains.
func dcg(gains []float64, k int) float64 {
	if k > len(gains) {
		k = len(gains)
	}
	if k == 0 {
		return 0
	}

	sum := gains[0]
	for i := 1; i < k; i++ {
		sum += gains[i] / math.Log2(float64(i+2))
	}
	return sum
}

// rankByWeight orders senses by descending weight, ties by name.
func rankByWeight(l key.Labels) []string {
	senses := make([]string, 0, len(l))
	for s, w := range l {
		if w > 0 {
			senses = append(senses, s)
		}
	}
	slices.SortFunc(senses, func(a, b string) int {
		if c := cmp.Compare(l[b], l[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return senses
}
