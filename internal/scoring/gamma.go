package scoring

import (
	"maps"
	"slices"

	"github.com/ricesearch/senseval/internal/key"
)

// Gamma scores the Goodman-Kruskal rank correlation between the gold and
// test sense weights. Senses of the term used by neither labeling count as
// zero-weight entries in both, so ranking an unused sense above a gold one
// is penalised. Scores lie in [-1, 1].
type Gamma struct{}

// Name returns the metric name.
func (Gamma) Name() string { return "gamma" }

// Score implements evaluation.Metric.
func (Gamma) Score(test, gold *key.Key, instances key.InstanceSet, senseCounts map[string]int) (map[string]float64, error) {
	return scoreEach(test, gold, instances, senseCounts, gamma), nil
}

func gamma(gold, test key.Labels, senses int) (float64, bool) {
	union := make(map[string]struct{}, len(gold)+len(test))
	for s := range gold {
		union[s] = struct{}{}
	}
	for s := range test {
		union[s] = struct{}{}
	}

	names := slices.Sorted(maps.Keys(union))
	n := max(len(names), senses)
	g := make([]float64, n)
	t := make([]float64, n)
	for i, s := range names {
		g[i] = gold[s]
		t[i] = test[s]
	}

	concordant, discordant := 0, 0
	tiedBoth := true
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dg := sign(g[i] - g[j])
			dt := sign(t[i] - t[j])
			switch {
			case dg*dt > 0:
				concordant++
			case dg*dt < 0:
				discordant++
			}
			if dg != 0 || dt != 0 {
				tiedBoth = false
			}
		}
	}

	if concordant+discordant == 0 {
		if tiedBoth {
			return 1, true
		}
		return 0, true
	}
	return float64(concordant-discordant) / float64(concordant+discordant), true
}

func sign(f float64) int {
	switch {
	case f > 0:
		return 1
	case f < 0:
		return -1
	default:
		return 0
	}
}
