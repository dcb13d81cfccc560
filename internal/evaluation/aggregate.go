package evaluation

import (
	"fmt"
	"math"

	"github.com/ricesearch/senseval/internal/key"
	"github.com/ricesearch/senseval/internal/pkg/errors"
)

// Summarize rolls instance scores up into per-term and global figures. Terms
// appear in gold key order. A non-finite score or average aborts with an
// invariant error.
func Summarize(gold *key.Key, scores map[string]float64) (*Report, error) {
	for id := range scores {
		if !gold.Has(id) {
			return nil, errors.InvariantError(fmt.Sprintf("score for instance %q not in gold key", id))
		}
	}

	report := &Report{Terms: make([]TermScore, 0, len(gold.Terms()))}

	var allSum float64
	var allScored, allTotal int
	for _, term := range gold.Terms() {
		instances := gold.TermInstances(term)

		var sum float64
		scored := 0
		for _, id := range instances {
			s, ok := scores[id]
			if !ok {
				continue
			}
			if !isFinite(s) {
				return nil, errors.InvariantError(fmt.Sprintf("non-finite score %v for instance %q", s, id)).
					WithDetail("term", term)
			}
			sum += s
			scored++
		}

		ts, err := termScore(term, sum, scored, len(instances))
		if err != nil {
			return nil, err
		}
		report.Terms = append(report.Terms, ts)

		allSum += sum
		allScored += scored
		allTotal += len(instances)
	}

	all, err := termScore("all", allSum, allScored, allTotal)
	if err != nil {
		return nil, err
	}
	report.All = all

	return report, nil
}

func termScore(term string, sum float64, scored, total int) (TermScore, error) {
	var avg, recall float64
	if scored > 0 {
		avg = sum / float64(scored)
	}
	if total > 0 {
		recall = float64(scored) / float64(total)
	}
	if !isFinite(avg) {
		return TermScore{}, errors.InvariantError(fmt.Sprintf("non-finite average %v", avg)).
			WithDetail("term", term)
	}

	return TermScore{
		Term:    term,
		Average: avg,
		Recall:  recall,
		FScore:  FScore(avg, recall),
		Scored:  scored,
		Total:   total,
	}, nil
}

// FScore is the harmonic mean of average score and recall, or 0 unless their
// sum is positive. Gamma averages can be negative.
func FScore(avg, recall float64) float64 {
	if avg+recall <= 0 {
		return 0
	}
	return 2 * avg * recall / (avg + recall)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
