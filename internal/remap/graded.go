// Package remap translates induced sense labels into a gold sense inventory.
package remap

import (
	"maps"
	"slices"

	"github.com/ricesearch/senseval/internal/key"
)

// Graded learns, per term, the distribution P(gold sense | induced sense)
// from the training instances and rewrites every test instance as the
// expected gold distribution of its induced labels. Both labelings of a
// training instance are normalized first so each instance contributes
// equally. It is stateless and safe for concurrent use.
type Graded struct{}

// Remap implements evaluation.Remapper. Gold labels are read for training
// instances only. Test instances whose induced senses never occur in
// training keep an empty labeling.
func (Graded) Remap(gold, test *key.Key, training key.InstanceSet) (*key.Key, error) {
	b := key.NewBuilder()
	for _, term := range test.Terms() {
		ids := test.TermInstances(term)
		mapping := fit(gold, test, ids, training)

		for _, id := range ids {
			labels, _ := test.Labels(id)
			if err := b.Add(term, id, apply(mapping, labels)); err != nil {
				return nil, err
			}
		}
	}
	return b.Build(), nil
}

// mapping holds P(gold | induced) rows.
type mapping map[string]key.Labels

func fit(gold, test *key.Key, ids []string, training key.InstanceSet) mapping {
	counts := make(mapping)
	for _, id := range ids {
		if !training.Contains(id) {
			continue
		}
		g, ok := gold.Labels(id)
		if !ok {
			continue
		}
		t, _ := test.Labels(id)
		gn, tn := normalize(g), normalize(t)

		for _, c := range sortedSenses(tn) {
			row := counts[c]
			if row == nil {
				row = make(key.Labels)
				counts[c] = row
			}
			for _, s := range sortedSenses(gn) {
				row[s] += tn[c] * gn[s]
			}
		}
	}

	for c, row := range counts {
		counts[c] = normalize(row)
	}
	return counts
}

func apply(m mapping, labels key.Labels) key.Labels {
	out := make(key.Labels)
	tn := normalize(labels)
	for _, c := range sortedSenses(tn) {
		row, ok := m[c]
		if !ok {
			continue
		}
		for _, s := range sortedSenses(row) {
			out[s] += tn[c] * row[s]
		}
	}
	for s, w := range out {
		if w == 0 {
			delete(out, s)
		}
	}
	return out
}

// normalize scales positive weights to sum to 1 and drops the rest.
func normalize(l key.Labels) key.Labels {
	var sum float64
	for _, s := range sortedSenses(l) {
		if w := l[s]; w > 0 {
			sum += w
		}
	}
	out := make(key.Labels, len(l))
	if sum == 0 {
		return out
	}
	for s, w := range l {
		if w > 0 {
			out[s] = w / sum
		}
	}
	return out
}

func sortedSenses(l key.Labels) []string {
	return slices.Sorted(maps.Keys(l))
}
