// Package scoring implements agreement metrics between a test sense key and
// a gold sense key. Each metric scores instances independently.
package scoring

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ricesearch/senseval/internal/evaluation"
	"github.com/ricesearch/senseval/internal/key"
	"github.com/ricesearch/senseval/internal/pkg/errors"
)

// instanceFunc scores one instance given its gold labels, test labels and
// the number of senses of its term. ok is false when the pair cannot be
// scored.
type instanceFunc func(gold, test key.Labels, senses int) (score float64, ok bool)

// scoreEach applies fn to every instance that is labelled in both keys.
func scoreEach(test, gold *key.Key, instances key.InstanceSet, senseCounts map[string]int, fn instanceFunc) map[string]float64 {
	out := make(map[string]float64, len(instances))
	for id := range instances {
		g, ok := gold.Labels(id)
		if !ok {
			continue
		}
		t, ok := test.Labels(id)
		if !ok || len(t) == 0 {
			continue
		}
		term, _ := gold.Term(id)
		if s, ok := fn(g, t, senseCounts[term]); ok {
			out[id] = s
		}
	}
	return out
}

var registry = map[string]func() evaluation.Metric{
	"jaccard": func() evaluation.Metric { return Jaccard{} },
	"gamma":   func() evaluation.Metric { return Gamma{} },
	"wndcg":   func() evaluation.Metric { return WNDCG{} },
	"exact":   func() evaluation.Metric { return Exact{} },
}

// New returns the metric registered under name.
func New(name string) (evaluation.Metric, error) {
	ctor, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, errors.ValidationError(fmt.Sprintf("unknown metric %q (must be one of %s)", name, strings.Join(Names(), ", ")))
	}
	return ctor(), nil
}

// Names lists the registered metric names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
