// Package key holds the in-memory model of a sense key: terms, their
// instances, and the weighted sense labels assigned to each instance.
package key

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/ricesearch/senseval/internal/pkg/errors"
)

// Labels maps a sense label to its weight. Several labels per instance
// express a graded (soft) assignment.
type Labels map[string]float64

// Top returns the labels carrying the highest weight, sorted.
func (l Labels) Top() []string {
	best := math.Inf(-1)
	var top []string
	for sense, w := range l {
		switch {
		case w > best:
			best = w
			top = append(top[:0], sense)
		case w == best:
			top = append(top, sense)
		}
	}
	slices.Sort(top)
	return top
}

// Positive returns the set of labels with a weight above zero.
func (l Labels) Positive() map[string]struct{} {
	out := make(map[string]struct{}, len(l))
	for sense, w := range l {
		if w > 0 {
			out[sense] = struct{}{}
		}
	}
	return out
}

// InstanceSet is an unordered set of instance ids.
type InstanceSet map[string]struct{}

// NewInstanceSet creates a set holding ids.
func NewInstanceSet(ids ...string) InstanceSet {
	s := make(InstanceSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id.
func (s InstanceSet) Add(id string) {
	s[id] = struct{}{}
}

// Contains reports whether id is in the set.
func (s InstanceSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in lexical order.
func (s InstanceSet) Sorted() []string {
	return slices.Sorted(maps.Keys(s))
}

// Key is an immutable term -> instance -> labels mapping. Terms and
// instances keep the order in which they were first added.
type Key struct {
	terms     []string
	instances map[string][]string // term -> instance ids
	labels    map[string]Labels   // instance -> labels
	termOf    map[string]string   // instance -> term
}

// Terms returns the terms in first-appearance order.
func (k *Key) Terms() []string {
	return slices.Clone(k.terms)
}

// TermInstances returns the instance ids of term in first-appearance order.
func (k *Key) TermInstances(term string) []string {
	return slices.Clone(k.instances[term])
}

// Instances returns every instance id, grouped by term in term order.
func (k *Key) Instances() []string {
	out := make([]string, 0, len(k.labels))
	for _, term := range k.terms {
		out = append(out, k.instances[term]...)
	}
	return out
}

// Len returns the number of instances.
func (k *Key) Len() int {
	return len(k.labels)
}

// Has reports whether the key contains instance id.
func (k *Key) Has(id string) bool {
	_, ok := k.labels[id]
	return ok
}

// Labels returns a copy of the labels of instance id.
func (k *Key) Labels(id string) (Labels, bool) {
	l, ok := k.labels[id]
	if !ok {
		return nil, false
	}
	return maps.Clone(l), true
}

// Term returns the term that owns instance id.
func (k *Key) Term(id string) (string, bool) {
	t, ok := k.termOf[id]
	return t, ok
}

// Senses returns the distinct labels used by term's instances, sorted.
func (k *Key) Senses(term string) []string {
	seen := make(map[string]struct{})
	for _, id := range k.instances[term] {
		for sense := range k.labels[id] {
			seen[sense] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// SenseCounts returns the number of distinct labels used by each term.
func (k *Key) SenseCounts() map[string]int {
	counts := make(map[string]int, len(k.terms))
	for _, term := range k.terms {
		counts[term] = len(k.Senses(term))
	}
	return counts
}

// Each calls fn for every instance in key order. The labels passed to fn are
// a copy.
func (k *Key) Each(fn func(term, id string, labels Labels)) {
	for _, term := range k.terms {
		for _, id := range k.instances[term] {
			fn(term, id, maps.Clone(k.labels[id]))
		}
	}
}

// Builder assembles a Key. It is not safe for concurrent use.
type Builder struct {
	k *Key
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{k: empty()}
}

func empty() *Key {
	return &Key{
		instances: make(map[string][]string),
		labels:    make(map[string]Labels),
		termOf:    make(map[string]string),
	}
}

// Add records labels for an instance of term. Adding the same instance under
// the same term again merges the labels, later weights winning. An instance
// already owned by another term, or a negative or non-finite weight, is
// rejected.
func (b *Builder) Add(term, id string, labels Labels) error {
	if term == "" || id == "" {
		return errors.ValidationError("term and instance id must be non-empty")
	}
	for sense, w := range labels {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return errors.ValidationError(fmt.Sprintf("invalid weight %v for sense %q of instance %q", w, sense, id)).
				WithDetail("instance", id)
		}
	}

	k := b.k
	if owner, ok := k.termOf[id]; ok {
		if owner != term {
			return errors.ValidationError(fmt.Sprintf("instance %q appears under terms %q and %q", id, owner, term)).
				WithDetail("instance", id)
		}
		maps.Copy(k.labels[id], labels)
		return nil
	}

	if _, ok := k.instances[term]; !ok {
		k.terms = append(k.terms, term)
	}
	k.instances[term] = append(k.instances[term], id)
	k.termOf[id] = term
	l := make(Labels, len(labels))
	maps.Copy(l, labels)
	k.labels[id] = l
	return nil
}

// Build returns the assembled key and resets the builder.
func (b *Builder) Build() *Key {
	k := b.k
	b.k = empty()
	return k
}
