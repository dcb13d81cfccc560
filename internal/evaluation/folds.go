package evaluation

import (
	"fmt"
	"math/bits"
	"math/rand/v2"

	"github.com/ricesearch/senseval/internal/key"
	"github.com/ricesearch/senseval/internal/pkg/errors"
)

const (
	// DefaultFolds is the number of cross-validation folds.
	DefaultFolds = 5
	// DefaultSeed seeds the fold permutation.
	DefaultSeed uint64 = 42
)

// Partition splits an instance universe into k disjoint folds. Training[j]
// holds every instance outside Folds[j].
type Partition struct {
	Universe []string
	Folds    []key.InstanceSet
	Training []key.InstanceSet

	assignment map[string]int
}

// NewPartition assigns each instance of universe to one of k folds. The
// index sequence 0..n-1 is shuffled with a seeded generator and the instance
// at shuffled position p goes to fold p mod k, so the result depends only on
// the universe order, k and seed.
func NewPartition(universe []string, k int, seed uint64) (*Partition, error) {
	if k < 1 {
		return nil, errors.ValidationError(fmt.Sprintf("fold count must be at least 1, got %d", k))
	}

	p := &Partition{
		Universe:   universe,
		Folds:      make([]key.InstanceSet, k),
		Training:   make([]key.InstanceSet, k),
		assignment: make(map[string]int, len(universe)),
	}
	for j := range k {
		p.Folds[j] = make(key.InstanceSet)
		p.Training[j] = make(key.InstanceSet)
	}

	for pos, idx := range permutation(len(universe), seed) {
		id := universe[idx]
		if _, dup := p.assignment[id]; dup {
			return nil, errors.PartitionError(fmt.Sprintf("instance %q listed twice", id))
		}
		fold := pos % k
		p.assignment[id] = fold
		p.Folds[fold].Add(id)
		for j := range k {
			if j != fold {
				p.Training[j].Add(id)
			}
		}
	}

	return p, nil
}

// K returns the number of folds.
func (p *Partition) K() int {
	return len(p.Folds)
}

// FoldOf returns the fold holding out instance id.
func (p *Partition) FoldOf(id string) (int, bool) {
	f, ok := p.assignment[id]
	return f, ok
}

// HeldOut returns the universe instances absent from training.
func (p *Partition) HeldOut(training key.InstanceSet) key.InstanceSet {
	out := make(key.InstanceSet, max(0, len(p.Universe)-len(training)))
	for _, id := range p.Universe {
		if !training.Contains(id) {
			out.Add(id)
		}
	}
	return out
}

// permutation returns a seeded Fisher-Yates shuffle of 0..n-1. The PCG
// stream is fixed by its definition and the loop is local, so the result is
// identical across platforms and Go releases.
func permutation(n int, seed uint64) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	src := rand.NewPCG(seed, seed)
	for i := n - 1; i > 0; i-- {
		j := int(boundedDraw(src, uint64(i+1)))
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx
}

// boundedDraw returns a uniform value in [0, n) using multiply-shift with
// rejection (Lemire). n must be positive.
func boundedDraw(src rand.Source, n uint64) uint64 {
	hi, lo := bits.Mul64(src.Uint64(), n)
	if lo < n {
		thresh := -n % n
		for lo < thresh {
			hi, lo = bits.Mul64(src.Uint64(), n)
		}
	}
	return hi
}
