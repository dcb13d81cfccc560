package evaluation

import (
	"time"

	"github.com/ricesearch/senseval/internal/key"
)

// Remapper converts a test key's induced labels into the gold key's sense
// inventory. Implementations must learn the correspondence from the training
// instances only and must return a key covering every instance of test.
type Remapper interface {
	Remap(gold, test *key.Key, training key.InstanceSet) (*key.Key, error)
}

// Metric scores a (remapped) test key against the gold key over a subset of
// instances. Instances it cannot evaluate, such as ones missing from the
// test key, are left out of the result. Scores must be finite and inputs
// must not be modified.
type Metric interface {
	Name() string
	Score(test, gold *key.Key, instances key.InstanceSet, termSenseCounts map[string]int) (map[string]float64, error)
}

// Identity is the Remapper used when remapping is disabled.
type Identity struct{}

// Remap returns test unchanged.
func (Identity) Remap(_, test *key.Key, _ key.InstanceSet) (*key.Key, error) {
	return test, nil
}

// FoldStats describes one processed fold.
type FoldStats struct {
	Fold     int           `json:"fold"`
	Training int           `json:"training"`
	Tested   int           `json:"tested"`
	Scored   int           `json:"scored"`
	Duration time.Duration `json:"duration"`
}

// Observer receives fold progress. Calls happen from a single goroutine in
// fold order.
type Observer interface {
	FoldCompleted(stats FoldStats)
}

// Result is the outcome of an evaluator run.
type Result struct {
	Scores    map[string]float64 `json:"scores"` // instance -> score
	Partition *Partition         `json:"-"`
	Folds     []FoldStats        `json:"folds"`
}

// TermScore holds the aggregate figures for one term, or for all terms.
type TermScore struct {
	Term    string  `json:"term"`
	Average float64 `json:"average"`
	Recall  float64 `json:"recall"`
	FScore  float64 `json:"fscore"`
	Scored  int     `json:"scored"`
	Total   int     `json:"total"`
}

// Report is the per-term and global summary of a run.
type Report struct {
	Terms []TermScore `json:"terms"`
	All   TermScore   `json:"all"`
}
