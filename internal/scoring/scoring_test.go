package scoring

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ricesearch/senseval/internal/key"
	"github.com/ricesearch/senseval/internal/pkg/errors"
)

func mustKey(t *testing.T, rows map[string]key.Labels, term string) *key.Key {
	t.Helper()
	b := key.NewBuilder()
	for id, labels := range rows {
		if err := b.Add(term, id, labels); err != nil {
			t.Fatalf("Add(%s) error = %v", id, err)
		}
	}
	return b.Build()
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		gold key.Labels
		test key.Labels
		want float64
	}{
		{"identical", key.Labels{"a": 1, "b": 2}, key.Labels{"a": 5, "b": 1}, 1},
		{"disjoint", key.Labels{"a": 1}, key.Labels{"b": 1}, 0},
		{"partial", key.Labels{"a": 1, "b": 1}, key.Labels{"b": 1, "c": 1}, 1.0 / 3},
		{"zero weight ignored", key.Labels{"a": 1}, key.Labels{"a": 1, "b": 0}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := jaccard(tt.gold, tt.test, 0)
			if !ok {
				t.Fatal("jaccard() not scored")
			}
			if !approx(got, tt.want) {
				t.Errorf("jaccard() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGamma(t *testing.T) {
	tests := []struct {
		name   string
		gold   key.Labels
		test   key.Labels
		senses int
		want   float64
	}{
		{"same order", key.Labels{"a": 3, "b": 2, "c": 1}, key.Labels{"a": 0.6, "b": 0.3, "c": 0.1}, 3, 1},
		{"reversed", key.Labels{"a": 3, "b": 2, "c": 1}, key.Labels{"a": 0.1, "b": 0.3, "c": 0.6}, 3, -1},
		{"single sense agrees", key.Labels{"a": 1}, key.Labels{"a": 1}, 1, 1},
		{"padding rewards match", key.Labels{"a": 1}, key.Labels{"a": 1}, 2, 1},
		{"padding penalises miss", key.Labels{"a": 1}, key.Labels{"b": 1}, 2, -1},
		{"test ties everything", key.Labels{"a": 2, "b": 1}, key.Labels{"a": 1, "b": 1}, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := gamma(tt.gold, tt.test, tt.senses)
			if !ok {
				t.Fatal("gamma() not scored")
			}
			if !approx(got, tt.want) {
				t.Errorf("gamma() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExact(t *testing.T) {
	tests := []struct {
		name string
		gold key.Labels
		test key.Labels
		want float64
	}{
		{"match", key.Labels{"a": 1}, key.Labels{"a": 1}, 1},
		{"miss", key.Labels{"a": 1}, key.Labels{"c1": 1}, 0},
		{"top of graded", key.Labels{"a": 3, "b": 1}, key.Labels{"a": 0.7, "b": 0.3}, 1},
		{"gold tie", key.Labels{"a": 2, "b": 2}, key.Labels{"b": 1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := exact(tt.gold, tt.test, 0)
			if !ok {
				t.Fatal("exact() not scored")
			}
			if got != tt.want {
				t.Errorf("exact() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWNDCG(t *testing.T) {
	gold := key.Labels{"a": 3, "b": 1}

	perfect, _ := wndcg(gold, key.Labels{"a": 0.9, "b": 0.1}, 0)
	if !approx(perfect, 1) {
		t.Errorf("wndcg(perfect) = %v, want 1", perfect)
	}

	swapped, _ := wndcg(gold, key.Labels{"a": 0.1, "b": 0.9}, 0)
	want := (1 + 3/math.Log2(3)) / (3 + 1/math.Log2(3))
	if !approx(swapped, want) {
		t.Errorf("wndcg(swapped) = %v, want %v", swapped, want)
	}

	miss, _ := wndcg(gold, key.Labels{"z": 1}, 0)
	if miss != 0 {
		t.Errorf("wndcg(miss) = %v, want 0", miss)
	}

	if _, ok := wndcg(key.Labels{"a": 0}, key.Labels{"a": 1}, 0); ok {
		t.Error("wndcg() scored a gold labeling without positive weights")
	}
}

func TestScore_SkipsUnlabelled(t *testing.T) {
	gold := mustKey(t, map[string]key.Labels{
		"i1": {"a": 1},
		"i2": {"b": 1},
		"i3": {"a": 1},
	}, "bank")
	test := mustKey(t, map[string]key.Labels{
		"i1": {"a": 1},
		"i2": {},
	}, "bank")

	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			m, err := New(name)
			if err != nil {
				t.Fatalf("New(%s) error = %v", name, err)
			}
			scores, err := m.Score(test, gold, key.NewInstanceSet("i1", "i2", "i3"), gold.SenseCounts())
			if err != nil {
				t.Fatalf("Score() error = %v", err)
			}
			if diff := cmp.Diff([]string{"i1"}, key.NewInstanceSet(keys(scores)...).Sorted()); diff != "" {
				t.Errorf("scored instances mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScore_OnlyRequestedInstances(t *testing.T) {
	gold := mustKey(t, map[string]key.Labels{"i1": {"a": 1}, "i2": {"a": 1}}, "bank")

	scores, err := Jaccard{}.Score(gold, gold, key.NewInstanceSet("i2"), gold.SenseCounts())
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if diff := cmp.Diff(map[string]float64{"i2": 1}, scores); diff != "" {
		t.Errorf("Score() mismatch (-want +got):\n%s", diff)
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{"jaccard", "GAMMA", "wndcg", "exact"} {
		m, err := New(name)
		if err != nil {
			t.Fatalf("New(%s) error = %v", name, err)
		}
		if m.Name() == "" {
			t.Errorf("New(%s).Name() is empty", name)
		}
	}

	if _, err := New("kappa"); !errors.IsValidation(err) {
		t.Errorf("New(kappa) error = %v, want validation error", err)
	}
}

func keys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
