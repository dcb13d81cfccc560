package key

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ricesearch/senseval/internal/pkg/errors"
)

func buildKey(t *testing.T) *Key {
	t.Helper()
	b := NewBuilder()
	add := func(term, id string, labels Labels) {
		if err := b.Add(term, id, labels); err != nil {
			t.Fatalf("Add(%s, %s) error = %v", term, id, err)
		}
	}
	add("bank.n", "bank.1", Labels{"bank%1": 1})
	add("bank.n", "bank.2", Labels{"bank%2": 0.6, "bank%1": 0.4})
	add("add.v", "add.1", Labels{"add%1": 3})
	add("bank.n", "bank.3", Labels{})
	return b.Build()
}

func TestKey_Order(t *testing.T) {
	k := buildKey(t)

	if diff := cmp.Diff([]string{"bank.n", "add.v"}, k.Terms()); diff != "" {
		t.Errorf("Terms() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"bank.1", "bank.2", "bank.3", "add.1"}, k.Instances()); diff != "" {
		t.Errorf("Instances() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"bank.1", "bank.2", "bank.3"}, k.TermInstances("bank.n")); diff != "" {
		t.Errorf("TermInstances() mismatch (-want +got):\n%s", diff)
	}
	if k.Len() != 4 {
		t.Errorf("Len() = %d, want 4", k.Len())
	}
}

func TestKey_Lookups(t *testing.T) {
	k := buildKey(t)

	labels, ok := k.Labels("bank.2")
	if !ok {
		t.Fatal("Labels(bank.2) not found")
	}
	if diff := cmp.Diff(Labels{"bank%2": 0.6, "bank%1": 0.4}, labels); diff != "" {
		t.Errorf("Labels() mismatch (-want +got):\n%s", diff)
	}

	if term, ok := k.Term("add.1"); !ok || term != "add.v" {
		t.Errorf("Term(add.1) = %q, %v; want add.v, true", term, ok)
	}
	if _, ok := k.Labels("missing"); ok {
		t.Error("Labels(missing) found, want not found")
	}
	if !k.Has("bank.3") {
		t.Error("Has(bank.3) = false, want true")
	}
}

func TestKey_Immutable(t *testing.T) {
	k := buildKey(t)

	labels, _ := k.Labels("bank.1")
	labels["bank%9"] = 1
	k.Terms()[0] = "changed"

	again, _ := k.Labels("bank.1")
	if _, ok := again["bank%9"]; ok {
		t.Error("mutating returned labels changed the key")
	}
	if k.Terms()[0] != "bank.n" {
		t.Error("mutating returned terms changed the key")
	}
}

func TestKey_Senses(t *testing.T) {
	k := buildKey(t)

	if diff := cmp.Diff([]string{"bank%1", "bank%2"}, k.Senses("bank.n")); diff != "" {
		t.Errorf("Senses() mismatch (-want +got):\n%s", diff)
	}
	want := map[string]int{"bank.n": 2, "add.v": 1}
	if diff := cmp.Diff(want, k.SenseCounts()); diff != "" {
		t.Errorf("SenseCounts() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuilder_Validation(t *testing.T) {
	tests := []struct {
		name   string
		term   string
		id     string
		labels Labels
	}{
		{"negative weight", "bank.n", "x", Labels{"s": -1}},
		{"empty term", "", "x", nil},
		{"duplicate across terms", "add.v", "bank.1", Labels{"s": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			if err := b.Add("bank.n", "bank.1", Labels{"s": 1}); err != nil {
				t.Fatalf("Add() error = %v", err)
			}
			err := b.Add(tt.term, tt.id, tt.labels)
			if !errors.IsValidation(err) {
				t.Errorf("Add() error = %v, want validation error", err)
			}
		})
	}
}

func TestBuilder_MergeSameTerm(t *testing.T) {
	b := NewBuilder()
	b.Add("bank.n", "bank.1", Labels{"a": 1, "b": 2})
	b.Add("bank.n", "bank.1", Labels{"b": 5, "c": 1})
	k := b.Build()

	labels, _ := k.Labels("bank.1")
	if diff := cmp.Diff(Labels{"a": 1, "b": 5, "c": 1}, labels); diff != "" {
		t.Errorf("merged labels mismatch (-want +got):\n%s", diff)
	}
	if len(k.TermInstances("bank.n")) != 1 {
		t.Errorf("TermInstances() has %d entries, want 1", len(k.TermInstances("bank.n")))
	}
}

func TestLabels_Top(t *testing.T) {
	tests := []struct {
		name   string
		labels Labels
		want   []string
	}{
		{"single", Labels{"a": 1}, []string{"a"}},
		{"max", Labels{"a": 1, "b": 3, "c": 2}, []string{"b"}},
		{"tie", Labels{"b": 2, "a": 2, "c": 1}, []string{"a", "b"}},
		{"empty", Labels{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.labels.Top()); diff != "" {
				t.Errorf("Top() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInstanceSet(t *testing.T) {
	s := NewInstanceSet("b", "a")
	s.Add("c")

	if !s.Contains("a") || s.Contains("z") {
		t.Error("Contains() returned wrong membership")
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, s.Sorted()); diff != "" {
		t.Errorf("Sorted() mismatch (-want +got):\n%s", diff)
	}
}
