package key

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ricesearch/senseval/internal/pkg/errors"
)

const sampleKey = `bank.n bank.1 bank%1:14:00::/4.0
bank.n bank.2 bank%1:14:00::/1 bank%1:17:01::/3

add.v add.1 add%2:30:00::
add.v add.2
`

func TestLoader_Read(t *testing.T) {
	k, err := NewLoader(nil).Read(strings.NewReader(sampleKey), "sample")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if diff := cmp.Diff([]string{"bank.n", "add.v"}, k.Terms()); diff != "" {
		t.Errorf("Terms() mismatch (-want +got):\n%s", diff)
	}

	labels, _ := k.Labels("bank.2")
	if diff := cmp.Diff(Labels{"bank%1:14:00::": 1, "bank%1:17:01::": 3}, labels); diff != "" {
		t.Errorf("Labels(bank.2) mismatch (-want +got):\n%s", diff)
	}

	labels, _ = k.Labels("add.1")
	if labels["add%2:30:00::"] != 1 {
		t.Errorf("weightless sense = %v, want 1", labels["add%2:30:00::"])
	}

	labels, ok := k.Labels("add.2")
	if !ok || len(labels) != 0 {
		t.Errorf("Labels(add.2) = %v, %v; want empty, true", labels, ok)
	}
}

func TestLoader_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  string
	}{
		{"single field", "bank.n\n", "1"},
		{"bad weight", "bank.n b.1 s/x\n", "1"},
		{"empty sense", "bank.n b.1 s/1\nbank.n b.2 /1\n", "2"},
		{"negative weight", "bank.n b.1 s/-1\n", "1"},
		{"duplicate across terms", "bank.n b.1 s/1\nadd.v b.1 s/1\n", "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader(nil).Read(strings.NewReader(tt.input), "bad.key")
			if !errors.IsMalformedKey(err) {
				t.Fatalf("Read() error = %v, want malformed key", err)
			}
			appErr := err.(*errors.AppError)
			if appErr.Details["line"] != tt.line {
				t.Errorf("line = %s, want %s", appErr.Details["line"], tt.line)
			}
		})
	}
}

func TestLoader_LoadMissingFile(t *testing.T) {
	_, err := NewLoader(nil).Load(filepath.Join(t.TempDir(), "missing.key"))
	if errors.CodeOf(err) != errors.CodeIO {
		t.Errorf("Load() error = %v, want IO error", err)
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	orig, err := NewLoader(nil).Read(strings.NewReader(sampleKey), "sample")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "out.key")
	var buf bytes.Buffer
	if err := Write(&buf, orig); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	loaded, err := NewLoader(nil).Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if diff := cmp.Diff(orig.Instances(), loaded.Instances()); diff != "" {
		t.Errorf("instances mismatch (-want +got):\n%s", diff)
	}
	for _, id := range orig.Instances() {
		want, _ := orig.Labels(id)
		got, _ := loaded.Labels(id)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("labels of %s mismatch (-want +got):\n%s", id, diff)
		}
	}
}

func TestWrite_Format(t *testing.T) {
	b := NewBuilder()
	b.Add("bank.n", "bank.1", Labels{"s2": 0.25, "s1": 1})
	b.Add("bank.n", "bank.2", Labels{})

	var buf bytes.Buffer
	if err := Write(&buf, b.Build()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	want := "bank.n bank.1 s1/1 s2/0.25\nbank.n bank.2\n"
	if buf.String() != want {
		t.Errorf("Write() = %q, want %q", buf.String(), want)
	}
}

func TestFingerprint(t *testing.T) {
	a, _ := NewLoader(nil).Read(strings.NewReader(sampleKey), "a")
	b, _ := NewLoader(nil).Read(strings.NewReader(sampleKey), "b")
	c, _ := NewLoader(nil).Read(strings.NewReader("bank.n bank.1 other/1\n"), "c")

	if Fingerprint(a) != Fingerprint(b) {
		t.Error("identical keys have different fingerprints")
	}
	if Fingerprint(a) == Fingerprint(c) {
		t.Error("different keys share a fingerprint")
	}
	if len(Fingerprint(a)) != 16 {
		t.Errorf("len(Fingerprint()) = %d, want 16", len(Fingerprint(a)))
	}
}
