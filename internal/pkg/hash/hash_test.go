package hash

import (
	"fmt"
	"io"
	"testing"
)

const emptyDigest = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func TestSHA256(t *testing.T) {
	if got := SHA256(nil); got != emptyDigest {
		t.Errorf("SHA256(nil) = %s, want %s", got, emptyDigest)
	}
	if got := SHA256([]byte("bank bank.1 c1/1\n")); len(got) != 64 {
		t.Errorf("SHA256() length = %d, want 64", len(got))
	}
}

func TestShort(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, ""},
		{16, emptyDigest[:16]},
		{64, emptyDigest},
		{100, emptyDigest},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d", tt.n), func(t *testing.T) {
			if got := Short(emptyDigest, tt.n); got != tt.want {
				t.Errorf("Short(%d) = %s, want %s", tt.n, got, tt.want)
			}
		})
	}
}

func TestStream_MatchesOneShot(t *testing.T) {
	s := NewStream()
	if got := s.Sum(); got != emptyDigest {
		t.Errorf("empty Stream.Sum() = %s, want %s", got, emptyDigest)
	}

	io.WriteString(s, "bank bank.1 ")
	io.WriteString(s, "c1/1\n")

	if got, want := s.Sum(), SHA256([]byte("bank bank.1 c1/1\n")); got != want {
		t.Errorf("Stream.Sum() = %s, want %s", got, want)
	}
}
