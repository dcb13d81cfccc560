// Package hash provides the digests used to fingerprint key files.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// SHA256 returns the hex SHA-256 digest of data.
func SHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Short truncates a hex digest to n characters.
func Short(digest string, n int) string {
	if n > len(digest) {
		return digest
	}
	return digest[:n]
}

// Stream accumulates data for a SHA-256 digest without buffering it.
type Stream struct {
	h hash.Hash
}

// NewStream creates an empty digest stream.
func NewStream() *Stream {
	return &Stream{h: sha256.New()}
}

// Write implements io.Writer. It never fails.
func (s *Stream) Write(p []byte) (int, error) {
	return s.h.Write(p)
}

// Sum returns the hex digest of everything written so far.
func (s *Stream) Sum() string {
	return hex.EncodeToString(s.h.Sum(nil))
}
