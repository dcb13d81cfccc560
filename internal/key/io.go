package key

import (
	"bufio"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ricesearch/senseval/internal/pkg/errors"
	"github.com/ricesearch/senseval/internal/pkg/hash"
	"github.com/ricesearch/senseval/internal/pkg/logger"
)

const maxLineSize = 4 << 20

// Loader reads key files of the form
//
//	term instance sense1/weight1 sense2/weight2 ...
type Loader struct {
	log *logger.Logger
}

// NewLoader creates a loader that reports progress to log.
func NewLoader(log *logger.Logger) *Loader {
	if log == nil {
		log = logger.Discard()
	}
	return &Loader{log: log}
}

// Load reads the key file at path.
func (l *Loader) Load(path string) (*Key, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IOError("opening key file", err).WithDetail("path", path)
	}
	defer f.Close()

	return l.Read(f, path)
}

// Read parses a key from r. name identifies the source in errors and logs.
func (l *Loader) Read(r io.Reader, name string) (*Key, error) {
	progress := rate.Sometimes{Interval: 2 * time.Second}
	b := NewBuilder()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, errors.MalformedKeyError(name, lineNo, "expected term and instance id")
		}

		labels := make(Labels, len(fields)-2)
		for _, tok := range fields[2:] {
			sense, weight, err := parseSense(tok)
			if err != nil {
				return nil, errors.MalformedKeyError(name, lineNo, err.Error())
			}
			labels[sense] = weight
		}

		if err := b.Add(fields[0], fields[1], labels); err != nil {
			return nil, errors.MalformedKeyError(name, lineNo, err.Error())
		}

		progress.Do(func() {
			l.log.Debug("Loading key", "source", name, "lines", lineNo)
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.IOError("reading key file", err).WithDetail("path", name)
	}

	k := b.Build()
	l.log.Debug("Loaded key", "source", name, "terms", len(k.terms), "instances", k.Len())
	return k, nil
}

// parseSense splits "sense/weight". A token without a slash has weight 1.
func parseSense(tok string) (string, float64, error) {
	i := strings.LastIndexByte(tok, '/')
	if i < 0 {
		return tok, 1, nil
	}
	if i == 0 {
		return "", 0, fmt.Errorf("empty sense label in %q", tok)
	}
	w, err := strconv.ParseFloat(tok[i+1:], 64)
	if err != nil {
		return "", 0, fmt.Errorf("bad weight in %q", tok)
	}
	return tok[:i], w, nil
}

// Write serializes k in key-file form, one line per instance. Senses within a
// line are sorted so output is stable.
func Write(w io.Writer, k *Key) error {
	bw := bufio.NewWriter(w)
	for _, term := range k.terms {
		for _, id := range k.instances[term] {
			bw.WriteString(term)
			bw.WriteByte(' ')
			bw.WriteString(id)
			labels := k.labels[id]
			for _, sense := range slices.Sorted(maps.Keys(labels)) {
				bw.WriteByte(' ')
				bw.WriteString(sense)
				bw.WriteByte('/')
				bw.WriteString(strconv.FormatFloat(labels[sense], 'f', -1, 64))
			}
			bw.WriteByte('\n')
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.IOError("writing key", err)
	}
	return nil
}

// Fingerprint returns a short digest of the canonical serialization of k.
func Fingerprint(k *Key) string {
	s := hash.NewStream()
	// hash.Stream never fails to write.
	_ = Write(s, k)
	return hash.Short(s.Sum(), 16)
}
