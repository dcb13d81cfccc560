package evaluation

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/ricesearch/senseval/internal/pkg/errors"
)

var (
	heavyRule = strings.Repeat("=", 67)
	lightRule = strings.Repeat("-", 67)
)

// WriteReport prints the report table: a header, one tab-separated row per
// term, then the aggregate row.
func WriteReport(w io.Writer, r *Report) error {
	bw := bufio.NewWriter(w)

	bw.WriteString(heavyRule + "\n")
	bw.WriteString("term\taverage_score\trecall\tf-score\n")
	bw.WriteString(lightRule + "\n")
	for _, ts := range r.Terms {
		writeRow(bw, ts)
	}
	bw.WriteString(lightRule + "\n")
	writeRow(bw, r.All)
	bw.WriteString(heavyRule + "\n")

	if err := bw.Flush(); err != nil {
		return errors.IOError("writing report", err)
	}
	return nil
}

func writeRow(w *bufio.Writer, ts TermScore) {
	w.WriteString(ts.Term)
	for _, v := range []float64{ts.Average, ts.Recall, ts.FScore} {
		w.WriteByte('\t')
		w.WriteString(formatScore(v))
	}
	w.WriteByte('\n')
}

// formatScore renders v the way existing SemEval report consumers expect:
// whole numbers keep a ".0" and magnitudes outside [1e-3, 1e7) use
// "<mantissa>E<exp>" (1.0E-4, 2.5E7).
func formatScore(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	}

	if abs := math.Abs(v); abs == 0 || (abs >= 1e-3 && abs < 1e7) {
		return withPoint(strconv.FormatFloat(v, 'f', -1, 64))
	}

	mant, exp, _ := strings.Cut(strconv.FormatFloat(v, 'E', -1, 64), "E")
	n, _ := strconv.Atoi(exp)
	return withPoint(mant) + "E" + strconv.Itoa(n)
}

func withPoint(s string) string {
	if strings.ContainsRune(s, '.') {
		return s
	}
	return s + ".0"
}
