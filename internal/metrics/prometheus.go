package metrics

import (
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/ricesearch/senseval/internal/pkg/errors"
)

// PrometheusFormat renders every metric in the text exposition format
// (https://prometheus.io/docs/instrumenting/exposition_formats/). Label
// families with no children are omitted.
func (m *Metrics) PrometheusFormat() string {
	var sb strings.Builder

	writeCounters(&sb, m.RunsTotal, m.RunsTotal)
	writeCounters(&sb, m.RunErrors, m.RunErrors.Children()...)
	writeHistograms(&sb, m.RunDuration, m.RunDuration)
	writeGauges(&sb, m.LastRunTimestamp, m.LastRunTimestamp)

	writeCounters(&sb, m.FoldsTotal, m.FoldsTotal)
	writeHistograms(&sb, m.FoldDuration, m.FoldDuration)
	writeCounters(&sb, m.InstancesTested, m.InstancesTested)
	writeCounters(&sb, m.InstancesScored, m.InstancesScored)
	writeHistograms(&sb, m.TrainingInstances, m.TrainingInstances)

	for _, gv := range []*GaugeVec{m.AverageScore, m.Recall, m.FScore, m.TermFScore} {
		writeGauges(&sb, gv, gv.Children()...)
	}

	writeCounters(&sb, m.BusEventsPublished, m.BusEventsPublished.Children()...)
	writeHistograms(&sb, m.BusEventLatency, m.BusEventLatency.Children()...)
	writeCounters(&sb, m.BusErrors, m.BusErrors.Children()...)

	return sb.String()
}

// WriteFile writes the exposition to path for a node-exporter textfile
// collector. The file is replaced by rename so scrapers never see a partial
// write.
func (m *Metrics) WriteFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.IOError("creating metrics file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.WriteString(tmp, m.PrometheusFormat()); err != nil {
		tmp.Close()
		return errors.IOError("writing metrics file", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.IOError("closing metrics file", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return errors.IOError("setting metrics file mode", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.IOError("replacing metrics file", err)
	}
	return nil
}

// family is the name and help shared by a metric and its label children.
type family interface {
	Name() string
	Help() string
}

func writeCounters(w io.Writer, f family, cs ...*Counter) {
	if writeHeader(w, f, "counter", len(cs)) {
		for _, c := range cs {
			writeSample(w, c.name, c.labels, strconv.FormatInt(c.Value(), 10))
		}
	}
}

func writeGauges(w io.Writer, f family, gs ...*Gauge) {
	if writeHeader(w, f, "gauge", len(gs)) {
		for _, g := range gs {
			writeSample(w, g.name, g.labels, formatFloat(g.Value()))
		}
	}
}

func writeHistograms(w io.Writer, f family, hs ...*Histogram) {
	if !writeHeader(w, f, "histogram", len(hs)) {
		return
	}
	for _, h := range hs {
		s := h.Snapshot()
		for i, n := range s.Cumulative {
			le := "+Inf"
			if i < len(s.Bounds) {
				le = formatFloat(s.Bounds[i])
			}
			bucket := maps.Clone(h.labels)
			bucket["le"] = le
			writeSample(w, h.name+"_bucket", bucket, strconv.FormatInt(n, 10))
		}
		writeSample(w, h.name+"_sum", h.labels, formatFloat(s.Sum))
		writeSample(w, h.name+"_count", h.labels, strconv.FormatInt(s.Count, 10))
	}
}

// writeHeader writes the HELP and TYPE lines and reports whether the family
// has samples to follow.
func writeHeader(w io.Writer, f family, kind string, samples int) bool {
	if samples == 0 {
		return false
	}
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", f.Name(), f.Help(), f.Name(), kind)
	return true
}

// writeSample writes one sample line with labels sorted by name.
func writeSample(w io.Writer, name string, labels map[string]string, value string) {
	var sb strings.Builder
	sb.WriteString(name)
	if len(labels) > 0 {
		sb.WriteByte('{')
		for i, k := range slices.Sorted(maps.Keys(labels)) {
			if i > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(&sb, "%s=\"%s\"", k, labelEscaper.Replace(labels[k]))
		}
		sb.WriteByte('}')
	}
	fmt.Fprintf(w, "%s %s\n", sb.String(), value)
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
