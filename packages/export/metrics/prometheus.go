package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// PrometheusExporter writes metrics in the Prometheus text exposition
// format. Files are replaced atomically so a textfile collector never reads
// a partial write.
type PrometheusExporter struct {
	writer io.Writer
	path   string
	prefix string
}

// PrometheusOption is a functional option for PrometheusExporter
type PrometheusOption func(*PrometheusExporter)

// WithPrometheusWriter sets the output writer for Prometheus metrics
func WithPrometheusWriter(w io.Writer) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.writer = w
	}
}

// WithPrometheusFile writes to path instead of a writer.
func WithPrometheusFile(path string) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.path = path
	}
}

func NewPrometheusExporter(opts ...PrometheusOption) *PrometheusExporter {
	p := &PrometheusExporter{prefix: "apicontract"}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *PrometheusExporter) Name() string {
	return "prometheus"
}

func (p *PrometheusExporter) Export(_ context.Context, s *Snapshot) error {
	var buf bytes.Buffer
	p.writeMetrics(&buf, s)

	if p.path == "" {
		if p.writer == nil {
			return fmt.Errorf("no prometheus output configured")
		}
		_, err := p.writer.Write(buf.Bytes())
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(p.path), ".apicontract-*.prom")
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p.path)
}

func (p *PrometheusExporter) family(w io.Writer, name, kind, help string) string {
	full := p.prefix + "_" + name
	fmt.Fprintf(w, "# HELP %s %s\n", full, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", full, kind)
	return full
}

func (p *PrometheusExporter) writeMetrics(w io.Writer, s *Snapshot) {
	suites := append([]SuiteMetric(nil), s.Suites...)
	sort.Slice(suites, func(i, j int) bool { return suites[i].Suite < suites[j].Suite })

	name := p.family(w, "cases", "gauge", "Cases of the last run by outcome")
	for _, m := range suites {
		for _, o := range []struct {
			outcome string
			n       int
		}{{"passed", m.Passed}, {"failed", m.Failed}, {"skipped", m.Skipped}, {"aborted", m.Aborted}} {
			fmt.Fprintf(w, "%s{suite=\"%s\",outcome=\"%s\"} %d\n", name, sanitizeLabel(m.Suite), o.outcome, o.n)
		}
	}
	fmt.Fprintln(w)

	name = p.family(w, "exit_code", "gauge", "Exit code of the last run")
	for _, m := range suites {
		fmt.Fprintf(w, "%s{suite=\"%s\"} %d\n", name, sanitizeLabel(m.Suite), m.ExitCode)
	}
	fmt.Fprintln(w)

	name = p.family(w, "run_duration_seconds", "gauge", "Wall-clock duration of the last run")
	for _, m := range suites {
		fmt.Fprintf(w, "%s{suite=\"%s\"} %.3f\n", name, sanitizeLabel(m.Suite), m.DurationMs/1000)
	}
	fmt.Fprintln(w)

	name = p.family(w, "response_time_seconds", "gauge", "Response time quantiles over executed cases")
	for _, m := range suites {
		for _, q := range []struct {
			label string
			v     float64
		}{{"0.5", m.P50Ms}, {"0.95", m.P95Ms}, {"0.99", m.P99Ms}, {"1", m.MaxMs}} {
			fmt.Fprintf(w, "%s{suite=\"%s\",quantile=\"%s\"} %.3f\n", name, sanitizeLabel(m.Suite), q.label, q.v/1000)
		}
	}
	fmt.Fprintln(w)

	cases := append([]CaseMetric(nil), s.Cases...)
	sort.SliceStable(cases, func(i, j int) bool { return cases[i].Suite < cases[j].Suite })

	name = p.family(w, "case_passed", "gauge", "1 when the case passed in the last run")
	for _, c := range cases {
		passed := 0
		if c.Outcome == "passed" {
			passed = 1
		}
		fmt.Fprintf(w, "%s{suite=\"%s\",case=\"%s\",outcome=\"%s\"} %d\n", name, sanitizeLabel(c.Suite), sanitizeLabel(c.Case), c.Outcome, passed)
	}
	fmt.Fprintln(w)

	name = p.family(w, "case_duration_seconds", "gauge", "Response time of each executed case")
	for _, c := range cases {
		if c.StatusCode == 0 {
			continue
		}
		fmt.Fprintf(w, "%s{suite=\"%s\",case=\"%s\",status=\"%d\"} %.3f\n", name, sanitizeLabel(c.Suite), sanitizeLabel(c.Case), c.StatusCode, c.DurationMs/1000)
	}
}

// sanitizeLabel makes a string safe for use as a Prometheus label value
func sanitizeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
