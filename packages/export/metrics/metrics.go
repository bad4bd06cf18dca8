// Package metrics exports run results to monitoring systems: Prometheus
// text files for the node_exporter textfile collector, JSON documents and
// the DataDog series API.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/apicontract/packages/report"
)

// CaseMetric is one case outcome flattened for export.
type CaseMetric struct {
	Suite      string  `json:"suite"`
	Case       string  `json:"case"`
	Method     string  `json:"method,omitempty"`
	Outcome    string  `json:"outcome"`
	StatusCode int     `json:"status_code,omitempty"`
	DurationMs float64 `json:"duration_ms"`
	Failures   int     `json:"failures"`
}

// SuiteMetric summarizes one suite report.
type SuiteMetric struct {
	Suite      string  `json:"suite"`
	RunID      string  `json:"run_id"`
	Total      int     `json:"total"`
	Passed     int     `json:"passed"`
	Failed     int     `json:"failed"`
	Skipped    int     `json:"skipped"`
	Aborted    int     `json:"aborted"`
	Incomplete bool    `json:"incomplete"`
	ExitCode   int     `json:"exit_code"`
	DurationMs float64 `json:"duration_ms"`
	P50Ms      float64 `json:"p50_ms"`
	P95Ms      float64 `json:"p95_ms"`
	P99Ms      float64 `json:"p99_ms"`
	MaxMs      float64 `json:"max_ms"`
}

// Snapshot is everything an exporter needs from one run.
type Snapshot struct {
	Time   time.Time     `json:"time"`
	Suites []SuiteMetric `json:"suites"`
	Cases  []CaseMetric  `json:"cases"`
}

// Exporter is the interface for metrics exporters
type Exporter interface {
	Export(ctx context.Context, s *Snapshot) error
	Name() string
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// FromReports flattens suite reports into a snapshot taken at now.
func FromReports(reports []*report.SuiteReport, now time.Time) *Snapshot {
	s := &Snapshot{Time: now}
	for _, r := range reports {
		s.Suites = append(s.Suites, SuiteMetric{
			Suite:      r.Suite,
			RunID:      r.RunID,
			Total:      r.Total,
			Passed:     r.Passed,
			Failed:     r.Failed,
			Skipped:    r.Skipped,
			Aborted:    r.Aborted,
			Incomplete: r.Incomplete,
			ExitCode:   r.ExitCode(),
			DurationMs: ms(r.Duration),
			P50Ms:      ms(r.Latency.P50),
			P95Ms:      ms(r.Latency.P95),
			P99Ms:      ms(r.Latency.P99),
			MaxMs:      ms(r.Latency.Max),
		})

		for _, o := range r.Outcomes {
			cm := CaseMetric{
				Suite:      r.Suite,
				Case:       o.Name,
				Outcome:    o.Status(),
				DurationMs: ms(o.Duration),
				Failures:   len(o.Failures()),
			}
			if o.Request != nil {
				cm.Method = o.Request.Method
			}
			if o.Response != nil {
				cm.StatusCode = o.Response.StatusCode
			}
			s.Cases = append(s.Cases, cm)
		}
	}
	return s
}

// ExportAll runs every exporter and joins their errors.
func ExportAll(ctx context.Context, s *Snapshot, exporters ...Exporter) error {
	var errs []error
	for _, e := range exporters {
		if err := e.Export(ctx, s); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
		}
	}
	return errors.Join(errs...)
}
