package report

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/google/uuid"
)

// Exit codes derived from a report.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitAborted = 2
)

// Latency holds response time statistics over executed cases.
type Latency struct {
	Count int64
	Min   time.Duration
	Max   time.Duration
	Mean  time.Duration
	P50   time.Duration
	P90   time.Duration
	P95   time.Duration
	P99   time.Duration
}

type SuiteReport struct {
	RunID     string
	Suite     string
	Path      string
	StartedAt time.Time
	Duration  time.Duration
	Outcomes  []*CaseOutcome
	Total     int
	Passed    int
	Failed    int
	Skipped   int
	Aborted   int
	// Incomplete is set when a case was skipped because the run was canceled.
	Incomplete bool
	// AbortReason is set when a malformed case ended the run.
	AbortReason string
	Latency     Latency
}

// ExitCode maps the report to the process exit status: 2 when any case
// was aborted or the run itself was, 1 when a case failed or the run was
// incomplete, 0 otherwise.
func (r *SuiteReport) ExitCode() int {
	switch {
	case r.AbortReason != "" || r.Aborted > 0:
		return ExitAborted
	case r.Failed > 0 || r.Incomplete:
		return ExitFailure
	default:
		return ExitOK
	}
}

// Success reports whether every executed case passed.
func (r *SuiteReport) Success() bool {
	return r.ExitCode() == ExitOK
}

func (r *SuiteReport) Outcome(name string) *CaseOutcome {
	for _, o := range r.Outcomes {
		if o.Name == name {
			return o
		}
	}
	return nil
}

// ExitCodeOf returns the most severe exit code across reports.
func ExitCodeOf(reports []*SuiteReport) int {
	code := ExitOK
	for _, r := range reports {
		if c := r.ExitCode(); c > code {
			code = c
		}
	}
	return code
}

// Totals sums counts across reports.
type Totals struct {
	Suites   int
	Total    int
	Passed   int
	Failed   int
	Skipped  int
	Aborted  int
	Duration time.Duration
}

func Sum(reports []*SuiteReport) Totals {
	var t Totals
	for _, r := range reports {
		t.Suites++
		t.Total += r.Total
		t.Passed += r.Passed
		t.Failed += r.Failed
		t.Skipped += r.Skipped
		t.Aborted += r.Aborted
		t.Duration += r.Duration
	}
	return t
}

// caseKey identifies a case within a run; names alone may repeat in a
// malformed suite.
type caseKey struct {
	ordinal int
	name    string
}

// Recorder accumulates outcomes. It is safe for concurrent use.
type Recorder struct {
	mu          sync.Mutex
	report      *SuiteReport
	seen        map[caseKey]bool
	histogram   *hdrhistogram.Histogram
	totalMicros int64
	finalized   bool
}

func NewRecorder(suite, path string) *Recorder {
	return &Recorder{
		report: &SuiteReport{
			RunID:     uuid.New().String(),
			Suite:     suite,
			Path:      path,
			StartedAt: time.Now(),
		},
		seen: make(map[caseKey]bool),
		// 1us to 10min, 3 significant digits
		histogram: hdrhistogram.New(1, 600_000_000, 3),
	}
}

func (r *Recorder) RunID() string {
	return r.report.RunID
}

// Record stores an outcome. A second outcome for the same case is ignored
// and reported as false.
func (r *Recorder) Record(o *CaseOutcome) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := caseKey{o.Ordinal, o.Name}
	if r.finalized || r.seen[key] {
		return false
	}
	r.seen[key] = true
	r.report.Outcomes = append(r.report.Outcomes, o)

	if o.State == StateCompleted && o.Response != nil {
		us := o.Response.Duration.Microseconds()
		if us < 1 {
			us = 1
		}
		if us > r.histogram.HighestTrackableValue() {
			us = r.histogram.HighestTrackableValue()
		}
		_ = r.histogram.RecordValue(us)
		r.totalMicros += us
	}
	return true
}

// Recorded reports whether an outcome exists for the case.
func (r *Recorder) Recorded(name string, ordinal int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen[caseKey{ordinal, name}]
}

func (r *Recorder) MarkAborted(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.report.AbortReason == "" {
		r.report.AbortReason = reason
	}
}

// Finalize orders outcomes by ordinal and computes counts. Later calls
// return the same report.
func (r *Recorder) Finalize() *SuiteReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return r.report
	}
	r.finalized = true

	rep := r.report
	rep.Duration = time.Since(rep.StartedAt)
	sort.SliceStable(rep.Outcomes, func(i, j int) bool {
		return rep.Outcomes[i].Ordinal < rep.Outcomes[j].Ordinal
	})

	rep.Total = len(rep.Outcomes)
	for _, o := range rep.Outcomes {
		switch o.Status() {
		case "passed":
			rep.Passed++
		case "failed":
			rep.Failed++
		case "skipped":
			rep.Skipped++
			if o.SkipReason == ReasonRunCanceled {
				rep.Incomplete = true
			}
		case "aborted":
			rep.Aborted++
		}
	}

	if n := r.histogram.TotalCount(); n > 0 {
		rep.Latency = Latency{
			Count: n,
			Min:   micros(r.histogram.Min()),
			Max:   micros(r.histogram.Max()),
			Mean:  micros(r.totalMicros / n),
			P50:   micros(r.histogram.ValueAtQuantile(50)),
			P90:   micros(r.histogram.ValueAtQuantile(90)),
			P95:   micros(r.histogram.ValueAtQuantile(95)),
			P99:   micros(r.histogram.ValueAtQuantile(99)),
		}
	}
	return rep
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}
