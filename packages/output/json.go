package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/apicontract/packages/report"
)

type JSONOutput struct {
	Summary  JSONSummary `json:"summary"`
	Suites   []JSONSuite `json:"suites"`
	Duration float64     `json:"duration"`
	Time     string      `json:"time"`
}

type JSONSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Aborted int `json:"aborted"`
}

type JSONSuite struct {
	RunID       string       `json:"runId"`
	Name        string       `json:"name"`
	File        string       `json:"file,omitempty"`
	Summary     JSONSummary  `json:"summary"`
	Incomplete  bool         `json:"incomplete,omitempty"`
	AbortReason string       `json:"abortReason,omitempty"`
	ExitCode    int          `json:"exitCode"`
	Duration    float64      `json:"duration"`
	Latency     *JSONLatency `json:"latency,omitempty"`
	Tests       []JSONTest   `json:"tests"`
}

// JSONLatency holds response time percentiles in milliseconds.
type JSONLatency struct {
	Count int64   `json:"count"`
	Min   float64 `json:"min"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Max   float64 `json:"max"`
}

type JSONTest struct {
	Name       string          `json:"name"`
	Ordinal    int             `json:"ordinal"`
	Status     string          `json:"status"`
	Tags       []string        `json:"tags,omitempty"`
	SkipReason string          `json:"skipReason,omitempty"`
	Duration   float64         `json:"duration"`
	Error      string          `json:"error,omitempty"`
	Request    *JSONRequest    `json:"request,omitempty"`
	Response   *JSONResponse   `json:"response,omitempty"`
	Assertions []JSONAssertion `json:"assertions,omitempty"`
	Captures   map[string]any  `json:"captures,omitempty"`
}

type JSONRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

type JSONResponse struct {
	StatusCode int               `json:"statusCode"`
	Status     string            `json:"status"`
	Headers    map[string]string `json:"headers,omitempty"`
	Duration   float64           `json:"duration"`
}

type JSONAssertion struct {
	Subject  string `json:"subject"`
	Operator string `json:"operator"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message,omitempty"`
	Note     string `json:"note,omitempty"`
}

type JSONFormatter struct {
	writer io.Writer
	suites []JSONSuite
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
		suites: make([]JSONSuite, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func (f *JSONFormatter) FormatReport(r *report.SuiteReport) {
	suite := JSONSuite{
		RunID: r.RunID,
		Name:  r.Suite,
		File:  r.Path,
		Summary: JSONSummary{
			Total:   r.Total,
			Passed:  r.Passed,
			Failed:  r.Failed,
			Skipped: r.Skipped,
			Aborted: r.Aborted,
		},
		Incomplete:  r.Incomplete,
		AbortReason: r.AbortReason,
		ExitCode:    r.ExitCode(),
		Duration:    millis(r.Duration),
		Tests:       make([]JSONTest, 0, len(r.Outcomes)),
	}
	if l := r.Latency; l.Count > 0 {
		suite.Latency = &JSONLatency{
			Count: l.Count,
			Min:   millis(l.Min),
			Mean:  millis(l.Mean),
			P50:   millis(l.P50),
			P90:   millis(l.P90),
			P95:   millis(l.P95),
			P99:   millis(l.P99),
			Max:   millis(l.Max),
		}
	}

	for _, o := range r.Outcomes {
		test := JSONTest{
			Name:       o.Name,
			Ordinal:    o.Ordinal,
			Status:     o.Status(),
			Tags:       o.Tags,
			SkipReason: skipReason(o),
			Duration:   millis(o.Duration),
			Error:      errorText(o.Err),
		}

		if o.Request != nil {
			test.Request = &JSONRequest{
				Method:  o.Request.Method,
				URL:     o.Request.BuildURL(),
				Headers: o.Request.Headers,
			}
		}

		if o.Response != nil {
			test.Response = &JSONResponse{
				StatusCode: o.Response.StatusCode,
				Status:     o.Response.Status,
				Headers:    o.Response.Headers,
				Duration:   millis(o.Response.Duration),
			}
		}

		if len(o.Results) > 0 {
			test.Assertions = make([]JSONAssertion, len(o.Results))
			for i, a := range o.Results {
				test.Assertions[i] = JSONAssertion{
					Subject:  a.Subject,
					Operator: a.Operator,
					Expected: a.Expected,
					Actual:   a.Actual,
					Passed:   a.Passed,
					Message:  a.Message,
					Note:     a.Note,
				}
			}
		}

		if len(o.Captures) > 0 {
			test.Captures = o.Captures
		}

		suite.Tests = append(suite.Tests, test)
	}

	f.suites = append(f.suites, suite)
}

func (f *JSONFormatter) FormatError(err error) {
	// Errors are included in individual test results
}

func (f *JSONFormatter) FormatHeader(version string) {
	// No header needed for JSON output
}

// Flush writes the accumulated JSON output
func (f *JSONFormatter) Flush(totalDuration time.Duration) error {
	var summary JSONSummary
	for _, s := range f.suites {
		summary.Total += s.Summary.Total
		summary.Passed += s.Summary.Passed
		summary.Failed += s.Summary.Failed
		summary.Skipped += s.Summary.Skipped
		summary.Aborted += s.Summary.Aborted
	}

	output := JSONOutput{
		Summary:  summary,
		Suites:   f.suites,
		Duration: millis(totalDuration),
		Time:     time.Now().Format(time.RFC3339),
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
