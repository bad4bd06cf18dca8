package output

import (
	"fmt"
	"html/template"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/apicontract/packages/report"
)

type HTMLOutput struct {
	Version       string
	Summary       JSONSummary
	Suites        []HTMLSuite
	Duration      float64
	Time          string
	PassedPercent float64
}

type HTMLSuite struct {
	Name        string
	File        string
	RunID       string
	AbortReason string
	Incomplete  bool
	Tests       []HTMLTest
}

type HTMLTest struct {
	Name       string
	Status     string
	SkipReason string
	Duration   float64
	Error      string
	Method     string
	URL        string
	StatusCode int
	Curl       string
	Assertions []HTMLAssertion
}

type HTMLAssertion struct {
	Subject  string
	Operator string
	Expected string
	Actual   string
	Passed   bool
	Message  string
	Note     string
}

type HTMLFormatter struct {
	writer  io.Writer
	suites  []HTMLSuite
	summary JSONSummary
	version string
}

type HTMLOption func(*HTMLFormatter)

func NewHTMLFormatter(opts ...HTMLOption) *HTMLFormatter {
	f := &HTMLFormatter{
		writer: os.Stdout,
		suites: make([]HTMLSuite, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func HTMLWithWriter(w io.Writer) HTMLOption {
	return func(f *HTMLFormatter) {
		f.writer = w
	}
}

func (f *HTMLFormatter) FormatReport(r *report.SuiteReport) {
	suite := HTMLSuite{
		Name:        r.Suite,
		File:        r.Path,
		RunID:       r.RunID,
		AbortReason: r.AbortReason,
		Incomplete:  r.Incomplete,
	}
	f.summary.Total += r.Total
	f.summary.Passed += r.Passed
	f.summary.Failed += r.Failed
	f.summary.Skipped += r.Skipped
	f.summary.Aborted += r.Aborted

	for _, o := range r.Outcomes {
		test := HTMLTest{
			Name:       o.Name,
			Status:     o.Status(),
			SkipReason: skipReason(o),
			Duration:   millis(o.Duration),
			Error:      errorText(o.Err),
		}
		if o.Request != nil {
			test.Method = o.Request.Method
			test.URL = o.Request.BuildURL()
			if !o.Passed {
				test.Curl = o.Request.Curl()
			}
		}
		if o.Response != nil {
			test.StatusCode = o.Response.StatusCode
		}
		for _, a := range o.Results {
			test.Assertions = append(test.Assertions, HTMLAssertion{
				Subject:  a.Subject,
				Operator: a.Operator,
				Expected: formatValue(a.Expected, 200),
				Actual:   formatValue(a.Actual, 200),
				Passed:   a.Passed,
				Message:  a.Message,
				Note:     a.Note,
			})
		}
		suite.Tests = append(suite.Tests, test)
	}

	f.suites = append(f.suites, suite)
}

func (f *HTMLFormatter) FormatError(err error) {
	// Errors are included in individual test results
}

// FormatHeader captures the version for the page footer.
func (f *HTMLFormatter) FormatHeader(version string) {
	f.version = version
}

func (f *HTMLFormatter) Flush(totalDuration time.Duration) error {
	var passedPct float64
	if f.summary.Total > 0 {
		passedPct = float64(f.summary.Passed) / float64(f.summary.Total) * 100
	}

	output := HTMLOutput{
		Version:       f.version,
		Summary:       f.summary,
		Suites:        f.suites,
		Duration:      millis(totalDuration),
		Time:          time.Now().Format("2006-01-02 15:04:05"),
		PassedPercent: passedPct,
	}

	tmpl, err := template.New("report").Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse HTML template: %w", err)
	}
	return tmpl.Execute(f.writer, output)
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>apicontract report</title>
<style>
body { font-family: -apple-system, sans-serif; margin: 2rem; color: #222; }
table { border-collapse: collapse; width: 100%; margin-bottom: 1rem; }
td, th { border: 1px solid #ddd; padding: 4px 8px; text-align: left; vertical-align: top; }
.passed { color: #1a7f37; } .failed, .aborted { color: #cf222e; } .skipped { color: #9a6700; }
pre { background: #f6f8fa; padding: 8px; white-space: pre-wrap; }
.note { color: #666; font-style: italic; }
</style>
</head>
<body>
<h1>apicontract report</h1>
<p>{{.Summary.Total}} total, <span class="passed">{{.Summary.Passed}} passed</span>,
<span class="failed">{{.Summary.Failed}} failed</span>,
<span class="aborted">{{.Summary.Aborted}} aborted</span>,
<span class="skipped">{{.Summary.Skipped}} skipped</span>
({{printf "%.0f" .PassedPercent}}% passed) in {{printf "%.0f" .Duration}}ms</p>
{{range .Suites}}
<h2>{{.Name}}{{if .File}} <small>{{.File}}</small>{{end}}</h2>
{{if .AbortReason}}<p class="aborted">Run aborted: {{.AbortReason}}</p>{{end}}
{{if .Incomplete}}<p class="skipped">Run canceled before every case ran</p>{{end}}
<table>
<tr><th>Case</th><th>Status</th><th>Request</th><th>Code</th><th>Time</th></tr>
{{range .Tests}}
<tr>
<td>{{.Name}}</td>
<td class="{{.Status}}">{{.Status}}{{if .SkipReason}} ({{.SkipReason}}){{end}}</td>
<td>{{.Method}} {{.URL}}</td>
<td>{{if .StatusCode}}{{.StatusCode}}{{end}}</td>
<td>{{printf "%.1f" .Duration}}ms</td>
</tr>
{{if or .Error .Assertions}}
<tr><td colspan="5">
{{if .Error}}<p class="failed">{{.Error}}</p>{{end}}
{{range .Assertions}}
<div class="{{if .Passed}}passed{{else}}failed{{end}}">{{if .Passed}}✓{{else}}✗{{end}} {{.Subject}} {{.Operator}} {{.Expected}}{{if not .Passed}}: {{.Message}}{{end}}
{{if .Note}}<span class="note">{{.Note}}</span>{{end}}</div>
{{end}}
{{if .Curl}}<pre>{{.Curl}}</pre>{{end}}
</td></tr>
{{end}}
{{end}}
</table>
{{end}}
<footer>Generated {{.Time}}{{if .Version}} by apicontract {{.Version}}{{end}}</footer>
</body>
</html>
`
