package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/apicontract/packages/report"
)

// JUnit XML structures

// JUnitTestSuites is the root element
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr,omitempty"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Skipped    int              `xml:"skipped,attr"`
	Time       float64          `xml:"time,attr"`
	Timestamp  string           `xml:"timestamp,attr,omitempty"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite is one suite file.
type JUnitTestSuite struct {
	XMLName    xml.Name        `xml:"testsuite"`
	Name       string          `xml:"name,attr"`
	ID         string          `xml:"id,attr,omitempty"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Skipped    int             `xml:"skipped,attr"`
	Time       float64         `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr,omitempty"`
	Properties []JUnitProperty `xml:"properties>property,omitempty"`
	TestCases  []JUnitTestCase `xml:"testcase"`
}

type JUnitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
	Skipped   *JUnitSkipped `xml:"skipped,omitempty"`
}

type JUnitFailure struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

type JUnitError struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

type JUnitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

type JUnitFormatter struct {
	writer     io.Writer
	testSuites []JUnitTestSuite
}

type JUnitOption func(*JUnitFormatter)

func NewJUnitFormatter(opts ...JUnitOption) *JUnitFormatter {
	f := &JUnitFormatter{
		writer:     os.Stdout,
		testSuites: make([]JUnitTestSuite, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JUnitWithWriter(w io.Writer) JUnitOption {
	return func(f *JUnitFormatter) {
		f.writer = w
	}
}

func (f *JUnitFormatter) FormatReport(r *report.SuiteReport) {
	className := r.Suite
	if r.Path != "" {
		className = r.Path
	}

	suite := JUnitTestSuite{
		Name:      r.Suite,
		ID:        r.RunID,
		Tests:     r.Total,
		Failures:  r.Failed,
		Errors:    r.Aborted,
		Skipped:   r.Skipped,
		Time:      r.Duration.Seconds(),
		Timestamp: r.StartedAt.Format(time.RFC3339),
		TestCases: make([]JUnitTestCase, 0, len(r.Outcomes)),
	}
	if r.AbortReason != "" {
		suite.Properties = append(suite.Properties, JUnitProperty{Name: "abortReason", Value: r.AbortReason})
	}
	if r.Incomplete {
		suite.Properties = append(suite.Properties, JUnitProperty{Name: "incomplete", Value: "true"})
	}

	for _, o := range r.Outcomes {
		tc := JUnitTestCase{
			Name:      o.Name,
			ClassName: className,
			Time:      o.Duration.Seconds(),
		}

		switch {
		case o.State == report.StateSkipped:
			tc.Skipped = &JUnitSkipped{Message: o.SkipReason}
		case o.State == report.StateAborted:
			tc.Error = &JUnitError{
				Message: errorText(o.Err),
				Type:    "MalformedSpecError",
			}
		case !o.Passed:
			var content strings.Builder
			if o.Err != nil {
				fmt.Fprintf(&content, "%v\n", o.Err)
			}
			for _, a := range o.Failures() {
				fmt.Fprintf(&content, "%s\n", describeFailure(a))
			}
			if o.Request != nil {
				fmt.Fprintf(&content, "%s\n", o.Request.Curl())
			}
			tc.Failure = &JUnitFailure{
				Message: failureMessage(o),
				Type:    "AssertionError",
				Content: content.String(),
			}
		}

		suite.TestCases = append(suite.TestCases, tc)
	}

	f.testSuites = append(f.testSuites, suite)
}

func failureMessage(o *report.CaseOutcome) string {
	n := len(o.Failures())
	switch {
	case n == 0 && o.Err != nil:
		return o.Err.Error()
	case n == 1:
		return "1 expectation failed"
	default:
		return fmt.Sprintf("%d expectations failed", n)
	}
}

func (f *JUnitFormatter) FormatError(err error) {
	// Errors are included in individual test cases
}

func (f *JUnitFormatter) FormatHeader(version string) {
	// No header needed for JUnit XML
}

// Flush writes the accumulated JUnit XML output
func (f *JUnitFormatter) Flush(totalDuration time.Duration) error {
	var totalTests, totalFailures, totalErrors, totalSkipped int
	for _, suite := range f.testSuites {
		totalTests += suite.Tests
		totalFailures += suite.Failures
		totalErrors += suite.Errors
		totalSkipped += suite.Skipped
	}

	suites := JUnitTestSuites{
		Name:       "apicontract",
		Tests:      totalTests,
		Failures:   totalFailures,
		Errors:     totalErrors,
		Skipped:    totalSkipped,
		Time:       totalDuration.Seconds(),
		Timestamp:  time.Now().Format(time.RFC3339),
		TestSuites: f.testSuites,
	}

	fmt.Fprintf(f.writer, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	encoder := xml.NewEncoder(f.writer)
	encoder.Indent("", "  ")
	return encoder.Encode(suites)
}
