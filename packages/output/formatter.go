package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/apicontract/packages/assertions"
	"github.com/abdul-hamid-achik/apicontract/packages/report"
)

type Formatter interface {
	FormatReport(r *report.SuiteReport)
	FormatError(err error)
	FormatHeader(version string)
}

// Flushable is implemented by formatters that accumulate reports and write
// them at the end of the run.
type Flushable interface {
	Flush(totalDuration time.Duration) error
}

// Formats lists the names accepted by New.
var Formats = []string{"console", "json", "junit", "tap", "html", "xlsx"}

// Binary reports whether a format writes non-text output.
func Binary(format string) bool {
	return format == "xlsx"
}

type Settings struct {
	Verbose bool
	NoColor bool
}

// New returns the formatter registered under format.
func New(format string, w io.Writer, s Settings) (Formatter, error) {
	switch strings.ToLower(format) {
	case "", "console":
		return NewConsoleFormatter(WithWriter(w), WithVerbose(s.Verbose), WithNoColor(s.NoColor)), nil
	case "json":
		return NewJSONFormatter(JSONWithWriter(w)), nil
	case "junit":
		return NewJUnitFormatter(JUnitWithWriter(w)), nil
	case "tap":
		return NewTAPFormatter(TAPWithWriter(w)), nil
	case "html":
		return NewHTMLFormatter(HTMLWithWriter(w)), nil
	case "xlsx":
		return NewXLSXFormatter(XLSXWithWriter(w)), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (supported: %s)", format, strings.Join(Formats, ", "))
	}
}

// formatValue formats a value for display, truncating or summarizing large values
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	case map[string]string:
		return fmt.Sprintf("{map with %d entries}", len(val))
	case string:
		if len(val) > maxLen {
			return fmt.Sprintf("%q...", val[:maxLen])
		}
		return fmt.Sprintf("%q", val)
	}
	str := fmt.Sprintf("%v", v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

// describeFailure is the one-line form of a failed expectation shared by
// the text formats.
func describeFailure(r *assertions.Result) string {
	line := fmt.Sprintf("%s %s: %s", r.Subject, r.Operator, r.Message)
	if r.Note != "" {
		line += " (note: " + r.Note + ")"
	}
	return line
}

// skipReason hides the reason of cases excluded by filters.
func skipReason(o *report.CaseOutcome) string {
	if o.SkipReason == report.ReasonFilteredOut {
		return ""
	}
	return o.SkipReason
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
