package output

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/abdul-hamid-achik/apicontract/packages/report"
	"github.com/fatih/color"
)

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) paint(attrs ...color.Attribute) func(a ...any) string {
	c := color.New(attrs...)
	if f.noColor {
		c.DisableColor()
	}
	return c.SprintFunc()
}

func (f *ConsoleFormatter) FormatReport(r *report.SuiteReport) {
	green := f.paint(color.FgGreen)
	red := f.paint(color.FgRed)
	yellow := f.paint(color.FgYellow)
	cyan := f.paint(color.FgCyan)
	faint := f.paint(color.Faint)
	bold := f.paint(color.Bold)

	title := r.Suite
	if r.Path != "" {
		title += " (" + r.Path + ")"
	}
	fmt.Fprintf(f.writer, "\n%s\n\n", bold("Running: "+title))

	for _, o := range r.Outcomes {
		switch o.State {
		case report.StateSkipped:
			fmt.Fprintf(f.writer, "  %s %s", yellow("-"), o.Name)
			if reason := skipReason(o); reason != "" {
				fmt.Fprintf(f.writer, " (%s)", reason)
			}
			fmt.Fprintf(f.writer, "\n")
			if f.verbose && o.Err != nil {
				fmt.Fprintf(f.writer, "    %s\n", faint(o.Err.Error()))
			}
			continue
		case report.StateAborted:
			fmt.Fprintf(f.writer, "  %s %s %s\n", red("!"), o.Name, red(fmt.Sprintf("(%v)", o.Err)))
			continue
		}

		symbol := green("✓")
		if !o.Passed {
			symbol = red("✗")
		}
		fmt.Fprintf(f.writer, "  %s %s %s\n", symbol, o.Name, cyan(fmt.Sprintf("(%dms)", o.Duration.Milliseconds())))

		if f.verbose && o.Response != nil {
			fmt.Fprintf(f.writer, "    Status: %d\n", o.Response.StatusCode)
		}

		if !o.Passed {
			if o.Err != nil {
				fmt.Fprintf(f.writer, "    %s %v\n", red("→"), o.Err)
			}
			for _, a := range o.Failures() {
				fmt.Fprintf(f.writer, "    %s %s %s\n", red("→"), a.Subject, a.Operator)
				fmt.Fprintf(f.writer, "      Expected: %s\n", formatValue(a.Expected, 100))
				fmt.Fprintf(f.writer, "      Actual:   %s\n", formatValue(a.Actual, 100))
				if a.Message != "" {
					fmt.Fprintf(f.writer, "      %s\n", a.Message)
				}
				if a.Note != "" {
					fmt.Fprintf(f.writer, "      %s\n", faint("note: "+a.Note))
				}
			}
			if f.verbose && o.Request != nil {
				fmt.Fprintf(f.writer, "    %s\n", faint(o.Request.Curl()))
			}
		}

		if f.verbose && len(o.Captures) > 0 {
			fmt.Fprintf(f.writer, "    Captures:\n")
			names := make([]string, 0, len(o.Captures))
			for name := range o.Captures {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(f.writer, "      %s = %v\n", name, o.Captures[name])
			}
		}
	}

	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "Tests: ")
	if r.Passed > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d passed", r.Passed)))
	}
	if r.Failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", r.Failed)))
	}
	if r.Aborted > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d aborted", r.Aborted)))
	}
	if r.Skipped > 0 {
		fmt.Fprintf(f.writer, "%s, ", yellow(fmt.Sprintf("%d skipped", r.Skipped)))
	}
	fmt.Fprintf(f.writer, "%d total\n", r.Total)
	fmt.Fprintf(f.writer, "Time:  %dms\n", r.Duration.Milliseconds())
	if f.verbose && r.Latency.Count > 0 {
		fmt.Fprintf(f.writer, "Latency: p50 %dms, p95 %dms, max %dms\n",
			r.Latency.P50.Milliseconds(), r.Latency.P95.Milliseconds(), r.Latency.Max.Milliseconds())
	}
	if r.AbortReason != "" {
		fmt.Fprintf(f.writer, "%s %s\n", red("Aborted:"), r.AbortReason)
	}
	if r.Incomplete {
		fmt.Fprintf(f.writer, "%s\n", yellow("Run canceled before every case ran"))
	}
	fmt.Fprintf(f.writer, "\n")
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := f.paint(color.FgRed)
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := f.paint(color.Bold)
	fmt.Fprintf(f.writer, "%s %s\n", bold("apicontract"), version)
}
