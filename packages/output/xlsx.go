package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/apicontract/packages/report"
	"github.com/xuri/excelize/v2"
)

const (
	sheetSummary      = "Summary"
	sheetCases        = "Cases"
	sheetExpectations = "Expectations"

	failedFill = "#F8CBAD"
	slowFill   = "#FFE699"
	// Completed cases slower than this are highlighted.
	slowCaseThreshold = time.Second
)

var (
	summaryHeaders     = []any{"Suite", "File", "Run ID", "Total", "Passed", "Failed", "Skipped", "Aborted", "Incomplete", "Abort Reason", "Duration (ms)", "p95 (ms)"}
	caseHeaders        = []any{"Suite", "#", "Case", "Status", "Method", "URL", "Status Code", "Duration (ms)", "Skip Reason", "Error", "Curl"}
	expectationHeaders = []any{"Suite", "Case", "Subject", "Operator", "Expected", "Actual", "Passed", "Message", "Note"}
)

// XLSXFormatter writes an Excel workbook once the run is over.
type XLSXFormatter struct {
	writer  io.Writer
	reports []*report.SuiteReport
}

type XLSXOption func(*XLSXFormatter)

func NewXLSXFormatter(opts ...XLSXOption) *XLSXFormatter {
	f := &XLSXFormatter{writer: os.Stdout}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func XLSXWithWriter(w io.Writer) XLSXOption {
	return func(f *XLSXFormatter) {
		f.writer = w
	}
}

func (f *XLSXFormatter) FormatReport(r *report.SuiteReport) {
	f.reports = append(f.reports, r)
}

func (f *XLSXFormatter) FormatError(err error) {}

func (f *XLSXFormatter) FormatHeader(version string) {}

func (f *XLSXFormatter) Flush(totalDuration time.Duration) error {
	book := excelize.NewFile()
	defer book.Close()

	if err := book.SetSheetName("Sheet1", sheetSummary); err != nil {
		return fmt.Errorf("creating workbook: %w", err)
	}
	for _, name := range []string{sheetCases, sheetExpectations} {
		if _, err := book.NewSheet(name); err != nil {
			return fmt.Errorf("creating sheet %s: %w", name, err)
		}
	}

	failedStyle, err := fillStyle(book, failedFill)
	if err != nil {
		return err
	}
	slowStyle, err := fillStyle(book, slowFill)
	if err != nil {
		return err
	}
	headerStyle, err := book.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	w := &sheetWriter{book: book}
	w.row(sheetSummary, 1, summaryHeaders, headerStyle)
	w.row(sheetCases, 1, caseHeaders, headerStyle)
	w.row(sheetExpectations, 1, expectationHeaders, headerStyle)

	caseRow, expRow := 2, 2
	for i, r := range f.reports {
		w.row(sheetSummary, i+2, []any{
			r.Suite, r.Path, r.RunID, r.Total, r.Passed, r.Failed, r.Skipped, r.Aborted,
			r.Incomplete, r.AbortReason, millis(r.Duration), millis(r.Latency.P95),
		}, 0)

		for _, o := range r.Outcomes {
			style := 0
			switch {
			case o.Failed() || o.State == report.StateAborted:
				style = failedStyle
			case o.Duration > slowCaseThreshold:
				style = slowStyle
			}
			w.row(sheetCases, caseRow, caseCells(r, o), style)
			caseRow++

			for _, a := range o.Results {
				style := 0
				if !a.Passed {
					style = failedStyle
				}
				w.row(sheetExpectations, expRow, []any{
					r.Suite, o.Name, a.Subject, a.Operator,
					formatValue(a.Expected, 200), formatValue(a.Actual, 200),
					a.Passed, a.Message, a.Note,
				}, style)
				expRow++
			}
		}
	}

	totalRow := len(f.reports) + 3
	w.row(sheetSummary, totalRow, []any{"Total time (ms)", millis(totalDuration)}, headerStyle)

	for sheet, width := range map[string]float64{sheetSummary: 16, sheetCases: 22, sheetExpectations: 24} {
		if err := book.SetColWidth(sheet, "A", "L", width); err != nil {
			w.fail(err)
		}
	}
	if w.err != nil {
		return fmt.Errorf("writing workbook: %w", w.err)
	}

	if _, err := book.WriteTo(f.writer); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func caseCells(r *report.SuiteReport, o *report.CaseOutcome) []any {
	var method, url, curl string
	if o.Request != nil {
		method = o.Request.Method
		url = o.Request.BuildURL()
		curl = o.Request.Curl()
	}
	var status any
	if o.Response != nil {
		status = o.Response.StatusCode
	}
	errText := errorText(o.Err)
	if failures := o.Failures(); len(failures) > 0 {
		lines := make([]string, 0, len(failures)+1)
		if errText != "" {
			lines = append(lines, errText)
		}
		for _, a := range failures {
			lines = append(lines, describeFailure(a))
		}
		errText = strings.Join(lines, "\n")
	}
	return []any{r.Suite, o.Ordinal, o.Name, o.Status(), method, url, status, millis(o.Duration), skipReason(o), errText, curl}
}

func fillStyle(book *excelize.File, color string) (int, error) {
	style, err := book.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}},
	})
	if err != nil {
		return 0, fmt.Errorf("creating style: %w", err)
	}
	return style, nil
}

// sheetWriter keeps the first error so rows can be written without
// checking each call.
type sheetWriter struct {
	book *excelize.File
	err  error
}

func (w *sheetWriter) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *sheetWriter) row(sheet string, row int, cells []any, style int) {
	if w.err != nil {
		return
	}
	start, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		w.fail(err)
		return
	}
	if err := w.book.SetSheetRow(sheet, start, &cells); err != nil {
		w.fail(err)
		return
	}
	if style == 0 {
		return
	}
	end, err := excelize.CoordinatesToCellName(len(cells), row)
	if err != nil {
		w.fail(err)
		return
	}
	w.fail(w.book.SetCellStyle(sheet, start, end, style))
}
