// Package output renders suite reports.
//
// Supported output formats:
//   - console: colored terminal output
//   - json: machine-readable JSON
//   - junit: JUnit XML for CI systems
//   - tap: Test Anything Protocol
//   - html: a standalone HTML page
//   - xlsx: an Excel workbook with summary, case and expectation sheets
//
// Every formatter implements Formatter. Formats that need the whole run
// before writing also implement Flushable.
package output
