// Package report collects case outcomes into a suite report.
//
// A Recorder is fed one CaseOutcome per case, from any goroutine, and
// Finalize produces the SuiteReport with counts, latency percentiles and
// the process exit code.
package report
