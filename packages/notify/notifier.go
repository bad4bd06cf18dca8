// Package notify sends run summaries to chat webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/abdul-hamid-achik/apicontract/packages/report"
)

// NotifyOn specifies when to send notifications
type NotifyOn string

const (
	NotifyAlways  NotifyOn = "always"
	NotifyFailure NotifyOn = "failure"
	NotifySuccess NotifyOn = "success"
	// NotifyRecovery notifies on failures and on the first success after a
	// failure.
	NotifyRecovery NotifyOn = "recovery"
)

// ParseNotifyOn validates a policy name. The empty string means failure.
func ParseNotifyOn(s string) (NotifyOn, error) {
	switch NotifyOn(s) {
	case "":
		return NotifyFailure, nil
	case NotifyAlways, NotifyFailure, NotifySuccess, NotifyRecovery:
		return NotifyOn(s), nil
	default:
		return "", fmt.Errorf("unknown notify policy %q (always, failure, success, recovery)", s)
	}
}

// RunSummary is what notifiers render.
type RunSummary struct {
	Suites        int           `json:"suites"`
	TotalTests    int           `json:"total_tests"`
	PassedTests   int           `json:"passed_tests"`
	FailedTests   int           `json:"failed_tests"`
	SkippedTests  int           `json:"skipped_tests"`
	AbortedTests  int           `json:"aborted_tests"`
	Incomplete    bool          `json:"incomplete,omitempty"`
	ExitCode      int           `json:"exit_code"`
	Duration      time.Duration `json:"duration"`
	Environment   string        `json:"environment,omitempty"`
	FailedResults []FailedTest  `json:"failed_results,omitempty"`
	IsRecovery    bool          `json:"is_recovery,omitempty"`
}

// Success reports a run with exit code 0.
func (s *RunSummary) Success() bool {
	return s.ExitCode == report.ExitOK
}

// Headline is the one-line title shared by every notifier.
func (s *RunSummary) Headline() string {
	switch {
	case s.AbortedTests > 0 && s.FailedTests > 0:
		return fmt.Sprintf("%d case(s) failed, %d aborted", s.FailedTests, s.AbortedTests)
	case s.AbortedTests > 0:
		return fmt.Sprintf("%d case(s) aborted", s.AbortedTests)
	case s.FailedTests > 0:
		return fmt.Sprintf("%d case(s) failed", s.FailedTests)
	case s.Incomplete:
		return "Run canceled before every case ran"
	case s.IsRecovery:
		return "Contracts recovered!"
	default:
		return "All contracts passed!"
	}
}

type FailedTest struct {
	Name   string   `json:"name"`
	Suite  string   `json:"suite"`
	File   string   `json:"file,omitempty"`
	Status string   `json:"status"`
	Errors []string `json:"errors,omitempty"`
}

// maxFailedResults bounds the failure list so messages stay within webhook
// payload limits.
const maxFailedResults = 20

// Summarize folds suite reports into one summary.
func Summarize(reports []*report.SuiteReport, environment string) *RunSummary {
	totals := report.Sum(reports)
	s := &RunSummary{
		Suites:       totals.Suites,
		TotalTests:   totals.Total,
		PassedTests:  totals.Passed,
		FailedTests:  totals.Failed,
		SkippedTests: totals.Skipped,
		AbortedTests: totals.Aborted,
		ExitCode:     report.ExitCodeOf(reports),
		Duration:     totals.Duration,
		Environment:  environment,
	}

	for _, r := range reports {
		if r.Incomplete {
			s.Incomplete = true
		}
		for _, o := range r.Outcomes {
			if !o.Failed() && o.State != report.StateAborted {
				continue
			}
			if len(s.FailedResults) == maxFailedResults {
				break
			}
			ft := FailedTest{Name: o.Name, Suite: r.Suite, File: r.Path, Status: o.Status()}
			if o.Err != nil {
				ft.Errors = append(ft.Errors, o.Err.Error())
			}
			for _, a := range o.Failures() {
				ft.Errors = append(ft.Errors, fmt.Sprintf("%s %s: %s", a.Subject, a.Operator, a.Message))
			}
			s.FailedResults = append(s.FailedResults, ft)
		}
	}
	return s
}

type Notifier interface {
	Notify(ctx context.Context, summary *RunSummary) error
	Name() string
}

// Manager applies the NotifyOn policy and fans out to notifiers.
type Manager struct {
	notifiers []Notifier
	notifyOn  NotifyOn
	lastState bool // true if last run was successful
}

func NewManager(notifyOn NotifyOn, notifiers ...Notifier) *Manager {
	return &Manager{
		notifiers: notifiers,
		notifyOn:  notifyOn,
		lastState: true, // Assume success initially
	}
}

func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// SetPreviousSuccess seeds the recovery policy, usually from the run
// history.
func (m *Manager) SetPreviousSuccess(ok bool) {
	m.lastState = ok
}

// ShouldNotify applies the policy to summary and updates the remembered
// state. It marks the summary as a recovery when it is one.
func (m *Manager) ShouldNotify(summary *RunSummary) bool {
	current := summary.Success()
	var should bool

	switch m.notifyOn {
	case NotifyAlways:
		should = true
	case NotifyFailure:
		should = !current
	case NotifySuccess:
		should = current
	case NotifyRecovery:
		if !m.lastState && current {
			should = true
			summary.IsRecovery = true
		}
		if !current {
			should = true
		}
	}

	m.lastState = current
	return should
}

// Notify sends summary to every notifier when the policy allows it. Every
// notifier is tried; their errors are joined.
func (m *Manager) Notify(ctx context.Context, summary *RunSummary) error {
	if !m.ShouldNotify(summary) {
		return nil
	}

	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, summary); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// postJSON sends a webhook payload and accepts the given statuses.
func postJSON(ctx context.Context, client *http.Client, url string, payload any, accept ...int) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	for _, code := range accept {
		if resp.StatusCode == code {
			return nil
		}
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(body))
}
