package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/apicontract/packages/assertions"
	"github.com/abdul-hamid-achik/apicontract/packages/http"
)

// State is where a case is in its lifecycle. Completed, Skipped and Aborted
// are terminal.
type State int

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateSkipped
	StateAborted
)

var stateNames = map[State]string{
	StatePending:   "pending",
	StateRunning:   "running",
	StateCompleted: "completed",
	StateSkipped:   "skipped",
	StateAborted:   "aborted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateSkipped || s == StateAborted
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Skip reasons set by the runner.
const (
	ReasonRunCanceled = "run canceled"
	ReasonRunAborted  = "run aborted"
	ReasonFilteredOut = "filtered out"
	ReasonBail        = "bail: earlier case failed"
)

type CaseOutcome struct {
	Name       string
	Ordinal    int
	Tags       []string
	State      State
	Passed     bool
	Results    []*assertions.Result
	Err        error
	SkipReason string
	Duration   time.Duration
	Request    *http.Request
	Response   *http.Response
	Captures   map[string]any
}

// Failures returns the failed expectation results.
func (o *CaseOutcome) Failures() []*assertions.Result {
	return assertions.Failed(o.Results)
}

// Failed reports a case that ran and did not pass.
func (o *CaseOutcome) Failed() bool {
	return o.State == StateCompleted && !o.Passed
}

// Status is the one-word label used by every formatter.
func (o *CaseOutcome) Status() string {
	switch o.State {
	case StateCompleted:
		if o.Passed {
			return "passed"
		}
		return "failed"
	case StateSkipped:
		return "skipped"
	case StateAborted:
		return "aborted"
	default:
		return o.State.String()
	}
}

// Completed builds the outcome of a case whose request went out.
func Completed(name string, ordinal int, results []*assertions.Result, err error) *CaseOutcome {
	return &CaseOutcome{
		Name:    name,
		Ordinal: ordinal,
		State:   StateCompleted,
		Passed:  err == nil && len(assertions.Failed(results)) == 0,
		Results: results,
		Err:     err,
	}
}

func Skipped(name string, ordinal int, reason string, err error) *CaseOutcome {
	return &CaseOutcome{Name: name, Ordinal: ordinal, State: StateSkipped, SkipReason: reason, Err: err}
}

func Aborted(name string, ordinal int, err error) *CaseOutcome {
	return &CaseOutcome{Name: name, Ordinal: ordinal, State: StateAborted, Err: err}
}
