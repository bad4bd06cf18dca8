package report

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/apicontract/packages/assertions"
	"github.com/abdul-hamid-achik/apicontract/packages/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passing(name string, ordinal int, d time.Duration) *CaseOutcome {
	o := Completed(name, ordinal, []*assertions.Result{{Passed: true, Subject: "status"}}, nil)
	o.Response = &http.Response{StatusCode: 200, Duration: d}
	return o
}

func TestRecorder_Counts(t *testing.T) {
	rec := NewRecorder("users", "users.yaml")

	failing := Completed("create-user", 2, []*assertions.Result{
		{Passed: true, Subject: "status"},
		{Passed: false, Subject: "body.id", Message: "expected 11, got 12"},
	}, nil)
	failing.Response = &http.Response{StatusCode: 201, Duration: 30 * time.Millisecond}

	rec.Record(Skipped("get-user", 3, "dependency not satisfied", nil))
	rec.Record(failing)
	rec.Record(passing("list-users", 1, 10*time.Millisecond))
	rec.Record(Aborted("bad", 4, errors.New("unsupported method")))

	rep := rec.Finalize()

	assert.Equal(t, 4, rep.Total)
	assert.Equal(t, 1, rep.Passed)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 1, rep.Aborted)
	assert.False(t, rep.Incomplete)
	assert.Equal(t, ExitAborted, rep.ExitCode())
	assert.NotEmpty(t, rep.RunID)

	names := []string{}
	for _, o := range rep.Outcomes {
		names = append(names, o.Name)
	}
	assert.Equal(t, []string{"list-users", "create-user", "get-user", "bad"}, names)
	assert.Len(t, rep.Outcome("create-user").Failures(), 1)
	assert.Equal(t, "failed", rep.Outcome("create-user").Status())
}

func TestRecorder_ExitCodes(t *testing.T) {
	rec := NewRecorder("ok", "")
	rec.Record(passing("a", 1, time.Millisecond))
	rec.Record(Skipped("b", 2, "skipped", nil))
	assert.Equal(t, ExitOK, rec.Finalize().ExitCode())

	rec = NewRecorder("canceled", "")
	rec.Record(passing("a", 1, time.Millisecond))
	rec.Record(Skipped("b", 2, ReasonRunCanceled, nil))
	rep := rec.Finalize()
	assert.True(t, rep.Incomplete)
	assert.Equal(t, ExitFailure, rep.ExitCode())

	rec = NewRecorder("aborted", "")
	rec.Record(Aborted("a", 1, errors.New("bad")))
	rec.MarkAborted("case \"a\" is malformed")
	assert.Equal(t, ExitAborted, rec.Finalize().ExitCode())
}

func TestRecorder_AbortedCaseOutranksFailure(t *testing.T) {
	rec := NewRecorder("s", "")
	rec.Record(Aborted("a", 1, errors.New("bad")))
	rec.Record(Completed("b", 2, []*assertions.Result{{Passed: false}}, nil))
	rep := rec.Finalize()
	assert.Equal(t, ExitAborted, rep.ExitCode())
	assert.Empty(t, rep.AbortReason)
}

func TestRecorder_DuplicateIgnored(t *testing.T) {
	rec := NewRecorder("s", "")
	assert.True(t, rec.Record(passing("a", 1, time.Millisecond)))
	assert.False(t, rec.Record(Skipped("a", 1, "again", nil)))
	assert.True(t, rec.Recorded("a", 1))
	assert.False(t, rec.Recorded("a", 2))

	rep := rec.Finalize()
	assert.Equal(t, 1, rep.Total)
	assert.Equal(t, 1, rep.Passed)
	assert.False(t, rec.Record(passing("late", 2, time.Millisecond)))
	assert.Same(t, rep, rec.Finalize())
}

func TestRecorder_SameNameDifferentOrdinals(t *testing.T) {
	rec := NewRecorder("s", "")
	assert.True(t, rec.Record(Aborted("list", 1, errors.New("duplicate"))))
	assert.True(t, rec.Record(Aborted("list", 2, errors.New("duplicate"))))

	rep := rec.Finalize()
	assert.Equal(t, 2, rep.Total)
	assert.Equal(t, 2, rep.Aborted)
}

func TestRecorder_Latency(t *testing.T) {
	rec := NewRecorder("s", "")
	for i := 1; i <= 100; i++ {
		rec.Record(passing(fmt.Sprintf("case-%d", i), i, time.Duration(i)*time.Millisecond))
	}
	rec.Record(Skipped("skipped", 101, "x", nil))

	lat := rec.Finalize().Latency
	assert.Equal(t, int64(100), lat.Count)
	assert.InDelta(t, float64(50*time.Millisecond), float64(lat.P50), float64(time.Millisecond))
	assert.InDelta(t, float64(99*time.Millisecond), float64(lat.P99), float64(time.Millisecond))
	assert.InDelta(t, float64(time.Millisecond), float64(lat.Min), float64(10*time.Microsecond))
	assert.InDelta(t, float64(100*time.Millisecond), float64(lat.Max), float64(time.Millisecond))
	assert.InDelta(t, float64(50500*time.Microsecond), float64(lat.Mean), float64(time.Millisecond))
}

func TestRecorder_ConcurrentRecord(t *testing.T) {
	rec := NewRecorder("s", "")
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec.Record(passing(fmt.Sprintf("c%02d", i), i+1, time.Millisecond))
		}(i)
	}
	wg.Wait()

	rep := rec.Finalize()
	require.Len(t, rep.Outcomes, 64)
	for i, o := range rep.Outcomes {
		assert.Equal(t, i+1, o.Ordinal)
	}
}

func TestSumAndExitCodeOf(t *testing.T) {
	a := NewRecorder("a", "")
	a.Record(passing("x", 1, time.Millisecond))
	b := NewRecorder("b", "")
	b.Record(Completed("y", 1, []*assertions.Result{{Passed: false}}, nil))

	reports := []*SuiteReport{a.Finalize(), b.Finalize()}
	totals := Sum(reports)
	assert.Equal(t, 2, totals.Suites)
	assert.Equal(t, 2, totals.Total)
	assert.Equal(t, 1, totals.Failed)
	assert.Equal(t, ExitFailure, ExitCodeOf(reports))
}

func TestState(t *testing.T) {
	assert.Equal(t, "skipped", StateSkipped.String())
	assert.True(t, StateAborted.Terminal())
	assert.False(t, StateRunning.Terminal())

	data, err := StateCompleted.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"completed"`, string(data))

	o := Completed("x", 1, nil, errors.New("network"))
	assert.False(t, o.Passed)
	assert.True(t, o.Failed())
}
