package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/apicontract/packages/assertions"
	"github.com/abdul-hamid-achik/apicontract/packages/http"
	"github.com/abdul-hamid-achik/apicontract/packages/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newReport(suite string, pass bool, startedAt time.Time) *report.SuiteReport {
	rec := report.NewRecorder(suite, suite+".yaml")
	var results []*assertions.Result
	if !pass {
		results = []*assertions.Result{{Subject: "status", Operator: "equals", Message: "expected 200, got 500"}}
	}
	o := report.Completed("list-users", 1, results, nil)
	o.Response = &http.Response{StatusCode: 200, Duration: 20 * time.Millisecond}
	o.Duration = 20 * time.Millisecond
	rec.Record(o)
	rec.Record(report.Skipped("get-user", 2, "dependency not satisfied", errors.New("missing create-user.id")))
	r := rec.Finalize()
	r.StartedAt = startedAt
	return r
}

func TestOpen_Locations(t *testing.T) {
	dir := t.TempDir()
	for _, loc := range []string{
		filepath.Join(dir, "a.db"),
		"sqlite:" + filepath.Join(dir, "b.db"),
		"sqlite://" + filepath.Join(dir, "c.db"),
	} {
		store, err := Open(context.Background(), loc)
		require.NoError(t, err, loc)
		require.NoError(t, store.Close())
	}

	_, err := Open(context.Background(), "postgres://localhost/db")
	assert.Error(t, err)
	_, err = Open(context.Background(), " ")
	assert.Error(t, err)
}

func TestStore_SaveAndRead(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	rep := newReport("users", false, time.Now())
	require.NoError(t, store.Save(ctx, rep))

	run, err := store.Get(ctx, rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, "users", run.Suite)
	assert.Equal(t, "users.yaml", run.Path)
	assert.Equal(t, 2, run.Total)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 1, run.Skipped)
	assert.Equal(t, report.ExitFailure, run.ExitCode)
	assert.False(t, run.Success())
	assert.False(t, run.Incomplete)

	cases, err := store.Cases(ctx, rep.RunID)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "list-users", cases[0].Name)
	assert.Equal(t, "failed", cases[0].Status)
	assert.Equal(t, 200, cases[0].StatusCode)
	assert.Equal(t, 1, cases[0].Failures)
	assert.Equal(t, 20*time.Millisecond, cases[0].Duration)
	assert.Equal(t, "skipped", cases[1].Status)
	assert.Equal(t, "missing create-user.id", cases[1].Error)

	require.Error(t, store.Save(ctx, rep), "run IDs are unique")
}

func TestStore_RunsAndLast(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	base := time.Now().Add(-time.Hour)

	require.NoError(t, store.Save(ctx, newReport("users", false, base)))
	require.NoError(t, store.Save(ctx, newReport("users", true, base.Add(time.Minute))))
	require.NoError(t, store.Save(ctx, newReport("posts", true, base.Add(2*time.Minute))))

	runs, err := store.Runs(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "posts", runs[0].Suite)

	runs, err = store.Runs(ctx, Filter{Suite: "users"})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].Success())
	assert.False(t, runs[1].Success())

	runs, err = store.Runs(ctx, Filter{FailedOnly: true})
	require.NoError(t, err)
	require.Len(t, runs, 1)

	last, err := store.Last(ctx, "users")
	require.NoError(t, err)
	assert.True(t, last.Success())

	_, err = store.Last(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNoRuns)
	_, err = store.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNoRuns)
}

func TestStore_Prune(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	base := time.Now().Add(-time.Hour)

	var oldest *report.SuiteReport
	for i := 0; i < 4; i++ {
		r := newReport("users", true, base.Add(time.Duration(i)*time.Minute))
		if i == 0 {
			oldest = r
		}
		require.NoError(t, store.Save(ctx, r))
	}
	require.NoError(t, store.Save(ctx, newReport("posts", true, base)))

	deleted, err := store.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	runs, err := store.Runs(ctx, Filter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, runs, 3)

	cases, err := store.Cases(ctx, oldest.RunID)
	require.NoError(t, err)
	assert.Empty(t, cases)
}
