// Package history keeps finished suite reports in a SQLite database so runs
// can be listed, compared and used to detect recoveries.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/apicontract/packages/report"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// ErrNoRuns is returned by Last when a suite has no recorded run.
var ErrNoRuns = errors.New("no recorded runs")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	suite       TEXT NOT NULL,
	path        TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMP NOT NULL,
	duration_ms REAL NOT NULL,
	total       INTEGER NOT NULL,
	passed      INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	aborted     INTEGER NOT NULL,
	incomplete  INTEGER NOT NULL,
	abort_reason TEXT NOT NULL DEFAULT '',
	exit_code   INTEGER NOT NULL,
	p95_ms      REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS runs_suite_started ON runs (suite, started_at);
CREATE TABLE IF NOT EXISTS cases (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	ordinal     INTEGER NOT NULL,
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	duration_ms REAL NOT NULL,
	status_code INTEGER NOT NULL DEFAULT 0,
	failures    INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, name)
);
`

// Run is one stored suite report.
type Run struct {
	ID          string
	Suite       string
	Path        string
	StartedAt   time.Time
	Duration    time.Duration
	Total       int
	Passed      int
	Failed      int
	Skipped     int
	Aborted     int
	Incomplete  bool
	AbortReason string
	ExitCode    int
	P95         time.Duration
}

// Success mirrors report.SuiteReport.Success for a stored run.
func (r *Run) Success() bool {
	return r.ExitCode == report.ExitOK
}

// Case is one stored case outcome.
type Case struct {
	RunID      string
	Ordinal    int
	Name       string
	Status     string
	Duration   time.Duration
	StatusCode int
	Failures   int
	Error      string
}

type Store struct {
	db   *sql.DB
	path string
}

// Open opens (and creates if needed) the history database. The location is
// a file path, optionally prefixed with "sqlite://" or "sqlite:".
func Open(ctx context.Context, location string) (*Store, error) {
	path, err := parseLocation(location)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// One writer at a time keeps SQLite from returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

func parseLocation(location string) (string, error) {
	location = strings.TrimSpace(location)
	switch {
	case strings.HasPrefix(location, "sqlite://"):
		location = strings.TrimPrefix(location, "sqlite://")
	case strings.HasPrefix(location, "sqlite:"):
		location = strings.TrimPrefix(location, "sqlite:")
	case strings.Contains(location, "://"):
		return "", fmt.Errorf("unsupported history location %q: only sqlite is supported", location)
	}
	if location == "" {
		return "", errors.New("history location is empty")
	}
	return location, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func fromMs(v float64) time.Duration {
	return time.Duration(v * float64(time.Millisecond))
}

// Save stores a finalized report and its cases in one transaction.
func (s *Store) Save(ctx context.Context, r *report.SuiteReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(id, suite, path, started_at, duration_ms, total, passed, failed, skipped, aborted, incomplete, abort_reason, exit_code, p95_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Suite, r.Path, r.StartedAt.UTC(), ms(r.Duration),
		r.Total, r.Passed, r.Failed, r.Skipped, r.Aborted, r.Incomplete, r.AbortReason,
		r.ExitCode(), ms(r.Latency.P95))
	if err != nil {
		return fmt.Errorf("saving run %s: %w", r.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO cases
		(run_id, ordinal, name, status, duration_ms, status_code, failures, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing case insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range r.Outcomes {
		var code int
		if o.Response != nil {
			code = o.Response.StatusCode
		}
		var errText string
		if o.Err != nil {
			errText = o.Err.Error()
		}
		if _, err := stmt.ExecContext(ctx, r.RunID, o.Ordinal, o.Name, o.Status(),
			ms(o.Duration), code, len(o.Failures()), errText); err != nil {
			return fmt.Errorf("saving case %s: %w", o.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Filter narrows Runs. The zero value lists the 20 most recent runs.
type Filter struct {
	Suite string
	Limit int
	// FailedOnly keeps runs whose exit code is not zero.
	FailedOnly bool
}

const runColumns = `id, suite, path, started_at, duration_ms, total, passed, failed, skipped, aborted, incomplete, abort_reason, exit_code, p95_ms`

// Runs lists stored runs, most recent first.
func (s *Store) Runs(ctx context.Context, f Filter) ([]*Run, error) {
	var where []string
	var args []any
	if f.Suite != "" {
		where = append(where, "suite = ?")
		args = append(args, f.Suite)
	}
	if f.FailedOnly {
		where = append(where, "exit_code != 0")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}

	query := "SELECT " + runColumns + " FROM runs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

// Last returns the most recent run of a suite, or ErrNoRuns.
func (s *Store) Last(ctx context.Context, suite string) (*Run, error) {
	runs, err := s.Runs(ctx, Filter{Suite: suite, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("suite %q: %w", suite, ErrNoRuns)
	}
	return runs[0], nil
}

// Get returns one run by ID.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNoRuns)
	}
	return r, err
}

// Cases returns the stored cases of a run in declared order.
func (s *Store) Cases(ctx context.Context, runID string) ([]*Case, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, ordinal, name, status, duration_ms, status_code, failures, error
		FROM cases WHERE run_id = ? ORDER BY ordinal`, runID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var cases []*Case
	for rows.Next() {
		var c Case
		var duration float64
		if err := rows.Scan(&c.RunID, &c.Ordinal, &c.Name, &c.Status, &duration, &c.StatusCode, &c.Failures, &c.Error); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		c.Duration = fromMs(duration)
		cases = append(cases, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return cases, nil
}

// Prune keeps the newest keep runs per suite and deletes the rest. It
// returns the number of deleted runs.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id IN (
		SELECT id FROM (
			SELECT id, ROW_NUMBER() OVER (PARTITION BY suite ORDER BY started_at DESC, rowid DESC) AS n FROM runs
		) WHERE n > ?
	)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune failed: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var duration, p95 float64
	err := row.Scan(&r.ID, &r.Suite, &r.Path, &r.StartedAt, &duration,
		&r.Total, &r.Passed, &r.Failed, &r.Skipped, &r.Aborted, &r.Incomplete, &r.AbortReason,
		&r.ExitCode, &p95)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}
	r.Duration = fromMs(duration)
	r.P95 = fromMs(p95)
	return &r, nil
}
