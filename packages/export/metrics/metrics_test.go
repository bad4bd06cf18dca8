package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/apicontract/packages/assertions"
	"github.com/abdul-hamid-achik/apicontract/packages/http"
	"github.com/abdul-hamid-achik/apicontract/packages/report"
	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() *Snapshot {
	rec := report.NewRecorder(`users "v1"`, "users.yaml")

	list := report.Completed("list-users", 1, nil, nil)
	list.Request = http.NewRequest("GET", "http://localhost/users")
	list.Response = &http.Response{StatusCode: 200}
	list.Duration = 120 * time.Millisecond
	rec.Record(list)

	create := report.Completed("create-user", 2, []*assertions.Result{
		{Subject: "status", Operator: "equals", Expected: 201, Actual: 500},
	}, nil)
	create.Response = &http.Response{StatusCode: 500}
	create.Duration = 80 * time.Millisecond
	rec.Record(create)

	rec.Record(report.Skipped("get-user", 3, "dependency not satisfied", nil))
	return FromReports([]*report.SuiteReport{rec.Finalize()}, time.Unix(1700000000, 0))
}

func TestFromReports(t *testing.T) {
	s := sampleSnapshot()

	require.Len(t, s.Suites, 1)
	suite := s.Suites[0]
	assert.Equal(t, 3, suite.Total)
	assert.Equal(t, 1, suite.Passed)
	assert.Equal(t, 1, suite.Failed)
	assert.Equal(t, 1, suite.Skipped)
	assert.Equal(t, report.ExitFailure, suite.ExitCode)
	assert.NotEmpty(t, suite.RunID)

	require.Len(t, s.Cases, 3)
	assert.Equal(t, CaseMetric{Suite: `users "v1"`, Case: "list-users", Method: "GET", Outcome: "passed", StatusCode: 200, DurationMs: 120}, s.Cases[0])
	assert.Equal(t, 1, s.Cases[1].Failures)
	assert.Equal(t, "skipped", s.Cases[2].Outcome)
	assert.Zero(t, s.Cases[2].StatusCode)
}

func TestPrometheusExporter_Writer(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrometheusExporter(WithPrometheusWriter(&buf))
	require.NoError(t, p.Export(context.Background(), sampleSnapshot()))

	out := buf.String()
	assert.Contains(t, out, "# TYPE apicontract_cases gauge")
	assert.Contains(t, out, `apicontract_cases{suite="users \"v1\"",outcome="failed"} 1`)
	assert.Contains(t, out, `apicontract_exit_code{suite="users \"v1\""} 1`)
	assert.Contains(t, out, `apicontract_case_passed{suite="users \"v1\"",case="list-users",outcome="passed"} 1`)
	assert.Contains(t, out, `apicontract_case_passed{suite="users \"v1\"",case="get-user",outcome="skipped"} 0`)
	assert.Contains(t, out, `apicontract_case_duration_seconds{suite="users \"v1\"",case="list-users",status="200"} 0.120`)
	assert.NotContains(t, out, `case_duration_seconds{suite="users \"v1\"",case="get-user"`)
}

func TestPrometheusExporter_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apicontract.prom")
	p := NewPrometheusExporter(WithPrometheusFile(path))
	require.NoError(t, p.Export(context.Background(), sampleSnapshot()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "apicontract_run_duration_seconds")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestPrometheusExporter_NoOutput(t *testing.T) {
	assert.Error(t, NewPrometheusExporter().Export(context.Background(), sampleSnapshot()))
}

func TestJSONExporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONExporter(WithJSONWriter(&buf)).Export(context.Background(), sampleSnapshot()))

	var got Snapshot
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Len(t, got.Cases, 3)
	assert.Equal(t, 1, got.Suites[0].Failed)
}

func TestDataDogExporter(t *testing.T) {
	handler, requests := httphelpers.RecordingHandler(httphelpers.HandlerWithStatus(202))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		d := NewDataDogExporter(
			WithDataDogAPIKey("key"),
			WithDataDogBaseURL(server.URL),
			WithDataDogTags([]string{"env:ci"}),
			WithDataDogHTTPClient(server.Client()),
		)
		require.NoError(t, d.Export(context.Background(), sampleSnapshot()))

		req := <-requests
		assert.Equal(t, "/api/v1/series", req.Request.URL.Path)
		assert.Equal(t, "key", req.Request.Header.Get("DD-API-KEY"))

		var payload datadogPayload
		require.NoError(t, json.Unmarshal(req.Body, &payload))
		// seven suite series plus one per executed case
		require.Len(t, payload.Series, 9)
		assert.Equal(t, "apicontract.cases.passed", payload.Series[0].Metric)
		assert.Equal(t, []string{`suite:users "v1"`, "env:ci"}, payload.Series[0].Tags)
		assert.Equal(t, [][]float64{{1700000000, 1}}, payload.Series[0].Points)
	})
}

func TestDataDogExporter_Errors(t *testing.T) {
	t.Setenv("DD_API_KEY", "")
	err := NewDataDogExporter().Export(context.Background(), sampleSnapshot())
	assert.ErrorContains(t, err, "API key")

	httphelpers.WithServer(httphelpers.HandlerWithResponse(403, nil, []byte("forbidden")), func(server *httptest.Server) {
		d := NewDataDogExporter(WithDataDogAPIKey("bad"), WithDataDogBaseURL(server.URL))
		assert.ErrorContains(t, d.Export(context.Background(), sampleSnapshot()), "status 403: forbidden")
	})
}

type failingExporter struct{}

func (failingExporter) Name() string { return "broken" }
func (failingExporter) Export(context.Context, *Snapshot) error {
	return errors.New("unreachable")
}

func TestExportAll(t *testing.T) {
	var buf bytes.Buffer
	err := ExportAll(context.Background(), sampleSnapshot(), NewJSONExporter(WithJSONWriter(&buf)), failingExporter{})
	assert.EqualError(t, err, "broken: unreachable")
	assert.NotEmpty(t, buf.String())
}
