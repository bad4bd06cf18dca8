package runner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/apicontract/packages/core/suite"
	apihttp "github.com/abdul-hamid-achik/apicontract/packages/http"
	"github.com/abdul-hamid-achik/apicontract/packages/logging"
	"github.com/abdul-hamid-achik/apicontract/packages/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	server *httptest.Server
	hits   map[string]*atomic.Int64
}

func (f *fixture) count(path string) int64 {
	if c, ok := f.hits[path]; ok {
		return c.Load()
	}
	return 0
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{hits: map[string]*atomic.Int64{}}
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		counter := &atomic.Int64{}
		f.hits[pattern] = counter
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			counter.Add(1)
			h(w, r)
		})
	}
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	handle("GET /users", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, []map[string]any{
			{"id": 1, "name": "Leanne Graham", "email": "Sincere@april.biz"},
			{"id": 2, "name": "Ervin Howell", "email": "Shanna@melissa.tv"},
		})
	})
	handle("POST /users", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		body["id"] = 11
		writeJSON(w, 201, body)
	})
	handle("GET /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "11" {
			writeJSON(w, 404, map[string]any{})
			return
		}
		writeJSON(w, 200, map[string]any{"id": 11, "name": "John", "auth": r.Header.Get("Authorization")})
	})
	handle("GET /slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(50 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		writeJSON(w, 200, map[string]any{"slow": true})
	})
	handle("GET /sleep", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(100 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		writeJSON(w, 200, map[string]any{})
	})
	handle("GET /hang", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	handle("GET /missing", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 404, map[string]any{"error": "not found"})
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func runSuite(t *testing.T, cfg *Config, s *suite.Suite) *report.SuiteReport {
	t.Helper()
	return NewRunner(cfg).Run(context.Background(), s)
}

func TestRunner_ListUsers(t *testing.T) {
	f := newFixture(t)
	s := suite.New("users").BaseURL(f.server.URL).
		Case("list-users").GET("/users").
		Expect("status", "equals", 200).
		Expect("body", "type", "array").
		Expect("body", "minLength", 1).
		ExpectProperty("body[0]", "email").
		Build()

	rep := runSuite(t, nil, s)

	require.Len(t, rep.Outcomes, 1)
	o := rep.Outcomes[0]
	assert.Equal(t, report.StateCompleted, o.State)
	assert.True(t, o.Passed)
	assert.Len(t, o.Results, 4)
	assert.Equal(t, report.ExitOK, rep.ExitCode())
}

func TestRunner_CreateThenFetchUsesCapture(t *testing.T) {
	f := newFixture(t)
	s := suite.New("users").BaseURL(f.server.URL).
		Variable("token", "abc").
		Case("create-user").POST("/users").
		Body(map[string]any{"name": "John", "job": "qa"}).
		Expect("status", "oneOf", []any{400, 201}).Note("backend does not validate input").
		Expect("body", "include", map[string]any{"name": "John"}).
		Capture("id", "body.id").
		Case("get-user").GET("/users/{{create-user.id}}").
		Header("Authorization", "Bearer {{token}}").
		Expect("body.id", "equals", "{{create-user.id}}").
		Expect("body.auth", "equals", "Bearer abc").
		Build()

	rep := runSuite(t, nil, s)

	create := rep.Outcome("create-user")
	require.True(t, create.Passed, "%v", create.Failures())
	assert.Equal(t, map[string]any{"id": float64(11)}, create.Captures)

	get := rep.Outcome("get-user")
	assert.Equal(t, report.StateCompleted, get.State)
	assert.Equal(t, f.server.URL+"/users/11", get.Request.URL)
	assert.True(t, get.Passed, "%v", get.Failures())
	assert.Equal(t, float64(11), get.Results[0].Expected)
}

func TestRunner_FailingExpectationsAreAllReported(t *testing.T) {
	f := newFixture(t)
	s := suite.New("users").BaseURL(f.server.URL).
		Case("list-users").GET("/users").
		Expect("status", "equals", 200).
		Expect("body", "length", 3).
		Expect("body[0].name", "equals", "Leanne Graham").
		Expect("body[1].email", "matches", `^\d+$`).
		Expect("duration", "lessThan", 5000).
		Build()

	rep := runSuite(t, nil, s)

	o := rep.Outcomes[0]
	assert.Equal(t, report.StateCompleted, o.State)
	assert.False(t, o.Passed)
	assert.Len(t, o.Results, 5)
	assert.Len(t, o.Failures(), 2)
	assert.Equal(t, "expected length 3, got 2", o.Failures()[0].Message)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, report.ExitFailure, rep.ExitCode())
}

func TestRunner_TimeoutFailsCase(t *testing.T) {
	f := newFixture(t)
	s := suite.New("slow").BaseURL(f.server.URL).
		Case("slow").GET("/slow").Timeout(time.Millisecond).
		Expect("status", "equals", 200).
		Case("after").GET("/users").
		Expect("status", "equals", 200).
		Build()

	rep := runSuite(t, nil, s)

	slow := rep.Outcome("slow")
	assert.Equal(t, report.StateCompleted, slow.State)
	assert.False(t, slow.Passed)
	var netErr *apihttp.NetworkError
	require.True(t, errors.As(slow.Err, &netErr), "got %v", slow.Err)
	assert.Equal(t, apihttp.ReasonTimeout, netErr.Reason)
	assert.Empty(t, slow.Results)

	assert.True(t, rep.Outcome("after").Passed)
}

func TestRunner_FailOnStatusCode(t *testing.T) {
	f := newFixture(t)
	s := suite.New("status").BaseURL(f.server.URL).
		Case("strict").GET("/missing").
		Expect("status", "equals", 404).
		Case("lenient").GET("/missing").FailOnStatusCode(false).
		Expect("status", "equals", 404).
		Build()

	rep := runSuite(t, nil, s)

	strict := rep.Outcome("strict")
	assert.False(t, strict.Passed)
	var statusErr *apihttp.StatusCodeError
	assert.True(t, errors.As(strict.Err, &statusErr))
	assert.Empty(t, strict.Failures(), "expectations are still evaluated")

	assert.True(t, rep.Outcome("lenient").Passed)
}

func TestRunner_SkipsWhenCaptureMissing(t *testing.T) {
	f := newFixture(t)
	logger := &logging.CapturingLogger{}
	s := suite.New("users").BaseURL(f.server.URL).
		Case("create-user").POST("/users").Body(map[string]any{"name": "John"}).
		Expect("status", "equals", 200).
		Capture("id", "body.id").
		Case("get-user").GET("/users/{{create-user.id}}").
		Expect("status", "equals", 200).
		Case("independent").GET("/users").
		Expect("status", "equals", 200).
		Build()

	rep := runSuite(t, &Config{Logger: logger}, s)

	assert.False(t, rep.Outcome("create-user").Passed)

	get := rep.Outcome("get-user")
	assert.Equal(t, report.StateSkipped, get.State)
	var depErr *DependencyUnsatisfiedError
	require.True(t, errors.As(get.Err, &depErr))
	assert.Equal(t, []string{"create-user.id"}, depErr.Missing)
	assert.Equal(t, int64(0), f.count("GET /users/{id}"))

	assert.True(t, rep.Outcome("independent").Passed)
	assert.Equal(t, 1, rep.Skipped)
	assert.Contains(t, logger.Messages(), `warning: skipping get-user: case "get-user" needs values that were not captured: create-user.id`)
}

func TestRunner_SkipsWhenCapturedValueNotFound(t *testing.T) {
	f := newFixture(t)
	s := suite.New("users").BaseURL(f.server.URL).
		Case("list").GET("/users").
		Expect("status", "equals", 200).
		Capture("token", "body.token").
		Case("use-token").GET("/users").Header("Authorization", "{{list.token}}").
		Build()

	rep := runSuite(t, nil, s)

	assert.True(t, rep.Outcome("list").Passed)
	assert.Equal(t, report.StateSkipped, rep.Outcome("use-token").State)
}

func TestRunner_MalformedCaseIsAborted(t *testing.T) {
	f := newFixture(t)
	s := suite.New("users").BaseURL(f.server.URL).
		Case("bad").Request("FETCH", "/users").
		Case("good").GET("/users").Expect("status", "equals", 200).
		Build()

	rep := runSuite(t, nil, s)

	bad := rep.Outcome("bad")
	assert.Equal(t, report.StateAborted, bad.State)
	var malformed *suite.MalformedSpecError
	assert.True(t, errors.As(bad.Err, &malformed))
	assert.True(t, rep.Outcome("good").Passed)
	assert.Equal(t, 1, rep.Aborted)
	assert.Equal(t, report.ExitAborted, rep.ExitCode())
}

func TestRunner_DuplicateNamesEachGetOneOutcome(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		t.Run(map[bool]string{false: "sequential", true: "parallel"}[parallel], func(t *testing.T) {
			f := newFixture(t)
			s := suite.New("dup").BaseURL(f.server.URL).
				Case("list").GET("/users").Expect("status", "equals", 200).
				Case("list").GET("/users").Expect("status", "equals", 200).
				Case("other").GET("/users").Expect("status", "equals", 200).
				Build()

			rep := runSuite(t, &Config{Parallel: parallel}, s)

			require.Len(t, rep.Outcomes, 3)
			for i, o := range rep.Outcomes[:2] {
				assert.Equal(t, "list", o.Name)
				assert.Equal(t, i+1, o.Ordinal)
				assert.Equal(t, report.StateAborted, o.State)
			}
			assert.True(t, rep.Outcome("other").Passed)
			assert.Equal(t, int64(1), f.count("GET /users"))
			assert.Equal(t, report.ExitAborted, rep.ExitCode())
		})
	}
}

func TestRunner_DottedConfigVariable(t *testing.T) {
	f := newFixture(t)
	s := suite.New("users").BaseURL(f.server.URL).
		Case("get-user").GET("/users/11").
		Header("Authorization", "{{api.key}}").
		Expect("body.auth", "equals", "secret").
		Build()
	require.Nil(t, s.Case("get-user").Malformed)

	rep := runSuite(t, &Config{Variables: map[string]any{"api.key": "secret"}}, s)

	assert.True(t, rep.Outcome("get-user").Passed)
}

func TestRunner_FailOnMalformedAbortsRun(t *testing.T) {
	f := newFixture(t)
	s := suite.New("users").BaseURL(f.server.URL).
		Case("good").GET("/users").Expect("status", "equals", 200).
		Case("bad").GET("/users").Expect("status", "resembles", 200).
		Build()

	rep := runSuite(t, &Config{FailOnMalformed: true}, s)

	assert.Equal(t, report.StateSkipped, rep.Outcome("good").State)
	assert.Equal(t, report.ReasonRunAborted, rep.Outcome("good").SkipReason)
	assert.Equal(t, report.StateAborted, rep.Outcome("bad").State)
	assert.Equal(t, int64(0), f.count("GET /users"))
	assert.Equal(t, report.ExitAborted, rep.ExitCode())
}

func TestRunner_TemplateFunctionErrorAborts(t *testing.T) {
	f := newFixture(t)
	s := suite.New("users").BaseURL(f.server.URL).
		Case("bad-func").GET("/users?n={{random(a, b)}}").
		Build()

	rep := runSuite(t, nil, s)
	assert.Equal(t, report.StateAborted, rep.Outcome("bad-func").State)
}

func TestRunner_ParallelIndependentCases(t *testing.T) {
	f := newFixture(t)
	b := suite.New("sleepy").BaseURL(f.server.URL)
	for _, name := range []string{"a", "b", "c", "d"} {
		b.Case(name).GET("/sleep").Expect("status", "equals", 200)
	}
	s := b.Build()

	start := time.Now()
	rep := runSuite(t, &Config{Parallel: true, Concurrency: 4}, s)
	elapsed := time.Since(start)

	assert.Equal(t, 4, rep.Passed)
	assert.Less(t, elapsed, 350*time.Millisecond)
	for i, o := range rep.Outcomes {
		assert.Equal(t, i+1, o.Ordinal)
	}
}

func TestRunner_ParallelWaitsForDependencies(t *testing.T) {
	f := newFixture(t)
	s := suite.New("users").BaseURL(f.server.URL).
		Case("get-user").GET("/users/{{create-user.id}}").
		Build()
	require.NotNil(t, s.Case("get-user").Malformed, "forward references are rejected")

	s = suite.New("users").BaseURL(f.server.URL).
		Case("create-user").POST("/users").Body(map[string]any{"name": "John"}).
		Capture("id", "body.id").
		Case("get-user").GET("/users/{{create-user.id}}").Expect("status", "equals", 200).
		Case("list-1").GET("/users").
		Case("list-2").GET("/users").
		Build()

	rep := runSuite(t, &Config{Parallel: true, Concurrency: 2}, s)

	assert.Equal(t, 4, rep.Passed)
	assert.Equal(t, f.server.URL+"/users/11", rep.Outcome("get-user").Request.URL)
}

func TestRunner_CancelMarksIncomplete(t *testing.T) {
	f := newFixture(t)
	s := suite.New("hang").BaseURL(f.server.URL).
		Case("first").GET("/users").
		Case("hangs").GET("/hang").Timeout(-1).
		Case("never").GET("/users").
		Build()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for f.count("GET /hang") == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
	}()

	rep := NewRunner(nil).Run(ctx, s)

	assert.True(t, rep.Outcome("first").Passed)
	assert.Equal(t, report.StateSkipped, rep.Outcome("hangs").State)
	assert.Equal(t, report.ReasonRunCanceled, rep.Outcome("hangs").SkipReason)
	assert.Equal(t, report.StateSkipped, rep.Outcome("never").State)
	assert.True(t, rep.Incomplete)
	assert.Equal(t, report.ExitFailure, rep.ExitCode())
	assert.Len(t, rep.Outcomes, 3)
}

func TestRunner_CancelWithNothingLeftIsComplete(t *testing.T) {
	f := newFixture(t)
	s := suite.New("users").BaseURL(f.server.URL).
		Case("list-users").GET("/users").Tags("smoke").
		Case("parked").GET("/users").Skip("not ready").
		Build()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := NewRunner(&Config{TagsFilter: []string{"write"}}).Run(ctx, s)

	assert.Equal(t, 2, rep.Skipped)
	assert.False(t, rep.Incomplete)
	assert.Equal(t, report.ExitOK, rep.ExitCode())
}

func TestRunner_ParallelCancel(t *testing.T) {
	f := newFixture(t)
	b := suite.New("hang").BaseURL(f.server.URL)
	for _, name := range []string{"a", "b", "c"} {
		b.Case(name).GET("/hang").Timeout(-1)
	}
	s := b.Build()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	rep := NewRunner(&Config{Parallel: true, Concurrency: 1}).Run(ctx, s)

	assert.Len(t, rep.Outcomes, 3)
	assert.Equal(t, 3, rep.Skipped)
	assert.True(t, rep.Incomplete)
}

func TestRunner_Filters(t *testing.T) {
	f := newFixture(t)
	s := suite.New("users").BaseURL(f.server.URL).
		Case("list-users").GET("/users").Tags("smoke").
		Case("list-users-again").GET("/users").
		Case("create-user").POST("/users").Tags("write").
		Case("list-skipped").GET("/users").Tags("smoke").Skip("flaky upstream").
		Build()

	rep := runSuite(t, &Config{NameFilter: "list-*", TagsFilter: []string{"smoke"}}, s)

	assert.True(t, rep.Outcome("list-users").Passed)
	assert.Equal(t, report.ReasonFilteredOut, rep.Outcome("list-users-again").SkipReason)
	assert.Equal(t, report.ReasonFilteredOut, rep.Outcome("create-user").SkipReason)
	assert.Equal(t, "flaky upstream", rep.Outcome("list-skipped").SkipReason)
	assert.Equal(t, 1, rep.Passed)
	assert.Equal(t, 3, rep.Skipped)
}

func TestRunner_Only(t *testing.T) {
	f := newFixture(t)
	s := suite.New("users").BaseURL(f.server.URL).
		Case("a").GET("/users").
		Case("b").GET("/users").Only().
		Build()

	rep := runSuite(t, nil, s)
	assert.Equal(t, report.StateSkipped, rep.Outcome("a").State)
	assert.True(t, rep.Outcome("b").Passed)
}

func TestRunner_Bail(t *testing.T) {
	f := newFixture(t)
	s := suite.New("users").BaseURL(f.server.URL).
		Case("fails").GET("/users").Expect("status", "equals", 500).
		Case("after").GET("/users").
		Build()

	rep := runSuite(t, &Config{Bail: true}, s)
	assert.True(t, rep.Outcome("fails").Failed())
	assert.Equal(t, report.ReasonBail, rep.Outcome("after").SkipReason)
	assert.Equal(t, int64(1), f.count("GET /users"))
}

func TestRunner_RateLimit(t *testing.T) {
	f := newFixture(t)
	b := suite.New("users").BaseURL(f.server.URL)
	for _, name := range []string{"a", "b", "c"} {
		b.Case(name).GET("/users")
	}

	start := time.Now()
	rep := runSuite(t, &Config{RateLimit: 10}, b.Build())

	assert.Equal(t, 3, rep.Passed)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestRunner_ConfigVariablesAndHeaders(t *testing.T) {
	f := newFixture(t)
	s := suite.New("users").BaseURL("{{host}}").
		Variable("host", "http://invalid.localhost").
		Case("create-user").POST("/users").Body(map[string]any{"name": "John"}).Capture("id", "body.id").
		Case("get-user").GET("/users/{{create-user.id}}").
		Expect("body.auth", "equals", "Bearer from-config").
		Build()

	rep := runSuite(t, &Config{
		Variables: map[string]any{"host": f.server.URL},
		Headers:   map[string]string{"Authorization": "Bearer {{token}}"},
	}, s)
	assert.True(t, rep.Outcome("get-user").Failed(), "unresolved {{token}} is sent as written")

	rep = runSuite(t, &Config{
		Variables: map[string]any{"host": f.server.URL, "token": "from-config"},
		Headers:   map[string]string{"Authorization": "Bearer {{token}}"},
	}, s)
	assert.True(t, rep.Outcome("get-user").Passed)
}

func TestRunner_RunFileSchemaRelativeToSuite(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "user.schema.json"), []byte(`{
		"type": "array",
		"items": {"type": "object", "required": ["id", "email"]}
	}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.yaml"), []byte(`
name: users
baseUrl: `+f.server.URL+`
cases:
  - name: list-users
    request: {url: /users}
    expect:
      - body: {schema: user.schema.json}
`), 0o644))

	rep, err := NewRunner(nil).RunFile(context.Background(), filepath.Join(dir, "users.yaml"))
	require.NoError(t, err)
	assert.True(t, rep.Outcome("list-users").Passed, "%v", rep.Outcome("list-users").Failures())

	_, err = NewRunner(nil).RunFile(context.Background(), filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		want    bool
	}{
		{"list-users", "", true},
		{"list-users", "list-users", true},
		{"list-users", "list-*", true},
		{"list-users", "*-users", true},
		{"list-users", "*users*", true},
		{"create-user", "list-*", false},
		{"list-users", "list", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchesPattern(tt.name, tt.pattern), "%s ~ %s", tt.name, tt.pattern)
	}
}

func TestHasAnyTag(t *testing.T) {
	assert.True(t, hasAnyTag([]string{"smoke", "users"}, []string{"users"}))
	assert.False(t, hasAnyTag([]string{"smoke"}, []string{"write"}))
	assert.False(t, hasAnyTag(nil, []string{"smoke"}))
}
