package cmd

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/abdul-hamid-achik/apicontract/packages/mock"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag to its default between runs, since the
// commands keep their state in package variables.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func executeCLI(t *testing.T, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	code = execute()
	return out.String(), errOut.String(), code
}

// pkgDir is captured before any test changes the working directory, so
// example paths resolve the same regardless of t.Chdir.
var pkgDir, _ = os.Getwd()

func examplePath(t *testing.T, name string) string {
	t.Helper()
	p, err := filepath.Abs(filepath.Join(pkgDir, "..", "..", "..", "examples", name))
	require.NoError(t, err)
	return p
}

func newMock(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(mock.NewServer().Handler())
	t.Cleanup(server.Close)
	return server.URL
}

func writeSuite(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestRun_TrainingSuitePassesAgainstMock(t *testing.T) {
	suitePath := examplePath(t, "users-training.yaml")
	baseURL := newMock(t)
	t.Chdir(t.TempDir())

	stdout, _, code := executeCLI(t, "run", suitePath, "--no-color", "--var", "baseUrl="+baseURL)

	assert.Equal(t, ExitSuccess, code, stdout)
	assert.Contains(t, stdout, "users-training")
	assert.Contains(t, stdout, "5 passed, 5 total")
}

func TestRun_ExampleDirectoryWithConfig(t *testing.T) {
	dir := examplePath(t, "")
	baseURL := newMock(t)
	t.Chdir(t.TempDir())

	outFile := filepath.Join(t.TempDir(), "report.json")
	_, stderr, code := executeCLI(t, "run", dir,
		"--config", filepath.Join(dir, "apicontract.yaml"),
		"--var", "baseUrl="+baseURL,
		"-o", "json", "--output-file", outFile)
	require.Equal(t, ExitSuccess, code, stderr)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)

	var result struct {
		Summary struct {
			Total  int `json:"total"`
			Passed int `json:"passed"`
			Failed int `json:"failed"`
		} `json:"summary"`
		Suites []struct {
			Name string `json:"name"`
		} `json:"suites"`
	}
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Len(t, result.Suites, 2)
	assert.Equal(t, 0, result.Summary.Failed)
	assert.Equal(t, result.Summary.Total, result.Summary.Passed)
}

func TestRun_FailingCaseExitsWithOne(t *testing.T) {
	baseURL := newMock(t)
	dir := t.TempDir()
	t.Chdir(dir)
	writeSuite(t, dir, "teapot.yaml", `
name: teapot
baseUrl: "{{baseUrl}}"
cases:
  - name: list-users
    request:
      url: /users
    expect:
      - status: 418
`)

	stdout, _, code := executeCLI(t, "run", "teapot.yaml", "--no-color", "--var", "baseUrl="+baseURL)
	assert.Equal(t, ExitTestFailure, code)
	assert.Contains(t, stdout, "1 failed")
}

func TestRun_MalformedCaseExitsWithTwo(t *testing.T) {
	baseURL := newMock(t)
	dir := t.TempDir()
	t.Chdir(dir)
	writeSuite(t, dir, "broken.yaml", `
name: broken
baseUrl: "{{baseUrl}}"
cases:
  - name: list-users
    request:
      url: /users
    expect:
      - status: 200
  - name: bad-method
    request:
      method: FETCH
      url: /users
`)

	_, _, code := executeCLI(t, "run", "broken.yaml", "--no-color", "--var", "baseUrl="+baseURL)
	assert.Equal(t, ExitMalformed, code)
}

func TestRun_UsageErrors(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeSuite(t, dir, "s.yaml", "name: s\ncases: []\n")

	tests := []struct {
		name string
		args []string
	}{
		{"binary format without file", []string{"run", "s.yaml", "-o", "xlsx"}},
		{"unknown format", []string{"run", "s.yaml", "-o", "yaml"}},
		{"bad variable", []string{"run", "s.yaml", "--var", "novalue"}},
		{"bad header", []string{"run", "s.yaml", "-H", "no-colon"}},
		{"bad timeout", []string{"run", "s.yaml", "--timeout", "soon"}},
		{"no suites", []string{"run", t.TempDir()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, code := executeCLI(t, tt.args...)
			assert.Equal(t, ExitUsageError, code)
			assert.Contains(t, stderr, "error:")
		})
	}
}

func TestRun_ConfigError(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeSuite(t, dir, "s.yaml", "name: s\ncases: []\n")
	writeSuite(t, dir, "apicontract.yaml", "timeout: -1\n")

	_, stderr, code := executeCLI(t, "run", "s.yaml")
	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr, "timeout")
}

func TestRun_UnknownEnvironmentIsConfigError(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeSuite(t, dir, "s.yaml", "name: s\ncases: []\n")

	_, stderr, code := executeCLI(t, "run", "s.yaml", "--env", "staging")
	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr, "staging")
}

func TestRun_RecordsHistory(t *testing.T) {
	suitePath := examplePath(t, "users-training.yaml")
	baseURL := newMock(t)
	dir := t.TempDir()
	t.Chdir(dir)
	db := filepath.Join(dir, "runs.db")

	_, _, code := executeCLI(t, "run", suitePath, "--var", "baseUrl="+baseURL, "--history", db, "-o", "tap")
	require.Equal(t, ExitSuccess, code)

	stdout, _, code := executeCLI(t, "history", "list", "--db", db)
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "users-training")

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	runID := strings.Fields(lines[1])[0]

	stdout, _, code = executeCLI(t, "history", "show", runID, "--db", db)
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "get-user-by-id")
	assert.Contains(t, stdout, "5 passed")

	stdout, _, code = executeCLI(t, "history", "prune", "--db", db, "--keep", "0")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Deleted 1 runs")
}

func TestRun_QuietOverridesVerbose(t *testing.T) {
	suitePath := examplePath(t, "users-training.yaml")
	baseURL := newMock(t)
	t.Chdir(t.TempDir())

	_, stderr, code := executeCLI(t, "run", suitePath, "--no-color", "-v", "--var", "baseUrl="+baseURL)
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stderr, "list-users GET "+baseURL+"/users")

	_, stderr, code = executeCLI(t, "run", suitePath, "--no-color", "-v", "-q", "--var", "baseUrl="+baseURL)
	require.Equal(t, ExitSuccess, code)
	assert.NotContains(t, stderr, "list-users GET")
}

func TestRun_ExportsMetrics(t *testing.T) {
	suitePath := examplePath(t, "users-training.yaml")
	baseURL := newMock(t)
	dir := t.TempDir()
	t.Chdir(dir)
	promFile := filepath.Join(dir, "apicontract.prom")
	jsonFile := filepath.Join(dir, "metrics.json")

	_, stderr, code := executeCLI(t, "run", suitePath, "--var", "baseUrl="+baseURL,
		"-o", "tap", "--metrics-prometheus", promFile, "--metrics-json", jsonFile)
	require.Equal(t, ExitSuccess, code, stderr)

	prom, err := os.ReadFile(promFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `apicontract_cases{suite="users-training",outcome="passed"} 5`)

	data, err := os.ReadFile(jsonFile)
	require.NoError(t, err)
	var snapshot struct {
		Suites []struct {
			Suite  string `json:"suite"`
			Passed int    `json:"passed"`
		} `json:"suites"`
	}
	require.NoError(t, json.Unmarshal(data, &snapshot))
	require.Len(t, snapshot.Suites, 1)
	assert.Equal(t, 5, snapshot.Suites[0].Passed)
}

func TestHistory_NoDatabase(t *testing.T) {
	t.Chdir(t.TempDir())
	_, stderr, code := executeCLI(t, "history", "list")
	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, stderr, "no history database")
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeSuite(t, dir, "broken.yaml", `
name: broken
cases:
  - name: relative
    request:
      url: /users
`)

	stdout, _, code := executeCLI(t, "validate", examplePath(t, "users-sequence.yaml"))
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Valid:")

	_, stderr, code := executeCLI(t, "validate", "broken.yaml")
	assert.Equal(t, ExitMalformed, code)
	assert.Contains(t, stderr, "baseUrl")
}

func TestList(t *testing.T) {
	t.Chdir(t.TempDir())
	stdout, _, code := executeCLI(t, "list", examplePath(t, "users-sequence.yaml"))
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "1. create-user  POST /users")
	assert.Contains(t, stdout, "needs: create-user.userId")
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	stdout, _, code := executeCLI(t, "init")
	require.Equal(t, ExitSuccess, code)
	assert.FileExists(t, filepath.Join(dir, "apicontract.yaml"))
	assert.FileExists(t, filepath.Join(dir, "users.yaml"))
	assert.Contains(t, stdout, "initialized")

	_, _, code = executeCLI(t, "init")
	assert.Equal(t, ExitUsageError, code)

	// The generated config and suite load and run against the mock.
	baseURL := newMock(t)
	_, stderr, code := executeCLI(t, "run", "users.yaml", "--var", "baseUrl="+baseURL)
	assert.Equal(t, ExitSuccess, code, stderr)
}

func TestDryRun(t *testing.T) {
	t.Chdir(t.TempDir())
	stdout, _, code := executeCLI(t, "run", examplePath(t, "users-training.yaml"), "--dry-run")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Would run:")
	assert.Contains(t, stdout, "5 cases")
}

func TestVersion(t *testing.T) {
	stdout, _, code := executeCLI(t, "version")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "apicontract version dev")
}
