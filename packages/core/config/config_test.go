package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.IsDefault())
	assert.Equal(t, 30*time.Second, cfg.TimeoutDuration())
	assert.True(t, cfg.GetFollowRedirects())
	assert.True(t, cfg.GetValidateSSL())
	assert.False(t, cfg.GetParallel())
	assert.Equal(t, "console", cfg.Output)
	assert.Empty(t, cfg.Path())
}

func TestFindAndLoadConfig_NoFile(t *testing.T) {
	cfg, err := FindAndLoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.True(t, cfg.IsDefault())
}

func TestLoadConfig_YAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "apicontract.yaml", `
defaultEnvironment: local
environments:
  local:
    baseUrl: http://localhost:3000
  prod:
    baseUrl: https://jsonplaceholder.typicode.com
timeout: 5000
parallel: true
concurrency: 3
rateLimit: 2.5
headers:
  Accept: application/json
notify:
  on: recovery
  slackWebhook: https://hooks.slack.test/abc
waitFor:
  url: http://localhost:3000/users
`)

	cfg, err := FindAndLoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path())
	assert.Equal(t, "local", cfg.DefaultEnvironment)
	assert.Equal(t, "http://localhost:3000", cfg.Environments["local"]["baseUrl"])
	assert.Equal(t, 5*time.Second, cfg.TimeoutDuration())
	assert.True(t, cfg.GetParallel())
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 2.5, cfg.RateLimit)
	assert.Equal(t, "application/json", cfg.Headers["Accept"])
	assert.Equal(t, "recovery", cfg.Notify.On)
	assert.Equal(t, "http://localhost:3000/users", cfg.WaitFor.URL)
	assert.True(t, cfg.GetFollowRedirects(), "unset values keep their defaults")
	assert.False(t, cfg.IsDefault())
}

func TestLoadConfig_JSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".apicontract.json", `{"timeout": 1000, "bail": true, "validateSSL": false}`)

	cfg, err := LoadConfig(filepath.Join(dir, ".apicontract.json"))
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Timeout)
	assert.True(t, cfg.GetBail())
	assert.False(t, cfg.GetValidateSSL())
}

func TestLoadConfig_SearchOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "apicontract.yaml", "timeout: 2000\n")
	writeFile(t, dir, ".apicontract.json", `{"timeout": 1000}`)

	cfg, err := FindAndLoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Timeout)
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"unknown json field", "a.json", `{"retries": 3}`, "unknown field"},
		{"unknown yaml field", "b.yaml", "retries: 3\n", "field retries not found"},
		{"bad yaml", "c.yaml", "timeout: [\n", "config"},
		{"negative timeout", "d.yaml", "timeout: -1\n", "timeout must not be negative"},
		{"unknown default env", "e.yaml", "defaultEnvironment: qa\nenvironments:\n  dev: {}\n", `defaultEnvironment "qa"`},
		{"waitFor without url", "f.yaml", "waitFor:\n  status: 200\n", "waitFor.url is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.file, tt.content)
			_, err := LoadConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			var cfgErr *Error
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, path, cfgErr.Path)
		})
	}

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	base.Headers = map[string]string{"Accept": "application/json", "X-Team": "qa"}
	base.Environments = map[string]map[string]any{"dev": {"baseUrl": "http://dev"}}
	base.Notify = &NotifyConfig{On: "failure", SlackWebhook: "https://slack"}

	merged := base.Merge(&Config{
		Timeout:      2000,
		Parallel:     BoolPtr(true),
		Headers:      map[string]string{"X-Team": "api"},
		Environments: map[string]map[string]any{"prod": {"baseUrl": "https://prod"}},
		Notify:       &NotifyConfig{On: "always"},
	})

	assert.Equal(t, 2000, merged.Timeout)
	assert.True(t, merged.GetParallel())
	assert.True(t, merged.GetFollowRedirects())
	assert.Equal(t, map[string]string{"Accept": "application/json", "X-Team": "api"}, merged.Headers)
	assert.Len(t, merged.Environments, 2)
	assert.Equal(t, "always", merged.Notify.On)
	assert.Equal(t, "https://slack", merged.Notify.SlackWebhook)

	assert.Equal(t, "qa", base.Headers["X-Team"], "merge does not modify the receiver")
	assert.Equal(t, "failure", base.Notify.On)
	assert.Same(t, base, base.Merge(nil))
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"apicontract.yaml", "apicontract.json"} {
		cfg := DefaultConfig()
		cfg.DefaultEnvironment = "dev"
		cfg.Environments = map[string]map[string]any{"dev": {"baseUrl": "http://localhost:3000"}}

		path := filepath.Join(dir, name)
		require.NoError(t, cfg.SaveConfig(path))

		loaded, err := LoadConfig(path)
		require.NoError(t, err, name)
		assert.Equal(t, "dev", loaded.DefaultEnvironment)
		assert.Equal(t, "http://localhost:3000", loaded.Environments["dev"]["baseUrl"])
	}
}
