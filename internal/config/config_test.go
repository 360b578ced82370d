package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "json",
			file: "config.json",
			content: `{
				"server": {"port": "9090"},
				"chronos": {"url": "http://agent:8081", "cache_ttl": "1m"},
				"console": {"use_local_time": true, "load_timeout": "3s"},
				"tasks": {"max_concurrent": 2, "predefined": [
					{"name": "refresh", "schedule": "*/30 * * * * *", "task": "refresh-jobs", "enabled": true}
				]}
			}`,
		},
		{
			name: "yaml",
			file: "config.yaml",
			content: `
server:
  port: "9090"
chronos:
  url: http://agent:8081
  cache_ttl: 1m
console:
  use_local_time: true
  load_timeout: 3s
tasks:
  max_concurrent: 2
  predefined:
    - name: refresh
      schedule: "*/30 * * * * *"
      task: refresh-jobs
      enabled: true
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)

			assert.Equal(t, "9090", cfg.Server.Port)
			assert.Equal(t, "15s", cfg.Server.ReadTimeout)
			assert.Equal(t, "http://agent:8081", cfg.Chronos.URL)
			assert.Equal(t, "5s", cfg.Chronos.Timeout)
			assert.Equal(t, "1m", cfg.Chronos.CacheTTL)
			assert.True(t, cfg.Console.UseLocalTime)
			assert.Equal(t, "3s", cfg.Console.LoadTimeout)
			assert.Equal(t, 2, cfg.Tasks.MaxConcurrent)
			require.Len(t, cfg.Tasks.Predefined, 1)
			assert.Equal(t, "refresh-jobs", cfg.Tasks.Predefined[0].TaskName)
		})
	}
}

func TestLoadMalformed(t *testing.T) {
	_, err := Load(writeFile(t, "config.json", "{not json"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "config.yml", "server: [unterminated"))
	assert.Error(t, err)
}

func TestLoadFallsBackToEnv(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("PORT", "7070")
	t.Setenv("CHRONOS_URL", "http://chronos.internal")
	t.Setenv("CONSOLE_USE_LOCAL_TIME", "true")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.test/x")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "http://chronos.internal", cfg.Chronos.URL)
	assert.True(t, cfg.Console.UseLocalTime)
	assert.Equal(t, "https://hooks.slack.test/x", cfg.Slack.WebhookURL)
	assert.Equal(t, "10s", cfg.Console.LoadTimeout)
	require.Len(t, cfg.Tasks.Predefined, 1)
	assert.Equal(t, "refresh-jobs", cfg.Tasks.Predefined[0].Name)
}

func TestDuration(t *testing.T) {
	tests := []struct {
		value    string
		expected time.Duration
	}{
		{"", time.Second},
		{"250ms", 250 * time.Millisecond},
		{"2m", 2 * time.Minute},
		{"soon", time.Second},
		{"-5s", time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.expected, Duration(tt.value, time.Second))
		})
	}
}

func TestConsoleLocation(t *testing.T) {
	loc, err := ConsoleConfig{}.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	loc, err = ConsoleConfig{Timezone: "UTC"}.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	_, err = ConsoleConfig{Timezone: "Mars/Olympus"}.Location()
	assert.Error(t, err)
}
