package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "cloudmon", cfg.App.Name)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, []string{"nats://127.0.0.1:4222"}, cfg.NATS.URLs)
	assert.Equal(t, time.Minute, cfg.Monitoring.CollectionInterval)
	assert.Equal(t, 30, cfg.Monitoring.RetentionDays)
	assert.Equal(t, 30*24*time.Hour, cfg.Monitoring.Retention())
	assert.Equal(t, []string{"aws", "azure", "gcp"}, cfg.Monitoring.Providers)
	assert.True(t, cfg.Monitoring.SystemSource)
	assert.False(t, cfg.Monitoring.DockerSource)
	assert.False(t, cfg.Channels.Email.Enabled)
}

func TestLoad_FromFile(t *testing.T) {
	dir := writeConfig(t, `
app:
  name: cloudmon-test
  log_level: debug
monitoring:
  collection_interval: 30s
  retention_days: 7
  providers: ["aws"]
channels:
  slack:
    enabled: true
    webhook_url: https://hooks.slack.com/services/T0/B0/XX
    channel: "#alerts"
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "cloudmon-test", cfg.App.Name)
	assert.Equal(t, 30*time.Second, cfg.Monitoring.CollectionInterval)
	assert.Equal(t, 7, cfg.Monitoring.RetentionDays)
	assert.Equal(t, []string{"aws"}, cfg.Monitoring.Providers)
	assert.True(t, cfg.Channels.Slack.Enabled)
	assert.Equal(t, "#alerts", cfg.Channels.Slack.Channel)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"IntervalTooShort", "monitoring:\n  collection_interval: 500ms\n"},
		{"RetentionTooShort", "monitoring:\n  retention_days: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}
