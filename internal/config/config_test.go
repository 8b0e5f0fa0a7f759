package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("BOARD_UPSTREAM_URL", "http://192.168.1.99:8000")

	c, err := fromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.1.99:8000", c.UpstreamURL)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, 5*time.Second, c.RetryDelay)
	assert.Equal(t, 6*time.Second, c.HTTPTimeout)
	assert.Equal(t, zapcore.InfoLevel, c.LogLevel)
	assert.False(t, c.DevLogging)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("BOARD_UPSTREAM_URL", "https://courts.example.org")
	t.Setenv("BOARD_RETRY_DELAY", "250ms")
	t.Setenv("BOARD_LOG_LEVEL", "debug")
	t.Setenv("BOARD_DEV_LOGGING", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")

	c, err := fromEnv()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, c.RetryDelay)
	assert.Equal(t, zapcore.DebugLevel, c.LogLevel)
	assert.True(t, c.DevLogging)
	assert.Equal(t, "collector:4317", c.OTLPEndpoint)
	assert.Len(t, c.Fields(), 6)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing upstream", map[string]string{"BOARD_UPSTREAM_URL": ""}},
		{"relative upstream", map[string]string{"BOARD_UPSTREAM_URL": "courts.local"}},
		{"ftp upstream", map[string]string{"BOARD_UPSTREAM_URL": "ftp://courts.local"}},
		{"zero retry", map[string]string{"BOARD_UPSTREAM_URL": "http://x", "BOARD_RETRY_DELAY": "0s"}},
		{"bad duration", map[string]string{"BOARD_UPSTREAM_URL": "http://x", "BOARD_HTTP_TIMEOUT": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := fromEnv()
			assert.Error(t, err)
		})
	}
}

func TestLoad_DotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("BOARD_UPSTREAM_URL=http://from-file:8000\nBOARD_HTTP_ADDR=:9090\n"), 0o600))
	t.Chdir(dir)
	t.Setenv("BOARD_UPSTREAM_URL", "http://from-env:8000")
	t.Setenv("BOARD_HTTP_ADDR", "")
	os.Unsetenv("BOARD_HTTP_ADDR")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:8000", c.UpstreamURL)
	assert.Equal(t, ":9090", c.HTTPAddr)
}
