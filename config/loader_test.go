package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFileJSON(t *testing.T) {
	path := writeTemp(t, "relay.json", `{
		"upstream": {"host": "127.0.0.1", "port": 14551},
		"forward": {"enabled": true, "endpoints": ["10.0.0.5:14550", "10.0.0.6:14550"]},
		"archive": {"enabled": true, "dir": "/tmp/tlogs", "file_prefix": "flight", "flush_interval": "500ms"},
		"queue": {"capacity": 256}
	}`)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Upstream.Host)
	assert.Equal(t, 14551, cfg.Upstream.Port)
	assert.Equal(t, []string{"10.0.0.5:14550", "10.0.0.6:14550"}, cfg.Forward.Endpoints)
	assert.Equal(t, "/tmp/tlogs", cfg.Archive.Dir)
	assert.Equal(t, "flight", cfg.Archive.FilePrefix)
	assert.Equal(t, 500*time.Millisecond, cfg.Archive.FlushInterval.Std())
	assert.Equal(t, 256, cfg.Queue.Capacity)

	// Defaults survive for sections the file omits
	assert.True(t, cfg.JSONLog.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Shutdown.Grace.Std())
}

func TestLoadFileYAML(t *testing.T) {
	path := writeTemp(t, "relay.yaml", `
upstream:
  host: 192.168.1.10
  port: 14560
jsonlog:
  enabled: true
  dir: /var/log/mavrelay
  file_prefix: bench
  flush_interval: 2s
decode:
  strict: true
`)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.10", cfg.Upstream.Host)
	assert.Equal(t, 14560, cfg.Upstream.Port)
	assert.Equal(t, "/var/log/mavrelay", cfg.JSONLog.Dir)
	assert.Equal(t, 2*time.Second, cfg.JSONLog.FlushInterval.Std())
	assert.True(t, cfg.Decode.Strict)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := NewLoader().LoadFile("/does/not/exist.json")
	assert.Error(t, err)
}

func TestLoadFileInvalidConfig(t *testing.T) {
	path := writeTemp(t, "bad.json", `{"upstream": {"host": "0.0.0.0", "port": 0}}`)

	_, err := NewLoader().LoadFile(path)
	assert.Error(t, err)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, 14550, cfg.Upstream.Port)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MAVRELAY_UPSTREAM_PORT", "15000")
	t.Setenv("MAVRELAY_FORWARD_ENDPOINTS", "10.1.1.1:14550, 10.1.1.2:14550")
	t.Setenv("MAVRELAY_LOG_DIR", "/data/logs")
	t.Setenv("MAVRELAY_STRICT_DECODE", "true")
	t.Setenv("MAVRELAY_QUEUE_CAPACITY", "4096")
	t.Setenv("MAVRELAY_SHUTDOWN_GRACE", "10s")

	cfg, err := NewLoader().LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, 15000, cfg.Upstream.Port)
	assert.True(t, cfg.Forward.Enabled)
	assert.Equal(t, []string{"10.1.1.1:14550", "10.1.1.2:14550"}, cfg.Forward.Endpoints)
	assert.Equal(t, "/data/logs", cfg.Archive.Dir)
	assert.Equal(t, "/data/logs", cfg.JSONLog.Dir)
	assert.True(t, cfg.Decode.Strict)
	assert.Equal(t, 4096, cfg.Queue.Capacity)
	assert.Equal(t, 10*time.Second, cfg.Shutdown.Grace.Std())
}

func TestEnvOverridesIgnoreGarbageInt(t *testing.T) {
	t.Setenv("MAVRELAY_UPSTREAM_PORT", "not-a-number")

	cfg, err := NewLoader().LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, 14550, cfg.Upstream.Port)
}
