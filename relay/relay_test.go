package relay

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mavrelay/config"
	"github.com/c360/mavrelay/mavlink"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Upstream.Host = "127.0.0.1"
	cfg.Upstream.Port = 0 // OS-assigned
	cfg.Archive.Dir = t.TempDir()
	cfg.Archive.FlushInterval = config.Duration(20 * time.Millisecond)
	cfg.JSONLog.Dir = cfg.Archive.Dir
	cfg.JSONLog.FlushInterval = config.Duration(20 * time.Millisecond)
	cfg.Metrics.Enabled = false
	cfg.Health.Enabled = false
	return cfg
}

func heartbeat(t *testing.T, seq byte) []byte {
	t.Helper()
	data, err := mavlink.Encode(0, 1, 1, seq, []byte{81, 0, 0, 0, 2, 3, 217, 4, 3})
	require.NoError(t, err)
	return data
}

func globOne(t *testing.T, dir, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	return matches[0]
}

func TestPipelineEndToEnd(t *testing.T) {
	cfg := testConfig(t)

	r, err := New(Deps{Config: cfg})
	require.NoError(t, err)
	require.NoError(t, r.Initialize())
	require.NoError(t, r.Start(context.Background()))

	conn, err := net.DialUDP("udp", nil,
		&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: r.Listener().Port()})
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	const n = 10
	for i := 0; i < n; i++ {
		_, err := conn.Write(heartbeat(t, byte(i)))
		require.NoError(t, err)
	}

	// Wait for delivery through both sink queues
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		delivered := int64(0)
		for _, s := range r.Router().Stats() {
			delivered += s.Delivered
		}
		if delivered >= 2*n {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	require.NoError(t, r.Stop(2*time.Second))

	tlogPath := globOne(t, cfg.Archive.Dir, "*.tlog")
	tlogData, err := os.ReadFile(tlogPath)
	require.NoError(t, err)
	frame := heartbeat(t, 0)
	assert.Equal(t, n*(8+len(frame)), len(tlogData))

	jsonlPath := globOne(t, cfg.JSONLog.Dir, "*.jsonl")
	jsonlData, err := os.ReadFile(jsonlPath)
	require.NoError(t, err)
	assert.Contains(t, string(jsonlData), `"msg_name":"HEARTBEAT"`)
}

func TestNewRequiresSinks(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archive.Enabled = false
	cfg.JSONLog.Enabled = false

	_, err := New(Deps{Config: cfg})
	assert.Error(t, err)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Upstream.Port = -1

	_, err := New(Deps{Config: cfg})
	assert.Error(t, err)
}

func TestWaitReturnsOnCancel(t *testing.T) {
	cfg := testConfig(t)

	r, err := New(Deps{Config: cfg})
	require.NoError(t, err)
	require.NoError(t, r.Initialize())
	require.NoError(t, r.Start(context.Background()))
	defer func() { _ = r.Stop(time.Second) }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Wait(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after cancel")
	}
}

func TestStopIdempotent(t *testing.T) {
	cfg := testConfig(t)

	r, err := New(Deps{Config: cfg})
	require.NoError(t, err)
	require.NoError(t, r.Initialize())
	require.NoError(t, r.Start(context.Background()))

	require.NoError(t, r.Stop(time.Second))
	require.NoError(t, r.Stop(time.Second))
}

func TestOptionalLiveSinkDoesNotBlockStartup(t *testing.T) {
	cfg := testConfig(t)
	cfg.Live.Enabled = true
	cfg.Live.URL = fmt.Sprintf("nats://127.0.0.1:%d", 1) // unreachable
	cfg.Live.Subject = "mavlink.live"

	r, err := New(Deps{Config: cfg})
	require.NoError(t, err)
	require.NoError(t, r.Initialize())
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Stop(2*time.Second))
}
