package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionStatusString(t *testing.T) {
	cases := []struct {
		status ConnectionStatus
		want   string
	}{
		{StatusDisconnected, "disconnected"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusReconnecting, "reconnecting"},
		{StatusCircuitOpen, "circuit_open"},
		{ConnectionStatus(42), "unknown"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.status.String())
	}
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", c.URL())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsHealthy())
	assert.Equal(t, int32(0), c.Failures())
	assert.Equal(t, time.Second, c.Backoff())
}

func TestNewClientOptions(t *testing.T) {
	c, err := NewClient("nats://localhost:4222",
		WithMaxReconnects(5),
		WithReconnectWait(500*time.Millisecond),
		WithName("mavrelay-live"),
		WithCircuitBreakerThreshold(2),
		WithMaxBackoff(5*time.Second),
		WithTimeout(time.Second),
	)
	require.NoError(t, err)

	assert.Equal(t, 5, c.maxReconnects)
	assert.Equal(t, 500*time.Millisecond, c.reconnectWait)
	assert.Equal(t, "mavrelay-live", c.clientName)
	assert.Equal(t, int32(2), c.circuitThreshold)
	assert.Equal(t, 5*time.Second, c.maxBackoff)

	// Options feed through to the NATS connection options
	assert.NotEmpty(t, c.ConnectionOptions())
}

func TestPublishNotConnected(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	err = c.Publish(context.Background(), "mavlink.live", []byte("x"))
	assert.ErrorIs(t, err, ErrNotConnected)

	assert.ErrorIs(t, c.Flush(), ErrNotConnected)

	_, err = c.RTT()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	c, err := NewClient("nats://localhost:4222",
		WithCircuitBreakerThreshold(3),
		WithMaxBackoff(time.Second),
	)
	require.NoError(t, err)

	c.recordFailure()
	c.recordFailure()
	assert.NotEqual(t, StatusCircuitOpen, c.Status())

	c.recordFailure()
	assert.Equal(t, StatusCircuitOpen, c.Status())
	assert.Equal(t, int32(3), c.Failures())

	// Connect refuses while the circuit is open
	err = c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)

	c.resetCircuit()
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.Equal(t, int32(0), c.Failures())
	assert.Equal(t, time.Second, c.Backoff())
}

func TestCloseIdempotent(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NoError(t, c.Close(ctx))
	assert.NoError(t, c.Close(ctx))
}

func TestWaitForConnectionTimeout(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = c.WaitForConnection(ctx)
	assert.Error(t, err)
}
