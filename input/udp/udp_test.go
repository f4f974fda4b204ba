package udp

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mavrelay/mavlink"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	frames []mavlink.RawFrame
}

func (d *recordingDispatcher) Dispatch(frame mavlink.RawFrame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = append(d.frames, frame)
}

func (d *recordingDispatcher) received() []mavlink.RawFrame {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]mavlink.RawFrame, len(d.frames))
	copy(out, d.frames)
	return out
}

func heartbeatFrame(t *testing.T, seq uint8) []byte {
	t.Helper()
	payload := make([]byte, 9)
	binary.LittleEndian.PutUint32(payload, 81)
	payload[4] = 2
	payload[8] = 3
	frame, err := mavlink.Encode(0, 1, 1, seq, payload)
	require.NoError(t, err)
	return frame
}

func startListener(t *testing.T, d Dispatcher) (*Listener, *net.UDPConn) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Port = 0 // let the OS pick

	l := NewListener(ListenerDeps{Config: cfg, Dispatcher: d})
	require.NoError(t, l.Initialize())
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() { _ = l.Stop(time.Second) })

	addr := fmt.Sprintf("127.0.0.1:%d", l.Port())
	raddr, err := net.ResolveUDPAddr("udp", addr)
	require.NoError(t, err)
	conn, err := net.DialUDP("udp", nil, raddr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return l, conn
}

func waitForFrames(t *testing.T, d *recordingDispatcher, n int) []mavlink.RawFrame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if frames := d.received(); len(frames) >= n {
			return frames
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d frames, got %d", n, len(d.received()))
	return nil
}

func TestListenerDispatchesFrames(t *testing.T) {
	d := &recordingDispatcher{}
	_, conn := startListener(t, d)

	frame := heartbeatFrame(t, 7)
	_, err := conn.Write(frame)
	require.NoError(t, err)

	frames := waitForFrames(t, d, 1)
	assert.Equal(t, frame, frames[0].Data)
	assert.Equal(t, mavlink.DirectionRX, frames[0].Direction)
	assert.NotZero(t, frames[0].Timestamp)
}

func TestListenerSplitsBackToBackFrames(t *testing.T) {
	d := &recordingDispatcher{}
	_, conn := startListener(t, d)

	first := heartbeatFrame(t, 1)
	second := heartbeatFrame(t, 2)
	_, err := conn.Write(append(append([]byte{}, first...), second...))
	require.NoError(t, err)

	frames := waitForFrames(t, d, 2)
	assert.Equal(t, first, frames[0].Data)
	assert.Equal(t, second, frames[1].Data)
}

func TestListenerSkipsGarbagePrefix(t *testing.T) {
	d := &recordingDispatcher{}
	_, conn := startListener(t, d)

	frame := heartbeatFrame(t, 3)
	datagram := append([]byte{0x00, 0x11, 0x22}, frame...)
	_, err := conn.Write(datagram)
	require.NoError(t, err)

	frames := waitForFrames(t, d, 1)
	assert.Equal(t, frame, frames[0].Data)
}

func TestListenerDropsTruncatedTail(t *testing.T) {
	d := &recordingDispatcher{}
	_, conn := startListener(t, d)

	whole := heartbeatFrame(t, 4)
	partial := heartbeatFrame(t, 5)[:8]
	_, err := conn.Write(append(append([]byte{}, whole...), partial...))
	require.NoError(t, err)

	// Another full frame in a later datagram still comes through
	next := heartbeatFrame(t, 6)
	_, err = conn.Write(next)
	require.NoError(t, err)

	frames := waitForFrames(t, d, 2)
	assert.Equal(t, whole, frames[0].Data)
	assert.Equal(t, next, frames[1].Data)
}

func TestListenerLifecycle(t *testing.T) {
	d := &recordingDispatcher{}
	cfg := DefaultConfig()
	cfg.Port = 0

	l := NewListener(ListenerDeps{Config: cfg, Dispatcher: d})
	require.NoError(t, l.Initialize())

	ctx := context.Background()
	require.NoError(t, l.Start(ctx))
	require.NoError(t, l.Start(ctx)) // idempotent

	assert.True(t, l.Health().Healthy)
	assert.Equal(t, "input", l.Meta().Type)
	assert.Len(t, l.InputPorts(), 1)

	require.NoError(t, l.Stop(time.Second))
	require.NoError(t, l.Stop(time.Second)) // idempotent
	assert.False(t, l.Health().Healthy)
}

func TestInitializeValidation(t *testing.T) {
	cfg := DefaultConfig()
	l := NewListener(ListenerDeps{Config: cfg}) // no dispatcher
	assert.Error(t, l.Initialize())

	cfg.Port = 99999
	l = NewListener(ListenerDeps{Config: cfg, Dispatcher: &recordingDispatcher{}})
	assert.Error(t, l.Initialize())
}
