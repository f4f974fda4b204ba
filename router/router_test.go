package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mavrelay/mavlink"
)

// recordingSink collects every frame it handles.
type recordingSink struct {
	name string

	mu     sync.Mutex
	frames []mavlink.RawFrame
	fail   bool
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Handle(_ context.Context, frame mavlink.RawFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	if s.fail {
		return errors.New("sink failed")
	}
	return nil
}

func (s *recordingSink) received() []mavlink.RawFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mavlink.RawFrame, len(s.frames))
	copy(out, s.frames)
	return out
}

// blockingSink stalls in Handle until released, to back up its queue.
type blockingSink struct {
	name    string
	started chan struct{} // closed when the first Handle call begins
	release chan struct{}

	mu     sync.Mutex
	frames []mavlink.RawFrame
	once   sync.Once
}

func (s *blockingSink) Name() string { return s.name }

func (s *blockingSink) Handle(_ context.Context, frame mavlink.RawFrame) error {
	s.once.Do(func() { close(s.started) })
	<-s.release

	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return nil
}

func (s *blockingSink) received() []mavlink.RawFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mavlink.RawFrame, len(s.frames))
	copy(out, s.frames)
	return out
}

func frameWithSeq(seq byte) mavlink.RawFrame {
	return mavlink.RawFrame{
		Data:      []byte{0xFD, 0x00, 0x00, 0x00, seq},
		Timestamp: int64(seq),
		Direction: mavlink.DirectionRX,
	}
}

func newTestRouter(t *testing.T, cfg Config, sinks ...Sink) *Router {
	t.Helper()
	r, err := New(Deps{Config: cfg}, sinks...)
	require.NoError(t, err)
	require.NoError(t, r.Initialize())
	require.NoError(t, r.Start(context.Background()))
	return r
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestFanOutDeliversToAllSinks(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	r := newTestRouter(t, DefaultConfig(), a, b)

	const n = 50
	for i := 0; i < n; i++ {
		r.Dispatch(frameWithSeq(byte(i)))
	}

	waitFor(t, func() bool { return len(a.received()) == n && len(b.received()) == n })
	require.NoError(t, r.Stop(time.Second))

	// FIFO order per sink
	for i, f := range a.received() {
		assert.Equal(t, int64(i), f.Timestamp)
	}
	for i, f := range b.received() {
		assert.Equal(t, int64(i), f.Timestamp)
	}
}

func TestDispatchCopiesPerSink(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	r := newTestRouter(t, DefaultConfig(), a, b)

	src := frameWithSeq(1)
	r.Dispatch(src)
	src.Data[0] = 0xFF // mutate the caller's buffer after dispatch

	waitFor(t, func() bool { return len(a.received()) == 1 && len(b.received()) == 1 })
	require.NoError(t, r.Stop(time.Second))

	assert.Equal(t, byte(0xFD), a.received()[0].Data[0])
	assert.Equal(t, byte(0xFD), b.received()[0].Data[0])

	// And the two sinks hold distinct backing arrays
	a.received()[0].Data[1] = 0x42
	assert.Equal(t, byte(0x00), b.received()[0].Data[1])
}

func TestOverflowDropsOldestForSlowSinkOnly(t *testing.T) {
	const capacity = 8
	const extra = 4

	slow := &blockingSink{name: "slow", started: make(chan struct{}), release: make(chan struct{})}
	fast := &recordingSink{name: "fast"}

	cfg := Config{QueueCapacity: capacity, Grace: 2 * time.Second}
	r := newTestRouter(t, cfg, slow, fast)

	// First frame occupies the slow worker
	r.Dispatch(frameWithSeq(0))
	<-slow.started

	// Queue capacity + extra more: the slow path must drop exactly extra,
	// evicting its oldest queued frames
	total := capacity + extra
	for i := 1; i <= total; i++ {
		r.Dispatch(frameWithSeq(byte(i)))
	}

	waitFor(t, func() bool { return len(fast.received()) == total+1 })

	close(slow.release)
	require.NoError(t, r.Stop(3*time.Second))

	// Fast sink saw everything, in order
	for i, f := range fast.received() {
		assert.Equal(t, int64(i), f.Timestamp)
	}

	// Slow sink: frame 0 plus the newest capacity frames, still in order
	got := slow.received()
	require.Len(t, got, 1+capacity)
	assert.Equal(t, int64(0), got[0].Timestamp)
	for i := 0; i < capacity; i++ {
		assert.Equal(t, int64(extra+1+i), got[1+i].Timestamp)
	}

	var slowStats, fastStats SinkStats
	for _, s := range r.Stats() {
		switch s.Name {
		case "slow":
			slowStats = s
		case "fast":
			fastStats = s
		}
	}
	assert.Equal(t, int64(extra), slowStats.Dropped)
	assert.Equal(t, int64(0), fastStats.Dropped)
}

func TestFailingSinkDoesNotAffectOthers(t *testing.T) {
	bad := &recordingSink{name: "bad", fail: true}
	good := &recordingSink{name: "good"}
	r := newTestRouter(t, DefaultConfig(), bad, good)

	const n = 20
	for i := 0; i < n; i++ {
		r.Dispatch(frameWithSeq(byte(i)))
	}

	waitFor(t, func() bool { return len(bad.received()) == n && len(good.received()) == n })
	require.NoError(t, r.Stop(time.Second))

	for _, s := range r.Stats() {
		switch s.Name {
		case "bad":
			assert.Equal(t, int64(n), s.Errors)
			assert.Equal(t, int64(0), s.Delivered)
		case "good":
			assert.Equal(t, int64(0), s.Errors)
			assert.Equal(t, int64(n), s.Delivered)
		}
	}
}

func TestStopDrainsQueuedFrames(t *testing.T) {
	sink := &recordingSink{name: "archive"}
	r := newTestRouter(t, Config{QueueCapacity: 256, Grace: 2 * time.Second}, sink)

	const n = 100
	for i := 0; i < n; i++ {
		r.Dispatch(frameWithSeq(byte(i)))
	}

	require.NoError(t, r.Stop(3*time.Second))
	assert.Len(t, sink.received(), n)
}

func TestInitializeRequiresSinks(t *testing.T) {
	r, err := New(Deps{})
	require.NoError(t, err)
	assert.Error(t, r.Initialize())
}

func TestDispatchAfterStopIsNoop(t *testing.T) {
	sink := &recordingSink{name: "a"}
	r := newTestRouter(t, DefaultConfig(), sink)
	require.NoError(t, r.Stop(time.Second))

	r.Dispatch(frameWithSeq(1))
	assert.Empty(t, sink.received())
}

func TestStartIdempotent(t *testing.T) {
	sink := &recordingSink{name: "a"}
	r := newTestRouter(t, DefaultConfig(), sink)
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Stop(time.Second))
	require.NoError(t, r.Stop(time.Second))
}
