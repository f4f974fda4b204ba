package health

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mavrelay/component"
)

// fakeComponent reports a fixed health status.
type fakeComponent struct {
	name    string
	healthy bool
	lastErr string
}

func (f *fakeComponent) Meta() component.Metadata {
	return component.Metadata{Name: f.name, Type: "test"}
}
func (f *fakeComponent) InputPorts() []component.Port  { return nil }
func (f *fakeComponent) OutputPorts() []component.Port { return nil }
func (f *fakeComponent) Health() component.HealthStatus {
	return component.HealthStatus{
		Healthy:   f.healthy,
		LastCheck: time.Now(),
		LastError: f.lastErr,
	}
}
func (f *fakeComponent) DataFlow() component.FlowMetrics { return component.FlowMetrics{} }

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		subs []Status
		want string
	}{
		{
			name: "all healthy",
			subs: []Status{NewHealthy("a", ""), NewHealthy("b", "")},
			want: "healthy",
		},
		{
			name: "one unhealthy",
			subs: []Status{NewHealthy("a", ""), NewUnhealthy("b", "dead")},
			want: "unhealthy",
		},
		{
			name: "degraded beats healthy",
			subs: []Status{NewHealthy("a", ""), NewDegraded("b", "limping")},
			want: "degraded",
		},
		{
			name: "unhealthy beats degraded",
			subs: []Status{NewDegraded("a", ""), NewUnhealthy("b", "")},
			want: "unhealthy",
		},
		{
			name: "empty",
			subs: nil,
			want: "healthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("relay", tt.subs)
			assert.Equal(t, tt.want, got.Status)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"dial nats://10.0.0.5:4222 refused", "dial [URL] refused"},
		{"write /var/log/mav/run.tlog failed", "write [PATH] failed"},
		{"connect 192.168.1.100 timed out", "connect [IP] timed out"},
		{"password=hunter2 rejected", "[REDACTED] rejected"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeErrorMessage(tt.in))
	}
}

func TestFromComponentHealth(t *testing.T) {
	status := FromComponentHealth("ingress", component.HealthStatus{
		Healthy:    false,
		ErrorCount: 3,
		LastError:  "socket read on 127.0.0.1:14550 failed",
		Uptime:     time.Minute,
	})

	assert.Equal(t, "ingress", status.Component)
	assert.True(t, status.IsUnhealthy())
	assert.NotContains(t, status.Message, "127.0.0.1")
	require.NotNil(t, status.Metrics)
	assert.Equal(t, 3, status.Metrics.ErrorCount)
	assert.Equal(t, time.Minute, status.Metrics.Uptime)
}

func TestMonitor(t *testing.T) {
	m := NewMonitor()

	m.Update("ingress", NewHealthy("ingress", "listening"))
	m.Update("archive", NewUnhealthy("archive", "disk full"))

	assert.Equal(t, 2, m.Count())

	got, ok := m.Get("archive")
	require.True(t, ok)
	assert.True(t, got.IsUnhealthy())

	agg := m.AggregateHealth("relay")
	assert.True(t, agg.IsUnhealthy())

	all := m.GetAll()
	assert.Len(t, all, 2)
}

func TestSnapshotOptionalDegrades(t *testing.T) {
	s := NewServer(0, "relay", nil)
	s.Register("ingress", &fakeComponent{name: "ingress", healthy: true})
	s.RegisterOptional("live", &fakeComponent{name: "live", healthy: false, lastErr: "broker not connected"})

	status := s.Snapshot()
	assert.True(t, status.IsDegraded())

	// A required component failing still means unhealthy
	s.Register("archive", &fakeComponent{name: "archive", healthy: false})
	assert.True(t, s.Snapshot().IsUnhealthy())
}

func TestHandleHealth(t *testing.T) {
	s := NewServer(0, "relay", nil)
	s.Register("ingress", &fakeComponent{name: "ingress", healthy: true})

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest("GET", "/healthz", nil))

	assert.Equal(t, 200, rec.Code)
	var status Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "relay", status.Component)
	assert.True(t, status.IsHealthy())

	// Unhealthy pipeline answers 503
	s.Register("archive", &fakeComponent{name: "archive", healthy: false})
	rec = httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, 503, rec.Code)
}
