package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusPredicates(t *testing.T) {
	tests := []struct {
		status                       string
		healthy, degraded, unhealthy bool
	}{
		{StatusHealthy, true, false, false},
		{StatusDegraded, false, true, false},
		{StatusUnhealthy, false, false, true},
		{"", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			s := Status{Status: tt.status}
			assert.Equal(t, tt.healthy, s.IsHealthy())
			assert.Equal(t, tt.degraded, s.IsDegraded())
			assert.Equal(t, tt.unhealthy, s.IsUnhealthy())
		})
	}
}

func TestConstructors(t *testing.T) {
	h := NewHealthy("broker", "connected")
	assert.True(t, h.Healthy)
	assert.Equal(t, "broker", h.Component)
	assert.False(t, h.Timestamp.IsZero())

	assert.False(t, NewDegraded("broker", "reconnecting").Healthy)
	assert.False(t, NewUnhealthy("broker", "down").Healthy)
}

func TestWithSubStatus_SliceIsolation(t *testing.T) {
	original := Status{
		Component:   "parent",
		Status:      StatusHealthy,
		SubStatuses: []Status{{Component: "child1", Status: StatusHealthy}},
	}

	modified := original.WithSubStatus(Status{Component: "child2", Status: StatusUnhealthy})
	require.Len(t, original.SubStatuses, 1)
	require.Len(t, modified.SubStatuses, 2)

	original.SubStatuses[0].Status = StatusDegraded
	assert.Equal(t, StatusHealthy, modified.SubStatuses[0].Status)
}

func TestWithMetrics(t *testing.T) {
	s := NewHealthy("pool", "ok").WithMetrics(&Metrics{ErrorCount: 2})
	require.NotNil(t, s.Metrics)
	assert.Equal(t, 2, s.Metrics.ErrorCount)
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		subs []Status
		want string
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StatusHealthy},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StatusDegraded},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("system", tt.subs)
			assert.Equal(t, tt.want, got.Status)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestFromReport(t *testing.T) {
	tests := []struct {
		name        string
		report      Report
		wantStatus  string
		wantMessage string
	}{
		{
			name:        "healthy",
			report:      Report{Healthy: true, Message: "connected", Metrics: Metrics{Uptime: time.Hour}},
			wantStatus:  StatusHealthy,
			wantMessage: "connected",
		},
		{
			name:        "degraded keeps message",
			report:      Report{Degraded: true, Message: "reconnecting"},
			wantStatus:  StatusDegraded,
			wantMessage: "reconnecting",
		},
		{
			name:        "unhealthy with sanitized error",
			report:      Report{LastError: "dial mqtt://10.0.0.1:1883 failed", Metrics: Metrics{ErrorCount: 3}},
			wantStatus:  StatusUnhealthy,
			wantMessage: "dial [URL] failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromReport("broker", tt.report)
			assert.Equal(t, "broker", got.Component)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantMessage, got.Message)
			require.NotNil(t, got.Metrics)
			assert.Equal(t, tt.report.Metrics.ErrorCount, got.Metrics.ErrorCount)
		})
	}
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"unix path", "failed to open /etc/semlink/config.yaml", "failed to open [PATH]"},
		{"windows path", "cannot read C:\\Users\\Admin\\config.json", "cannot read [PATH]"},
		{"nats url", "cannot connect to nats://localhost:4222", "cannot connect to [URL]"},
		{"redis url", "dial redis://user:pw@cache:6379/0 refused", "dial [URL] refused"},
		{"ip address", "timeout connecting to 192.168.1.100", "timeout connecting to [IP]"},
		{"port", "failed to bind to :8080", "failed to bind to [PORT]"},
		{"credentials", "auth failed with password:secretpass123", "auth failed with [REDACTED]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeErrorMessage(tt.input))
		})
	}
}
