package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionMetrics tracks the recording lifecycle.
type SessionMetrics struct {
	State             *prometheus.GaugeVec
	Transitions       *prometheus.CounterVec
	Failures          *prometheus.CounterVec
	RecordingDuration prometheus.Histogram
}

// NewSessionMetrics creates and registers session metrics.
func NewSessionMetrics(registry prometheus.Registerer) (*SessionMetrics, error) {
	m := &SessionMetrics{
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "capturectl_session_state",
			Help: "Current session state (1 for the active state, 0 otherwise)",
		}, []string{"state"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "capturectl_session_transitions_total",
			Help: "Total number of session state transitions",
		}, []string{"from", "to"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "capturectl_session_failures_total",
			Help: "Total number of failed session operations by target state",
		}, []string{"state"}),
		RecordingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "capturectl_recording_duration_seconds",
			Help:    "Duration of completed recordings in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register session metrics: %w", err)
	}
	return m, nil
}

// SetState marks state as active and every name in all as inactive.
func (m *SessionMetrics) SetState(state string, all []string) {
	for _, s := range all {
		m.State.WithLabelValues(s).Set(0)
	}
	m.State.WithLabelValues(state).Set(1)
}

// RecordTransition counts a transition and, when failed, a failure.
func (m *SessionMetrics) RecordTransition(from, to string, failed bool) {
	m.Transitions.WithLabelValues(from, to).Inc()
	if failed {
		m.Failures.WithLabelValues(to).Inc()
	}
}

// Collect implements the prometheus.Collector interface.
func (m *SessionMetrics) Collect(ch chan<- prometheus.Metric) {
	m.State.Collect(ch)
	m.Transitions.Collect(ch)
	m.Failures.Collect(ch)
	ch <- m.RecordingDuration
}

// Describe implements the prometheus.Collector interface.
func (m *SessionMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.State.Describe(ch)
	m.Transitions.Describe(ch)
	m.Failures.Describe(ch)
	ch <- m.RecordingDuration.Desc()
}
