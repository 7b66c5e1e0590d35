// Package observability exposes capturectl state as Prometheus metrics.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capturectl/capturectl/internal/monitor"
	"github.com/capturectl/capturectl/internal/observability/metrics"
	"github.com/capturectl/capturectl/internal/session"
	"github.com/capturectl/capturectl/internal/signals"
)

var allStates = []string{
	session.Uninitialized.String(),
	session.Configuring.String(),
	session.Idle.String(),
	session.Recording.String(),
	session.Stopping.String(),
	session.ShutDown.String(),
}

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Session  *metrics.SessionMetrics
	Engine   *metrics.EngineMetrics
	MQTT     *metrics.MQTTMetrics

	mu             sync.Mutex
	recordingStart time.Time
}

// NewMetrics creates a registry with every collector registered.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register Go collector: %w", err)
	}

	sessionMetrics, err := metrics.NewSessionMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create session metrics: %w", err)
	}

	engineMetrics, err := metrics.NewEngineMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine metrics: %w", err)
	}

	mqttMetrics, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}

	m := &Metrics{
		registry: registry,
		Session:  sessionMetrics,
		Engine:   engineMetrics,
		MQTT:     mqttMetrics,
	}
	m.Session.SetState(session.Uninitialized.String(), allStates)
	return m, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// OnTransition implements session.Observer.
func (m *Metrics) OnTransition(t session.Transition) {
	m.Session.SetState(t.To.String(), allStates)
	m.Session.RecordTransition(t.From.String(), t.To.String(), t.Err != nil)

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case t.To == session.Recording:
		m.recordingStart = t.At
	case t.From == session.Stopping && !m.recordingStart.IsZero():
		m.Session.RecordingDuration.Observe(t.At.Sub(m.recordingStart).Seconds())
		m.recordingStart = time.Time{}
	}
}

// ObserveSnapshot records a performance sample.
func (m *Metrics) ObserveSnapshot(s monitor.Snapshot) {
	m.Engine.CPU.Set(s.CPU)
	m.Engine.DroppedFrames.Set(float64(s.NumberDroppedFrames))
	m.Engine.DroppedPercent.Set(s.PercentageDroppedFrames)
	m.Engine.Bandwidth.Set(s.Bandwidth)
	m.Engine.FrameRate.Set(s.FrameRate)
	m.Engine.HostCPU.Set(s.CPUPercent)
	m.Engine.HostMemory.Set(s.MemoryPercent)
	m.Engine.DiskFree.Set(float64(s.DiskFree))
}

// ObserveSignals records signal bus counters.
func (m *Metrics) ObserveSignals(s signals.Stats) {
	m.Engine.SignalsDropped.Set(float64(s.Dropped))
}
