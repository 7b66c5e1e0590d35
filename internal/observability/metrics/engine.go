package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics mirrors the latest engine performance sample.
type EngineMetrics struct {
	CPU            prometheus.Gauge
	DroppedFrames  prometheus.Gauge
	DroppedPercent prometheus.Gauge
	Bandwidth      prometheus.Gauge
	FrameRate      prometheus.Gauge
	HostCPU        prometheus.Gauge
	HostMemory     prometheus.Gauge
	DiskFree       prometheus.Gauge
	SignalsDropped prometheus.Gauge
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
}

// NewEngineMetrics creates and registers engine metrics.
func NewEngineMetrics(registry prometheus.Registerer) (*EngineMetrics, error) {
	m := &EngineMetrics{
		CPU:            gauge("capturectl_engine_cpu_percent", "Engine CPU usage in percent"),
		DroppedFrames:  gauge("capturectl_engine_dropped_frames", "Frames dropped by the engine in the current output"),
		DroppedPercent: gauge("capturectl_engine_dropped_frames_percent", "Share of dropped frames in percent"),
		Bandwidth:      gauge("capturectl_engine_bandwidth_kbps", "Output bandwidth in kbit/s"),
		FrameRate:      gauge("capturectl_engine_frame_rate", "Rendered frames per second"),
		HostCPU:        gauge("capturectl_host_cpu_percent", "Host CPU usage in percent"),
		HostMemory:     gauge("capturectl_host_memory_percent", "Host memory usage in percent"),
		DiskFree:       gauge("capturectl_recording_disk_free_bytes", "Free bytes on the recording volume"),
		SignalsDropped: gauge("capturectl_signals_dropped", "Output signals dropped because a waiter queue was full"),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register engine metrics: %w", err)
	}
	return m, nil
}

func (m *EngineMetrics) gauges() []prometheus.Gauge {
	return []prometheus.Gauge{
		m.CPU, m.DroppedFrames, m.DroppedPercent, m.Bandwidth, m.FrameRate,
		m.HostCPU, m.HostMemory, m.DiskFree, m.SignalsDropped,
	}
}

// Collect implements the prometheus.Collector interface.
func (m *EngineMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, g := range m.gauges() {
		ch <- g
	}
}

// Describe implements the prometheus.Collector interface.
func (m *EngineMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range m.gauges() {
		ch <- g.Desc()
	}
}
