// Package monitor samples engine performance statistics together with host
// resource usage on a fixed interval.
package monitor

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/capturectl/capturectl/internal/engine"
	"github.com/capturectl/capturectl/internal/errors"
	"github.com/capturectl/capturectl/internal/logger"
)

// DefaultInterval is the sampling period when none is configured.
const DefaultInterval = time.Second

// Source provides engine performance statistics.
type Source interface {
	PerformanceStatistics() (engine.PerformanceStats, error)
}

// HostStats is host resource usage.
type HostStats struct {
	CPUPercent    float64 `json:"hostCPU"`
	MemoryPercent float64 `json:"hostMemory"`
	DiskFree      uint64  `json:"diskFree"` // bytes free on the recording volume
}

// Snapshot is one sample pushed to subscribers.
type Snapshot struct {
	engine.PerformanceStats
	HostStats
	At time.Time `json:"at"`
}

// HostSampler reads host statistics.
type HostSampler func(ctx context.Context) (HostStats, error)

// Option configures a Poller.
type Option func(*Poller)

// WithHostSampler replaces the gopsutil based host sampler.
func WithHostSampler(fn HostSampler) Option {
	return func(p *Poller) { p.host = fn }
}

// WithLogger sets the poller logger.
func WithLogger(log logger.Logger) Option {
	return func(p *Poller) { p.log = log }
}

// WithDiskPath sets the path whose volume is reported in DiskFree.
func WithDiskPath(path string) Option {
	return func(p *Poller) { p.diskPath = path }
}

// Poller samples statistics on every tick.
type Poller struct {
	source   Source
	interval time.Duration
	diskPath string
	host     HostSampler
	log      logger.Logger
}

// NewPoller returns a Poller for src.
func NewPoller(src Source, interval time.Duration, opts ...Option) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p := &Poller{source: src, interval: interval, diskPath: "."}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.NewDiscardLogger()
	}
	if p.host == nil {
		p.host = p.sampleHost
	}
	return p
}

// sampleHost reads CPU, memory and disk usage. CPU uses a zero interval, so
// the first reading after process start may be 0.
func (p *Poller) sampleHost(ctx context.Context) (HostStats, error) {
	var hs HostStats

	cpuPercent, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return hs, errors.New(err).
			Component("monitor").
			Category(errors.CategorySystem).
			Context("resource", "cpu").
			Build()
	}
	if len(cpuPercent) > 0 {
		hs.CPUPercent = cpuPercent[0]
	}

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return hs, errors.New(err).
			Component("monitor").
			Category(errors.CategorySystem).
			Context("resource", "memory").
			Build()
	}
	hs.MemoryPercent = memInfo.UsedPercent

	usage, err := disk.UsageWithContext(ctx, p.diskPath)
	if err != nil {
		p.log.Debug("disk usage unavailable",
			logger.String("path", p.diskPath),
			logger.Error(err))
		return hs, nil
	}
	hs.DiskFree = usage.Free
	return hs, nil
}

// Sample takes one snapshot. Host statistics failures are logged and leave
// the host fields zero.
func (p *Poller) Sample(ctx context.Context) (Snapshot, error) {
	stats, err := p.source.PerformanceStatistics()
	if err != nil {
		return Snapshot{}, errors.New(err).
			Component("monitor").
			Category(errors.CategoryEngine).
			Context("operation", "performance_statistics").
			Build()
	}

	hs, err := p.host(ctx)
	if err != nil {
		p.log.Warn("failed to read host statistics", logger.Error(err))
	}

	return Snapshot{PerformanceStats: stats, HostStats: hs, At: time.Now()}, nil
}

// Run samples immediately and then on every interval, handing each snapshot
// to sink, until ctx is done. Failed samples are logged and skipped.
func (p *Poller) Run(ctx context.Context, sink func(Snapshot)) {
	p.log.Debug("statistics polling started", logger.Duration("interval", p.interval))
	defer p.log.Debug("statistics polling stopped")

	p.tick(ctx, sink)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.tick(ctx, sink)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) tick(ctx context.Context, sink func(Snapshot)) {
	snap, err := p.Sample(ctx)
	if err != nil {
		p.log.Warn("failed to sample performance statistics", logger.Error(err))
		return
	}
	if ctx.Err() != nil {
		return
	}
	sink(snap)
}
