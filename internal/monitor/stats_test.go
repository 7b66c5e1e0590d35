package monitor

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/capturectl/capturectl/internal/engine"
	"github.com/capturectl/capturectl/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	mu    sync.Mutex
	stats engine.PerformanceStats
	err   error
	calls int
}

func (f *fakeSource) PerformanceStatistics() (engine.PerformanceStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.stats, f.err
}

func fixedHost(hs HostStats, err error) HostSampler {
	return func(context.Context) (HostStats, error) { return hs, err }
}

func TestSample(t *testing.T) {
	t.Parallel()
	src := &fakeSource{stats: engine.PerformanceStats{CPU: 12.5, NumberDroppedFrames: 3, FrameRate: 59.9}}
	p := NewPoller(src, time.Second, WithHostSampler(fixedHost(HostStats{CPUPercent: 40, MemoryPercent: 55, DiskFree: 1 << 30}, nil)))

	snap, err := p.Sample(t.Context())
	require.NoError(t, err)
	assert.InDelta(t, 12.5, snap.CPU, 1e-9)
	assert.Equal(t, 3, snap.NumberDroppedFrames)
	assert.InDelta(t, 40.0, snap.CPUPercent, 1e-9)
	assert.Equal(t, uint64(1<<30), snap.DiskFree)
	assert.False(t, snap.At.IsZero())
}

func TestSampleHostFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	src := &fakeSource{stats: engine.PerformanceStats{CPU: 1}}
	p := NewPoller(src, time.Second, WithHostSampler(fixedHost(HostStats{}, errors.NewStd("no procfs"))))

	snap, err := p.Sample(t.Context())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, snap.CPU, 1e-9)
	assert.Zero(t, snap.MemoryPercent)
}

func TestSampleEngineFailure(t *testing.T) {
	t.Parallel()
	src := &fakeSource{err: errors.NewStd("engine gone")}
	p := NewPoller(src, time.Second, WithHostSampler(fixedHost(HostStats{}, nil)))

	_, err := p.Sample(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryEngine))
}

func TestSnapshotJSONFieldNames(t *testing.T) {
	t.Parallel()
	snap := Snapshot{
		PerformanceStats: engine.PerformanceStats{CPU: 5, PercentageDroppedFrames: 0.5, Bandwidth: 8000},
		HostStats:        HostStats{MemoryPercent: 30},
	}
	raw, err := json.Marshal(snap)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"CPU", "numberDroppedFrames", "percentageDroppedFrames", "bandwidth", "frameRate", "hostCPU", "hostMemory", "diskFree", "at"} {
		assert.Contains(t, fields, key)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	src := &fakeSource{stats: engine.PerformanceStats{FrameRate: 60}}
	p := NewPoller(src, 5*time.Millisecond, WithHostSampler(fixedHost(HostStats{}, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan Snapshot, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx, func(s Snapshot) {
			select {
			case got <- s:
			default:
			}
		})
	}()

	for range 3 {
		select {
		case s := <-got:
			assert.InDelta(t, 60.0, s.FrameRate, 1e-9)
		case <-time.After(2 * time.Second):
			t.Fatal("no snapshot received")
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestRunSkipsFailedSamples(t *testing.T) {
	t.Parallel()
	src := &fakeSource{err: errors.NewStd("engine gone")}
	p := NewPoller(src, 5*time.Millisecond, WithHostSampler(fixedHost(HostStats{}, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	var count int
	p.Run(ctx, func(Snapshot) { count++ })
	assert.Zero(t, count)

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Positive(t, src.calls)
}

func TestNewPollerDefaults(t *testing.T) {
	t.Parallel()
	p := NewPoller(&fakeSource{}, 0)
	assert.Equal(t, DefaultInterval, p.interval)
	assert.NotNil(t, p.host)
}
