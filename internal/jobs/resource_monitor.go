package jobs

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

// Sample is one snapshot of process resources.
type Sample struct {
	At           time.Time
	Goroutines   int
	HeapAlloc    uint64
	CacheEntries int
}

// ResourceSink receives resource samples.
type ResourceSink interface {
	RecordResources(Sample)
}

// ResourceMonitor periodically samples goroutines, heap and local cache
// size into a sink. It runs independently of any job.
type ResourceMonitor struct {
	sink     ResourceSink
	interval time.Duration
	cacheLen func() int
	logger   *slog.Logger
}

// NewResourceMonitor creates a monitor. cacheLen may be nil.
func NewResourceMonitor(sink ResourceSink, interval time.Duration, cacheLen func() int, logger *slog.Logger) *ResourceMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResourceMonitor{
		sink:     sink,
		interval: interval,
		cacheLen: cacheLen,
		logger:   logger,
	}
}

// Start begins the sampling loop and blocks until ctx ends.
func (m *ResourceMonitor) Start(ctx context.Context) {
	m.logger.Info("resource monitor started", "interval", m.interval)

	// Sample immediately on start
	m.sample()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("resource monitor stopped")
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *ResourceMonitor) sample() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s := Sample{
		At:         time.Now(),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  mem.HeapAlloc,
	}
	if m.cacheLen != nil {
		s.CacheEntries = m.cacheLen()
	}
	m.sink.RecordResources(s)
	m.logger.Debug("resource sample", "goroutines", s.Goroutines, "heap_alloc", s.HeapAlloc, "cache_entries", s.CacheEntries)
}
