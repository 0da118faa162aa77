package treewalk

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems.
type MetricsCollector interface {
	// RecordExpand is called after each expand operation completes or
	// fails. hit reports whether the result came from cache.
	RecordExpand(duration time.Duration, hit bool, err error)

	// RecordInvalidate is called after each invalidation with the number
	// of entries removed.
	RecordInvalidate(count int)

	// RecordEviction is called for each entry whose data was definitively
	// lost to capacity eviction.
	RecordEviction()
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordExpand(time.Duration, bool, error) {}
func (NoopMetricsCollector) RecordInvalidate(int)                    {}
func (NoopMetricsCollector) RecordEviction()                         {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	ExpandCount      atomic.Int64
	ExpandErrors     atomic.Int64
	ExpandHits       atomic.Int64
	ExpandTotalNanos atomic.Int64
	InvalidateCount  atomic.Int64
	InvalidateTotal  atomic.Int64
	Evictions        atomic.Int64
}

// RecordExpand implements MetricsCollector.
func (b *BasicMetricsCollector) RecordExpand(duration time.Duration, hit bool, err error) {
	b.ExpandCount.Add(1)
	b.ExpandTotalNanos.Add(duration.Nanoseconds())
	if hit {
		b.ExpandHits.Add(1)
	}
	if err != nil {
		b.ExpandErrors.Add(1)
	}
}

// RecordInvalidate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInvalidate(count int) {
	b.InvalidateCount.Add(1)
	b.InvalidateTotal.Add(int64(count))
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction() {
	b.Evictions.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		ExpandCount:     b.ExpandCount.Load(),
		ExpandErrors:    b.ExpandErrors.Load(),
		ExpandHits:      b.ExpandHits.Load(),
		ExpandAvgNanos:  b.avgExpandNanos(),
		InvalidateCount: b.InvalidateCount.Load(),
		InvalidateTotal: b.InvalidateTotal.Load(),
		Evictions:       b.Evictions.Load(),
	}
}

func (b *BasicMetricsCollector) avgExpandNanos() int64 {
	count := b.ExpandCount.Load()
	if count == 0 {
		return 0
	}
	return b.ExpandTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	ExpandCount     int64
	ExpandErrors    int64
	ExpandHits      int64
	ExpandAvgNanos  int64
	InvalidateCount int64
	InvalidateTotal int64
	Evictions       int64
}
