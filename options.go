package treewalk

import (
	"time"

	"github.com/hupe1980/treewalk/codec"
	"github.com/hupe1980/treewalk/resource"
)

// Compression selects the spill payload compressor.
type Compression uint8

const (
	// CompressionZstd is the default spill compressor.
	CompressionZstd Compression = iota
	// CompressionLZ4 trades ratio for lower CPU cost.
	CompressionLZ4
	// CompressionNone stores spill payloads uncompressed.
	CompressionNone
)

// SpillOptions configures the optional disk spill tier.
type SpillOptions struct {
	// MaxSizeBytes bounds the total compressed bytes on disk. 0 = unbounded.
	MaxSizeBytes int64
	// Codec encodes spill payloads. Defaults to codec.Default.
	Codec codec.Codec
	// Compression selects the payload compressor. Defaults to zstd.
	Compression Compression
	// MaxConcurrentWrites throttles background file writes. Defaults to 4.
	MaxConcurrentWrites int64
}

type options struct {
	maxMemoryMB     int
	maxEntries      int
	protected       bool
	trackTraversal  bool
	validationTTL   time.Duration
	maxCacheDepth   int
	maxPathDepth    int
	maxTrackedNodes int

	controller *resource.Controller

	spillDir  string
	spillOpts []func(*SpillOptions)

	logger  *Logger
	metrics MetricsCollector
}

// Option configures a CachingSource.
type Option func(*options)

// WithMaxMemoryMB bounds the cache memory budget in megabytes.
//
//   - positive: bounded, LRU eviction under pressure
//   - 0: unbounded size, LRU bookkeeping still maintained
//   - negative: caching disabled entirely (tracking still works)
func WithMaxMemoryMB(mb int) Option {
	return func(o *options) {
		o.maxMemoryMB = mb
	}
}

// WithMaxEntries bounds the number of cached entries. 0 means unbounded.
func WithMaxEntries(n int) Option {
	return func(o *options) {
		o.maxEntries = n
	}
}

// WithoutProtection switches the cache and tracker to fast mode: no
// admission checks, no eviction, no evicted side-sets. Maximum throughput,
// unbounded memory growth.
func WithoutProtection() Option {
	return func(o *options) {
		o.protected = false
	}
}

// WithoutTracking disables discovery/expansion tracking.
func WithoutTracking() Option {
	return func(o *options) {
		o.trackTraversal = false
	}
}

// WithValidationTTL controls cache revalidation:
//
//   - negative: cached entries are trusted forever (default)
//   - zero: cached entries are never trusted (always refetch; the cache is
//     still populated for introspection)
//   - positive: entries older than the TTL are treated as misses
func WithValidationTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.validationTTL = ttl
	}
}

// WithMaxCacheDepth stops caching (not tracking) for nodes deeper than n.
// 0 disables the limit.
func WithMaxCacheDepth(n int) Option {
	return func(o *options) {
		o.maxCacheDepth = n
	}
}

// WithMaxPathDepth stops caching for paths with more than n segments.
// 0 disables the limit.
func WithMaxPathDepth(n int) Option {
	return func(o *options) {
		o.maxPathDepth = n
	}
}

// WithMaxTrackedNodes caps the tracker. On reaching the cap all tracking
// state is cleared wholesale rather than selectively evicted. 0 = unbounded.
func WithMaxTrackedNodes(n int) Option {
	return func(o *options) {
		o.maxTrackedNodes = n
	}
}

// WithResourceController shares a resource controller between this source
// and other components. Entry bytes are charged against its memory budget
// and parallel walkers draw fetch slots and rate tokens from it.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

// WithSpill enables the disk spill tier in dir. Requires the base source to
// implement source.Resolver. Spilled state never survives the process.
//
// Example:
//
//	cs, _ := treewalk.New(src,
//	    treewalk.WithMaxMemoryMB(64),
//	    treewalk.WithSpill("/fast/nvme/treewalk", func(o *treewalk.SpillOptions) {
//	        o.MaxSizeBytes = 1 << 30
//	        o.Compression = treewalk.CompressionLZ4
//	    }),
//	)
func WithSpill(dir string, optFns ...func(*SpillOptions)) Option {
	return func(o *options) {
		o.spillDir = dir
		o.spillOpts = optFns
	}
}

// WithLogger configures structured logging. Pass nil to disable.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithMetricsCollector configures a metrics collector. Pass nil to disable.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metrics = mc
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		maxMemoryMB:    100,
		protected:      true,
		trackTraversal: true,
		validationTTL:  -1,
		logger:         NoopLogger(),
		metrics:        NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
