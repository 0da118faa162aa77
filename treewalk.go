package treewalk

import (
	"context"
	"iter"
	"sync/atomic"
	"time"

	"github.com/hupe1980/treewalk/internal/pathutil"
	"github.com/hupe1980/treewalk/internal/store"
	"github.com/hupe1980/treewalk/internal/tracker"
	"github.com/hupe1980/treewalk/resource"
	"github.com/hupe1980/treewalk/source"
)

// TrackingState is the answer to a tri-state tracking query.
type TrackingState uint8

const (
	// KnownAbsent means the path was never recorded.
	KnownAbsent TrackingState = iota
	// KnownPresent means the path is actively tracked.
	KnownPresent
	// UnknownEvicted means the path was tracked but its record was evicted;
	// the source cannot confirm details anymore. Only possible in protected
	// mode with caching enabled.
	UnknownEvicted
)

func (s TrackingState) String() string {
	switch s {
	case KnownPresent:
		return "present"
	case UnknownEvicted:
		return "evicted"
	default:
		return "absent"
	}
}

// defaultDepth is the sentinel used when the base source cannot resolve a
// node's depth.
const defaultDepth = 0

// Rough per-entry and per-child accounting weights for the size estimate.
// Deliberately coarse; the invariant is exactness of the *accounting*, not
// of the estimate.
const (
	entryOverheadBytes = 112
	childOverheadBytes = 48
)

// ExpandOptions configures a single Expand call.
type ExpandOptions struct {
	// UseCache controls whether this call may read or write the cache.
	// Tracking happens either way. Defaults to true.
	UseCache bool
}

// CachingSource wraps a base Source with an LRU-bounded child-listing cache
// and a discovery/expansion tracker.
//
// The store and tracker live for the lifetime of the CachingSource and are
// shared by every traversal through it; clear them explicitly between
// unrelated traversals.
type CachingSource struct {
	base    source.Source
	opts    options
	store   *store.Store     // nil when caching is disabled
	tracker *tracker.Tracker // nil when tracking is disabled

	hits   atomic.Int64
	misses atomic.Int64

	logger  *Logger
	metrics MetricsCollector
}

// Compile time check to ensure CachingSource satisfies the Source interface.
var _ source.Source = (*CachingSource)(nil)

// New creates a CachingSource wrapping base.
func New(base source.Source, optFns ...Option) (*CachingSource, error) {
	if base == nil {
		return nil, ErrNilSource
	}

	opts := applyOptions(optFns)

	cs := &CachingSource{
		base:    base,
		opts:    opts,
		logger:  opts.logger,
		metrics: opts.metrics,
	}

	cacheEnabled := opts.maxMemoryMB >= 0
	if cacheEnabled {
		var spill *store.Spill
		if opts.spillDir != "" {
			resolver, ok := base.(source.Resolver)
			if !ok {
				return nil, ErrSpillUnsupported
			}

			so := SpillOptions{MaxConcurrentWrites: 4}
			for _, fn := range opts.spillOpts {
				if fn != nil {
					fn(&so)
				}
			}

			var err error
			spill, err = store.NewSpill(store.SpillConfig{
				Dir:                 opts.spillDir,
				MaxSizeBytes:        so.MaxSizeBytes,
				Codec:               so.Codec,
				Compression:         store.Compression(so.Compression),
				MaxConcurrentWrites: so.MaxConcurrentWrites,
				Resolve:             resolver.NodeAt,
				OnEvict:             cs.onEvict,
			})
			if err != nil {
				return nil, err
			}
		}

		cs.store = store.New(store.Config{
			Protected:      opts.protected,
			MaxMemoryBytes: int64(opts.maxMemoryMB) * 1024 * 1024,
			MaxEntries:     opts.maxEntries,
			MaxPathDepth:   opts.maxPathDepth,
			MaxCacheDepth:  opts.maxCacheDepth,
			OnEvict:        cs.onEvict,
			Controller:     opts.controller,
			Spill:          spill,
		})
	}

	if opts.trackTraversal {
		cs.tracker = tracker.New(tracker.Config{
			// The eviction side-channel only matters when something can
			// actually be evicted.
			SafeMode:        opts.protected && cacheEnabled,
			MaxTrackedNodes: opts.maxTrackedNodes,
		})
	}

	return cs, nil
}

// onEvict keeps the tracker consistent with the store: a path whose cache
// data is definitively lost moves to the evicted side-sets.
func (cs *CachingSource) onEvict(key store.Key) {
	if cs.tracker != nil {
		cs.tracker.MarkEvicted(key.Path)
	}
	cs.metrics.RecordEviction()
	cs.logger.LogEviction(context.Background(), key.Path)
}

// Expand enumerates the children of node, reading through the cache.
//
// The node is tracked as discovered and expanded before any fetching starts;
// tracking records attempts, not successes, so a node whose enumeration
// fails mid-stream is still marked expanded. Children are tracked as
// discovered at depth+1 whether they come from cache or from the base
// source, then yielded immediately. The child list is buffered alongside the
// stream and written to the cache once enumeration completes; an abandoned
// or failed enumeration writes nothing.
//
// Errors from the base source propagate unchanged; the cache layer never
// downgrades them to an empty result.
func (cs *CachingSource) Expand(ctx context.Context, node source.Node, optFns ...func(*ExpandOptions)) iter.Seq2[source.Node, error] {
	eo := ExpandOptions{UseCache: true}
	for _, fn := range optFns {
		if fn != nil {
			fn(&eo)
		}
	}

	return func(yield func(source.Node, error) bool) {
		start := time.Now()

		if node == nil {
			yield(nil, ErrNilNode)
			return
		}

		path := pathutil.Normalize(node.Path())
		depth := cs.resolveDepth(node)

		if cs.tracker != nil {
			cs.tracker.TrackExpansion(path, depth)
		}

		useCache := cs.store != nil && eo.UseCache && cs.cacheable(path, depth)
		key := store.Key{Path: path, Depth: depth}

		if useCache {
			if entry, ok := cs.store.Get(ctx, key); ok && cs.fresh(entry) {
				cs.hits.Add(1)
				cs.yieldCached(ctx, path, entry, depth, start, yield)
				return
			}
			cs.misses.Add(1)
		}

		if err := cs.opts.controller.WaitFetchRate(ctx); err != nil {
			yield(nil, err)
			return
		}

		var buffer []source.Node
		size := int64(entryOverheadBytes)
		yielded := 0

		for child, err := range cs.base.Children(ctx, node) {
			if err != nil {
				cs.metrics.RecordExpand(time.Since(start), false, err)
				cs.logger.LogExpand(ctx, path, depth, yielded, false, err)
				yield(nil, err)
				return
			}

			childPath := pathutil.Normalize(child.Path())
			if cs.tracker != nil {
				cs.tracker.TrackDiscovery(childPath, depth+1)
			}
			if useCache {
				buffer = append(buffer, child)
				size += childOverheadBytes + int64(len(childPath))
			}

			if !yield(child, nil) {
				return
			}
			yielded++
		}

		if useCache {
			cs.store.Put(key, &store.Entry{
				Children: buffer,
				Depth:    depth,
				Size:     size,
				CachedAt: time.Now(),
			})
		}

		cs.metrics.RecordExpand(time.Since(start), false, nil)
		cs.logger.LogExpand(ctx, path, depth, yielded, false, nil)
	}
}

// yieldCached replays a cached entry. Children are re-tracked as discovered
// so tracking accuracy does not depend on hit or miss.
func (cs *CachingSource) yieldCached(ctx context.Context, path string, entry *store.Entry, depth int, start time.Time, yield func(source.Node, error) bool) {
	for _, child := range entry.Children {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}
		if cs.tracker != nil {
			cs.tracker.TrackDiscovery(pathutil.Normalize(child.Path()), depth+1)
		}
		if !yield(child, nil) {
			return
		}
	}
	cs.metrics.RecordExpand(time.Since(start), true, nil)
	cs.logger.LogExpand(ctx, path, depth, len(entry.Children), true, nil)
}

// resolveDepth queries the base source, falling back to the sentinel depth.
func (cs *CachingSource) resolveDepth(node source.Node) int {
	d, err := cs.base.Depth(node)
	if err != nil {
		return defaultDepth
	}
	return d
}

// cacheable applies the per-call caching gate. Nodes beyond the limits are
// still tracked, just never cached.
func (cs *CachingSource) cacheable(path string, depth int) bool {
	if cs.opts.maxCacheDepth > 0 && depth > cs.opts.maxCacheDepth {
		return false
	}
	if cs.opts.maxPathDepth > 0 && pathutil.Depth(path) > cs.opts.maxPathDepth {
		return false
	}
	return true
}

// fresh applies the TTL rule: negative TTL trusts forever, zero never
// trusts, positive compares against the entry age.
func (cs *CachingSource) fresh(entry *store.Entry) bool {
	ttl := cs.opts.validationTTL
	if ttl < 0 {
		return true
	}
	if ttl == 0 {
		return false
	}
	return time.Since(entry.CachedAt) <= ttl
}

// Children implements source.Source by expanding with default options,
// so a CachingSource can stand in wherever a Source is expected.
func (cs *CachingSource) Children(ctx context.Context, node source.Node) iter.Seq2[source.Node, error] {
	return cs.Expand(ctx, node)
}

// Depth implements source.Source.
func (cs *CachingSource) Depth(node source.Node) (int, error) {
	return cs.base.Depth(node)
}

// Parent implements source.Source.
func (cs *CachingSource) Parent(node source.Node) (source.Node, bool) {
	return cs.base.Parent(node)
}

// WasDiscovered reports whether path was seen as a child (or expanded).
func (cs *CachingSource) WasDiscovered(path string) bool {
	if cs.tracker == nil {
		return false
	}
	return cs.tracker.WasDiscovered(pathutil.Normalize(path))
}

// WasExpanded reports whether path had its children enumerated.
func (cs *CachingSource) WasExpanded(path string) bool {
	if cs.tracker == nil {
		return false
	}
	return cs.tracker.WasExpanded(pathutil.Normalize(path))
}

// DiscoveryState returns the tri-state discovery answer for path.
func (cs *CachingSource) DiscoveryState(path string) TrackingState {
	if cs.tracker == nil {
		return KnownAbsent
	}
	return TrackingState(cs.tracker.DiscoveryState(pathutil.Normalize(path)))
}

// ExpansionState returns the tri-state expansion answer for path.
func (cs *CachingSource) ExpansionState(path string) TrackingState {
	if cs.tracker == nil {
		return KnownAbsent
	}
	return TrackingState(cs.tracker.ExpansionState(pathutil.Normalize(path)))
}

// DiscoveryDepth returns the first-discovery depth of path.
func (cs *CachingSource) DiscoveryDepth(path string) (int, bool) {
	if cs.tracker == nil {
		return 0, false
	}
	return cs.tracker.DiscoveryDepth(pathutil.Normalize(path))
}

// ExpansionDepth returns the latest expansion depth of path.
func (cs *CachingSource) ExpansionDepth(path string) (int, bool) {
	if cs.tracker == nil {
		return 0, false
	}
	return cs.tracker.ExpansionDepth(pathutil.Normalize(path))
}

// Invalidate removes cached entries matching pattern and returns the count.
//
// An empty pattern clears the whole cache. With deep=false only entries
// whose path equals the pattern are removed; with deep=true the pattern's
// whole subtree goes, matched segment-wise so "/dir1" never claims "/dir1x".
func (cs *CachingSource) Invalidate(ctx context.Context, pattern string, deep bool) int {
	if cs.store == nil {
		return 0
	}

	var count int
	if pattern == "" {
		count = cs.store.Clear()
	} else {
		p := pathutil.Normalize(pattern)
		if deep {
			count = cs.store.Invalidate(func(k store.Key) bool {
				return pathutil.IsAncestorOf(p, k.Path)
			})
		} else {
			count = cs.store.Invalidate(func(k store.Key) bool {
				return k.Path == p
			})
		}
	}

	cs.metrics.RecordInvalidate(count)
	cs.logger.LogInvalidate(ctx, pattern, deep, count)
	return count
}

// InvalidateNode invalidates the cache entries of a single node.
// A nil node or an empty node identity is an invalid argument, never
// swallowed; in particular an empty path must not fall through to the
// clear-all form of Invalidate.
func (cs *CachingSource) InvalidateNode(ctx context.Context, node source.Node, deep bool) (int, error) {
	if node == nil {
		return 0, ErrNilNode
	}
	path := node.Path()
	if path == "" {
		return 0, ErrEmptyPath
	}
	return cs.Invalidate(ctx, path, deep), nil
}

// InvalidateNodes invalidates cache entries for all nodes. With ignoreErrors
// per-node failures are swallowed and the total count accumulates; without
// it the first failure is returned alongside the count so far.
func (cs *CachingSource) InvalidateNodes(ctx context.Context, nodes []source.Node, deep, ignoreErrors bool) (int, error) {
	total := 0
	for _, node := range nodes {
		n, err := cs.InvalidateNode(ctx, node, deep)
		if err != nil {
			if ignoreErrors {
				continue
			}
			return total, &ErrInvalidation{Path: nodePath(node), cause: err}
		}
		total += n
	}
	return total, nil
}

func nodePath(node source.Node) string {
	if node == nil {
		return "<nil>"
	}
	return node.Path()
}

// ClearCache empties the cache without touching tracking state.
func (cs *CachingSource) ClearCache() {
	if cs.store != nil {
		cs.store.Clear()
	}
	cs.hits.Store(0)
	cs.misses.Store(0)
}

// ClearTracking resets tracking state without touching the cache.
// Call it between unrelated traversals sharing one CachingSource.
func (cs *CachingSource) ClearTracking() {
	if cs.tracker != nil {
		cs.tracker.Clear()
	}
}

// Stats returns a point-in-time snapshot.
func (cs *CachingSource) Stats() Stats {
	s := Stats{
		CacheEnabled:    cs.store != nil,
		TrackingEnabled: cs.tracker != nil,
		Hits:            cs.hits.Load(),
		Misses:          cs.misses.Load(),
	}
	s.Attempts = s.Hits + s.Misses
	if s.Attempts > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Attempts)
	}

	if cs.store != nil {
		s.Entries = cs.store.Len()
		s.SpillEntries = cs.store.SpillLen()
		s.MemoryBytes = cs.store.MemoryBytes()
		s.MemoryMB = float64(s.MemoryBytes) / (1024 * 1024)
	}
	if cs.tracker != nil {
		s.Discovered = cs.tracker.DiscoveredCount()
		s.Expanded = cs.tracker.ExpandedCount()
		s.DiscoveryDepths = depthSummary(cs.tracker.DiscoveryDepthSummary())
		s.ExpansionDepths = depthSummary(cs.tracker.ExpansionDepthSummary())
	}
	return s
}

// Controller returns the shared resource controller, if any.
func (cs *CachingSource) Controller() *resource.Controller {
	return cs.opts.controller
}

// Close releases the spill tier, if any. The CachingSource must not be used
// afterwards.
func (cs *CachingSource) Close() error {
	if cs.store != nil {
		return cs.store.Close()
	}
	return nil
}
