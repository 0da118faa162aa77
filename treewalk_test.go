package treewalk

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hupe1980/treewalk/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTree(t *testing.T) *source.MemorySource {
	t.Helper()
	ms := source.NewMemorySource()
	ms.AddAll(
		"/root/a/x",
		"/root/a/y",
		"/root/b",
	)
	return ms
}

func expandAll(t *testing.T, cs *CachingSource, path string) []string {
	t.Helper()
	var out []string
	for child, err := range cs.Expand(context.Background(), source.PathNode(path)) {
		require.NoError(t, err)
		out = append(out, child.Path())
	}
	return out
}

func TestNew_NilSource(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, ErrNilSource)
}

func TestExpand_CacheHit(t *testing.T) {
	base := buildTree(t)
	faulty := source.NewFaultySource(base)
	cs, err := New(faulty)
	require.NoError(t, err)
	defer cs.Close()

	first := expandAll(t, cs, "/root/a")
	assert.Equal(t, []string{"/root/a/x", "/root/a/y"}, first)

	second := expandAll(t, cs, "/root/a")
	assert.Equal(t, first, second)
	assert.Equal(t, 1, faulty.Calls("/root/a"), "second expand must be served from cache")

	stats := cs.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 0.5, stats.HitRate)
}

func TestExpand_NilNode(t *testing.T) {
	cs, err := New(buildTree(t))
	require.NoError(t, err)
	defer cs.Close()

	var got error
	for _, e := range cs.Expand(context.Background(), nil) {
		got = e
	}
	require.ErrorIs(t, got, ErrNilNode)
}

func TestExpand_ErrorsPropagateAndNothingIsCached(t *testing.T) {
	boom := errors.New("boom")
	faulty := source.NewFaultySource(buildTree(t))
	faulty.FailOn("/root/a", source.Fault{FailAfterChildren: 1, Err: boom, FailCount: 1})

	cs, err := New(faulty)
	require.NoError(t, err)
	defer cs.Close()

	var children []string
	var gotErr error
	for child, e := range cs.Expand(context.Background(), source.PathNode("/root/a")) {
		if e != nil {
			gotErr = e
			break
		}
		children = append(children, child.Path())
	}
	require.ErrorIs(t, gotErr, boom)
	assert.Equal(t, []string{"/root/a/x"}, children, "children before the failure still stream")

	// The partial listing must not have been cached; the healed source is
	// consulted again and delivers the full listing.
	assert.Equal(t, []string{"/root/a/x", "/root/a/y"}, expandAll(t, cs, "/root/a"))
	assert.Equal(t, 2, faulty.Calls("/root/a"))
}

func TestExpand_AbandonedEnumerationNotCached(t *testing.T) {
	faulty := source.NewFaultySource(buildTree(t))
	cs, err := New(faulty)
	require.NoError(t, err)
	defer cs.Close()

	for range cs.Expand(context.Background(), source.PathNode("/root/a")) {
		break // abandon after the first child
	}

	expandAll(t, cs, "/root/a")
	assert.Equal(t, 2, faulty.Calls("/root/a"), "abandoned enumeration must not populate the cache")
}

func TestExpand_PerCallCacheBypass(t *testing.T) {
	faulty := source.NewFaultySource(buildTree(t))
	cs, err := New(faulty)
	require.NoError(t, err)
	defer cs.Close()

	expandAll(t, cs, "/root/a")

	noCache := func(o *ExpandOptions) { o.UseCache = false }
	for child, e := range cs.Expand(context.Background(), source.PathNode("/root/a"), noCache) {
		require.NoError(t, e)
		_ = child
	}
	assert.Equal(t, 2, faulty.Calls("/root/a"), "UseCache=false must hit the base source")

	stats := cs.Stats()
	assert.Equal(t, int64(1), stats.Attempts, "bypassed calls are not cache attempts")
}

func TestTracking_DiscoveryVersusExpansion(t *testing.T) {
	cs, err := New(buildTree(t))
	require.NoError(t, err)
	defer cs.Close()

	expandAll(t, cs, "/root")
	expandAll(t, cs, "/root/a")

	// /root/a was both discovered (as a child of /root) and expanded.
	assert.True(t, cs.WasDiscovered("/root/a"))
	assert.True(t, cs.WasExpanded("/root/a"))

	// The leaves were discovered but never expanded.
	assert.True(t, cs.WasDiscovered("/root/a/x"))
	assert.False(t, cs.WasExpanded("/root/a/x"))
	assert.True(t, cs.WasDiscovered("/root/b"))
	assert.False(t, cs.WasExpanded("/root/b"))

	// /root itself was expanded without ever being discovered as a child.
	assert.True(t, cs.WasExpanded("/root"))
	assert.True(t, cs.WasDiscovered("/root"), "expansion implies discovery")

	// Paths never touched.
	assert.False(t, cs.WasDiscovered("/other"))
	assert.Equal(t, KnownAbsent, cs.DiscoveryState("/other"))
}

func TestTracking_Depths(t *testing.T) {
	cs, err := New(buildTree(t))
	require.NoError(t, err)
	defer cs.Close()

	expandAll(t, cs, "/root")
	expandAll(t, cs, "/root/a")

	d, ok := cs.DiscoveryDepth("/root/a")
	require.True(t, ok)
	assert.Equal(t, 2, d, "child discovery depth is parent depth + 1")

	d, ok = cs.ExpansionDepth("/root/a")
	require.True(t, ok)
	assert.Equal(t, 2, d, "expansion records the node's own depth")

	d, ok = cs.DiscoveryDepth("/root/a/x")
	require.True(t, ok)
	assert.Equal(t, 3, d)

	_, ok = cs.ExpansionDepth("/root/a/x")
	assert.False(t, ok)
}

func TestTracking_RecordsAttemptsNotSuccesses(t *testing.T) {
	faulty := source.NewFaultySource(buildTree(t))
	faulty.FailOn("/root/a", source.Fault{FailAfterChildren: 0})

	cs, err := New(faulty)
	require.NoError(t, err)
	defer cs.Close()

	for _, e := range cs.Expand(context.Background(), source.PathNode("/root/a")) {
		require.Error(t, e)
	}

	assert.True(t, cs.WasExpanded("/root/a"), "a failed expansion still counts as attempted")
}

func TestTracking_EvictionTriState(t *testing.T) {
	ms := source.NewMemorySource()
	// Listings sized so a tiny budget evicts the first one.
	for d := 1; d <= 3; d++ {
		for c := 0; c < 50; c++ {
			ms.Add(fmt.Sprintf("/dir%d/child-with-a-rather-long-name-%02d", d, c))
		}
	}

	cs, err := New(ms, WithMaxEntries(1))
	require.NoError(t, err)
	defer cs.Close()

	expandAll(t, cs, "/dir1")
	expandAll(t, cs, "/dir2")
	expandAll(t, cs, "/dir3")

	assert.Equal(t, UnknownEvicted, cs.ExpansionState("/dir1"),
		"evicted nodes answer 'evicted', not 'no'")
	assert.Equal(t, KnownPresent, cs.ExpansionState("/dir3"))
	assert.Equal(t, KnownAbsent, cs.ExpansionState("/never-seen"))

	// Boolean queries stay conservative for evicted paths.
	assert.False(t, cs.WasExpanded("/dir1"))
	assert.True(t, cs.WasExpanded("/dir3"))
}

func TestValidationTTL(t *testing.T) {
	t.Run("positive ttl expires entries", func(t *testing.T) {
		faulty := source.NewFaultySource(buildTree(t))
		cs, err := New(faulty, WithValidationTTL(100*time.Millisecond))
		require.NoError(t, err)
		defer cs.Close()

		expandAll(t, cs, "/root/a")
		expandAll(t, cs, "/root/a")
		assert.Equal(t, 1, faulty.Calls("/root/a"), "fresh entry is trusted")

		time.Sleep(150 * time.Millisecond)
		expandAll(t, cs, "/root/a")
		assert.Equal(t, 2, faulty.Calls("/root/a"), "stale entry is refetched")
	})

	t.Run("zero ttl never trusts but still populates", func(t *testing.T) {
		faulty := source.NewFaultySource(buildTree(t))
		cs, err := New(faulty, WithValidationTTL(0))
		require.NoError(t, err)
		defer cs.Close()

		expandAll(t, cs, "/root/a")
		expandAll(t, cs, "/root/a")
		assert.Equal(t, 2, faulty.Calls("/root/a"))
		assert.Equal(t, 1, cs.Stats().Entries, "entries are still written for introspection")
	})

	t.Run("negative ttl trusts forever", func(t *testing.T) {
		faulty := source.NewFaultySource(buildTree(t))
		cs, err := New(faulty, WithValidationTTL(-1))
		require.NoError(t, err)
		defer cs.Close()

		expandAll(t, cs, "/root/a")
		time.Sleep(20 * time.Millisecond)
		expandAll(t, cs, "/root/a")
		assert.Equal(t, 1, faulty.Calls("/root/a"))
	})
}

func TestNegativeMemoryDisablesCaching(t *testing.T) {
	faulty := source.NewFaultySource(buildTree(t))
	cs, err := New(faulty, WithMaxMemoryMB(-1))
	require.NoError(t, err)
	defer cs.Close()

	expandAll(t, cs, "/root/a")
	expandAll(t, cs, "/root/a")
	assert.Equal(t, 2, faulty.Calls("/root/a"))

	stats := cs.Stats()
	assert.False(t, stats.CacheEnabled)
	assert.Zero(t, stats.Attempts)

	// Tracking keeps working without a cache.
	assert.True(t, cs.WasExpanded("/root/a"))
	assert.True(t, cs.WasDiscovered("/root/a/x"))
}

func TestInvalidate(t *testing.T) {
	ms := source.NewMemorySource()
	ms.AddAll("/dir1/sub/leaf", "/dir1x/leaf", "/dir2/leaf")

	newCached := func(t *testing.T) *CachingSource {
		cs, err := New(ms)
		require.NoError(t, err)
		t.Cleanup(func() { cs.Close() })
		for _, p := range []string{"/dir1", "/dir1/sub", "/dir1x", "/dir2"} {
			expandAll(t, cs, p)
		}
		return cs
	}
	ctx := context.Background()

	t.Run("exact", func(t *testing.T) {
		cs := newCached(t)
		assert.Equal(t, 1, cs.Invalidate(ctx, "/dir1", false))
		assert.Equal(t, 3, cs.Stats().Entries)
	})

	t.Run("deep is segment-wise", func(t *testing.T) {
		cs := newCached(t)
		assert.Equal(t, 2, cs.Invalidate(ctx, "/dir1", true))

		// /dir1x shares the prefix bytes but not the segment; it survives.
		assert.Equal(t, 2, cs.Stats().Entries)
		assert.Equal(t, 0, cs.Invalidate(ctx, "/dir1", true))
	})

	t.Run("empty pattern clears all", func(t *testing.T) {
		cs := newCached(t)
		assert.Equal(t, 4, cs.Invalidate(ctx, "", true))
		assert.Equal(t, 0, cs.Stats().Entries)
	})

	t.Run("invalidation does not mark evicted", func(t *testing.T) {
		cs := newCached(t)
		cs.Invalidate(ctx, "/dir1", true)
		assert.Equal(t, KnownPresent, cs.ExpansionState("/dir1"),
			"explicit invalidation is not data loss")
	})
}

func TestInvalidateNode(t *testing.T) {
	cs, err := New(buildTree(t))
	require.NoError(t, err)
	defer cs.Close()
	ctx := context.Background()

	expandAll(t, cs, "/root/a")

	_, err = cs.InvalidateNode(ctx, nil, false)
	require.ErrorIs(t, err, ErrNilNode)

	// An empty node identity is invalid, not a clear-all.
	_, err = cs.InvalidateNode(ctx, source.PathNode(""), false)
	require.ErrorIs(t, err, ErrEmptyPath)
	assert.Equal(t, 1, cs.Stats().Entries, "malformed node must not clear the cache")

	n, err := cs.InvalidateNode(ctx, source.PathNode("/root/a"), false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInvalidateNodes(t *testing.T) {
	cs, err := New(buildTree(t))
	require.NoError(t, err)
	defer cs.Close()
	ctx := context.Background()

	expandAll(t, cs, "/root")
	expandAll(t, cs, "/root/a")

	nodes := []source.Node{source.PathNode("/root"), nil, source.PathNode("/root/a")}

	t.Run("fail fast", func(t *testing.T) {
		_, err := cs.InvalidateNodes(ctx, nodes, false, false)
		require.Error(t, err)
		var inv *ErrInvalidation
		require.ErrorAs(t, err, &inv)
		assert.ErrorIs(t, err, ErrNilNode)
	})

	t.Run("ignore errors", func(t *testing.T) {
		expandAll(t, cs, "/root")
		expandAll(t, cs, "/root/a")
		n, err := cs.InvalidateNodes(ctx, nodes, false, true)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestClearCacheKeepsTracking(t *testing.T) {
	cs, err := New(buildTree(t))
	require.NoError(t, err)
	defer cs.Close()

	expandAll(t, cs, "/root/a")
	cs.ClearCache()

	assert.Equal(t, 0, cs.Stats().Entries)
	assert.True(t, cs.WasExpanded("/root/a"))

	cs.ClearTracking()
	assert.False(t, cs.WasExpanded("/root/a"))
}

func TestWithoutTracking(t *testing.T) {
	cs, err := New(buildTree(t), WithoutTracking())
	require.NoError(t, err)
	defer cs.Close()

	expandAll(t, cs, "/root/a")
	assert.False(t, cs.WasExpanded("/root/a"))
	assert.Equal(t, KnownAbsent, cs.ExpansionState("/root/a"))
	assert.False(t, cs.Stats().TrackingEnabled)
}

func TestStatsSnapshot(t *testing.T) {
	cs, err := New(buildTree(t), WithMetricsCollector(&BasicMetricsCollector{}))
	require.NoError(t, err)
	defer cs.Close()

	expandAll(t, cs, "/root")
	expandAll(t, cs, "/root/a")
	expandAll(t, cs, "/root/a")

	stats := cs.Stats()
	assert.True(t, stats.CacheEnabled)
	assert.True(t, stats.TrackingEnabled)
	assert.Equal(t, 2, stats.Entries)
	assert.Positive(t, stats.MemoryBytes)
	assert.Equal(t, int64(3), stats.Attempts)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, 5, stats.Discovered, "/root, /root/a, /root/b and the two leaves")
	assert.Equal(t, 2, stats.Expanded)
	assert.Equal(t, 3, stats.DiscoveryDepths.Max)
}

func TestSpillRequiresResolver(t *testing.T) {
	// LocalSource implements Resolver; wrap it in a bare Source to hide that.
	_, err := New(bareSource{buildTree(t)}, WithSpill(t.TempDir()))
	require.ErrorIs(t, err, ErrSpillUnsupported)
}

type bareSource struct {
	source.Source
}

func TestCachingSourceIsASource(t *testing.T) {
	inner, err := New(buildTree(t))
	require.NoError(t, err)
	defer inner.Close()

	// Stacking works: a CachingSource can wrap another Source consumer.
	outer, err := New(inner, WithMaxMemoryMB(-1))
	require.NoError(t, err)
	defer outer.Close()

	var got []string
	for child, e := range outer.Children(context.Background(), source.PathNode("/root/a")) {
		require.NoError(t, e)
		got = append(got, child.Path())
	}
	assert.Equal(t, []string{"/root/a/x", "/root/a/y"}, got)
}
