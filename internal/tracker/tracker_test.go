package tracker

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker_DiscoveryDepthIsFirstSeen(t *testing.T) {
	tr := New(Config{})

	tr.TrackDiscovery("/a", 1)
	tr.TrackDiscovery("/a", 3)

	d, ok := tr.DiscoveryDepth("/a")
	assert.True(t, ok)
	assert.Equal(t, 1, d, "re-discovery must not overwrite first-seen depth")
}

func TestTracker_ExpansionDepthIsLatest(t *testing.T) {
	tr := New(Config{})

	tr.TrackExpansion("/a", 1)
	tr.TrackExpansion("/a", 2)

	d, ok := tr.ExpansionDepth("/a")
	assert.True(t, ok)
	assert.Equal(t, 2, d, "re-expansion overwrites recorded depth")
}

func TestTracker_ExpansionAutoDiscovers(t *testing.T) {
	tr := New(Config{})

	tr.TrackExpansion("/root", 0)

	assert.True(t, tr.WasDiscovered("/root"))
	assert.True(t, tr.WasExpanded("/root"))

	d, ok := tr.DiscoveryDepth("/root")
	assert.True(t, ok)
	assert.Equal(t, 0, d)
}

func TestTracker_DiscoveredVsExpanded(t *testing.T) {
	tr := New(Config{})

	// Expand "/" and "/a" only; their children are merely discovered.
	tr.TrackExpansion("/", 0)
	for _, p := range []string{"/a", "/b", "/c"} {
		tr.TrackDiscovery(p, 1)
	}
	tr.TrackExpansion("/a", 1)
	tr.TrackDiscovery("/a/1", 2)
	tr.TrackDiscovery("/a/2", 2)

	assert.True(t, tr.WasExpanded("/"))
	assert.True(t, tr.WasExpanded("/a"))
	assert.False(t, tr.WasExpanded("/a/1"))
	assert.True(t, tr.WasDiscovered("/a/1"))
	assert.False(t, tr.WasDiscovered("/nope"))
}

func TestTracker_TriStateSafeMode(t *testing.T) {
	tr := New(Config{SafeMode: true})

	tr.TrackDiscovery("/a", 1)
	tr.TrackExpansion("/a", 1)

	assert.Equal(t, KnownPresent, tr.DiscoveryState("/a"))
	assert.Equal(t, KnownPresent, tr.ExpansionState("/a"))
	assert.Equal(t, KnownAbsent, tr.DiscoveryState("/never"))

	tr.MarkEvicted("/a")

	assert.Equal(t, UnknownEvicted, tr.DiscoveryState("/a"))
	assert.Equal(t, UnknownEvicted, tr.ExpansionState("/a"))
	assert.False(t, tr.WasDiscovered("/a"))
	assert.False(t, tr.WasExpanded("/a"))

	// Depth records are gone with the active membership.
	_, ok := tr.DiscoveryDepth("/a")
	assert.False(t, ok)
	_, ok = tr.ExpansionDepth("/a")
	assert.False(t, ok)
}

func TestTracker_EvictionIsMoveNotCopy(t *testing.T) {
	tr := New(Config{SafeMode: true})

	tr.TrackDiscovery("/a", 1)
	tr.MarkEvicted("/a")

	// Exactly one of the three states holds.
	assert.Equal(t, UnknownEvicted, tr.DiscoveryState("/a"))

	// Re-discovery moves it back to present.
	tr.TrackDiscovery("/a", 4)
	assert.Equal(t, KnownPresent, tr.DiscoveryState("/a"))

	// The first-seen depth restarts after eviction wiped it.
	d, ok := tr.DiscoveryDepth("/a")
	assert.True(t, ok)
	assert.Equal(t, 4, d)
}

func TestTracker_MarkEvictedWithoutSafeMode(t *testing.T) {
	tr := New(Config{})

	tr.TrackDiscovery("/a", 1)
	tr.MarkEvicted("/a")

	// Without safe mode MarkEvicted is a no-op and only the binary states
	// are ever returned.
	assert.Equal(t, KnownPresent, tr.DiscoveryState("/a"))
	assert.Equal(t, KnownAbsent, tr.DiscoveryState("/b"))
}

func TestTracker_MarkEvictedUnknownPath(t *testing.T) {
	tr := New(Config{SafeMode: true})

	tr.MarkEvicted("/never")
	assert.Equal(t, KnownAbsent, tr.DiscoveryState("/never"),
		"a path never recorded must stay absent, not become evicted")
}

func TestTracker_MaxTrackedNodesResetsWholesale(t *testing.T) {
	tr := New(Config{MaxTrackedNodes: 3})

	tr.TrackDiscovery("/a", 1)
	tr.TrackDiscovery("/b", 1)
	tr.TrackDiscovery("/c", 1)
	assert.Equal(t, 3, tr.DiscoveredCount())

	// Cap reached: the next record clears everything first.
	tr.TrackDiscovery("/d", 1)
	assert.Equal(t, 1, tr.DiscoveredCount())
	assert.True(t, tr.WasDiscovered("/d"))
	assert.False(t, tr.WasDiscovered("/a"))
}

func TestTracker_DepthSummaries(t *testing.T) {
	tr := New(Config{})

	assert.Equal(t, DepthSummary{}, tr.DiscoveryDepthSummary())

	tr.TrackDiscovery("/a", 1)
	tr.TrackDiscovery("/a/b", 2)
	tr.TrackDiscovery("/a/b/c", 3)
	tr.TrackExpansion("/a", 1)

	ds := tr.DiscoveryDepthSummary()
	assert.Equal(t, 1, ds.Min)
	assert.Equal(t, 3, ds.Max)
	assert.InDelta(t, 2.0, ds.Avg, 1e-9)

	es := tr.ExpansionDepthSummary()
	assert.Equal(t, 1, es.Min)
	assert.Equal(t, 1, es.Max)
}

func TestTracker_Clear(t *testing.T) {
	tr := New(Config{SafeMode: true})

	tr.TrackDiscovery("/a", 1)
	tr.TrackExpansion("/a", 1)
	tr.MarkEvicted("/a")
	tr.TrackDiscovery("/b", 2)

	tr.Clear()

	assert.Equal(t, 0, tr.DiscoveredCount())
	assert.Equal(t, 0, tr.ExpandedCount())
	assert.Equal(t, KnownAbsent, tr.DiscoveryState("/a"))
	assert.Equal(t, KnownAbsent, tr.DiscoveryState("/b"))
}

func TestTracker_ManyPaths(t *testing.T) {
	tr := New(Config{SafeMode: true})

	for i := 0; i < 10_000; i++ {
		tr.TrackDiscovery(fmt.Sprintf("/dir/%d", i), i%32)
	}
	assert.Equal(t, 10_000, tr.DiscoveredCount())
	assert.True(t, tr.WasDiscovered("/dir/9999"))
	assert.False(t, tr.WasExpanded("/dir/9999"))
}
