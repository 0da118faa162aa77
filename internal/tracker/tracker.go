package tracker

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// State is the answer to a tri-state membership query.
type State uint8

const (
	// KnownAbsent means the path was never recorded (or its record was
	// cleared by a wholesale reset).
	KnownAbsent State = iota
	// KnownPresent means the path is in the active set.
	KnownPresent
	// UnknownEvicted means the path was recorded but its data has since
	// been evicted; the tracker cannot confirm details anymore.
	// Only returned in safe mode.
	UnknownEvicted
)

func (s State) String() string {
	switch s {
	case KnownPresent:
		return "present"
	case UnknownEvicted:
		return "evicted"
	default:
		return "absent"
	}
}

// Config holds tracker settings.
type Config struct {
	// SafeMode enables the evicted side-sets so queries can distinguish
	// "never seen" from "seen, data since evicted".
	SafeMode bool

	// MaxTrackedNodes caps the number of discovered paths. When the cap is
	// reached all tracker state is cleared wholesale before the next record.
	// 0 means unbounded.
	MaxTrackedNodes int
}

// Tracker records which paths were discovered (seen as a child) and which
// were expanded (had their children enumerated), with per-path depths.
//
// Membership lives in roaring bitmaps over interned path IDs; the interner
// is append-only between wholesale resets.
type Tracker struct {
	mu  sync.Mutex
	cfg Config

	ids   map[string]uint32
	paths []string

	discovered *roaring.Bitmap
	expanded   *roaring.Bitmap

	// nil unless SafeMode
	evictedDiscovered *roaring.Bitmap
	evictedExpanded   *roaring.Bitmap

	discoveredDepth map[uint32]int
	expandedDepth   map[uint32]int
}

// New creates an empty tracker.
func New(cfg Config) *Tracker {
	t := &Tracker{cfg: cfg}
	t.reset()
	return t
}

func (t *Tracker) reset() {
	t.ids = make(map[string]uint32)
	t.paths = t.paths[:0]
	t.discovered = roaring.New()
	t.expanded = roaring.New()
	t.discoveredDepth = make(map[uint32]int)
	t.expandedDepth = make(map[uint32]int)
	if t.cfg.SafeMode {
		t.evictedDiscovered = roaring.New()
		t.evictedExpanded = roaring.New()
	} else {
		t.evictedDiscovered = nil
		t.evictedExpanded = nil
	}
}

// intern returns the stable ID for path, allocating one if needed.
func (t *Tracker) intern(path string) uint32 {
	if id, ok := t.ids[path]; ok {
		return id
	}
	id := uint32(len(t.paths))
	t.ids[path] = id
	t.paths = append(t.paths, path)
	return id
}

// enforceCap clears all state wholesale once the discovery cap is reached.
// Coarser than the store's LRU eviction, but bounded and cheap.
func (t *Tracker) enforceCap() {
	if t.cfg.MaxTrackedNodes <= 0 {
		return
	}
	if int(t.discovered.GetCardinality()) >= t.cfg.MaxTrackedNodes {
		t.reset()
	}
}

// TrackDiscovery records that path was seen as a child at depth.
// Only the first discovery sets the recorded depth; re-discovery never
// overwrites it.
func (t *Tracker) TrackDiscovery(path string, depth int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trackDiscoveryLocked(path, depth)
}

func (t *Tracker) trackDiscoveryLocked(path string, depth int) {
	t.enforceCap()

	id := t.intern(path)
	if t.discovered.Contains(id) {
		return
	}
	t.discovered.Add(id)
	if t.evictedDiscovered != nil {
		// Re-discovery resurrects an evicted record.
		t.evictedDiscovered.Remove(id)
	}
	if _, ok := t.discoveredDepth[id]; !ok {
		t.discoveredDepth[id] = depth
	}
}

// TrackExpansion records that path's children were enumerated at depth.
// The recorded depth is overwritten on every call: a node can legitimately
// be re-expanded and the most recent depth context is the useful one.
//
// An expansion of an untracked path implicitly discovers it at the same
// depth, so the traversal root needs no explicit discovery call.
func (t *Tracker) TrackExpansion(path string, depth int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.enforceCap()

	id := t.intern(path)
	if !t.discovered.Contains(id) {
		t.trackDiscoveryLocked(path, depth)
	}
	t.expanded.Add(id)
	if t.evictedExpanded != nil {
		t.evictedExpanded.Remove(id)
	}
	t.expandedDepth[id] = depth
}

// WasDiscovered reports whether path is in the active discovered set.
func (t *Tracker) WasDiscovered(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.ids[path]
	return ok && t.discovered.Contains(id)
}

// WasExpanded reports whether path is in the active expanded set.
func (t *Tracker) WasExpanded(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.ids[path]
	return ok && t.expanded.Contains(id)
}

// DiscoveryState returns the tri-state discovery membership for path.
func (t *Tracker) DiscoveryState(path string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state(path, t.discovered, t.evictedDiscovered)
}

// ExpansionState returns the tri-state expansion membership for path.
func (t *Tracker) ExpansionState(path string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state(path, t.expanded, t.evictedExpanded)
}

func (t *Tracker) state(path string, active, evicted *roaring.Bitmap) State {
	id, ok := t.ids[path]
	if !ok {
		return KnownAbsent
	}
	if active.Contains(id) {
		return KnownPresent
	}
	if evicted != nil && evicted.Contains(id) {
		return UnknownEvicted
	}
	return KnownAbsent
}

// DiscoveryDepth returns the first-discovery depth of path.
func (t *Tracker) DiscoveryDepth(path string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.ids[path]
	if !ok {
		return 0, false
	}
	d, ok := t.discoveredDepth[id]
	return d, ok
}

// ExpansionDepth returns the latest expansion depth of path.
func (t *Tracker) ExpansionDepth(path string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.ids[path]
	if !ok {
		return 0, false
	}
	d, ok := t.expandedDepth[id]
	return d, ok
}

// MarkEvicted moves path from the active sets to the evicted side-sets.
// No-op unless safe mode is enabled. Paths never recorded stay absent.
func (t *Tracker) MarkEvicted(path string) {
	if !t.cfg.SafeMode {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.ids[path]
	if !ok {
		return
	}
	if t.discovered.Contains(id) {
		t.discovered.Remove(id)
		t.evictedDiscovered.Add(id)
		delete(t.discoveredDepth, id)
	}
	if t.expanded.Contains(id) {
		t.expanded.Remove(id)
		t.evictedExpanded.Add(id)
		delete(t.expandedDepth, id)
	}
}

// DiscoveredCount returns the number of actively discovered paths.
func (t *Tracker) DiscoveredCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int(t.discovered.GetCardinality())
}

// ExpandedCount returns the number of actively expanded paths.
func (t *Tracker) ExpandedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int(t.expanded.GetCardinality())
}

// DepthSummary aggregates recorded depths.
type DepthSummary struct {
	Min int
	Max int
	Avg float64
}

// DiscoveryDepthSummary computes min/avg/max over recorded discovery depths.
// The zero summary is returned when nothing is recorded.
func (t *Tracker) DiscoveryDepthSummary() DepthSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return summarize(t.discoveredDepth)
}

// ExpansionDepthSummary computes min/avg/max over recorded expansion depths.
func (t *Tracker) ExpansionDepthSummary() DepthSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return summarize(t.expandedDepth)
}

func summarize(depths map[uint32]int) DepthSummary {
	if len(depths) == 0 {
		return DepthSummary{}
	}

	var s DepthSummary
	first := true
	total := 0
	for _, d := range depths {
		if first {
			s.Min, s.Max = d, d
			first = false
		} else {
			if d < s.Min {
				s.Min = d
			}
			if d > s.Max {
				s.Max = d
			}
		}
		total += d
	}
	s.Avg = float64(total) / float64(len(depths))
	return s
}

// Clear resets all tracker state, including the evicted side-sets.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset()
}
