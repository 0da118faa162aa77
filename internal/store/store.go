package store

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/hupe1980/treewalk/internal/pathutil"
	"github.com/hupe1980/treewalk/resource"
	"github.com/hupe1980/treewalk/source"
)

// Key identifies a cached child listing. The same path may be cached at
// different enumeration depths; shallow and deep listings are not
// interchangeable.
type Key struct {
	Path  string
	Depth int
}

// Entry is a cached child-listing result. Entries are immutable after Put;
// updates replace the whole entry.
type Entry struct {
	Children []source.Node
	Depth    int
	// Size is the caller-declared size estimate in bytes. It is the unit of
	// memory accounting; the store never re-measures.
	Size     int64
	CachedAt time.Time
}

// Config holds store settings.
type Config struct {
	// Protected enables admission checks and LRU eviction. When false the
	// store never rejects, never evicts and Get does not touch recency
	// (fast mode: unbounded growth is the accepted trade-off).
	Protected bool

	// MaxMemoryBytes bounds the sum of entry sizes. 0 disables the byte
	// bound while keeping the LRU bookkeeping.
	MaxMemoryBytes int64

	// MaxEntries bounds the entry count. 0 means unbounded.
	MaxEntries int

	// MaxPathDepth rejects keys whose path has more segments. 0 disables.
	MaxPathDepth int

	// MaxCacheDepth rejects entries whose depth attribute exceeds it.
	// 0 disables.
	MaxCacheDepth int

	// OnEvict is called for every entry whose data is definitively lost to
	// capacity eviction (not for explicit invalidation, and not when the
	// entry was demoted to the spill tier instead).
	OnEvict func(Key)

	// Controller optionally charges entry bytes against a shared memory
	// budget. A denied charge prevents caching, never fails the caller.
	Controller *resource.Controller

	// Spill is the optional L2 tier receiving capacity-evicted entries.
	Spill *Spill
}

// Store is a bounded (path, depth)-keyed LRU cache of child listings.
//
// Memory accounting is exact: at any time the tracked byte count equals the
// sum of Size over all present entries.
type Store struct {
	mu        sync.Mutex
	cfg       Config
	items     map[Key]*list.Element
	evictList *list.List
	memory    int64
}

type storeItem struct {
	key   Key
	entry *Entry
}

// New creates a store with the given config.
func New(cfg Config) *Store {
	return &Store{
		cfg:       cfg,
		items:     make(map[Key]*list.Element),
		evictList: list.New(),
	}
}

// Get returns the cached entry for key. In protected mode a hit refreshes
// the key's recency; in fast mode ordering is irrelevant and nothing is
// mutated. On a memory miss the spill tier is consulted and a hit there is
// promoted back into memory.
func (s *Store) Get(ctx context.Context, key Key) (*Entry, bool) {
	s.mu.Lock()
	if elem, ok := s.items[key]; ok {
		if s.cfg.Protected {
			s.evictList.MoveToFront(elem)
		}
		entry := elem.Value.(*storeItem).entry
		s.mu.Unlock()
		return entry, true
	}
	s.mu.Unlock()

	if s.cfg.Spill == nil {
		return nil, false
	}
	entry, ok := s.cfg.Spill.Lookup(ctx, key)
	if !ok {
		return nil, false
	}
	// Promote, moving the entry rather than copying it: once the memory
	// tier holds it the spilled file is dropped so the key never counts in
	// both tiers. If admission declines the spill copy stays and the entry
	// is still returned.
	if s.Put(key, entry) {
		s.cfg.Spill.Invalidate(func(k Key) bool { return k == key })
	}
	return entry, true
}

// Contains reports whether key is present in the memory tier without
// touching recency.
func (s *Store) Contains(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[key]
	return ok
}

// Put inserts or replaces the entry for key. Returns false if the entry was
// rejected by the admission policy; a rejected Put mutates nothing.
func (s *Store) Put(key Key, entry *Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.shouldCache(key, entry) {
		return false
	}

	// Charge the shared budget before touching any state so a denied Put
	// leaves the store exactly as it was.
	if s.cfg.Controller != nil && s.cfg.Protected {
		if !s.cfg.Controller.TryAcquireMemory(entry.Size) {
			return false
		}
	}

	// Replacement is full: drop the old entry first, then insert as new.
	if elem, ok := s.items[key]; ok {
		s.removeElement(elem, evictReasonReplace)
	}

	if s.cfg.Protected && s.cfg.MaxMemoryBytes > 0 {
		// Evict until the new entry fits. Single pass: if the budget still
		// does not fit afterwards the loop has emptied the store and the
		// admission check above already guaranteed the entry alone fits.
		for s.memory+entry.Size > s.cfg.MaxMemoryBytes {
			back := s.evictList.Back()
			if back == nil {
				break
			}
			s.removeElement(back, evictReasonCapacity)
		}
	}

	elem := s.evictList.PushFront(&storeItem{key: key, entry: entry})
	s.items[key] = elem
	s.memory += entry.Size

	if s.cfg.Protected && s.cfg.MaxEntries > 0 && len(s.items) > s.cfg.MaxEntries {
		if back := s.evictList.Back(); back != nil {
			s.removeElement(back, evictReasonCapacity)
		}
	}

	return true
}

// shouldCache is the admission policy. All checks are bypassed in fast mode.
func (s *Store) shouldCache(key Key, entry *Entry) bool {
	if !s.cfg.Protected {
		return true
	}
	if s.cfg.MaxMemoryBytes > 0 && entry.Size > s.cfg.MaxMemoryBytes {
		return false
	}
	if s.cfg.MaxPathDepth > 0 && pathutil.Depth(key.Path) > s.cfg.MaxPathDepth {
		return false
	}
	if s.cfg.MaxCacheDepth > 0 && entry.Depth > s.cfg.MaxCacheDepth {
		return false
	}
	return true
}

// Invalidate removes all entries matching the predicate from both tiers and
// returns the number removed from the memory tier.
func (s *Store) Invalidate(predicate func(Key) bool) int {
	s.mu.Lock()

	var toRemove []*list.Element
	for key, elem := range s.items {
		if predicate(key) {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		s.removeElement(elem, evictReasonInvalidate)
	}
	s.mu.Unlock()

	if s.cfg.Spill != nil {
		s.cfg.Spill.Invalidate(predicate)
	}
	return len(toRemove)
}

// Delete removes the exact key. Reports whether it was present in memory.
func (s *Store) Delete(key Key) bool {
	s.mu.Lock()
	elem, ok := s.items[key]
	if ok {
		s.removeElement(elem, evictReasonInvalidate)
	}
	s.mu.Unlock()

	if s.cfg.Spill != nil {
		s.cfg.Spill.Invalidate(func(k Key) bool { return k == key })
	}
	return ok
}

// Clear empties both tiers and returns the prior memory-tier entry count.
func (s *Store) Clear() int {
	s.mu.Lock()
	n := len(s.items)
	for _, elem := range s.items {
		item := elem.Value.(*storeItem)
		s.memory -= item.entry.Size
		if s.cfg.Controller != nil && s.cfg.Protected {
			s.cfg.Controller.ReleaseMemory(item.entry.Size)
		}
	}
	s.items = make(map[Key]*list.Element)
	s.evictList.Init()
	s.mu.Unlock()

	if s.cfg.Spill != nil {
		s.cfg.Spill.Clear()
	}
	return n
}

// Len returns the number of entries in the memory tier.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// MemoryBytes returns the exact accounted size of the memory tier.
func (s *Store) MemoryBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memory
}

// SpillLen returns the number of entries in the spill tier, 0 without one.
func (s *Store) SpillLen() int {
	if s.cfg.Spill == nil {
		return 0
	}
	return s.cfg.Spill.Len()
}

// Keys returns the memory-tier keys from most to least recently used.
func (s *Store) Keys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]Key, 0, len(s.items))
	for elem := s.evictList.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*storeItem).key)
	}
	return keys
}

// Close releases the spill tier.
func (s *Store) Close() error {
	if s.cfg.Spill != nil {
		return s.cfg.Spill.Close()
	}
	return nil
}

type evictReason uint8

const (
	evictReasonCapacity evictReason = iota
	evictReasonInvalidate
	evictReasonReplace
)

// removeElement unlinks an entry and settles accounting. Capacity evictions
// are demoted to the spill tier when possible; only definitive data loss
// reaches OnEvict.
func (s *Store) removeElement(elem *list.Element, reason evictReason) {
	item := elem.Value.(*storeItem)
	s.evictList.Remove(elem)
	delete(s.items, item.key)
	s.memory -= item.entry.Size
	if s.cfg.Controller != nil && s.cfg.Protected {
		s.cfg.Controller.ReleaseMemory(item.entry.Size)
	}

	if reason != evictReasonCapacity {
		return
	}
	if s.cfg.Spill != nil && s.cfg.Spill.Demote(item.key, item.entry) {
		return
	}
	if s.cfg.OnEvict != nil {
		s.cfg.OnEvict(item.key)
	}
}
