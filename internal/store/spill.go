package store

import (
	"container/list"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hupe1980/treewalk/codec"
	"github.com/hupe1980/treewalk/source"
	"golang.org/x/sync/semaphore"
)

// spillMagic marks spill files. The version is bumped on layout changes so a
// stale file is rejected instead of misdecoded.
var spillMagic = [4]byte{'T', 'W', 'S', '1'}

// SpillConfig holds spill-tier settings.
type SpillConfig struct {
	// Dir is the directory holding spill files. It is created if missing
	// and emptied on construction: spilled state never survives a process.
	Dir string

	// MaxSizeBytes bounds the total compressed bytes on disk.
	// 0 means unbounded.
	MaxSizeBytes int64

	// Codec encodes the payload. Defaults to codec.Default.
	Codec codec.Codec

	// Compression selects the payload compressor. Defaults to zstd.
	Compression Compression

	// MaxConcurrentWrites throttles background file writes.
	// Defaults to 4 if <= 0.
	MaxConcurrentWrites int64

	// Resolve rebuilds a child node from its path. Required: spill files
	// persist paths only.
	Resolve func(path string, depth int) source.Node

	// OnEvict is called when a spilled entry is dropped for capacity or a
	// background write fails; at that point the data is definitively lost.
	OnEvict func(Key)
}

// spillPayload is the on-disk representation of an entry.
type spillPayload struct {
	Paths    []string `json:"paths"`
	Depth    int      `json:"depth"`
	Size     int64    `json:"size"`
	CachedAt int64    `json:"cached_at"`
}

type spillItem struct {
	key      Key
	filePath string
	size     int64 // compressed file size

	// pending holds the encoded file content until the background write
	// lands; Lookup serves from it so demoted entries are never invisible.
	pending []byte
}

// Spill is a disk-backed L2 tier for entries evicted from the memory tier.
// It keeps an in-memory LRU index of the files on disk; payloads are encoded
// with the configured codec and compressed.
//
// In-process overflow only: the directory is emptied on New and on Close,
// never trusted across restarts.
type Spill struct {
	mu        sync.Mutex
	cfg       SpillConfig
	items     map[Key]*list.Element
	evictList *list.List
	size      int64
	closed    bool

	writeSem *semaphore.Weighted
	wg       sync.WaitGroup
}

// NewSpill creates a spill tier rooted at cfg.Dir.
func NewSpill(cfg SpillConfig) (*Spill, error) {
	if cfg.Resolve == nil {
		return nil, errors.New("spill: Resolve is required")
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.Default
	}
	if cfg.MaxConcurrentWrites <= 0 {
		cfg.MaxConcurrentWrites = 4
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	if err := cleanDir(cfg.Dir); err != nil {
		return nil, err
	}

	return &Spill{
		cfg:       cfg,
		items:     make(map[Key]*list.Element),
		evictList: list.New(),
		writeSem:  semaphore.NewWeighted(cfg.MaxConcurrentWrites),
	}, nil
}

func cleanDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// Demote accepts an evicted entry, returning false if it cannot be spilled
// (encoding failure, oversized, or tier closed). Acceptance means the entry
// stays reachable through Lookup; the file write happens in the background.
func (s *Spill) Demote(key Key, entry *Entry) bool {
	paths := make([]string, len(entry.Children))
	for i, c := range entry.Children {
		paths[i] = c.Path()
	}

	content, err := s.encode(spillPayload{
		Paths:    paths,
		Depth:    entry.Depth,
		Size:     entry.Size,
		CachedAt: entry.CachedAt.UnixNano(),
	})
	if err != nil {
		return false
	}
	fileSize := int64(len(content))
	if s.cfg.MaxSizeBytes > 0 && fileSize > s.cfg.MaxSizeBytes {
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}

	if elem, ok := s.items[key]; ok {
		s.removeLocked(elem, false)
	}

	item := &spillItem{
		key:      key,
		filePath: filepath.Join(s.cfg.Dir, spillFileName(key)),
		size:     fileSize,
		pending:  content,
	}
	s.items[key] = s.evictList.PushFront(item)
	s.size += fileSize

	if s.cfg.MaxSizeBytes > 0 {
		for s.size > s.cfg.MaxSizeBytes {
			back := s.evictList.Back()
			if back == nil {
				break
			}
			s.removeLocked(back, true)
		}
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go s.write(item, content)
	return true
}

// write lands a demoted entry on disk. Throttled by the write semaphore.
func (s *Spill) write(item *spillItem, content []byte) {
	defer s.wg.Done()

	if err := s.writeSem.Acquire(context.Background(), 1); err != nil {
		return
	}
	defer s.writeSem.Release(1)

	err := writeFileAtomic(item.filePath, content)

	s.mu.Lock()
	defer s.mu.Unlock()

	elem, current := s.items[item.key]
	if !current || elem.Value.(*spillItem) != item {
		// Entry was invalidated or replaced while the write was in flight.
		if err == nil {
			_ = os.Remove(item.filePath)
		}
		return
	}

	if err != nil {
		s.removeLocked(elem, true)
		return
	}
	item.pending = nil
}

func writeFileAtomic(path string, content []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Lookup returns the spilled entry for key, rebuilding child nodes through
// the configured resolver. A hit refreshes recency.
func (s *Spill) Lookup(ctx context.Context, key Key) (*Entry, bool) {
	if err := ctx.Err(); err != nil {
		return nil, false
	}

	s.mu.Lock()
	elem, ok := s.items[key]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	item := elem.Value.(*spillItem)
	content := item.pending
	filePath := item.filePath
	s.evictList.MoveToFront(elem)
	s.mu.Unlock()

	if content == nil {
		var err error
		content, err = os.ReadFile(filePath)
		if err != nil {
			s.mu.Lock()
			if elem, ok := s.items[key]; ok && elem.Value.(*spillItem) == item {
				s.removeLocked(elem, true)
			}
			s.mu.Unlock()
			return nil, false
		}
	}

	payload, err := s.decode(content)
	if err != nil {
		return nil, false
	}

	children := make([]source.Node, len(payload.Paths))
	for i, p := range payload.Paths {
		children[i] = s.cfg.Resolve(p, payload.Depth+1)
	}
	return &Entry{
		Children: children,
		Depth:    payload.Depth,
		Size:     payload.Size,
		CachedAt: time.Unix(0, payload.CachedAt),
	}, true
}

// Invalidate removes all spilled entries matching the predicate and returns
// the number removed. Invalidation is deliberate data disposal, so OnEvict
// does not fire.
func (s *Spill) Invalidate(predicate func(Key) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var toRemove []*list.Element
	for key, elem := range s.items {
		if predicate(key) {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		s.removeLocked(elem, false)
	}
	return len(toRemove)
}

// Clear removes all spilled entries.
func (s *Spill) Clear() {
	s.Invalidate(func(Key) bool { return true })
}

// Len returns the number of spilled entries.
func (s *Spill) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// SizeBytes returns the accounted compressed size of the tier.
func (s *Spill) SizeBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Close waits for in-flight writes and removes the spill directory contents.
func (s *Spill) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.items = make(map[Key]*list.Element)
	s.evictList.Init()
	s.size = 0
	s.mu.Unlock()

	s.wg.Wait()
	return cleanDir(s.cfg.Dir)
}

// removeLocked unlinks an item. evicted marks definitive data loss.
func (s *Spill) removeLocked(elem *list.Element, evicted bool) {
	item := elem.Value.(*spillItem)
	s.evictList.Remove(elem)
	delete(s.items, item.key)
	s.size -= item.size
	if item.pending == nil {
		_ = os.Remove(item.filePath)
	}
	if evicted && s.cfg.OnEvict != nil {
		s.cfg.OnEvict(item.key)
	}
}

// encode builds the self-describing file content:
// magic | compression byte | codec-name length | codec name | compressed payload.
func (s *Spill) encode(payload spillPayload) ([]byte, error) {
	raw, err := s.cfg.Codec.Marshal(payload)
	if err != nil {
		return nil, err
	}
	compressed, err := compress(s.cfg.Compression, raw)
	if err != nil {
		return nil, err
	}

	name := s.cfg.Codec.Name()
	out := make([]byte, 0, len(spillMagic)+2+len(name)+len(compressed))
	out = append(out, spillMagic[:]...)
	out = append(out, byte(s.cfg.Compression))
	out = binary.AppendUvarint(out, uint64(len(name)))
	out = append(out, name...)
	out = append(out, compressed...)
	return out, nil
}

func (s *Spill) decode(content []byte) (spillPayload, error) {
	var payload spillPayload

	if len(content) < len(spillMagic)+2 || [4]byte(content[:4]) != spillMagic {
		return payload, errors.New("spill: bad magic")
	}
	rest := content[4:]
	compression := Compression(rest[0])
	rest = rest[1:]

	nameLen, n := binary.Uvarint(rest)
	if n <= 0 || uint64(len(rest)-n) < nameLen {
		return payload, errors.New("spill: truncated header")
	}
	name := string(rest[n : n+int(nameLen)])
	c, ok := codec.ByName(name)
	if !ok {
		return payload, fmt.Errorf("spill: unknown codec %q", name)
	}
	rest = rest[n+int(nameLen):]

	raw, err := decompress(compression, rest)
	if err != nil {
		return payload, err
	}
	if err := c.Unmarshal(raw, &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

// spillFileName derives a stable file name from the key.
func spillFileName(key Key) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key.Path))
	return fmt.Sprintf("%016x-%d.twc", h.Sum64(), key.Depth)
}
