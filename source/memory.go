package source

import (
	"context"
	"iter"
	"sort"
	"sync"

	"github.com/hupe1980/treewalk/internal/pathutil"
)

// MemorySource is an in-memory tree Source for testing and fixtures.
// Thread-safe for concurrent reads and writes.
type MemorySource struct {
	mu       sync.RWMutex
	children map[string][]string
}

// NewMemorySource creates an empty in-memory tree.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		children: make(map[string][]string),
	}
}

// Add registers a path, creating all missing ancestors. Children are kept
// in insertion order per parent.
func (m *MemorySource) Add(path string) {
	p := pathutil.Normalize(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		parent, ok := pathutil.Parent(p)
		if !ok {
			if _, exists := m.children[p]; !exists {
				m.children[p] = nil
			}
			return
		}
		if m.containsLocked(parent, p) {
			return
		}
		m.children[parent] = append(m.children[parent], p)
		if _, exists := m.children[p]; !exists {
			m.children[p] = nil
		}
		p = parent
	}
}

// AddAll registers multiple paths.
func (m *MemorySource) AddAll(paths ...string) {
	for _, p := range paths {
		m.Add(p)
	}
}

// Remove unregisters a path and its descendants.
func (m *MemorySource) Remove(path string) {
	p := pathutil.Normalize(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	for candidate := range m.children {
		if pathutil.IsAncestorOf(p, candidate) {
			delete(m.children, candidate)
		}
	}
	if parent, ok := pathutil.Parent(p); ok {
		kids := m.children[parent]
		for i, k := range kids {
			if k == p {
				m.children[parent] = append(kids[:i:i], kids[i+1:]...)
				break
			}
		}
	}
}

// Len returns the number of registered paths.
func (m *MemorySource) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.children)
}

func (m *MemorySource) containsLocked(parent, child string) bool {
	for _, c := range m.children[parent] {
		if c == child {
			return true
		}
	}
	return false
}

// Children implements Source. The sequence snapshots the child list at the
// start of each range, so it is restartable and safe against mutation.
func (m *MemorySource) Children(ctx context.Context, node Node) iter.Seq2[Node, error] {
	return func(yield func(Node, error) bool) {
		p := pathutil.Normalize(node.Path())

		m.mu.RLock()
		kids, ok := m.children[p]
		snapshot := make([]string, len(kids))
		copy(snapshot, kids)
		m.mu.RUnlock()

		if !ok {
			yield(nil, ErrNotFound)
			return
		}

		for _, child := range snapshot {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(PathNode(child), nil) {
				return
			}
		}
	}
}

// Depth implements Source.
func (m *MemorySource) Depth(node Node) (int, error) {
	return pathutil.Depth(node.Path()), nil
}

// Parent implements Source.
func (m *MemorySource) Parent(node Node) (Node, bool) {
	p, ok := pathutil.Parent(pathutil.Normalize(node.Path()))
	if !ok {
		return nil, false
	}
	return PathNode(p), true
}

// NodeAt implements Resolver.
func (m *MemorySource) NodeAt(path string, _ int) Node {
	return PathNode(pathutil.Normalize(path))
}

// Paths returns all registered paths in sorted order.
func (m *MemorySource) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.children))
	for p := range m.children {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
