package source

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/hupe1980/treewalk/internal/pathutil"
)

// Fault defines specific failure behavior for one path.
type Fault struct {
	// FailAfterChildren fails enumeration after this many children were
	// yielded. -1 disables mid-stream failure, 0 fails immediately.
	FailAfterChildren int
	// FailCount limits how many calls fail before the fault clears itself.
	// 0 means the fault never clears.
	FailCount int
	// Err is the error to inject. Defaults to a generic injected error.
	Err error
}

// FaultySource is a Source wrapper that injects errors per path.
// Used to exercise recovery policies and mid-stream failure handling.
type FaultySource struct {
	Base Source

	mu    sync.Mutex
	rules map[string]*Fault
	calls map[string]int
}

// NewFaultySource creates a FaultySource wrapping base.
func NewFaultySource(base Source) *FaultySource {
	return &FaultySource{
		Base:  base,
		rules: make(map[string]*Fault),
		calls: make(map[string]int),
	}
}

// FailOn installs a fault for path.
func (f *FaultySource) FailOn(path string, fault Fault) {
	if fault.Err == nil {
		fault.Err = fmt.Errorf("injected fault for %s", path)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[pathutil.Normalize(path)] = &fault
}

// ClearFaults removes all installed faults.
func (f *FaultySource) ClearFaults() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = make(map[string]*Fault)
	f.calls = make(map[string]int)
}

// Calls returns how many enumerations were attempted for path.
func (f *FaultySource) Calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[pathutil.Normalize(path)]
}

// fault returns the active fault for path and counts the call.
func (f *FaultySource) fault(path string) *Fault {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[path]++
	rule, ok := f.rules[path]
	if !ok {
		return nil
	}
	if rule.FailCount > 0 && f.calls[path] > rule.FailCount {
		return nil
	}
	return rule
}

// Children implements Source.
func (f *FaultySource) Children(ctx context.Context, node Node) iter.Seq2[Node, error] {
	return func(yield func(Node, error) bool) {
		p := pathutil.Normalize(node.Path())
		rule := f.fault(p)

		if rule != nil && rule.FailAfterChildren == 0 {
			yield(nil, rule.Err)
			return
		}

		yielded := 0
		for child, err := range f.Base.Children(ctx, node) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(child, nil) {
				return
			}
			yielded++
			if rule != nil && rule.FailAfterChildren > 0 && yielded >= rule.FailAfterChildren {
				yield(nil, rule.Err)
				return
			}
		}
	}
}

// Depth implements Source.
func (f *FaultySource) Depth(node Node) (int, error) {
	return f.Base.Depth(node)
}

// Parent implements Source.
func (f *FaultySource) Parent(node Node) (Node, bool) {
	return f.Base.Parent(node)
}

// NodeAt implements Resolver when the base source does.
func (f *FaultySource) NodeAt(path string, depth int) Node {
	if r, ok := f.Base.(Resolver); ok {
		return r.NodeAt(path, depth)
	}
	return PathNode(pathutil.Normalize(path))
}
