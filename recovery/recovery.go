package recovery

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/hupe1980/treewalk/internal/pathutil"
	"github.com/hupe1980/treewalk/source"
)

// Action is a policy's verdict after a failed enumeration attempt.
type Action uint8

const (
	// Abort propagates the error to the consumer, ending the enumeration.
	Abort Action = iota
	// Skip swallows the error; the node's enumeration ends cleanly with the
	// children seen so far.
	Skip
	// Retry re-enumerates the node. Children already yielded are not
	// repeated.
	Retry
)

// Policy decides how to handle an enumeration failure. attempt starts at 1.
type Policy func(ctx context.Context, node source.Node, attempt int, err error) Action

// FailFast propagates every error immediately. Equivalent to an undecorated
// source; useful as an explicit default.
func FailFast() Policy {
	return func(context.Context, source.Node, int, error) Action {
		return Abort
	}
}

// SkipFailures swallows every error. Combine with Failures to collect what
// was skipped.
func SkipFailures() Policy {
	return func(context.Context, source.Node, int, error) Action {
		return Skip
	}
}

// Collect swallows every error like SkipFailures; the name documents intent
// when the caller's point is inspecting Failures afterwards.
func Collect() Policy {
	return SkipFailures()
}

// RetryWithBackoff retries up to maxAttempts total attempts, sleeping
// backoff*attempt between tries, then falls through to the given fallback
// action.
func RetryWithBackoff(maxAttempts int, backoff time.Duration, fallback Action) Policy {
	return func(ctx context.Context, _ source.Node, attempt int, _ error) Action {
		if attempt >= maxAttempts {
			return fallback
		}
		if backoff > 0 {
			select {
			case <-ctx.Done():
				return Abort
			case <-time.After(backoff * time.Duration(attempt)):
			}
		}
		return Retry
	}
}

// Failure records an error the policy swallowed or gave up on.
type Failure struct {
	Path     string
	Attempts int
	Err      error
	At       time.Time
}

// Source decorates a source.Source with a failure policy. Every failure the
// policy does not resolve by a successful retry is recorded and retrievable
// via Failures.
type Source struct {
	base   source.Source
	policy Policy

	mu       sync.Mutex
	failures []Failure
}

// Compile time check to ensure Source satisfies the source interfaces.
var (
	_ source.Source   = (*Source)(nil)
	_ source.Resolver = (*Source)(nil)
)

// New decorates base with policy. A nil policy means FailFast.
func New(base source.Source, policy Policy) *Source {
	if policy == nil {
		policy = FailFast()
	}
	return &Source{base: base, policy: policy}
}

// Children implements source.Source, applying the policy to enumeration
// errors. On retry the node is re-enumerated from scratch but children
// already delivered are deduplicated by path, so consumers never see a child
// twice.
func (s *Source) Children(ctx context.Context, node source.Node) iter.Seq2[source.Node, error] {
	return func(yield func(source.Node, error) bool) {
		seen := make(map[string]struct{})
		attempt := 0

		for {
			attempt++

			var failed error
			for child, err := range s.base.Children(ctx, node) {
				if err != nil {
					failed = err
					break
				}
				p := pathutil.Normalize(child.Path())
				if _, dup := seen[p]; dup {
					continue
				}
				seen[p] = struct{}{}
				if !yield(child, nil) {
					return
				}
			}
			if failed == nil {
				return
			}

			switch s.policy(ctx, node, attempt, failed) {
			case Retry:
				continue
			case Skip:
				s.record(node, attempt, failed)
				return
			default:
				s.record(node, attempt, failed)
				yield(nil, failed)
				return
			}
		}
	}
}

// Depth implements source.Source.
func (s *Source) Depth(node source.Node) (int, error) {
	return s.base.Depth(node)
}

// Parent implements source.Source.
func (s *Source) Parent(node source.Node) (source.Node, bool) {
	return s.base.Parent(node)
}

// NodeAt implements source.Resolver when the base source does, so spill
// stays available through the decorator.
func (s *Source) NodeAt(path string, depth int) source.Node {
	if r, ok := s.base.(source.Resolver); ok {
		return r.NodeAt(path, depth)
	}
	return source.PathNode(pathutil.Normalize(path))
}

func (s *Source) record(node source.Node, attempts int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, Failure{
		Path:     pathutil.Normalize(node.Path()),
		Attempts: attempts,
		Err:      err,
		At:       time.Now(),
	})
}

// Failures returns a copy of all recorded failures.
func (s *Source) Failures() []Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Failure, len(s.failures))
	copy(out, s.failures)
	return out
}

// Reset drops recorded failures.
func (s *Source) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = nil
}
