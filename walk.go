package treewalk

import (
	"context"
	"iter"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/treewalk/internal/pathutil"
	"github.com/hupe1980/treewalk/resource"
	"github.com/hupe1980/treewalk/source"
)

// Expander enumerates the children of a node. *CachingSource satisfies it;
// so does any decorated source built on top of one.
type Expander interface {
	Expand(ctx context.Context, node source.Node, optFns ...func(*ExpandOptions)) iter.Seq2[source.Node, error]
}

// Visit is a single traversal step.
type Visit struct {
	Node  source.Node
	Depth int
}

// WalkOptions configures a traversal.
type WalkOptions struct {
	// MaxDepth stops exploring below this depth. -1 means unlimited.
	MaxDepth int
	// MinDepth suppresses yielding nodes shallower than this; they are
	// still explored.
	MinDepth int
	// PostOrder yields a node after its subtree instead of before.
	// Only meaningful for DFS.
	PostOrder bool
	// Parallelism bounds concurrent expansions in ParallelBFS. 0 derives
	// the limit from Controller, falling back to 8.
	Parallelism int
	// Controller optionally throttles ParallelBFS with shared fetch slots.
	Controller *resource.Controller
}

func applyWalkOptions(optFns []func(*WalkOptions)) WalkOptions {
	o := WalkOptions{MaxDepth: -1}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

func (o WalkOptions) shouldYield(depth int) bool {
	if depth < o.MinDepth {
		return false
	}
	return o.MaxDepth < 0 || depth <= o.MaxDepth
}

func (o WalkOptions) shouldExplore(depth int) bool {
	return o.MaxDepth < 0 || depth < o.MaxDepth
}

// BFS traverses breadth-first from root. Nodes are yielded in
// non-decreasing depth order; siblings keep source order. Already-visited
// paths are skipped, so cyclic sources terminate.
func BFS(ctx context.Context, exp Expander, root source.Node, optFns ...func(*WalkOptions)) iter.Seq2[Visit, error] {
	opts := applyWalkOptions(optFns)

	return func(yield func(Visit, error) bool) {
		if root == nil {
			yield(Visit{}, ErrNilNode)
			return
		}

		visited := map[string]struct{}{pathutil.Normalize(root.Path()): {}}
		queue := []Visit{{Node: root, Depth: 0}}

		for len(queue) > 0 {
			if err := ctx.Err(); err != nil {
				yield(Visit{}, err)
				return
			}

			v := queue[0]
			queue = queue[1:]

			if opts.shouldYield(v.Depth) && !yield(v, nil) {
				return
			}
			if !opts.shouldExplore(v.Depth) {
				continue
			}

			for child, err := range exp.Expand(ctx, v.Node) {
				if err != nil {
					if !yield(Visit{Node: v.Node, Depth: v.Depth}, err) {
						return
					}
					break
				}
				p := pathutil.Normalize(child.Path())
				if _, seen := visited[p]; seen {
					continue
				}
				visited[p] = struct{}{}
				queue = append(queue, Visit{Node: child, Depth: v.Depth + 1})
			}
		}
	}
}

// DFS traverses depth-first from root, pre-order by default and post-order
// with WalkOptions.PostOrder. Already-visited paths are skipped.
func DFS(ctx context.Context, exp Expander, root source.Node, optFns ...func(*WalkOptions)) iter.Seq2[Visit, error] {
	opts := applyWalkOptions(optFns)

	return func(yield func(Visit, error) bool) {
		if root == nil {
			yield(Visit{}, ErrNilNode)
			return
		}

		visited := map[string]struct{}{pathutil.Normalize(root.Path()): {}}

		var walk func(v Visit) bool
		walk = func(v Visit) bool {
			if err := ctx.Err(); err != nil {
				yield(Visit{}, err)
				return false
			}

			if !opts.PostOrder && opts.shouldYield(v.Depth) {
				if !yield(v, nil) {
					return false
				}
			}

			if opts.shouldExplore(v.Depth) {
				for child, err := range exp.Expand(ctx, v.Node) {
					if err != nil {
						if !yield(Visit{Node: v.Node, Depth: v.Depth}, err) {
							return false
						}
						break
					}
					p := pathutil.Normalize(child.Path())
					if _, seen := visited[p]; seen {
						continue
					}
					visited[p] = struct{}{}
					if !walk(Visit{Node: child, Depth: v.Depth + 1}) {
						return false
					}
				}
			}

			if opts.PostOrder && opts.shouldYield(v.Depth) {
				return yield(v, nil)
			}
			return true
		}

		walk(Visit{Node: root, Depth: 0})
	}
}

// ParallelBFS traverses level-synchronously: every node of a level is
// expanded concurrently before the next level starts, so yielded depths are
// non-decreasing. Order within a level is deterministic only up to path
// sorting, not source order. Expansion failures abort the traversal with the
// first error observed; wrap the source with a recovery policy to continue
// past failures instead.
func ParallelBFS(ctx context.Context, exp Expander, root source.Node, optFns ...func(*WalkOptions)) iter.Seq2[Visit, error] {
	opts := applyWalkOptions(optFns)

	limit := opts.Parallelism
	if limit <= 0 && opts.Controller != nil {
		limit = int(opts.Controller.MaxConcurrentFetches())
	}
	if limit <= 0 {
		limit = 8
	}

	return func(yield func(Visit, error) bool) {
		if root == nil {
			yield(Visit{}, ErrNilNode)
			return
		}

		visited := map[string]struct{}{pathutil.Normalize(root.Path()): {}}
		level := []Visit{{Node: root, Depth: 0}}
		depth := 0

		for len(level) > 0 {
			for _, v := range level {
				if opts.shouldYield(v.Depth) && !yield(v, nil) {
					return
				}
			}
			if !opts.shouldExplore(depth) {
				return
			}

			results := make([][]source.Node, len(level))
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(limit)

			for i, v := range level {
				g.Go(func() error {
					if opts.Controller != nil {
						if err := opts.Controller.AcquireFetch(gctx); err != nil {
							return err
						}
						defer opts.Controller.ReleaseFetch()
					}

					var children []source.Node
					for child, err := range exp.Expand(gctx, v.Node) {
						if err != nil {
							return err
						}
						children = append(children, child)
					}
					results[i] = children
					return nil
				})
			}

			if err := g.Wait(); err != nil {
				yield(Visit{}, err)
				return
			}

			var next []Visit
			for _, children := range results {
				for _, child := range children {
					p := pathutil.Normalize(child.Path())
					if _, seen := visited[p]; seen {
						continue
					}
					visited[p] = struct{}{}
					next = append(next, Visit{Node: child, Depth: depth + 1})
				}
			}
			sort.Slice(next, func(a, b int) bool {
				return next[a].Node.Path() < next[b].Node.Path()
			})

			level = next
			depth++
		}
	}
}
