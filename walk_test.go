package treewalk

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"testing"

	"github.com/hupe1980/treewalk/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func walkTree(t *testing.T) *source.MemorySource {
	t.Helper()
	ms := source.NewMemorySource()
	ms.AddAll(
		"/r/a/1",
		"/r/a/2",
		"/r/b/1",
		"/r/c",
	)
	return ms
}

func newWalkSource(t *testing.T, opts ...Option) *CachingSource {
	t.Helper()
	cs, err := New(walkTree(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func collectWalk(t *testing.T, seq func(func(Visit, error) bool)) []string {
	t.Helper()
	var out []string
	for v, err := range seq {
		require.NoError(t, err)
		out = append(out, fmt.Sprintf("%d:%s", v.Depth, v.Node.Path()))
	}
	return out
}

func TestBFS_Order(t *testing.T) {
	cs := newWalkSource(t)

	got := collectWalk(t, BFS(context.Background(), cs, source.PathNode("/r")))
	assert.Equal(t, []string{
		"0:/r",
		"1:/r/a", "1:/r/b", "1:/r/c",
		"2:/r/a/1", "2:/r/a/2", "2:/r/b/1",
	}, got)
}

func TestBFS_DepthWindow(t *testing.T) {
	cs := newWalkSource(t)
	ctx := context.Background()

	t.Run("max depth", func(t *testing.T) {
		got := collectWalk(t, BFS(ctx, cs, source.PathNode("/r"), func(o *WalkOptions) {
			o.MaxDepth = 1
		}))
		assert.Equal(t, []string{"0:/r", "1:/r/a", "1:/r/b", "1:/r/c"}, got)
	})

	t.Run("min depth still explores", func(t *testing.T) {
		got := collectWalk(t, BFS(ctx, cs, source.PathNode("/r"), func(o *WalkOptions) {
			o.MinDepth = 2
		}))
		assert.Equal(t, []string{"2:/r/a/1", "2:/r/a/2", "2:/r/b/1"}, got)
	})
}

func TestBFS_NilRoot(t *testing.T) {
	cs := newWalkSource(t)

	var got error
	for _, err := range BFS(context.Background(), cs, nil) {
		got = err
	}
	require.ErrorIs(t, got, ErrNilNode)
}

func TestBFS_Cancellation(t *testing.T) {
	cs := newWalkSource(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen int
	var got error
	for _, err := range BFS(ctx, cs, source.PathNode("/r")) {
		if err != nil {
			got = err
			break
		}
		seen++
		cancel()
	}
	require.ErrorIs(t, got, context.Canceled)
	assert.Equal(t, 1, seen)
}

func TestBFS_ErrorSurfacesWithFailingNode(t *testing.T) {
	boom := errors.New("boom")
	faulty := source.NewFaultySource(walkTree(t))
	faulty.FailOn("/r/a", source.Fault{FailAfterChildren: 0, Err: boom})

	cs, err := New(faulty)
	require.NoError(t, err)
	defer cs.Close()

	var failedAt string
	var visited []string
	for v, err := range BFS(context.Background(), cs, source.PathNode("/r")) {
		if err != nil {
			require.ErrorIs(t, err, boom)
			failedAt = v.Node.Path()
			continue // keep walking the rest of the tree
		}
		visited = append(visited, v.Node.Path())
	}

	assert.Equal(t, "/r/a", failedAt)
	assert.Contains(t, visited, "/r/b/1", "siblings of a failing node are still walked")
	assert.NotContains(t, visited, "/r/a/1")
}

func TestDFS_PreOrder(t *testing.T) {
	cs := newWalkSource(t)

	got := collectWalk(t, DFS(context.Background(), cs, source.PathNode("/r")))
	assert.Equal(t, []string{
		"0:/r",
		"1:/r/a", "2:/r/a/1", "2:/r/a/2",
		"1:/r/b", "2:/r/b/1",
		"1:/r/c",
	}, got)
}

func TestDFS_PostOrder(t *testing.T) {
	cs := newWalkSource(t)

	got := collectWalk(t, DFS(context.Background(), cs, source.PathNode("/r"), func(o *WalkOptions) {
		o.PostOrder = true
	}))
	assert.Equal(t, []string{
		"2:/r/a/1", "2:/r/a/2", "1:/r/a",
		"2:/r/b/1", "1:/r/b",
		"1:/r/c",
		"0:/r",
	}, got)
}

func TestDFS_MaxDepth(t *testing.T) {
	cs := newWalkSource(t)

	got := collectWalk(t, DFS(context.Background(), cs, source.PathNode("/r"), func(o *WalkOptions) {
		o.MaxDepth = 1
	}))
	assert.Equal(t, []string{"0:/r", "1:/r/a", "1:/r/b", "1:/r/c"}, got)
}

func TestParallelBFS_LevelsAndOrder(t *testing.T) {
	cs := newWalkSource(t)

	got := collectWalk(t, ParallelBFS(context.Background(), cs, source.PathNode("/r"), func(o *WalkOptions) {
		o.Parallelism = 4
	}))

	// Depths never decrease and each level is path-sorted.
	assert.Equal(t, []string{
		"0:/r",
		"1:/r/a", "1:/r/b", "1:/r/c",
		"2:/r/a/1", "2:/r/a/2", "2:/r/b/1",
	}, got)
}

func TestParallelBFS_ErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	faulty := source.NewFaultySource(walkTree(t))
	faulty.FailOn("/r/a", source.Fault{FailAfterChildren: 0, Err: boom})

	cs, err := New(faulty)
	require.NoError(t, err)
	defer cs.Close()

	var got error
	var depths []int
	for v, err := range ParallelBFS(context.Background(), cs, source.PathNode("/r")) {
		if err != nil {
			got = err
			break
		}
		depths = append(depths, v.Depth)
	}
	require.ErrorIs(t, got, boom)
	for _, d := range depths {
		assert.LessOrEqual(t, d, 1, "nothing below the failing level is yielded")
	}
}

func TestParallelBFS_WithController(t *testing.T) {
	cs := newWalkSource(t)

	rc := cs.Controller()
	assert.Nil(t, rc, "no controller configured by default")

	got := collectWalk(t, ParallelBFS(context.Background(), cs, source.PathNode("/r"), func(o *WalkOptions) {
		o.Controller = rc // nil controller is valid and enforces nothing
	}))
	assert.Len(t, got, 7)
}

func TestWalk_CyclicSourceTerminates(t *testing.T) {
	cyclic := &cyclicSource{}
	cs, err := New(cyclic, WithMaxMemoryMB(-1))
	require.NoError(t, err)
	defer cs.Close()

	var count int
	for _, err := range BFS(context.Background(), cs, source.PathNode("/a")) {
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 2, count, "/a and /b, each visited once")
}

// cyclicSource links /a -> /b -> /a.
type cyclicSource struct{}

func (c *cyclicSource) Children(ctx context.Context, node source.Node) iter.Seq2[source.Node, error] {
	return func(yield func(source.Node, error) bool) {
		switch node.Path() {
		case "/a":
			yield(source.PathNode("/b"), nil)
		case "/b":
			yield(source.PathNode("/a"), nil)
		}
	}
}

func (c *cyclicSource) Depth(node source.Node) (int, error) { return 1, nil }

func (c *cyclicSource) Parent(node source.Node) (source.Node, bool) { return nil, false }
