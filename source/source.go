package source

import (
	"context"
	"errors"
	"iter"
)

// ErrNotFound is returned when a node does not exist in the source.
var ErrNotFound = errors.New("node not found")

// Node is a reference to an element of a hierarchical data source.
//
// Path is the node's stable string identity in forward-slash form. Every
// node type must implement it explicitly; identity is never probed from
// stringification.
type Node interface {
	Path() string
}

// Source exposes "get children of node" semantics over a hierarchy.
//
// Children returns a lazy, finite sequence that is restartable: ranging over
// it again re-enumerates. An error yielded mid-iteration terminates the
// sequence; callers must tolerate it.
type Source interface {
	Children(ctx context.Context, node Node) iter.Seq2[Node, error]

	// Depth returns the node's depth in the hierarchy (segments from the
	// root). Best-effort; callers fall back to a default on error.
	Depth(node Node) (int, error)

	// Parent returns the node's parent, or false for a root.
	Parent(node Node) (Node, bool)
}

// Resolver is an optional interface for sources that can rebuild a Node from
// its path alone. It is required for the disk spill tier, which persists only
// paths.
type Resolver interface {
	NodeAt(path string, depth int) Node
}

// PathNode is the minimal Node: a bare path string.
type PathNode string

// Path implements Node.
func (p PathNode) Path() string { return string(p) }
