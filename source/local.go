package source

import (
	"context"
	"iter"
	"os"
	"path/filepath"

	"github.com/hupe1980/treewalk/internal/pathutil"
)

// FileNode is a Node backed by a local filesystem entry.
type FileNode struct {
	path string
	dir  bool
}

// Path implements Node.
func (n FileNode) Path() string { return n.path }

// IsDir reports whether the node refers to a directory.
func (n FileNode) IsDir() bool { return n.dir }

// LocalSource is a Source over the local filesystem.
type LocalSource struct {
	root string
}

// NewLocalSource creates a filesystem source rooted at root.
// Paths are normalized to forward-slash form.
func NewLocalSource(root string) *LocalSource {
	return &LocalSource{
		root: pathutil.Normalize(filepath.ToSlash(root)),
	}
}

// Root returns the root node of the source.
func (s *LocalSource) Root() Node {
	return FileNode{path: s.root, dir: true}
}

// Children implements Source. Non-directory nodes yield an empty sequence.
// ReadDir failures (permissions, vanished directories) propagate to the
// caller; the source never downgrades them to empty results.
func (s *LocalSource) Children(ctx context.Context, node Node) iter.Seq2[Node, error] {
	return func(yield func(Node, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}

		p := pathutil.Normalize(node.Path())
		entries, err := os.ReadDir(filepath.FromSlash(p))
		if err != nil {
			if fn, ok := node.(FileNode); ok && !fn.dir {
				// Files have no children.
				return
			}
			yield(nil, err)
			return
		}

		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			child := FileNode{
				path: pathutil.Join(p, e.Name()),
				dir:  e.IsDir(),
			}
			if !yield(child, nil) {
				return
			}
		}
	}
}

// Depth implements Source.
func (s *LocalSource) Depth(node Node) (int, error) {
	return pathutil.Depth(node.Path()), nil
}

// Parent implements Source.
func (s *LocalSource) Parent(node Node) (Node, bool) {
	p := pathutil.Normalize(node.Path())
	if p == s.root {
		return nil, false
	}
	parent, ok := pathutil.Parent(p)
	if !ok {
		return nil, false
	}
	return FileNode{path: parent, dir: true}, true
}

// NodeAt implements Resolver. The rebuilt node is assumed to be a directory;
// a file node rehydrated this way simply enumerates to an empty child list.
func (s *LocalSource) NodeAt(path string, _ int) Node {
	return FileNode{path: pathutil.Normalize(path), dir: true}
}

// Stat reports whether the node currently exists on disk.
func (s *LocalSource) Stat(node Node) (os.FileInfo, error) {
	return os.Stat(filepath.FromSlash(pathutil.Normalize(node.Path())))
}
