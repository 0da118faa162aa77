package minio

import (
	"context"
	"iter"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/hupe1980/treewalk/internal/pathutil"
	"github.com/hupe1980/treewalk/source"
)

// ObjectNode is a node in a MinIO (or S3-compatible) bucket hierarchy.
type ObjectNode struct {
	path string
	dir  bool
	size int64
}

// Path implements source.Node.
func (n ObjectNode) Path() string { return n.path }

// IsDir reports whether the node is a common prefix rather than an object.
func (n ObjectNode) IsDir() bool { return n.dir }

// Size returns the object size in bytes, 0 for prefixes.
func (n ObjectNode) Size() int64 { return n.size }

// Source lists a MinIO bucket as a tree, one non-recursive listing per
// expansion.
type Source struct {
	client *minio.Client
	bucket string
	prefix string
}

// Compile time check to ensure Source satisfies the source interfaces.
var (
	_ source.Source   = (*Source)(nil)
	_ source.Resolver = (*Source)(nil)
)

// NewSource creates a MinIO tree source. rootPrefix (optionally empty) maps
// to the tree root "/".
func NewSource(client *minio.Client, bucket, rootPrefix string) *Source {
	return &Source{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(rootPrefix, "/"),
	}
}

// Root returns the root node.
func (s *Source) Root() source.Node {
	return ObjectNode{path: "/", dir: true}
}

func (s *Source) keyPrefix(nodePath string) string {
	p := strings.Trim(pathutil.Normalize(nodePath), "/")
	switch {
	case s.prefix == "" && p == "":
		return ""
	case s.prefix == "":
		return p + "/"
	case p == "":
		return s.prefix + "/"
	default:
		return s.prefix + "/" + p + "/"
	}
}

func (s *Source) nodePath(key string) string {
	key = strings.TrimSuffix(key, "/")
	if s.prefix != "" {
		key = strings.TrimPrefix(key, s.prefix)
	}
	return pathutil.Normalize("/" + strings.TrimPrefix(key, "/"))
}

// Children implements source.Source. Non-directory nodes yield nothing.
// Objects whose key ends in "/" are treated as directory markers.
func (s *Source) Children(ctx context.Context, node source.Node) iter.Seq2[source.Node, error] {
	return func(yield func(source.Node, error) bool) {
		if on, ok := node.(ObjectNode); ok && !on.dir {
			return
		}

		prefix := s.keyPrefix(node.Path())
		objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: false,
		})

		for obj := range objects {
			if obj.Err != nil {
				yield(nil, obj.Err)
				return
			}
			if obj.Key == prefix {
				continue
			}

			child := ObjectNode{
				path: s.nodePath(obj.Key),
				dir:  strings.HasSuffix(obj.Key, "/"),
				size: obj.Size,
			}
			if !yield(child, nil) {
				return
			}
		}
	}
}

// Depth implements source.Source.
func (s *Source) Depth(node source.Node) (int, error) {
	return pathutil.Depth(node.Path()), nil
}

// Parent implements source.Source.
func (s *Source) Parent(node source.Node) (source.Node, bool) {
	p, ok := pathutil.Parent(pathutil.Normalize(node.Path()))
	if !ok {
		return nil, false
	}
	return ObjectNode{path: p, dir: true}, true
}

// NodeAt implements source.Resolver.
func (s *Source) NodeAt(path string, _ int) source.Node {
	return ObjectNode{path: pathutil.Normalize(path), dir: true}
}
