package s3

import (
	"context"
	"iter"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/hupe1980/treewalk/internal/pathutil"
	"github.com/hupe1980/treewalk/source"
)

// ObjectNode is a node in an S3 bucket hierarchy. Directories are the
// synthetic common prefixes produced by delimiter listings.
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

// Source lists an S3 bucket as a tree, using "/"-delimited listings so each
// expansion is a single level, never a full recursive scan.
type Source struct {
	client s3.ListObjectsV2APIClient
	bucket string
	prefix string
}

// Compile time check to ensure Source satisfies the source interfaces.
var (
	_ source.Source   = (*Source)(nil)
	_ source.Resolver = (*Source)(nil)
)

// NewSource creates an S3 tree source. rootPrefix (optionally empty) maps to
// the tree root "/".
func NewSource(client s3.ListObjectsV2APIClient, bucket, rootPrefix string) *Source {
	return &Source{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(rootPrefix, "/"),
	}
}

// NewFromDefaultConfig builds a Source with a client from the default AWS
// config chain (env, shared config, IMDS).
func NewFromDefaultConfig(ctx context.Context, bucket, rootPrefix string, optFns ...func(*config.LoadOptions) error) (*Source, error) {
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, err
	}
	return NewSource(s3.NewFromConfig(cfg), bucket, rootPrefix), nil
}

// Root returns the root node.
func (s *Source) Root() source.Node {
	return ObjectNode{path: "/", dir: true}
}

// keyPrefix translates a node path into the bucket key prefix of its
// children listing.
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

// nodePath translates a bucket key back into a tree path.
func (s *Source) nodePath(key string) string {
	key = strings.TrimSuffix(key, "/")
	if s.prefix != "" {
		key = strings.TrimPrefix(key, s.prefix)
	}
	return pathutil.Normalize("/" + strings.TrimPrefix(key, "/"))
}

// Children implements source.Source. Non-directory nodes yield nothing.
func (s *Source) Children(ctx context.Context, node source.Node) iter.Seq2[source.Node, error] {
	return func(yield func(source.Node, error) bool) {
		if on, ok := node.(ObjectNode); ok && !on.dir {
			return
		}

		prefix := s.keyPrefix(node.Path())
		paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket:    aws.String(s.bucket),
			Prefix:    aws.String(prefix),
			Delimiter: aws.String("/"),
		})

		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield(nil, err)
				return
			}

			for _, cp := range page.CommonPrefixes {
				child := ObjectNode{path: s.nodePath(*cp.Prefix), dir: true}
				if !yield(child, nil) {
					return
				}
			}
			for _, obj := range page.Contents {
				// The prefix marker object of the listing itself, if present.
				if *obj.Key == prefix {
					continue
				}
				child := ObjectNode{path: s.nodePath(*obj.Key), size: aws.ToInt64(obj.Size)}
				if !yield(child, nil) {
					return
				}
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

// NodeAt implements source.Resolver. Rebuilt nodes are assumed listable;
// expanding one that was an object yields an empty listing.
func (s *Source) NodeAt(path string, _ int) source.Node {
	return ObjectNode{path: pathutil.Normalize(path), dir: true}
}
