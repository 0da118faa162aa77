package dynamo

import (
	"context"
	"iter"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/treewalk/internal/pathutil"
	"github.com/hupe1980/treewalk/source"
)

// Default attribute names of the adjacency table.
const (
	attrParent = "parent_path"
	attrChild  = "child_path"
	attrIsLeaf = "is_leaf"
)

// Node is a tree node backed by an adjacency-table item.
type Node struct {
	path string
	leaf bool
}

// Path implements source.Node.
func (n Node) Path() string { return n.path }

// IsLeaf reports whether the item was stored with is_leaf = true.
func (n Node) IsLeaf() bool { return n.leaf }

// Source reads a tree from a DynamoDB adjacency table: one item per edge,
// partition key parent_path, sort key child_path. Each expansion is one
// Query on the parent's partition, so child order is the sort-key order.
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name tree-edges \
//	  --attribute-definitions AttributeName=parent_path,AttributeType=S AttributeName=child_path,AttributeType=S \
//	  --key-schema AttributeName=parent_path,KeyType=HASH AttributeName=child_path,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type Source struct {
	client    dynamodb.QueryAPIClient
	tableName string
}

// Compile time check to ensure Source satisfies the source interfaces.
var (
	_ source.Source   = (*Source)(nil)
	_ source.Resolver = (*Source)(nil)
)

// NewSource creates an adjacency-table tree source.
func NewSource(client dynamodb.QueryAPIClient, tableName string) *Source {
	return &Source{client: client, tableName: tableName}
}

// NewFromDefaultConfig builds a Source with a client from the default AWS
// config chain.
func NewFromDefaultConfig(ctx context.Context, tableName string, optFns ...func(*config.LoadOptions) error) (*Source, error) {
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, err
	}
	return NewSource(dynamodb.NewFromConfig(cfg), tableName), nil
}

// Root returns the node for path "/".
func (s *Source) Root() source.Node {
	return Node{path: "/"}
}

// Children implements source.Source. Leaf nodes yield nothing without a
// round trip.
func (s *Source) Children(ctx context.Context, node source.Node) iter.Seq2[source.Node, error] {
	return func(yield func(source.Node, error) bool) {
		if dn, ok := node.(Node); ok && dn.leaf {
			return
		}

		parent := pathutil.Normalize(node.Path())
		paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("#p = :parent"),
			ExpressionAttributeNames: map[string]string{
				"#p": attrParent,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":parent": &types.AttributeValueMemberS{Value: parent},
			},
		})

		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield(nil, err)
				return
			}

			for _, item := range page.Items {
				child, ok := itemToNode(item)
				if !ok {
					continue
				}
				if !yield(child, nil) {
					return
				}
			}
		}
	}
}

func itemToNode(item map[string]types.AttributeValue) (Node, bool) {
	pathAttr, ok := item[attrChild].(*types.AttributeValueMemberS)
	if !ok {
		return Node{}, false
	}
	n := Node{path: pathutil.Normalize(pathAttr.Value)}
	if leafAttr, ok := item[attrIsLeaf].(*types.AttributeValueMemberBOOL); ok {
		n.leaf = leafAttr.Value
	}
	return n, true
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
	return Node{path: p}, true
}

// NodeAt implements source.Resolver.
func (s *Source) NodeAt(path string, _ int) source.Node {
	return Node{path: pathutil.Normalize(path)}
}
