// Package dynamo provides a tree source over a DynamoDB adjacency table,
// one item per parent/child edge. Expansion cost is one Query per node,
// independent of tree size.
package dynamo
