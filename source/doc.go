// Package source defines the hierarchical data source contract consumed by
// the traversal engine, plus local implementations.
//
// A Source answers one question: what are the children of this node? The
// package ships an in-memory tree (tests, fixtures), a local filesystem
// source, and a fault-injecting wrapper. Cloud-backed sources live in the
// s3, minio and dynamo subpackages.
package source
