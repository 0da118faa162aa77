// Package minio provides a tree source over MinIO and other S3-compatible
// object stores, using non-recursive listings so each expansion covers one
// hierarchy level.
package minio
