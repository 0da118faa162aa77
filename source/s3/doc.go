// Package s3 provides a tree source over an S3 bucket.
//
// Each expansion is one "/"-delimited ListObjectsV2 call, so the bucket is
// explored level by level. Construct the client with the standard AWS
// config chain:
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	if err != nil { ... }
//	src := s3.NewSource(awss3.NewFromConfig(cfg), "my-bucket", "datasets/")
package s3
