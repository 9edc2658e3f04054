// Package s3go is a client library for S3-compatible object storage:
// buckets, objects, multipart upload, bucket/object ACLs, pre-signed
// URLs, and browser POST policies. Client wraps the request pipeline
// in internal/s3core; every exported method here is a thin, validated
// one-to-one mapping onto that pipeline.
package s3go
