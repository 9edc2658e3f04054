package s3go

import (
	"context"
	"time"
)

// PresignedGetObject returns a query-signed GET URL valid for expiry,
// usable by an unauthenticated client.
func (c *Client) PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration) (string, error) {
	return c.core.PresignedGetObject(ctx, bucketName, objectName, expiry)
}

// PresignedPutObject returns a query-signed PUT URL valid for expiry.
func (c *Client) PresignedPutObject(ctx context.Context, bucketName, objectName string, expiry time.Duration) (string, error) {
	return c.core.PresignedPutObject(ctx, bucketName, objectName, expiry)
}

// PresignedUploadPart returns a query-signed PUT URL for one part of
// an in-progress multipart upload, so a browser can upload a single
// part directly without holding the client's credentials.
func (c *Client) PresignedUploadPart(ctx context.Context, bucketName, objectName, uploadID string, partNumber int, expiry time.Duration) (string, error) {
	return c.core.PresignedUploadPart(ctx, bucketName, objectName, uploadID, partNumber, expiry)
}
