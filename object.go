package s3go

import (
	"context"
	"io"
	"time"

	"github.com/nimbusdata/s3go/internal/s3core"
)

// ObjectInfo describes one object returned by ListObjects.
type ObjectInfo = s3core.ObjectInfo

// ObjectStat is the metadata StatObject and GetObject return.
type ObjectStat = s3core.ObjectStat

// MultipartUploadInfo describes one in-progress upload returned by
// ListIncompleteUploads.
type MultipartUploadInfo = s3core.MultipartUploadInfo

// StatObject returns objectName's metadata without fetching its body.
func (c *Client) StatObject(ctx context.Context, bucketName, objectName string) (ObjectStat, error) {
	return c.core.StatObject(ctx, bucketName, objectName)
}

// Object is a GetObject result: the streamed body plus its metadata.
// The caller must close it.
type Object struct {
	io.ReadCloser
	Stat ObjectStat
}

// GetObjectOptions requests a byte range instead of the whole object.
type GetObjectOptions struct {
	RangeStart int64
	RangeEnd   int64
	HasRange   bool
}

// GetObject streams objectName's body. The caller must close the
// returned Object.
func (c *Client) GetObject(ctx context.Context, bucketName, objectName string, opts GetObjectOptions) (*Object, error) {
	resp, stat, err := c.core.GetObject(ctx, bucketName, objectName, s3core.GetObjectOptions{
		RangeStart: opts.RangeStart,
		RangeEnd:   opts.RangeEnd,
		HasRange:   opts.HasRange,
	})
	if err != nil {
		return nil, err
	}
	return &Object{ReadCloser: resp.Body, Stat: stat}, nil
}

// PutObjectOptions carries the content-type, user metadata, and canned
// ACL a PutObject call may set.
type PutObjectOptions struct {
	ContentType string
	UserMeta    map[string]string
	CannedACL   string
}

// PutObject uploads reader's next size bytes as bucketName/objectName,
// using a single PUT for objects ≤ 5 MiB and the multipart orchestrator
// otherwise. Returns the object's final ETag.
func (c *Client) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, size int64, opts PutObjectOptions) (etag string, err error) {
	return c.core.PutObject(ctx, bucketName, objectName, reader, size, s3core.PutObjectOptions{
		ContentType: opts.ContentType,
		UserMeta:    opts.UserMeta,
		CannedACL:   opts.CannedACL,
	})
}

// RemoveObject deletes a single object.
func (c *Client) RemoveObject(ctx context.Context, bucketName, objectName string) error {
	return c.core.RemoveObject(ctx, bucketName, objectName)
}

// ListObjects lists objects under prefix, paging internally. recursive
// false returns pseudo-directory rollups as CommonPrefixes entries
// (ObjectInfo with only Key set) instead of descending into them.
func (c *Client) ListObjects(ctx context.Context, bucketName, prefix string, recursive bool) <-chan ObjectInfoResult {
	out := make(chan ObjectInfoResult)
	src := c.core.ListObjects(ctx, bucketName, prefix, "", recursive, 0)
	go func() {
		defer close(out)
		for r := range src {
			out <- ObjectInfoResult{ObjectInfo: r.ObjectInfo, Err: r.Err}
		}
	}()
	return out
}

// ObjectInfoResult is one element of ListObjects' channel: either an
// ObjectInfo or, on the final element, a terminal Err.
type ObjectInfoResult struct {
	ObjectInfo
	Err error
}

// ListIncompleteUploads lists in-progress multipart uploads under prefix.
func (c *Client) ListIncompleteUploads(ctx context.Context, bucketName, prefix string, recursive bool) <-chan MultipartUploadResult {
	out := make(chan MultipartUploadResult)
	src := c.core.ListIncompleteUploads(ctx, bucketName, prefix, recursive)
	go func() {
		defer close(out)
		for r := range src {
			out <- MultipartUploadResult{MultipartUploadInfo: r.MultipartUploadInfo, Err: r.Err}
		}
	}()
	return out
}

// MultipartUploadResult is one element of ListIncompleteUploads' channel.
type MultipartUploadResult struct {
	MultipartUploadInfo
	Err error
}

// RemoveIncompleteUpload aborts the in-progress multipart upload for
// objectName, if any; a no-op if none exists.
func (c *Client) RemoveIncompleteUpload(ctx context.Context, bucketName, objectName string) error {
	return c.core.RemoveIncompleteUpload(ctx, bucketName, objectName)
}

// expiry bounds for pre-signed URLs: 1 second to 7 days.
const (
	MinPresignExpiry = time.Second
	MaxPresignExpiry = 7 * 24 * time.Hour
)
