package s3core

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nimbusdata/s3go/internal/s3utils"
)

// Pagination is driven by a goroutine feeding an unbuffered channel:
// the consumer ranges over the channel. A consumer that stops early
// must cancel ctx; the ctx.Done() selects here then let the goroutine
// exit. Abandoning the range without cancelling ctx leaves the
// goroutine blocked on its next send.

// ObjectInfoResult is one element of the channel ListObjects returns:
// either an ObjectInfo or, on the final element only, a terminal Err.
type ObjectInfoResult struct {
	ObjectInfo
	Err error
}

// ListObjects pages through a bucket. recursive=false sends
// delimiter="/" so S3 rolls up pseudo-directories into CommonPrefixes
// instead of listing every key beneath them.
func (c *Core) ListObjects(ctx context.Context, bucketName, prefix, marker string, recursive bool, maxKeys int) <-chan ObjectInfoResult {
	resultCh := make(chan ObjectInfoResult)

	go func() {
		defer close(resultCh)

		if err := s3utils.CheckValidBucketName(bucketName); err != nil {
			select {
			case resultCh <- ObjectInfoResult{Err: err}:
			case <-ctx.Done():
			}
			return
		}

		delimiter := "/"
		if recursive {
			delimiter = ""
		}

		for {
			values := url.Values{}
			if prefix != "" {
				values.Set("prefix", prefix)
			}
			if marker != "" {
				values.Set("marker", marker)
			}
			if delimiter != "" {
				values.Set("delimiter", delimiter)
			}
			if maxKeys > 0 {
				values.Set("max-keys", strconv.Itoa(maxKeys))
			}

			resp, err := c.executeMethod(ctx, http.MethodGet, requestMetadata{
				bucketName:  bucketName,
				queryValues: values,
			})
			if err != nil {
				select {
				case resultCh <- ObjectInfoResult{Err: err}:
				case <-ctx.Done():
				}
				return
			}

			page, err := ParseListObjects(resp)
			if err != nil {
				select {
				case resultCh <- ObjectInfoResult{Err: err}:
				case <-ctx.Done():
				}
				return
			}

			for _, obj := range page.Objects {
				select {
				case resultCh <- ObjectInfoResult{ObjectInfo: obj}:
				case <-ctx.Done():
					return
				}
			}
			for _, p := range page.CommonPrefixes {
				select {
				case resultCh <- ObjectInfoResult{ObjectInfo: ObjectInfo{Key: p}}:
				case <-ctx.Done():
					return
				}
			}

			if !page.IsTruncated {
				return
			}
			marker = page.NextMarker
		}
	}()

	return resultCh
}

// MultipartUploadResult is one element of ListIncompleteUploads' channel.
type MultipartUploadResult struct {
	MultipartUploadInfo
	Err error
}

// ListIncompleteUploads pages through in-progress multipart uploads
// under prefix; also the building block findUploadID uses to locate a
// resumable upload for one specific key.
func (c *Core) ListIncompleteUploads(ctx context.Context, bucketName, prefix string, recursive bool) <-chan MultipartUploadResult {
	resultCh := make(chan MultipartUploadResult)

	go func() {
		defer close(resultCh)

		if err := s3utils.CheckValidBucketName(bucketName); err != nil {
			select {
			case resultCh <- MultipartUploadResult{Err: err}:
			case <-ctx.Done():
			}
			return
		}

		delimiter := "/"
		if recursive {
			delimiter = ""
		}

		keyMarker, uploadIDMarker := "", ""
		for {
			values := url.Values{"uploads": []string{""}}
			if prefix != "" {
				values.Set("prefix", prefix)
			}
			if delimiter != "" {
				values.Set("delimiter", delimiter)
			}
			if keyMarker != "" {
				values.Set("key-marker", keyMarker)
			}
			if uploadIDMarker != "" {
				values.Set("upload-id-marker", uploadIDMarker)
			}

			resp, err := c.executeMethod(ctx, http.MethodGet, requestMetadata{
				bucketName:  bucketName,
				queryValues: values,
			})
			if err != nil {
				select {
				case resultCh <- MultipartUploadResult{Err: err}:
				case <-ctx.Done():
				}
				return
			}

			page, err := ParseListMultipartUploads(resp)
			if err != nil {
				select {
				case resultCh <- MultipartUploadResult{Err: err}:
				case <-ctx.Done():
				}
				return
			}

			for _, u := range page.Uploads {
				select {
				case resultCh <- MultipartUploadResult{MultipartUploadInfo: u}:
				case <-ctx.Done():
					return
				}
			}

			if !page.IsTruncated {
				return
			}
			keyMarker = page.NextKeyMarker
			uploadIDMarker = page.NextUploadIDMarker
		}
	}()

	return resultCh
}

// ObjectPartResult is one element of listObjectParts' channel.
type ObjectPartResult struct {
	ObjectPart
	Err error
}

// listObjectParts pages through the parts already uploaded under
// uploadID, unexported since only the multipart orchestrator in this
// package needs the raw part list - façade callers only ever see the
// orchestrated result.
func (c *Core) listObjectParts(ctx context.Context, bucketName, objectName, uploadID string) <-chan ObjectPartResult {
	resultCh := make(chan ObjectPartResult)

	go func() {
		defer close(resultCh)

		partNumberMarker := 0
		for {
			values := url.Values{"uploadId": []string{uploadID}}
			if partNumberMarker > 0 {
				values.Set("part-number-marker", strconv.Itoa(partNumberMarker))
			}

			resp, err := c.executeMethod(ctx, http.MethodGet, requestMetadata{
				bucketName:  bucketName,
				objectName:  objectName,
				queryValues: values,
			})
			if err != nil {
				select {
				case resultCh <- ObjectPartResult{Err: err}:
				case <-ctx.Done():
				}
				return
			}

			page, err := ParseListParts(resp)
			if err != nil {
				select {
				case resultCh <- ObjectPartResult{Err: err}:
				case <-ctx.Done():
				}
				return
			}

			for _, p := range page.Parts {
				select {
				case resultCh <- ObjectPartResult{ObjectPart: p}:
				case <-ctx.Done():
					return
				}
			}

			if !page.IsTruncated {
				return
			}
			partNumberMarker = page.NextPartNumberMarker
		}
	}()

	return resultCh
}
