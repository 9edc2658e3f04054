package s3core

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nimbusdata/s3go/internal/hashutil"
	"github.com/nimbusdata/s3go/internal/s3signer"
	"github.com/nimbusdata/s3go/internal/s3utils"
)

// ObjectStat is an object's metadata, as returned by StatObject and
// carried alongside GetObject's body.
type ObjectStat struct {
	ETag         string
	Size         int64
	LastModified time.Time
	ContentType  string
	Metadata     http.Header
}

// StatObject issues a HEAD and converts the header set into ObjectStat.
func (c *Core) StatObject(ctx context.Context, bucketName, objectName string) (ObjectStat, error) {
	if err := s3utils.CheckValidBucketName(bucketName); err != nil {
		return ObjectStat{}, err
	}
	if err := s3utils.CheckValidObjectName(objectName); err != nil {
		return ObjectStat{}, err
	}

	resp, err := c.executeMethod(ctx, http.MethodHead, requestMetadata{
		bucketName: bucketName,
		objectName: objectName,
	})
	if err != nil {
		return ObjectStat{}, err
	}
	defer closeResponse(resp)

	return statFromHeader(resp)
}

func statFromHeader(resp *http.Response) (ObjectStat, error) {
	size, _ := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	modTime, _ := time.Parse(http.TimeFormat, resp.Header.Get("Last-Modified"))
	return ObjectStat{
		ETag:         trimETagQuotes(resp.Header.Get("ETag")),
		Size:         size,
		LastModified: modTime,
		ContentType:  resp.Header.Get("Content-Type"),
		Metadata:     resp.Header,
	}, nil
}

func trimETagQuotes(etag string) string {
	if len(etag) >= 2 && etag[0] == '"' && etag[len(etag)-1] == '"' {
		return etag[1 : len(etag)-1]
	}
	return etag
}

// GetObjectOptions carries the range/conditional headers a GetObject
// call may set. HasRange distinguishes "whole object" from a
// zero-valued range.
type GetObjectOptions struct {
	RangeStart int64
	RangeEnd   int64
	HasRange   bool
	Header     http.Header
}

// GetObject streams objectName's body back unclosed: the caller owns
// resp.Body and must close it.
func (c *Core) GetObject(ctx context.Context, bucketName, objectName string, opts GetObjectOptions) (*http.Response, ObjectStat, error) {
	if err := s3utils.CheckValidBucketName(bucketName); err != nil {
		return nil, ObjectStat{}, err
	}
	if err := s3utils.CheckValidObjectName(objectName); err != nil {
		return nil, ObjectStat{}, err
	}

	header := opts.Header
	if header == nil {
		header = http.Header{}
	}
	if opts.HasRange {
		if opts.RangeEnd > 0 {
			header.Set("Range", "bytes="+strconv.FormatInt(opts.RangeStart, 10)+"-"+strconv.FormatInt(opts.RangeEnd, 10))
		} else {
			header.Set("Range", "bytes="+strconv.FormatInt(opts.RangeStart, 10)+"-")
		}
	}

	resp, err := c.executeMethod(ctx, http.MethodGet, requestMetadata{
		bucketName:   bucketName,
		objectName:   objectName,
		customHeader: header,
	})
	if err != nil {
		return nil, ObjectStat{}, err
	}

	stat, err := statFromHeader(resp)
	if err != nil {
		closeResponse(resp)
		return nil, ObjectStat{}, err
	}
	return Passthrough(resp), stat, nil
}

// PutObjectOptions carries the content-type/metadata/ACL a PutObject
// call may set.
type PutObjectOptions struct {
	ContentType string
	UserMeta    map[string]string
	CannedACL   string
}

// putObjectSingle uploads data in one PUT - the ≤5MiB branch of the
// size-based upload strategy; the dispatch itself lives in
// multipart.go's PutObject entry point, not here, since only it knows
// whether data's size crossed the threshold.
func (c *Core) putObjectSingle(ctx context.Context, bucketName, objectName string, data []byte, opts PutObjectOptions) (etag string, err error) {
	if err := s3utils.CheckValidBucketName(bucketName); err != nil {
		return "", err
	}
	if err := s3utils.CheckValidObjectName(objectName); err != nil {
		return "", err
	}

	header := http.Header{}
	if opts.ContentType != "" {
		header.Set("Content-Type", opts.ContentType)
	}
	for k, v := range opts.UserMeta {
		header.Set("X-Amz-Meta-"+k, v)
	}
	if opts.CannedACL != "" {
		header.Set("X-Amz-Acl", opts.CannedACL)
	}

	resp, err := c.executeMethod(ctx, http.MethodPut, requestMetadata{
		bucketName:       bucketName,
		objectName:       objectName,
		customHeader:     header,
		contentBody:      bytes.NewReader(data),
		contentLength:    int64(len(data)),
		contentMD5Base64: hashutil.SumMD5Base64(data),
		contentSHA256Hex: hashutil.Sum256Hex(data),
	})
	if err != nil {
		return "", err
	}
	defer closeResponse(resp)
	return trimETagQuotes(resp.Header.Get("ETag")), nil
}

// RemoveObject deletes a single object; absence of the object is not
// an error, matching S3's own idempotent DELETE.
func (c *Core) RemoveObject(ctx context.Context, bucketName, objectName string) error {
	if err := s3utils.CheckValidBucketName(bucketName); err != nil {
		return err
	}
	if err := s3utils.CheckValidObjectName(objectName); err != nil {
		return err
	}
	resp, err := c.executeMethod(ctx, http.MethodDelete, requestMetadata{
		bucketName: bucketName,
		objectName: objectName,
	})
	if err != nil {
		return err
	}
	closeResponse(resp)
	return nil
}

// RemoveIncompleteUpload aborts an in-progress multipart upload
// identified by its key, finding the upload ID via findUploadID first
// - a no-op, not an error, if no matching upload exists.
func (c *Core) RemoveIncompleteUpload(ctx context.Context, bucketName, objectName string) error {
	uploadID, err := c.findUploadID(ctx, bucketName, objectName)
	if err != nil {
		return err
	}
	if uploadID == "" {
		return nil
	}
	return c.abortMultipartUpload(ctx, bucketName, objectName, uploadID)
}

// presignRequest builds the requestMetadata for PresignedGetObject
// / PresignedPutObject / PresignedUploadPart, then hands it to
// newRequest with presignURL set so the signer takes the query-string
// branch instead of the header branch.
func (c *Core) presignRequest(ctx context.Context, method, bucketName, objectName string, expiry time.Duration, extraQuery map[string]string) (string, error) {
	if expiry < time.Second || expiry > 7*24*time.Hour {
		return "", ErrInvalidArgument("expiry must be between 1 second and 7 days")
	}

	metadata := requestMetadata{
		bucketName: bucketName,
		objectName: objectName,
		presignURL: true,
		expires:    int64(expiry.Seconds()),
	}
	if len(extraQuery) > 0 {
		values := url.Values{}
		for k, v := range extraQuery {
			values.Set(k, v)
		}
		metadata.queryValues = values
	}

	req, err := c.newRequest(ctx, method, metadata)
	if err != nil {
		return "", err
	}
	return req.URL.String(), nil
}

// PresignedGetObject returns a query-signed GET URL valid for expiry.
func (c *Core) PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration) (string, error) {
	return c.presignRequest(ctx, http.MethodGet, bucketName, objectName, expiry, nil)
}

// PresignedPutObject returns a query-signed PUT URL valid for expiry.
func (c *Core) PresignedPutObject(ctx context.Context, bucketName, objectName string, expiry time.Duration) (string, error) {
	return c.presignRequest(ctx, http.MethodPut, bucketName, objectName, expiry, nil)
}

// PresignedUploadPart returns a query-signed PUT URL for one multipart
// part, letting a caller hand off just one part to an untrusted
// uploader.
func (c *Core) PresignedUploadPart(ctx context.Context, bucketName, objectName, uploadID string, partNumber int, expiry time.Duration) (string, error) {
	return c.presignRequest(ctx, http.MethodPut, bucketName, objectName, expiry, map[string]string{
		"partNumber": strconv.Itoa(partNumber),
		"uploadId":   uploadID,
	})
}

// PostPolicySign computes the signature field a browser-form POST
// upload needs, given the already base64-encoded policy document. The
// façade's PostPolicy builder assembles the rest of the form fields;
// this is the one piece that must go through the signer.
func (c *Core) PostPolicySign(ctx context.Context, region, policyBase64 string) (string, error) {
	value, err := c.Config.Creds.Get()
	if err != nil {
		return "", err
	}
	return s3signer.PostPresignSignatureV4(policyBase64, value.SecretAccessKey, region, time.Now().UTC()), nil
}
