package s3core

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/url"
	"strings"

	"github.com/nimbusdata/s3go/internal/hashutil"
	"github.com/nimbusdata/s3go/internal/s3utils"
)

// This file holds the bucket-level operations (MakeBucket,
// RemoveBucket, BucketExists, ListBuckets, Get/SetBucketACL): each is a
// thin assembly of a requestMetadata plus the matching response parser
// over executeMethod.

// MakeBucket creates bucketName in region (empty region defaults to
// us-east-1). A non-default region is sent as a
// CreateBucketConfiguration body, matching the one S3 quirk where
// us-east-1 must NOT be named explicitly.
func (c *Core) MakeBucket(ctx context.Context, bucketName, region string) error {
	if err := s3utils.CheckValidBucketNameStrict(bucketName); err != nil {
		return err
	}

	location := region
	if location == "" {
		location = c.Config.Region
	}

	var body []byte
	if location != "" && location != DefaultRegion {
		cfg := createBucketConfiguration{LocationConstraint: location}
		b, err := xml.Marshal(cfg)
		if err != nil {
			return err
		}
		body = b
	}

	metadata := requestMetadata{
		bucketName:     bucketName,
		bucketLocation: DefaultRegion,
	}
	if location != "" {
		metadata.bucketLocation = location
	}
	if len(body) > 0 {
		metadata.contentBody = strings.NewReader(string(body))
		metadata.contentLength = int64(len(body))
		metadata.contentSHA256Hex = hashutil.Sum256Hex(body)
	}

	resp, err := c.executeMethod(ctx, http.MethodPut, metadata)
	if err != nil {
		return err
	}
	closeResponse(resp)

	if location != "" {
		c.bucketLocCache.Set(bucketName, location)
	}
	return nil
}

// RemoveBucket deletes an empty bucket.
func (c *Core) RemoveBucket(ctx context.Context, bucketName string) error {
	if err := s3utils.CheckValidBucketName(bucketName); err != nil {
		return err
	}
	resp, err := c.executeMethod(ctx, http.MethodDelete, requestMetadata{bucketName: bucketName})
	if err != nil {
		return err
	}
	closeResponse(resp)
	return nil
}

// BucketExists reports whether bucketName exists and is accessible,
// treating a NoSuchBucket/404 response as (false, nil) rather than an
// error.
func (c *Core) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	if err := s3utils.CheckValidBucketName(bucketName); err != nil {
		return false, err
	}
	resp, err := c.executeMethod(ctx, http.MethodHead, requestMetadata{bucketName: bucketName})
	if err != nil {
		er := ToErrorResponse(err)
		if er.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	closeResponse(resp)
	return true, nil
}

// RegionFor exposes C3's region resolution for bucketName to the
// façade, so PostPolicy signing can scope its credential to the
// bucket's actual region without duplicating the discovery logic.
func (c *Core) RegionFor(ctx context.Context, bucketName string) (string, error) {
	return c.getBucketLocation(ctx, bucketName)
}

// ListBuckets lists every bucket owned by the caller's credentials.
func (c *Core) ListBuckets(ctx context.Context) ([]BucketInfo, error) {
	resp, err := c.executeMethod(ctx, http.MethodGet, requestMetadata{})
	if err != nil {
		return nil, err
	}
	return ParseListBuckets(resp)
}

// GetBucketACL fetches bucketName's access-control grants. Canned-ACL
// reconstruction from the raw grant list is a façade concern, kept out
// of the core so the core never has to guess at a naming convention
// S3-compatible servers don't universally share.
func (c *Core) GetBucketACL(ctx context.Context, bucketName string) ([]Grant, error) {
	if err := s3utils.CheckValidBucketName(bucketName); err != nil {
		return nil, err
	}
	resp, err := c.executeMethod(ctx, http.MethodGet, requestMetadata{
		bucketName:  bucketName,
		queryValues: url.Values{"acl": []string{""}},
	})
	if err != nil {
		return nil, err
	}
	return AclParser(resp)
}

// SetBucketACL applies a canned ACL (e.g. "private", "public-read") via
// the X-Amz-Acl header, the same mechanism PutObject uses for
// per-object ACLs.
func (c *Core) SetBucketACL(ctx context.Context, bucketName, cannedACL string) error {
	if err := s3utils.CheckValidBucketName(bucketName); err != nil {
		return err
	}
	header := http.Header{}
	header.Set("X-Amz-Acl", cannedACL)
	resp, err := c.executeMethod(ctx, http.MethodPut, requestMetadata{
		bucketName:   bucketName,
		queryValues:  url.Values{"acl": []string{""}},
		customHeader: header,
	})
	if err != nil {
		return err
	}
	closeResponse(resp)
	return nil
}
