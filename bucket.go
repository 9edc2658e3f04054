package s3go

import (
	"context"

	"github.com/nimbusdata/s3go/internal/s3core"
)

// MakeBucket creates bucketName in region (empty region uses the
// client's default / us-east-1).
func (c *Client) MakeBucket(ctx context.Context, bucketName, region string) error {
	return c.core.MakeBucket(ctx, bucketName, region)
}

// RemoveBucket deletes an empty bucket.
func (c *Client) RemoveBucket(ctx context.Context, bucketName string) error {
	return c.core.RemoveBucket(ctx, bucketName)
}

// BucketExists reports whether bucketName exists and is accessible.
func (c *Client) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return c.core.BucketExists(ctx, bucketName)
}

// BucketInfo describes one bucket returned by ListBuckets.
type BucketInfo = s3core.BucketInfo

// ListBuckets lists every bucket owned by the caller's credentials.
func (c *Client) ListBuckets(ctx context.Context) ([]BucketInfo, error) {
	return c.core.ListBuckets(ctx)
}

// cannedACLs are the canned ACL names this client recognizes; anything
// else is rejected at the façade boundary. ACL interpretation is kept
// here rather than in internal/s3core, which only ever sees the raw
// grant list or a literal canned-ACL header value.
var cannedACLs = map[string]bool{
	"private":           true,
	"public-read":        true,
	"public-read-write":  true,
	"authenticated-read": true,
}

// GetBucketACL returns bucketName's canned ACL, reconstructed from its
// raw grant list. A WRITE grant on the AllUsers group without a
// matching READ grant is reported as "unsupported-acl" rather than
// guessed at.
func (c *Client) GetBucketACL(ctx context.Context, bucketName string) (string, error) {
	grants, err := c.core.GetBucketACL(ctx, bucketName)
	if err != nil {
		return "", err
	}
	return cannedACLFromGrants(grants), nil
}

// SetBucketACL applies a canned ACL to bucketName.
func (c *Client) SetBucketACL(ctx context.Context, bucketName, cannedACL string) error {
	if !cannedACLs[cannedACL] {
		return s3core.ErrInvalidArgument("unrecognized canned ACL: " + cannedACL)
	}
	return c.core.SetBucketACL(ctx, bucketName, cannedACL)
}

const allUsersGroupURI = "http://acs.amazonaws.com/groups/global/all-users"
const authenticatedUsersGroupURI = "http://acs.amazonaws.com/groups/global/authenticated-users"

// cannedACLFromGrants reconstructs the canned-ACL name a grant list
// implies: public-read-write requires both READ and WRITE on AllUsers;
// WRITE without READ is unsupported-acl rather than silently
// downgraded to public-read.
func cannedACLFromGrants(grants []s3core.Grant) string {
	var allUsersRead, allUsersWrite, authUsersRead bool
	for _, g := range grants {
		switch g.GranteeURI {
		case allUsersGroupURI:
			switch g.Permission {
			case "READ":
				allUsersRead = true
			case "WRITE":
				allUsersWrite = true
			case "FULL_CONTROL":
				allUsersRead, allUsersWrite = true, true
			}
		case authenticatedUsersGroupURI:
			if g.Permission == "READ" || g.Permission == "FULL_CONTROL" {
				authUsersRead = true
			}
		}
	}
	switch {
	case allUsersWrite && !allUsersRead:
		return "unsupported-acl"
	case allUsersRead && allUsersWrite:
		return "public-read-write"
	case allUsersRead:
		return "public-read"
	case authUsersRead:
		return "authenticated-read"
	default:
		return "private"
	}
}
