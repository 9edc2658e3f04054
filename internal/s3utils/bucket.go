// Package s3utils holds the small validation and URL-shaping helpers
// shared across the client: bucket/object name validation, path and
// query percent-encoding, and the endpoint classification that decides
// path-style vs. virtual-host-style addressing.
package s3utils

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	validBucketName       = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.\-_:]{1,61}[A-Za-z0-9]$`)
	validBucketNameStrict = regexp.MustCompile(`^[a-z0-9][a-z0-9.\-]{1,61}[a-z0-9]$`)
	ipAddress              = regexp.MustCompile(`^(\d+\.){3}\d+$`)
)

// ErrInvalidBucketName reports a malformed bucket name.
type ErrInvalidBucketName string

func (e ErrInvalidBucketName) Error() string { return string(e) }

// CheckValidBucketName - checks if we have a valid input bucket name.
func CheckValidBucketName(bucketName string) error {
	if strings.TrimSpace(bucketName) == "" {
		return ErrInvalidBucketName("bucket name cannot be empty")
	}
	if len(bucketName) < 3 {
		return ErrInvalidBucketName("bucket name cannot be shorter than 3 characters")
	}
	if len(bucketName) > 63 {
		return ErrInvalidBucketName("bucket name cannot be longer than 63 characters")
	}
	if !validBucketName.MatchString(bucketName) {
		return ErrInvalidBucketName("bucket name contains invalid characters")
	}
	if ipAddress.MatchString(bucketName) {
		return ErrInvalidBucketName("bucket name cannot be an IP address")
	}
	if strings.Contains(bucketName, "..") || strings.Contains(bucketName, ".-") || strings.Contains(bucketName, "-.") {
		return ErrInvalidBucketName("bucket name contains invalid character sequence")
	}
	return nil
}

// CheckValidBucketNameStrict - like CheckValidBucketName but additionally
// rejects uppercase letters, '_' and ':', matching S3's stricter
// DNS-compliant rule used for bucket creation and virtual-host-style
// addressing.
func CheckValidBucketNameStrict(bucketName string) error {
	if err := CheckValidBucketName(bucketName); err != nil {
		return err
	}
	if !validBucketNameStrict.MatchString(bucketName) {
		return ErrInvalidBucketName("bucket name contains uppercase characters or invalid punctuation")
	}
	return nil
}

// IsVirtualHostSupported reports whether u/bucketName combination
// supports virtual-host-style addressing - true only for Amazon and
// Google Cloud Storage endpoints with a DNS-compliant bucket name that
// contains no '.'.
func IsVirtualHostSupported(u url.URL, bucketName string) bool {
	if bucketName == "" {
		return false
	}
	if !IsAmazonEndpoint(u) && !IsGoogleEndpoint(u) {
		return false
	}
	return CheckValidBucketNameStrict(bucketName) == nil && !strings.Contains(bucketName, ".")
}
