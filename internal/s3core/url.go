package s3core

import (
	"net"
	"net/url"
	"strings"

	"github.com/nimbusdata/s3go/internal/s3utils"
)

// awsS3EndpointMap maps a region to its dualstack Amazon S3 endpoint,
// used for transfer-acceleration and regional routing.
var awsS3EndpointMap = map[string]string{
	"us-east-1":      "s3.dualstack.us-east-1.amazonaws.com",
	"us-east-2":      "s3.dualstack.us-east-2.amazonaws.com",
	"us-west-1":      "s3.dualstack.us-west-1.amazonaws.com",
	"us-west-2":      "s3.dualstack.us-west-2.amazonaws.com",
	"ca-central-1":   "s3.dualstack.ca-central-1.amazonaws.com",
	"eu-west-1":      "s3.dualstack.eu-west-1.amazonaws.com",
	"eu-west-2":      "s3.dualstack.eu-west-2.amazonaws.com",
	"eu-west-3":      "s3.dualstack.eu-west-3.amazonaws.com",
	"eu-central-1":   "s3.dualstack.eu-central-1.amazonaws.com",
	"eu-north-1":     "s3.dualstack.eu-north-1.amazonaws.com",
	"ap-east-1":      "s3.dualstack.ap-east-1.amazonaws.com",
	"ap-south-1":     "s3.dualstack.ap-south-1.amazonaws.com",
	"ap-southeast-1": "s3.dualstack.ap-southeast-1.amazonaws.com",
	"ap-southeast-2": "s3.dualstack.ap-southeast-2.amazonaws.com",
	"ap-northeast-1": "s3.dualstack.ap-northeast-1.amazonaws.com",
	"ap-northeast-2": "s3.dualstack.ap-northeast-2.amazonaws.com",
	"sa-east-1":      "s3.dualstack.sa-east-1.amazonaws.com",
	"us-gov-west-1":  "s3.dualstack.us-gov-west-1.amazonaws.com",
	"us-gov-east-1":  "s3.dualstack.us-gov-east-1.amazonaws.com",
}

func getS3Endpoint(bucketLocation string) string {
	if ep, ok := awsS3EndpointMap[bucketLocation]; ok {
		return ep
	}
	return "s3.dualstack.us-east-1.amazonaws.com"
}

// ErrTransferAccelerationBucket reports a bucket name that cannot be
// used with S3 Transfer Acceleration (must be DNS-compliant, no dots).
func ErrTransferAccelerationBucket(bucketName string) error {
	return ErrorResponse{
		Kind:       KindInvalidArgument,
		Code:       "InvalidArgument",
		Message:    "bucket name used for transfer acceleration must not contain '.'",
		BucketName: bucketName,
	}
}

// MakeTargetURL builds the request URL's host/path/query, for either
// path-style or virtual-host-style addressing, with object-key
// escaping. isVirtualHost decides which style; the caller is
// responsible for choosing it via IsVirtualHostStyleRequest.
func MakeTargetURL(cfg *Config, bucketName, objectName, bucketLocation string, isVirtualHost bool, queryValues url.Values) (*url.URL, error) {
	host := cfg.EndpointURL.Host

	if s3utils.IsAmazonEndpoint(*cfg.EndpointURL) {
		if cfg.S3AccelerateEndpoint != "" && bucketName != "" {
			if strings.Contains(bucketName, ".") {
				return nil, ErrTransferAccelerationBucket(bucketName)
			}
			host = cfg.S3AccelerateEndpoint
		} else if !s3utils.IsAmazonFIPSEndpoint(*cfg.EndpointURL) {
			host = getS3Endpoint(bucketLocation)
		}
	}

	scheme := cfg.EndpointURL.Scheme
	// Strip default ports so generated Host headers and pre-signed
	// URLs match what a browser/curl would send.
	if h, p, err := net.SplitHostPort(host); err == nil {
		if (scheme == "http" && p == "80") || (scheme == "https" && p == "443") {
			host = h
		}
	}

	urlStr := scheme + "://" + host + "/"
	if bucketName != "" {
		if isVirtualHost {
			urlStr = scheme + "://" + bucketName + "." + host + "/"
			if objectName != "" {
				urlStr += s3utils.EncodePath(objectName)
			}
		} else {
			urlStr += bucketName + "/"
			if objectName != "" {
				urlStr += s3utils.EncodePath(objectName)
			}
		}
	}

	if len(queryValues) > 0 {
		urlStr += "?" + s3utils.QueryEncode(queryValues)
	}

	return url.Parse(urlStr)
}

// IsVirtualHostStyleRequest reports whether bucketName should be
// addressed in the host rather than the path, for the given endpoint.
// isMakeBucket disables virtual-host style even on Amazon: MakeBucket
// calls must not use virtual DNS style since the bucket does not exist
// yet and host resolution may fail.
func IsVirtualHostStyleRequest(cfg *Config, bucketName string, isMakeBucket bool) bool {
	if bucketName == "" || isMakeBucket {
		return false
	}
	return s3utils.IsVirtualHostSupported(*cfg.EndpointURL, bucketName)
}
