package s3core

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/nimbusdata/s3go/internal/s3utils"
	"github.com/nimbusdata/s3go/pkg/credentials"
)

// Config is the core's view of a client's configuration: endpoint,
// credentials, user-agent, and the path-style/virtual-host addressing
// flag derived from the endpoint host.
type Config struct {
	EndpointURL *url.URL
	Creds       *credentials.Credentials

	// OverrideSignerType forces a signer choice regardless of what the
	// credentials provider returns, set for Google endpoints in
	// newClient and by the WithSignatureV2 option.
	OverrideSignerType credentials.SignatureType

	// Region pins the signing region; empty means "discover it".
	Region string

	AppName    string
	AppVersion string

	// S3AccelerateEndpoint enables S3 transfer acceleration when set.
	S3AccelerateEndpoint string
}

// ParseEndpoint builds the endpoint URL from endpoint (host[:port], no
// scheme) and secure: https when secure is set, http otherwise. An
// endpoint that carries a scheme of its own, or has no host, fails
// construction.
func ParseEndpoint(endpoint string, secure bool) (*url.URL, error) {
	if strings.Contains(endpoint, "://") {
		return nil, fmt.Errorf("s3go: endpoint %q must not include a scheme", endpoint)
	}
	scheme := "http"
	if secure {
		scheme = "https"
	}
	u, err := url.Parse(scheme + "://" + endpoint)
	if err != nil {
		return nil, fmt.Errorf("s3go: invalid endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("s3go: endpoint %q has no host", endpoint)
	}
	return u, nil
}

// IsPathStyle reports whether cfg must address buckets in the URL path
// rather than the host. Amazon (any amazonaws.com host) and Google
// Cloud Storage endpoints use virtual-host style for a DNS-compatible
// bucket name without dots; everything else, including self-hosted
// endpoints, is path-style here (MakeTargetURL still rewrites the host
// to the region-specific Amazon endpoint for Amazon traffic; see url.go).
func (c *Config) IsPathStyle(bucketName string) bool {
	if bucketName == "" {
		return true
	}
	return !s3utils.IsVirtualHostSupported(*c.EndpointURL, bucketName)
}

// UserAgent renders "s3go (OS; ARCH) lib/VERSION [app/VERSION]".
func (c *Config) UserAgent() string {
	ua := libraryUserAgent
	if c.AppName != "" && c.AppVersion != "" {
		ua += " " + c.AppName + "/" + c.AppVersion
	}
	return ua
}
