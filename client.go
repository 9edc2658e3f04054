package s3go

import (
	"io"
	"net/http"

	"github.com/nimbusdata/s3go/internal/s3core"
	"github.com/nimbusdata/s3go/internal/s3utils"
	"github.com/nimbusdata/s3go/pkg/credentials"
)

// Client is a thin façade: argument validation plus a one-to-one
// public method per S3 operation, sitting on top of internal/s3core.Core.
type Client struct {
	core *s3core.Core
}

// Option configures a Client at construction time.
type Option func(*s3core.Config, *clientOptions)

type clientOptions struct {
	transport http.RoundTripper
}

// WithRegion pins the signing region, bypassing region discovery
// entirely: any pinned region skips the network round trip a bucket's
// first request would otherwise need.
func WithRegion(region string) Option {
	return func(cfg *s3core.Config, _ *clientOptions) { cfg.Region = region }
}

// WithAppInfo appends "appName/appVersion" to the User-Agent header once.
func WithAppInfo(appName, appVersion string) Option {
	return func(cfg *s3core.Config, _ *clientOptions) {
		cfg.AppName = appName
		cfg.AppVersion = appVersion
	}
}

// WithCustomTransport overrides the http.RoundTripper used for every request.
func WithCustomTransport(transport http.RoundTripper) Option {
	return func(_ *s3core.Config, o *clientOptions) { o.transport = transport }
}

// WithTransferAcceleration routes bucket requests to an Amazon endpoint
// through endpoint instead of the regional S3 endpoint. A bucket name
// containing '.' is rejected with an InvalidArgument error.
func WithTransferAcceleration(endpoint string) Option {
	return func(cfg *s3core.Config, _ *clientOptions) { cfg.S3AccelerateEndpoint = endpoint }
}

// WithSignatureV2 forces legacy SigV2 signing, for S3-compatible
// servers (e.g. Google Cloud Storage's XML API) that never learned SigV4.
func WithSignatureV2() Option {
	return func(cfg *s3core.Config, _ *clientOptions) {
		cfg.OverrideSignerType = credentials.SignatureV2
	}
}

// NewClient constructs a Client for endpoint (host[:port], no scheme)
// using a static access/secret key pair.
func NewClient(endpoint, accessKeyID, secretAccessKey string, secure bool, opts ...Option) (*Client, error) {
	return newClient(endpoint, credentials.NewStaticV4(accessKeyID, secretAccessKey, ""), secure, opts...)
}

// NewClientAnonymous constructs a Client that never signs requests,
// for reading from public buckets.
func NewClientAnonymous(endpoint string, secure bool, opts ...Option) (*Client, error) {
	return newClient(endpoint, credentials.NewAnonymous(), secure, opts...)
}

func newClient(endpoint string, creds *credentials.Credentials, secure bool, opts ...Option) (*Client, error) {
	endpointURL, err := s3core.ParseEndpoint(endpoint, secure)
	if err != nil {
		return nil, err
	}

	cfg := &s3core.Config{
		EndpointURL: endpointURL,
		Creds:       creds,
	}
	if s3utils.IsGoogleEndpoint(*endpointURL) {
		cfg.OverrideSignerType = credentials.SignatureV2
	}

	var clientOpts clientOptions
	for _, opt := range opts {
		opt(cfg, &clientOpts)
	}

	core, err := s3core.New(cfg, clientOpts.transport)
	if err != nil {
		return nil, err
	}
	return &Client{core: core}, nil
}

// TraceOn streams every request/response to w (Authorization redacted)
// for debugging.
func (c *Client) TraceOn(w io.Writer) {
	c.core.TraceOn(w, false)
}

// TraceOff stops request/response tracing.
func (c *Client) TraceOff() {
	c.core.TraceOff()
}
