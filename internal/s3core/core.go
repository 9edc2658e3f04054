// Package s3core implements the request pipeline underneath the s3go
// façade: URL and header construction, SigV4 signing (delegated to
// internal/s3signer), region resolution, response dispatch, and
// multipart orchestration.
package s3core

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	"github.com/nimbusdata/s3go/internal/hashutil"
	"github.com/nimbusdata/s3go/internal/s3signer"
	"github.com/nimbusdata/s3go/internal/s3utils"
	"github.com/nimbusdata/s3go/pkg/credentials"
)

// Core ties the pipeline together behind one entry point, executeMethod,
// that every façade method and the multipart orchestrator funnel
// through: endpoint and credentials (Config), the underlying
// http.Client, a per-bucket region cache, and the tracing fields.
type Core struct {
	Config *Config

	httpClient     *http.Client
	bucketLocCache *bucketLocationCache

	mu              sync.Mutex
	isTraceEnabled  bool
	traceErrorsOnly bool
	traceOutput     io.Writer
}

// New builds a Core for cfg: it installs a cookie jar (so redirect-
// driven re-signing has the original request's cookies to replay) and
// a CheckRedirect hook that re-signs cross-host redirects.
func New(cfg *Config, transport http.RoundTripper) (*Core, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	c := &Core{
		Config:         cfg,
		bucketLocCache: newBucketLocationCache(),
	}
	c.httpClient = &http.Client{
		Jar:           jar,
		Transport:     transport,
		CheckRedirect: c.redirectHeaders,
	}
	return c, nil
}

// TraceOn enables request/response dumping to w, redacting the
// Authorization signature.
func (c *Core) TraceOn(w io.Writer, errorsOnly bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.traceOutput = w
	c.isTraceEnabled = true
	c.traceErrorsOnly = errorsOnly
}

// TraceOff disables tracing.
func (c *Core) TraceOff() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isTraceEnabled = false
	c.traceOutput = nil
}

// redirectHeaders re-signs a redirected request: it copies over
// headers the new request lacks (but never an Authorization header
// crossing hosts), then re-derives the signing region from the
// redirected URL if no region override is pinned.
//
// ListBuckets is the one call this hook refuses to redirect at all. S3
// answers an unauthorized ListBuckets with a 307 TemporaryRedirect
// rather than a 403, so a request whose shape matches ListBuckets
// (root path, no bucket) reaching this hook can only mean that
// rewrite; it is surfaced as KindAccessDenied instead of being
// followed.
func (c *Core) redirectHeaders(req *http.Request, via []*http.Request) error {
	if len(via) >= 5 {
		return fmt.Errorf("s3go: stopped after 5 redirects")
	}
	if len(via) == 0 {
		return nil
	}
	if first := via[0]; first.Method == http.MethodGet && first.URL.Path == "/" {
		// A virtual-host bucket request also has path "/"; only the
		// bucket-less endpoint host identifies ListBuckets.
		root, err := MakeTargetURL(c.Config, "", "", getDefaultLocation(c.Config.EndpointURL, c.Config.Region), false, nil)
		if err == nil && first.URL.Host == root.Host {
			return ErrorResponse{
				Kind:    KindAccessDenied,
				Code:    "AccessDenied",
				Message: "ListBuckets redirected with TemporaryRedirect, treated as access denied",
			}
		}
	}
	last := via[len(via)-1]
	var reAuth bool
	for k, v := range last.Header {
		if k == "Authorization" && req.Host != last.Host {
			reAuth = true
			continue
		}
		if _, ok := req.Header[k]; !ok {
			req.Header[k] = v
		}
	}
	if !reAuth {
		return nil
	}

	value, err := c.Config.Creds.Get()
	if err != nil {
		return err
	}
	region := c.Config.Region
	if region == "" {
		region = s3utils.GetRegionFromURL(*req.URL)
	}
	if region == "" {
		region = DefaultRegion
	}
	signerType := c.signerTypeFor(value)
	if signerType.IsV2() {
		return fmt.Errorf("s3go: signature V2 cannot support redirection")
	}
	s3signer.SignV4(req, value.AccessKeyID, value.SecretAccessKey, value.SessionToken, region, time.Now().UTC())
	return nil
}

func (c *Core) signerTypeFor(value credentials.Value) credentials.SignatureType {
	signerType := value.SignerType
	if c.Config.OverrideSignerType != credentials.SignatureDefault {
		signerType = c.Config.OverrideSignerType
	}
	if value.SignerType.IsAnonymous() {
		signerType = credentials.SignatureAnonymous
	}
	return signerType
}

// requestMetadata describes one S3 call: built fresh per invocation
// and left unmodified once passed to executeMethod.
type requestMetadata struct {
	presignURL bool

	bucketName   string
	objectName   string
	queryValues  url.Values
	customHeader http.Header
	expires      int64

	bucketLocation   string
	contentBody      io.Reader
	contentLength    int64
	contentMD5Base64 string
	contentSHA256Hex string

	// streamingSignV4 requests the chunked streaming signer instead of
	// a precomputed body hash.
	streamingSignV4 bool
}

// getBucketLocation resolves metadata.bucketName's region, consulting
// the cache before issuing "GET /{bucket}?location" against
// DefaultRegion. Self-hosted endpoints never reach the network branch:
// a non-Amazon host with no pinned Config.Region short-circuits to
// DefaultRegion directly.
func (c *Core) getBucketLocation(ctx context.Context, bucketName string) (string, error) {
	if err := s3utils.CheckValidBucketName(bucketName); err != nil {
		return "", err
	}
	if c.Config.Region != "" {
		return c.Config.Region, nil
	}
	if !s3utils.IsAmazonEndpoint(*c.Config.EndpointURL) {
		return DefaultRegion, nil
	}
	if location, ok := c.bucketLocCache.Get(bucketName); ok {
		return location, nil
	}

	req, err := c.getBucketLocationRequest(ctx, bucketName)
	if err != nil {
		return "", err
	}
	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer closeResponse(resp)

	location, err := processBucketLocationResponse(resp, bucketName)
	if err != nil {
		return "", err
	}
	c.bucketLocCache.Set(bucketName, location)
	return location, nil
}

// getBucketLocationRequest builds the "GET /{bucket}?location" request,
// always path-style and always signed against DefaultRegion,
// independent of newRequest's own region-discovery so that discovery
// itself cannot recurse into discovery.
func (c *Core) getBucketLocationRequest(ctx context.Context, bucketName string) (*http.Request, error) {
	values := url.Values{"location": []string{""}}
	targetURL, err := MakeTargetURL(c.Config, bucketName, "", DefaultRegion, false, values)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.Config.UserAgent())

	value, err := c.Config.Creds.Get()
	if err != nil {
		return nil, err
	}
	signerType := c.signerTypeFor(value)
	if signerType.IsAnonymous() {
		return req, nil
	}
	if signerType.IsV2() {
		return s3signer.SignV2(req, value.AccessKeyID, value.SecretAccessKey, false), nil
	}
	req.Header.Set("X-Amz-Content-Sha256", hashutil.EmptySHA256Hex)
	return s3signer.SignV4(req, value.AccessKeyID, value.SecretAccessKey, value.SessionToken, DefaultRegion, time.Now().UTC()), nil
}

func getDefaultLocation(u *url.URL, regionOverride string) string {
	if regionOverride != "" {
		return regionOverride
	}
	if region := s3utils.GetRegionFromURL(*u); region != "" {
		return region
	}
	return DefaultRegion
}

// newRequest builds and signs an *http.Request from metadata: address
// construction, region resolution, and signing all happen here.
func (c *Core) newRequest(ctx context.Context, method string, metadata requestMetadata) (*http.Request, error) {
	if method == "" {
		method = http.MethodPost
	}

	location := metadata.bucketLocation
	if location == "" {
		if metadata.bucketName != "" {
			var err error
			location, err = c.getBucketLocation(ctx, metadata.bucketName)
			if err != nil {
				return nil, err
			}
		}
		if location == "" {
			location = getDefaultLocation(c.Config.EndpointURL, c.Config.Region)
		}
	}

	isMakeBucket := metadata.objectName == "" && method == http.MethodPut && len(metadata.queryValues) == 0
	isVirtualHost := IsVirtualHostStyleRequest(c.Config, metadata.bucketName, isMakeBucket)

	targetURL, err := MakeTargetURL(c.Config, metadata.bucketName, metadata.objectName, location, isVirtualHost, metadata.queryValues)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, targetURL.String(), nil)
	if err != nil {
		return nil, err
	}

	value, err := c.Config.Creds.Get()
	if err != nil {
		return nil, err
	}
	signerType := c.signerTypeFor(value)

	if metadata.expires != 0 && metadata.presignURL {
		if signerType.IsAnonymous() {
			return nil, ErrInvalidArgument("presigned URLs cannot be generated with anonymous credentials")
		}
		if signerType.IsV2() {
			return s3signer.PreSignV2(req, value.AccessKeyID, value.SecretAccessKey, metadata.expires, isVirtualHost), nil
		}
		return s3signer.PreSignV4(req, value.AccessKeyID, value.SecretAccessKey, value.SessionToken, location, metadata.expires, time.Now().UTC()), nil
	}

	req.Header.Set("User-Agent", c.Config.UserAgent())
	for k, v := range metadata.customHeader {
		if len(v) > 0 {
			req.Header.Set(k, v[0])
		}
	}

	if metadata.contentLength == 0 {
		req.Body = nil
	} else {
		req.Body = io.NopCloser(metadata.contentBody)
	}
	req.ContentLength = metadata.contentLength
	if req.ContentLength <= -1 {
		req.TransferEncoding = []string{"chunked"}
	}
	if metadata.contentMD5Base64 != "" {
		req.Header.Set("Content-Md5", metadata.contentMD5Base64)
	}

	if signerType.IsAnonymous() {
		return req, nil
	}

	t := time.Now().UTC()
	switch {
	case signerType.IsV2():
		return s3signer.SignV2(req, value.AccessKeyID, value.SecretAccessKey, isVirtualHost), nil
	case metadata.streamingSignV4 && metadata.objectName != "" && method == http.MethodPut && metadata.customHeader.Get("X-Amz-Copy-Source") == "":
		return s3signer.StreamingSignV4(req, value.AccessKeyID, value.SecretAccessKey, value.SessionToken, location, metadata.contentLength, t), nil
	default:
		// The payload is always fully materialized before signing, so a
		// true body hash is used rather than UNSIGNED-PAYLOAD - the caller
		// is expected to have set contentSHA256Hex already.
		shaHeader := metadata.contentSHA256Hex
		if shaHeader == "" {
			shaHeader = hashutil.EmptySHA256Hex
		}
		req.Header.Set("X-Amz-Content-Sha256", shaHeader)
		return s3signer.SignV4(req, value.AccessKeyID, value.SecretAccessKey, value.SessionToken, location, t), nil
	}
}

// processBucketLocationResponse extracts the region from a
// "GET ?location" response. An AccessDenied or region-mismatch error
// falls back to the region the error itself names, or us-east-1,
// rather than failing the call outright - this keeps anonymous or
// misconfigured-region requests usable wherever the caller can still
// proceed with a best-guess region.
func processBucketLocationResponse(resp *http.Response, bucketName string) (string, error) {
	if resp.StatusCode != http.StatusOK {
		err := httpRespToErrorResponse(resp, bucketName, "")
		er := ToErrorResponse(err)
		switch er.Code {
		case "AuthorizationHeaderMalformed", "InvalidRegion", "AccessDenied":
			if er.Region == "" {
				return DefaultRegion, nil
			}
			return er.Region, nil
		}
		return "", err
	}

	var lc locationConstraint
	if err := xmlDecode(resp.Body, &lc); err != nil {
		return "", err
	}
	location := lc.Value
	if location == "" {
		location = DefaultRegion
	}
	if location == "EU" {
		location = "eu-west-1"
	}
	return location, nil
}

// do issues req, optionally dumping it for tracing. It surfaces a
// nicer message for the notorious closed-keepalive EOF error, unwraps
// the ErrorResponse redirectHeaders may have raised, and never returns
// a nil response without an error.
func (c *Core) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if urlErr, ok := err.(*url.Error); ok {
			if er, ok := urlErr.Err.(ErrorResponse); ok {
				return nil, er
			}
			if strings.Contains(urlErr.Err.Error(), "EOF") {
				return nil, &url.Error{Op: urlErr.Op, URL: urlErr.URL, Err: fmt.Errorf("connection closed by foreign host, retry")}
			}
		}
		return nil, err
	}
	if resp == nil {
		return nil, ErrorResponse{Kind: KindNetwork, Message: "empty response from transport"}
	}

	c.mu.Lock()
	traceOn := c.isTraceEnabled
	traceErrOnly := c.traceErrorsOnly
	traceOut := c.traceOutput
	c.mu.Unlock()
	if traceOn && !(traceErrOnly && resp.StatusCode == http.StatusOK) {
		if err := c.dumpHTTP(req, resp, traceOut); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (c *Core) dumpHTTP(req *http.Request, resp *http.Response, out io.Writer) error {
	id := uuid.NewString()
	fmt.Fprintf(out, "---------START-HTTP(%s)---------\n", id)

	origAuth := req.Header.Get("Authorization")
	if origAuth != "" {
		req.Header.Set("Authorization", redactSignature(origAuth))
	}
	reqTrace, err := httputil.DumpRequestOut(req, false)
	if err != nil {
		return err
	}
	fmt.Fprint(out, string(reqTrace))

	var respTrace []byte
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusNoContent {
		respTrace, err = httputil.DumpResponse(resp, true)
	} else {
		respTrace, err = httputil.DumpResponse(resp, false)
	}
	if err != nil {
		return err
	}
	fmt.Fprint(out, strings.TrimSuffix(string(respTrace), "\r\n"))
	fmt.Fprintf(out, "---------END-HTTP(%s)---------\n", id)
	return nil
}

func redactSignature(auth string) string {
	idx := strings.Index(auth, "Signature=")
	if idx == -1 {
		return auth
	}
	return auth[:idx+len("Signature=")] + "**REDACTED**"
}

// successStatus lists the HTTP statuses every call treats as success:
// 200 and 204 cover the ordinary case, 206 covers a ranged GetObject.
// No operation in this client needs a narrower success set, so this
// stays a fixed list rather than a per-call parameter.
var successStatus = []int{http.StatusOK, http.StatusNoContent, http.StatusPartialContent}

// executeMethod instantiates metadata into a request, retrying in a
// binomially delayed manner up to MaxRetry times: seekable bodies are
// retried from offset 0, and any retryable S3 code, HTTP status or
// transport error loops again. An AuthorizationHeaderMalformed or
// InvalidRegion reply naming a region is recorded in the region cache
// and retried only when the bucket has no cached region yet; newRequest
// resolves the region before sending (and caches it for Amazon
// endpoints), so that retry is signed with the same region as the
// failed attempt. Any other non-success status is returned as an
// ErrorResponse.
func (c *Core) executeMethod(ctx context.Context, method string, metadata requestMetadata) (*http.Response, error) {
	var bodySeeker io.Seeker
	var isRetryable bool
	reqRetry := MaxRetry

	if metadata.contentBody != nil {
		bodySeeker, isRetryable = metadata.contentBody.(io.Seeker)
		if !isRetryable {
			reqRetry = 1
		}
		if bodyCloser, ok := metadata.contentBody.(io.Closer); ok {
			defer bodyCloser.Close()
		}
	}

	doneCh := make(chan struct{})
	defer close(doneCh)

	var res *http.Response
	var err error

	for range newRetryTimer(ctx, reqRetry, DefaultRetryUnit, DefaultRetryCap, MaxJitter, doneCh) {
		if isRetryable {
			if _, serr := bodySeeker.Seek(0, io.SeekStart); serr != nil {
				return nil, serr
			}
		}

		var req *http.Request
		req, err = c.newRequest(ctx, method, metadata)
		if err != nil {
			er := ToErrorResponse(err)
			if isS3CodeRetryable(er.Code) {
				continue
			}
			return nil, err
		}

		res, err = c.do(req)
		if err != nil {
			if isHTTPReqErrorRetryable(err) {
				continue
			}
			return nil, err
		}

		for _, ok := range successStatus {
			if ok == res.StatusCode {
				return res, nil
			}
		}

		errBodyBytes, rerr := io.ReadAll(res.Body)
		closeResponse(res)
		if rerr != nil {
			return nil, rerr
		}
		errBodySeeker := bytes.NewReader(errBodyBytes)
		res.Body = io.NopCloser(errBodySeeker)

		er := ToErrorResponse(httpRespToErrorResponse(res, metadata.bucketName, metadata.objectName))
		err = er
		errBodySeeker.Seek(0, io.SeekStart)
		res.Body = io.NopCloser(errBodySeeker)

		if metadata.bucketLocation == "" && c.Config.Region == "" {
			if er.Code == "AuthorizationHeaderMalformed" || er.Code == "InvalidRegion" {
				if metadata.bucketName != "" && er.Region != "" {
					if _, hasCached := c.bucketLocCache.Get(metadata.bucketName); !hasCached {
						c.bucketLocCache.Set(metadata.bucketName, er.Region)
						continue
					}
				}
			}
		}

		if isS3CodeRetryable(er.Code) {
			continue
		}
		if isHTTPStatusRetryable(res.StatusCode) {
			continue
		}
		break
	}
	return res, err
}

// xmlDecode decodes a single XML document from r into v.
func xmlDecode(r io.Reader, v interface{}) error {
	return xml.NewDecoder(r).Decode(v)
}
