// Package s3signer implements AWS Signature Version 4 request signing,
// query pre-signing, and POST-policy signing, plus the legacy
// Signature Version 2 fallback some S3-compatible servers still
// require.
package s3signer

import (
	"bytes"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nimbusdata/s3go/internal/hashutil"
)

// signature and API related constants.
const (
	authHeader        = "AWS4-HMAC-SHA256"
	iso8601DateFormat = "20060102T150405Z"
	yyyymmdd          = "20060102"

	// UnsignedPayload is used as the payload hash for pre-signed URLs,
	// where the body is not known/sent at signing time.
	UnsignedPayload = "UNSIGNED-PAYLOAD"
)

// User-Agent, Content-Length, Content-Type and Authorization are never
// part of the signed-headers set - signing them breaks pre-signed URLs
// replayed by other agents or passed through proxies that rewrite
// those headers.
var ignoredHeaders = map[string]bool{
	"Authorization":  true,
	"Content-Type":   true,
	"Content-Length": true,
	"User-Agent":     true,
}

func getSigningKey(secret, region string, t time.Time) []byte {
	date := hashutil.SumHMAC([]byte("AWS4"+secret), []byte(t.Format(yyyymmdd)))
	regionBytes := hashutil.SumHMAC(date, []byte(region))
	service := hashutil.SumHMAC(regionBytes, []byte("s3"))
	return hashutil.SumHMAC(service, []byte("aws4_request"))
}

func getSignature(signingKey []byte, stringToSign string) string {
	return hex.EncodeToString(hashutil.SumHMAC(signingKey, []byte(stringToSign)))
}

func getScope(region string, t time.Time) string {
	return strings.Join([]string{t.Format(yyyymmdd), region, "s3", "aws4_request"}, "/")
}

func getCredential(accessKeyID, region string, t time.Time) string {
	return accessKeyID + "/" + getScope(region, t)
}

// canonicalHeaders generates the signed list of canonical headers and
// the semicolon-joined signed-headers string for req.
func canonicalHeaders(req *http.Request) (canonical string, signed string) {
	var names []string
	vals := make(map[string][]string)
	for k, vv := range req.Header {
		if ignoredHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		lk := strings.ToLower(k)
		names = append(names, lk)
		vals[lk] = vv
	}
	names = append(names, "host")
	sort.Strings(names)

	var buf bytes.Buffer
	for _, k := range names {
		buf.WriteString(k)
		buf.WriteByte(':')
		if k == "host" {
			buf.WriteString(req.Host)
			if req.Host == "" {
				buf.Reset()
				buf.WriteString(k)
				buf.WriteByte(':')
				buf.WriteString(req.URL.Host)
			}
			buf.WriteByte('\n')
			continue
		}
		for idx, v := range vals[k] {
			if idx > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(strings.TrimSpace(v))
		}
		buf.WriteByte('\n')
	}
	return buf.String(), strings.Join(names, ";")
}

// getURLEncodedPath re-escapes each path segment for the canonical
// request, without touching the '/' separators.
func getURLEncodedPath(path string) string {
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = encodeCanonicalSegment(s)
	}
	return strings.Join(segments, "/")
}

func encodeCanonicalSegment(s string) string {
	const unreserved = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_.~"
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if strings.IndexByte(unreserved, c) != -1 {
			out.WriteByte(c)
			continue
		}
		out.WriteByte('%')
		const hex = "0123456789ABCDEF"
		out.WriteByte(hex[c>>4])
		out.WriteByte(hex[c&0xf])
	}
	return out.String()
}

func canonicalQueryString(u *url.URL) string {
	return strings.Replace(u.Query().Encode(), "+", "%20", -1)
}

func getCanonicalRequest(req *http.Request, hashedPayload string) string {
	canonHeaders, signedHeaders := canonicalHeaders(req)
	return strings.Join([]string{
		req.Method,
		getURLEncodedPath(req.URL.Path),
		canonicalQueryString(req.URL),
		canonHeaders,
		signedHeaders,
		hashedPayload,
	}, "\n")
}

func getStringToSign(canonicalRequest, region string, t time.Time) string {
	return authHeader + "\n" + t.Format(iso8601DateFormat) + "\n" +
		getScope(region, t) + "\n" +
		hashutil.Sum256Hex([]byte(canonicalRequest))
}

// SignV4 signs req in place for the ordinary header-auth case: it sets
// x-amz-date, expects x-amz-content-sha256 to already be set by the
// caller (the payload hash is always precomputed rather than
// streamed), and sets Authorization. region and t are both
// caller-supplied so the function is pure given its inputs.
func SignV4(req *http.Request, accessKeyID, secretAccessKey, sessionToken, region string, t time.Time) *http.Request {
	req.Header.Set("X-Amz-Date", t.Format(iso8601DateFormat))
	if sessionToken != "" {
		req.Header.Set("X-Amz-Security-Token", sessionToken)
	}

	hashedPayload := req.Header.Get("X-Amz-Content-Sha256")
	if hashedPayload == "" {
		hashedPayload = hashutil.EmptySHA256Hex
		req.Header.Set("X-Amz-Content-Sha256", hashedPayload)
	}

	_, signedHeaders := canonicalHeaders(req)
	canonicalRequest := getCanonicalRequest(req, hashedPayload)
	stringToSign := getStringToSign(canonicalRequest, region, t)
	signingKey := getSigningKey(secretAccessKey, region, t)
	signature := getSignature(signingKey, stringToSign)

	auth := strings.Join([]string{
		authHeader + " Credential=" + getCredential(accessKeyID, region, t),
		"SignedHeaders=" + signedHeaders,
		"Signature=" + signature,
	}, ", ")
	req.Header.Set("Authorization", auth)
	return req
}

// PreSignV4 returns a fully query-signed URL, valid for expires
// seconds. Bounds on expires (1 <= expires <= 604800) are validated by
// the caller (the façade/client layer), not here - the signer is a
// pure function of its inputs.
func PreSignV4(req *http.Request, accessKeyID, secretAccessKey, sessionToken, region string, expires int64, t time.Time) *http.Request {
	query := req.URL.Query()
	query.Set("X-Amz-Algorithm", authHeader)
	query.Set("X-Amz-Date", t.Format(iso8601DateFormat))
	query.Set("X-Amz-Expires", strconv.FormatInt(expires, 10))
	query.Set("X-Amz-Credential", getCredential(accessKeyID, region, t))
	if sessionToken != "" {
		query.Set("X-Amz-Security-Token", sessionToken)
	}
	req.URL.RawQuery = query.Encode()

	_, signedHeaders := canonicalHeaders(req)
	query = req.URL.Query()
	query.Set("X-Amz-SignedHeaders", signedHeaders)
	req.URL.RawQuery = query.Encode()

	signingKey := getSigningKey(secretAccessKey, region, t)
	canonicalRequest := getCanonicalRequest(req, UnsignedPayload)
	stringToSign := getStringToSign(canonicalRequest, region, t)
	signature := getSignature(signingKey, stringToSign)

	req.URL.RawQuery += "&X-Amz-Signature=" + signature
	return req
}

// PostPresignSignatureV4 signs a base64-encoded POST policy document:
// hex HMAC-SHA256 of policyBase64 under the derived signing key for
// region/date t.
func PostPresignSignatureV4(policyBase64, secretAccessKey, region string, t time.Time) string {
	signingKey := getSigningKey(secretAccessKey, region, t)
	return getSignature(signingKey, policyBase64)
}

// Credential returns the "<access-key>/<scope>" credential string for
// date t/region, the value POST-policy callers embed as the
// x-amz-credential form field.
func Credential(accessKeyID, region string, t time.Time) string {
	return getCredential(accessKeyID, region, t)
}

// AmzDate formats t the way every SigV4 mode expects it on the wire.
func AmzDate(t time.Time) string { return t.Format(iso8601DateFormat) }

// DateStamp formats t as the bare yyyymmdd scope date.
func DateStamp(t time.Time) string { return t.Format(yyyymmdd) }

// Algorithm is the literal algorithm name used in every mode's output.
const Algorithm = authHeader
