package s3signer

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SignV2 implements the legacy AWS Signature Version 2 header signing
// mode, kept for the Google Cloud Storage fallback a client selects
// automatically via s3utils.IsGoogleEndpoint.
func SignV2(req *http.Request, accessKeyID, secretAccessKey string, virtualHost bool) *http.Request {
	if req.Header.Get("Date") == "" {
		req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	stringToSign := stringToSignV2(req, virtualHost)
	signature := hmacSHA1Base64(secretAccessKey, stringToSign)
	req.Header.Set("Authorization", "AWS "+accessKeyID+":"+signature)
	return req
}

// PreSignV2 implements V2 query pre-signing.
func PreSignV2(req *http.Request, accessKeyID, secretAccessKey string, expires int64, virtualHost bool) *http.Request {
	epochExpires := time.Now().UTC().Unix() + expires
	path := canonicalizedResourceV2(req, virtualHost)
	stringToSign := fmt.Sprintf("%s\n\n\n%d\n%s", req.Method, epochExpires, path)
	signature := hmacSHA1Base64(secretAccessKey, stringToSign)

	query := req.URL.Query()
	query.Set("AWSAccessKeyId", accessKeyID)
	query.Set("Expires", strconv.FormatInt(epochExpires, 10))
	query.Set("Signature", signature)
	req.URL.RawQuery = query.Encode()
	return req
}

func hmacSHA1Base64(secret, data string) string {
	hm := hmac.New(sha1.New, []byte(secret))
	hm.Write([]byte(data))
	var buf bytes.Buffer
	enc := base64.NewEncoder(base64.StdEncoding, &buf)
	enc.Write(hm.Sum(nil))
	enc.Close()
	return buf.String()
}

func canonicalizedResourceV2(req *http.Request, virtualHost bool) string {
	path := req.URL.Path
	if virtualHost {
		// Virtual-host bucket lives in the Host header; CanonicalizedResource
		// still needs the "/bucket" prefix S3 expects.
		host := req.Host
		if i := strings.Index(host, "."); i != -1 {
			path = "/" + host[:i] + path
		}
	}
	if path == "" {
		path = "/"
	}
	return path
}

func stringToSignV2(req *http.Request, virtualHost bool) string {
	headers := canonicalizedAmzHeadersV2(req)
	return strings.Join([]string{
		req.Method,
		req.Header.Get("Content-Md5"),
		req.Header.Get("Content-Type"),
		req.Header.Get("Date"),
		headers + canonicalizedResourceV2(req, virtualHost),
	}, "\n")
}

func canonicalizedAmzHeadersV2(req *http.Request) string {
	var keys []string
	for k := range req.Header {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "x-amz-") {
			keys = append(keys, lk)
		}
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	for _, k := range keys {
		buf.WriteString(k)
		buf.WriteByte(':')
		buf.WriteString(strings.Join(req.Header[http.CanonicalHeaderKey(k)], ","))
		buf.WriteByte('\n')
	}
	return buf.String()
}
