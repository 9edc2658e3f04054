package s3utils

import (
	"net/url"
	"sort"
	"strings"
)

// IsAmazonEndpoint reports whether u targets Amazon S3 proper: the
// canonical s3.amazonaws.com entrypoint, or any regional/dualstack/
// accelerate/FIPS host under the amazonaws.com domain. Everything
// else is treated as a self-hosted, path-style endpoint.
func IsAmazonEndpoint(u url.URL) bool {
	host := hostOnly(u.Host)
	return host == "s3.amazonaws.com" || strings.HasSuffix(host, ".amazonaws.com")
}

// IsAmazonFIPSEndpoint reports whether u is a FIPS-compliant Amazon S3 endpoint.
func IsAmazonFIPSEndpoint(u url.URL) bool {
	host := hostOnly(u.Host)
	return strings.HasPrefix(host, "s3-fips.") && strings.HasSuffix(host, ".amazonaws.com")
}

// IsGoogleEndpoint reports whether u targets Google Cloud Storage.
func IsGoogleEndpoint(u url.URL) bool {
	host := hostOnly(u.Host)
	return host == "storage.googleapis.com"
}

// GetRegionFromURL extracts an AWS region code from a regional S3
// hostname such as s3.eu-west-1.amazonaws.com; returns "" when the host
// carries no region (s3.amazonaws.com, self-hosted, accelerate).
func GetRegionFromURL(u url.URL) string {
	host := hostOnly(u.Host)
	if !strings.HasSuffix(host, ".amazonaws.com") {
		return ""
	}
	host = strings.TrimSuffix(host, ".amazonaws.com")
	host = strings.TrimPrefix(host, "s3.")
	host = strings.TrimPrefix(host, "s3-")
	host = strings.TrimPrefix(host, "dualstack.")
	if host == "" || host == "s3" || strings.HasPrefix(host, "accelerate") {
		return ""
	}
	return host
}

func hostOnly(hostport string) string {
	if i := strings.LastIndex(hostport, ":"); i != -1 {
		// Guard against IPv6 literals; a bare port separator on an
		// IPv6 host would have a ']' just before it.
		if !strings.Contains(hostport[i:], "]") {
			return hostport[:i]
		}
	}
	return hostport
}

// QueryEncode canonicalizes url.Values into an '&'-joined,
// lexicographically sorted list of escaped "k=v" (or bare "k" when v
// is empty) tokens.
func QueryEncode(v url.Values) string {
	if len(v) == 0 {
		return ""
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf strings.Builder
	for _, k := range keys {
		vals := v[k]
		sort.Strings(vals)
		if len(vals) == 0 {
			vals = []string{""}
		}
		for _, val := range vals {
			if buf.Len() > 0 {
				buf.WriteByte('&')
			}
			buf.WriteString(EncodeQueryValue(k))
			if val != "" {
				buf.WriteByte('=')
				buf.WriteString(EncodeQueryValue(val))
			}
		}
	}
	return buf.String()
}
