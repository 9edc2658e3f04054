package s3core

import (
	"net/url"
	"strings"
	"testing"

	"github.com/nimbusdata/s3go/internal/s3utils"
)

func mustParseURL(t *testing.T, raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

// A self-hosted endpoint always produces a path-style URL.
func TestMakeTargetURLPathStyle(t *testing.T) {
	cfg := &Config{EndpointURL: mustParseURL(t, "http://play.example.com:9000")}

	u, err := MakeTargetURL(cfg, "mybucket", "some key.txt", "", false, nil)
	if err != nil {
		t.Fatalf("MakeTargetURL: %v", err)
	}

	if u.Host != "play.example.com:9000" {
		t.Errorf("host = %q, want play.example.com:9000", u.Host)
	}
	if u.Path != "/mybucket/some%20key.txt" && u.EscapedPath() != "/mybucket/some%20key.txt" {
		t.Errorf("escaped path = %q, want /mybucket/some%%20key.txt", u.EscapedPath())
	}
}

// Object-key escaping round trip for every character in the reserved set.
func TestEncodePathReservedCharacters(t *testing.T) {
	const raw = "! * ' ( ) ; : @ & = + $ , / ? # [ ] %"
	encoded := s3utils.EncodePath(raw)

	// '/' must survive unescaped; every other character in the input
	// must not appear literally in the output (it was ASCII and none
	// of these are in the unreserved set). '%' starts every escape, so
	// for it the test looks for its own escape, %25, instead.
	if got := encoded; !containsRune(got, '/') {
		t.Errorf("EncodePath must preserve '/', got %q", got)
	}
	for _, c := range raw {
		if c == '/' || c == ' ' {
			continue
		}
		if c == '%' {
			if !strings.Contains(encoded, "%25") {
				t.Errorf("EncodePath did not escape '%%' as %%25 in %q", encoded)
			}
			continue
		}
		if containsRune(encoded, c) {
			t.Errorf("EncodePath left reserved char %q unescaped in %q", c, encoded)
		}
	}

	// Round trip: percent-decoding the encoded form returns the
	// original string.
	decoded, err := url.PathUnescape(encoded)
	if err != nil {
		t.Fatalf("PathUnescape: %v", err)
	}
	if decoded != raw {
		t.Errorf("round trip mismatch: got %q, want %q", decoded, raw)
	}
}

func TestEncodeQueryValueEscapesSlash(t *testing.T) {
	encoded := s3utils.EncodeQueryValue("a/b")
	if containsRune(encoded, '/') {
		t.Errorf("EncodeQueryValue must escape '/', got %q", encoded)
	}
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		t.Fatalf("QueryUnescape: %v", err)
	}
	if decoded != "a/b" {
		t.Errorf("round trip mismatch: got %q, want a/b", decoded)
	}
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}

// Virtual-host style is chosen only for Amazon endpoints with a
// DNS-compliant bucket name, never for MakeBucket, an empty bucket
// name, or a self-hosted endpoint.
func TestIsVirtualHostStyleRequest(t *testing.T) {
	amazonCfg := &Config{EndpointURL: mustParseURL(t, "https://s3.amazonaws.com")}
	if !IsVirtualHostStyleRequest(amazonCfg, "my-bucket", false) {
		t.Error("expected virtual-host style for a DNS-compliant bucket on s3.amazonaws.com")
	}
	if IsVirtualHostStyleRequest(amazonCfg, "my-bucket", true) {
		t.Error("MakeBucket must never use virtual-host style")
	}
	if IsVirtualHostStyleRequest(amazonCfg, "", false) {
		t.Error("empty bucket name must never use virtual-host style")
	}

	selfHostedCfg := &Config{EndpointURL: mustParseURL(t, "http://play.example.com:9000")}
	if IsVirtualHostStyleRequest(selfHostedCfg, "my-bucket", false) {
		t.Error("self-hosted endpoints must stay path-style")
	}
}

func TestMakeTargetURLVirtualHostStyle(t *testing.T) {
	cfg := &Config{EndpointURL: mustParseURL(t, "https://s3.amazonaws.com")}
	u, err := MakeTargetURL(cfg, "examplebucket", "test.txt", "us-east-1", true, nil)
	if err != nil {
		t.Fatalf("MakeTargetURL: %v", err)
	}
	if u.Host != "examplebucket.s3.dualstack.us-east-1.amazonaws.com" {
		t.Errorf("host = %q, want bucket in the virtual-host prefix", u.Host)
	}
	if u.EscapedPath() != "/test.txt" {
		t.Errorf("path = %q, want /test.txt", u.EscapedPath())
	}
}

func TestMakeTargetURLTransferAccelerationRejectsDottedBucket(t *testing.T) {
	cfg := &Config{
		EndpointURL:          mustParseURL(t, "https://s3.amazonaws.com"),
		S3AccelerateEndpoint: "s3-accelerate.amazonaws.com",
	}
	_, err := MakeTargetURL(cfg, "my.dotted.bucket", "", "", true, nil)
	if err == nil {
		t.Fatal("expected an error for a dotted bucket name under transfer acceleration")
	}
	er := ToErrorResponse(err)
	if er.Kind != KindInvalidArgument {
		t.Errorf("error kind = %v, want KindInvalidArgument", er.Kind)
	}
}
