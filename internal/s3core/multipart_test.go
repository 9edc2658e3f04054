package s3core

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/nimbusdata/s3go/pkg/credentials"
)

// recordedRequest captures enough of an *http.Request for the fake
// transport's assertions without holding onto the request itself
// (its body gets consumed).
type recordedRequest struct {
	method string
	query  url.Values
	body   []byte
}

// fakeS3Transport answers the handful of multipart-related requests
// C5 issues, entirely in memory - no real network, no real S3. It
// treats the bucket as self-hosted so no region-discovery request
// ever needs to be handled.
type fakeS3Transport struct {
	mu       sync.Mutex
	requests []recordedRequest

	existingParts map[int]string // partNumber -> md5 hex ETag, simulates a resumable upload
	uploadID      string
}

func (f *fakeS3Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		body = b
	}

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{method: req.Method, query: req.URL.Query(), body: body})
	f.mu.Unlock()

	q := req.URL.Query()

	switch {
	case req.Method == http.MethodGet && hasKey(q, "uploads"):
		return f.listUploadsResponse(req), nil
	case req.Method == http.MethodGet && hasKey(q, "uploadId") && !hasKey(q, "partNumber"):
		return f.listPartsResponse(req), nil
	case req.Method == http.MethodPost && hasKey(q, "uploads"):
		return f.initiateResponse(req), nil
	case req.Method == http.MethodPut && hasKey(q, "partNumber") && hasKey(q, "uploadId"):
		return f.uploadPartResponse(req, body), nil
	case req.Method == http.MethodPost && hasKey(q, "uploadId"):
		return f.completeResponse(req, body), nil
	case req.Method == http.MethodPut:
		return f.putObjectResponse(req, body), nil
	default:
		return nil, fmt.Errorf("fakeS3Transport: unhandled request %s %s", req.Method, req.URL)
	}
}

func hasKey(v url.Values, k string) bool {
	_, ok := v[k]
	return ok
}

func xmlResponse(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/xml"}},
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Request:    req,
	}
}

func (f *fakeS3Transport) listUploadsResponse(req *http.Request) *http.Response {
	if f.uploadID == "" {
		return xmlResponse(req, http.StatusOK, `<?xml version="1.0" encoding="UTF-8"?><ListMultipartUploadsResult></ListMultipartUploadsResult>`)
	}
	body := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><ListMultipartUploadsResult><Upload><Key>object</Key><UploadId>%s</UploadId><Initiated>2024-01-01T00:00:00.000Z</Initiated></Upload></ListMultipartUploadsResult>`, f.uploadID)
	return xmlResponse(req, http.StatusOK, body)
}

func (f *fakeS3Transport) listPartsResponse(req *http.Request) *http.Response {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListPartsResult><UploadId>` + f.uploadID + `</UploadId>`)
	for partNumber, etag := range f.existingParts {
		fmt.Fprintf(&buf, `<Part><PartNumber>%d</PartNumber><ETag>%s</ETag><Size>5242880</Size></Part>`, partNumber, etag)
	}
	buf.WriteString(`</ListPartsResult>`)
	return xmlResponse(req, http.StatusOK, buf.String())
}

func (f *fakeS3Transport) initiateResponse(req *http.Request) *http.Response {
	body := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><InitiateMultipartUploadResult><UploadId>%s</UploadId></InitiateMultipartUploadResult>`, f.uploadID)
	return xmlResponse(req, http.StatusOK, body)
}

func (f *fakeS3Transport) uploadPartResponse(req *http.Request, body []byte) *http.Response {
	sum := md5.Sum(body)
	resp := xmlResponse(req, http.StatusOK, "")
	resp.Header.Set("ETag", `"`+hex.EncodeToString(sum[:])+`"`)
	return resp
}

func (f *fakeS3Transport) completeResponse(req *http.Request, _ []byte) *http.Response {
	const etagBody = `<?xml version="1.0" encoding="UTF-8"?><CompleteMultipartUploadResult><ETag>final-etag</ETag></CompleteMultipartUploadResult>`
	return xmlResponse(req, http.StatusOK, etagBody)
}

func (f *fakeS3Transport) putObjectResponse(req *http.Request, body []byte) *http.Response {
	sum := md5.Sum(body)
	resp := xmlResponse(req, http.StatusOK, "")
	resp.Header.Set("ETag", `"`+hex.EncodeToString(sum[:])+`"`)
	return resp
}

func (f *fakeS3Transport) puts() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedRequest
	for _, r := range f.requests {
		if r.method == http.MethodPut && hasKey(r.query, "partNumber") {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeS3Transport) completes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.method == http.MethodPost && hasKey(r.query, "uploadId") {
			n++
		}
	}
	return n
}

func newMultipartTestCore(t *testing.T, transport http.RoundTripper) *Core {
	u, err := url.Parse("http://localhost:9000")
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	cfg := &Config{
		EndpointURL: u,
		Creds:       credentials.NewStaticV4("access", "secret", ""),
	}
	core, err := New(cfg, transport)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return core
}

// A small object goes through exactly one PUT, never the multipart path.
func TestPutObjectSmallSinglePut(t *testing.T) {
	data := bytes.Repeat([]byte{0x5a}, 1048576)
	transport := &fakeS3Transport{}
	core := newMultipartTestCore(t, transport)

	etag, err := core.PutObject(context.Background(), "bucket", "object", bytes.NewReader(data), int64(len(data)), PutObjectOptions{})
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}

	want := md5.Sum(data)
	if etag != hex.EncodeToString(want[:]) {
		t.Errorf("etag = %s, want %s", etag, hex.EncodeToString(want[:]))
	}

	transport.mu.Lock()
	n := len(transport.requests)
	transport.mu.Unlock()
	if n != 1 {
		t.Errorf("request count = %d, want exactly 1 for a small object", n)
	}
}

// A 30MiB upload resumes an in-progress upload whose part 1 already
// matches; only parts 2..6 are (re-)uploaded, and Complete lists every
// part 1..6 in order.
func TestPutObjectMultipartResume(t *testing.T) {
	const size = 30 * 1024 * 1024
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}

	partSize := calculatePartSize(size)
	if partSize != MinPartSize {
		t.Fatalf("test assumes partSize == MinPartSize, got %d", partSize)
	}
	part1 := data[:partSize]
	part1Sum := md5.Sum(part1)

	transport := &fakeS3Transport{
		uploadID: "resume-upload-id",
		existingParts: map[int]string{
			1: hex.EncodeToString(part1Sum[:]),
		},
	}
	core := newMultipartTestCore(t, transport)

	etag, err := core.PutObject(context.Background(), "bucket", "object", bytes.NewReader(data), int64(len(data)), PutObjectOptions{})
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if etag != "final-etag" {
		t.Errorf("etag = %s, want final-etag", etag)
	}

	puts := transport.puts()
	if len(puts) != 5 {
		t.Fatalf("uploaded part count = %d, want 5 (parts 2-6, part 1 reused)", len(puts))
	}
	seen := map[string]bool{}
	for _, p := range puts {
		seen[p.query.Get("partNumber")] = true
	}
	for _, n := range []string{"2", "3", "4", "5", "6"} {
		if !seen[n] {
			t.Errorf("expected a PUT for partNumber=%s, none recorded", n)
		}
	}
	if seen["1"] {
		t.Error("part 1 was re-uploaded even though it already matched")
	}

	if got := transport.completes(); got != 1 {
		t.Errorf("complete calls = %d, want exactly 1", got)
	}
}

// A declared size that doesn't match the actual stream length fails
// with SizeMismatch and never reaches CompleteMultipartUpload.
func TestPutObjectMultipartSizeMismatch(t *testing.T) {
	const declaredSize = 10 * 1024 * 1024
	actual := make([]byte, declaredSize-60) // 10,485,700 bytes vs 10,485,760 declared

	transport := &fakeS3Transport{uploadID: "mismatch-upload-id"}
	core := newMultipartTestCore(t, transport)

	_, err := core.PutObject(context.Background(), "bucket", "object", bytes.NewReader(actual), declaredSize, PutObjectOptions{})
	if err == nil {
		t.Fatal("expected a size-mismatch error")
	}
	er := ToErrorResponse(err)
	if er.Kind != KindSizeMismatch {
		t.Errorf("error kind = %v, want KindSizeMismatch", er.Kind)
	}

	if got := transport.completes(); got != 0 {
		t.Errorf("complete calls = %d, want 0 - no Complete on size mismatch", got)
	}
}

// partSize stays within [5MiB, 5GiB], and the resulting part count
// never exceeds 10000 for sizes up to 5TiB.
func TestCalculatePartSizeBounds(t *testing.T) {
	sizes := []int64{
		0,
		1,
		MinPartSize,
		100 * 1024 * 1024,
		5 * 1024 * 1024 * 1024 * 1024, // 5 TiB
	}
	for _, size := range sizes {
		partSize := calculatePartSize(size)
		if partSize < MinPartSize || partSize > MaxPartSize {
			t.Errorf("size %d: partSize = %d, want in [%d, %d]", size, partSize, MinPartSize, MaxPartSize)
		}
		if size > 0 {
			numParts := (size + partSize - 1) / partSize
			if numParts > MaxParts {
				t.Errorf("size %d: numParts = %d, want <= %d", size, numParts, MaxParts)
			}
		}
	}
}

// CompleteMultipartUpload's part list is always sorted into ascending,
// gapless part numbers regardless of completion order.
func TestCompleteMultipartUploadSortsParts(t *testing.T) {
	transport := &fakeS3Transport{uploadID: "sort-upload-id"}
	core := newMultipartTestCore(t, transport)

	parts := []CompletePart{
		{PartNumber: 3, ETag: "c"},
		{PartNumber: 1, ETag: "a"},
		{PartNumber: 2, ETag: "b"},
	}
	_, err := core.completeMultipartUpload(context.Background(), "bucket", "object", "sort-upload-id", parts)
	if err != nil {
		t.Fatalf("completeMultipartUpload: %v", err)
	}

	transport.mu.Lock()
	defer transport.mu.Unlock()
	last := transport.requests[len(transport.requests)-1]
	var decoded completeMultipartUpload
	if err := xml.Unmarshal(last.body, &decoded); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	for i, p := range decoded.Parts {
		if p.PartNumber != i+1 {
			t.Errorf("part at index %d has PartNumber %d, want %d", i, p.PartNumber, i+1)
		}
	}
}
