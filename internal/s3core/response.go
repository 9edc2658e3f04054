package s3core

import (
	"encoding/xml"
	"io"
	"net/http"
)

// This file holds the response-parsing transformers: each turns a
// *http.Response into the typed value a façade call wants, always
// closing the body exactly once regardless of which branch returns.
// Every exported parser here assumes the caller already confirmed
// resp.StatusCode is one of successStatus - executeMethod's retry loop
// is the only place that inspects the error body, via
// httpRespToErrorResponse in errors.go.

// Concat drains resp.Body into memory and closes it, for a caller that
// needs the full response before deciding anything, rather than
// streaming it. No operation in this package calls it.
func Concat(resp *http.Response) ([]byte, error) {
	defer closeResponse(resp)
	return io.ReadAll(resp.Body)
}

// Passthrough hands the response back unclosed, for callers (GetObject)
// that stream resp.Body directly to their own caller. The caller owns
// closing it.
func Passthrough(resp *http.Response) *http.Response {
	return resp
}

// SizeVerifier wraps an upload's source reader and counts the bytes
// read through it; Verify returns ErrSizeMismatch if that count is
// fewer or more than want, so multipart upload can detect a truncated
// or overrun stream before calling CompleteMultipartUpload. It sits
// over the sender's body, not over a response.
type SizeVerifier struct {
	r       io.Reader
	want    int64
	read    int64
	bucket  string
	object  string
}

// NewSizeVerifier wraps r so that Read tracks how many bytes have
// passed through it; call Verify after the last Read to check the
// total against want.
func NewSizeVerifier(r io.Reader, want int64, bucket, object string) *SizeVerifier {
	return &SizeVerifier{r: r, want: want, bucket: bucket, object: object}
}

func (v *SizeVerifier) Read(p []byte) (int, error) {
	n, err := v.r.Read(p)
	v.read += int64(n)
	return n, err
}

// Verify reports ErrSizeMismatch if the stream produced a different
// byte count than declared upfront.
func (v *SizeVerifier) Verify() error {
	if v.read != v.want {
		return ErrSizeMismatch(v.bucket, v.object, v.want, v.read)
	}
	return nil
}

// ParseListBuckets decodes a ListAllMyBucketsResult.
func ParseListBuckets(resp *http.Response) ([]BucketInfo, error) {
	defer closeResponse(resp)
	var result listAllMyBucketsResult
	if err := xmlDecode(resp.Body, &result); err != nil {
		return nil, err
	}
	return result.Buckets, nil
}

// ListObjectsPage is one page of a ListObjects response: the objects
// and common prefixes returned, plus enough state for the caller (or
// the iterator in iterator.go) to fetch the next page.
type ListObjectsPage struct {
	Objects        []ObjectInfo
	CommonPrefixes []string
	IsTruncated    bool
	NextMarker     string
}

// ParseListObjects decodes a ListBucketResult. When the response omits
// NextMarker, as some S3-compatible servers do, the last key of
// Contents stands in for it.
func ParseListObjects(resp *http.Response) (ListObjectsPage, error) {
	defer closeResponse(resp)
	var result listBucketResult
	if err := xmlDecode(resp.Body, &result); err != nil {
		return ListObjectsPage{}, err
	}

	page := ListObjectsPage{
		Objects:     result.Contents,
		IsTruncated: result.IsTruncated,
		NextMarker:  result.NextMarker,
	}
	for _, p := range result.CommonPrefixes {
		page.CommonPrefixes = append(page.CommonPrefixes, p.Prefix)
	}
	if page.IsTruncated && page.NextMarker == "" && len(page.Objects) > 0 {
		page.NextMarker = page.Objects[len(page.Objects)-1].Key
	}
	return page, nil
}

// ListMultipartUploadsPage is one page of a ListMultipartUploads
// response.
type ListMultipartUploadsPage struct {
	Uploads            []MultipartUploadInfo
	CommonPrefixes     []string
	IsTruncated        bool
	NextKeyMarker      string
	NextUploadIDMarker string
}

// ParseListMultipartUploads decodes a ListMultipartUploadsResult, used
// both by ListIncompleteUploads and by findUploadID's resume path.
func ParseListMultipartUploads(resp *http.Response) (ListMultipartUploadsPage, error) {
	defer closeResponse(resp)
	var result listMultipartUploadsResult
	if err := xmlDecode(resp.Body, &result); err != nil {
		return ListMultipartUploadsPage{}, err
	}
	page := ListMultipartUploadsPage{
		Uploads:            result.Uploads,
		IsTruncated:        result.IsTruncated,
		NextKeyMarker:      result.NextKeyMarker,
		NextUploadIDMarker: result.NextUploadIDMarker,
	}
	for _, p := range result.CommonPrefixes {
		page.CommonPrefixes = append(page.CommonPrefixes, p.Prefix)
	}
	return page, nil
}

// ListPartsPage is one page of a ListParts response.
type ListPartsPage struct {
	UploadID             string
	Parts                []ObjectPart
	IsTruncated          bool
	NextPartNumberMarker int
}

// ParseListParts decodes a ListPartsResult - the resume path pages
// through this to reconcile already-uploaded parts before resuming an
// upload.
func ParseListParts(resp *http.Response) (ListPartsPage, error) {
	defer closeResponse(resp)
	var result listPartsResult
	if err := xmlDecode(resp.Body, &result); err != nil {
		return ListPartsPage{}, err
	}
	return ListPartsPage{
		UploadID:             result.UploadID,
		Parts:                result.Part,
		IsTruncated:          result.IsTruncated,
		NextPartNumberMarker: result.NextPartNumberMarker,
	}, nil
}

// ParseInitiateMultipartUpload decodes an InitiateMultipartUploadResult
// and returns the new upload ID.
func ParseInitiateMultipartUpload(resp *http.Response) (string, error) {
	defer closeResponse(resp)
	var result initiateMultipartUploadResult
	if err := xmlDecode(resp.Body, &result); err != nil {
		return "", err
	}
	return result.UploadID, nil
}

// ParseCompleteMultipartUpload decodes a CompleteMultipartUploadResult.
// S3 reports failures that happen after it has already sent a 200
// inside the body as an <Error> document, so this also classifies that
// case: a 200 status with an <Error> body is still a failure.
func ParseCompleteMultipartUpload(resp *http.Response, bucket, object string) (etag string, err error) {
	defer closeResponse(resp)
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var errDoc xmlErrorDocument
	if xml.Unmarshal(body, &errDoc) == nil && errDoc.Code != "" {
		return "", ErrorResponse{
			Kind:       KindServerError,
			Code:       errDoc.Code,
			Message:    errDoc.Message,
			RequestID:  errDoc.RequestID,
			BucketName: bucket,
			ObjectName: object,
		}
	}

	var result completeMultipartUploadResult
	if err := xml.Unmarshal(body, &result); err != nil {
		return "", err
	}
	return result.ETag, nil
}

// BucketRegionParser decodes the <LocationConstraint> document of a
// bucket-location bootstrap request. An empty value means us-east-1,
// the classic S3 quirk where that region alone omits the constraint.
func BucketRegionParser(resp *http.Response) (string, error) {
	defer closeResponse(resp)
	var lc locationConstraint
	if err := xmlDecode(resp.Body, &lc); err != nil {
		return "", err
	}
	if lc.Value == "" {
		return DefaultRegion, nil
	}
	return lc.Value, nil
}

// AclParser decodes an AccessControlPolicy into the Grant list
// callers need to translate back into a canned ACL string; the
// canned-ACL reconstruction itself is a façade concern (see
// cannedACLFromGrants in bucket.go).
func AclParser(resp *http.Response) ([]Grant, error) {
	defer closeResponse(resp)
	var policy accessControlPolicy
	if err := xmlDecode(resp.Body, &policy); err != nil {
		return nil, err
	}
	grants := make([]Grant, 0, len(policy.Grants))
	for _, g := range policy.Grants {
		grants = append(grants, Grant{GranteeURI: g.Grantee.URI, Permission: g.Permission})
	}
	return grants, nil
}
