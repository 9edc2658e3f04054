package s3core

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/nimbusdata/s3go/internal/hashutil"
	"github.com/nimbusdata/s3go/internal/s3utils"
)

// This file orchestrates multipart upload: decide single-PUT vs
// multipart by size, discover or create an upload ID, chunk and upload
// parts with bounded concurrency, verify the total byte count, and
// complete the upload. Each call moves through
// NEW -> DISCOVERING -> (RESUMING | INITIATING) -> UPLOADING ->
// COMPLETING -> DONE, with any step able to fail out to FAILED while
// leaving the server-side upload intact for a later retry; the steps
// below are commented with which state they correspond to rather than
// tracked in an explicit variable.

// partUploadConcurrency bounds how many part PUTs may be in flight at
// once for a single PutObject call. golang.org/x/sync/errgroup gives
// bounded concurrency plus first-error cancellation in one package.
const partUploadConcurrency = 4

// PutObject is the size-based dispatch entry point: buffer-and-PUT for
// small objects, multipart for large ones.
func (c *Core) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, size int64, opts PutObjectOptions) (etag string, err error) {
	if err := s3utils.CheckValidBucketName(bucketName); err != nil {
		return "", err
	}
	if err := s3utils.CheckValidObjectName(objectName); err != nil {
		return "", err
	}

	if size >= 0 && size <= MinPartSize {
		data, err := io.ReadAll(io.LimitReader(reader, size+1))
		if err != nil {
			return "", err
		}
		if int64(len(data)) != size {
			return "", ErrSizeMismatch(bucketName, objectName, size, int64(len(data)))
		}
		return c.putObjectSingle(ctx, bucketName, objectName, data, opts)
	}

	return c.putObjectMultipart(ctx, bucketName, objectName, reader, size, opts)
}

func (c *Core) putObjectMultipart(ctx context.Context, bucketName, objectName string, reader io.Reader, size int64, opts PutObjectOptions) (etag string, err error) {
	// DISCOVERING, then RESUMING or INITIATING.
	uploadID, existingParts, err := c.resumeOrInitiate(ctx, bucketName, objectName, opts)
	if err != nil {
		return "", err
	}

	// UPLOADING.
	partSize := calculatePartSize(size)
	numParts := int((size + partSize - 1) / partSize)
	if numParts == 0 {
		numParts = 1
	}

	verifier := NewSizeVerifier(reader, size, bucketName, objectName)
	completed := make([]CompletePart, numParts)

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, partUploadConcurrency)

	var readErr error
	for partNumber := 1; partNumber <= numParts; partNumber++ {
		block := make([]byte, partSize)
		n, rerr := io.ReadFull(verifier, block)
		if rerr == io.ErrUnexpectedEOF || rerr == io.EOF {
			block = block[:n]
		} else if rerr != nil {
			readErr = rerr
			break
		}

		md5sum := hashutil.SumMD5(block)
		if existing, ok := existingParts[partNumber]; ok &&
			existing.Size == int64(len(block)) &&
			existing.ETag == hex.EncodeToString(md5sum) {
			completed[partNumber-1] = CompletePart{PartNumber: partNumber, ETag: existing.ETag}
			continue
		}

		partNumber, block, md5sum := partNumber, block, md5sum
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			partETag, err := c.uploadPart(gctx, bucketName, objectName, uploadID, partNumber, block, md5sum)
			if err != nil {
				return err
			}
			completed[partNumber-1] = CompletePart{PartNumber: partNumber, ETag: partETag}
			return nil
		})
	}
	if readErr == nil {
		// One more read through the verifier lets Verify see bytes the
		// stream holds beyond the declared size.
		if _, perr := io.ReadFull(verifier, make([]byte, 1)); perr != nil && perr != io.EOF {
			readErr = perr
		}
	}

	if err := g.Wait(); err != nil {
		return "", err // FAILED; server-side parts already uploaded remain for a later retry.
	}
	if readErr != nil {
		return "", readErr // FAILED
	}
	if err := verifier.Verify(); err != nil {
		return "", err // FAILED; no Complete is sent on a size mismatch.
	}

	// COMPLETING.
	etag, err = c.completeMultipartUpload(ctx, bucketName, objectName, uploadID, completed)
	if err != nil {
		return "", err // FAILED
	}
	return etag, nil // DONE
}

// calculatePartSize returns clamp(floor(size/9999), 5MiB, 5GiB): the
// smallest part size that keeps the upload within S3's 10,000-part limit.
func calculatePartSize(size int64) int64 {
	partSize := size / 9999
	if partSize < MinPartSize {
		return MinPartSize
	}
	if partSize > MaxPartSize {
		return MaxPartSize
	}
	return partSize
}

// resumeOrInitiate looks for an in-progress upload ID and, if one
// exists, lists its already-uploaded parts; otherwise it initiates a
// fresh upload.
func (c *Core) resumeOrInitiate(ctx context.Context, bucketName, objectName string, opts PutObjectOptions) (uploadID string, existingParts map[int]ObjectPart, err error) {
	uploadID, err = c.findUploadID(ctx, bucketName, objectName)
	if err != nil {
		return "", nil, err
	}

	if uploadID != "" {
		existingParts, err = c.listExistingParts(ctx, bucketName, objectName, uploadID)
		if err != nil {
			return "", nil, err
		}
		return uploadID, existingParts, nil
	}

	uploadID, err = c.initiateMultipartUpload(ctx, bucketName, objectName, opts)
	if err != nil {
		return "", nil, err
	}
	return uploadID, map[int]ObjectPart{}, nil
}

// findUploadID lists in-progress uploads for objectName and selects the
// one with the lexically latest Initiated timestamp. Returns "" if
// none exist.
func (c *Core) findUploadID(ctx context.Context, bucketName, objectName string) (string, error) {
	var latest MultipartUploadInfo
	found := false

	for result := range c.listUploadsForKey(ctx, bucketName, objectName) {
		if result.Err != nil {
			return "", result.Err
		}
		if result.Key != objectName {
			continue
		}
		if !found || result.Initiated > latest.Initiated {
			latest = result.MultipartUploadInfo
			found = true
		}
	}
	if !found {
		return "", nil
	}
	return latest.UploadID, nil
}

// listUploadsForKey pages ListIncompleteUploads scoped to exactly
// objectName as the prefix ("?uploads&prefix=key").
func (c *Core) listUploadsForKey(ctx context.Context, bucketName, objectName string) <-chan MultipartUploadResult {
	return c.ListIncompleteUploads(ctx, bucketName, objectName, true)
}

// listExistingParts pages listObjectParts into a map keyed by part
// number, for O(1) lookup during upload-resume reconciliation.
func (c *Core) listExistingParts(ctx context.Context, bucketName, objectName, uploadID string) (map[int]ObjectPart, error) {
	parts := make(map[int]ObjectPart)
	for result := range c.listObjectParts(ctx, bucketName, objectName, uploadID) {
		if result.Err != nil {
			return nil, result.Err
		}
		parts[result.PartNumber] = result.ObjectPart
	}
	return parts, nil
}

// initiateMultipartUpload issues "POST ?uploads".
func (c *Core) initiateMultipartUpload(ctx context.Context, bucketName, objectName string, opts PutObjectOptions) (string, error) {
	header := http.Header{}
	if opts.ContentType != "" {
		header.Set("Content-Type", opts.ContentType)
	}
	for k, v := range opts.UserMeta {
		header.Set("X-Amz-Meta-"+k, v)
	}
	if opts.CannedACL != "" {
		header.Set("X-Amz-Acl", opts.CannedACL)
	}

	resp, err := c.executeMethod(ctx, http.MethodPost, requestMetadata{
		bucketName:   bucketName,
		objectName:   objectName,
		queryValues:  url.Values{"uploads": []string{""}},
		customHeader: header,
	})
	if err != nil {
		return "", err
	}
	return ParseInitiateMultipartUpload(resp)
}

// uploadPart issues "PUT ?partNumber=n&uploadId=…" for one block and
// returns the server's ETag for it.
func (c *Core) uploadPart(ctx context.Context, bucketName, objectName, uploadID string, partNumber int, block, md5sum []byte) (string, error) {
	resp, err := c.executeMethod(ctx, http.MethodPut, requestMetadata{
		bucketName: bucketName,
		objectName: objectName,
		queryValues: url.Values{
			"partNumber": []string{strconv.Itoa(partNumber)},
			"uploadId":   []string{uploadID},
		},
		contentBody:      bytes.NewReader(block),
		contentLength:    int64(len(block)),
		contentMD5Base64: hashutil.SumMD5Base64(block),
		contentSHA256Hex: hashutil.Sum256Hex(block),
	})
	if err != nil {
		return "", err
	}
	defer closeResponse(resp)
	etag := trimETagQuotes(resp.Header.Get("ETag"))
	if etag == "" {
		etag = hex.EncodeToString(md5sum)
	}
	return etag, nil
}

// completeMultipartUpload issues "POST ?uploadId=…" with the part list
// always sorted into ascending part-number order, regardless of the
// order parts finished uploading in.
func (c *Core) completeMultipartUpload(ctx context.Context, bucketName, objectName, uploadID string, parts []CompletePart) (string, error) {
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })

	body, err := xml.Marshal(completeMultipartUpload{Parts: parts})
	if err != nil {
		return "", err
	}

	resp, err := c.executeMethod(ctx, http.MethodPost, requestMetadata{
		bucketName:       bucketName,
		objectName:       objectName,
		queryValues:      url.Values{"uploadId": []string{uploadID}},
		contentBody:      bytes.NewReader(body),
		contentLength:    int64(len(body)),
		contentSHA256Hex: hashutil.Sum256Hex(body),
	})
	if err != nil {
		return "", err
	}
	return ParseCompleteMultipartUpload(resp, bucketName, objectName)
}

// abortMultipartUpload issues "DELETE ?uploadId=…".
func (c *Core) abortMultipartUpload(ctx context.Context, bucketName, objectName, uploadID string) error {
	resp, err := c.executeMethod(ctx, http.MethodDelete, requestMetadata{
		bucketName:  bucketName,
		objectName:  objectName,
		queryValues: url.Values{"uploadId": []string{uploadID}},
	})
	if err != nil {
		return err
	}
	closeResponse(resp)
	return nil
}
