package s3signer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// streamingSHA256Placeholder is what S3 expects in x-amz-content-sha256
// for a chunked, streamed-signature upload.
const streamingSHA256Placeholder = "STREAMING-AWS4-HMAC-SHA256-PAYLOAD"

const chunkSize = 64 * 1024

// StreamingSignV4 wraps req.Body in a chunk-signing reader and signs
// the seed request: every 64KiB chunk carries its own trailing
// signature computed from the previous chunk's signature, so the
// request body no longer needs to be hashed in full up-front. Core's
// newRequest uses it only for a PUT object request whose metadata sets
// streamingSignV4; no operation in this module sets that flag, so
// uploads are signed with a precomputed body hash.
func StreamingSignV4(req *http.Request, accessKeyID, secretAccessKey, sessionToken, region string, dataLen int64, t time.Time) *http.Request {
	req.Header.Set("X-Amz-Content-Sha256", streamingSHA256Placeholder)
	req.Header.Set("X-Amz-Decoded-Content-Length", strconv.FormatInt(dataLen, 10))
	req.Header.Set("Content-Encoding", "aws-chunked")

	body := req.Body
	if body == nil {
		body = io.NopCloser(bytes.NewReader(nil))
	}

	req.Header.Set("X-Amz-Date", AmzDate(t))

	_, signedHeaders := canonicalHeaders(req)
	canonicalRequest := getCanonicalRequest(req, streamingSHA256Placeholder)
	seedStringToSign := getStringToSign(canonicalRequest, region, t)
	signingKey := getSigningKey(secretAccessKey, region, t)
	seedSignature := getSignature(signingKey, seedStringToSign)

	auth := authHeader + " Credential=" + getCredential(accessKeyID, region, t) +
		", SignedHeaders=" + signedHeaders + ", Signature=" + seedSignature
	req.Header.Set("Authorization", auth)

	chunked := newChunkedReader(body, signingKey, region, t, seedSignature)
	req.Body = chunked
	if dataLen >= 0 {
		req.ContentLength = chunked.encodedLength(dataLen)
	}
	return req
}

type chunkedReader struct {
	src          io.ReadCloser
	signingKey   []byte
	region       string
	date         time.Time
	prevSig      string
	buf          bytes.Buffer
	done         bool
	finalWritten bool
}

func newChunkedReader(src io.ReadCloser, signingKey []byte, region string, t time.Time, seedSig string) *chunkedReader {
	return &chunkedReader{src: src, signingKey: signingKey, region: region, date: t, prevSig: seedSig}
}

func (c *chunkedReader) Close() error { return c.src.Close() }

// encodedLength returns the total wire size of the chunked body for a
// decoded payload of dataLen bytes, needed up front because Content-Length
// must be set before the body is streamed.
func (c *chunkedReader) encodedLength(dataLen int64) int64 {
	var total int64
	full := dataLen / chunkSize
	rem := dataLen % chunkSize
	total += full * int64(chunkHeaderOverhead(chunkSize))
	if rem > 0 {
		total += int64(chunkHeaderOverhead(int(rem)))
	}
	total += int64(chunkHeaderOverhead(0)) // final zero-length chunk
	return total
}

func chunkHeaderOverhead(size int) int {
	sizeHex := fmt.Sprintf("%x", size)
	// "<hex-size>;chunk-signature=<64 hex chars>\r\n<data>\r\n"
	return len(sizeHex) + len(";chunk-signature=") + 64 + 2 + size + 2
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	for c.buf.Len() == 0 && !c.done {
		chunk := make([]byte, chunkSize)
		n, err := io.ReadFull(c.src, chunk)
		if n > 0 {
			c.writeChunk(chunk[:n])
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			c.writeChunk(nil)
			c.done = true
			break
		}
		if err != nil {
			return 0, err
		}
	}
	return c.buf.Read(p)
}

func (c *chunkedReader) writeChunk(data []byte) {
	stringToSign := "AWS4-HMAC-SHA256-PAYLOAD\n" +
		AmzDate(c.date) + "\n" +
		DateStamp(c.date) + "/" + c.region + "/s3/aws4_request\n" +
		c.prevSig + "\n" +
		hex.EncodeToString(sha256Sum(nil)) + "\n" +
		hex.EncodeToString(sha256Sum(data))
	sig := getSignature(c.signingKey, stringToSign)
	c.prevSig = sig

	fmt.Fprintf(&c.buf, "%x;chunk-signature=%s\r\n", len(data), sig)
	c.buf.Write(data)
	c.buf.WriteString("\r\n")
}

func sha256Sum(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}
