package s3go

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/nimbusdata/s3go/internal/s3core"
	"github.com/nimbusdata/s3go/internal/s3signer"
)

// PostPolicy builds the policy document a browser form upload signs
// against. Conditions are kept in the order they were added.
type PostPolicy struct {
	expiration time.Time
	bucket     string
	contentType string
	minLength, maxLength int64
	hasLengthRange        bool
	conditions            []interface{}
	formData              map[string]string
}

// NewPostPolicy returns an empty PostPolicy ready for its Set* calls.
func NewPostPolicy() *PostPolicy {
	return &PostPolicy{formData: map[string]string{}}
}

// SetExpires sets the policy's expiration timestamp, which must not be
// in the past.
func (p *PostPolicy) SetExpires(t time.Time) error {
	if t.IsZero() {
		return s3core.ErrInvalidArgument("expiration time must be specified")
	}
	p.expiration = t
	return nil
}

// SetBucket sets the target bucket condition.
func (p *PostPolicy) SetBucket(bucketName string) error {
	if bucketName == "" {
		return s3core.ErrInvalidArgument("bucket name cannot be empty")
	}
	p.bucket = bucketName
	p.conditions = append(p.conditions, map[string]string{"bucket": bucketName})
	return nil
}

// SetKey sets an exact-match key condition and the form's key field.
func (p *PostPolicy) SetKey(key string) error {
	if key == "" {
		return s3core.ErrInvalidArgument("object key cannot be empty")
	}
	p.conditions = append(p.conditions, []string{"eq", "$key", key})
	p.formData["key"] = key
	return nil
}

// SetKeyStartsWith sets a prefix-match key condition: it pushes
// ["starts-with", "$key", prefix] and sets formData["key"] = prefix.
func (p *PostPolicy) SetKeyStartsWith(prefix string) error {
	if prefix == "" {
		return s3core.ErrInvalidArgument("key prefix cannot be empty")
	}
	p.conditions = append(p.conditions, []string{"starts-with", "$key", prefix})
	p.formData["key"] = prefix
	return nil
}

// SetContentType sets an exact-match Content-Type condition.
func (p *PostPolicy) SetContentType(contentType string) error {
	if contentType == "" {
		return s3core.ErrInvalidArgument("content type cannot be empty")
	}
	p.contentType = contentType
	p.conditions = append(p.conditions, []string{"eq", "$Content-Type", contentType})
	return nil
}

// SetContentLengthRange bounds the uploaded body size, min and max
// inclusive.
func (p *PostPolicy) SetContentLengthRange(min, max int64) error {
	if min < 0 || max < 0 || min > max {
		return s3core.ErrInvalidArgument("invalid content-length range")
	}
	p.minLength, p.maxLength, p.hasLengthRange = min, max, true
	p.conditions = append(p.conditions, []interface{}{"content-length-range", min, max})
	return nil
}

// validate checks the conditions a policy must satisfy before signing.
func (p *PostPolicy) validate(now time.Time) error {
	if p.expiration.IsZero() {
		return s3core.ErrInvalidArgument("policy expiration must be set")
	}
	if p.expiration.Before(now) {
		return s3core.ErrInvalidArgument("policy expiration is in the past")
	}
	if p.bucket == "" {
		return s3core.ErrInvalidArgument("policy must set a bucket condition")
	}
	if _, ok := p.formData["key"]; !ok {
		return s3core.ErrInvalidArgument("policy must set a key or key-prefix condition")
	}
	return nil
}

// PresignedPostPolicy signs policy and returns the form-data map a
// browser multipart/form-data upload needs.
func (c *Client) PresignedPostPolicy(ctx context.Context, policy *PostPolicy) (map[string]string, error) {
	now := time.Now().UTC()
	if err := policy.validate(now); err != nil {
		return nil, err
	}

	region, err := c.core.RegionFor(ctx, policy.bucket)
	if err != nil {
		return nil, err
	}

	value, err := c.core.Config.Creds.Get()
	if err != nil {
		return nil, err
	}

	amzDate := s3signer.AmzDate(now)
	credential := s3signer.Credential(value.AccessKeyID, region, now)

	conditions := append([]interface{}{}, policy.conditions...)
	conditions = append(conditions,
		[]string{"eq", "$x-amz-date", amzDate},
		[]string{"eq", "$x-amz-algorithm", s3signer.Algorithm},
		[]string{"eq", "$x-amz-credential", credential},
	)

	doc := struct {
		Expiration string        `json:"expiration"`
		Conditions []interface{} `json:"conditions"`
	}{
		Expiration: policy.expiration.UTC().Format("2006-01-02T15:04:05.000Z"),
		Conditions: conditions,
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	policyBase64 := base64.StdEncoding.EncodeToString(raw)

	signature, err := c.core.PostPolicySign(ctx, region, policyBase64)
	if err != nil {
		return nil, err
	}

	formData := map[string]string{
		"bucket":           policy.bucket,
		"policy":           policyBase64,
		"x-amz-algorithm":  s3signer.Algorithm,
		"x-amz-credential": credential,
		"x-amz-date":       amzDate,
		"x-amz-signature":  signature,
	}
	for k, v := range policy.formData {
		formData[k] = v
	}
	if policy.contentType != "" {
		formData["Content-Type"] = policy.contentType
	}
	return formData, nil
}
