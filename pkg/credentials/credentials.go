// Package credentials holds the access-key/secret-key pair (and the
// signature scheme to use with it) that internal/s3signer needs to sign
// requests.
package credentials

import "sync"

// SignatureType indicates the signing scheme a Credentials value wants
// used: SigV4 for S3 proper, a V2 fallback for non-S3 endpoints such as
// Google Cloud Storage, or an anonymous mode that disables signing.
type SignatureType int

const (
	// SignatureDefault lets the client decide based on the endpoint.
	SignatureDefault SignatureType = iota
	SignatureV2
	SignatureV4
	// SignatureAnonymous disables signing entirely.
	SignatureAnonymous
)

// IsV2 reports whether s selects the V2 signer.
func (s SignatureType) IsV2() bool { return s == SignatureV2 }

// IsV4 reports whether s selects the V4 signer.
func (s SignatureType) IsV4() bool { return s == SignatureV4 || s == SignatureDefault }

// IsAnonymous reports whether s disables signing.
func (s SignatureType) IsAnonymous() bool { return s == SignatureAnonymous }

// Value is the credential material returned by a Provider.
type Value struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	SignerType      SignatureType
}

// Provider supplies credential Values. Implementations may refresh
// values from an external source; Static never does.
type Provider interface {
	Get() (Value, error)
}

// Credentials wraps a Provider behind a mutex; a Client holds one of
// these rather than a bare Provider so concurrent signers share a
// single lock around Get. Values are not cached: every Get asks the
// Provider.
type Credentials struct {
	mu       sync.Mutex
	provider Provider
}

// New wraps an arbitrary Provider.
func New(p Provider) *Credentials {
	return &Credentials{provider: p}
}

// Get returns the current credential Value.
func (c *Credentials) Get() (Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.provider.Get()
}

type staticProvider struct {
	value Value
}

func (s *staticProvider) Get() (Value, error) { return s.value, nil }

// NewStaticV4 returns Credentials that always resolve to the given
// key pair, signed with SigV4.
func NewStaticV4(accessKeyID, secretAccessKey, sessionToken string) *Credentials {
	return New(&staticProvider{Value{
		AccessKeyID:     accessKeyID,
		SecretAccessKey: secretAccessKey,
		SessionToken:    sessionToken,
		SignerType:      SignatureV4,
	}})
}

// NewStaticV2 returns Credentials pinned to the legacy V2 signer.
func NewStaticV2(accessKeyID, secretAccessKey string) *Credentials {
	return New(&staticProvider{Value{
		AccessKeyID:     accessKeyID,
		SecretAccessKey: secretAccessKey,
		SignerType:      SignatureV2,
	}})
}

// NewAnonymous returns Credentials that never sign requests.
func NewAnonymous() *Credentials {
	return New(&staticProvider{Value{SignerType: SignatureAnonymous}})
}

// IsAnonymous reports whether the underlying value opts out of signing.
func (c *Credentials) IsAnonymous() bool {
	v, err := c.Get()
	if err != nil {
		return false
	}
	return v.SignerType.IsAnonymous()
}
