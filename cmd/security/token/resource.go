package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const resourceKeyInfo = "huddle.resource-token.v1"

// ResourceSigner computes deterministic tokens for external resource names.
type ResourceSigner struct {
	key []byte
}

// NewResourceSigner derives the HMAC key from secret. An empty secret yields a random key.
func NewResourceSigner(secret string) (*ResourceSigner, error) {
	raw := []byte(strings.TrimSpace(secret))
	if len(raw) == 0 {
		raw = make([]byte, MinResourceSecretBytes)
		if _, err := rand.Read(raw); err != nil {
			return nil, err
		}
	} else if len(raw) < MinResourceSecretBytes {
		return nil, ErrSecretTooShort
	}

	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, raw, nil, []byte(resourceKeyInfo)), key); err != nil {
		return nil, err
	}
	return &ResourceSigner{key: key}, nil
}

// ResourceToken returns base64url(HMAC-SHA256(key, name)) without padding.
func (r *ResourceSigner) ResourceToken(name string) string {
	return base64.RawURLEncoding.EncodeToString(r.sum(name))
}

// VerifyResource compares tok against the expected token in constant time.
func (r *ResourceSigner) VerifyResource(name, tok string) bool {
	if name == "" || tok == "" {
		return false
	}
	got, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		return false
	}
	return hmac.Equal(got, r.sum(name))
}

func (r *ResourceSigner) sum(name string) []byte {
	m := hmac.New(sha256.New, r.key)
	_, _ = m.Write([]byte(name))
	return m.Sum(nil)
}
