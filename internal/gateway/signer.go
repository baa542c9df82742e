package gateway

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// Signer signs and verifies canonical path strings with HMAC-SHA1.
type Signer struct {
	secret []byte
}

// NewSigner builds a Signer over the configured secret.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Sign returns the lowercase-hex HMAC-SHA1 of the canonical string.
func (s *Signer) Sign(canonical string) string {
	mac := hmac.New(sha1.New, s.secret)
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a request signature against the canonical string using a
// constant-time comparison.
func (s *Signer) Verify(signature, canonical string) error {
	expected := s.Sign(canonical)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return E(KindUnauthorized, "signature mismatch")
	}
	return nil
}
