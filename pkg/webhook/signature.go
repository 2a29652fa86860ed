// Package webhook verifies inbound webhook authenticity. Verification
// is a pure function over the raw request body; handlers must run it
// before any payload parsing or processing.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	ErrMissingSignature = errors.New("webhook signature is missing")
	ErrInvalidSignature = errors.New("webhook signature mismatch")
	ErrMissingSecret    = errors.New("webhook signing secret is not configured")
)

// Sign computes the hex HMAC-SHA256 of the raw payload. Lemon Squeezy
// signs the body directly, without a timestamp component.
func Sign(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify checks the provided hex signature against the raw payload
// using a constant-time comparison.
func Verify(secret string, payload []byte, signature string) error {
	if secret == "" {
		return ErrMissingSecret
	}
	if signature == "" {
		return ErrMissingSignature
	}

	expected := Sign(secret, payload)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}
