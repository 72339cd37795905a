// Package signature authenticates inbound webhook payloads.
//
// The provider signs the raw request body with HMAC-SHA256 and sends the
// hex digest in a header. Verification always runs over the raw bytes as
// received; re-serializing a parsed payload can change byte content and
// must never feed the comparison.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Verifier checks webhook signatures against a pre-shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier. An empty secret is accepted but makes
// Verify reject everything: missing configuration fails closed.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify reports whether signatureHeader is a valid HMAC-SHA256 hex digest
// of payload under the shared secret.
//
// Fails closed: missing secret, missing header, or an undecodable header all
// return false. The comparison is length-checked and constant-time so a
// mismatch position never leaks through timing.
func (v *Verifier) Verify(payload []byte, signatureHeader string) bool {
	if len(v.secret) == 0 || signatureHeader == "" {
		return false
	}

	received, err := hex.DecodeString(signatureHeader)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	expected := mac.Sum(nil)

	// hmac.Equal is a constant-time comparison; the length check inside it
	// short-circuits only on digest length, which is public.
	return hmac.Equal(expected, received)
}

// Sign computes the hex HMAC-SHA256 digest of payload. Exported for tests
// and for the provider simulator; production traffic is signed by the
// provider.
func (v *Verifier) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
