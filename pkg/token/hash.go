package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

// MinPepperLength is the minimum accepted pepper size in bytes.
const MinPepperLength = 16

// ErrWeakPepper is returned when the pepper is shorter than MinPepperLength.
var ErrWeakPepper = errors.New("token: pepper must be at least 16 bytes")

// Hasher computes keyed hashes of credentials.
// A Hasher is safe for concurrent use.
type Hasher struct {
	pepper []byte
}

// NewHasher returns a Hasher keyed with pepper.
func NewHasher(pepper []byte) (*Hasher, error) {
	if len(pepper) < MinPepperLength {
		return nil, ErrWeakPepper
	}
	p := make([]byte, len(pepper))
	copy(p, pepper)
	return &Hasher{pepper: p}, nil
}

// Sum returns hex(HMAC-SHA256(pepper, token)).
func (h *Hasher) Sum(token string) string {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether token hashes to expected, in constant time.
func (h *Hasher) Verify(token, expected string) bool {
	return Equal(h.Sum(token), expected)
}

// Equal compares two strings in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
