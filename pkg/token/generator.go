package token

import (
	"crypto/rand"
	"encoding/base64"
)

// DefaultLength is the default token length in bytes.
const DefaultLength = 32

// Generate generates a cryptographically secure random token.
//
// The returned token is Base64 RawURL encoded for safe URL transmission.
func Generate() (string, error) {
	return GenerateWithLength(DefaultLength)
}

// GenerateWithLength generates a token with the specified byte length.
func GenerateWithLength(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GeneratePrefixed generates a DefaultLength token behind prefix.
func GeneratePrefixed(prefix string) (string, error) {
	body, err := Generate()
	if err != nil {
		return "", err
	}
	return prefix + body, nil
}

// EncodedLength returns the Base64 RawURL length of n random bytes.
func EncodedLength(n int) int {
	return base64.RawURLEncoding.EncodedLen(n)
}
