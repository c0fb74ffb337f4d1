package domain

import (
	"encoding/base64"
	"strings"

	"github.com/yndnr/tokgate/pkg/token"
)

// Credential prefixes. Sensitive values use an underscore, public ids a hyphen.
const (
	AccessTokenPrefix  = "tgat_"
	RefreshTokenPrefix = "tgrt_"
	APIKeyPrefix       = "tgak_"
	ClientIDPrefix     = "tgci_"
	ClientSecretPrefix = "tgcs_"
)

// credentialBodyLength is the Base64 RawURL length of token.DefaultLength bytes.
var credentialBodyLength = token.EncodedLength(token.DefaultLength)

// SensitivePrefixes lists prefixes of values that must never be logged.
var SensitivePrefixes = []string{
	AccessTokenPrefix,
	RefreshTokenPrefix,
	APIKeyPrefix,
	ClientSecretPrefix,
}

// GenerateCredential returns a fresh random credential behind prefix.
func GenerateCredential(prefix string) (string, error) {
	v, err := token.GeneratePrefixed(prefix)
	if err != nil {
		return "", ErrInternal.WithCause(err)
	}
	return v, nil
}

// ValidCredentialFormat reports whether v is prefix followed by a
// well-formed random body. It is a cheap pre-check before any store lookup.
func ValidCredentialFormat(prefix, v string) bool {
	if !strings.HasPrefix(v, prefix) {
		return false
	}
	body := v[len(prefix):]
	if len(body) != credentialBodyLength {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(body)
	return err == nil
}

// MaskCredential masks a credential for display, keeping its last 4 chars.
// Example: tgak_...x9Qz
func MaskCredential(v string) string {
	if len(v) < 10 {
		return "***"
	}
	i := strings.IndexByte(v, '_')
	if i < 0 || i > 5 {
		return "***"
	}
	return v[:i+1] + "..." + v[len(v)-4:]
}

// TokenPair is the credential set returned by issue and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	// ExpiresAt is the access token expiry (Unix milliseconds).
	ExpiresAt int64 `json:"expiresAt"`

	SessionID string `json:"-"`
}

// Principal is the identity resolved from a valid access token.
type Principal struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	ExpiresAt int64  `json:"expiresAt"`
}
