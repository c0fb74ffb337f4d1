package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Developer constraints.
const (
	DeveloperIDPrefix = "tgdv-"

	MinRateLimit     = 1
	MaxRateLimit     = 1_000_000
	DefaultRateLimit = 60

	maxAppIDLength = 64
)

var appIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// Developer is an API key holder. The API key and client secret are only
// ever returned once, by NewDeveloper and RotateAPIKey.
type Developer struct {
	ID    string `json:"id"`
	AppID string `json:"app_id"`

	ClientID         string `json:"client_id"`
	ClientSecretHash string `json:"client_secret_hash"`

	// APIKeyHash is the keyed hash of the API key and the lookup key.
	APIKeyHash string `json:"api_key_hash"`
	// APIKeyHint is the masked key, for display.
	APIKeyHint string `json:"api_key_hint"`

	// RateLimit is the number of requests allowed per window.
	RateLimit int64 `json:"rate_limit"`
	Active    bool  `json:"active"`

	CreatedAt  int64 `json:"created_at"`
	LastUsedAt int64 `json:"last_used_at"`
}

// DeveloperCredentials is the one-time plaintext bundle of a new developer.
type DeveloperCredentials struct {
	APIKey       string `json:"api_key"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// NewDeveloper creates a developer and its plaintext credentials. hashKey is
// the keyed hash applied to the API key before it is stored.
func NewDeveloper(appID string, rateLimit int64, hashKey func(string) string) (*Developer, *DeveloperCredentials, error) {
	appID = NormalizeAppID(appID)
	if err := ValidateAppID(appID); err != nil {
		return nil, nil, err
	}
	if rateLimit == 0 {
		rateLimit = DefaultRateLimit
	}
	if err := ValidateRateLimit(rateLimit); err != nil {
		return nil, nil, err
	}

	id, err := newPrefixedULID(DeveloperIDPrefix)
	if err != nil {
		return nil, nil, err
	}

	apiKey, err := GenerateCredential(APIKeyPrefix)
	if err != nil {
		return nil, nil, err
	}
	clientID, err := GenerateCredential(ClientIDPrefix)
	if err != nil {
		return nil, nil, err
	}
	clientSecret, err := GenerateCredential(ClientSecretPrefix)
	if err != nil {
		return nil, nil, err
	}
	secretHash, err := HashSecret(clientSecret)
	if err != nil {
		return nil, nil, err
	}

	dev := &Developer{
		ID:               id,
		AppID:            appID,
		ClientID:         clientID,
		ClientSecretHash: secretHash,
		APIKeyHash:       hashKey(apiKey),
		APIKeyHint:       MaskCredential(apiKey),
		RateLimit:        rateLimit,
		Active:           true,
		CreatedAt:        nowMillis(),
	}

	return dev, &DeveloperCredentials{
		APIKey:       apiKey,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}, nil
}

// RotateAPIKey replaces the API key and returns the new plaintext value.
func (d *Developer) RotateAPIKey(hashKey func(string) string) (string, error) {
	apiKey, err := GenerateCredential(APIKeyPrefix)
	if err != nil {
		return "", err
	}
	d.APIKeyHash = hashKey(apiKey)
	d.APIKeyHint = MaskCredential(apiKey)
	return apiKey, nil
}

// NormalizeAppID lowercases and trims an app id.
func NormalizeAppID(appID string) string {
	return strings.ToLower(strings.TrimSpace(appID))
}

// ValidateAppID checks the app id format.
func ValidateAppID(appID string) error {
	if appID == "" || len(appID) > maxAppIDLength || !appIDPattern.MatchString(appID) {
		return ErrInvalidArgument.WithDetails(
			fmt.Sprintf("app_id must be 1-%d chars of [a-z0-9._-]", maxAppIDLength))
	}
	return nil
}

// ValidateRateLimit checks the configured requests per window.
func ValidateRateLimit(limit int64) error {
	if limit < MinRateLimit || limit > MaxRateLimit {
		return ErrInvalidArgument.WithDetails(
			fmt.Sprintf("rate_limit must be between %d and %d", MinRateLimit, MaxRateLimit))
	}
	return nil
}

// Clone returns a copy of the developer.
func (d *Developer) Clone() *Developer {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// DeveloperView is a developer without secret hashes.
type DeveloperView struct {
	ID         string `json:"id"`
	AppID      string `json:"app_id"`
	ClientID   string `json:"client_id"`
	APIKeyHint string `json:"api_key_hint"`
	RateLimit  int64  `json:"rate_limit"`
	Active     bool   `json:"active"`
	CreatedAt  int64  `json:"created_at"`
	LastUsedAt int64  `json:"last_used_at"`
}

// View strips credential hashes from d.
func (d *Developer) View() DeveloperView {
	return DeveloperView{
		ID:         d.ID,
		AppID:      d.AppID,
		ClientID:   d.ClientID,
		APIKeyHint: d.APIKeyHint,
		RateLimit:  d.RateLimit,
		Active:     d.Active,
		CreatedAt:  d.CreatedAt,
		LastUsedAt: d.LastUsedAt,
	}
}
