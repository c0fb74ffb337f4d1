package domain

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Session constraints.
const (
	MaxUserIDLength    = 128
	MaxIPAddressLength = 45 // IPv6 max length
	MaxDeviceLength    = 512

	// SessionIDPrefix is the prefix for session IDs (public, uses hyphen).
	SessionIDPrefix = "tgss-"
)

// SessionState is the lifecycle state of a Session.
type SessionState string

const (
	// SessionActive sessions can authenticate and be refreshed.
	SessionActive SessionState = "active"
	// SessionRotated sessions were retired by a successful refresh. They are
	// kept so that a replay of their refresh token is recognized as reuse.
	SessionRotated SessionState = "rotated"
	// SessionRevoked is terminal.
	SessionRevoked SessionState = "revoked"
)

// Valid reports whether s is a known state.
func (s SessionState) Valid() bool {
	switch s {
	case SessionActive, SessionRotated, SessionRevoked:
		return true
	}
	return false
}

// RevokeReason records why a session left the Active state.
type RevokeReason string

const (
	RevokeLogout   RevokeReason = "logout"
	RevokeAdmin    RevokeReason = "admin"
	RevokeReuse    RevokeReason = "reuse"
	RevokeExpired  RevokeReason = "expired"
	RevokeRotation RevokeReason = "rotation"
)

// Session represents one logical login.
//
// Token values are never held here, only their keyed hashes. All timestamps
// are Unix milliseconds.
type Session struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	AccessTokenHash  string `json:"access_token_hash"`
	RefreshTokenHash string `json:"refresh_token_hash"`

	// AccessExpiresAt bounds the access token; ExpiresAt bounds the refresh
	// token and therefore the session.
	AccessExpiresAt int64 `json:"access_expires_at"`
	ExpiresAt       int64 `json:"expires_at"`

	Device    string `json:"device,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`

	State        SessionState `json:"state"`
	ReplacedBy   string       `json:"replaced_by,omitempty"`
	RevokeReason RevokeReason `json:"revoke_reason,omitempty"`

	CreatedAt  int64 `json:"created_at"`
	LastUsedAt int64 `json:"last_used_at"`
	// UpdatedAt is the time of the last state change.
	UpdatedAt int64 `json:"updated_at"`

	// Version is bumped on every state change.
	Version uint64 `json:"version"`
}

// GenerateSessionID generates a new session ID.
// Format: tgss-{ulid_lowercase}.
func GenerateSessionID() (string, error) {
	return newPrefixedULID(SessionIDPrefix)
}

func newPrefixedULID(prefix string) (string, error) {
	id, err := ulid.New(ulid.Timestamp(timeNow()), rand.Reader)
	if err != nil {
		return "", ErrInternal.WithCause(err)
	}
	return prefix + strings.ToLower(id.String()), nil
}

// IsValidSessionID checks the session ID format.
func IsValidSessionID(id string) bool {
	return hasULIDSuffix(id, SessionIDPrefix)
}

func hasULIDSuffix(id, prefix string) bool {
	if !strings.HasPrefix(id, prefix) || len(id) != len(prefix)+ulid.EncodedSize {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(id[len(prefix):]))
	return err == nil
}

// IsActive reports whether the session is in the Active state.
func (s *Session) IsActive() bool {
	return s.State == SessionActive
}

// AccessExpired reports whether the access token is expired at now (ms).
func (s *Session) AccessExpired(now int64) bool {
	return now >= s.AccessExpiresAt
}

// Expired reports whether the refresh token is expired at now (ms).
func (s *Session) Expired(now int64) bool {
	return now >= s.ExpiresAt
}

// MarkRotated transitions an Active session to Rotated.
func (s *Session) MarkRotated(replacedBy string, now int64) error {
	if s.State != SessionActive {
		return ErrSessionStateConflict
	}
	s.State = SessionRotated
	s.ReplacedBy = replacedBy
	s.RevokeReason = RevokeRotation
	s.LastUsedAt = now
	s.UpdatedAt = now
	s.Version++
	return nil
}

// MarkRevoked transitions the session to Revoked. It reports false when the
// session was already revoked, leaving it untouched.
func (s *Session) MarkRevoked(reason RevokeReason, now int64) bool {
	if s.State == SessionRevoked {
		return false
	}
	s.State = SessionRevoked
	s.RevokeReason = reason
	s.UpdatedAt = now
	s.Version++
	return true
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Validate checks the session fields before it is persisted.
func (s *Session) Validate() error {
	var violations []string

	if !IsValidSessionID(s.ID) {
		violations = append(violations, "invalid session id")
	}
	if s.UserID == "" || len(s.UserID) > MaxUserIDLength {
		violations = append(violations, fmt.Sprintf("user_id must be 1-%d characters", MaxUserIDLength))
	}
	if s.AccessTokenHash == "" || s.RefreshTokenHash == "" {
		violations = append(violations, "token hashes are required")
	}
	if len(s.IPAddress) > MaxIPAddressLength {
		violations = append(violations, "ip_address too long")
	}
	if len(s.Device) > MaxDeviceLength {
		violations = append(violations, "device too long")
	}
	if !s.State.Valid() {
		violations = append(violations, "invalid state")
	}
	if s.ExpiresAt <= s.CreatedAt || s.AccessExpiresAt <= s.CreatedAt {
		violations = append(violations, "expiry must be after creation")
	}

	if len(violations) > 0 {
		return ErrInvalidArgument.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// SessionView is a session without token material, for listing.
type SessionView struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	State        SessionState `json:"state"`
	Device       string       `json:"device,omitempty"`
	IPAddress    string       `json:"ip_address,omitempty"`
	RevokeReason RevokeReason `json:"revoke_reason,omitempty"`
	CreatedAt    int64        `json:"created_at"`
	LastUsedAt   int64        `json:"last_used_at"`
	ExpiresAt    int64        `json:"expires_at"`
}

// View strips token hashes from s.
func (s *Session) View() SessionView {
	return SessionView{
		ID:           s.ID,
		UserID:       s.UserID,
		State:        s.State,
		Device:       s.Device,
		IPAddress:    s.IPAddress,
		RevokeReason: s.RevokeReason,
		CreatedAt:    s.CreatedAt,
		LastUsedAt:   s.LastUsedAt,
		ExpiresAt:    s.ExpiresAt,
	}
}

// TruncateDevice clips a user agent string to MaxDeviceLength.
func TruncateDevice(ua string) string {
	if len(ua) > MaxDeviceLength {
		return ua[:MaxDeviceLength]
	}
	return ua
}

// timeNow is a hook for testing.
var timeNow = time.Now

// nowMillis returns the current time in Unix milliseconds.
func nowMillis() int64 {
	return timeNow().UnixMilli()
}
