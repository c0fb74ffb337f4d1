package handler

import "github.com/yndnr/tokgate/internal/core/domain"

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest is the body of POST /api/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RotateKeyRequest is the body of POST /api/auth/developer/rotate-key.
type RotateKeyRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// RotateKeyResponse carries the replacement API key. It is shown once.
type RotateKeyResponse struct {
	APIKey     string `json:"apiKey"`
	APIKeyHint string `json:"apiKeyHint"`
}

// CreateDeveloperRequest is the body of POST /api/admin/developers.
type CreateDeveloperRequest struct {
	AppID     string `json:"app_id"`
	RateLimit int64  `json:"rate_limit"`
}

// CreateDeveloperResponse returns the developer and its one-time credentials.
type CreateDeveloperResponse struct {
	Developer   domain.DeveloperView        `json:"developer"`
	Credentials domain.DeveloperCredentials `json:"credentials"`
}

// ListDevelopersResponse is the body of GET /api/admin/developers.
type ListDevelopersResponse struct {
	Developers []domain.DeveloperView `json:"developers"`
}

// ListSessionsResponse is the body of GET /api/admin/users/{id}/sessions.
type ListSessionsResponse struct {
	UserID   string               `json:"user_id"`
	Sessions []domain.SessionView `json:"sessions"`
}

// RevokeAllResponse reports how many sessions a bulk revoke changed.
type RevokeAllResponse struct {
	UserID  string `json:"user_id"`
	Revoked int    `json:"revoked"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Commit  string `json:"commit,omitempty"`
	Time    int64  `json:"time"`
}
