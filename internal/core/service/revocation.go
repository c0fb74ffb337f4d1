package service

import (
	"context"
	"time"

	"github.com/yndnr/tokgate/internal/core/domain"
)

// MaxValidationStaleness is the longest a revoked session may still be
// accepted downstream. The gateway validates every request against the auth
// core without caching, so it is zero.
const MaxValidationStaleness time.Duration = 0

// RevocationService is the entry point for revoking sessions, from users
// (logout) and operators (admin).
type RevocationService struct {
	tokens *TokenService
}

// NewRevocationService creates a RevocationService backed by tokens.
func NewRevocationService(tokens *TokenService) *RevocationService {
	return &RevocationService{tokens: tokens}
}

// RevokeSession revokes one session on operator request.
func (s *RevocationService) RevokeSession(ctx context.Context, sessionID string) error {
	return s.tokens.Revoke(ctx, sessionID, domain.RevokeAdmin)
}

// RevokeAllForUser revokes every session of a user on operator request.
func (s *RevocationService) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	return s.tokens.RevokeAllForUser(ctx, userID, domain.RevokeAdmin)
}

// Logout revokes the session the principal authenticated with.
func (s *RevocationService) Logout(ctx context.Context, p *domain.Principal) error {
	return s.tokens.Revoke(ctx, p.SessionID, domain.RevokeLogout)
}

// LogoutAll revokes every session of the principal's user.
func (s *RevocationService) LogoutAll(ctx context.Context, p *domain.Principal) (int, error) {
	return s.tokens.RevokeAllForUser(ctx, p.UserID, domain.RevokeLogout)
}
