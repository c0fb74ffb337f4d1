package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/yndnr/tokgate/internal/core/domain"
	"github.com/yndnr/tokgate/internal/telemetry/metric"
	"github.com/yndnr/tokgate/pkg/token"
)

// Token lifetimes.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour

	// reuseRevokeTimeout bounds the cascading revoke run after reuse is
	// detected. It is detached from the request context so that a client
	// disconnect cannot abort it.
	reuseRevokeTimeout = 5 * time.Second
)

// TokenServiceConfig holds configuration for TokenService.
type TokenServiceConfig struct {
	// AccessTTL is the access token lifetime (default: 15m).
	AccessTTL time.Duration

	// RefreshTTL is the refresh token lifetime and thus the session
	// lifetime (default: 7d).
	RefreshTTL time.Duration
}

// DefaultTokenServiceConfig returns default configuration.
func DefaultTokenServiceConfig() *TokenServiceConfig {
	return &TokenServiceConfig{
		AccessTTL:  DefaultAccessTTL,
		RefreshTTL: DefaultRefreshTTL,
	}
}

// TokenService issues, validates, rotates and revokes sessions.
//
// Refresh rotation relies on SessionRepository.Rotate being an atomic
// compare-and-swap: of any number of concurrent refreshes presenting the
// same token, exactly one wins and every other is treated as reuse.
type TokenService struct {
	repo    SessionRepository
	hasher  *token.Hasher
	cfg     TokenServiceConfig
	now     func() time.Time
	log     *slog.Logger
	metrics *metric.Registry
}

// NewTokenService creates a new TokenService.
func NewTokenService(repo SessionRepository, hasher *token.Hasher, cfg *TokenServiceConfig, opts ...Option) *TokenService {
	if cfg == nil {
		cfg = DefaultTokenServiceConfig()
	}
	c := *cfg
	if c.AccessTTL <= 0 {
		c.AccessTTL = DefaultAccessTTL
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = DefaultRefreshTTL
	}
	o := buildOptions("token", opts)
	return &TokenService{
		repo:    repo,
		hasher:  hasher,
		cfg:     c,
		now:     o.now,
		log:     o.log,
		metrics: o.metrics,
	}
}

// Issue creates a new Active session for userID and returns its tokens.
//
// The plaintext tokens exist only in the returned pair.
func (s *TokenService) Issue(ctx context.Context, userID, device, ip string) (*domain.TokenPair, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument.WithDetails("user_id is required")
	}

	session, pair, err := s.newSession(userID, device, ip)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}

	s.metrics.ObserveIssued()
	s.log.Info("session issued", "session_id", session.ID, "user_id", userID)
	return pair, nil
}

func (s *TokenService) newSession(userID, device, ip string) (*domain.Session, *domain.TokenPair, error) {
	id, err := domain.GenerateSessionID()
	if err != nil {
		return nil, nil, err
	}
	access, err := domain.GenerateCredential(domain.AccessTokenPrefix)
	if err != nil {
		return nil, nil, err
	}
	refresh, err := domain.GenerateCredential(domain.RefreshTokenPrefix)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	ms := now.UnixMilli()
	session := &domain.Session{
		ID:               id,
		UserID:           userID,
		AccessTokenHash:  s.hasher.Sum(access),
		RefreshTokenHash: s.hasher.Sum(refresh),
		AccessExpiresAt:  now.Add(s.cfg.AccessTTL).UnixMilli(),
		ExpiresAt:        now.Add(s.cfg.RefreshTTL).UnixMilli(),
		Device:           domain.TruncateDevice(device),
		IPAddress:        ip,
		State:            domain.SessionActive,
		CreatedAt:        ms,
		LastUsedAt:       ms,
		UpdatedAt:        ms,
	}
	if len(session.IPAddress) > domain.MaxIPAddressLength {
		session.IPAddress = ""
	}

	return session, &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    session.AccessExpiresAt,
		SessionID:    id,
	}, nil
}

// ValidateAccess resolves an access token to its principal.
//
// Checks run in a fixed order: format and lookup (TokenInvalid), then
// access expiry (TokenExpired), then session state (SessionRevoked).
func (s *TokenService) ValidateAccess(ctx context.Context, accessToken string) (*domain.Principal, error) {
	// 1. Validate token format
	if !domain.ValidCredentialFormat(domain.AccessTokenPrefix, accessToken) {
		return nil, domain.ErrTokenInvalid
	}

	// 2. Lookup session by token hash
	session, err := s.repo.GetByAccessHash(ctx, s.hasher.Sum(accessToken))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, err
	}
	if !s.hasher.Verify(accessToken, session.AccessTokenHash) {
		return nil, domain.ErrTokenInvalid
	}

	// 3. Check access expiry
	if session.AccessExpired(s.now().UnixMilli()) {
		return nil, domain.ErrTokenExpired
	}

	// 4. Check state
	if !session.IsActive() {
		return nil, domain.ErrSessionRevoked
	}

	return &domain.Principal{
		UserID:    session.UserID,
		SessionID: session.ID,
		ExpiresAt: session.AccessExpiresAt,
	}, nil
}

// Refresh rotates a refresh token into a new token pair.
//
// Presenting a refresh token whose session is no longer Active revokes every
// session of the owning user before TokenReused is returned. device and ip
// default to the values of the rotated session when empty.
func (s *TokenService) Refresh(ctx context.Context, refreshToken, device, ip string) (*domain.TokenPair, error) {
	// 1. Validate token format
	if !domain.ValidCredentialFormat(domain.RefreshTokenPrefix, refreshToken) {
		s.metrics.ObserveRefresh("invalid")
		return nil, domain.ErrTokenInvalid
	}

	// 2. Lookup session by token hash
	old, err := s.repo.GetByRefreshHash(ctx, s.hasher.Sum(refreshToken))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			s.metrics.ObserveRefresh("invalid")
			return nil, domain.ErrTokenInvalid
		}
		return nil, err
	}
	if !s.hasher.Verify(refreshToken, old.RefreshTokenHash) {
		s.metrics.ObserveRefresh("invalid")
		return nil, domain.ErrTokenInvalid
	}

	// 3. A retired session presenting its refresh token is reuse
	if !old.IsActive() {
		return nil, s.handleReuse(ctx, old)
	}

	// 4. Check refresh expiry
	nowMs := s.now().UnixMilli()
	if old.Expired(nowMs) {
		if _, err := s.repo.Revoke(ctx, old.ID, domain.RevokeExpired, nowMs); err != nil {
			s.log.Warn("failed to revoke expired session", "session_id", old.ID, "error", err)
		} else {
			s.metrics.ObserveRevoked(string(domain.RevokeExpired), 1)
		}
		s.metrics.ObserveRefresh("expired")
		return nil, domain.ErrTokenExpired
	}

	// 5. Rotate
	if device == "" {
		device = old.Device
	}
	if ip == "" {
		ip = old.IPAddress
	}
	next, pair, err := s.newSession(old.UserID, device, ip)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Rotate(ctx, old.ID, next); err != nil {
		if errors.Is(err, domain.ErrSessionStateConflict) {
			return nil, s.handleReuse(ctx, old)
		}
		return nil, err
	}

	s.metrics.ObserveRefresh("rotated")
	s.metrics.ObserveIssued()
	s.log.Info("session rotated", "session_id", old.ID, "replaced_by", next.ID, "user_id", old.UserID)
	return pair, nil
}

// handleReuse revokes every session of the user and returns TokenReused.
func (s *TokenService) handleReuse(ctx context.Context, session *domain.Session) error {
	s.metrics.ObserveRefresh("reused")
	s.metrics.ObserveTokenReuse()

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reuseRevokeTimeout)
	defer cancel()

	n, err := s.repo.RevokeAllByUser(rctx, session.UserID, domain.RevokeReuse, s.now().UnixMilli())
	s.metrics.ObserveRevoked(string(domain.RevokeReuse), n)
	if err != nil {
		s.log.Error("revoke after refresh token reuse failed",
			"session_id", session.ID, "user_id", session.UserID, "revoked", n, "error", err)
		return domain.ErrTokenReused.WithCause(err)
	}

	s.log.Warn("refresh token reuse detected",
		"session_id", session.ID, "user_id", session.UserID, "revoked", n)
	return domain.ErrTokenReused
}

// Revoke revokes one session. Revoking a revoked session is a no-op;
// an unknown id is NotFound.
func (s *TokenService) Revoke(ctx context.Context, sessionID string, reason domain.RevokeReason) error {
	changed, err := s.repo.Revoke(ctx, sessionID, reason, s.now().UnixMilli())
	if err != nil {
		return err
	}
	if changed {
		s.metrics.ObserveRevoked(string(reason), 1)
		s.log.Info("session revoked", "session_id", sessionID, "reason", reason)
	}
	return nil
}

// RevokeAllForUser revokes every non-revoked session of a user and returns
// the number that changed state.
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID string, reason domain.RevokeReason) (int, error) {
	if userID == "" {
		return 0, domain.ErrInvalidArgument.WithDetails("user_id is required")
	}
	n, err := s.repo.RevokeAllByUser(ctx, userID, reason, s.now().UnixMilli())
	s.metrics.ObserveRevoked(string(reason), n)
	if err != nil {
		return n, err
	}
	s.log.Info("user sessions revoked", "user_id", userID, "reason", reason, "revoked", n)
	return n, nil
}

// ListSessions returns a user's sessions without token material.
func (s *TokenService) ListSessions(ctx context.Context, userID string) ([]domain.SessionView, error) {
	sessions, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]domain.SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, session.View())
	}
	return views, nil
}

// Sweep revokes expired Active sessions and purges retired sessions whose
// last state change is older than retention.
func (s *TokenService) Sweep(ctx context.Context, retention time.Duration) (SweepResult, error) {
	now := s.now()
	res, err := s.repo.Sweep(ctx, now.UnixMilli(), now.Add(-retention).UnixMilli())
	s.metrics.ObserveRevoked(string(domain.RevokeExpired), res.Expired)
	return res, err
}

// RunSweeper runs Sweep every interval until ctx is cancelled.
func (s *TokenService) RunSweeper(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := s.Sweep(ctx, retention)
			if err != nil && ctx.Err() == nil {
				s.log.Error("session sweep failed", "error", err)
				continue
			}
			if res.Expired > 0 || res.Purged > 0 {
				s.log.Info("session sweep completed", "expired", res.Expired, "purged", res.Purged)
			}
		}
	}
}
