package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/yndnr/tokgate/internal/core/domain"
	"github.com/yndnr/tokgate/internal/telemetry/metric"
)

// IdentityService registers users and logs them in.
type IdentityService struct {
	users   UserRepository
	tokens  *TokenService
	now     func() time.Time
	log     *slog.Logger
	metrics *metric.Registry
}

// NewIdentityService creates an IdentityService.
func NewIdentityService(users UserRepository, tokens *TokenService, opts ...Option) *IdentityService {
	o := buildOptions("identity", opts)
	return &IdentityService{
		users:   users,
		tokens:  tokens,
		now:     o.now,
		log:     o.log,
		metrics: o.metrics,
	}
}

// Register creates a user account.
func (s *IdentityService) Register(ctx context.Context, username, email, password string) (*domain.User, error) {
	user, err := domain.NewUser(username, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.log.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Login verifies a password and issues a session.
//
// Unknown email, wrong password and disabled account all return
// InvalidCredentials, and all three pay for one password hash.
func (s *IdentityService) Login(ctx context.Context, email, password, device, ip string) (*domain.TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			domain.BurnVerify(password)
			s.metrics.ObserveLogin("invalid")
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if !domain.VerifySecret(password, user.PasswordHash) || !user.Active {
		s.metrics.ObserveLogin("invalid")
		s.log.Info("login rejected", "user_id", user.ID)
		return nil, domain.ErrInvalidCredentials
	}

	pair, err := s.tokens.Issue(ctx, user.ID, device, ip)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateLastLogin(ctx, user.ID, s.now().UnixMilli()); err != nil {
		s.log.Warn("failed to record last login", "user_id", user.ID, "error", err)
	}

	s.metrics.ObserveLogin("success")
	return pair, nil
}
