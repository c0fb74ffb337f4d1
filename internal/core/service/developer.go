package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/yndnr/tokgate/internal/core/domain"
	"github.com/yndnr/tokgate/internal/ratelimit"
	"github.com/yndnr/tokgate/internal/telemetry/metric"
	"github.com/yndnr/tokgate/pkg/token"
)

// RateLimiter counts one request against a key's window.
type RateLimiter interface {
	Enforce(key string, limit int64, window time.Duration) ratelimit.Decision
}

// DeveloperKeyServiceConfig holds configuration for DeveloperKeyService.
type DeveloperKeyServiceConfig struct {
	// Window is the rate limit window that Developer.RateLimit applies to
	// (default: 1m).
	Window time.Duration
}

// Admission is the result of a successful or rate-limited admission check.
type Admission struct {
	Developer *domain.Developer
	Decision  ratelimit.Decision
}

// DeveloperKeyService manages developers and admits API key traffic.
type DeveloperKeyService struct {
	repo     DeveloperRepository
	hasher   *token.Hasher
	limiter  RateLimiter
	recorder *LastUsedRecorder
	window   time.Duration
	now      func() time.Time
	log      *slog.Logger
	metrics  *metric.Registry
}

// NewDeveloperKeyService creates a DeveloperKeyService. recorder may be nil,
// in which case last_used_at is not maintained.
func NewDeveloperKeyService(
	repo DeveloperRepository,
	hasher *token.Hasher,
	limiter RateLimiter,
	recorder *LastUsedRecorder,
	cfg DeveloperKeyServiceConfig,
	opts ...Option,
) *DeveloperKeyService {
	if cfg.Window <= 0 {
		cfg.Window = ratelimit.DefaultWindow
	}
	o := buildOptions("developer", opts)
	return &DeveloperKeyService{
		repo:     repo,
		hasher:   hasher,
		limiter:  limiter,
		recorder: recorder,
		window:   cfg.Window,
		now:      o.now,
		log:      o.log,
		metrics:  o.metrics,
	}
}

// Window returns the rate limit window.
func (s *DeveloperKeyService) Window() time.Duration {
	return s.window
}

// Register creates a developer. The returned credentials are the only copy
// of the plaintext API key and client secret.
func (s *DeveloperKeyService) Register(ctx context.Context, appID string, rateLimit int64) (*domain.Developer, *domain.DeveloperCredentials, error) {
	dev, creds, err := domain.NewDeveloper(appID, rateLimit, s.hasher.Sum)
	if err != nil {
		return nil, nil, err
	}
	if err := s.repo.Create(ctx, dev); err != nil {
		return nil, nil, err
	}
	s.log.Info("developer registered", "developer_id", dev.ID, "app_id", dev.AppID, "rate_limit", dev.RateLimit)
	return dev, creds, nil
}

// List returns all developers without credential hashes.
func (s *DeveloperKeyService) List(ctx context.Context) ([]domain.DeveloperView, error) {
	devs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.DeveloperView, 0, len(devs))
	for _, d := range devs {
		views = append(views, d.View())
	}
	return views, nil
}

// SetActive enables or disables a developer. Disabling takes effect on the
// next admission check.
func (s *DeveloperKeyService) SetActive(ctx context.Context, id string, active bool) error {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	s.log.Info("developer active changed", "developer_id", id, "active", active)
	return nil
}

// ValidateAPIKey resolves an API key to an active developer. Malformed,
// unknown and disabled keys are all InvalidApiKey.
func (s *DeveloperKeyService) ValidateAPIKey(ctx context.Context, apiKey string) (*domain.Developer, error) {
	if !domain.ValidCredentialFormat(domain.APIKeyPrefix, apiKey) {
		s.metrics.ObserveKeyValidation("malformed")
		return nil, domain.ErrInvalidAPIKey
	}

	dev, err := s.repo.GetByAPIKeyHash(ctx, s.hasher.Sum(apiKey))
	if err != nil {
		if errors.Is(err, domain.ErrDeveloperNotFound) {
			s.metrics.ObserveKeyValidation("unknown")
			return nil, domain.ErrInvalidAPIKey
		}
		return nil, err
	}
	if !s.hasher.Verify(apiKey, dev.APIKeyHash) {
		s.metrics.ObserveKeyValidation("unknown")
		return nil, domain.ErrInvalidAPIKey
	}
	if !dev.Active {
		s.metrics.ObserveKeyValidation("disabled")
		return nil, domain.ErrInvalidAPIKey
	}

	s.metrics.ObserveKeyValidation("valid")
	s.recorder.Record(dev.ID, s.now().UnixMilli())
	return dev, nil
}

// Admit validates apiKey and counts the request against the developer's
// rate limit. A denied request returns the Admission together with
// ErrRateLimited so callers can report the reset time.
func (s *DeveloperKeyService) Admit(ctx context.Context, apiKey string) (*Admission, error) {
	dev, err := s.ValidateAPIKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	adm := &Admission{
		Developer: dev,
		Decision:  s.limiter.Enforce(dev.APIKeyHash, dev.RateLimit, s.window),
	}
	if !adm.Decision.Allowed {
		s.log.Debug("developer rate limited", "developer_id", dev.ID, "count", adm.Decision.Count, "limit", dev.RateLimit)
		return adm, domain.ErrRateLimited
	}
	return adm, nil
}

// RotateKey replaces a developer's API key after verifying its client
// credentials, and returns the new key. The old key stops working at once.
func (s *DeveloperKeyService) RotateKey(ctx context.Context, clientID, clientSecret string) (string, *domain.Developer, error) {
	if !domain.ValidCredentialFormat(domain.ClientIDPrefix, clientID) {
		domain.BurnVerify(clientSecret)
		return "", nil, domain.ErrInvalidCredentials
	}

	dev, err := s.repo.GetByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, domain.ErrDeveloperNotFound) {
			domain.BurnVerify(clientSecret)
			return "", nil, domain.ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !domain.VerifySecret(clientSecret, dev.ClientSecretHash) || !dev.Active {
		return "", nil, domain.ErrInvalidCredentials
	}

	apiKey, err := dev.RotateAPIKey(s.hasher.Sum)
	if err != nil {
		return "", nil, err
	}
	if err := s.repo.UpdateAPIKey(ctx, dev.ID, dev.APIKeyHash, dev.APIKeyHint); err != nil {
		return "", nil, err
	}

	s.log.Info("developer api key rotated", "developer_id", dev.ID, "api_key_hint", dev.APIKeyHint)
	return apiKey, dev, nil
}
