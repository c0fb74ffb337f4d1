package gateway

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yndnr/tokgate/internal/core/domain"
	"github.com/yndnr/tokgate/internal/server/httpserver/handler"
	"github.com/yndnr/tokgate/internal/server/httpstatus"
	"github.com/yndnr/tokgate/internal/telemetry/logger"
	"github.com/yndnr/tokgate/internal/telemetry/metric"
)

// HeaderUserID carries the verified user id to downstream services.
const HeaderUserID = "X-User-Id"

// MaxValidationStaleness is how long a revocation may take to reach the
// gateway. Admission is never cached.
const MaxValidationStaleness time.Duration = 0

// DefaultAdmissionTimeout bounds each remote admission call.
const DefaultAdmissionTimeout = 3 * time.Second

// Filter outcomes, used as the gateway_requests_total label.
const (
	OutcomeAllowListed      = "allow_listed"
	OutcomeForwarded        = "forwarded"
	OutcomeMissingKey       = "rejected_missing_key"
	OutcomeInvalidKey       = "rejected_invalid_key"
	OutcomeRateLimited      = "rejected_rate_limited"
	OutcomeInvalidToken     = "rejected_invalid_token"
	OutcomeTransportFailure = "rejected_transport"
	OutcomeInternalPath     = "rejected_internal"
)

// internalPathPrefix is the auth-core service API. It is only reachable
// from inside, so the gateway answers 404 for it whatever the allow-list
// says.
const internalPathPrefix = "/api/auth/internal"

// FilterConfig configures the auth filter.
type FilterConfig struct {
	AllowList *AllowList
	Admitter  Admitter
	// Verifier resolves bearer tokens. Nil forwards requests unannotated.
	Verifier Verifier
	Timeout  time.Duration
	Metrics  *metric.Registry
	Logger   *slog.Logger
}

// AuthFilter returns the gin middleware that admits or rejects each request.
func AuthFilter(cfg FilterConfig) gin.HandlerFunc {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultAdmissionTimeout
	}
	if cfg.AllowList == nil {
		cfg.AllowList = NewAllowList(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard().Slog()
	}

	return func(c *gin.Context) {
		// Identity is only ever set by the gateway.
		c.Request.Header.Del(HeaderUserID)

		if p := cleanPath(c.Request.URL.Path); p == internalPathPrefix || strings.HasPrefix(p, internalPathPrefix+"/") {
			cfg.Metrics.ObserveGatewayRequest(OutcomeInternalPath)
			httpstatus.Write(c.Writer, domain.NewDomainError(domain.KindNotFound, "not found"),
				logger.RequestIDFromContext(c.Request.Context()))
			c.Abort()
			return
		}

		if cfg.AllowList.Allowed(c.Request.URL.Path) {
			cfg.Metrics.ObserveGatewayRequest(OutcomeAllowListed)
			c.Next()
			return
		}

		apiKey := strings.TrimSpace(c.GetHeader(handler.HeaderAPIKey))
		if apiKey == "" {
			reject(c, cfg.Metrics, OutcomeMissingKey, domain.ErrInvalidAPIKey.WithDetails("X-API-KEY header is required"))
			return
		}

		adm, err := admit(c.Request.Context(), cfg, apiKey)
		if adm != nil {
			setRateLimitHeaders(c, adm)
		}
		if err != nil {
			if domain.IsKind(err, domain.KindTransportFailure) {
				cfg.Logger.Warn("admission failed", "error", err, "request_id", logger.RequestIDFromContext(c.Request.Context()))
			}
			reject(c, cfg.Metrics, admissionOutcome(err), err)
			return
		}

		if tok, ok := bearerToken(c.GetHeader("Authorization")); ok && cfg.Verifier != nil {
			p, err := verify(c.Request.Context(), cfg, tok)
			if err != nil {
				outcome := OutcomeInvalidToken
				if domain.IsKind(err, domain.KindTransportFailure) {
					outcome = OutcomeTransportFailure
				}
				reject(c, cfg.Metrics, outcome, err)
				return
			}
			c.Request.Header.Set(HeaderUserID, p.UserID)
		}

		cfg.Metrics.ObserveGatewayRequest(OutcomeForwarded)
		c.Next()
	}
}

func admit(ctx context.Context, cfg FilterConfig, apiKey string) (*Admission, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	start := time.Now()
	adm, err := cfg.Admitter.Admit(ctx, apiKey)
	cfg.Metrics.ObserveAdmission("validate_key", time.Since(start))
	return adm, err
}

func verify(ctx context.Context, cfg FilterConfig, tok string) (*domain.Principal, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	start := time.Now()
	p, err := cfg.Verifier.Verify(ctx, tok)
	cfg.Metrics.ObserveAdmission("verify_token", time.Since(start))
	return p, err
}

func admissionOutcome(err error) string {
	switch domain.KindOf(err) {
	case domain.KindRateLimited:
		return OutcomeRateLimited
	case domain.KindInvalidAPIKey:
		return OutcomeInvalidKey
	default:
		return OutcomeTransportFailure
	}
}

// reject writes the error envelope and stops the chain. Any kind outside the
// filter's set is reported as TransportFailure.
func reject(c *gin.Context, m *metric.Registry, outcome string, err error) {
	switch domain.KindOf(err) {
	case domain.KindInvalidAPIKey, domain.KindRateLimited, domain.KindTransportFailure,
		domain.KindTokenInvalid, domain.KindTokenExpired, domain.KindSessionRevoked:
	default:
		err = domain.ErrTransportFailure.WithCause(err)
	}
	m.ObserveGatewayRequest(outcome)
	httpstatus.Write(c.Writer, err, logger.RequestIDFromContext(c.Request.Context()))
	c.Abort()
}

func setRateLimitHeaders(c *gin.Context, adm *Admission) {
	h := c.Writer.Header()
	for name, v := range map[string]string{
		handler.HeaderRateLimitLimit:     adm.Limit,
		handler.HeaderRateLimitRemaining: adm.Remaining,
		handler.HeaderRateLimitReset:     adm.Reset,
		"Retry-After":                    adm.RetryAfter,
	} {
		if v != "" {
			h.Set(name, v)
		}
	}
}

func bearerToken(h string) (string, bool) {
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}
