package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/tokgate/internal/core/domain"
	"github.com/yndnr/tokgate/internal/infra/buildinfo"
	"github.com/yndnr/tokgate/internal/server/httpserver"
	"github.com/yndnr/tokgate/internal/server/httpserver/handler"
	"github.com/yndnr/tokgate/internal/server/httpstatus"
	"github.com/yndnr/tokgate/internal/telemetry/logger"
)

// Auth-core endpoints called by the gateway.
const (
	validateKeyPath = "/api/auth/internal/validate-key"
	verifyTokenPath = "/api/auth/internal/verify-token"
)

// maxResponseBytes bounds auth-core response bodies read by the client.
const maxResponseBytes = 16 << 10

// Admission is the rate limit state reported with an admission decision.
type Admission struct {
	Limit      string
	Remaining  string
	Reset      string
	RetryAfter string
}

// Admitter validates an API key and charges it against its rate limit.
// A RateLimited error comes with a non-nil Admission.
type Admitter interface {
	Admit(ctx context.Context, apiKey string) (*Admission, error)
}

// Verifier resolves a bearer access token to its principal.
type Verifier interface {
	Verify(ctx context.Context, accessToken string) (*domain.Principal, error)
}

// sentinelByKind maps wire kinds to the errors the filter returns. Kinds
// outside a call's expected set are treated as transport failures.
var sentinelByKind = map[domain.Kind]*domain.DomainError{
	domain.KindInvalidAPIKey:  domain.ErrInvalidAPIKey,
	domain.KindRateLimited:    domain.ErrRateLimited,
	domain.KindTokenInvalid:   domain.ErrTokenInvalid,
	domain.KindTokenExpired:   domain.ErrTokenExpired,
	domain.KindSessionRevoked: domain.ErrSessionRevoked,
}

// AuthCoreClient calls the auth-core internal endpoints. It implements
// Admitter and Verifier.
type AuthCoreClient struct {
	baseURL       string
	internalToken string
	client        *http.Client
	userAgent     string
}

// ClientOption configures an AuthCoreClient.
type ClientOption func(*AuthCoreClient)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(a *AuthCoreClient) {
		if c != nil {
			a.client = c
		}
	}
}

// WithInternalToken sends token as X-Internal-Token on every call.
func WithInternalToken(token string) ClientOption {
	return func(a *AuthCoreClient) {
		a.internalToken = token
	}
}

// NewAuthCoreClient creates a client for the auth core at baseURL.
// timeout bounds each call; callers may bound it further with ctx.
func NewAuthCoreClient(baseURL string, timeout time.Duration, opts ...ClientOption) (*AuthCoreClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse auth core url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("auth core url %q: scheme must be http or https", baseURL)
	}
	c := &AuthCoreClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: timeout},
		userAgent: buildinfo.UserAgent("gateway"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Admit calls validate-key.
func (c *AuthCoreClient) Admit(ctx context.Context, apiKey string) (*Admission, error) {
	resp, err := c.post(ctx, validateKeyPath, func(h http.Header) {
		h.Set(handler.HeaderAPIKey, apiKey)
	})
	if err != nil {
		return nil, err
	}
	defer drain(resp.Body)

	adm := &Admission{
		Limit:      resp.Header.Get(handler.HeaderRateLimitLimit),
		Remaining:  resp.Header.Get(handler.HeaderRateLimitRemaining),
		Reset:      resp.Header.Get(handler.HeaderRateLimitReset),
		RetryAfter: resp.Header.Get("Retry-After"),
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return adm, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, kindError(resp, domain.ErrInvalidAPIKey, domain.KindInvalidAPIKey)
	case resp.StatusCode == http.StatusTooManyRequests:
		if _, err := strconv.Atoi(adm.RetryAfter); err != nil {
			adm.RetryAfter = ""
		}
		return adm, domain.ErrRateLimited
	default:
		return nil, transportFailure(resp)
	}
}

// Verify calls verify-token.
func (c *AuthCoreClient) Verify(ctx context.Context, accessToken string) (*domain.Principal, error) {
	resp, err := c.post(ctx, verifyTokenPath, func(h http.Header) {
		h.Set("Authorization", "Bearer "+accessToken)
	})
	if err != nil {
		return nil, err
	}
	defer drain(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		var p domain.Principal
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&p); err != nil {
			return nil, domain.ErrTransportFailure.WithCause(fmt.Errorf("decode principal: %w", err))
		}
		if p.UserID == "" {
			return nil, domain.ErrTransportFailure.WithDetails("verify-token returned no user id")
		}
		return &p, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, kindError(resp, domain.ErrTokenInvalid,
			domain.KindTokenInvalid, domain.KindTokenExpired, domain.KindSessionRevoked)
	default:
		return nil, transportFailure(resp)
	}
}

func (c *AuthCoreClient) post(ctx context.Context, path string, set func(http.Header)) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return nil, domain.ErrTransportFailure.WithCause(err)
	}
	set(req.Header)
	req.Header.Set("User-Agent", c.userAgent)
	if c.internalToken != "" {
		req.Header.Set(httpserver.HeaderInternalToken, c.internalToken)
	}
	if id := logger.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(httpserver.HeaderRequestID, id)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.ErrTransportFailure.WithCause(err)
	}
	return resp, nil
}

// kindError resolves the X-Error-Code header against the allowed kinds.
// An absent or unexpected code falls back to the status default.
func kindError(resp *http.Response, fallback *domain.DomainError, allowed ...domain.Kind) error {
	kind, ok := domain.ParseKind(resp.Header.Get(httpstatus.HeaderErrorCode))
	if !ok {
		return fallback
	}
	for _, k := range allowed {
		if k == kind {
			return sentinelByKind[kind]
		}
	}
	return fallback
}

func transportFailure(resp *http.Response) error {
	return domain.ErrTransportFailure.WithDetails(fmt.Sprintf("auth core returned %d", resp.StatusCode))
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxResponseBytes))
	_ = body.Close()
}
