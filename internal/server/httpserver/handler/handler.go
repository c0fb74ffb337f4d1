package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/yndnr/tokgate/internal/core/domain"
	"github.com/yndnr/tokgate/internal/core/service"
	"github.com/yndnr/tokgate/internal/server/httpstatus"
	"github.com/yndnr/tokgate/internal/telemetry/logger"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 64 << 10

// Header names shared with the gateway.
const (
	HeaderAPIKey             = "X-API-KEY"
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

// Config wires the services behind the handlers.
type Config struct {
	Tokens     *service.TokenService
	Revocation *service.RevocationService
	Developers *service.DeveloperKeyService
	Identity   *service.IdentityService

	// Metrics serves GET /metrics. Nil disables the endpoint.
	Metrics http.Handler

	Logger *slog.Logger
	Now    func() time.Time
}

// Handler routes requests to the service calls.
type Handler struct {
	tokens     *service.TokenService
	revocation *service.RevocationService
	developers *service.DeveloperKeyService
	identity   *service.IdentityService
	metrics    http.Handler
	logger     *slog.Logger
	now        func() time.Time
	mux        *http.ServeMux
}

// New creates a Handler and registers its routes.
func New(cfg Config) *Handler {
	h := &Handler{
		tokens:     cfg.Tokens,
		revocation: cfg.Revocation,
		developers: cfg.Developers,
		identity:   cfg.Identity,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		now:        cfg.Now,
		mux:        http.NewServeMux(),
	}
	if h.logger == nil {
		h.logger = logger.Discard().Slog()
	}
	if h.now == nil {
		h.now = time.Now
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	if h.metrics != nil {
		h.mux.Handle("GET /metrics", h.metrics)
	}

	h.mux.HandleFunc("POST /api/auth/register", h.handleRegister)
	h.mux.HandleFunc("POST /api/auth/login", h.handleLogin)
	h.mux.HandleFunc("POST /api/auth/refresh", h.handleRefresh)
	h.mux.HandleFunc("POST /api/auth/logout", h.handleLogout)
	h.mux.HandleFunc("POST /api/auth/logout-all", h.handleLogoutAll)
	h.mux.HandleFunc("POST /api/auth/developer/rotate-key", h.handleRotateKey)

	h.mux.HandleFunc("POST /api/auth/internal/validate-key", h.handleValidateKey)
	h.mux.HandleFunc("POST /api/auth/internal/verify-token", h.handleVerifyToken)

	h.mux.HandleFunc("POST /api/admin/developers", h.handleCreateDeveloper)
	h.mux.HandleFunc("GET /api/admin/developers", h.handleListDevelopers)
	h.mux.HandleFunc("POST /api/admin/developers/{id}/disable", h.handleSetDeveloperActive(false))
	h.mux.HandleFunc("POST /api/admin/developers/{id}/enable", h.handleSetDeveloperActive(true))
	h.mux.HandleFunc("GET /api/admin/users/{id}/sessions", h.handleListUserSessions)
	h.mux.HandleFunc("POST /api/admin/users/{id}/revoke-all", h.handleRevokeUser)
	h.mux.HandleFunc("POST /api/admin/sessions/{id}/revoke", h.handleRevokeSession)
}

// writeJSON writes v as the response body.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L(r.Context()).Warn("encode response", "error", err)
	}
}

// writeError renders err in the error envelope. Internal errors are logged
// with their cause; the client only sees the kind.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	if kind == domain.KindInternal || kind == domain.KindUnavailable {
		h.logger.Error("request failed",
			"request_id", logger.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	httpstatus.Write(w, err, logger.RequestIDFromContext(r.Context()))
}

// decode reads a JSON body into v. Malformed bodies are InvalidArgument.
func decode(r *http.Request, v any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.ErrInvalidArgument.WithDetails("request body is empty")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return domain.ErrInvalidArgument.WithDetails("request body too large")
		}
		return domain.ErrInvalidArgument.WithDetails("malformed JSON body")
	}
	return nil
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(auth[len(prefix):])
	return tok, tok != ""
}

// principal validates the bearer access token of r.
func (h *Handler) principal(r *http.Request) (*domain.Principal, error) {
	tok, ok := bearerToken(r)
	if !ok {
		return nil, domain.ErrTokenInvalid.WithDetails("bearer token required")
	}
	return h.tokens.ValidateAccess(r.Context(), tok)
}
