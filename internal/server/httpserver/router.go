package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/yndnr/tokgate/internal/server/httpserver/handler"
	"github.com/yndnr/tokgate/internal/telemetry/logger"
)

// DefaultRequestTimeout bounds every auth-core request.
const DefaultRequestTimeout = 5 * time.Second

// RouterConfig holds configuration for the auth-core router.
type RouterConfig struct {
	Handler handler.Config

	// AdminToken guards /api/admin. Empty disables the admin API.
	AdminToken string
	// InternalToken, when set, guards /api/auth/internal.
	InternalToken string

	// RequestTimeout bounds each request context (default 5s).
	RequestTimeout time.Duration

	// Throttle limits credential endpoints per client IP. Nil uses the
	// defaults.
	Throttle *Throttle

	// TrustedProxies are the peers allowed to report the client address in
	// X-Forwarded-For. Empty means the peer address is always used.
	TrustedProxies handler.TrustedProxies

	Logger *slog.Logger
}

// NewRouter builds the auth-core handler: every route is dispatched to one
// handler.Handler through the middleware chain of its group.
//
// Groups: public (health, metrics, refresh, logout), credential (register,
// login, rotate-key; per-IP throttled), internal and admin.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Discard().Slog()
	}
	if cfg.Handler.Logger == nil {
		cfg.Handler.Logger = log
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	throttle := cfg.Throttle
	if throttle == nil {
		throttle = NewThrottle(0, 0)
	}

	h := handler.New(cfg.Handler)
	base := []Middleware{RequestID(log), ClientAddress(cfg.TrustedProxies), Recover(log), Audit(log), Timeout(timeout)}

	public := Chain(h, base...)
	credential := Chain(h, append(base, throttle.Middleware())...)
	internal := Chain(h, append(base, InternalAuth(cfg.InternalToken))...)
	admin := Chain(h, append(base, AdminAuth(cfg.AdminToken))...)

	mux := http.NewServeMux()

	mux.Handle("GET /health", Chain(h, RequestID(log), Recover(log)))
	mux.Handle("GET /metrics", Chain(h, RequestID(log), Recover(log)))

	mux.Handle("POST /api/auth/register", credential)
	mux.Handle("POST /api/auth/login", credential)
	mux.Handle("POST /api/auth/developer/rotate-key", credential)
	mux.Handle("POST /api/auth/refresh", public)
	mux.Handle("POST /api/auth/logout", public)
	mux.Handle("POST /api/auth/logout-all", public)

	mux.Handle("/api/auth/internal/", internal)
	mux.Handle("/api/admin/", admin)

	return mux
}
