package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/tokgate/internal/core/domain"
	"github.com/yndnr/tokgate/internal/server/httpserver/handler"
	"github.com/yndnr/tokgate/internal/server/httpstatus"
	"github.com/yndnr/tokgate/internal/telemetry/logger"
	"github.com/yndnr/tokgate/pkg/cmap"
)

// Throttle defaults for credential endpoints.
const (
	DefaultThrottlePerMinute = 30
	DefaultThrottleBurst     = 10
	defaultThrottleIdle      = 10 * time.Minute
)

type ipLimiter struct {
	lim      *rate.Limiter
	lastSeen atomic.Int64
}

// Throttle is a per-client-IP token bucket guarding the credential endpoints
// (login, register, rotate-key). It is independent of the developer limiter.
type Throttle struct {
	limiters *cmap.Map[*ipLimiter]
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// NewThrottle allows perMinute requests per IP with the given burst.
// Non-positive values fall back to the defaults.
func NewThrottle(perMinute, burst int) *Throttle {
	if perMinute <= 0 {
		perMinute = DefaultThrottlePerMinute
	}
	if burst <= 0 {
		burst = DefaultThrottleBurst
	}
	return &Throttle{
		limiters: cmap.New[*ipLimiter](),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow consumes one token for ip. When denied it returns the delay until
// a token is available.
func (t *Throttle) Allow(ip string) (bool, time.Duration) {
	now := t.now()
	l := t.limiters.GetOrCreate(ip, func() *ipLimiter {
		return &ipLimiter{lim: rate.NewLimiter(t.limit, t.burst)}
	})
	l.lastSeen.Store(now.UnixNano())
	if l.lim.AllowN(now, 1) {
		return true, 0
	}
	r := l.lim.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return false, delay
}

// Sweep drops limiters not seen for idle.
func (t *Throttle) Sweep(idle time.Duration) int {
	cutoff := t.now().Add(-idle).UnixNano()
	return t.limiters.DeleteIf(func(_ string, l *ipLimiter) bool {
		return l.lastSeen.Load() < cutoff
	})
}

// Run sweeps idle limiters every interval until ctx is done.
func (t *Throttle) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep(defaultThrottleIdle)
		}
	}
}

// Middleware rejects requests over the per-IP budget with 429.
func (t *Throttle) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := handler.ClientIP(r)
			ok, delay := t.Allow(ip)
			if !ok {
				secs := int64((delay + time.Second - 1) / time.Second)
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
				logger.L(r.Context()).Warn("credential endpoint throttled", "client_ip", ip, "path", r.URL.Path)
				httpstatus.Write(w, domain.ErrRateLimited.WithDetails("too many attempts from this address"),
					logger.RequestIDFromContext(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
