package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace is the metric namespace for all tokgate collectors.
const Namespace = "tokgate"

// Registry holds all application metrics.
type Registry struct {
	reg *prometheus.Registry

	// Auth core
	refreshTotal    *prometheus.CounterVec
	tokenReuseTotal prometheus.Counter
	sessionsIssued  prometheus.Counter
	sessionsRevoked *prometheus.CounterVec
	loginTotal      *prometheus.CounterVec

	// Developer keys and rate limiting
	keyValidations    *prometheus.CounterVec
	rateLimitDecision *prometheus.CounterVec
	rateLimitBuckets  prometheus.Gauge
	touchDropped      prometheus.Counter

	// Gateway
	gatewayRequests  *prometheus.CounterVec
	gatewayAdmission *prometheus.HistogramVec
}

// NewRegistry creates a registry with process and Go collectors plus all
// tokgate metrics.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	r := &Registry{
		reg: reg,
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "auth",
			Name:      "refresh_total",
			Help:      "Refresh attempts by result kind.",
		}, []string{"result"}),
		tokenReuseTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "auth",
			Name:      "token_reuse_total",
			Help:      "Refresh token reuse incidents that triggered a cascading revoke.",
		}),
		sessionsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "auth",
			Name:      "sessions_issued_total",
			Help:      "Sessions created by login or rotation.",
		}),
		sessionsRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "auth",
			Name:      "sessions_revoked_total",
			Help:      "Sessions moved to the revoked state, by reason.",
		}, []string{"reason"}),
		loginTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "auth",
			Name:      "login_total",
			Help:      "Login attempts by result kind.",
		}, []string{"result"}),
		keyValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "developer",
			Name:      "key_validations_total",
			Help:      "API key validations by result kind.",
		}, []string{"result"}),
		rateLimitDecision: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Fixed-window rate limit decisions.",
		}, []string{"decision"}),
		rateLimitBuckets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "ratelimit",
			Name:      "buckets",
			Help:      "Live fixed-window buckets after the last sweep.",
		}),
		touchDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "developer",
			Name:      "touch_dropped_total",
			Help:      "last_used_at updates dropped because the recorder queue was full.",
		}),
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Gateway filter outcomes.",
		}, []string{"outcome"}),
		gatewayAdmission: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "gateway",
			Name:      "admission_seconds",
			Help:      "Latency of remote admission calls.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"call"}),
	}

	reg.MustRegister(
		r.refreshTotal,
		r.tokenReuseTotal,
		r.sessionsIssued,
		r.sessionsRevoked,
		r.loginTotal,
		r.keyValidations,
		r.rateLimitDecision,
		r.rateLimitBuckets,
		r.touchDropped,
		r.gatewayRequests,
		r.gatewayAdmission,
	)

	return r
}

// Registerer exposes the underlying registry for component-owned collectors.
func (r *Registry) Registerer() prometheus.Registerer {
	if r == nil {
		return nil
	}
	return r.reg
}

// Gatherer exposes the underlying registry for scraping and tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

// Handler returns an HTTP handler for /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Gatherer(), promhttp.HandlerOpts{})
}

// ObserveRefresh counts a refresh attempt. result is "ok" or an error kind.
func (r *Registry) ObserveRefresh(result string) {
	if r == nil {
		return
	}
	r.refreshTotal.WithLabelValues(result).Inc()
}

// ObserveTokenReuse counts a reuse incident.
func (r *Registry) ObserveTokenReuse() {
	if r == nil {
		return
	}
	r.tokenReuseTotal.Inc()
}

// ObserveIssued counts a created session.
func (r *Registry) ObserveIssued() {
	if r == nil {
		return
	}
	r.sessionsIssued.Inc()
}

// ObserveRevoked counts n sessions revoked for reason.
func (r *Registry) ObserveRevoked(reason string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.sessionsRevoked.WithLabelValues(reason).Add(float64(n))
}

// ObserveLogin counts a login attempt.
func (r *Registry) ObserveLogin(result string) {
	if r == nil {
		return
	}
	r.loginTotal.WithLabelValues(result).Inc()
}

// ObserveKeyValidation counts an API key validation.
func (r *Registry) ObserveKeyValidation(result string) {
	if r == nil {
		return
	}
	r.keyValidations.WithLabelValues(result).Inc()
}

// ObserveRateLimit counts a limiter decision.
func (r *Registry) ObserveRateLimit(allowed bool) {
	if r == nil {
		return
	}
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	r.rateLimitDecision.WithLabelValues(decision).Inc()
}

// SetRateLimitBuckets records the live bucket count.
func (r *Registry) SetRateLimitBuckets(n int) {
	if r == nil {
		return
	}
	r.rateLimitBuckets.Set(float64(n))
}

// ObserveTouchDropped counts a dropped last_used_at update.
func (r *Registry) ObserveTouchDropped() {
	if r == nil {
		return
	}
	r.touchDropped.Inc()
}

// ObserveGatewayRequest counts a gateway filter outcome.
func (r *Registry) ObserveGatewayRequest(outcome string) {
	if r == nil {
		return
	}
	r.gatewayRequests.WithLabelValues(outcome).Inc()
}

// ObserveAdmission records the latency of a remote admission call.
func (r *Registry) ObserveAdmission(call string, d time.Duration) {
	if r == nil {
		return
	}
	r.gatewayAdmission.WithLabelValues(call).Observe(d.Seconds())
}
