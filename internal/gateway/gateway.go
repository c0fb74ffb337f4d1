package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yndnr/tokgate/internal/core/domain"
	"github.com/yndnr/tokgate/internal/server/httpserver"
	"github.com/yndnr/tokgate/internal/server/httpstatus"
	"github.com/yndnr/tokgate/internal/telemetry/logger"
	"github.com/yndnr/tokgate/internal/telemetry/metric"
)

// maxRequestIDLength bounds a client-supplied X-Request-ID.
const maxRequestIDLength = 128

// Config wires a Gateway.
type Config struct {
	AllowList        []string
	Routes           []Route
	Admitter         Admitter
	Verifier         Verifier
	AdmissionTimeout time.Duration

	// Transport carries proxied requests. Nil uses http.DefaultTransport.
	Transport http.RoundTripper

	// Metrics is served at /metrics. Nil disables the endpoint.
	Metrics *metric.Registry
	Logger  *slog.Logger
}

// Gateway is the edge proxy.
type Gateway struct {
	engine    *gin.Engine
	allowList *AllowList
	routes    *RouteTable
	log       *slog.Logger
}

// New builds the gin engine: request ids, recovery and access logging, the
// local /health and /metrics endpoints, then the auth filter in front of the
// route table for every other path.
func New(cfg Config) (*Gateway, error) {
	if cfg.Admitter == nil {
		return nil, errors.New("gateway: admitter is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard().Slog()
	}
	routes, err := NewRouteTable(cfg.Routes, cfg.Transport, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}

	g := &Gateway{
		allowList: NewAllowList(cfg.AllowList),
		routes:    routes,
		log:       cfg.Logger,
	}

	engine := gin.New()
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false
	engine.Use(requestID(cfg.Logger), recovery(cfg.Logger), accessLog(cfg.Logger))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UnixMilli()})
	})
	if cfg.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	engine.NoRoute(AuthFilter(FilterConfig{
		AllowList: g.allowList,
		Admitter:  cfg.Admitter,
		Verifier:  cfg.Verifier,
		Timeout:   cfg.AdmissionTimeout,
		Metrics:   cfg.Metrics,
		Logger:    cfg.Logger,
	}), gin.WrapH(routes))

	g.engine = engine
	return g, nil
}

// Handler returns the gateway as an http.Handler.
func (g *Gateway) Handler() http.Handler {
	return g.engine
}

// SetAllowList swaps the allow-list without interrupting traffic.
func (g *Gateway) SetAllowList(patterns []string) {
	g.allowList.Set(patterns)
	g.log.Info("allow list updated", "patterns", g.allowList.Patterns())
}

// AllowList returns the live allow-list.
func (g *Gateway) AllowList() *AllowList {
	return g.allowList
}

// requestID propagates or assigns X-Request-ID. The id is set on the
// forwarded request too, so upstreams log the same value.
func requestID(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(httpserver.HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		c.Request.Header.Set(httpserver.HeaderRequestID, id)
		c.Header(httpserver.HeaderRequestID, id)

		c.Request = c.Request.WithContext(logger.WithRequest(c.Request.Context(), base, id))
		c.Next()
	}
}

func recovery(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			rid := logger.RequestIDFromContext(c.Request.Context())
			log.Error("panic recovered",
				"request_id", rid,
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()))
			if !c.Writer.Written() {
				httpstatus.Write(c.Writer, domain.ErrInternal, rid)
			}
			c.Abort()
		}()
		c.Next()
	}
}

func accessLog(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"request_id", logger.RequestIDFromContext(c.Request.Context()),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if code := c.Writer.Header().Get(httpstatus.HeaderErrorCode); code != "" {
			attrs = append(attrs, "error_code", code)
		}
		switch {
		case status >= 500:
			log.Error("gateway request", attrs...)
		case status >= 400:
			log.Warn("gateway request", attrs...)
		default:
			log.Info("gateway request", attrs...)
		}
	}
}
