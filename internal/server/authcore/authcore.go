// Package authcore assembles the tokgate auth core: services over a storage
// backend, the background workers they need, and the HTTP router.
package authcore

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/yndnr/tokgate/internal/core/service"
	"github.com/yndnr/tokgate/internal/ratelimit"
	"github.com/yndnr/tokgate/internal/server/httpserver"
	"github.com/yndnr/tokgate/internal/server/httpserver/handler"
	"github.com/yndnr/tokgate/internal/storage"
	"github.com/yndnr/tokgate/internal/telemetry/metric"
	"github.com/yndnr/tokgate/pkg/token"
)

// Config configures the auth core.
type Config struct {
	// TokenPepper keys token and API key hashes. At least 16 bytes.
	TokenPepper []byte

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Window is the developer rate limit window.
	Window             time.Duration
	TouchQueueSize     int
	TouchFlushInterval time.Duration

	SweepInterval time.Duration
	Retention     time.Duration

	AdminToken        string
	InternalToken     string
	RequestTimeout    time.Duration
	ThrottlePerMinute int
	ThrottleBurst     int
	// TrustedProxies lists the CIDRs whose X-Forwarded-For is believed.
	TrustedProxies []string

	// Now overrides the clock of every service. Nil uses time.Now.
	Now func() time.Time
}

// Core is a wired auth core.
type Core struct {
	Tokens     *service.TokenService
	Revocation *service.RevocationService
	Developers *service.DeveloperKeyService
	Identity   *service.IdentityService

	limiter  *ratelimit.Limiter
	recorder *service.LastUsedRecorder
	throttle *httpserver.Throttle
	handler  http.Handler

	cfg    Config
	log    *slog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires the services over backend. metrics may be nil.
func New(cfg Config, backend *storage.Backend, log *slog.Logger, metrics *metric.Registry) (*Core, error) {
	if log == nil {
		log = slog.Default()
	}
	hasher, err := token.NewHasher(cfg.TokenPepper)
	if err != nil {
		return nil, err
	}
	trusted, err := handler.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	opts := []service.Option{service.WithLogger(log), service.WithMetrics(metrics)}
	limiterOpts := []ratelimit.Option{ratelimit.WithMetrics(metrics)}
	if cfg.Now != nil {
		opts = append(opts, service.WithClock(cfg.Now))
		limiterOpts = append(limiterOpts, ratelimit.WithClock(cfg.Now))
	}

	tokenCfg := service.DefaultTokenServiceConfig()
	if cfg.AccessTTL > 0 {
		tokenCfg.AccessTTL = cfg.AccessTTL
	}
	if cfg.RefreshTTL > 0 {
		tokenCfg.RefreshTTL = cfg.RefreshTTL
	}

	c := &Core{cfg: cfg, log: log}
	c.limiter = ratelimit.New(limiterOpts...)
	c.recorder = service.NewLastUsedRecorder(backend.Developers, cfg.TouchQueueSize, cfg.TouchFlushInterval, opts...)
	c.Tokens = service.NewTokenService(backend.Sessions, hasher, tokenCfg, opts...)
	c.Revocation = service.NewRevocationService(c.Tokens)
	c.Developers = service.NewDeveloperKeyService(backend.Developers, hasher, c.limiter, c.recorder,
		service.DeveloperKeyServiceConfig{Window: cfg.Window}, opts...)
	c.Identity = service.NewIdentityService(backend.Users, c.Tokens, opts...)
	c.throttle = httpserver.NewThrottle(cfg.ThrottlePerMinute, cfg.ThrottleBurst)

	var metricsHandler http.Handler
	if metrics != nil {
		metricsHandler = metrics.Handler()
	}
	c.handler = httpserver.NewRouter(&httpserver.RouterConfig{
		Handler: handler.Config{
			Tokens:     c.Tokens,
			Revocation: c.Revocation,
			Developers: c.Developers,
			Identity:   c.Identity,
			Metrics:    metricsHandler,
			Logger:     log,
			Now:        cfg.Now,
		},
		AdminToken:     cfg.AdminToken,
		InternalToken:  cfg.InternalToken,
		RequestTimeout: cfg.RequestTimeout,
		Throttle:       c.throttle,
		TrustedProxies: trusted,
		Logger:         log,
	})
	return c, nil
}

// Handler returns the auth-core HTTP handler.
func (c *Core) Handler() http.Handler {
	return c.handler
}

// Start launches the background workers: limiter janitor, last-used flusher,
// session sweeper and throttle sweeper.
func (c *Core) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.limiter.Start(c.Developers.Window())
	c.recorder.Start()

	if c.cfg.SweepInterval > 0 && c.cfg.Retention > 0 {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.Tokens.RunSweeper(ctx, c.cfg.SweepInterval, c.cfg.Retention)
		}()
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.throttle.Run(ctx, time.Minute)
	}()
	c.log.Info("auth core workers started",
		"sweep_interval", c.cfg.SweepInterval,
		"retention", c.cfg.Retention,
		"window", c.Developers.Window())
}

// Stop halts the workers and flushes pending last-used touches.
func (c *Core) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.limiter.Stop()
	c.recorder.Stop()
}
