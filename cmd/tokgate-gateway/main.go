package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/yndnr/tokgate/internal/gateway"
	"github.com/yndnr/tokgate/internal/infra/buildinfo"
	"github.com/yndnr/tokgate/internal/infra/confloader"
	"github.com/yndnr/tokgate/internal/infra/shutdown"
	"github.com/yndnr/tokgate/internal/infra/tlsroots"
	"github.com/yndnr/tokgate/internal/server/config"
	"github.com/yndnr/tokgate/internal/server/httpserver"
	"github.com/yndnr/tokgate/internal/telemetry/logger"
	"github.com/yndnr/tokgate/internal/telemetry/metric"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		addr        = flag.String("addr", "", "Listen address, overriding the configuration")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("tokgate-gateway %s\n", buildinfo.String())
		return nil
	}

	loader, cfg, err := loadConfig(*configFile, *addr)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)
	slogLogger := log.Slog()

	log.Info("starting tokgate-gateway",
		"version", buildinfo.Version,
		"commit", buildinfo.Get().Commit,
		"config", *configFile)
	log.Debug("effective configuration", "config", config.SanitizeGateway(cfg))

	gin.SetMode(gin.ReleaseMode)

	g := &cfg.Gateway
	authTransport, err := transport(g.AuthCore.CAFile)
	if err != nil {
		return fmt.Errorf("auth core tls: %w", err)
	}
	upstreamTransport, err := transport(g.UpstreamCAFile)
	if err != nil {
		return fmt.Errorf("upstream tls: %w", err)
	}
	client, err := gateway.NewAuthCoreClient(g.AuthCore.URL, g.Admission.Timeout,
		gateway.WithHTTPClient(&http.Client{Timeout: g.Admission.Timeout, Transport: authTransport}),
		gateway.WithInternalToken(g.AuthCore.InternalToken))
	if err != nil {
		return fmt.Errorf("init auth core client: %w", err)
	}

	routes := make([]gateway.Route, 0, len(g.Routes))
	for _, r := range g.Routes {
		routes = append(routes, gateway.Route{Prefix: r.Prefix, Upstream: r.Upstream, StripPrefix: r.StripPrefix})
	}

	gw, err := gateway.New(gateway.Config{
		AllowList:        g.AllowList,
		Routes:           routes,
		Admitter:         client,
		Verifier:         client,
		AdmissionTimeout: g.Admission.Timeout,
		Transport:        upstreamTransport,
		Metrics:          metric.NewRegistry(),
		Logger:           slogLogger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpServer := httpserver.New(g.HTTP.Addr, gw.Handler())
	shutdownHandler := shutdown.NewHandler(g.HTTP.ShutdownTimeout, slogLogger)
	shutdownHandler.OnShutdown("http server", httpServer.Shutdown)

	var serverTLS *tls.Config
	if g.HTTP.TLSCertFile != "" {
		if serverTLS, err = watchCert(ctx, g.HTTP, slogLogger); err != nil {
			return err
		}
	}

	go func() {
		log.Info("gateway listening", "addr", g.HTTP.Addr,
			"auth_core", g.AuthCore.URL, "routes", len(routes), "tls", serverTLS != nil)
		var err error
		if serverTLS != nil {
			err = httpServer.ListenAndServeTLS(serverTLS)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil {
			log.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	if loader.FilePath() != "" {
		if err := watchConfig(ctx, loader, gw, slogLogger); err != nil {
			log.Warn("config watch disabled", "error", err)
		}
	}

	if err := shutdownHandler.WaitContext(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	log.Info("gateway stopped gracefully")
	return nil
}

func loadConfig(configFile, addr string) (*confloader.Loader, *config.GatewayConfig, error) {
	cfg := config.DefaultGateway()

	var opts []confloader.Option
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	if addr != "" {
		opts = append(opts, confloader.WithOverrides(map[string]any{"gateway.http.addr": addr}))
	}
	loader := confloader.NewLoader(opts...)
	if err := loader.Load(cfg); err != nil {
		return nil, nil, err
	}
	if err := config.VerifyGateway(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return loader, cfg, nil
}

// watchConfig re-reads the file on change and applies the allow-list and
// log level. A file that fails verification is ignored.
func watchConfig(ctx context.Context, loader *confloader.Loader, gw *gateway.Gateway, log *slog.Logger) error {
	w, err := confloader.NewWatcher(loader.FilePath(), confloader.WithWatcherLogger(log))
	if err != nil {
		return err
	}
	w.OnChange(func(path string) {
		next := config.DefaultGateway()
		if err := loader.Reload(next); err != nil {
			log.Warn("config reload failed", "path", path, "error", err)
			return
		}
		if err := config.VerifyGateway(next); err != nil {
			log.Warn("config reload rejected", "path", path, "error", err)
			return
		}
		gw.SetAllowList(next.Gateway.AllowList)
		if next.Log.Level != logger.GetLevel() {
			logger.SetLevel(next.Log.Level)
			log.Info("log level changed", "level", next.Log.Level)
		}
	})
	go w.Run(ctx)
	return nil
}

// transport clones the default transport, trusting caFile when set.
func transport(caFile string) (*http.Transport, error) {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if caFile == "" {
		return t, nil
	}
	tlsConfig, err := tlsroots.ClientConfig(caFile)
	if err != nil {
		return nil, err
	}
	t.TLSClientConfig = tlsConfig
	return t, nil
}

// watchCert loads the listener key pair and reloads it on change until ctx
// is done.
func watchCert(ctx context.Context, cfg config.HTTPConfig, log *slog.Logger) (*tls.Config, error) {
	w, err := tlsroots.NewCertWatcher(cfg.TLSCertFile, cfg.TLSKeyFile, tlsroots.WithLogger(log))
	if err != nil {
		return nil, err
	}
	go func() {
		if err := w.Run(ctx); err != nil {
			log.Warn("certificate watch disabled", "error", err)
		}
	}()
	return w.ServerConfig(), nil
}
