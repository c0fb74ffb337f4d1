package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/yndnr/tokgate/internal/infra/buildinfo"
	"github.com/yndnr/tokgate/internal/infra/confloader"
	"github.com/yndnr/tokgate/internal/infra/shutdown"
	"github.com/yndnr/tokgate/internal/infra/tlsroots"
	"github.com/yndnr/tokgate/internal/server/authcore"
	"github.com/yndnr/tokgate/internal/server/config"
	"github.com/yndnr/tokgate/internal/server/httpserver"
	"github.com/yndnr/tokgate/internal/storage"
	"github.com/yndnr/tokgate/internal/storage/badgerdb"
	"github.com/yndnr/tokgate/internal/storage/postgres"
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
		fmt.Printf("tokgate-server %s\n", buildinfo.String())
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

	log.Info("starting tokgate-server",
		"version", buildinfo.Version,
		"commit", buildinfo.Get().Commit,
		"config", *configFile)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var serverTLS *tls.Config
	if cfg.Server.HTTP.TLSCertFile != "" {
		if serverTLS, err = watchCert(ctx, cfg.Server.HTTP, slogLogger); err != nil {
			return err
		}
	}

	metrics := metric.NewRegistry()

	storageCfg, err := storageConfig(cfg)
	if err != nil {
		return err
	}
	backend, err := storage.Open(ctx, storageCfg, slogLogger, metrics.Registerer())
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage opened", "backend", backend.Name)

	core, err := authcore.New(authcore.Config{
		TokenPepper:        []byte(cfg.Security.TokenPepper),
		AccessTTL:          cfg.Token.AccessTTL,
		RefreshTTL:         cfg.Token.RefreshTTL,
		Window:             cfg.Developer.Window,
		TouchQueueSize:     cfg.Developer.TouchQueueSize,
		TouchFlushInterval: cfg.Developer.TouchFlushInterval,
		SweepInterval:      cfg.Session.SweepInterval,
		Retention:          cfg.Session.Retention,
		AdminToken:         cfg.Security.AdminToken,
		InternalToken:      cfg.Security.InternalToken,
		RequestTimeout:     cfg.Server.HTTP.RequestTimeout,
		ThrottlePerMinute:  cfg.Security.Throttle.PerMinute,
		ThrottleBurst:      cfg.Security.Throttle.Burst,
		TrustedProxies:     cfg.Security.TrustedProxies,
	}, backend, slogLogger, metrics)
	if err != nil {
		_ = backend.Close()
		return fmt.Errorf("init auth core: %w", err)
	}
	core.Start(ctx)
	if cfg.Security.AdminToken == "" {
		log.Warn("admin API disabled: security.admin_token is not set")
	}
	if cfg.Security.InternalToken == "" {
		log.Warn("internal API is unauthenticated: security.internal_token is not set; keep the auth core off public networks")
	}

	httpServer := httpserver.New(cfg.Server.HTTP.Addr, core.Handler())

	shutdownHandler := shutdown.NewHandler(cfg.Server.HTTP.ShutdownTimeout, slogLogger)
	shutdownHandler.OnShutdown("storage", func(context.Context) error {
		return backend.Close()
	})
	shutdownHandler.OnShutdown("auth core workers", func(context.Context) error {
		core.Stop()
		return nil
	})
	shutdownHandler.OnShutdown("http server", httpServer.Shutdown)

	go func() {
		log.Info("HTTP server listening", "addr", cfg.Server.HTTP.Addr, "tls", serverTLS != nil)
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
		if err := watchConfig(ctx, loader, slogLogger); err != nil {
			log.Warn("config watch disabled", "error", err)
		}
	}

	log.Info("server started, press Ctrl+C to stop")
	if err := shutdownHandler.WaitContext(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}

func loadConfig(configFile, addr string) (*confloader.Loader, *config.ServerConfig, error) {
	cfg := config.Default()

	var opts []confloader.Option
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	if addr != "" {
		opts = append(opts, confloader.WithOverrides(map[string]any{"server.http.addr": addr}))
	}
	loader := confloader.NewLoader(opts...)
	if err := loader.Load(cfg); err != nil {
		return nil, nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return loader, cfg, nil
}

func storageConfig(cfg *config.ServerConfig) (storage.Config, error) {
	key, err := cfg.Storage.Badger.EncryptionKeyBytes()
	if err != nil {
		return storage.Config{}, fmt.Errorf("storage.badger.encryption_key: %w", err)
	}
	return storage.Config{
		Backend: cfg.Storage.Backend,
		Badger: badgerdb.Config{
			Dir:           cfg.Storage.Badger.DataDir,
			InMemory:      cfg.Storage.Badger.InMemory,
			SyncWrites:    cfg.Storage.Badger.SyncWrites,
			EncryptionKey: key,
			GCInterval:    cfg.Storage.Badger.GCInterval,
		},
		Postgres: postgres.Config{
			URL:      cfg.Storage.Postgres.URL,
			MaxConns: cfg.Storage.Postgres.MaxConns,
			MinConns: cfg.Storage.Postgres.MinConns,
		},
	}, nil
}

// watchConfig applies log level changes from the config file. Other
// settings need a restart.
func watchConfig(ctx context.Context, loader *confloader.Loader, log *slog.Logger) error {
	w, err := confloader.NewWatcher(loader.FilePath(), confloader.WithWatcherLogger(log))
	if err != nil {
		return err
	}
	w.OnChange(func(path string) {
		next := config.Default()
		if err := loader.Reload(next); err != nil {
			log.Warn("config reload failed", "path", path, "error", err)
			return
		}
		if !logger.ValidLevel(next.Log.Level) {
			log.Warn("config reload: invalid log level", "level", next.Log.Level)
			return
		}
		if next.Log.Level != logger.GetLevel() {
			logger.SetLevel(next.Log.Level)
			log.Info("log level changed", "level", next.Log.Level)
		}
	})
	go w.Run(ctx)
	return nil
}

// watchCert loads the listener key pair and reloads it on change until ctx
// is done.
func watchCert(ctx context.Context, cfg config.HTTPConfig, log *slog.Logger) (*tls.Config, error) {
	w, err := tlsroots.NewCertWatcher(cfg.TLSCertFile, cfg.TLSKeyFile, tlsroots.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("load tls key pair: %w", err)
	}
	go func() {
		if err := w.Run(ctx); err != nil {
			log.Warn("certificate watch disabled", "error", err)
		}
	}()
	return w.ServerConfig(), nil
}
