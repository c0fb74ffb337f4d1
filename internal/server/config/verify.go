package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/yndnr/tokgate/internal/telemetry/logger"
)

// MinTokenPepperLength is the minimum length of security.token_pepper.
const MinTokenPepperLength = 16

// Verify validates the server configuration. All violations are reported.
func Verify(cfg *ServerConfig) error {
	return errors.Join(
		verifyHTTP("server.http", &cfg.Server.HTTP),
		verifyStorage(&cfg.Storage),
		verifyLifetimes(cfg),
		verifySecurity(&cfg.Security),
		verifyLog(&cfg.Log),
	)
}

// VerifyGateway validates the gateway configuration.
func VerifyGateway(cfg *GatewayConfig) error {
	g := &cfg.Gateway
	errs := []error{verifyHTTP("gateway.http", &g.HTTP), verifyLog(&cfg.Log)}

	if _, err := parseBaseURL(g.AuthCore.URL); err != nil {
		errs = append(errs, fmt.Errorf("gateway.authcore.url: %w", err))
	}
	for name, f := range map[string]string{
		"gateway.authcore.ca_file":  g.AuthCore.CAFile,
		"gateway.upstream_ca_file": g.UpstreamCAFile,
	} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if g.Admission.Timeout <= 0 {
		errs = append(errs, errors.New("gateway.admission.timeout must be positive"))
	}
	for _, p := range g.AllowList {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("gateway.allow_list: pattern %q must start with /", p))
		}
	}
	if len(g.Routes) == 0 {
		errs = append(errs, errors.New("gateway.routes must not be empty"))
	}
	seen := make(map[string]bool, len(g.Routes))
	for i, r := range g.Routes {
		if !strings.HasPrefix(r.Prefix, "/") {
			errs = append(errs, fmt.Errorf("gateway.routes[%d].prefix %q must start with /", i, r.Prefix))
		}
		if seen[r.Prefix] {
			errs = append(errs, fmt.Errorf("gateway.routes[%d].prefix %q is duplicated", i, r.Prefix))
		}
		seen[r.Prefix] = true
		if _, err := parseBaseURL(r.Upstream); err != nil {
			errs = append(errs, fmt.Errorf("gateway.routes[%d].upstream: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func verifyHTTP(prefix string, cfg *HTTPConfig) error {
	var errs []error
	if cfg.Addr == "" {
		errs = append(errs, fmt.Errorf("%s.addr is required", prefix))
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		errs = append(errs, fmt.Errorf("%s.tls_cert_file and tls_key_file must be set together", prefix))
	}
	for _, f := range []string{cfg.TLSCertFile, cfg.TLSKeyFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
		}
	}
	if cfg.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s.request_timeout must be positive", prefix))
	}
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s.shutdown_timeout must be positive", prefix))
	}
	return errors.Join(errs...)
}

func verifyStorage(cfg *StorageSection) error {
	switch cfg.Backend {
	case "memory":
		return nil
	case "badger":
		var errs []error
		if cfg.Badger.DataDir == "" && !cfg.Badger.InMemory {
			errs = append(errs, errors.New("storage.badger.data_dir is required"))
		}
		if _, err := cfg.Badger.EncryptionKeyBytes(); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	case "postgres":
		if cfg.Postgres.URL == "" {
			return errors.New("storage.postgres.url is required")
		}
		if cfg.Postgres.MinConns < 0 || (cfg.Postgres.MaxConns > 0 && cfg.Postgres.MinConns > cfg.Postgres.MaxConns) {
			return errors.New("storage.postgres.min_conns must be between 0 and max_conns")
		}
		return nil
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, badger, postgres", cfg.Backend)
	}
}

func verifyLifetimes(cfg *ServerConfig) error {
	var errs []error
	if cfg.Token.AccessTTL <= 0 {
		errs = append(errs, errors.New("token.access_ttl must be positive"))
	}
	if cfg.Token.RefreshTTL <= cfg.Token.AccessTTL {
		errs = append(errs, errors.New("token.refresh_ttl must exceed token.access_ttl"))
	}
	if cfg.Session.Retention <= 0 {
		errs = append(errs, errors.New("session.retention must be positive"))
	}
	if cfg.Session.SweepInterval <= 0 {
		errs = append(errs, errors.New("session.sweep_interval must be positive"))
	}
	if cfg.Developer.Window < time.Second {
		errs = append(errs, errors.New("developer.window must be at least 1s"))
	}
	if cfg.Developer.TouchQueueSize <= 0 {
		errs = append(errs, errors.New("developer.touch_queue_size must be positive"))
	}
	if cfg.Developer.TouchFlushInterval <= 0 {
		errs = append(errs, errors.New("developer.touch_flush_interval must be positive"))
	}
	return errors.Join(errs...)
}

func verifySecurity(cfg *SecuritySection) error {
	var errs []error
	if len(cfg.TokenPepper) < MinTokenPepperLength {
		errs = append(errs, fmt.Errorf("security.token_pepper must be at least %d bytes", MinTokenPepperLength))
	}
	if cfg.AdminToken != "" && len(cfg.AdminToken) < MinTokenPepperLength {
		errs = append(errs, fmt.Errorf("security.admin_token must be at least %d bytes", MinTokenPepperLength))
	}
	if cfg.Throttle.PerMinute <= 0 || cfg.Throttle.Burst <= 0 {
		errs = append(errs, errors.New("security.throttle.per_minute and burst must be positive"))
	}
	for _, p := range cfg.TrustedProxies {
		if !validProxy(p) {
			errs = append(errs, fmt.Errorf("security.trusted_proxies: %q is not an address or CIDR", p))
		}
	}
	return errors.Join(errs...)
}

func validProxy(s string) bool {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		_, err := netip.ParsePrefix(s)
		return err == nil
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}

func verifyLog(cfg *LogSection) error {
	if !logger.ValidLevel(cfg.Level) {
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Level)
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text":
		return nil
	}
	return fmt.Errorf("log.format %q is not one of json, text", cfg.Format)
}

// EncryptionKeyBytes decodes the hex encryption key. An empty key disables
// encryption at rest.
func (b BadgerConfig) EncryptionKeyBytes() ([]byte, error) {
	if b.EncryptionKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(b.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("storage.badger.encryption_key: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	}
	return nil, fmt.Errorf("storage.badger.encryption_key must decode to 16, 24 or 32 bytes, got %d", len(key))
}

func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%q must be an http or https URL", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%q has no host", raw)
	}
	return u, nil
}
