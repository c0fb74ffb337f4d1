package config

import "time"

// ServerConfig is the root configuration for tokgate-server.
type ServerConfig struct {
	Server    ServerSection    `koanf:"server"`
	Storage   StorageSection   `koanf:"storage"`
	Token     TokenSection     `koanf:"token"`
	Session   SessionSection   `koanf:"session"`
	Developer DeveloperSection `koanf:"developer"`
	Security  SecuritySection  `koanf:"security"`
	Log       LogSection       `koanf:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP HTTPConfig `koanf:"http"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	TLSCertFile     string        `koanf:"tls_cert_file"`
	TLSKeyFile      string        `koanf:"tls_key_file"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// StorageSection selects and configures the persistence backend.
type StorageSection struct {
	// Backend is memory, badger or postgres.
	Backend  string         `koanf:"backend"`
	Badger   BadgerConfig   `koanf:"badger"`
	Postgres PostgresConfig `koanf:"postgres"`
}

// BadgerConfig configures the embedded badger backend.
type BadgerConfig struct {
	DataDir    string `koanf:"data_dir"`
	InMemory   bool   `koanf:"in_memory"`
	SyncWrites bool   `koanf:"sync_writes"`

	// EncryptionKey is hex encoded: 32, 48 or 64 hex digits.
	EncryptionKey string        `koanf:"encryption_key"`
	GCInterval    time.Duration `koanf:"gc_interval"`
}

// PostgresConfig configures the postgres backend.
type PostgresConfig struct {
	URL      string `koanf:"url"`
	MaxConns int32  `koanf:"max_conns"`
	MinConns int32  `koanf:"min_conns"`
}

// TokenSection configures token lifetimes.
type TokenSection struct {
	AccessTTL  time.Duration `koanf:"access_ttl"`
	RefreshTTL time.Duration `koanf:"refresh_ttl"`
}

// SessionSection configures the expiry and retention sweep.
type SessionSection struct {
	Retention     time.Duration `koanf:"retention"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// DeveloperSection configures API key admission.
type DeveloperSection struct {
	// Window is the rate limit window. Limits are requests per window.
	Window             time.Duration `koanf:"window"`
	TouchQueueSize     int           `koanf:"touch_queue_size"`
	TouchFlushInterval time.Duration `koanf:"touch_flush_interval"`
}

// SecuritySection configures secrets and endpoint guards.
type SecuritySection struct {
	// TokenPepper keys the HMAC of every stored token and API key. Changing
	// it invalidates all sessions and keys.
	TokenPepper   string `koanf:"token_pepper"`
	AdminToken    string `koanf:"admin_token"`
	InternalToken string `koanf:"internal_token"`

	// TrustedProxies are CIDRs (or addresses) of proxies, normally the
	// gateway, allowed to report the client address in X-Forwarded-For.
	TrustedProxies []string `koanf:"trusted_proxies"`

	// Throttle bounds login, register and rotate-key attempts per client IP.
	Throttle ThrottleConfig `koanf:"throttle"`
}

// ThrottleConfig configures the per-IP credential throttle.
type ThrottleConfig struct {
	PerMinute int `koanf:"per_minute"`
	Burst     int `koanf:"burst"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
