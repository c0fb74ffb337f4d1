package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr        = "127.0.0.1:5080"
	DefaultGatewayAddr     = "127.0.0.1:8080"
	DefaultRequestTimeout  = 5 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultBackend    = "memory"
	DefaultDataDir    = "/var/lib/tokgate-server/data"
	DefaultGCInterval = 10 * time.Minute

	DefaultAccessTTL     = 15 * time.Minute
	DefaultRefreshTTL    = 7 * 24 * time.Hour
	DefaultRetention     = 30 * 24 * time.Hour
	DefaultSweepInterval = time.Minute

	DefaultWindow             = time.Minute
	DefaultTouchQueueSize     = 4096
	DefaultTouchFlushInterval = time.Second

	DefaultThrottlePerMinute = 30
	DefaultThrottleBurst     = 10

	DefaultAuthCoreURL      = "http://127.0.0.1:5080"
	DefaultAdmissionTimeout = 3 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// DefaultAllowList is forwarded without an API key.
var DefaultAllowList = []string{"/api/auth/**", "/health", "/metrics"}

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:            DefaultHTTPAddr,
				RequestTimeout:  DefaultRequestTimeout,
				ShutdownTimeout: DefaultShutdownTimeout,
			},
		},
		Storage: StorageSection{
			Backend: DefaultBackend,
			Badger: BadgerConfig{
				DataDir:    DefaultDataDir,
				GCInterval: DefaultGCInterval,
			},
		},
		Token: TokenSection{
			AccessTTL:  DefaultAccessTTL,
			RefreshTTL: DefaultRefreshTTL,
		},
		Session: SessionSection{
			Retention:     DefaultRetention,
			SweepInterval: DefaultSweepInterval,
		},
		Developer: DeveloperSection{
			Window:             DefaultWindow,
			TouchQueueSize:     DefaultTouchQueueSize,
			TouchFlushInterval: DefaultTouchFlushInterval,
		},
		Security: SecuritySection{
			TrustedProxies: []string{"127.0.0.1/32", "::1/128"},
			Throttle: ThrottleConfig{
				PerMinute: DefaultThrottlePerMinute,
				Burst:     DefaultThrottleBurst,
			},
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// DefaultGateway returns the default gateway configuration. The auth core is
// routed at /api/auth.
func DefaultGateway() *GatewayConfig {
	return &GatewayConfig{
		Gateway: GatewaySection{
			HTTP: HTTPConfig{
				Addr:            DefaultGatewayAddr,
				RequestTimeout:  30 * time.Second,
				ShutdownTimeout: DefaultShutdownTimeout,
			},
			AuthCore: AuthCoreConfig{URL: DefaultAuthCoreURL},
			Admission: AdmissionConfig{
				Timeout: DefaultAdmissionTimeout,
			},
			AllowList: append([]string(nil), DefaultAllowList...),
			Routes: []RouteConfig{
				{Prefix: "/api/auth", Upstream: DefaultAuthCoreURL},
			},
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
