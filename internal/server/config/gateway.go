package config

import "time"

// GatewayConfig is the root configuration for tokgate-gateway.
type GatewayConfig struct {
	Gateway GatewaySection `koanf:"gateway"`
	Log     LogSection     `koanf:"log"`
}

// GatewaySection configures the edge proxy.
type GatewaySection struct {
	HTTP HTTPConfig `koanf:"http"`

	AuthCore  AuthCoreConfig  `koanf:"authcore"`
	Admission AdmissionConfig `koanf:"admission"`

	// AllowList holds path patterns forwarded without an API key. A trailing
	// "/**" matches the prefix; anything else matches exactly.
	AllowList []string `koanf:"allow_list"`

	Routes []RouteConfig `koanf:"routes"`

	// UpstreamCAFile is trusted, with the system roots, for https upstreams.
	UpstreamCAFile string `koanf:"upstream_ca_file"`
}

// AuthCoreConfig locates the auth core.
type AuthCoreConfig struct {
	URL string `koanf:"url"`
	// InternalToken is sent as X-Internal-Token on validation calls.
	InternalToken string `koanf:"internal_token"`
	// CAFile is trusted, with the system roots, when URL is https.
	CAFile string `koanf:"ca_file"`
}

// AdmissionConfig bounds the remote admission calls.
type AdmissionConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// RouteConfig maps a path prefix to an upstream base URL.
type RouteConfig struct {
	Prefix      string `koanf:"prefix"`
	Upstream    string `koanf:"upstream"`
	StripPrefix bool   `koanf:"strip_prefix"`
}
