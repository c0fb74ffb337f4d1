package config

import (
	"net/url"
	"strings"
)

// Sanitize returns a copy of the config with secrets masked, for logging.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg
	sanitized.Security.TokenPepper = maskSecret(sanitized.Security.TokenPepper)
	sanitized.Security.AdminToken = maskSecret(sanitized.Security.AdminToken)
	sanitized.Security.InternalToken = maskSecret(sanitized.Security.InternalToken)
	sanitized.Storage.Badger.EncryptionKey = maskSecret(sanitized.Storage.Badger.EncryptionKey)
	sanitized.Storage.Postgres.URL = maskURL(sanitized.Storage.Postgres.URL)
	return &sanitized
}

// SanitizeGateway returns a copy of the gateway config with secrets masked.
func SanitizeGateway(cfg *GatewayConfig) *GatewayConfig {
	sanitized := *cfg
	sanitized.Gateway.AuthCore.InternalToken = maskSecret(sanitized.Gateway.AuthCore.InternalToken)
	return &sanitized
}

// maskSecret masks a secret value for safe logging. Empty stays empty.
func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

// maskURL hides the password of a connection URL.
func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
