package logger

import (
	"log/slog"
	"strings"
)

// Value prefixes of credentials that must never reach a log line.
var sensitiveValuePrefixes = []string{
	"tgat_", // access token
	"tgrt_", // refresh token
	"tgak_", // developer API key
	"tgcs_", // developer client secret
}

// Values with these prefixes are fully redacted.
var opaqueValuePrefixes = []string{
	"Bearer ",
	"$argon2id$",
}

// Sensitive key patterns that should be redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"apikey",
	"api-key",
	"authorization",
	"pepper",
	"credential",
}

// redactedValue is the placeholder for redacted sensitive data.
const redactedValue = "***REDACTED***"

// redactSensitive masks credential-shaped values and values of
// sensitive-looking keys.
func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		v := a.Value.String()
		if v == "" {
			return a
		}
		if masked, ok := maskKnown(v); ok {
			return slog.String(a.Key, masked)
		}
		if IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

func maskKnown(v string) (string, bool) {
	for _, prefix := range sensitiveValuePrefixes {
		if strings.HasPrefix(v, prefix) {
			return maskValue(v, prefix), true
		}
	}
	for _, prefix := range opaqueValuePrefixes {
		if strings.HasPrefix(v, prefix) {
			return redactedValue, true
		}
	}
	return "", false
}

// maskValue keeps the prefix and last 3 characters.
func maskValue(value, prefix string) string {
	body := value[len(prefix):]
	if len(body) <= 6 {
		return prefix + "***"
	}
	return prefix + "..." + body[len(body)-3:]
}

// RedactString manually redacts a string value.
func RedactString(value string) string {
	if masked, ok := maskKnown(value); ok {
		return masked
	}
	return value
}

// IsSensitiveKey checks if a key name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(k, pattern) {
			return true
		}
	}
	return false
}
