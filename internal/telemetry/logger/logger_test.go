package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func newBufferLogger(t *testing.T, level string) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := New(Config{Level: level, Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return l, &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	line := strings.TrimSpace(buf.String())
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("invalid json log line %q: %v", line, err)
	}
	return m
}

func TestNew_Formats(t *testing.T) {
	for _, format := range []string{"json", "text", "console", ""} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			l, err := New(Config{Level: "info", Format: format, Output: &buf})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			l.Info("hello", "k", "v")
			if !strings.Contains(buf.String(), "hello") {
				t.Errorf("output %q missing message", buf.String())
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	l, buf := newBufferLogger(t, "info")
	defer SetLevel("info")

	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info: %q", buf.String())
	}

	SetLevel("debug")
	if GetLevel() != "debug" {
		t.Errorf("GetLevel() = %q", GetLevel())
	}
	l.Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Error("debug should be emitted after SetLevel(debug)")
	}
}

func TestValidLevel(t *testing.T) {
	for _, lvl := range []string{"debug", "INFO", "warn", "warning", "error"} {
		if !ValidLevel(lvl) {
			t.Errorf("ValidLevel(%q) = false", lvl)
		}
	}
	if ValidLevel("verbose") {
		t.Error("ValidLevel(verbose) = true")
	}
}

func TestLogger_Redaction(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"refresh token value", "value", "tgrt_abcdefghijklmnop", "tgrt_...nop"},
		{"api key value", "header", "tgak_abcdefghijklmnop", "tgak_...nop"},
		{"bearer value", "hdr", "Bearer tgat_xyz", redactedValue},
		{"argon hash value", "stored", "$argon2id$v=19$m=1", redactedValue},
		{"password key", "password", "hunter22", redactedValue},
		{"api key key", "X-Api-Key", "raw", redactedValue},
		{"plain", "session_id", "tgss-01h", "tgss-01h"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := newBufferLogger(t, "info")
			l.Info("msg", tt.key, tt.value)
			m := decodeLine(t, buf)
			if got := m[tt.key]; got != tt.want {
				t.Errorf("%s = %v, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestLogger_RedactionInGroup(t *testing.T) {
	l, buf := newBufferLogger(t, "info")
	l.Slog().Info("grouped", slogGroup("auth", "refresh", "tgrt_abcdefghijklmnop"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if strings.Contains(lines[len(lines)-1], "abcdefghijklmnop") {
		t.Errorf("group value not redacted: %s", lines[len(lines)-1])
	}
}

func TestWithRequest(t *testing.T) {
	l, buf := newBufferLogger(t, "info")

	ctx := WithRequest(context.Background(), l.Slog(), "req-123")
	if got := RequestIDFromContext(ctx); got != "req-123" {
		t.Errorf("RequestIDFromContext() = %q", got)
	}

	L(ctx).Info("with request")
	if m := decodeLine(t, buf); m["request_id"] != "req-123" {
		t.Errorf("request_id = %v", m["request_id"])
	}
}

func TestL_OutsideRequest(t *testing.T) {
	ctx := context.Background()
	if RequestIDFromContext(ctx) != "" {
		t.Error("request id outside a request should be empty")
	}
	if L(ctx) != Default() {
		t.Error("L outside a request should return Default()")
	}
}

func TestNew_RejectsUnknown(t *testing.T) {
	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Error("New() accepted format xml")
	}
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Error("New() accepted level loud")
	}
}

func TestDiscard(t *testing.T) {
	Discard().Error("nothing")
}

func TestRedactString(t *testing.T) {
	if got := RedactString("tgcs_abcdefghijklmnop"); got != "tgcs_...nop" {
		t.Errorf("RedactString() = %q", got)
	}
	if got := RedactString("plain"); got != "plain" {
		t.Errorf("RedactString(plain) = %q", got)
	}
}

func slogGroup(name, key, value string) any {
	return slog.Group(name, slog.String(key, value))
}
