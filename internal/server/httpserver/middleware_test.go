package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/tokgate/internal/server/httpstatus"
	"github.com/yndnr/tokgate/internal/telemetry/logger"
)

var discard = logger.Discard().Slog()

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) httpstatus.Envelope {
	t.Helper()
	var env httpstatus.Envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(discard)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("generates request ID when not provided", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

		id := rec.Header().Get(HeaderRequestID)
		if !strings.HasPrefix(id, "req-") {
			t.Errorf("expected request ID to start with 'req-', got %q", id)
		}
		if seen != id {
			t.Errorf("context request ID = %q, header = %q", seen, id)
		}
	})

	t.Run("preserves existing request ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(HeaderRequestID, "existing-id-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get(HeaderRequestID); got != "existing-id-123" {
			t.Errorf("expected 'existing-id-123', got %s", got)
		}
	})

	t.Run("replaces oversized request ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(HeaderRequestID, strings.Repeat("x", maxRequestIDLength+1))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get(HeaderRequestID); !strings.HasPrefix(got, "req-") {
			t.Errorf("oversized request ID kept: %q", got)
		}
	})
}

func TestChain(t *testing.T) {
	var order []int
	mw := func(n int) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, n)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		order = append(order, 4)
		w.WriteHeader(http.StatusOK)
	}), mw(1), mw(2), mw(3))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	want := []int{1, 2, 3, 4}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRecover(t *testing.T) {
	t.Run("recovers from panic", func(t *testing.T) {
		h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("test panic")
		}), RequestID(discard), Recover(discard))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
		env := decodeEnvelope(t, rec)
		if env.Code != "Internal" || env.RequestID == "" {
			t.Errorf("envelope = %+v", env)
		}
		if strings.Contains(env.Message, "test panic") {
			t.Error("panic value leaked to client")
		}
	})

	t.Run("passes through normal requests", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Recover(discard)(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})
}

func TestAdminAuth(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		header     string
		wantStatus int
		wantCode   string
	}{
		{"disabled", "", "anything", http.StatusNotFound, "NotFound"},
		{"missing header", "admin-token-0123456789", "", http.StatusForbidden, "Unauthorized"},
		{"wrong token", "admin-token-0123456789", "admin-token-012345678X", http.StatusForbidden, "Unauthorized"},
		{"valid", "admin-token-0123456789", "admin-token-0123456789", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/developers", nil)
			if tt.header != "" {
				req.Header.Set(HeaderAdminToken, tt.header)
			}
			rec := httptest.NewRecorder()
			AdminAuth(tt.configured)(okHandler()).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get(httpstatus.HeaderErrorCode); got != tt.wantCode {
				t.Errorf("X-Error-Code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestInternalAuth(t *testing.T) {
	t.Run("open when unset", func(t *testing.T) {
		rec := httptest.NewRecorder()
		InternalAuth("")(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("rejects wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(HeaderInternalToken, "nope")
		rec := httptest.NewRecorder()
		InternalAuth("internal-secret")(okHandler()).ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("accepts configured token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(HeaderInternalToken, "internal-secret")
		rec := httptest.NewRecorder()
		InternalAuth("internal-secret")(okHandler()).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})
}

func TestTimeout(t *testing.T) {
	var deadline time.Time
	var ok bool
	h := Timeout(50 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))
	start := time.Now()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !ok {
		t.Fatal("request context has no deadline")
	}
	if d := deadline.Sub(start); d <= 0 || d > time.Second {
		t.Errorf("deadline in %v, want about 50ms", d)
	}

	h = Timeout(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background()))
	if ok {
		t.Error("zero timeout should not set a deadline")
	}
}

func TestAudit(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusUnauthorized, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}
	for _, tt := range tests {
		buf.Reset()
		h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
		}), RequestID(discard), Audit(log))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/x", nil))

		var line map[string]any
		if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
			t.Fatalf("audit line: %v (%q)", err, buf.String())
		}
		if line["level"] != tt.level {
			t.Errorf("status %d logged at %v, want %s", tt.status, line["level"], tt.level)
		}
		if line["status"] != float64(tt.status) || line["path"] != "/api/x" || line["request_id"] == "" {
			t.Errorf("audit line = %v", line)
		}
	}
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	w.WriteHeader(http.StatusTeapot)
	w.WriteHeader(http.StatusOK)
	if w.statusCode != http.StatusTeapot {
		t.Errorf("statusCode = %d, want 418", w.statusCode)
	}
}
