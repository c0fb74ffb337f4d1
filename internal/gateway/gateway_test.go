package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yndnr/tokgate/internal/core/domain"
	"github.com/yndnr/tokgate/internal/server/httpserver"
	"github.com/yndnr/tokgate/internal/server/httpserver/handler"
	"github.com/yndnr/tokgate/internal/server/httpstatus"
	"github.com/yndnr/tokgate/internal/telemetry/logger"
	"github.com/yndnr/tokgate/internal/telemetry/metric"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAdmitter struct {
	calls atomic.Int32
	fn    func(key string) (*Admission, error)
}

func (f *fakeAdmitter) Admit(ctx context.Context, key string) (*Admission, error) {
	f.calls.Add(1)
	if f.fn == nil {
		return &Admission{Limit: "10", Remaining: "9"}, nil
	}
	return f.fn(key)
}

type fakeVerifier struct {
	calls atomic.Int32
}

func (f *fakeVerifier) Verify(ctx context.Context, tok string) (*domain.Principal, error) {
	f.calls.Add(1)
	if tok != "tgat_good" {
		return nil, domain.ErrSessionRevoked
	}
	return &domain.Principal{UserID: "tgus-42", SessionID: "tgss-1"}, nil
}

type upstreamSeen struct {
	path   string
	header http.Header
}

func newTestGateway(t *testing.T, adm Admitter, ver Verifier) (*Gateway, *atomic.Pointer[upstreamSeen], *metric.Registry) {
	t.Helper()
	var seen atomic.Pointer[upstreamSeen]
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(&upstreamSeen{path: r.URL.Path, header: r.Header.Clone()})
		_, _ = io.WriteString(w, "upstream")
	}))
	t.Cleanup(up.Close)

	reg := metric.NewRegistry()
	g, err := New(Config{
		AllowList:        []string{"/api/auth/**", "/health", "/metrics"},
		Routes:           []Route{{Prefix: "/", Upstream: up.URL}},
		Admitter:         adm,
		Verifier:         ver,
		AdmissionTimeout: time.Second,
		Metrics:          reg,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g, &seen, reg
}

// closeNotifyRecorder adds http.CloseNotifier, which gin's writer asserts
// when the reverse proxy asks for it.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyRecorder) CloseNotify() <-chan bool {
	return r.closed
}

func serve(g *Gateway, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	return serveFrom(g, "", method, path, headers)
}

// serveFrom is serve with the peer address set, "" keeping the httptest
// default.
func serveFrom(g *Gateway, remoteAddr, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := &closeNotifyRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
	g.Handler().ServeHTTP(rec, req)
	return rec.ResponseRecorder
}

func TestNew_RequiresAdmitter(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New without admitter succeeded")
	}
}

func TestGateway_MissingKeyNeverCallsAdmitter(t *testing.T) {
	adm := &fakeAdmitter{}
	g, seen, _ := newTestGateway(t, adm, nil)

	for _, key := range []string{"", "   "} {
		rec := serve(g, http.MethodGet, "/api/catalog/anime", map[string]string{handler.HeaderAPIKey: key})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
		var env httpstatus.Envelope
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatal(err)
		}
		if env.Code != domain.KindInvalidAPIKey || env.RequestID == "" {
			t.Fatalf("envelope = %+v", env)
		}
		if rec.Header().Get(httpstatus.HeaderErrorCode) != "InvalidApiKey" {
			t.Errorf("X-Error-Code = %q", rec.Header().Get(httpstatus.HeaderErrorCode))
		}
	}
	if n := adm.calls.Load(); n != 0 {
		t.Fatalf("admitter called %d times", n)
	}
	if seen.Load() != nil {
		t.Fatal("rejected request reached upstream")
	}
}

func TestGateway_AllowListedSkipsAdmission(t *testing.T) {
	adm := &fakeAdmitter{}
	g, seen, _ := newTestGateway(t, adm, nil)

	rec := serve(g, http.MethodPost, "/api/auth/login", map[string]string{HeaderUserID: "tgus-forged"})
	if rec.Code != http.StatusOK || rec.Body.String() != "upstream" {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	if adm.calls.Load() != 0 {
		t.Fatal("allow-listed path was admitted")
	}
	s := seen.Load()
	if s.path != "/api/auth/login" || s.header.Get(HeaderUserID) != "" {
		t.Fatalf("upstream saw %+v", s)
	}
	if s.header.Get(httpserver.HeaderRequestID) == "" {
		t.Error("request id not forwarded")
	}

	// Dot segments do not escape the allow-list.
	rec = serve(g, http.MethodGet, "/api/auth/../catalog/anime", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("traversal status = %d, want 401", rec.Code)
	}
}

func TestGateway_InternalPathsNotExposed(t *testing.T) {
	adm := &fakeAdmitter{}
	g, seen, _ := newTestGateway(t, adm, nil)

	for _, p := range []string{
		"/api/auth/internal/validate-key",
		"/api/auth/internal/verify-token",
		"/api/auth/internal",
		"/api/auth/x/../internal/validate-key",
		"/api/auth/internal/",
	} {
		rec := serve(g, http.MethodPost, p, map[string]string{handler.HeaderAPIKey: "tgak_k1"})
		if rec.Code != http.StatusNotFound || rec.Header().Get(httpstatus.HeaderErrorCode) != "NotFound" {
			t.Errorf("%s: status %d, code %q", p, rec.Code, rec.Header().Get(httpstatus.HeaderErrorCode))
		}
	}
	if adm.calls.Load() != 0 || seen.Load() != nil {
		t.Fatal("internal path was admitted or proxied")
	}

	// Siblings under the allow-list still pass.
	if rec := serve(g, http.MethodPost, "/api/auth/internals", nil); rec.Code != http.StatusOK {
		t.Fatalf("sibling status = %d", rec.Code)
	}

	body := serve(g, http.MethodGet, "/metrics", nil).Body.String()
	if !strings.Contains(body, `tokgate_gateway_requests_total{outcome="rejected_internal"} 5`) {
		t.Fatalf("metrics missing internal outcome:\n%s", body)
	}
}

func TestGateway_Admission(t *testing.T) {
	tests := []struct {
		name       string
		fn         func(string) (*Admission, error)
		status     int
		code       string
		retryAfter string
	}{
		{"admitted", nil, http.StatusOK, "", ""},
		{"invalid key", func(string) (*Admission, error) { return nil, domain.ErrInvalidAPIKey }, http.StatusUnauthorized, "InvalidApiKey", ""},
		{"rate limited", func(string) (*Admission, error) {
			return &Admission{Limit: "2", Remaining: "0", RetryAfter: "17"}, domain.ErrRateLimited
		}, http.StatusTooManyRequests, "RateLimited", "17"},
		{"transport", func(string) (*Admission, error) { return nil, domain.ErrTransportFailure }, http.StatusUnauthorized, "TransportFailure", ""},
		{"unexpected error fails closed", func(string) (*Admission, error) { return nil, context.DeadlineExceeded }, http.StatusUnauthorized, "TransportFailure", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, seen, _ := newTestGateway(t, &fakeAdmitter{fn: tt.fn}, nil)
			rec := serve(g, http.MethodGet, "/api/catalog/anime", map[string]string{handler.HeaderAPIKey: "tgak_k1"})
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := rec.Header().Get(httpstatus.HeaderErrorCode); got != tt.code {
				t.Errorf("X-Error-Code = %q, want %q", got, tt.code)
			}
			if got := rec.Header().Get("Retry-After"); got != tt.retryAfter {
				t.Errorf("Retry-After = %q, want %q", got, tt.retryAfter)
			}
			if (seen.Load() != nil) != (tt.status == http.StatusOK) {
				t.Errorf("upstream reached = %v", seen.Load() != nil)
			}
		})
	}
}

func TestGateway_UserIdentity(t *testing.T) {
	ver := &fakeVerifier{}
	g, seen, _ := newTestGateway(t, &fakeAdmitter{}, ver)

	// Forged identity is stripped when there is no bearer token.
	rec := serve(g, http.MethodGet, "/api/catalog/anime", map[string]string{
		handler.HeaderAPIKey: "tgak_k1",
		HeaderUserID:         "tgus-forged",
	})
	if rec.Code != http.StatusOK || seen.Load().header.Get(HeaderUserID) != "" {
		t.Fatalf("status %d, forwarded user %q", rec.Code, seen.Load().header.Get(HeaderUserID))
	}

	rec = serve(g, http.MethodGet, "/api/catalog/favorites", map[string]string{
		handler.HeaderAPIKey: "tgak_k1",
		"Authorization":      "Bearer tgat_good",
		HeaderUserID:         "tgus-forged",
	})
	if rec.Code != http.StatusOK || seen.Load().header.Get(HeaderUserID) != "tgus-42" {
		t.Fatalf("status %d, forwarded user %q", rec.Code, seen.Load().header.Get(HeaderUserID))
	}

	rec = serve(g, http.MethodGet, "/api/catalog/favorites", map[string]string{
		handler.HeaderAPIKey: "tgak_k1",
		"Authorization":      "Bearer tgat_revoked",
	})
	if rec.Code != http.StatusUnauthorized || rec.Header().Get(httpstatus.HeaderErrorCode) != "SessionRevoked" {
		t.Fatalf("revoked token: status %d, code %q", rec.Code, rec.Header().Get(httpstatus.HeaderErrorCode))
	}
	if ver.calls.Load() != 2 {
		t.Fatalf("verifier calls = %d, want 2", ver.calls.Load())
	}
}

func TestGateway_HealthAndMetrics(t *testing.T) {
	adm := &fakeAdmitter{}
	g, seen, _ := newTestGateway(t, adm, nil)
	serve(g, http.MethodGet, "/api/catalog/anime", nil)

	if rec := serve(g, http.MethodGet, "/health", nil); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("health = %d %s", rec.Code, rec.Body.String())
	}
	rec := serve(g, http.MethodGet, "/metrics", nil)
	if !strings.Contains(rec.Body.String(), `tokgate_gateway_requests_total{outcome="rejected_missing_key"} 1`) {
		t.Fatalf("metrics missing gateway outcome:\n%s", rec.Body.String())
	}
	if seen.Load() != nil {
		t.Fatal("local endpoints were proxied")
	}
}

func TestGateway_SetAllowList(t *testing.T) {
	g, _, _ := newTestGateway(t, &fakeAdmitter{}, nil)
	if rec := serve(g, http.MethodGet, "/public/banner", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d before swap", rec.Code)
	}
	g.SetAllowList([]string{"/public/**"})
	if rec := serve(g, http.MethodGet, "/public/banner", nil); rec.Code != http.StatusOK {
		t.Fatalf("status = %d after swap", rec.Code)
	}
}

func TestGateway_RequestID(t *testing.T) {
	g, seen, _ := newTestGateway(t, &fakeAdmitter{}, nil)
	rec := serve(g, http.MethodGet, "/api/auth/login", map[string]string{httpserver.HeaderRequestID: "client-rid"})
	if rec.Header().Get(httpserver.HeaderRequestID) != "client-rid" || seen.Load().header.Get(httpserver.HeaderRequestID) != "client-rid" {
		t.Fatalf("request id not propagated")
	}
	rec = serve(g, http.MethodGet, "/api/auth/login", map[string]string{httpserver.HeaderRequestID: strings.Repeat("x", 200)})
	if len(rec.Header().Get(httpserver.HeaderRequestID)) != 36 {
		t.Fatalf("oversized id kept: %q", rec.Header().Get(httpserver.HeaderRequestID))
	}
}

func TestRecovery(t *testing.T) {
	engine := gin.New()
	engine.Use(requestID(nil), recovery(logger.Discard().Slog()))
	engine.GET("/panic", func(*gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Fatal("panic value leaked")
	}
}
