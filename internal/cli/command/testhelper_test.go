package command

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tokgate/internal/server/httpserver"
	"github.com/yndnr/tokgate/internal/server/httpstatus"
)

const testAdminToken = "admin-token-0123456789"

// mockServer is an auth core stand-in keyed by "METHOD /path".
type mockServer struct {
	*httptest.Server
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	calls    []string
}

func newMockServer(t *testing.T) *mockServer {
	t.Helper()
	m := &mockServer{handlers: make(map[string]http.HandlerFunc)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		m.mu.Lock()
		m.calls = append(m.calls, key)
		h, ok := m.handlers[key]
		m.mu.Unlock()
		if !ok {
			errorResponse(w, http.StatusNotFound, "NotFound", "no handler for "+key)
			return
		}
		h(w, r)
	}))
	t.Cleanup(m.Close)
	return m
}

// handle registers a handler for "METHOD /path".
func (m *mockServer) handle(pattern string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[pattern] = h
}

// requireAdminToken wraps h with an X-Admin-Token check.
func requireAdminToken(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(httpserver.HeaderAdminToken) != testAdminToken {
			errorResponse(w, http.StatusForbidden, "Unauthorized", "admin token rejected")
			return
		}
		h(w, r)
	}
}

func (m *mockServer) called() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// jsonResponse writes a JSON response.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// errorResponse writes the standard error envelope.
func errorResponse(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set(httpstatus.HeaderErrorCode, code)
	jsonResponse(w, status, map[string]any{
		"code":       code,
		"message":    message,
		"request_id": "req-test",
		"timestamp":  1,
	})
}

// run executes the CLI against server with stdin and returns its output.
func run(t *testing.T, server *mockServer, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := App()
	app.Writer = &out
	app.ErrWriter = &out
	app.Reader = strings.NewReader(stdin)
	app.ExitErrHandler = func(*cli.Context, error) {}

	full := []string{"tokgate-cli", "--server", server.URL, "--admin-token", testAdminToken}
	err := app.RunContext(context.Background(), append(full, args...))
	return out.String(), err
}
