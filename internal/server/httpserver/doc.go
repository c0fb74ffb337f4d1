// Package httpserver serves the tokgate auth core over net/http.
//
// Routes are grouped under their own middleware chains:
//
//   - /api/auth/{register,login,developer/rotate-key}: per-IP throttle
//   - /api/auth/{refresh,logout,logout-all}: bearer or body credentials only
//   - /api/auth/internal/*: optional X-Internal-Token
//   - /api/admin/*: X-Admin-Token, 404 when no admin token is configured
//   - /health, /metrics
//
// Every chain assigns X-Request-ID, recovers panics, writes an audit line and
// bounds the request context with a timeout.
package httpserver
