// Package handler provides the HTTP handlers of the tokgate auth core.
//
// Files are grouped by audience:
//
//   - auth.go: public credential endpoints under /api/auth
//   - internal.go: gateway-facing admission and token verification
//   - admin.go: developer and session administration under /api/admin
//   - health.go: liveness and metrics
//
// Handlers decode the request, call one service, and render either a JSON
// body or the shared error envelope from package httpstatus. HTTP status is
// always derived from the error Kind.
package handler
