// Package gateway implements the tokgate edge proxy.
//
// Every request passes the auth filter before it is reverse-proxied:
//
//   - allowlist.go: path patterns forwarded without an API key
//   - filter.go: API key admission and bearer token verification
//   - client.go: HTTP client for the auth-core internal endpoints
//   - proxy.go: prefix route table over httputil.ReverseProxy
//   - gateway.go: gin engine, request ids, access log, recovery
//
// Admission is always remote and uncached. A revoked session or a disabled
// key is rejected on the very next request.
package gateway
