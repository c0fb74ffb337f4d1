// Package main provides the entry point for tokgate-server.
//
// The server is the tokgate auth core. It serves:
//
//   - user registration, login, refresh, logout
//   - the internal validate-key and verify-token endpoints used by the gateway
//   - the admin API for developers and sessions
//   - /health and /metrics
//
// Usage:
//
//	tokgate-server [flags]
//	tokgate-server --config /etc/tokgate/server.yaml
//
// Environment variables prefixed with TOKGATE_ override the file. A double
// underscore keeps a literal underscore: TOKGATE_SECURITY_ADMIN__TOKEN sets
// security.admin_token.
package main
