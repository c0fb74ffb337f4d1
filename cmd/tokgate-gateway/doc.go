// Package main provides the entry point for tokgate-gateway.
//
// The gateway is the edge reverse proxy. Requests outside the allow-list
// need an X-API-KEY that the auth core admits; a bearer access token, when
// present, is verified and forwarded as X-User-Id.
//
// Usage:
//
//	tokgate-gateway --config /etc/tokgate/gateway.yaml
//
// Changes to gateway.allow_list and log.level in the config file apply
// without a restart.
package main
