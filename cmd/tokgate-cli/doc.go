// Package main provides the entry point for tokgate-cli.
//
// tokgate-cli administers a tokgate auth core over its admin API:
//
//	tokgate-cli developer create --app-id anime-web --rate-limit 100
//	tokgate-cli developer list -o yaml
//	tokgate-cli session list tgus-...
//	tokgate-cli user revoke-all tgus-...
//	tokgate-cli key check tgak_...
//
// TOKGATE_SERVER, TOKGATE_ADMIN_TOKEN and TOKGATE_INTERNAL_TOKEN supply the
// global flags.
package main
