// Package config defines the tokgate-server and tokgate-gateway
// configuration structures.
//
//   - spec.go: ServerConfig
//   - gateway.go: GatewayConfig
//   - default.go: default values
//   - verify.go: validation, reporting every violation at once
//   - sanitize.go: masking of secrets for startup logging
//
// Configuration is loaded via internal/infra/confloader from a YAML file and
// TOKGATE_ environment variables.
package config
