// Package logger provides structured logging for tokgate.
//
//   - logger.go: slog handler setup and the runtime level
//   - context.go: request-scoped loggers and request IDs
//   - redact.go: credential redaction applied to every record
package logger
