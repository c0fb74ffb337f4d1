// Package domain defines the core domain models for tokgate.
//
// Domain models are plain entities without IO dependencies:
//
//   - Session: one logical login and its Active/Rotated/Revoked lifecycle
//   - Developer: an API key holder with a configured rate limit
//   - User: an identity record with an Argon2id password credential
//   - Errors: the closed set of error kinds carried through every layer
package domain
