// Package service provides domain services for tokgate.
//
// Domain services contain the business rules and orchestrate operations
// on domain models. They define interfaces for storage dependencies,
// allowing for dependency injection and testability.
//
// This package contains:
//
//   - TokenService: session issue, access validation, refresh rotation with
//     reuse detection, revocation and the expiry sweep
//   - RevocationService: revocation entry points for handlers
//   - DeveloperKeyService: developer registration, API key validation,
//     admission (key check plus rate limit) and key rotation
//   - IdentityService: user registration and password login
//   - LastUsedRecorder: asynchronous, coalescing last_used_at writer
//
// Services are safe for concurrent use.
package service
