package domain

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error classifications carried end-to-end.
// HTTP status and wire codes are derived from Kind, never from Message.
type Kind string

const (
	KindInvalidCredentials Kind = "InvalidCredentials"
	KindInvalidAPIKey      Kind = "InvalidApiKey"
	KindRateLimited        Kind = "RateLimited"
	KindTokenExpired       Kind = "TokenExpired"
	KindTokenInvalid       Kind = "TokenInvalid"
	KindTokenReused        Kind = "TokenReused"
	KindSessionRevoked     Kind = "SessionRevoked"
	KindTransportFailure   Kind = "TransportFailure"

	KindNotFound        Kind = "NotFound"
	KindConflict        Kind = "Conflict"
	KindInvalidArgument Kind = "InvalidArgument"
	KindUnauthorized    Kind = "Unauthorized"
	KindInternal        Kind = "Internal"
	KindUnavailable     Kind = "Unavailable"
)

var knownKinds = map[string]Kind{
	string(KindInvalidCredentials): KindInvalidCredentials,
	string(KindInvalidAPIKey):      KindInvalidAPIKey,
	string(KindRateLimited):        KindRateLimited,
	string(KindTokenExpired):       KindTokenExpired,
	string(KindTokenInvalid):       KindTokenInvalid,
	string(KindTokenReused):        KindTokenReused,
	string(KindSessionRevoked):     KindSessionRevoked,
	string(KindTransportFailure):   KindTransportFailure,
	string(KindNotFound):           KindNotFound,
	string(KindConflict):           KindConflict,
	string(KindInvalidArgument):    KindInvalidArgument,
	string(KindUnauthorized):       KindUnauthorized,
	string(KindInternal):           KindInternal,
	string(KindUnavailable):        KindUnavailable,
}

// ParseKind maps a wire code back to its Kind by exact lookup.
func ParseKind(code string) (Kind, bool) {
	k, ok := knownKinds[code]
	return k, ok
}

// DomainError is a business error with an explicit Kind.
type DomainError struct {
	Kind    Kind
	Message string
	Details string
	Cause   error
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a DomainError of the same Kind and Message.
// Two distinct sentinels may share a Kind (ErrSessionNotFound and
// ErrDeveloperNotFound are both NotFound), so the message is part of identity.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// NewDomainError creates a new DomainError.
func NewDomainError(kind Kind, message string) *DomainError {
	return &DomainError{Kind: kind, Message: message}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{Kind: e.Kind, Message: e.Message, Details: details, Cause: e.Cause}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{Kind: e.Kind, Message: e.Message, Details: e.Details, Cause: cause}
}

// KindOf extracts the Kind of err. Errors that are not DomainErrors are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Kind == kind
}

// ============================================================================
// Credential and token errors
// ============================================================================

var (
	ErrInvalidCredentials = NewDomainError(KindInvalidCredentials, "invalid credentials")
	ErrInvalidAPIKey      = NewDomainError(KindInvalidAPIKey, "invalid api key")
	ErrRateLimited        = NewDomainError(KindRateLimited, "rate limit exceeded")
	ErrTokenExpired       = NewDomainError(KindTokenExpired, "token expired")
	ErrTokenInvalid       = NewDomainError(KindTokenInvalid, "token invalid")

	// ErrTokenReused is returned after every session of the owning user has
	// already been revoked.
	ErrTokenReused = NewDomainError(KindTokenReused, "refresh token reused")

	ErrSessionRevoked   = NewDomainError(KindSessionRevoked, "session revoked")
	ErrTransportFailure = NewDomainError(KindTransportFailure, "admission backend unavailable")
)

// ============================================================================
// Store errors
// ============================================================================

var (
	ErrSessionNotFound = NewDomainError(KindNotFound, "session not found")
	ErrSessionConflict = NewDomainError(KindConflict, "session already exists")

	// ErrSessionStateConflict means a compare-and-swap on session state lost.
	ErrSessionStateConflict = NewDomainError(KindConflict, "session state changed concurrently")

	ErrDeveloperNotFound = NewDomainError(KindNotFound, "developer not found")
	ErrAppIDTaken        = NewDomainError(KindConflict, "app id already registered")
	ErrAPIKeyConflict    = NewDomainError(KindConflict, "api key already exists")

	ErrUserNotFound = NewDomainError(KindNotFound, "user not found")
	ErrEmailTaken   = NewDomainError(KindConflict, "email already registered")
)

// ============================================================================
// General errors
// ============================================================================

var (
	ErrInvalidArgument = NewDomainError(KindInvalidArgument, "invalid argument")
	ErrUnauthorized    = NewDomainError(KindUnauthorized, "not authorized")
	ErrInternal        = NewDomainError(KindInternal, "internal error")
	ErrUnavailable     = NewDomainError(KindUnavailable, "service unavailable")
)
