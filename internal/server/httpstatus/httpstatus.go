// Package httpstatus maps error kinds to HTTP status codes and renders the
// JSON error envelope shared by the auth core and the gateway.
package httpstatus

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/yndnr/tokgate/internal/core/domain"
)

// HeaderErrorCode carries the error Kind on every error response.
const HeaderErrorCode = "X-Error-Code"

var statusByKind = map[domain.Kind]int{
	domain.KindInvalidCredentials: http.StatusUnauthorized,
	domain.KindInvalidAPIKey:      http.StatusUnauthorized,
	domain.KindTokenExpired:       http.StatusUnauthorized,
	domain.KindTokenInvalid:       http.StatusUnauthorized,
	domain.KindTokenReused:        http.StatusUnauthorized,
	domain.KindSessionRevoked:     http.StatusUnauthorized,
	domain.KindTransportFailure:   http.StatusUnauthorized,
	domain.KindRateLimited:        http.StatusTooManyRequests,

	domain.KindUnauthorized:    http.StatusForbidden,
	domain.KindNotFound:        http.StatusNotFound,
	domain.KindConflict:        http.StatusConflict,
	domain.KindInvalidArgument: http.StatusBadRequest,
	domain.KindInternal:        http.StatusInternalServerError,
	domain.KindUnavailable:     http.StatusServiceUnavailable,
}

// For returns the HTTP status for kind. Unknown kinds are 500.
func For(kind domain.Kind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Envelope is the JSON error body.
type Envelope struct {
	Code      domain.Kind `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// EnvelopeFor builds the envelope for err. Internal errors never expose
// their message.
func EnvelopeFor(err error, requestID string) Envelope {
	kind := domain.KindOf(err)
	msg := "internal error"
	var de *domain.DomainError
	if errors.As(err, &de) && kind != domain.KindInternal {
		msg = de.Message
		if de.Details != "" {
			msg += ": " + de.Details
		}
	}
	return Envelope{
		Code:      kind,
		Message:   msg,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Write renders err as a JSON error response.
func Write(w http.ResponseWriter, err error, requestID string) {
	env := EnvelopeFor(err, requestID)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(HeaderErrorCode, string(env.Code))
	w.WriteHeader(For(env.Code))
	_ = json.NewEncoder(w).Encode(env)
}
