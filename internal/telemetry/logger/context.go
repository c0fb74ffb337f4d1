package logger

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// scope is the request-scoped logging state.
type scope struct {
	requestID string
	log       Logger
}

func scopeOf(ctx context.Context) scope {
	s, _ := ctx.Value(ctxKey{}).(scope)
	return s
}

// WithRequest stores requestID in ctx together with a logger derived from
// base that tags every line with it. A nil base uses Default().
func WithRequest(ctx context.Context, base *slog.Logger, requestID string) context.Context {
	l := Default()
	if base != nil {
		l = FromSlog(base)
	}
	if requestID != "" {
		l = l.With("request_id", requestID)
	}
	return context.WithValue(ctx, ctxKey{}, scope{requestID: requestID, log: l})
}

// RequestIDFromContext returns the request id, or "" outside a request.
func RequestIDFromContext(ctx context.Context) string {
	return scopeOf(ctx).requestID
}

// L returns the request logger, or Default() outside a request.
func L(ctx context.Context) Logger {
	if l := scopeOf(ctx).log; l != nil {
		return l
	}
	return Default()
}
