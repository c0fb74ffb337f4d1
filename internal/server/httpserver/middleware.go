package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/yndnr/tokgate/internal/core/domain"
	"github.com/yndnr/tokgate/internal/server/httpserver/handler"
	"github.com/yndnr/tokgate/internal/server/httpstatus"
	"github.com/yndnr/tokgate/internal/telemetry/logger"
	"github.com/yndnr/tokgate/pkg/token"
)

// Security headers.
const (
	HeaderRequestID     = "X-Request-ID"
	HeaderAdminToken    = "X-Admin-Token"
	HeaderInternalToken = "X-Internal-Token"
)

// maxRequestIDLength bounds client-supplied request IDs.
const maxRequestIDLength = 128

type contextKey string

const contextKeyStartTime contextKey = "start_time"

// Middleware wraps an http.Handler with additional functionality.
type Middleware func(http.Handler) http.Handler

// Chain chains multiple middlewares together. The first one runs outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RequestID propagates or assigns X-Request-ID and stores it, with a
// request-scoped logger, in the context.
func RequestID(base *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(HeaderRequestID)
			if requestID == "" || len(requestID) > maxRequestIDLength {
				if id, err := token.GenerateWithLength(16); err == nil {
					requestID = "req-" + id
				} else {
					requestID = "req-unknown"
				}
			}
			w.Header().Set(HeaderRequestID, requestID)

			ctx := logger.WithRequest(r.Context(), base, requestID)
			ctx = context.WithValue(ctx, contextKeyStartTime, time.Now())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientAddress resolves the client address once per request against the
// trusted proxy set. handler.ClientIP reads the result.
func ClientAddress(trusted handler.TrustedProxies) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := handler.WithClientIP(r.Context(), trusted.Resolve(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Timeout bounds the request context. Store calls observe it.
func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Audit logs one line per request, at a level chosen by status.
func Audit(log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			startTime, ok := r.Context().Value(contextKeyStartTime).(time.Time)
			if !ok {
				startTime = time.Now()
			}
			attrs := []any{
				"request_id", logger.RequestIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", time.Since(startTime).Milliseconds(),
				"client_ip", handler.ClientIP(r),
			}
			if code := wrapped.Header().Get(httpstatus.HeaderErrorCode); code != "" {
				attrs = append(attrs, "error_code", code)
			}

			switch {
			case wrapped.statusCode >= 500:
				log.Error("request completed with error", attrs...)
			case wrapped.statusCode >= 400:
				log.Warn("request completed with client error", attrs...)
			default:
				log.Info("request completed", attrs...)
			}
		})
	}
}

// Recover turns a panic into a 500 envelope.
func Recover(log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					requestID := logger.RequestIDFromContext(r.Context())
					log.Error("panic recovered",
						"request_id", requestID,
						"error", rec,
						"path", r.URL.Path,
					)
					httpstatus.Write(w, domain.ErrInternal, requestID)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// AdminAuth requires X-Admin-Token to equal adminToken. An empty adminToken
// disables the admin API, which then answers 404.
func AdminAuth(adminToken string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := logger.RequestIDFromContext(r.Context())
			if adminToken == "" {
				httpstatus.Write(w, domain.NewDomainError(domain.KindNotFound, "not found"), requestID)
				return
			}
			if !token.Equal(r.Header.Get(HeaderAdminToken), adminToken) {
				logger.L(r.Context()).Warn("admin request rejected", "client_ip", handler.ClientIP(r), "path", r.URL.Path)
				httpstatus.Write(w, domain.ErrUnauthorized.WithDetails("admin token required"), requestID)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// InternalAuth requires X-Internal-Token to equal internalToken when it is
// configured. An empty internalToken leaves the endpoints open.
func InternalAuth(internalToken string) Middleware {
	return func(next http.Handler) http.Handler {
		if internalToken == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !token.Equal(r.Header.Get(HeaderInternalToken), internalToken) {
				httpstatus.Write(w, domain.ErrUnauthorized.WithDetails("internal token required"),
					logger.RequestIDFromContext(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
