package service

import (
	"log/slog"
	"time"

	"github.com/yndnr/tokgate/internal/telemetry/logger"
	"github.com/yndnr/tokgate/internal/telemetry/metric"
)

// Option configures the ambient dependencies shared by services.
type Option func(*options)

type options struct {
	now     func() time.Time
	log     *slog.Logger
	metrics *metric.Registry
}

func buildOptions(component string, opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Discard().Slog()
	}
	o.log = o.log.With("component", component)
	return o
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger. Services log nothing by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics sets the metrics registry. A nil registry is a no-op.
func WithMetrics(m *metric.Registry) Option {
	return func(o *options) { o.metrics = m }
}
