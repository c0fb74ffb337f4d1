package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/tokgate/internal/telemetry/metric"
)

// LastUsedRecorder defaults.
const (
	DefaultTouchQueueSize     = 4096
	DefaultTouchFlushInterval = time.Second

	touchWriteTimeout = 2 * time.Second
)

type touch struct {
	id string
	at int64
}

// LastUsedRecorder writes developer last_used_at timestamps off the request
// path. Touches are queued without blocking, coalesced per developer, and
// flushed on an interval. When the queue is full a touch is dropped.
type LastUsedRecorder struct {
	repo     DeveloperRepository
	queue    chan touch
	interval time.Duration
	log      *slog.Logger
	metrics  *metric.Registry

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewLastUsedRecorder creates a recorder. Non-positive sizes use defaults.
func NewLastUsedRecorder(repo DeveloperRepository, queueSize int, interval time.Duration, opts ...Option) *LastUsedRecorder {
	if queueSize <= 0 {
		queueSize = DefaultTouchQueueSize
	}
	if interval <= 0 {
		interval = DefaultTouchFlushInterval
	}
	o := buildOptions("lastused", opts)
	return &LastUsedRecorder{
		repo:     repo,
		queue:    make(chan touch, queueSize),
		interval: interval,
		log:      o.log,
		metrics:  o.metrics,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Record queues a touch. It never blocks and reports whether the touch was
// accepted. A nil recorder drops everything silently.
func (r *LastUsedRecorder) Record(developerID string, at int64) bool {
	if r == nil {
		return false
	}
	select {
	case r.queue <- touch{id: developerID, at: at}:
		return true
	default:
		r.metrics.ObserveTouchDropped()
		return false
	}
}

// Start launches the flusher. Calling it more than once has no effect.
func (r *LastUsedRecorder) Start() {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	go r.run()
}

// Stop drains queued touches, flushes them and stops the flusher.
func (r *LastUsedRecorder) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	if r.started.Load() {
		<-r.doneCh
	}
}

func (r *LastUsedRecorder) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	pending := make(map[string]int64)
	for {
		select {
		case t := <-r.queue:
			coalesce(pending, t)
		case <-ticker.C:
			r.flush(pending)
		case <-r.stopCh:
		drain:
			for {
				select {
				case t := <-r.queue:
					coalesce(pending, t)
				default:
					break drain
				}
			}
			r.flush(pending)
			return
		}
	}
}

func coalesce(pending map[string]int64, t touch) {
	if t.at > pending[t.id] {
		pending[t.id] = t.at
	}
}

func (r *LastUsedRecorder) flush(pending map[string]int64) {
	for id, at := range pending {
		ctx, cancel := context.WithTimeout(context.Background(), touchWriteTimeout)
		if err := r.repo.TouchLastUsed(ctx, id, at); err != nil {
			r.log.Debug("last_used_at write failed", "developer_id", id, "error", err)
		}
		cancel()
	}
	clear(pending)
}
