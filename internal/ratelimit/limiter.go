// Package ratelimit implements a fixed-window request counter keyed by
// (key, window, bucket), with bucket = floor(now / window).
//
// Counters live in a sharded map and are incremented with a single atomic
// add; the shard lock is only taken to create a bucket or sweep expired ones.
// An increment is never rolled back, including when it is the one that
// exceeds the limit, so concurrent callers cannot slip extra requests in.
//
// Fixed windows admit up to 2x limit across a window boundary (limit at the
// end of one window, limit at the start of the next). This is a known
// characteristic of the algorithm, not a defect.
//
// State is in-memory only. After a restart every key starts a fresh window.
package ratelimit

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/tokgate/internal/telemetry/metric"
	"github.com/yndnr/tokgate/pkg/cmap"
)

// DefaultWindow is used when Enforce is called with a non-positive window.
const DefaultWindow = time.Minute

// Decision is the outcome of one Enforce call.
type Decision struct {
	Allowed bool
	// Count is the post-increment count of the bucket.
	Count     int64
	Limit     int64
	Remaining int64
	// ResetAt is when the current bucket ends.
	ResetAt time.Time
}

// RetryAfter returns the time until the bucket resets, rounded up to a second.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return 0
	}
	return ((wait + time.Second - 1) / time.Second) * time.Second
}

type bucket struct {
	count atomic.Int64
	// endMs is the bucket's window end in Unix milliseconds.
	endMs int64
}

// Limiter is a sharded fixed-window counter. It is safe for concurrent use.
type Limiter struct {
	buckets *cmap.Map[*bucket]
	now     func() time.Time
	metrics *metric.Registry

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithMetrics attaches a metrics registry.
func WithMetrics(m *metric.Registry) Option {
	return func(l *Limiter) { l.metrics = m }
}

// WithShards sets the shard count (power of two).
func WithShards(n int) Option {
	return func(l *Limiter) { l.buckets = cmap.NewWithShards[*bucket](n) }
}

// New creates a Limiter. Call Start to run the expiry janitor.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		buckets: cmap.New[*bucket](),
		now:     time.Now,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Enforce counts one request for key and reports whether it is within limit
// for the current window. A non-positive limit denies every request.
func (l *Limiter) Enforce(key string, limit int64, window time.Duration) Decision {
	windowMs := window.Milliseconds()
	if windowMs <= 0 {
		windowMs = DefaultWindow.Milliseconds()
	}

	nowMs := l.now().UnixMilli()
	id := nowMs / windowMs
	endMs := (id + 1) * windowMs

	b := l.buckets.GetOrCreate(bucketKey(key, windowMs, id), func() *bucket {
		return &bucket{endMs: endMs}
	})
	count := b.count.Add(1)

	d := Decision{
		Allowed: limit > 0 && count <= limit,
		Count:   count,
		Limit:   limit,
		ResetAt: time.UnixMilli(endMs),
	}
	if d.Allowed {
		d.Remaining = limit - count
	}
	l.metrics.ObserveRateLimit(d.Allowed)
	return d
}

// bucketKey joins the parts with NUL, which cannot appear in header values.
func bucketKey(key string, windowMs, id int64) string {
	buf := make([]byte, 0, len(key)+24)
	buf = append(buf, key...)
	buf = append(buf, 0)
	buf = strconv.AppendInt(buf, windowMs, 36)
	buf = append(buf, 0)
	buf = strconv.AppendInt(buf, id, 36)
	return string(buf)
}

// Sweep removes buckets whose window has ended and returns how many were removed.
func (l *Limiter) Sweep() int {
	nowMs := l.now().UnixMilli()
	removed := l.buckets.DeleteIf(func(_ string, b *bucket) bool {
		return b.endMs <= nowMs
	})
	l.metrics.SetRateLimitBuckets(l.buckets.Len())
	return removed
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	return l.buckets.Len()
}

// Start runs Sweep every interval until Stop is called. Use an interval no
// longer than the shortest window so idle buckets expire within a window.
func (l *Limiter) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultWindow
	}
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(l.doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Sweep()
			case <-l.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the janitor started by Start and waits for it to exit.
// It is safe to call Stop without Start, and more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	if l.started.Load() {
		<-l.doneCh
	}
}
