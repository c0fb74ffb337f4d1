package badgerdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/tokgate/internal/core/domain"
)

// Engine defaults.
const (
	DefaultGCInterval  = 10 * time.Minute
	DefaultGCThreshold = 0.5

	// maxTxnRetries bounds retries of a conflicting transaction.
	maxTxnRetries = 8

	metricsInterval = 15 * time.Second
)

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = errors.New("badger engine closed")

// Config holds Badger engine configuration.
type Config struct {
	// Dir is the data directory. Required unless InMemory is set.
	Dir string

	// InMemory runs Badger without touching disk.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// EncryptionKey enables encryption at rest. It must be 16, 24 or 32
	// bytes (AES-128/192/256).
	EncryptionKey []byte

	// CacheSize is the block cache size in bytes (0 uses Badger's default).
	CacheSize int64

	// GCInterval is the value log GC period (default: 10m).
	GCInterval time.Duration

	// GCThreshold is the discard ratio passed to RunValueLogGC (default: 0.5).
	GCThreshold float64
}

// Engine owns the Badger DB and its background loops.
type Engine struct {
	db     *badger.DB
	cfg    Config
	logger *slog.Logger

	lastGCTime atomic.Int64 // Unix milliseconds
	gcRuns     atomic.Uint64

	closeOnce sync.Once
	closed    atomic.Bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// Open opens (or creates) a Badger database.
func Open(cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if n := len(cfg.EncryptionKey); n != 0 && n != 16 && n != 24 && n != 32 {
		return nil, fmt.Errorf("badger: encryption key must be 16, 24 or 32 bytes, got %d", n)
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = DefaultGCInterval
	}
	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		cfg.GCThreshold = DefaultGCThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "badger")

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.SyncWrites = cfg.SyncWrites
	opts.DetectConflicts = true
	if cfg.CacheSize > 0 {
		opts.BlockCacheSize = cfg.CacheSize
	}
	if len(cfg.EncryptionKey) > 0 {
		opts.EncryptionKey = cfg.EncryptionKey
		// Badger requires an index cache when encryption is enabled.
		opts.IndexCacheSize = 64 << 20
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	e := &Engine{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	if !cfg.InMemory {
		e.wg.Add(1)
		go e.gcLoop()
	}

	logger.Info("badger engine started",
		"dir", cfg.Dir,
		"in_memory", cfg.InMemory,
		"encrypted", len(cfg.EncryptionKey) > 0,
		"gc_interval", cfg.GCInterval)

	return e, nil
}

// Sessions returns the session store backed by e.
func (e *Engine) Sessions() *SessionStore { return &SessionStore{e: e} }

// Developers returns the developer store backed by e.
func (e *Engine) Developers() *DeveloperStore { return &DeveloperStore{e: e} }

// Users returns the user store backed by e.
func (e *Engine) Users() *UserStore { return &UserStore{e: e} }

// view runs a read-only transaction.
func (e *Engine) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.db.View(fn)
}

// update runs fn in a read-write transaction, retrying on commit conflicts.
// fn must be safe to run more than once.
func (e *Engine) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if e.closed.Load() {
		return ErrClosed
	}
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := e.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if attempt >= maxTxnRetries {
			return domain.ErrUnavailable.WithDetails("storage contention").WithCause(err)
		}
	}
}

// GC runs value log GC until nothing more can be rewritten and returns the
// number of rewritten files.
func (e *Engine) GC() (int, error) {
	start := time.Now()
	runs := 0
	for {
		err := e.db.RunValueLogGC(e.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
				break
			}
			return runs, fmt.Errorf("gc: %w", err)
		}
		runs++
	}

	e.lastGCTime.Store(time.Now().UnixMilli())
	e.gcRuns.Add(uint64(runs))
	e.logger.Debug("gc completed", "rewrites", runs, "elapsed", time.Since(start))
	return runs, nil
}

func (e *Engine) gcLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := e.GC(); err != nil {
				e.logger.Error("auto gc failed", "error", err)
			}
		case <-e.stopCh:
			return
		}
	}
}

// RegisterMetrics registers Badger size gauges and starts their updater.
func (e *Engine) RegisterMetrics(reg prometheus.Registerer) error {
	lsm := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tokgate",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})
	vlog := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tokgate",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})
	lastGC := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tokgate",
		Subsystem: "badger",
		Name:      "last_gc_timestamp_seconds",
		Help:      "Unix timestamp of the last Badger GC run",
	})
	gcRuns := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "tokgate",
		Subsystem: "badger",
		Name:      "gc_rewrites_total",
		Help:      "Value log files rewritten by Badger GC",
	}, func() float64 { return float64(e.gcRuns.Load()) })

	for _, c := range []prometheus.Collector{lsm, vlog, lastGC, gcRuns} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("badger: register metrics: %w", err)
		}
	}

	update := func() {
		l, v := e.db.Size()
		lsm.Set(float64(l))
		vlog.Set(float64(v))
		if t := e.lastGCTime.Load(); t > 0 {
			lastGC.Set(float64(t) / 1000.0)
		}
	}
	update()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(metricsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				update()
			case <-e.stopCh:
				return
			}
		}
	}()
	return nil
}

// Close stops background loops and closes the database.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.logger.Info("shutting down badger engine")
		e.closed.Store(true)
		close(e.stopCh)
		e.wg.Wait()
		if cerr := e.db.Close(); cerr != nil {
			err = fmt.Errorf("close db: %w", cerr)
		}
	})
	return err
}

// getJSON loads key into v. It returns badger.ErrKeyNotFound unchanged.
func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// getString loads an index value.
func getString(txn *badger.Txn, key []byte) (string, error) {
	item, err := txn.Get(key)
	if err != nil {
		return "", err
	}
	val, err := item.ValueCopy(nil)
	return string(val), err
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// scanKeys returns every key under prefix.
func scanKeys(txn *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

func key(parts ...string) []byte {
	n := 0
	for _, p := range parts {
		n += len(p) + 1
	}
	b := make([]byte, 0, n)
	for i, p := range parts {
		if i > 0 {
			b = append(b, '/')
		}
		b = append(b, p...)
	}
	return b
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
