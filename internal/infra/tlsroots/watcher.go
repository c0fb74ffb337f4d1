package tlsroots

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce waits out the write-then-rename sequence of cert renewals.
const DefaultDebounce = 500 * time.Millisecond

// CertWatcher serves a key pair and reloads it when either file changes.
// A failed reload keeps the previous pair.
type CertWatcher struct {
	certFile string
	keyFile  string
	debounce time.Duration
	logger   *slog.Logger
	cert     atomic.Pointer[tls.Certificate]
}

// WatcherOption configures a CertWatcher.
type WatcherOption func(*CertWatcher)

// WithLogger sets the logger for the watcher.
func WithLogger(logger *slog.Logger) WatcherOption {
	return func(w *CertWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *CertWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewCertWatcher loads the key pair. It fails if the initial load fails.
func NewCertWatcher(certFile, keyFile string, opts ...WatcherOption) (*CertWatcher, error) {
	w := &CertWatcher{
		certFile: filepath.Clean(certFile),
		keyFile:  filepath.Clean(keyFile),
		debounce: DefaultDebounce,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.reload(); err != nil {
		return nil, fmt.Errorf("tlsroots: initial load: %w", err)
	}
	return w, nil
}

// ServerConfig returns a server TLS config backed by the watcher.
func (w *CertWatcher) ServerConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     MinVersion,
		GetCertificate: w.GetCertificate,
	}
}

// GetCertificate implements tls.Config.GetCertificate.
func (w *CertWatcher) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return w.cert.Load(), nil
}

// Run reloads the key pair on change until ctx is done. Parent directories
// are watched so renames are seen.
func (w *CertWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	defer fw.Close()

	dirs := map[string]bool{filepath.Dir(w.certFile): true, filepath.Dir(w.keyFile): true}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("tlsroots: watch %s: %w", dir, err)
		}
	}
	w.logger.Info("certificate watcher started", "cert_file", w.certFile, "key_file", w.keyFile)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(event.Name)
			if name != w.certFile && name != w.keyFile {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := w.reload(); err != nil {
				w.logger.Error("certificate reload failed", "error", err, "cert_file", w.certFile)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("certificate watcher error", "error", err)
		}
	}
}

func (w *CertWatcher) reload() error {
	cert, err := tls.LoadX509KeyPair(w.certFile, w.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}
	w.cert.Store(&cert)
	w.logger.Info("certificate loaded", "cert_file", w.certFile)
	return nil
}
