package shutdown

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/yndnr/tokgate/internal/telemetry/logger"
)

func newTestHandler() *Handler {
	return NewHandler(5*time.Second, logger.Discard().Slog())
}

func TestHandler_ReverseOrder(t *testing.T) {
	h := newTestHandler()

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"storage", "sweeper", "http"} {
		h.OnShutdown(name, func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.WaitContext(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("WaitContext() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitContext did not return")
	}

	want := []string{"http", "sweeper", "storage"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	select {
	case <-h.Done():
	default:
		t.Error("Done channel should be closed after shutdown")
	}
}

func TestHandler_Wait_WithSignal(t *testing.T) {
	h := newTestHandler()
	var called bool
	h.OnShutdown("flag", func(context.Context) error {
		called = true
		return nil
	})

	errCh := make(chan error, 1)
	go func() { errCh <- h.Wait() }()
	time.Sleep(50 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("kill: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Wait() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not complete in time")
	}
	if !called {
		t.Error("hook was not called")
	}
}

func TestHandler_HookErrorsAreJoined(t *testing.T) {
	h := newTestHandler()
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	var ran int
	h.OnShutdown("a", func(context.Context) error { ran++; return errA })
	h.OnShutdown("ok", func(context.Context) error { ran++; return nil })
	h.OnShutdown("b", func(context.Context) error { ran++; return errB })

	err := h.Shutdown()
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("Shutdown() = %v, want both hook errors", err)
	}
	if ran != 3 {
		t.Fatalf("ran %d hooks, want 3", ran)
	}
}

func TestHandler_ShutdownOnce(t *testing.T) {
	h := newTestHandler()
	var calls int
	h.OnShutdown("count", func(context.Context) error { calls++; return nil })

	_ = h.Shutdown()
	_ = h.Shutdown()
	if calls != 1 {
		t.Fatalf("hook ran %d times, want 1", calls)
	}
}

func TestHandler_HookDeadline(t *testing.T) {
	h := NewHandler(20*time.Millisecond, logger.Discard().Slog())
	h.OnShutdown("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := h.Shutdown(); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown() = %v, want deadline exceeded", err)
	}
}

func TestHandler_ConcurrentOnShutdown(t *testing.T) {
	h := newTestHandler()

	var wg sync.WaitGroup
	const n = 10
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.OnShutdown("noop", func(context.Context) error { return nil })
		}()
	}
	wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.hooks) != n {
		t.Errorf("expected %d hooks, got %d", n, len(h.hooks))
	}
}
