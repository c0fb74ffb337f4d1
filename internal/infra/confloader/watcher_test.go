package confloader

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestNewWatcher_NonexistentDir(t *testing.T) {
	if _, err := NewWatcher("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("NewWatcher() expected error for nonexistent directory")
	}
}

func TestWatcher_NotifiesOnChange(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	writeFile(t, configFile, "log:\n  level: info\n")

	w, err := NewWatcher(configFile, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	changed := make(chan string, 8)
	w.OnChange(func(path string) { changed <- path })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	time.Sleep(50 * time.Millisecond)
	writeFile(t, configFile, "log:\n  level: debug\n")

	select {
	case path := <-changed:
		if filepath.Base(path) != "config.yaml" {
			t.Errorf("callback path = %q", path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("callback not called after file change")
	}
}

func TestWatcher_IgnoresSiblingsAndDebounces(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	writeFile(t, configFile, "a: 1\n")

	w, err := NewWatcher(configFile, WithDebounce(100*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	var calls atomic.Int32
	w.OnChange(func(string) { calls.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()
	time.Sleep(50 * time.Millisecond)

	writeFile(t, filepath.Join(dir, "other.yaml"), "b: 2\n")
	for i := 0; i < 5; i++ {
		writeFile(t, configFile, "a: 2\n")
		time.Sleep(5 * time.Millisecond)
	}

	deadline := time.Now().Add(3 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(250 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("callbacks = %d, want 1 for a burst of writes", got)
	}
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	writeFile(t, configFile, "a: 1\n")

	w, err := NewWatcher(configFile)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
