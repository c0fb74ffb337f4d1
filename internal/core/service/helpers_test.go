package service_test

import (
	"sync"
	"testing"
	"time"

	"github.com/yndnr/tokgate/internal/core/service"
	"github.com/yndnr/tokgate/internal/storage/memory"
	"github.com/yndnr/tokgate/pkg/token"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newHasher(t *testing.T) *token.Hasher {
	t.Helper()
	h, err := token.NewHasher([]byte("test-pepper-0123456789"))
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	return h
}

type tokenFixture struct {
	clock  *fakeClock
	store  *memory.SessionStore
	tokens *service.TokenService
}

func newTokenFixture(t *testing.T) *tokenFixture {
	t.Helper()
	clock := newFakeClock()
	store := memory.NewSessionStore()
	tokens := service.NewTokenService(store, newHasher(t), &service.TokenServiceConfig{
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	}, service.WithClock(clock.Now))
	return &tokenFixture{clock: clock, store: store, tokens: tokens}
}
