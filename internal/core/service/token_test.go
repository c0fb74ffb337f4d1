package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/tokgate/internal/core/domain"
)

func TestTokenService_IssueStoresOnlyHashes(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()

	pair, err := f.tokens.Issue(ctx, "tgus-1", "curl/8", "10.0.0.1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !domain.ValidCredentialFormat(domain.AccessTokenPrefix, pair.AccessToken) ||
		!domain.ValidCredentialFormat(domain.RefreshTokenPrefix, pair.RefreshToken) {
		t.Fatalf("malformed pair: %+v", pair)
	}
	if want := f.clock.Now().Add(15 * time.Minute).UnixMilli(); pair.ExpiresAt != want {
		t.Fatalf("ExpiresAt = %d, want %d", pair.ExpiresAt, want)
	}

	s, err := f.store.Get(ctx, pair.SessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.AccessTokenHash == pair.AccessToken || s.RefreshTokenHash == pair.RefreshToken {
		t.Fatal("plaintext token persisted")
	}
	if s.Device != "curl/8" || s.IPAddress != "10.0.0.1" || !s.IsActive() {
		t.Fatalf("session = %+v", s)
	}

	if _, err := f.tokens.Issue(ctx, "", "", ""); !domain.IsKind(err, domain.KindInvalidArgument) {
		t.Fatalf("empty user err = %v", err)
	}
}

func TestTokenService_ValidateAccess(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		setup func(f *tokenFixture, access string, sessionID string)
		token func(access string) string
		want  error
	}{
		{
			name:  "valid",
			setup: func(*tokenFixture, string, string) {},
			want:  nil,
		},
		{
			name:  "malformed",
			setup: func(*tokenFixture, string, string) {},
			token: func(string) string { return "tgat_short" },
			want:  domain.ErrTokenInvalid,
		},
		{
			name:  "wrong prefix",
			setup: func(*tokenFixture, string, string) {},
			token: func(a string) string { return "tgrt_" + a[len("tgat_"):] },
			want:  domain.ErrTokenInvalid,
		},
		{
			name:  "unknown",
			setup: func(*tokenFixture, string, string) {},
			token: func(string) string {
				v, _ := domain.GenerateCredential(domain.AccessTokenPrefix)
				return v
			},
			want: domain.ErrTokenInvalid,
		},
		{
			name: "expired at boundary",
			setup: func(f *tokenFixture, _, _ string) {
				f.clock.Advance(15 * time.Minute)
			},
			want: domain.ErrTokenExpired,
		},
		{
			name: "revoked",
			setup: func(f *tokenFixture, _, id string) {
				_ = f.tokens.Revoke(context.Background(), id, domain.RevokeLogout)
			},
			want: domain.ErrSessionRevoked,
		},
		{
			name: "expired wins over revoked",
			setup: func(f *tokenFixture, _, id string) {
				_ = f.tokens.Revoke(context.Background(), id, domain.RevokeLogout)
				f.clock.Advance(time.Hour)
			},
			want: domain.ErrTokenExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTokenFixture(t)
			pair, err := f.tokens.Issue(ctx, "tgus-1", "", "")
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}
			tt.setup(f, pair.AccessToken, pair.SessionID)

			access := pair.AccessToken
			if tt.token != nil {
				access = tt.token(access)
			}

			p, err := f.tokens.ValidateAccess(ctx, access)
			if !errors.Is(err, tt.want) {
				t.Fatalf("ValidateAccess err = %v, want %v", err, tt.want)
			}
			if tt.want == nil && (p.UserID != "tgus-1" || p.SessionID != pair.SessionID) {
				t.Fatalf("principal = %+v", p)
			}
		})
	}
}

func TestTokenService_RefreshRotates(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()

	first, _ := f.tokens.Issue(ctx, "tgus-1", "ua-1", "10.0.0.1")
	f.clock.Advance(time.Minute)

	second, err := f.tokens.Refresh(ctx, first.RefreshToken, "", "10.0.0.2")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.SessionID == first.SessionID || second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh did not rotate")
	}

	old, _ := f.store.Get(ctx, first.SessionID)
	if old.State != domain.SessionRotated || old.ReplacedBy != second.SessionID {
		t.Fatalf("old session = %s -> %q", old.State, old.ReplacedBy)
	}
	next, _ := f.store.Get(ctx, second.SessionID)
	if next.Device != "ua-1" || next.IPAddress != "10.0.0.2" {
		t.Fatalf("next device/ip = %q/%q", next.Device, next.IPAddress)
	}

	if _, err := f.tokens.ValidateAccess(ctx, first.AccessToken); !errors.Is(err, domain.ErrSessionRevoked) {
		t.Fatalf("old access err = %v, want SessionRevoked", err)
	}
	if _, err := f.tokens.ValidateAccess(ctx, second.AccessToken); err != nil {
		t.Fatalf("new access: %v", err)
	}
}

func TestTokenService_RefreshReuseRevokesAll(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()

	first, _ := f.tokens.Issue(ctx, "tgus-1", "", "")
	other, _ := f.tokens.Issue(ctx, "tgus-1", "", "")
	second, _ := f.tokens.Refresh(ctx, first.RefreshToken, "", "")

	_, err := f.tokens.Refresh(ctx, first.RefreshToken, "", "")
	if !errors.Is(err, domain.ErrTokenReused) {
		t.Fatalf("replay err = %v, want TokenReused", err)
	}

	for _, id := range []string{first.SessionID, other.SessionID, second.SessionID} {
		s, _ := f.store.Get(ctx, id)
		if s.State != domain.SessionRevoked {
			t.Errorf("session %s state = %s, want revoked", id, s.State)
		}
	}
	if _, err := f.tokens.Refresh(ctx, second.RefreshToken, "", ""); !errors.Is(err, domain.ErrTokenReused) {
		t.Fatalf("refresh of revoked successor err = %v, want TokenReused", err)
	}
}

func TestTokenService_RefreshErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("malformed", func(t *testing.T) {
		f := newTokenFixture(t)
		if _, err := f.tokens.Refresh(ctx, "nope", "", ""); !errors.Is(err, domain.ErrTokenInvalid) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		f := newTokenFixture(t)
		rt, _ := domain.GenerateCredential(domain.RefreshTokenPrefix)
		if _, err := f.tokens.Refresh(ctx, rt, "", ""); !errors.Is(err, domain.ErrTokenInvalid) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		f := newTokenFixture(t)
		pair, _ := f.tokens.Issue(ctx, "tgus-1", "", "")
		f.clock.Advance(24 * time.Hour)

		if _, err := f.tokens.Refresh(ctx, pair.RefreshToken, "", ""); !errors.Is(err, domain.ErrTokenExpired) {
			t.Fatalf("err = %v, want TokenExpired", err)
		}
		s, _ := f.store.Get(ctx, pair.SessionID)
		if s.State != domain.SessionRevoked || s.RevokeReason != domain.RevokeExpired {
			t.Fatalf("session = %s/%s", s.State, s.RevokeReason)
		}
	})
}

func TestTokenService_ConcurrentDoubleRefresh(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()
	pair, _ := f.tokens.Issue(ctx, "tgus-1", "", "")

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		reused  int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			next, err := f.tokens.Refresh(ctx, pair.RefreshToken, "", "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, next.SessionID)
			case errors.Is(err, domain.ErrTokenReused):
				reused++
			default:
				t.Errorf("Refresh: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(winners) != 1 || reused != workers-1 {
		t.Fatalf("winners=%d reused=%d, want 1 and %d", len(winners), reused, workers-1)
	}

	sessions, _ := f.store.ListByUser(ctx, "tgus-1")
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want original and one successor", len(sessions))
	}
	for _, s := range sessions {
		if s.State != domain.SessionRevoked {
			t.Errorf("session %s state = %s, want revoked", s.ID, s.State)
		}
	}
}

func TestTokenService_RevokeAllForUser(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()

	a, _ := f.tokens.Issue(ctx, "tgus-1", "", "")
	b, _ := f.tokens.Issue(ctx, "tgus-1", "", "")
	c, _ := f.tokens.Issue(ctx, "tgus-2", "", "")

	n, err := f.tokens.RevokeAllForUser(ctx, "tgus-1", domain.RevokeAdmin)
	if err != nil || n != 2 {
		t.Fatalf("RevokeAllForUser = %d, %v; want 2", n, err)
	}
	for _, pair := range []string{a.AccessToken, b.AccessToken} {
		if _, err := f.tokens.ValidateAccess(ctx, pair); !errors.Is(err, domain.ErrSessionRevoked) {
			t.Errorf("revoked access err = %v, want SessionRevoked", err)
		}
	}
	if _, err := f.tokens.ValidateAccess(ctx, c.AccessToken); err != nil {
		t.Fatalf("other user access: %v", err)
	}
}

func TestTokenService_RevokeIdempotentAndUnknown(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()
	pair, _ := f.tokens.Issue(ctx, "tgus-1", "", "")

	for i := 0; i < 2; i++ {
		if err := f.tokens.Revoke(ctx, pair.SessionID, domain.RevokeLogout); err != nil {
			t.Fatalf("Revoke #%d: %v", i, err)
		}
	}
	err := f.tokens.Revoke(ctx, "tgss-01j00000000000000000000000", domain.RevokeAdmin)
	if domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("unknown Revoke kind = %s, want NotFound", domain.KindOf(err))
	}
}

func TestTokenService_SweepAndListSessions(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()

	old, _ := f.tokens.Issue(ctx, "tgus-1", "", "")
	_ = f.tokens.Revoke(ctx, old.SessionID, domain.RevokeLogout)
	f.clock.Advance(23 * time.Hour)
	live, _ := f.tokens.Issue(ctx, "tgus-1", "", "")
	f.clock.Advance(2 * time.Hour)

	res, err := f.tokens.Sweep(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Purged != 1 || res.Expired != 0 {
		t.Fatalf("Sweep = %+v, want 1 purged", res)
	}

	views, err := f.tokens.ListSessions(ctx, "tgus-1")
	if err != nil || len(views) != 1 || views[0].ID != live.SessionID {
		t.Fatalf("ListSessions = %+v, %v", views, err)
	}

	f.clock.Advance(24 * time.Hour)
	res, _ = f.tokens.Sweep(ctx, 24*time.Hour)
	if res.Expired != 1 {
		t.Fatalf("second Sweep = %+v, want 1 expired", res)
	}
}

func TestTokenService_RunSweeperStopsOnCancel(t *testing.T) {
	f := newTokenFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.tokens.RunSweeper(ctx, time.Millisecond, time.Hour)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunSweeper did not stop")
	}
}
