package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/yndnr/tokgate/internal/core/domain"
	"github.com/yndnr/tokgate/internal/core/service"
	"github.com/yndnr/tokgate/internal/storage/memory"
)

func TestIdentityService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	f := newTokenFixture(t)
	users := memory.NewUserStore()
	svc := service.NewIdentityService(users, f.tokens, service.WithClock(f.clock.Now))

	user, err := svc.Register(ctx, "alice", "alice@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Register(ctx, "alice", "ALICE@example.com", "another password"); !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("duplicate Register err = %v", err)
	}

	pair, err := svc.Login(ctx, "Alice@Example.com", "correct horse battery", "ua", "10.0.0.1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	p, err := f.tokens.ValidateAccess(ctx, pair.AccessToken)
	if err != nil || p.UserID != user.ID {
		t.Fatalf("ValidateAccess = %+v, %v", p, err)
	}
	got, _ := users.Get(ctx, user.ID)
	if got.LastLoginAt != f.clock.Now().UnixMilli() {
		t.Fatalf("LastLoginAt = %d", got.LastLoginAt)
	}
}

func TestIdentityService_LoginFailuresAreUniform(t *testing.T) {
	ctx := context.Background()
	f := newTokenFixture(t)
	users := memory.NewUserStore()
	svc := service.NewIdentityService(users, f.tokens)

	disabled, _ := svc.Register(ctx, "bob", "bob@example.com", "correct horse battery")
	_ = users.SetActive(ctx, disabled.ID, false)
	_, _ = svc.Register(ctx, "carol", "carol@example.com", "correct horse battery")

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown email", "nobody@example.com", "correct horse battery"},
		{"wrong password", "carol@example.com", "wrong password!"},
		{"disabled user", "bob@example.com", "correct horse battery"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(ctx, tt.email, tt.password, "", "")
			if !errors.Is(err, domain.ErrInvalidCredentials) {
				t.Fatalf("err = %v, want InvalidCredentials", err)
			}
		})
	}
}
