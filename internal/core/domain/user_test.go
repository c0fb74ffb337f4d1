package domain

import (
	"strings"
	"testing"
)

func TestNewUser(t *testing.T) {
	u, err := NewUser("mika", "  Mika@Example.COM ", "s3cret-pass")
	if err != nil {
		t.Fatalf("NewUser() error = %v", err)
	}
	if u.Email != "mika@example.com" {
		t.Errorf("Email = %q, want normalized", u.Email)
	}
	if !IsValidUserID(u.ID) {
		t.Errorf("ID = %q", u.ID)
	}
	if !VerifySecret("s3cret-pass", u.PasswordHash) {
		t.Error("password should verify")
	}
	if strings.Contains(u.PasswordHash, "s3cret-pass") {
		t.Error("password stored in plaintext")
	}
}

func TestNewUser_Invalid(t *testing.T) {
	tests := []struct {
		name, username, email, password string
	}{
		{"empty username", "", "a@b.co", "password1"},
		{"bad email", "a", "not-an-email", "password1"},
		{"display name email", "a", "Mika <m@example.com>", "password1"},
		{"short password", "a", "a@b.co", "short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewUser(tt.username, tt.email, tt.password)
			if KindOf(err) != KindInvalidArgument {
				t.Errorf("error = %v, want InvalidArgument", err)
			}
		})
	}
}
