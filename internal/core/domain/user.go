package domain

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

// User constraints.
const (
	UserIDPrefix = "tgus-"

	MinPasswordLength = 8
	MaxPasswordLength = 256
	maxUsernameLength = 64
	maxEmailLength    = 254
)

// User is an identity record. Only LastLoginAt and Active change after creation.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
	Active       bool   `json:"active"`
	CreatedAt    int64  `json:"created_at"`
	LastLoginAt  int64  `json:"last_login_at"`
}

// NewUser validates the input and returns a user with a hashed password.
func NewUser(username, email, password string) (*User, error) {
	username = strings.TrimSpace(username)
	email = NormalizeEmail(email)

	var violations []string
	if n := utf8.RuneCountInString(username); n == 0 || n > maxUsernameLength {
		violations = append(violations, "username must be 1-64 characters")
	}
	if !ValidEmail(email) {
		violations = append(violations, "invalid email")
	}
	if n := len(password); n < MinPasswordLength || n > MaxPasswordLength {
		violations = append(violations, "password must be 8-256 bytes")
	}
	if len(violations) > 0 {
		return nil, ErrInvalidArgument.WithDetails(strings.Join(violations, "; "))
	}

	id, err := newPrefixedULID(UserIDPrefix)
	if err != nil {
		return nil, err
	}
	hash, err := HashSecret(password)
	if err != nil {
		return nil, err
	}

	return &User{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    nowMillis(),
	}, nil
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether email is a bare, well-formed address.
func ValidEmail(email string) bool {
	if email == "" || len(email) > maxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// IsValidUserID checks the user ID format.
func IsValidUserID(id string) bool {
	return hasULIDSuffix(id, UserIDPrefix)
}

// Clone returns a copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// UserView is a user without the password credential.
type UserView struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Active      bool   `json:"active"`
	CreatedAt   int64  `json:"created_at"`
	LastLoginAt int64  `json:"last_login_at"`
}

// View strips the password hash from u.
func (u *User) View() UserView {
	return UserView{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Active:      u.Active,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}
