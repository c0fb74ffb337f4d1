package memory

import (
	"context"
	"sync"

	"github.com/yndnr/tokgate/internal/core/domain"
	"github.com/yndnr/tokgate/internal/core/service"
)

var _ service.UserRepository = (*UserStore)(nil)

// UserStore provides in-memory storage for users.
type UserStore struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string
}

// NewUserStore creates a new user store.
func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
	}
}

// Create stores a new user.
func (s *UserStore) Create(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[u.Email]; exists {
		return domain.ErrEmailTaken
	}
	if _, exists := s.byID[u.ID]; exists {
		return domain.ErrInvalidArgument.WithDetails("duplicate user id")
	}
	s.byID[u.ID] = u.Clone()
	s.byEmail[u.Email] = u.ID
	return nil
}

// Get retrieves a user by ID.
func (s *UserStore) Get(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u.Clone(), nil
}

// GetByEmail retrieves a user by normalized email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[domain.NormalizeEmail(email)]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return s.Get(ctx, id)
}

// UpdateLastLogin records a successful login.
func (s *UserStore) UpdateLastLogin(_ context.Context, id string, at int64) error {
	return s.mutate(id, func(u *domain.User) { u.LastLoginAt = at })
}

// SetActive enables or disables a user.
func (s *UserStore) SetActive(_ context.Context, id string, active bool) error {
	return s.mutate(id, func(u *domain.User) { u.Active = active })
}

func (s *UserStore) mutate(id string, fn func(*domain.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	fn(u)
	return nil
}
