package badgerdb

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v3"

	"github.com/yndnr/tokgate/internal/core/domain"
	"github.com/yndnr/tokgate/internal/core/service"
)

var _ service.UserRepository = (*UserStore)(nil)

const (
	pfxUser      = "u"
	pfxUserEmail = "ue"
)

// UserStore stores users in Badger.
type UserStore struct {
	e *Engine
}

func userKey(id string) []byte { return key(pfxUser, id) }

func loadUser(txn *badger.Txn, id string) (*domain.User, error) {
	var u domain.User
	if err := getJSON(txn, userKey(id), &u); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Create stores a new user.
func (st *UserStore) Create(ctx context.Context, u *domain.User) error {
	return st.e.update(ctx, func(txn *badger.Txn) error {
		emailKey := key(pfxUserEmail, u.Email)
		found, err := exists(txn, emailKey)
		if err != nil {
			return err
		}
		if found {
			return domain.ErrEmailTaken
		}
		if err := setJSON(txn, userKey(u.ID), u); err != nil {
			return err
		}
		return txn.Set(emailKey, []byte(u.ID))
	})
}

// Get retrieves a user by ID.
func (st *UserStore) Get(ctx context.Context, id string) (*domain.User, error) {
	var out *domain.User
	err := st.e.view(ctx, func(txn *badger.Txn) error {
		var err error
		out, err = loadUser(txn, id)
		return err
	})
	return out, err
}

// GetByEmail retrieves a user by normalized email.
func (st *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var out *domain.User
	err := st.e.view(ctx, func(txn *badger.Txn) error {
		id, err := getString(txn, key(pfxUserEmail, domain.NormalizeEmail(email)))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrUserNotFound
			}
			return err
		}
		out, err = loadUser(txn, id)
		return err
	})
	return out, err
}

func (st *UserStore) mutate(ctx context.Context, id string, fn func(*domain.User)) error {
	return st.e.update(ctx, func(txn *badger.Txn) error {
		u, err := loadUser(txn, id)
		if err != nil {
			return err
		}
		fn(u)
		return setJSON(txn, userKey(id), u)
	})
}

// UpdateLastLogin records a successful login.
func (st *UserStore) UpdateLastLogin(ctx context.Context, id string, at int64) error {
	return st.mutate(ctx, id, func(u *domain.User) { u.LastLoginAt = at })
}

// SetActive enables or disables a user.
func (st *UserStore) SetActive(ctx context.Context, id string, active bool) error {
	return st.mutate(ctx, id, func(u *domain.User) { u.Active = active })
}
