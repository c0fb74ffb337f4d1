package badgerdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/dgraph-io/badger/v3"

	"github.com/yndnr/tokgate/internal/core/domain"
	"github.com/yndnr/tokgate/internal/core/service"
)

var _ service.SessionRepository = (*SessionStore)(nil)

const (
	pfxSession     = "s"
	pfxRefreshHash = "sr"
	pfxAccessHash  = "sa"
	pfxUserSession = "su"
)

// SessionStore stores sessions in Badger.
type SessionStore struct {
	e *Engine
}

func sessionKey(id string) []byte { return key(pfxSession, id) }

func userSessionKey(userID, id string) []byte { return key(pfxUserSession, userID, id) }

func loadSession(txn *badger.Txn, id string) (*domain.Session, error) {
	var s domain.Session
	if err := getJSON(txn, sessionKey(id), &s); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

func loadSessionByIndex(txn *badger.Txn, indexKey []byte) (*domain.Session, error) {
	id, err := getString(txn, indexKey)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return loadSession(txn, id)
}

// insertSession writes a new session and its index keys, failing on any
// existing id or token hash.
func insertSession(txn *badger.Txn, s *domain.Session) error {
	refreshKey := key(pfxRefreshHash, s.RefreshTokenHash)
	accessKey := key(pfxAccessHash, s.AccessTokenHash)
	for _, k := range [][]byte{sessionKey(s.ID), refreshKey, accessKey} {
		found, err := exists(txn, k)
		if err != nil {
			return err
		}
		if found {
			return domain.ErrSessionConflict
		}
	}
	if err := setJSON(txn, sessionKey(s.ID), s); err != nil {
		return err
	}
	if err := txn.Set(refreshKey, []byte(s.ID)); err != nil {
		return err
	}
	if err := txn.Set(accessKey, []byte(s.ID)); err != nil {
		return err
	}
	return txn.Set(userSessionKey(s.UserID, s.ID), nil)
}

// Create inserts a new session.
func (st *SessionStore) Create(ctx context.Context, s *domain.Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return st.e.update(ctx, func(txn *badger.Txn) error {
		return insertSession(txn, s)
	})
}

// Get retrieves a session by ID.
func (st *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	var out *domain.Session
	err := st.e.view(ctx, func(txn *badger.Txn) error {
		var err error
		out, err = loadSession(txn, id)
		return err
	})
	return out, err
}

// GetByRefreshHash retrieves a session by refresh token hash.
func (st *SessionStore) GetByRefreshHash(ctx context.Context, hash string) (*domain.Session, error) {
	var out *domain.Session
	err := st.e.view(ctx, func(txn *badger.Txn) error {
		var err error
		out, err = loadSessionByIndex(txn, key(pfxRefreshHash, hash))
		return err
	})
	return out, err
}

// GetByAccessHash retrieves a session by access token hash.
func (st *SessionStore) GetByAccessHash(ctx context.Context, hash string) (*domain.Session, error) {
	var out *domain.Session
	err := st.e.view(ctx, func(txn *badger.Txn) error {
		var err error
		out, err = loadSessionByIndex(txn, key(pfxAccessHash, hash))
		return err
	})
	return out, err
}

// Rotate swaps oldID to Rotated and inserts next in one transaction. Two
// concurrent rotations of the same session both read it as Active; Badger
// rejects the second commit with ErrConflict, and its retry then observes
// the Rotated state.
func (st *SessionStore) Rotate(ctx context.Context, oldID string, next *domain.Session) error {
	if err := next.Validate(); err != nil {
		return err
	}
	return st.e.update(ctx, func(txn *badger.Txn) error {
		old, err := loadSession(txn, oldID)
		if err != nil {
			return err
		}
		if err := old.MarkRotated(next.ID, next.CreatedAt); err != nil {
			return err
		}
		if err := setJSON(txn, sessionKey(old.ID), old); err != nil {
			return err
		}
		return insertSession(txn, next)
	})
}

// Revoke marks one session Revoked.
func (st *SessionStore) Revoke(ctx context.Context, id string, reason domain.RevokeReason, now int64) (bool, error) {
	var changed bool
	err := st.e.update(ctx, func(txn *badger.Txn) error {
		changed = false
		s, err := loadSession(txn, id)
		if err != nil {
			return err
		}
		if !s.MarkRevoked(reason, now) {
			return nil
		}
		changed = true
		return setJSON(txn, sessionKey(id), s)
	})
	return changed, err
}

func (st *SessionStore) userSessionIDs(ctx context.Context, userID string) ([]string, error) {
	prefix := key(pfxUserSession, userID, "")
	var ids []string
	err := st.e.view(ctx, func(txn *badger.Txn) error {
		for _, k := range scanKeys(txn, prefix) {
			ids = append(ids, string(bytes.TrimPrefix(k, prefix)))
		}
		return nil
	})
	return ids, err
}

// RevokeAllByUser revokes every non-revoked session of a user, one
// transaction per session.
func (st *SessionStore) RevokeAllByUser(ctx context.Context, userID string, reason domain.RevokeReason, now int64) (int, error) {
	ids, err := st.userSessionIDs(ctx, userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		changed, err := st.Revoke(ctx, id, reason, now)
		if errors.Is(err, domain.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		if changed {
			n++
		}
	}
	return n, nil
}

// ListByUser returns a user's sessions, newest first.
func (st *SessionStore) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	ids, err := st.userSessionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Session, 0, len(ids))
	err = st.e.view(ctx, func(txn *badger.Txn) error {
		for _, id := range ids {
			s, err := loadSession(txn, id)
			if errors.Is(err, domain.ErrSessionNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID > out[j].ID
	})
	return out, err
}

// Sweep expires and purges sessions. Candidates are collected in a read
// transaction and each change re-checks its condition in its own write.
func (st *SessionStore) Sweep(ctx context.Context, now, purgeBefore int64) (service.SweepResult, error) {
	var res service.SweepResult
	var expire, purge []string

	err := st.e.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = key(pfxSession, "")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var s domain.Session
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &s) }); err != nil {
				return err
			}
			switch {
			case s.IsActive() && s.Expired(now):
				expire = append(expire, s.ID)
			case !s.IsActive() && s.UpdatedAt < purgeBefore:
				purge = append(purge, s.ID)
			}
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	for _, id := range expire {
		err := st.e.update(ctx, func(txn *badger.Txn) error {
			s, err := loadSession(txn, id)
			if err != nil {
				return err
			}
			if !s.IsActive() || !s.Expired(now) || !s.MarkRevoked(domain.RevokeExpired, now) {
				return errSkip
			}
			return setJSON(txn, sessionKey(id), s)
		})
		switch {
		case err == nil:
			res.Expired++
		case errors.Is(err, errSkip), errors.Is(err, domain.ErrSessionNotFound):
		default:
			return res, err
		}
	}

	for _, id := range purge {
		err := st.e.update(ctx, func(txn *badger.Txn) error {
			s, err := loadSession(txn, id)
			if err != nil {
				return err
			}
			if s.IsActive() || s.UpdatedAt >= purgeBefore {
				return errSkip
			}
			return deleteSession(txn, s)
		})
		switch {
		case err == nil:
			res.Purged++
		case errors.Is(err, errSkip), errors.Is(err, domain.ErrSessionNotFound):
		default:
			return res, err
		}
	}
	return res, nil
}

// errSkip aborts a transaction whose precondition no longer holds.
var errSkip = errors.New("skip")

func deleteSession(txn *badger.Txn, s *domain.Session) error {
	for _, k := range [][]byte{
		key(pfxRefreshHash, s.RefreshTokenHash),
		key(pfxAccessHash, s.AccessTokenHash),
		userSessionKey(s.UserID, s.ID),
		sessionKey(s.ID),
	} {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
