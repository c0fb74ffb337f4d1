package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/yndnr/tokgate/internal/core/domain"
	"github.com/yndnr/tokgate/internal/core/service"
	"github.com/yndnr/tokgate/pkg/cmap"
)

var _ service.SessionRepository = (*SessionStore)(nil)

// sessionRecord guards one session. Every read clones under mu and every
// transition mutates under mu.
type sessionRecord struct {
	mu sync.Mutex
	s  *domain.Session
}

func (r *sessionRecord) snapshot() *domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s.Clone()
}

// idSet is the per-user session index. A set marked dead has been removed
// from the user map and must not receive new ids.
type idSet struct {
	mu   sync.Mutex
	ids  map[string]struct{}
	dead bool
}

// SessionStore provides in-memory session storage with multiple indexes.
type SessionStore struct {
	// Primary index: SessionID -> record
	sessions *cmap.Map[*sessionRecord]

	// Secondary indexes: token hash -> SessionID
	byRefresh *cmap.Map[string]
	byAccess  *cmap.Map[string]

	// Secondary index: UserID -> set of SessionIDs
	byUser *cmap.Map[*idSet]
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:  cmap.New[*sessionRecord](),
		byRefresh: cmap.New[string](),
		byAccess:  cmap.New[string](),
		byUser:    cmap.New[*idSet](),
	}
}

// Create inserts a new session.
func (s *SessionStore) Create(_ context.Context, session *domain.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}
	return s.insert(session.Clone())
}

func (s *SessionStore) insert(session *domain.Session) error {
	rec := &sessionRecord{s: session}
	if !s.sessions.SetIfAbsent(session.ID, rec) {
		return domain.ErrSessionConflict
	}
	if !s.byRefresh.SetIfAbsent(session.RefreshTokenHash, session.ID) {
		s.sessions.Delete(session.ID)
		return domain.ErrSessionConflict
	}
	if !s.byAccess.SetIfAbsent(session.AccessTokenHash, session.ID) {
		s.byRefresh.Delete(session.RefreshTokenHash)
		s.sessions.Delete(session.ID)
		return domain.ErrSessionConflict
	}
	s.addToUser(session.UserID, session.ID)
	return nil
}

// remove drops a session and its index entries. Index entries are only
// removed while they still point at this session.
func (s *SessionStore) remove(session *domain.Session) {
	matchID := func(v string) bool { return v == session.ID }
	s.byRefresh.CompareAndDelete(session.RefreshTokenHash, matchID)
	s.byAccess.CompareAndDelete(session.AccessTokenHash, matchID)
	s.removeFromUser(session.UserID, session.ID)
	s.sessions.Delete(session.ID)
}

func (s *SessionStore) addToUser(userID, id string) {
	for {
		set := s.byUser.GetOrCreate(userID, func() *idSet {
			return &idSet{ids: make(map[string]struct{})}
		})
		set.mu.Lock()
		if set.dead {
			set.mu.Unlock()
			continue
		}
		set.ids[id] = struct{}{}
		set.mu.Unlock()
		return
	}
}

func (s *SessionStore) removeFromUser(userID, id string) {
	set, ok := s.byUser.Get(userID)
	if !ok {
		return
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	delete(set.ids, id)
	if len(set.ids) == 0 && !set.dead {
		set.dead = true
		s.byUser.CompareAndDelete(userID, func(v *idSet) bool { return v == set })
	}
}

func (s *SessionStore) userSessionIDs(userID string) []string {
	set, ok := s.byUser.Get(userID)
	if !ok {
		return nil
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	ids := make([]string, 0, len(set.ids))
	for id := range set.ids {
		ids = append(ids, id)
	}
	return ids
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(_ context.Context, id string) (*domain.Session, error) {
	rec, ok := s.sessions.Get(id)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return rec.snapshot(), nil
}

// GetByRefreshHash retrieves a session by its refresh token hash.
func (s *SessionStore) GetByRefreshHash(ctx context.Context, hash string) (*domain.Session, error) {
	id, ok := s.byRefresh.Get(hash)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s.Get(ctx, id)
}

// GetByAccessHash retrieves a session by its access token hash.
func (s *SessionStore) GetByAccessHash(ctx context.Context, hash string) (*domain.Session, error) {
	id, ok := s.byAccess.Get(hash)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s.Get(ctx, id)
}

// Rotate retires oldID in favour of next.
//
// next is inserted before the old record is swapped, so by the time any
// caller can observe oldID as Rotated, next is already reachable through
// the user index and a concurrent revoke-all will catch it.
func (s *SessionStore) Rotate(_ context.Context, oldID string, next *domain.Session) error {
	if err := next.Validate(); err != nil {
		return err
	}
	rec, ok := s.sessions.Get(oldID)
	if !ok {
		return domain.ErrSessionNotFound
	}

	stored := next.Clone()
	if err := s.insert(stored); err != nil {
		return err
	}

	rec.mu.Lock()
	err := rec.s.MarkRotated(next.ID, next.CreatedAt)
	rec.mu.Unlock()
	if err != nil {
		s.remove(stored)
		return err
	}
	return nil
}

// Revoke marks one session Revoked.
func (s *SessionStore) Revoke(_ context.Context, id string, reason domain.RevokeReason, now int64) (bool, error) {
	rec, ok := s.sessions.Get(id)
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.s.MarkRevoked(reason, now), nil
}

// RevokeAllByUser revokes every non-revoked session of a user.
func (s *SessionStore) RevokeAllByUser(ctx context.Context, userID string, reason domain.RevokeReason, now int64) (int, error) {
	n := 0
	for _, id := range s.userSessionIDs(userID) {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		changed, err := s.Revoke(ctx, id, reason, now)
		if err != nil {
			// Purged between the index snapshot and now.
			continue
		}
		if changed {
			n++
		}
	}
	return n, nil
}

// ListByUser returns a user's sessions, newest first.
func (s *SessionStore) ListByUser(_ context.Context, userID string) ([]*domain.Session, error) {
	ids := s.userSessionIDs(userID)
	out := make([]*domain.Session, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.sessions.Get(id); ok {
			out = append(out, rec.snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Sweep expires and purges sessions.
func (s *SessionStore) Sweep(ctx context.Context, now, purgeBefore int64) (service.SweepResult, error) {
	var res service.SweepResult
	var purge []*domain.Session

	s.sessions.Range(func(_ string, rec *sessionRecord) bool {
		if ctx.Err() != nil {
			return false
		}
		rec.mu.Lock()
		switch {
		case rec.s.IsActive() && rec.s.Expired(now):
			rec.s.MarkRevoked(domain.RevokeExpired, now)
			res.Expired++
		case !rec.s.IsActive() && rec.s.UpdatedAt < purgeBefore:
			purge = append(purge, rec.s.Clone())
		}
		rec.mu.Unlock()
		return true
	})

	for _, session := range purge {
		s.remove(session)
		res.Purged++
	}
	return res, ctx.Err()
}

// Count returns the number of stored sessions.
func (s *SessionStore) Count() int {
	return s.sessions.Len()
}
