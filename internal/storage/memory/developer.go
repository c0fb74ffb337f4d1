package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/yndnr/tokgate/internal/core/domain"
	"github.com/yndnr/tokgate/internal/core/service"
)

var _ service.DeveloperRepository = (*DeveloperStore)(nil)

// DeveloperStore provides in-memory storage for developers.
type DeveloperStore struct {
	mu        sync.RWMutex
	byID      map[string]*domain.Developer
	byKeyHash map[string]string // api key hash -> id
	byClient  map[string]string // client id -> id
	byAppID   map[string]string // app id -> id
}

// NewDeveloperStore creates a new developer store.
func NewDeveloperStore() *DeveloperStore {
	return &DeveloperStore{
		byID:      make(map[string]*domain.Developer),
		byKeyHash: make(map[string]string),
		byClient:  make(map[string]string),
		byAppID:   make(map[string]string),
	}
}

// Create stores a new developer.
func (s *DeveloperStore) Create(_ context.Context, d *domain.Developer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byAppID[d.AppID]; exists {
		return domain.ErrAppIDTaken
	}
	if _, exists := s.byID[d.ID]; exists {
		return domain.ErrAPIKeyConflict
	}
	if _, exists := s.byKeyHash[d.APIKeyHash]; exists {
		return domain.ErrAPIKeyConflict
	}
	if _, exists := s.byClient[d.ClientID]; exists {
		return domain.ErrAPIKeyConflict
	}

	s.byID[d.ID] = d.Clone()
	s.byKeyHash[d.APIKeyHash] = d.ID
	s.byClient[d.ClientID] = d.ID
	s.byAppID[d.AppID] = d.ID
	return nil
}

// Get retrieves a developer by ID.
func (s *DeveloperStore) Get(_ context.Context, id string) (*domain.Developer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(id)
}

func (s *DeveloperStore) getLocked(id string) (*domain.Developer, error) {
	d, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrDeveloperNotFound
	}
	return d.Clone(), nil
}

// GetByAPIKeyHash retrieves a developer by API key hash.
func (s *DeveloperStore) GetByAPIKeyHash(_ context.Context, hash string) (*domain.Developer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKeyHash[hash]
	if !ok {
		return nil, domain.ErrDeveloperNotFound
	}
	return s.getLocked(id)
}

// GetByClientID retrieves a developer by client ID.
func (s *DeveloperStore) GetByClientID(_ context.Context, clientID string) (*domain.Developer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byClient[clientID]
	if !ok {
		return nil, domain.ErrDeveloperNotFound
	}
	return s.getLocked(id)
}

// List returns all developers ordered by creation time.
func (s *DeveloperStore) List(_ context.Context) ([]*domain.Developer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Developer, 0, len(s.byID))
	for _, d := range s.byID {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetActive enables or disables a developer.
func (s *DeveloperStore) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return domain.ErrDeveloperNotFound
	}
	d.Active = active
	return nil
}

// UpdateAPIKey swaps the API key hash of a developer.
func (s *DeveloperStore) UpdateAPIKey(_ context.Context, id, hash, hint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return domain.ErrDeveloperNotFound
	}
	if owner, exists := s.byKeyHash[hash]; exists && owner != id {
		return domain.ErrAPIKeyConflict
	}
	delete(s.byKeyHash, d.APIKeyHash)
	d.APIKeyHash = hash
	d.APIKeyHint = hint
	s.byKeyHash[hash] = id
	return nil
}

// TouchLastUsed advances last_used_at.
func (s *DeveloperStore) TouchLastUsed(_ context.Context, id string, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return domain.ErrDeveloperNotFound
	}
	if at > d.LastUsedAt {
		d.LastUsedAt = at
	}
	return nil
}
