package badgerdb

import (
	"context"
	"errors"
	"sort"

	"github.com/dgraph-io/badger/v3"

	"github.com/yndnr/tokgate/internal/core/domain"
	"github.com/yndnr/tokgate/internal/core/service"
)

var _ service.DeveloperRepository = (*DeveloperStore)(nil)

const (
	pfxDeveloper   = "d"
	pfxDevKeyHash  = "dk"
	pfxDevClientID = "dc"
	pfxDevAppID    = "da"
)

// DeveloperStore stores developers in Badger.
type DeveloperStore struct {
	e *Engine
}

func developerKey(id string) []byte { return key(pfxDeveloper, id) }

func loadDeveloper(txn *badger.Txn, id string) (*domain.Developer, error) {
	var d domain.Developer
	if err := getJSON(txn, developerKey(id), &d); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.ErrDeveloperNotFound
		}
		return nil, err
	}
	return &d, nil
}

func loadDeveloperByIndex(txn *badger.Txn, indexKey []byte) (*domain.Developer, error) {
	id, err := getString(txn, indexKey)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.ErrDeveloperNotFound
		}
		return nil, err
	}
	return loadDeveloper(txn, id)
}

// Create stores a new developer. The record lives under d/{id}; each index
// key maps to the id.
func (st *DeveloperStore) Create(ctx context.Context, d *domain.Developer) error {
	return st.e.update(ctx, func(txn *badger.Txn) error {
		primary := developerKey(d.ID)
		found, err := exists(txn, primary)
		if err != nil {
			return err
		}
		if found {
			return domain.ErrAPIKeyConflict
		}

		indexes := []struct {
			k   []byte
			err error
		}{
			{key(pfxDevAppID, d.AppID), domain.ErrAppIDTaken},
			{key(pfxDevKeyHash, d.APIKeyHash), domain.ErrAPIKeyConflict},
			{key(pfxDevClientID, d.ClientID), domain.ErrAPIKeyConflict},
		}
		for _, ix := range indexes {
			found, err := exists(txn, ix.k)
			if err != nil {
				return err
			}
			if found {
				return ix.err
			}
		}

		if err := setJSON(txn, primary, d); err != nil {
			return err
		}
		for _, ix := range indexes {
			if err := txn.Set(ix.k, []byte(d.ID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get retrieves a developer by ID.
func (st *DeveloperStore) Get(ctx context.Context, id string) (*domain.Developer, error) {
	var out *domain.Developer
	err := st.e.view(ctx, func(txn *badger.Txn) error {
		var err error
		out, err = loadDeveloper(txn, id)
		return err
	})
	return out, err
}

// GetByAPIKeyHash retrieves a developer by API key hash.
func (st *DeveloperStore) GetByAPIKeyHash(ctx context.Context, hash string) (*domain.Developer, error) {
	var out *domain.Developer
	err := st.e.view(ctx, func(txn *badger.Txn) error {
		var err error
		out, err = loadDeveloperByIndex(txn, key(pfxDevKeyHash, hash))
		return err
	})
	return out, err
}

// GetByClientID retrieves a developer by client ID.
func (st *DeveloperStore) GetByClientID(ctx context.Context, clientID string) (*domain.Developer, error) {
	var out *domain.Developer
	err := st.e.view(ctx, func(txn *badger.Txn) error {
		var err error
		out, err = loadDeveloperByIndex(txn, key(pfxDevClientID, clientID))
		return err
	})
	return out, err
}

// List returns all developers ordered by ID.
func (st *DeveloperStore) List(ctx context.Context) ([]*domain.Developer, error) {
	var out []*domain.Developer
	err := st.e.view(ctx, func(txn *badger.Txn) error {
		for _, k := range scanKeys(txn, key(pfxDeveloper, "")) {
			var d domain.Developer
			if err := getJSON(txn, k, &d); err != nil {
				return err
			}
			out = append(out, &d)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (st *DeveloperStore) mutate(ctx context.Context, id string, fn func(txn *badger.Txn, d *domain.Developer) error) error {
	return st.e.update(ctx, func(txn *badger.Txn) error {
		d, err := loadDeveloper(txn, id)
		if err != nil {
			return err
		}
		if err := fn(txn, d); err != nil {
			return err
		}
		return setJSON(txn, developerKey(id), d)
	})
}

// SetActive enables or disables a developer.
func (st *DeveloperStore) SetActive(ctx context.Context, id string, active bool) error {
	return st.mutate(ctx, id, func(_ *badger.Txn, d *domain.Developer) error {
		d.Active = active
		return nil
	})
}

// UpdateAPIKey swaps the API key hash of a developer.
func (st *DeveloperStore) UpdateAPIKey(ctx context.Context, id, hash, hint string) error {
	return st.mutate(ctx, id, func(txn *badger.Txn, d *domain.Developer) error {
		newKey := key(pfxDevKeyHash, hash)
		owner, err := getString(txn, newKey)
		switch {
		case err == nil && owner != id:
			return domain.ErrAPIKeyConflict
		case err != nil && !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		if err := txn.Delete(key(pfxDevKeyHash, d.APIKeyHash)); err != nil {
			return err
		}
		d.APIKeyHash = hash
		d.APIKeyHint = hint
		return txn.Set(newKey, []byte(id))
	})
}

// TouchLastUsed advances last_used_at.
func (st *DeveloperStore) TouchLastUsed(ctx context.Context, id string, at int64) error {
	return st.mutate(ctx, id, func(_ *badger.Txn, d *domain.Developer) error {
		if at > d.LastUsedAt {
			d.LastUsedAt = at
		}
		return nil
	})
}
