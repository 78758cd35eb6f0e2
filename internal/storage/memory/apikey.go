package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/xenking/kart-orders/internal/domain/auth"
)

var _ auth.Repository = (*APIKeyRepository)(nil)

type APIKeyRepository struct {
	mu   sync.RWMutex
	keys map[string]auth.APIKeyInfo // by id
}

func NewAPIKeyRepository() *APIKeyRepository {
	return &APIKeyRepository{
		keys: make(map[string]auth.APIKeyInfo),
	}
}

func (r *APIKeyRepository) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, k := range r.keys {
		if k.Active && k.KeyHash == hash {
			k.Scopes = slices.Clone(k.Scopes)
			return &k, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *APIKeyRepository) Upsert(_ context.Context, key auth.APIKeyInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key.Scopes = slices.Clone(key.Scopes)
	r.keys[key.ID] = key
	return nil
}
