package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-orders/internal/domain/auth"
)

const (
	getAPIKeyByHashSQL = `SELECT id, key_hash, name, scopes, active
		FROM api_keys WHERE key_hash = $1 AND active = TRUE`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			key_hash = EXCLUDED.key_hash,
			name = EXCLUDED.name,
			scopes = EXCLUDED.scopes,
			active = EXCLUDED.active`
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository provides API key lookups backed by PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
// Returns auth.ErrNotFound when no matching key exists.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var info auth.APIKeyInfo
	err := r.pool.QueryRow(ctx, getAPIKeyByHashSQL, hash).Scan(
		&info.ID, &info.KeyHash, &info.Name, &info.Scopes, &info.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, fmt.Errorf("finding api key by hash: %w", err)
	}
	return &info, nil
}

// Upsert inserts or replaces the API key with the same id.
func (r *APIKeyRepository) Upsert(ctx context.Context, key auth.APIKeyInfo) error {
	_, err := r.pool.Exec(ctx, upsertAPIKeySQL, key.ID, key.KeyHash, key.Name, key.Scopes, key.Active)
	if err != nil {
		return fmt.Errorf("upserting api key %q: %w", key.ID, err)
	}
	return nil
}
