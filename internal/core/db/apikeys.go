package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/qualify/internal/types"
)

// APIKeysMigration is the migration that creates the api_keys table.
const APIKeysMigration = "002_api_keys.sql"

// APIKey is a stored API key. Only the HMAC of the key is kept.
type APIKey struct {
	ID         types.APIKeyID `db:"api_key_id" json:"id"`
	Name       string         `db:"name" json:"name"`
	KeyHash    string         `db:"key_hash" json:"-"`
	CreatedAt  int64          `db:"created_at" json:"createdAt"`
	LastUsedAt sql.NullInt64  `db:"last_used_at" json:"-"`
	RevokedAt  sql.NullInt64  `db:"revoked_at" json:"-"`
}

// Revoked reports whether the key has been revoked.
func (k APIKey) Revoked() bool { return k.RevokedAt.Valid }

// LastUsed returns when the key last authenticated a request, or the zero
// time if it never has.
func (k APIKey) LastUsed() time.Time {
	if !k.LastUsedAt.Valid {
		return time.Time{}
	}
	return time.UnixMilli(k.LastUsedAt.Int64).UTC()
}

// APIKeyStore persists API keys.
type APIKeyStore struct {
	queries *Queries
	clock   func() time.Time
}

// NewAPIKeyStore creates a store over loaded queries.
func NewAPIKeyStore(queries *Queries) *APIKeyStore {
	return &APIKeyStore{queries: queries, clock: time.Now}
}

// OpenAPIKeyStore connects to dbURL and checks the api_keys table exists.
// The caller closes the returned connection.
func OpenAPIKeyStore(ctx context.Context, dbURL string) (*APIKeyStore, *sqlx.DB, error) {
	queries, conn, err := openMigrated(ctx, dbURL, APIKeysMigration)
	if err != nil {
		return nil, nil, err
	}
	return NewAPIKeyStore(queries), conn, nil
}

// Create stores a key under name by its hash.
func (s *APIKeyStore) Create(ctx context.Context, name, keyHash string) (APIKey, error) {
	if name == "" {
		return APIKey{}, fmt.Errorf("%w: api key name required", types.ErrValidation)
	}
	if keyHash == "" {
		return APIKey{}, fmt.Errorf("%w: api key hash required", types.ErrValidation)
	}
	key := APIKey{
		ID:        types.NewAPIKeyID(),
		Name:      name,
		KeyHash:   keyHash,
		CreatedAt: s.clock().UnixMilli(),
	}
	if _, err := s.queries.Exec(ctx, "insert-api-key", string(key.ID), key.Name, key.KeyHash, key.CreatedAt); err != nil {
		return APIKey{}, fmt.Errorf("database error: %w", err)
	}
	return key, nil
}

// ByHash looks up the key with keyHash.
func (s *APIKeyStore) ByHash(ctx context.Context, keyHash string) (APIKey, error) {
	var key APIKey
	err := s.queries.Get(ctx, "get-api-key-by-hash", &key, keyHash)
	if errors.Is(err, sql.ErrNoRows) {
		return APIKey{}, types.ErrAPIKeyNotFound
	}
	if err != nil {
		return APIKey{}, fmt.Errorf("database error: %w", err)
	}
	return key, nil
}

// List returns every key, oldest first.
func (s *APIKeyStore) List(ctx context.Context) ([]APIKey, error) {
	var keys []APIKey
	if err := s.queries.Select(ctx, "list-api-keys", &keys); err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return keys, nil
}

// Revoke marks the key with id revoked. Revoking twice is not found.
func (s *APIKeyStore) Revoke(ctx context.Context, id types.APIKeyID) error {
	res, err := s.queries.Exec(ctx, "revoke-api-key", s.clock().UnixMilli(), string(id))
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", types.ErrAPIKeyNotFound, id)
	}
	return nil
}

// Touch records that the key with id was used at.
func (s *APIKeyStore) Touch(ctx context.Context, id types.APIKeyID, at time.Time) error {
	if _, err := s.queries.Exec(ctx, "update-last-used", at.UnixMilli(), string(id)); err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	return nil
}
