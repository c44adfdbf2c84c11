// internal/core/db/bundles.go
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/qualify/internal/bundle"
	"github.com/solatis/qualify/internal/types"
)

/*
 * Bundle store: exported bundles keyed by UUIDv7 and grouped by name.
 *
 * Bundles are content-addressed within a name: saving a bundle whose
 * checksum already exists under that name returns the stored record instead
 * of inserting a duplicate. Bodies are stored exactly as bundle.Marshal
 * produces them and verified with bundle.Load on the way out.
 */

// BundleInfo describes a stored bundle without its body.
type BundleInfo struct {
	ID         types.BundleID `db:"bundle_id"`
	Name       string         `db:"name"`
	Version    string         `db:"version"`
	Type       string         `db:"bundle_type"`
	Checksum   string         `db:"checksum"`
	Normalized bool           `db:"normalized"`
	// CreatedAt is Unix milliseconds.
	CreatedAt int64 `db:"created_at"`
}

// Created returns the creation time.
func (i BundleInfo) Created() time.Time {
	return time.UnixMilli(i.CreatedAt).UTC()
}

type bundleRow struct {
	BundleInfo
	Body string `db:"body"`
}

// BundleStore persists bundles through named queries.
type BundleStore struct {
	queries *Queries
	logger  *slog.Logger
	clock   func() time.Time
}

// NewBundleStore creates a store; logger may be nil.
func NewBundleStore(queries *Queries, logger *slog.Logger) *BundleStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BundleStore{queries: queries, logger: logger, clock: time.Now}
}

// SchemaMigration is the migration that creates the bundles table.
const SchemaMigration = "001_initial_schema.sql"

// OpenBundleStore connects to dbURL and checks the schema is migrated.
// The caller closes the returned connection.
func OpenBundleStore(ctx context.Context, dbURL string, logger *slog.Logger) (*BundleStore, *sqlx.DB, error) {
	queries, conn, err := openMigrated(ctx, dbURL, SchemaMigration)
	if err != nil {
		return nil, nil, err
	}
	return NewBundleStore(queries, logger), conn, nil
}

// openMigrated connects to dbURL and fails unless migration is applied.
func openMigrated(ctx context.Context, dbURL, migration string) (*Queries, *sqlx.DB, error) {
	conn, err := Open(ctx, dbURL)
	if err != nil {
		return nil, nil, err
	}
	queries, err := LoadQueries(conn)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	var id string
	if err := queries.Get(ctx, "get-migration", &id, migration); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("migration %s not applied - run 'qualify migrate' first: %w", migration, err)
	}
	return queries, conn, nil
}

// Save stores b under name. The second result is false when an identical
// bundle was already stored under name.
func (s *BundleStore) Save(ctx context.Context, name string, b *bundle.Bundle) (BundleInfo, bool, error) {
	if name == "" {
		return BundleInfo{}, false, fmt.Errorf("%w: bundle name required", types.ErrValidation)
	}

	var existing BundleInfo
	err := s.queries.Get(ctx, "get-bundle-by-checksum", &existing, name, b.Metadata.Checksum)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return BundleInfo{}, false, fmt.Errorf("database error: %w", err)
	}

	body, err := bundle.Marshal(b)
	if err != nil {
		return BundleInfo{}, false, err
	}

	info := BundleInfo{
		ID:         types.NewBundleID(),
		Name:       name,
		Version:    b.Metadata.Version,
		Type:       string(b.Metadata.Type),
		Checksum:   b.Metadata.Checksum,
		Normalized: b.Metadata.Normalized,
		CreatedAt:  s.clock().UTC().UnixMilli(),
	}
	_, err = s.queries.Exec(ctx, "insert-bundle",
		info.ID, info.Name, info.Version, info.Type, info.Checksum, info.Normalized, info.CreatedAt, string(body))
	if err != nil {
		return BundleInfo{}, false, fmt.Errorf("database error: %w", err)
	}

	s.logger.Info("bundle stored", "bundle_id", info.ID, "name", name, "checksum", info.Checksum)
	return info, true, nil
}

// Get loads the bundle with id.
func (s *BundleStore) Get(ctx context.Context, id types.BundleID) (*bundle.Bundle, BundleInfo, error) {
	if _, err := types.ParseBundleID(string(id)); err != nil {
		return nil, BundleInfo{}, fmt.Errorf("%w: bundle id %q: %v", types.ErrValidation, id, err)
	}
	return s.load(ctx, "get-bundle", string(id))
}

// Latest loads the most recently stored bundle under name.
func (s *BundleStore) Latest(ctx context.Context, name string) (*bundle.Bundle, BundleInfo, error) {
	return s.load(ctx, "get-latest-bundle", name)
}

// List returns stored bundles, newest first within each name. An empty
// name lists every bundle.
func (s *BundleStore) List(ctx context.Context, name string) ([]BundleInfo, error) {
	var (
		infos []BundleInfo
		err   error
	)
	if name == "" {
		err = s.queries.Select(ctx, "list-bundles", &infos)
	} else {
		err = s.queries.Select(ctx, "list-bundles-by-name", &infos, name)
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return infos, nil
}

// Delete removes the bundle with id.
func (s *BundleStore) Delete(ctx context.Context, id types.BundleID) error {
	res, err := s.queries.Exec(ctx, "delete-bundle", string(id))
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", types.ErrBundleNotFound, id)
	}
	return nil
}

func (s *BundleStore) load(ctx context.Context, query, arg string) (*bundle.Bundle, BundleInfo, error) {
	var row bundleRow
	err := s.queries.Get(ctx, query, &row, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, BundleInfo{}, fmt.Errorf("%w: %s", types.ErrBundleNotFound, arg)
	}
	if err != nil {
		return nil, BundleInfo{}, fmt.Errorf("database error: %w", err)
	}
	b, err := bundle.Load([]byte(row.Body))
	if err != nil {
		return nil, BundleInfo{}, fmt.Errorf("stored bundle %s: %w", row.ID, err)
	}
	return b, row.BundleInfo, nil
}
