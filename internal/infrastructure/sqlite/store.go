package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zjrosen/tagsync/internal/cachemanager"
	"github.com/zjrosen/tagsync/internal/host"
	"github.com/zjrosen/tagsync/internal/log"
)

// blobKey identifies one cached value within a Store's scope.
type blobKey string

func newBlobKey(objectID, key string) blobKey {
	return blobKey(objectID + "\x00" + key)
}

// CacheOptions configures the read-through cache in front of a Store.
type CacheOptions struct {
	Enabled bool
	TTL     time.Duration
}

// Store is a host.Store over one scope of the blobs table.
type Store struct {
	conn  *sql.DB
	scope string
	cache *cachemanager.ReadThroughCache[blobKey, string]
}

var (
	_ host.Store        = (*Store)(nil)
	_ host.ObjectLister = (*Store)(nil)
)

// Store returns the store for scope.
func (db *DB) Store(scope string, opts CacheOptions) *Store {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = cachemanager.DefaultExpiration
	}
	s := &Store{conn: db.conn, scope: scope}
	mgr := cachemanager.NewInMemoryCacheManager[blobKey, string]("blobs:"+scope, ttl, cachemanager.DefaultCleanupInterval)
	s.cache = cachemanager.NewReadThroughCache[blobKey, string](mgr, s.load, cachemanager.ReadThroughOptions{
		TTL:      ttl,
		Sliding:  true,
		Disabled: !opts.Enabled,
	})
	return s
}

// Read returns the value for (objectID, key), or "" when absent.
func (s *Store) Read(ctx context.Context, objectID, key string) (string, error) {
	return s.cache.Get(ctx, newBlobKey(objectID, key))
}

func (s *Store) load(ctx context.Context, k blobKey) (string, error) {
	objectID, key := splitBlobKey(k)
	var value string
	err := s.conn.QueryRowContext(ctx,
		`SELECT value FROM blobs WHERE scope = ? AND object_id = ? AND key = ?`,
		s.scope, objectID, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %q for object %q: %w", key, objectID, err)
	}
	return value, nil
}

// Write upserts every value in one transaction.
func (s *Store) Write(ctx context.Context, writes ...host.Write) error {
	if len(writes) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO blobs (scope, object_id, key, value, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (scope, object_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, w := range writes {
		if _, err := stmt.ExecContext(ctx, s.scope, w.ObjectID, w.Key, w.Value); err != nil {
			return fmt.Errorf("writing %q for object %q: %w", w.Key, w.ObjectID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	for _, w := range writes {
		s.cache.Put(ctx, newBlobKey(w.ObjectID, w.Key), w.Value)
	}
	log.Debug(log.CatStore, "values written", "scope", s.scope, "count", len(writes))
	return nil
}

// ObjectIDs returns the ids of objects holding a non-empty value for key, in id order.
func (s *Store) ObjectIDs(ctx context.Context, key string) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT object_id FROM blobs WHERE scope = ? AND key = ? AND object_id != '' AND value != '' ORDER BY object_id`,
		s.scope, key)
	if err != nil {
		return nil, fmt.Errorf("listing objects with %q: %w", key, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning object id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func splitBlobKey(k blobKey) (objectID, key string) {
	objectID, key, _ = strings.Cut(string(k), "\x00")
	return objectID, key
}
