// Package sqlite implements host.Store on an SQLite database.
//
// Values live in one table keyed by (scope, object_id, key). A scope names one
// document, so several documents can share a database file. The document-level
// key/value pairs use an empty object_id.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/zjrosen/tagsync/internal/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS blobs (
	scope      TEXT NOT NULL,
	object_id  TEXT NOT NULL DEFAULT '',
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (scope, object_id, key)
);

CREATE INDEX IF NOT EXISTS idx_blobs_scope_key ON blobs (scope, key);
`

// DB owns the database connection.
type DB struct {
	conn *sql.DB
	path string
}

// NewDB opens (creating if needed) the database at path and ensures the schema.
// The parent directory is created with 0700 permissions.
func NewDB(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	log.Debug(log.CatStore, "database opened", "path", path)
	return &DB{conn: conn, path: path}, nil
}

// Close closes the connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}
