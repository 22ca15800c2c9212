// Package index provides the SQLite-backed retrieval index: the fingerprint
// registry, document chunks, and their sqlite-vec embeddings.
package index

import (
	"database/sql"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	path       TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	checksum   TEXT NOT NULL DEFAULT '',
	tags       TEXT NOT NULL DEFAULT '[]',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chunks (
	id       TEXT PRIMARY KEY,
	doc_path TEXT NOT NULL,
	ordinal  INTEGER NOT NULL,
	content  TEXT NOT NULL,
	UNIQUE(doc_path, ordinal)
);

CREATE INDEX IF NOT EXISTS idx_chunks_doc_path ON chunks(doc_path);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
	dims int
}

// Open opens (or creates) the SQLite database and applies the schema.
// dims fixes the embedding dimension of the vec0 virtual table; it must
// match the configured embedder.
func Open(dsn string, dims int) (*DB, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("index: invalid embedding dimensions %d", dims)
	}
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunk_vectors USING vec0(id TEXT PRIMARY KEY, embedding float[%d])`,
		dims,
	)
	if _, err := conn.Exec(vecDDL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply vector schema: %w", err)
	}
	return &DB{conn: conn, dims: dims}, nil
}

// Dimensions returns the embedding dimension the index was opened with.
func (db *DB) Dimensions() int {
	return db.dims
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
