package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// DocumentRow represents a row in the documents table. Checksum is the
// fingerprint recorded at the last successful reconciliation of Path.
type DocumentRow struct {
	Path      string
	Title     string
	Checksum  string
	Tags      []string
	UpdatedAt time.Time
}

// ChunkRecord is one derived record of a document: its chunk content and
// embedding, keyed by ordinal within the document.
type ChunkRecord struct {
	Ordinal   int
	Content   string
	Embedding []float32
}

// Match is one similarity-query hit. Distance is the vector distance
// reported by sqlite-vec (lower = more similar).
type Match struct {
	Path     string
	Ordinal  int
	Content  string
	Distance float64
}

// chunkID builds the primary key for a chunk. The path prefix keeps
// generations of the same document from colliding across ordinals.
func chunkID(path string, ordinal int) string {
	return fmt.Sprintf("%s#%04d", path, ordinal)
}

// ReplaceDocument swaps the derived records of doc.Path for recs and records
// the new fingerprint, all in one transaction. Committing makes delete,
// insert, and registry update visible together, so readers never observe a
// mix of old and new chunks and the fingerprint advances only on success.
func (db *DB) ReplaceDocument(ctx context.Context, doc DocumentRow, recs []ChunkRecord) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := deleteChunksTx(ctx, tx, doc.Path); err != nil {
		return err
	}

	insChunk, err := tx.PrepareContext(ctx, `INSERT INTO chunks (id, doc_path, ordinal, content) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare chunk insert: %w", err)
	}
	defer insChunk.Close()
	insVec, err := tx.PrepareContext(ctx, `INSERT INTO chunk_vectors (id, embedding) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare vector insert: %w", err)
	}
	defer insVec.Close()

	for _, rec := range recs {
		id := chunkID(doc.Path, rec.Ordinal)
		if _, err := insChunk.ExecContext(ctx, id, doc.Path, rec.Ordinal, rec.Content); err != nil {
			return fmt.Errorf("index: insert chunk %s: %w", id, err)
		}
		blob, err := sqlite_vec.SerializeFloat32(rec.Embedding)
		if err != nil {
			return fmt.Errorf("index: serialize embedding %s: %w", id, err)
		}
		if _, err := insVec.ExecContext(ctx, id, blob); err != nil {
			return fmt.Errorf("index: insert vector %s: %w", id, err)
		}
	}

	tagsJSON, _ := json.Marshal(doc.Tags)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (path, title, checksum, tags, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title      = excluded.title,
			checksum   = excluded.checksum,
			tags       = excluded.tags,
			updated_at = excluded.updated_at
	`, doc.Path, doc.Title, doc.Checksum, string(tagsJSON), doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert document: %w", err)
	}

	return tx.Commit()
}

// DeleteDocument removes a document's registry row and all its derived records.
func (db *DB) DeleteDocument(ctx context.Context, path string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := deleteChunksTx(ctx, tx, path); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete document: %w", err)
	}

	return tx.Commit()
}

// deleteChunksTx removes all chunks and vectors tagged with path. vec0 tables
// cannot join in DELETE, so chunk ids are collected first and the vectors are
// deleted by explicit id list.
func deleteChunksTx(ctx context.Context, tx *sql.Tx, path string) error {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM chunks WHERE doc_path = ?`, path)
	if err != nil {
		return fmt.Errorf("index: select chunk ids: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("index: scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("index: iterate chunk ids: %w", err)
	}
	rows.Close()

	if len(ids) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
		args := make([]any, len(ids))
		for i, id := range ids {
			args[i] = id
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_vectors WHERE id IN (`+placeholders+`)`, args...); err != nil {
			return fmt.Errorf("index: delete vectors: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE doc_path = ?`, path); err != nil {
		return fmt.Errorf("index: delete chunks: %w", err)
	}
	return nil
}

// Query runs a k-nearest-neighbour search over chunk embeddings and joins
// the matches back to their content.
func (db *DB) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		k = 5
	}
	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return nil, fmt.Errorf("index: serialize query vector: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT c.doc_path, c.ordinal, c.content, v.distance
		FROM chunk_vectors v
		JOIN chunks c ON c.id = v.id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, blob, k)
	if err != nil {
		return nil, fmt.Errorf("index: query: %w", err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.Path, &m.Ordinal, &m.Content, &m.Distance); err != nil {
			return nil, fmt.Errorf("index: scan match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetChecksum returns the recorded fingerprint for a document, or empty
// string if the path has never been reconciled.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM documents WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// AllChecksums returns the full fingerprint registry keyed by path.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// ChunkCount returns the number of derived records tagged with path.
func (db *DB) ChunkCount(path string) (int, error) {
	var n int
	err := db.conn.QueryRow(`SELECT count(*) FROM chunks WHERE doc_path = ?`, path).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("index: chunk count: %w", err)
	}
	return n, nil
}

// GetDocument returns the registry row for path, or nil when absent.
func (db *DB) GetDocument(path string) (*DocumentRow, error) {
	row := db.conn.QueryRow(`SELECT path, title, checksum, tags, updated_at FROM documents WHERE path = ?`, path)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: get document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns a page of registry rows plus the total count.
// tag filters on the JSON-encoded tags column; sort is one of
// "updated_at" (default, newest first), "title", or "path".
func (db *DB) ListDocuments(limit, offset int, tag, sort string) ([]DocumentRow, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	var args []any
	if tag != "" {
		where = `WHERE tags LIKE ?`
		args = append(args, `%"`+tag+`"%`)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM documents `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count documents: %w", err)
	}

	order := `updated_at DESC`
	switch sort {
	case "title":
		order = `title COLLATE NOCASE ASC`
	case "path":
		order = `path ASC`
	}

	args = append(args, limit, offset)
	rows, err := db.conn.Query(`
		SELECT path, title, checksum, tags, updated_at
		FROM documents `+where+`
		ORDER BY `+order+`
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *doc)
	}
	return out, total, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanDocument(row scannable) (*DocumentRow, error) {
	var doc DocumentRow
	var tagsJSON string
	if err := row.Scan(&doc.Path, &doc.Title, &doc.Checksum, &tagsJSON, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &doc.Tags); err != nil {
		doc.Tags = []string{}
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	return &doc, nil
}
