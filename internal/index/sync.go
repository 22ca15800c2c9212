package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/chunker"
	"github.com/starford/ansuz/internal/embed"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/storage"
)

// Ingestor turns raw document bytes into derived records: parse, chunk,
// embed, then replace the document's records atomically.
type Ingestor struct {
	emb   embed.Embedder
	split *chunker.Splitter
}

// NewIngestor creates an Ingestor from an embedder and a splitter.
func NewIngestor(emb embed.Embedder, split *chunker.Splitter) *Ingestor {
	return &Ingestor{emb: emb, split: split}
}

// IngestFile reconciles one document: current content in, derived records
// and fingerprint out. The registry row is written only when every step
// succeeded, so a failed path stays "changed" for the next run.
func (in *Ingestor) IngestFile(ctx context.Context, db *DB, path string, data []byte) error {
	res, err := parser.Parse(data)
	if err != nil {
		return fmt.Errorf("ingest %s: parse: %w", path, err)
	}

	chunks := in.split.Split(res.Body)

	var recs []ChunkRecord
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}
		vectors, err := in.emb.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("ingest %s: embed: %w", path, err)
		}
		recs = make([]ChunkRecord, len(chunks))
		for i, c := range chunks {
			recs[i] = ChunkRecord{Ordinal: c.Ordinal, Content: c.Content, Embedding: vectors[i]}
		}
	}

	tags := res.Tags
	if tags == nil {
		tags = []string{}
	}
	doc := DocumentRow{
		Path:      path,
		Title:     res.Title,
		Checksum:  checksum.Sum(data),
		Tags:      tags,
		UpdatedAt: time.Now(),
	}
	return db.ReplaceDocument(ctx, doc, recs)
}

// Changed scans the corpus and returns the paths whose current fingerprint
// differs from the registry (including never-seen paths), sorted. It is
// read-only: the registry is updated by Sync after successful ingestion.
// Unreadable files are returned in skipped.
func Changed(db *DB, store storage.Provider) (changed, skipped []string, err error) {
	metas, skipped, err := store.List("")
	if err != nil {
		return nil, nil, err
	}
	registry, err := db.AllChecksums()
	if err != nil {
		return nil, nil, err
	}
	for _, m := range metas {
		if registry[m.Path] != m.Checksum {
			changed = append(changed, m.Path)
		}
	}
	sort.Strings(changed)
	return changed, skipped, nil
}

// Sync walks the corpus and brings the index up to date:
//   - new/changed files are chunked, embedded, and upserted
//   - files removed from disk are deleted from the index
//
// Failures are isolated per path: a path that could not be reconciled keeps
// its old registry fingerprint and is retried on the next run.
func Sync(ctx context.Context, db *DB, store storage.Provider, ing *Ingestor, logger *slog.Logger) error {
	metas, skipped, err := store.List("")
	if err != nil {
		return err
	}
	for _, p := range skipped {
		logger.Warn("sync: unreadable file skipped", slog.String("path", p))
	}

	registry, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if registry[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := ing.IngestFile(ctx, db, m.Path, data); err != nil {
			logger.Warn("sync: ingest failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: ingested", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range registry {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteDocument(ctx, p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}
