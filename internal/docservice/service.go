// Package docservice coordinates corpus storage, the retrieval index, and
// question answering for the API and MCP layers.
package docservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/starford/ansuz/internal/answer"
	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/embed"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/storage"
)

// DocumentDetail is the full representation of a corpus document.
type DocumentDetail struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	Checksum    string         `json:"checksum"`
	Tags        []string       `json:"tags"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Chunks      int            `json:"chunks"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// DocumentListItem is a lightweight item in a list response.
type DocumentListItem struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchHit is one similarity-search result.
type SearchHit struct {
	Path     string  `json:"path"`
	Ordinal  int     `json:"ordinal"`
	Content  string  `json:"content"`
	Distance float64 `json:"distance"`
}

// Service coordinates storage, index, and answer operations.
type Service struct {
	store  storage.Provider
	db     *index.DB
	ing    *index.Ingestor
	emb    embed.Embedder
	ans    *answer.Answerer
	logger *slog.Logger
}

// NewService creates a new document service.
func NewService(store storage.Provider, db *index.DB, ing *index.Ingestor, emb embed.Embedder, ans *answer.Answerer, logger *slog.Logger) *Service {
	return &Service{store: store, db: db, ing: ing, emb: emb, ans: ans, logger: logger}
}

// GetDocument reads a document from storage and enriches it with index state.
func (s *Service) GetDocument(_ context.Context, path string) (*DocumentDetail, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return s.buildDetail(path, data)
}

// CreateDocument writes a new document and ingests it into the index.
func (s *Service) CreateDocument(ctx context.Context, path string, content []byte) (*DocumentDetail, error) {
	if !s.store.Accepts(path) {
		return nil, fmt.Errorf("docservice: unsupported extension: %s", path)
	}
	if _, err := s.store.Read(path); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if err := s.ing.IngestFile(ctx, s.db, path, content); err != nil {
		return nil, err
	}
	return s.buildDetail(path, content)
}

// UpdateDocument writes updated content with optimistic concurrency and
// re-ingests it.
func (s *Service) UpdateDocument(ctx context.Context, path string, content []byte, ifMatch string) (*DocumentDetail, error) {
	existing, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, apperr.ErrConflict
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if err := s.ing.IngestFile(ctx, s.db, path, content); err != nil {
		return nil, err
	}
	return s.buildDetail(path, content)
}

// DeleteDocument removes a document from storage and the index.
func (s *Service) DeleteDocument(ctx context.Context, path string) error {
	if err := s.store.Delete(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	return s.db.DeleteDocument(ctx, path)
}

// ListDocuments returns paginated registry entries with optional tag filter.
func (s *Service) ListDocuments(_ context.Context, limit, offset int, tag, sort string) ([]DocumentListItem, int, error) {
	rows, total, err := s.db.ListDocuments(limit, offset, tag, sort)
	if err != nil {
		return nil, 0, err
	}
	items := make([]DocumentListItem, len(rows))
	for i, r := range rows {
		items[i] = DocumentListItem{
			Path:      r.Path,
			Title:     r.Title,
			Checksum:  r.Checksum,
			Tags:      r.Tags,
			UpdatedAt: r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search embeds the query and returns the k nearest chunks.
func (s *Service) Search(ctx context.Context, query string, k int) ([]SearchHit, error) {
	vectors, err := s.emb.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("docservice: embed query: %w", err)
	}
	matches, err := s.db.Query(ctx, vectors[0], k)
	if err != nil {
		return nil, err
	}
	hits := make([]SearchHit, len(matches))
	for i, m := range matches {
		hits[i] = SearchHit{Path: m.Path, Ordinal: m.Ordinal, Content: m.Content, Distance: m.Distance}
	}
	return hits, nil
}

// Ask answers a question against the corpus.
func (s *Service) Ask(ctx context.Context, question string) (*answer.Answer, error) {
	return s.ans.Ask(ctx, question)
}

// Sync runs one full reconciliation pass over the corpus.
func (s *Service) Sync(ctx context.Context) error {
	return index.Sync(ctx, s.db, s.store, s.ing, s.logger)
}

// Changed returns the paths a reconciliation pass would process right now.
func (s *Service) Changed(_ context.Context) (changed, skipped []string, err error) {
	return index.Changed(s.db, s.store)
}

func (s *Service) buildDetail(path string, data []byte) (*DocumentDetail, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	tags := res.Tags
	if tags == nil {
		tags = []string{}
	}
	chunks, _ := s.db.ChunkCount(path)
	return &DocumentDetail{
		Path:        path,
		Title:       res.Title,
		Content:     string(data),
		Checksum:    checksum.Sum(data),
		Tags:        tags,
		Frontmatter: res.Frontmatter,
		Chunks:      chunks,
		UpdatedAt:   time.Now(),
	}, nil
}
