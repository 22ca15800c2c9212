package index

import "context"

// DocumentIndex defines the interface for retrieval-index operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type DocumentIndex interface {
	ReplaceDocument(ctx context.Context, doc DocumentRow, recs []ChunkRecord) error
	DeleteDocument(ctx context.Context, path string) error
	Query(ctx context.Context, vector []float32, k int) ([]Match, error)
	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	ChunkCount(path string) (int, error)
	GetDocument(path string) (*DocumentRow, error)
	ListDocuments(limit, offset int, tag, sort string) ([]DocumentRow, int, error)
	Dimensions() int
	Close() error
}

// Verify *DB satisfies DocumentIndex at compile time.
var _ DocumentIndex = (*DB)(nil)
