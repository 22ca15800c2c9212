// Package embed turns text into embedding vectors for similarity search.
package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

// Embedder converts a batch of texts into one vector per text.
// Implementations must return vectors of a fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Local is a deterministic, offline embedder: tokens are hashed into buckets
// and the resulting vector is L2-normalised. It has no semantic power but
// gives stable nearest-neighbour behaviour for development and tests.
type Local struct {
	dims int
}

// NewLocal creates a Local embedder with the given dimension count.
func NewLocal(dims int) *Local {
	if dims <= 0 {
		dims = 256
	}
	return &Local{dims: dims}
}

func (l *Local) Dimensions() int { return l.dims }

// Embed hashes each whitespace token of each text into a bucket and counts
// occurrences, then normalises. Never fails.
func (l *Local) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, l.dims)
		for _, tok := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(tok))
			vec[int(h.Sum32())%l.dims]++
		}
		normalise(vec)
		out[i] = vec
	}
	return out, nil
}

func normalise(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
}

// validateBatch rejects calls an Embedder cannot satisfy before any network
// round-trip happens.
func validateBatch(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("embed: empty batch")
	}
	return nil
}
