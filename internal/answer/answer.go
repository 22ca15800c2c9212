// Package answer implements retrieval-augmented question answering over the
// corpus index: embed the question, fetch the nearest chunks, and generate a
// grounded answer with source citations.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/ansuz/internal/embed"
	"github.com/starford/ansuz/internal/index"
)

// DefaultTopK is the number of chunks retrieved per question when the
// configuration names none.
const DefaultTopK = 4

// Searcher is the slice of the index the answerer needs.
type Searcher interface {
	Query(ctx context.Context, vector []float32, k int) ([]index.Match, error)
}

// Generator produces the answer text from a system instruction and a user
// prompt carrying the retrieved context.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Source is one cited chunk backing an answer.
type Source struct {
	Path     string  `json:"path"`
	Ordinal  int     `json:"ordinal"`
	Distance float64 `json:"distance"`
	Content  string  `json:"content"`
}

// Answer is the result of asking a question against the corpus.
type Answer struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
}

// Answerer wires retrieval and generation together.
type Answerer struct {
	db   Searcher
	emb  embed.Embedder
	gen  Generator
	topK int
}

// New creates an Answerer. topK <= 0 falls back to DefaultTopK.
func New(db Searcher, emb embed.Embedder, gen Generator, topK int) *Answerer {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Answerer{db: db, emb: emb, gen: gen, topK: topK}
}

const systemPrompt = `You answer questions about a document corpus. ` +
	`Use only the provided context. If the context does not contain the answer, say so. ` +
	`Cite sources by their bracketed number, e.g. [1].`

// Ask embeds the question, retrieves the top-k chunks, and generates an
// answer grounded in them. An empty retrieval result short-circuits with a
// fixed "no relevant documents" answer rather than letting the generator
// hallucinate.
func (a *Answerer) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("answer: empty question")
	}

	vectors, err := a.emb.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("answer: embed question: %w", err)
	}

	matches, err := a.db.Query(ctx, vectors[0], a.topK)
	if err != nil {
		return nil, fmt.Errorf("answer: query index: %w", err)
	}
	if len(matches) == 0 {
		return &Answer{Text: "No relevant documents found in the corpus.", Sources: []Source{}}, nil
	}

	sources := make([]Source, len(matches))
	var ctxBlock strings.Builder
	for i, m := range matches {
		sources[i] = Source{Path: m.Path, Ordinal: m.Ordinal, Distance: m.Distance, Content: m.Content}
		fmt.Fprintf(&ctxBlock, "[%d] %s#%d\n%s\n\n", i+1, m.Path, m.Ordinal, m.Content)
	}

	user := fmt.Sprintf("Context:\n\n%sQuestion: %s", ctxBlock.String(), question)
	text, err := a.gen.Generate(ctx, systemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("answer: generate: %w", err)
	}

	return &Answer{Text: strings.TrimSpace(text), Sources: sources}, nil
}
