// Package chunker splits document text into overlapping retrieval chunks.
package chunker

import "strings"

// Default splitter parameters, in characters.
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// Chunk is one piece of a document, ordered by Ordinal.
type Chunk struct {
	Ordinal int
	Content string
}

// Splitter produces fixed-size chunks with overlap, preferring paragraph
// boundaries so that chunks do not cut sentences mid-word more than needed.
type Splitter struct {
	size    int
	overlap int
}

// New creates a Splitter. Non-positive size falls back to DefaultChunkSize;
// an overlap that is not smaller than size is clamped to size/4.
func New(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}
	return &Splitter{size: size, overlap: overlap}
}

// Split divides text into chunks. Empty or blank text produces no chunks.
// Paragraphs (blank-line separated) are packed greedily; a paragraph longer
// than the chunk size is split at size boundaries with overlap.
func (s *Splitter) Split(text string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var pieces []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= s.size {
			pieces = append(pieces, para)
			continue
		}
		pieces = append(pieces, s.slide(para)...)
	}

	var chunks []Chunk
	var buf strings.Builder
	flush := func() {
		content := strings.TrimSpace(buf.String())
		buf.Reset()
		if content == "" {
			return
		}
		chunks = append(chunks, Chunk{Ordinal: len(chunks), Content: content})
	}

	for _, p := range pieces {
		if buf.Len() > 0 && buf.Len()+len(p)+2 > s.size {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(p)
	}
	flush()

	return chunks
}

// slide cuts an oversized paragraph into size-bounded windows with overlap.
func (s *Splitter) slide(text string) []string {
	var out []string
	step := s.size - s.overlap
	for start := 0; start < len(text); start += step {
		end := start + s.size
		if end > len(text) {
			end = len(text)
		}
		out = append(out, strings.TrimSpace(text[start:end]))
		if end == len(text) {
			break
		}
	}
	return out
}
