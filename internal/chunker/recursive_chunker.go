// Package chunker splits cleaned documents into overlapping chunks. Every
// chunk's text is an exact rune span of the document text.
package chunker

import (
	"slices"
	"strconv"
	"strings"

	"legalqa/internal/domain"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 100
)

// DefaultSeparators are tried in order when looking for a break point.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "。", " "}

// RecursiveChunker cuts windows of at most size runes, ending each window at
// the strongest separator found in its second half.
type RecursiveChunker struct {
	size       int
	overlap    int
	separators [][]rune
}

// Option configures a RecursiveChunker.
type Option func(*RecursiveChunker)

// WithChunkSize sets the maximum chunk length in runes.
func WithChunkSize(size int) Option {
	return func(c *RecursiveChunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets how many runes consecutive chunks share.
func WithOverlap(overlap int) Option {
	return func(c *RecursiveChunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// WithSeparators replaces the break point separators.
func WithSeparators(seps []string) Option {
	return func(c *RecursiveChunker) {
		if len(seps) > 0 {
			c.separators = toRunes(seps)
		}
	}
}

func NewRecursiveChunker(opts ...Option) *RecursiveChunker {
	c := &RecursiveChunker{
		size:       DefaultChunkSize,
		overlap:    DefaultOverlap,
		separators: toRunes(DefaultSeparators),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

func (c *RecursiveChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	runes := []rune(document.Text)
	n := len(runes)
	var chunks []domain.Chunk
	for start := 0; start < n; {
		end := min(start+c.size, n)
		if end < n {
			end = c.breakPoint(runes, start, end)
		}
		if text := runes[start:end]; strings.TrimSpace(string(text)) != "" {
			chunks = append(chunks, newChunk(document, len(chunks), start, text))
		}
		if end == n {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks, nil
}

// breakPoint returns the position just after the last occurrence of the
// highest priority separator inside [start+size/2, end), or end.
func (c *RecursiveChunker) breakPoint(runes []rune, start, end int) int {
	lo := start + (end-start)/2
	for _, sep := range c.separators {
		for i := end - len(sep); i >= lo; i-- {
			if slices.Equal(runes[i:i+len(sep)], sep) {
				return i + len(sep)
			}
		}
	}
	return end
}

func newChunk(doc domain.Document, index, offset int, text []rune) domain.Chunk {
	return domain.Chunk{
		ID:         doc.ID + ":" + strconv.Itoa(index),
		DocumentID: doc.ID,
		Source:     doc.Name,
		Index:      index,
		Offset:     offset,
		Length:     len(text),
		Page:       doc.PageAt(offset),
		Text:       string(text),
	}
}

func toRunes(seps []string) [][]rune {
	out := make([][]rune, 0, len(seps))
	for _, s := range seps {
		if s != "" {
			out = append(out, []rune(s))
		}
	}
	return out
}
