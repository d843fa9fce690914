package domain

import (
	"context"
	"time"
)

// Page marks where a page of the source file starts inside Document.Text.
// Offset is measured in runes.
type Page struct {
	Number int
	Offset int
}

// Document is one uploaded file after extraction and cleaning.
type Document struct {
	ID        string
	Name      string
	Path      string
	Ext       string
	Size      int64
	Pages     []Page
	Text      string
	CreatedAt time.Time
}

// PageAt returns the 1-based page number containing the rune offset, or 0
// when the document has no page information.
func (d Document) PageAt(offset int) int {
	page := 0
	for _, p := range d.Pages {
		if p.Offset > offset {
			break
		}
		page = p.Number
	}
	return page
}

// Chunk is a contiguous span of a document's text. Offset and Length are rune
// positions in Document.Text.
type Chunk struct {
	ID         string
	DocumentID string
	Source     string
	Index      int
	Offset     int
	Length     int
	Page       int
	Text       string
}

// Record is the stored embedding of exactly one chunk.
type Record struct {
	Chunk  Chunk
	Vector []float64
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// SearchFilter narrows a similarity search. Zero value means no filter.
type SearchFilter struct {
	DocumentID string
}

// SourceInfo describes a stored document as seen from the vector store.
type SourceInfo struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name"`
	Chunks     int    `json:"chunks"`
}

// Message is a single chat message sent to the language model.
type Message struct {
	Role    string
	Content string
}

// ChatOptions are per-call generation settings.
type ChatOptions struct {
	Temperature float64
	NumCtx      int
	MaxTokens   int
}

// SourceRef points an answer back to the chunk it was grounded on.
type SourceRef struct {
	DocumentID string  `json:"document_id"`
	Name       string  `json:"name"`
	Page       int     `json:"page,omitempty"`
	Score      float64 `json:"score"`
}

// Turn is one question/answer exchange of the current session.
type Turn struct {
	ID         string         `json:"id"`
	Question   string         `json:"question"`
	PromptType string         `json:"prompt_type"`
	Answer     string         `json:"answer"`
	Sources    []SourceRef    `json:"sources"`
	Contexts   []SearchResult `json:"-"`
	HasContext bool           `json:"has_context"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Loader extracts text from a file on disk.
type Loader interface {
	Load(ctx context.Context, path string) (*Document, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// VectorStore persists embedding records and supports similarity search.
// Upsert replaces records that share a chunk ID.
type VectorStore interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, records []Record) error
	Search(ctx context.Context, vector []float64, topK int, filter SearchFilter) ([]SearchResult, error)
	DeleteDocument(ctx context.Context, documentID string) (int, error)
	Sources(ctx context.Context) ([]SourceInfo, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Close() error
}

// LLM is a chat model served by a local model server.
type LLM interface {
	Name() string
	Model() string
	SetModel(model string)
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error)
	Models(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
