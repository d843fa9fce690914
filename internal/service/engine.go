// Package service wires loading, chunking, embedding, retrieval and the
// language model into the question answering engine used by every front end.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"legalqa/internal/cleaner"
	"legalqa/internal/domain"
	"legalqa/internal/prompt"
	"legalqa/internal/retention"
)

const (
	DefaultTopK        = 4
	DefaultSummaryTopK = 10
)

// Deps are the components the engine drives.
type Deps struct {
	Loader     domain.Loader
	Chunker    domain.Chunker
	Embedder   domain.Embedder
	Store      domain.VectorStore
	LLM        domain.LLM
	Summarizer domain.Summarizer
	Retention  *retention.Manager
}

// Options tune retrieval and generation.
type Options struct {
	TopK        int
	SummaryTopK int
	// Threshold is the minimum cosine similarity a chunk needs to be used as context.
	Threshold        float64
	Temperature      float64
	NumCtx           int
	PreviewSentences int
	SaveOriginals    bool
	AutoDeleteTemp   bool
	// FallbackModels are offered when the model server cannot list its models.
	FallbackModels []string
}

// IngestResult describes a newly indexed document.
type IngestResult struct {
	Document     domain.Document `json:"-"`
	DocumentID   string          `json:"document_id"`
	Name         string          `json:"name"`
	Pages        int             `json:"pages"`
	Stats        cleaner.Stats   `json:"stats"`
	Chunks       int             `json:"chunks"`
	Replaced     int             `json:"replaced"`
	TotalRecords int             `json:"total_records"`
	Preview      string          `json:"preview,omitempty"`
}

// Status is a snapshot of the engine and its model server.
type Status struct {
	LLM          string   `json:"llm"`
	LLMReachable bool     `json:"llm_reachable"`
	LLMError     string   `json:"llm_error,omitempty"`
	Model        string   `json:"model"`
	Models       []string `json:"models"`
	Embedder     string   `json:"embedder"`
	// EmbedderError is set when a remote embedder does not answer.
	EmbedderError string              `json:"embedder_error,omitempty"`
	Records       int                 `json:"records"`
	HasDocuments  bool                `json:"has_documents"`
	Sources       []domain.SourceInfo `json:"sources"`
}

// pinger is implemented by embedders that talk to a server.
type pinger interface {
	Ping(ctx context.Context) error
}

// Engine answers questions about uploaded documents. Operations that change
// stored data are serialised.
type Engine struct {
	deps Deps
	opts Options
	log  *log.Logger
	now  func() time.Time

	mu sync.Mutex

	histMu  sync.RWMutex
	history []domain.Turn
}

// NewEngine creates an engine. Deps must be fully populated.
func NewEngine(deps Deps, opts Options, logger *log.Logger) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.SummaryTopK <= 0 {
		opts.SummaryTopK = DefaultSummaryTopK
	}
	if opts.PreviewSentences <= 0 {
		opts.PreviewSentences = 3
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Engine{deps: deps, opts: opts, log: logger, now: time.Now}
}

// Ingest loads, chunks, embeds and stores the file at path. A previous
// upload of the same file, or of another file with the same name, is
// replaced so re-uploading never duplicates records.
func (e *Engine) Ingest(ctx context.Context, path string) (*IngestResult, error) {
	start := e.now()
	doc, err := e.deps.Loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	chunks, err := e.deps.Chunker.Chunk(*doc)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", doc.Name, err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrEmptyDocument, doc.Name)
	}

	records := make([]domain.Record, len(chunks))
	for i, ch := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := e.deps.Embedder.Embed(ctx, ch.Text)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d of %s: %w", i, doc.Name, err)
		}
		records[i] = domain.Record{Chunk: ch, Vector: vec}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.deps.Store.Init(ctx, len(records[0].Vector)); err != nil {
		return nil, fmt.Errorf("init vector store: %w", err)
	}
	sources, err := e.deps.Store.Sources(ctx)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", doc.Name, err)
	}
	existed := false
	for _, s := range sources {
		if s.DocumentID != doc.ID {
			continue
		}
		existed = true
		// Same bytes chunked differently: stale chunk IDs would survive an upsert.
		if s.Chunks != len(records) {
			if _, err := e.deps.Store.DeleteDocument(ctx, doc.ID); err != nil {
				return nil, fmt.Errorf("store %s: %w", doc.Name, err)
			}
		}
	}
	if err := e.deps.Store.Upsert(ctx, records); err != nil {
		if !existed {
			if _, rbErr := e.deps.Store.DeleteDocument(ctx, doc.ID); rbErr != nil && !errors.Is(rbErr, domain.ErrNotFound) {
				e.log.Error("rollback failed", "document", doc.ID, "err", rbErr)
			}
		}
		return nil, fmt.Errorf("store %s: %w", doc.Name, err)
	}
	replaced := e.replaceNamesakes(ctx, doc, sources)
	if e.opts.SaveOriginals {
		if _, err := e.deps.Retention.SaveOriginal(doc.ID, doc.Name, path); err != nil {
			e.log.Warn("keep original file", "name", doc.Name, "err", err)
		}
	}

	total, err := e.deps.Store.Count(ctx)
	if err != nil {
		return nil, err
	}
	preview, err := e.deps.Summarizer.Summarize(doc.Text, e.opts.PreviewSentences)
	if err != nil {
		e.log.Warn("preview", "name", doc.Name, "err", err)
	}

	e.log.Info("ingested document",
		"name", doc.Name,
		"id", doc.ID,
		"pages", len(doc.Pages),
		"chunks", len(chunks),
		"replaced", replaced,
		"duration", e.now().Sub(start).Round(time.Millisecond))

	return &IngestResult{
		Document:     *doc,
		DocumentID:   doc.ID,
		Name:         doc.Name,
		Pages:        len(doc.Pages),
		Stats:        cleaner.TextStats(doc.Text),
		Chunks:       len(chunks),
		Replaced:     replaced,
		TotalRecords: total,
		Preview:      preview,
	}, nil
}

// replaceNamesakes removes earlier uploads that share doc's name once the new
// records are stored. It returns the number of records removed.
func (e *Engine) replaceNamesakes(ctx context.Context, doc *domain.Document, sources []domain.SourceInfo) int {
	removed := 0
	for _, s := range sources {
		if s.Name != doc.Name || s.DocumentID == doc.ID {
			continue
		}
		n, err := e.deps.Retention.DeleteDocument(ctx, s.DocumentID)
		if err != nil {
			e.log.Warn("remove previous upload", "name", doc.Name, "document", s.DocumentID, "err", err)
			continue
		}
		removed += n
	}
	return removed
}

// Ask answers question from the stored documents. When nothing is stored or
// nothing relevant is found, a fixed answer is returned without calling the
// model. Model failures are returned as errors.
func (e *Engine) Ask(ctx context.Context, question string, pt prompt.Type) (*domain.Turn, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}
	return e.answer(ctx, question, pt, e.opts.TopK, domain.SearchFilter{}, question)
}

// Summarize summarises one stored document, or all of them when source is
// empty. source may be a document ID or a file name.
func (e *Engine) Summarize(ctx context.Context, source string) (*domain.Turn, error) {
	source = strings.TrimSpace(source)
	var filter domain.SearchFilter
	label := "all documents"
	if source != "" {
		info, err := e.findSource(ctx, source)
		if err != nil {
			return nil, err
		}
		filter.DocumentID = info.DocumentID
		label = info.Name
	}
	query := "summary of the parties, obligations, rights, dates, amounts and termination terms of " + label
	return e.answer(ctx, "Summarize "+label, prompt.Summary, e.opts.SummaryTopK, filter, query)
}

func (e *Engine) answer(ctx context.Context, question string, pt prompt.Type, topK int, filter domain.SearchFilter, query string) (*domain.Turn, error) {
	start := e.now()
	turn := domain.Turn{
		ID:         uuid.NewString(),
		Question:   question,
		PromptType: string(pt),
		CreatedAt:  start,
	}

	count, err := e.deps.Store.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		turn.Answer = prompt.NoContext
		e.record(turn)
		return &turn, nil
	}

	vec, err := e.deps.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	results, err := e.deps.Store.Search(ctx, vec, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	// summaries use whatever the document holds, questions need relevance
	if pt != prompt.Summary {
		results = slices.DeleteFunc(results, func(r domain.SearchResult) bool { return r.Score < e.opts.Threshold })
	}
	if len(results) == 0 {
		e.log.Debug("no relevant chunks", "question", question, "threshold", e.opts.Threshold)
		turn.Answer = prompt.LowRelevance(question)
		e.record(turn)
		return &turn, nil
	}

	msgs, err := prompt.Build(pt, question, results)
	if err != nil {
		return nil, err
	}
	out, err := e.deps.LLM.Chat(ctx, msgs, domain.ChatOptions{
		Temperature: e.opts.Temperature,
		NumCtx:      e.opts.NumCtx,
	})
	if err != nil {
		e.log.Error("model call failed", "model", e.deps.LLM.Model(), "err", err)
		return nil, err
	}

	turn.Answer = prompt.WithDisclaimer(out)
	turn.HasContext = true
	turn.Contexts = results
	turn.Sources = make([]domain.SourceRef, len(results))
	for i, r := range results {
		turn.Sources[i] = domain.SourceRef{
			DocumentID: r.Chunk.DocumentID,
			Name:       r.Chunk.Source,
			Page:       r.Chunk.Page,
			Score:      r.Score,
		}
	}
	e.record(turn)
	e.log.Info("answered",
		"type", pt,
		"contexts", len(results),
		"model", e.deps.LLM.Model(),
		"duration", e.now().Sub(start).Round(time.Millisecond))
	return &turn, nil
}

func (e *Engine) findSource(ctx context.Context, idOrName string) (domain.SourceInfo, error) {
	sources, err := e.deps.Store.Sources(ctx)
	if err != nil {
		return domain.SourceInfo{}, err
	}
	for _, s := range sources {
		if s.DocumentID == idOrName || s.Name == idOrName {
			return s, nil
		}
	}
	return domain.SourceInfo{}, fmt.Errorf("%w: source %q", domain.ErrNotFound, idOrName)
}

// Sources lists stored documents.
func (e *Engine) Sources(ctx context.Context) ([]domain.SourceInfo, error) {
	return e.deps.Store.Sources(ctx)
}

// Status reports model reachability and what is stored.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	st := &Status{
		LLM:      e.deps.LLM.Name(),
		Model:    e.deps.LLM.Model(),
		Embedder: e.deps.Embedder.Name(),
		Models:   e.opts.FallbackModels,
	}
	if err := e.deps.LLM.Ping(ctx); err != nil {
		st.LLMError = err.Error()
	} else if models, err := e.deps.LLM.Models(ctx); err != nil {
		st.LLMError = err.Error()
	} else {
		st.LLMReachable = true
		st.Models = models
	}
	if p, ok := e.deps.Embedder.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			st.EmbedderError = err.Error()
		}
	}
	var err error
	if st.Records, err = e.deps.Store.Count(ctx); err != nil {
		return nil, err
	}
	if st.Sources, err = e.deps.Store.Sources(ctx); err != nil {
		return nil, err
	}
	st.HasDocuments = st.Records > 0
	return st, nil
}

// Models lists the models the server offers, falling back to the configured
// list when the server cannot be asked.
func (e *Engine) Models(ctx context.Context) ([]string, error) {
	models, err := e.deps.LLM.Models(ctx)
	if err == nil {
		return models, nil
	}
	if len(e.opts.FallbackModels) == 0 {
		return nil, err
	}
	e.log.Warn("list models", "err", err)
	return slices.Clone(e.opts.FallbackModels), nil
}

// Model is the active chat model.
func (e *Engine) Model() string { return e.deps.LLM.Model() }

// SetModel switches the chat model.
func (e *Engine) SetModel(model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return fmt.Errorf("%w: empty model name", domain.ErrInvalidInput)
	}
	e.deps.LLM.SetModel(model)
	e.log.Info("switched model", "model", model)
	return nil
}

// DeleteSource removes a document by ID or file name.
func (e *Engine) DeleteSource(ctx context.Context, idOrName string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := strings.TrimSpace(idOrName)
	if info, err := e.findSource(ctx, id); err == nil {
		id = info.DocumentID
	} else if !errors.Is(err, domain.ErrNotFound) {
		return 0, err
	}
	return e.deps.Retention.DeleteDocument(ctx, id)
}

// Scope selects what Clear removes.
type Scope string

const (
	ScopeTemp    Scope = "temp"
	ScopeUploads Scope = "uploads"
	ScopeVectors Scope = "vectors"
	ScopeAll     Scope = "all"
)

// ParseScope validates a scope name. Empty means ScopeAll.
func ParseScope(s string) (Scope, error) {
	switch sc := Scope(strings.ToLower(strings.TrimSpace(s))); sc {
	case "":
		return ScopeAll, nil
	case ScopeTemp, ScopeUploads, ScopeVectors, ScopeAll:
		return sc, nil
	default:
		return "", fmt.Errorf("%w: scope %q", domain.ErrInvalidInput, s)
	}
}

// Clear deletes local data. Clearing everything also forgets the session history.
func (e *Engine) Clear(ctx context.Context, scope Scope) retention.Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch scope {
	case ScopeTemp:
		return e.deps.Retention.ClearTemp()
	case ScopeUploads:
		return e.deps.Retention.ClearUploads()
	case ScopeVectors:
		return e.deps.Retention.ClearVectors(ctx)
	default:
		r := e.deps.Retention.ClearAll(ctx)
		e.ResetHistory()
		return r
	}
}

// ClearAll deletes every document, file and the session history.
func (e *Engine) ClearAll(ctx context.Context) retention.Report {
	return e.Clear(ctx, ScopeAll)
}

// Cleanup applies the retention policy.
func (e *Engine) Cleanup(ctx context.Context) (retention.Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deps.Retention.ApplyPolicy(ctx)
}

// Storage reports disk usage.
func (e *Engine) Storage() (retention.StorageInfo, error) {
	return e.deps.Retention.StorageInfo(e.opts.AutoDeleteTemp)
}

// TempPath reserves a temp location for an upload named name.
func (e *Engine) TempPath(name string) (string, func(), error) {
	return e.deps.Retention.TempPath(name)
}

func (e *Engine) record(t domain.Turn) {
	e.histMu.Lock()
	defer e.histMu.Unlock()
	e.history = append(e.history, t)
}

// History returns the turns of this session, oldest first.
func (e *Engine) History() []domain.Turn {
	e.histMu.RLock()
	defer e.histMu.RUnlock()
	return slices.Clone(e.history)
}

// ResetHistory forgets the session history.
func (e *Engine) ResetHistory() {
	e.histMu.Lock()
	defer e.histMu.Unlock()
	e.history = nil
}

// Close clears temp files when configured to and closes the store.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	if e.opts.AutoDeleteTemp {
		r := e.deps.Retention.ClearTemp()
		errs = append(errs, r.Err())
		e.log.Debug("cleared temp files", "deleted", r.Deleted)
	}
	errs = append(errs, e.deps.Store.Close())
	return errors.Join(errs...)
}
