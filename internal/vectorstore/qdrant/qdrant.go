package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"legalqa/internal/domain"
	"legalqa/internal/vectorstore"
)

// Storage is a minimal REST client to a Qdrant instance on this machine.
// It uses cosine distance and creates the collection on Init.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

var errCollectionMissing = errors.New("qdrant collection missing")

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if cfg.Collection == "" {
		cfg.Collection = "legal_documents"
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// PointID maps a chunk ID to the UUID used as Qdrant point ID.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("legalqa:"+chunkID)).String()
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
			PointsCount int `json:"points_count"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, &info)
	switch {
	case err == nil:
		size := info.Result.Config.Params.Vectors.Size
		if size == dimension {
			s.dimension = dimension
			return nil
		}
		if info.Result.PointsCount > 0 {
			return fmt.Errorf("%w: collection has %d, embedder produces %d", domain.ErrDimensionMismatch, size, dimension)
		}
		if err := s.do(ctx, http.MethodDelete, s.collectionURL(""), nil, nil); err != nil {
			return err
		}
	case !errors.Is(err, errCollectionMissing):
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{"size": dimension, "distance": "Cosine"},
	}
	if err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
		return err
	}
	if err := s.do(ctx, http.MethodPut, s.collectionURL("/index"), map[string]any{
		"field_name": "document_id", "field_schema": "keyword",
	}, nil); err != nil {
		return err
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	if s.dimension == 0 {
		if err := s.Init(ctx, len(records[0].Vector)); err != nil {
			return err
		}
	}
	if err := vectorstore.CheckDimensions(records, s.dimension); err != nil {
		return err
	}
	points := make([]map[string]any, len(records))
	for i, r := range records {
		c := r.Chunk
		points[i] = map[string]any{
			"id":     PointID(c.ID),
			"vector": r.Vector,
			"payload": map[string]any{
				"chunk_id":    c.ID,
				"document_id": c.DocumentID,
				"source":      c.Source,
				"index":       c.Index,
				"offset":      c.Offset,
				"length":      c.Length,
				"page":        c.Page,
				"text":        c.Text,
			},
		}
	}
	return s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]any{"points": points}, nil)
}

func documentFilter(documentID string) map[string]any {
	return map[string]any{
		"must": []map[string]any{{"key": "document_id", "match": map[string]any{"value": documentID}}},
	}
}

type payload struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Source     string `json:"source"`
	Index      int    `json:"index"`
	Offset     int    `json:"offset"`
	Length     int    `json:"length"`
	Page       int    `json:"page"`
	Text       string `json:"text"`
}

func (p payload) chunk() domain.Chunk {
	return domain.Chunk{
		ID: p.ChunkID, DocumentID: p.DocumentID, Source: p.Source, Index: p.Index,
		Offset: p.Offset, Length: p.Length, Page: p.Page, Text: p.Text,
	}
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int, filter domain.SearchFilter) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = vectorstore.DefaultTopK
	}
	if s.dimension != 0 && len(vector) != s.dimension {
		return nil, domain.ErrDimensionMismatch
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if filter.DocumentID != "" {
		req["filter"] = documentFilter(filter.DocumentID)
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp)
	if errors.Is(err, errCollectionMissing) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.SearchResult{Chunk: r.Payload.chunk(), Score: r.Score})
	}
	return results, nil
}

func (s *Storage) count(ctx context.Context, filter map[string]any) (int, error) {
	req := map[string]any{"exact": true}
	if filter != nil {
		req["filter"] = filter
	}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), req, &resp)
	if errors.Is(err, errCollectionMissing) {
		return 0, nil
	}
	return resp.Result.Count, err
}

func (s *Storage) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	filter := documentFilter(documentID)
	n, err := s.count(ctx, filter)
	if err != nil || n == 0 {
		return 0, err
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), map[string]any{"filter": filter}, nil); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Storage) Sources(ctx context.Context) ([]domain.SourceInfo, error) {
	var (
		chunks []domain.Chunk
		offset any
	)
	for {
		req := map[string]any{
			"limit":        256,
			"with_payload": []string{"document_id", "source"},
			"with_vector":  false,
		}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points []struct {
					Payload payload `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		err := s.do(ctx, http.MethodPost, s.collectionURL("/points/scroll"), req, &resp)
		if errors.Is(err, errCollectionMissing) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			chunks = append(chunks, p.Payload.chunk())
		}
		if resp.Result.NextPageOffset == nil {
			break
		}
		offset = resp.Result.NextPageOffset
	}
	return vectorstore.SummarizeSources(chunks), nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	return s.count(ctx, nil)
}

// Clear drops the collection.
func (s *Storage) Clear(ctx context.Context) error {
	err := s.do(ctx, http.MethodDelete, s.collectionURL(""), nil, nil)
	if errors.Is(err, errCollectionMissing) {
		err = nil
	}
	if err == nil {
		s.dimension = 0
	}
	return err
}

func (s *Storage) Close() error { return nil }

func (s *Storage) do(ctx context.Context, method, url string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errCollectionMissing
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, url, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
