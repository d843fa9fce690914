package memory

import (
	"context"
	"errors"
	"sync"

	"legalqa/internal/domain"
	"legalqa/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
// Records are keyed by chunk ID.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]domain.Record
}

func NewStorage() *Storage { return &Storage{records: map[string]domain.Record{}} }

// Init fixes the vector dimension. Re-initialising with another dimension
// fails while records exist.
func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && s.dimension != dimension && len(s.records) > 0 {
		return domain.ErrDimensionMismatch
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(_ context.Context, records []domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 && len(records) > 0 {
		s.dimension = len(records[0].Vector)
	}
	if err := vectorstore.CheckDimensions(records, s.dimension); err != nil {
		return err
	}
	for _, r := range records {
		r.Vector = append([]float64(nil), r.Vector...)
		s.records[r.Chunk.ID] = r
	}
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float64, topK int, filter domain.SearchFilter) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return nil, nil
	}
	if len(vector) != s.dimension {
		return nil, domain.ErrDimensionMismatch
	}
	results := make([]domain.SearchResult, 0, len(s.records))
	for _, r := range s.records {
		if filter.DocumentID != "" && r.Chunk.DocumentID != filter.DocumentID {
			continue
		}
		results = append(results, domain.SearchResult{Chunk: r.Chunk, Score: vectorstore.Cosine(r.Vector, vector)})
	}
	return vectorstore.TopK(results, topK), nil
}

func (s *Storage) DeleteDocument(_ context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.records {
		if r.Chunk.DocumentID == documentID {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

func (s *Storage) Sources(_ context.Context) ([]domain.SourceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := make([]domain.Chunk, 0, len(s.records))
	for _, r := range s.records {
		chunks = append(chunks, r.Chunk)
	}
	return vectorstore.SummarizeSources(chunks), nil
}

func (s *Storage) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Clear removes every record and forgets the dimension.
func (s *Storage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = map[string]domain.Record{}
	s.dimension = 0
	return nil
}

func (s *Storage) Close() error { return nil }
