// Package vectorstore holds helpers shared by the vector store implementations.
package vectorstore

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"legalqa/internal/domain"
)

// DefaultTopK is used when a search asks for a non-positive number of results.
const DefaultTopK = 5

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero vector.
func Cosine(a, b []float64) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TopK sorts results by descending score, breaking ties by chunk ID, and keeps
// the first k.
func TopK(results []domain.SearchResult, k int) []domain.SearchResult {
	if k <= 0 {
		k = DefaultTopK
	}
	slices.SortFunc(results, func(a, b domain.SearchResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Chunk.ID, b.Chunk.ID)
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// CheckDimensions verifies every record vector has size dim.
func CheckDimensions(records []domain.Record, dim int) error {
	for _, r := range records {
		if len(r.Vector) != dim {
			return fmt.Errorf("%w: chunk %s has %d, store has %d", domain.ErrDimensionMismatch, r.Chunk.ID, len(r.Vector), dim)
		}
	}
	return nil
}

// SummarizeSources groups per-chunk rows into per-document source entries
// ordered by name.
func SummarizeSources(chunks []domain.Chunk) []domain.SourceInfo {
	byID := map[string]*domain.SourceInfo{}
	for _, c := range chunks {
		s, ok := byID[c.DocumentID]
		if !ok {
			s = &domain.SourceInfo{DocumentID: c.DocumentID, Name: c.Source}
			byID[c.DocumentID] = s
		}
		s.Chunks++
	}
	out := make([]domain.SourceInfo, 0, len(byID))
	for _, s := range byID {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b domain.SourceInfo) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.DocumentID, b.DocumentID)
	})
	return out
}
