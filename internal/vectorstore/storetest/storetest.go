// Package storetest holds behaviour tests every domain.VectorStore must pass.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalqa/internal/domain"
)

// Record builds a record for chunk index i of document doc.
func Record(doc, name string, i int, vec ...float64) domain.Record {
	return domain.Record{
		Chunk: domain.Chunk{
			ID:         fmt.Sprintf("%s:%d", doc, i),
			DocumentID: doc,
			Source:     name,
			Index:      i,
			Offset:     i * 10,
			Length:     10,
			Page:       i + 1,
			Text:       fmt.Sprintf("%s chunk %d", name, i),
		},
		Vector: vec,
	}
}

// Run exercises newStore against the VectorStore contract.
func Run(t *testing.T, newStore func(t *testing.T) domain.VectorStore) {
	ctx := context.Background()

	t.Run("empty search", func(t *testing.T) {
		s := newStore(t)
		res, err := s.Search(ctx, []float64{1, 0, 0}, 3, domain.SearchFilter{})
		require.NoError(t, err)
		assert.Empty(t, res)
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("search ranks by cosine", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Init(ctx, 3))
		require.NoError(t, s.Upsert(ctx, []domain.Record{
			Record("a", "a.txt", 0, 1, 0, 0),
			Record("a", "a.txt", 1, 0, 1, 0),
			Record("b", "b.pdf", 0, 0.9, 0.1, 0),
		}))

		res, err := s.Search(ctx, []float64{2, 0, 0}, 2, domain.SearchFilter{})
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, "a:0", res[0].Chunk.ID)
		assert.InDelta(t, 1.0, res[0].Score, 1e-6)
		assert.Equal(t, "b:0", res[1].Chunk.ID)
		assert.Equal(t, "b.pdf", res[1].Chunk.Source)
		assert.Equal(t, 1, res[1].Chunk.Page)
		assert.Equal(t, "b.pdf chunk 0", res[1].Chunk.Text)
	})

	t.Run("search filter", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Init(ctx, 2))
		require.NoError(t, s.Upsert(ctx, []domain.Record{
			Record("a", "a.txt", 0, 1, 0),
			Record("b", "b.txt", 0, 0, 1),
		}))
		res, err := s.Search(ctx, []float64{1, 0}, 5, domain.SearchFilter{DocumentID: "b"})
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "b", res[0].Chunk.DocumentID)
	})

	t.Run("upsert is idempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Init(ctx, 2))
		recs := []domain.Record{Record("a", "a.txt", 0, 1, 0), Record("a", "a.txt", 1, 0, 1)}
		require.NoError(t, s.Upsert(ctx, recs))
		require.NoError(t, s.Upsert(ctx, recs))
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("delete document leaves no orphans", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Init(ctx, 2))
		require.NoError(t, s.Upsert(ctx, []domain.Record{
			Record("a", "a.txt", 0, 1, 0),
			Record("a", "a.txt", 1, 1, 1),
			Record("b", "b.txt", 0, 0, 1),
		}))

		deleted, err := s.DeleteDocument(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 2, deleted)

		res, err := s.Search(ctx, []float64{1, 0}, 10, domain.SearchFilter{})
		require.NoError(t, err)
		for _, r := range res {
			assert.NotEqual(t, "a", r.Chunk.DocumentID)
		}
		sources, err := s.Sources(ctx)
		require.NoError(t, err)
		assert.Equal(t, []domain.SourceInfo{{DocumentID: "b", Name: "b.txt", Chunks: 1}}, sources)

		deleted, err = s.DeleteDocument(ctx, "missing")
		require.NoError(t, err)
		assert.Zero(t, deleted)
	})

	t.Run("sources", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Init(ctx, 1))
		require.NoError(t, s.Upsert(ctx, []domain.Record{
			Record("z", "zoning.pdf", 0, 1),
			Record("c", "contract.docx", 0, 1),
			Record("c", "contract.docx", 1, 1),
		}))
		sources, err := s.Sources(ctx)
		require.NoError(t, err)
		assert.Equal(t, []domain.SourceInfo{
			{DocumentID: "c", Name: "contract.docx", Chunks: 2},
			{DocumentID: "z", Name: "zoning.pdf", Chunks: 1},
		}, sources)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Init(ctx, 2))
		require.NoError(t, s.Upsert(ctx, []domain.Record{Record("a", "a.txt", 0, 1, 0)}))

		err := s.Upsert(ctx, []domain.Record{Record("a", "a.txt", 1, 1, 0, 0)})
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
		_, err = s.Search(ctx, []float64{1}, 1, domain.SearchFilter{})
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
		assert.ErrorIs(t, s.Init(ctx, 3), domain.ErrDimensionMismatch)
	})

	t.Run("clear", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Init(ctx, 2))
		require.NoError(t, s.Upsert(ctx, []domain.Record{Record("a", "a.txt", 0, 1, 0)}))
		require.NoError(t, s.Clear(ctx))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		require.NoError(t, s.Init(ctx, 4), "cleared store accepts a new dimension")
	})
}
