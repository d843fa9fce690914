package retention

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalqa/internal/domain"
	"legalqa/internal/logging"
	"legalqa/internal/vectorstore/memory"
	"legalqa/internal/vectorstore/storetest"
)

func setup(t *testing.T, opts Options) (*Manager, *memory.Storage) {
	t.Helper()
	root := t.TempDir()
	store := memory.NewStorage()
	m := New(store, Dirs{
		Uploads: filepath.Join(root, "uploads"),
		Vectors: filepath.Join(root, "vector_db"),
		Temp:    filepath.Join(root, "temp"),
	}, opts, logging.Discard())
	require.NoError(t, m.EnsureDirs())
	return m, store
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func age(t *testing.T, path string, d time.Duration) {
	t.Helper()
	old := time.Now().Add(-d)
	require.NoError(t, os.Chtimes(path, old, old))
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()
	m, store := setup(t, Options{})
	require.NoError(t, store.Upsert(ctx, []domain.Record{
		storetest.Record("doc1", "lease.pdf", 0, 1, 0),
		storetest.Record("doc1", "lease.pdf", 1, 0, 1),
		storetest.Record("doc2", "nda.txt", 0, 1, 1),
	}))
	src := filepath.Join(t.TempDir(), "lease.pdf")
	writeFile(t, src, "%PDF")
	dst, err := m.SaveOriginal("doc1", "lease.pdf", src)
	require.NoError(t, err)
	assert.FileExists(t, dst)

	n, err := m.DeleteDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoDirExists(t, filepath.Join(m.Dirs().Uploads, "doc1"))

	res, err := store.Search(ctx, []float64{1, 0}, 10, domain.SearchFilter{})
	require.NoError(t, err)
	for _, r := range res {
		assert.NotEqual(t, "doc1", r.Chunk.DocumentID)
	}
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDeleteDocumentNotFound(t *testing.T) {
	m, _ := setup(t, Options{})

	_, err := m.DeleteDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = m.DeleteDocument(context.Background(), "../uploads")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDeleteDocumentFilesOnly(t *testing.T) {
	m, _ := setup(t, Options{})
	writeFile(t, filepath.Join(m.Dirs().Uploads, "doc9", "old.txt"), "x")

	n, err := m.DeleteDocument(context.Background(), "doc9")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoDirExists(t, filepath.Join(m.Dirs().Uploads, "doc9"))
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	m, store := setup(t, Options{})
	require.NoError(t, store.Upsert(ctx, []domain.Record{storetest.Record("doc1", "a.txt", 0, 1)}))
	writeFile(t, filepath.Join(m.Dirs().Uploads, "doc1", "a.txt"), "a")
	writeFile(t, filepath.Join(m.Dirs().Temp, "upload-1", "b.txt"), "b")

	r := m.ClearAll(ctx)
	require.NoError(t, r.Err())
	assert.Equal(t, 3, r.Deleted)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	entries, err := os.ReadDir(m.Dirs().Uploads)
	require.NoError(t, err)
	assert.Empty(t, entries)
	entries, err = os.ReadDir(m.Dirs().Temp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestApplyPolicy(t *testing.T) {
	ctx := context.Background()
	m, store := setup(t, Options{Days: 30})
	require.NoError(t, store.Upsert(ctx, []domain.Record{
		storetest.Record("fresh", "fresh.txt", 0, 1, 0),
		storetest.Record("stale", "stale.txt", 0, 0, 1),
	}))
	up := m.Dirs().Uploads
	writeFile(t, filepath.Join(up, "fresh", "fresh.txt"), "f")
	writeFile(t, filepath.Join(up, "stale", "stale.txt"), "s")
	writeFile(t, filepath.Join(up, "orphan", "gone.txt"), "o")
	age(t, filepath.Join(up, "stale"), 31*24*time.Hour)

	tmp := m.Dirs().Temp
	writeFile(t, filepath.Join(tmp, "old.part"), "x")
	writeFile(t, filepath.Join(tmp, "new.part"), "y")
	age(t, filepath.Join(tmp, "old.part"), 2*24*time.Hour)

	r, err := m.ApplyPolicy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Deleted)

	assert.DirExists(t, filepath.Join(up, "fresh"))
	assert.NoDirExists(t, filepath.Join(up, "stale"))
	assert.NoDirExists(t, filepath.Join(up, "orphan"))
	assert.NoFileExists(t, filepath.Join(tmp, "old.part"))
	assert.FileExists(t, filepath.Join(tmp, "new.part"))

	sources, err := store.Sources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "fresh", sources[0].DocumentID)
}

func TestSaveOriginalRefreshesAge(t *testing.T) {
	ctx := context.Background()
	m, store := setup(t, Options{Days: 30})
	require.NoError(t, store.Upsert(ctx, []domain.Record{storetest.Record("doc1", "lease.txt", 0, 1)}))
	src := filepath.Join(t.TempDir(), "lease.txt")
	writeFile(t, src, "rent")

	_, err := m.SaveOriginal("doc1", "lease.txt", src)
	require.NoError(t, err)
	dir := filepath.Join(m.Dirs().Uploads, "doc1")
	age(t, dir, 40*24*time.Hour)

	// Same bytes uploaded again: the file is overwritten in place.
	_, err = m.SaveOriginal("doc1", "lease.txt", src)
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), info.ModTime(), time.Hour)

	r, err := m.ApplyPolicy(ctx)
	require.NoError(t, err)
	assert.Zero(t, r.Deleted)
	assert.DirExists(t, dir)
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestApplyPolicyKeepsForever(t *testing.T) {
	ctx := context.Background()
	m, store := setup(t, Options{Days: 0})
	require.NoError(t, store.Upsert(ctx, []domain.Record{storetest.Record("doc", "a.txt", 0, 1)}))
	dir := filepath.Join(m.Dirs().Uploads, "doc")
	writeFile(t, filepath.Join(dir, "a.txt"), "a")
	age(t, dir, 400*24*time.Hour)

	r, err := m.ApplyPolicy(ctx)
	require.NoError(t, err)
	assert.Zero(t, r.Deleted)
	assert.DirExists(t, dir)
}

func TestTempPath(t *testing.T) {
	m, _ := setup(t, Options{})
	path, cleanup, err := m.TempPath("../../contract.docx")
	require.NoError(t, err)
	assert.Equal(t, "contract.docx", filepath.Base(path))
	writeFile(t, path, "x")

	cleanup()
	assert.NoDirExists(t, filepath.Dir(path))
}

func TestStorageInfo(t *testing.T) {
	m, _ := setup(t, Options{Days: 7})
	writeFile(t, filepath.Join(m.Dirs().Uploads, "doc", "a.txt"), "12345")
	writeFile(t, filepath.Join(m.Dirs().Temp, "b.txt"), "123")

	info, err := m.StorageInfo(true)
	require.NoError(t, err)
	require.Len(t, info.Folders, 3)
	assert.Equal(t, "uploads", info.Folders[0].Name)
	assert.Equal(t, 1, info.Folders[0].Files)
	assert.Equal(t, int64(5), info.Folders[0].Bytes)
	assert.Equal(t, "5 B", info.Folders[0].Size)
	assert.Equal(t, int64(8), info.TotalBytes)
	assert.Equal(t, 7, info.RetentionDays)
	assert.True(t, info.AutoDeleteTemp)
}
