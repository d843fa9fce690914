// Package retention owns the on-disk layout of local data and deletes it on
// request or when it ages out.
package retention

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"legalqa/internal/domain"
)

// TempMaxAge is used when Options.TempMaxAge is not set.
const TempMaxAge = 24 * time.Hour

// Dirs are the three folders of local state.
type Dirs struct {
	Uploads string
	Vectors string
	Temp    string
}

// Options configure the age policy.
type Options struct {
	// Days after which an uploaded document is removed. 0 keeps documents forever.
	Days       int
	TempMaxAge time.Duration
}

// Report summarises a deletion.
type Report struct {
	Deleted int      `json:"deleted"`
	Errors  []string `json:"errors,omitempty"`
}

// Err returns the collected errors, or nil.
func (r Report) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = errors.New(e)
	}
	return errors.Join(errs...)
}

func (r *Report) add(o Report) {
	r.Deleted += o.Deleted
	r.Errors = append(r.Errors, o.Errors...)
}

func (r *Report) fail(err error) {
	r.Errors = append(r.Errors, err.Error())
}

// FolderInfo describes disk usage of one folder.
type FolderInfo struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Files int    `json:"files"`
	Bytes int64  `json:"bytes"`
	Size  string `json:"size"`
}

// StorageInfo is the disk usage of all local state.
type StorageInfo struct {
	Folders        []FolderInfo `json:"folders"`
	TotalBytes     int64        `json:"total_bytes"`
	TotalSize      string       `json:"total_size"`
	RetentionDays  int          `json:"retention_days"`
	AutoDeleteTemp bool         `json:"auto_delete_temp"`
}

// Manager deletes documents and local files. Vectors are always removed
// before files so a failed file removal never leaves searchable text behind.
type Manager struct {
	store domain.VectorStore
	dirs  Dirs
	opts  Options
	log   *log.Logger
	now   func() time.Time
}

// New creates a Manager over store and dirs.
func New(store domain.VectorStore, dirs Dirs, opts Options, logger *log.Logger) *Manager {
	if opts.TempMaxAge <= 0 {
		opts.TempMaxAge = TempMaxAge
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Manager{store: store, dirs: dirs, opts: opts, log: logger, now: time.Now}
}

// Dirs returns the managed folders.
func (m *Manager) Dirs() Dirs { return m.dirs }

// EnsureDirs creates the folders of local state.
func (m *Manager) EnsureDirs() error {
	for _, d := range []string{m.dirs.Uploads, m.dirs.Vectors, m.dirs.Temp} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

// SaveOriginal copies src into the upload folder of documentID.
func (m *Manager) SaveOriginal(documentID, name, src string) (string, error) {
	dir := filepath.Join(m.dirs.Uploads, documentID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, filepath.Base(name))
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	// The folder time is the document's age for the retention policy.
	now := m.now()
	if err := os.Chtimes(dir, now, now); err != nil {
		return "", err
	}
	return dst, nil
}

// TempPath reserves a private temp folder and returns the path name should be
// written to. cleanup removes the folder.
func (m *Manager) TempPath(name string) (path string, cleanup func(), err error) {
	if err := os.MkdirAll(m.dirs.Temp, 0o700); err != nil {
		return "", nil, err
	}
	dir, err := os.MkdirTemp(m.dirs.Temp, "upload-")
	if err != nil {
		return "", nil, err
	}
	cleanup = func() {
		if err := os.RemoveAll(dir); err != nil {
			m.log.Warn("remove temp upload", "dir", dir, "err", err)
		}
	}
	return filepath.Join(dir, filepath.Base(name)), cleanup, nil
}

// DeleteDocument removes the vectors and the stored original of a document.
// It returns the number of vectors deleted, or domain.ErrNotFound when
// neither exists.
func (m *Manager) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	if documentID == "" || documentID == "." || documentID == ".." || filepath.Base(documentID) != documentID {
		return 0, fmt.Errorf("%w: document id %q", domain.ErrInvalidInput, documentID)
	}
	n, err := m.store.DeleteDocument(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete vectors of %s: %w", documentID, err)
	}
	dir := filepath.Join(m.dirs.Uploads, documentID)
	_, statErr := os.Stat(dir)
	hasDir := statErr == nil
	if hasDir {
		if err := os.RemoveAll(dir); err != nil {
			return n, fmt.Errorf("remove files of %s: %w", documentID, err)
		}
	}
	if n == 0 && !hasDir {
		return 0, fmt.Errorf("%w: document %s", domain.ErrNotFound, documentID)
	}
	m.log.Info("deleted document", "id", documentID, "vectors", n, "files", hasDir)
	return n, nil
}

// ClearTemp empties the temp folder.
func (m *Manager) ClearTemp() Report {
	return clearDir(m.dirs.Temp, nil)
}

// ClearUploads removes every stored original.
func (m *Manager) ClearUploads() Report {
	return clearDir(m.dirs.Uploads, nil)
}

// ClearVectors removes every embedding record. Deleted counts records.
func (m *Manager) ClearVectors(ctx context.Context) Report {
	var r Report
	n, err := m.store.Count(ctx)
	if err != nil {
		r.fail(err)
		return r
	}
	if err := m.store.Clear(ctx); err != nil {
		r.fail(err)
		return r
	}
	r.Deleted = n
	return r
}

// ClearAll removes vectors, uploads and temp files.
func (m *Manager) ClearAll(ctx context.Context) Report {
	var r Report
	r.add(m.ClearVectors(ctx))
	r.add(m.ClearUploads())
	r.add(m.ClearTemp())
	m.log.Info("cleared all data", "deleted", r.Deleted, "errors", len(r.Errors))
	return r
}

// ApplyPolicy removes temp entries older than the temp age, documents whose
// upload is older than the retention period, and upload folders that no
// longer have vectors.
func (m *Manager) ApplyPolicy(ctx context.Context) (Report, error) {
	now := m.now()
	r := clearDir(m.dirs.Temp, func(info fs.FileInfo) bool {
		return now.Sub(info.ModTime()) > m.opts.TempMaxAge
	})

	sources, err := m.store.Sources(ctx)
	if err != nil {
		return r, fmt.Errorf("list sources: %w", err)
	}
	indexed := make(map[string]bool, len(sources))
	for _, s := range sources {
		indexed[s.DocumentID] = true
	}

	entries, err := os.ReadDir(m.dirs.Uploads)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return r, err
	}
	for _, e := range entries {
		path := filepath.Join(m.dirs.Uploads, e.Name())
		info, err := e.Info()
		if err != nil {
			r.fail(err)
			continue
		}
		switch {
		case !e.IsDir() || !indexed[e.Name()]:
			if err := os.RemoveAll(path); err != nil {
				r.fail(err)
				continue
			}
			m.log.Debug("removed orphan upload", "path", path)
			r.Deleted++
		case m.opts.Days > 0 && now.Sub(info.ModTime()) > time.Duration(m.opts.Days)*24*time.Hour:
			if _, err := m.DeleteDocument(ctx, e.Name()); err != nil {
				r.fail(err)
				continue
			}
			r.Deleted++
		}
	}
	m.log.Info("applied retention policy", "deleted", r.Deleted, "retention_days", m.opts.Days)
	return r, nil
}

// StorageInfo reports disk usage of every folder.
func (m *Manager) StorageInfo(autoDeleteTemp bool) (StorageInfo, error) {
	info := StorageInfo{RetentionDays: m.opts.Days, AutoDeleteTemp: autoDeleteTemp}
	for _, f := range []struct{ name, path string }{
		{"uploads", m.dirs.Uploads},
		{"vector_db", m.dirs.Vectors},
		{"temp", m.dirs.Temp},
	} {
		files, size, err := usage(f.path)
		if err != nil {
			return info, err
		}
		info.Folders = append(info.Folders, FolderInfo{
			Name:  f.name,
			Path:  f.path,
			Files: files,
			Bytes: size,
			Size:  humanize.Bytes(uint64(size)),
		})
		info.TotalBytes += size
	}
	info.TotalSize = humanize.Bytes(uint64(info.TotalBytes))
	return info, nil
}

func usage(root string) (files int, size int64, err error) {
	err = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files++
		size += info.Size()
		return nil
	})
	return files, size, err
}

// clearDir removes the direct children of dir, or only the expired ones
// when expired is set.
func clearDir(dir string, expired func(fs.FileInfo) bool) Report {
	var r Report
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			r.fail(err)
		}
		return r
	}
	for _, e := range entries {
		if expired != nil {
			info, err := e.Info()
			if err != nil || !expired(info) {
				continue
			}
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			r.fail(err)
			continue
		}
		r.Deleted++
	}
	return r
}
