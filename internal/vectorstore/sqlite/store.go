// Package sqlite persists embedding records in a single SQLite file inside the
// vector_db folder. Similarity search is a brute-force cosine scan.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"legalqa/internal/domain"
	"legalqa/internal/vectorstore"
)

// FileName is the database file created inside the vector_db folder.
const FileName = "vectors.db"

const metaDimension = "dimension"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements domain.VectorStore on SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the store in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating vector directory: %w", err)
	}
	dbPath := filepath.Join(dir, FileName)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &Store{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}
	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	entries, err := fs.ReadDir(sub, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			upFiles = append(upFiles, e.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(sub, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) dimension(ctx context.Context) (int, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM store_meta WHERE key = ?", metaDimension).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(v)
}

func setDimension(ctx context.Context, ex interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, dim int) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO store_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, metaDimension, strconv.Itoa(dim))
	return err
}

// Init fixes the vector dimension. Re-initialising with another dimension
// fails while records exist.
func (s *Store) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	current, err := s.dimension(ctx)
	if err != nil {
		return fmt.Errorf("reading dimension: %w", err)
	}
	if current == dimension {
		return nil
	}
	if current != 0 {
		n, err := s.Count(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: store has %d, embedder produces %d", domain.ErrDimensionMismatch, current, dimension)
		}
	}
	return setDimension(ctx, s.db, dimension)
}

// Upsert stores records in one transaction, replacing rows with the same chunk ID.
func (s *Store) Upsert(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	dim, err := s.dimension(ctx)
	if err != nil {
		return fmt.Errorf("reading dimension: %w", err)
	}
	if dim == 0 {
		dim = len(records[0].Vector)
	}
	if err := vectorstore.CheckDimensions(records, dim); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := setDimension(ctx, tx, dim); err != nil {
		return fmt.Errorf("saving dimension: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, source, chunk_index, rune_offset, rune_length, page, text, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			source = excluded.source,
			chunk_index = excluded.chunk_index,
			rune_offset = excluded.rune_offset,
			rune_length = excluded.rune_length,
			page = excluded.page,
			text = excluded.text,
			embedding = excluded.embedding
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		c := r.Chunk
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.Source, c.Index, c.Offset, c.Length, c.Page, c.Text,
			float64sToBytes(r.Vector)); err != nil {
			return fmt.Errorf("saving chunk %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, vector []float64, topK int, filter domain.SearchFilter) ([]domain.SearchResult, error) {
	dim, err := s.dimension(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading dimension: %w", err)
	}
	query := "SELECT id, document_id, source, chunk_index, rune_offset, rune_length, page, text, embedding FROM chunks"
	var args []any
	if filter.DocumentID != "" {
		query += " WHERE document_id = ?"
		args = append(args, filter.DocumentID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var results []domain.SearchResult
	checked := false
	for rows.Next() {
		if !checked {
			if len(vector) != dim {
				return nil, fmt.Errorf("%w: query has %d, store has %d", domain.ErrDimensionMismatch, len(vector), dim)
			}
			checked = true
		}
		var (
			c    domain.Chunk
			blob []byte
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Source, &c.Index, &c.Offset, &c.Length, &c.Page, &c.Text, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		results = append(results, domain.SearchResult{Chunk: c, Score: vectorstore.Cosine(bytesToFloat64s(blob), vector)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vectorstore.TopK(results, topK), nil
}

func (s *Store) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Store) Sources(ctx context.Context) ([]domain.SourceInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, MIN(source), COUNT(*) FROM chunks
		GROUP BY document_id
		ORDER BY MIN(source), document_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying sources: %w", err)
	}
	defer rows.Close()

	var out []domain.SourceInfo
	for rows.Next() {
		var si domain.SourceInfo
		if err := rows.Scan(&si.DocumentID, &si.Name, &si.Chunks); err != nil {
			return nil, err
		}
		out = append(out, si)
	}
	return out, rows.Err()
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// Clear removes every record and forgets the dimension.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM store_meta WHERE key = ?", metaDimension); err != nil {
		return fmt.Errorf("clearing dimension: %w", err)
	}
	return tx.Commit()
}

// float64sToBytes stores vectors as little-endian float32.
func float64sToBytes(v []float64) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(f)))
	}
	return buf
}

func bytesToFloat64s(data []byte) []float64 {
	out := make([]float64, len(data)/4)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
	}
	return out
}
