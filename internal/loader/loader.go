// Package loader turns uploaded files into cleaned domain documents.
package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/document/parser"

	"legalqa/internal/cleaner"
	"legalqa/internal/domain"
)

var supported = []string{".pdf", ".txt", ".docx"}

// SupportedExtensions lists the file extensions Load accepts.
func SupportedExtensions() []string {
	return slices.Clone(supported)
}

// Supported reports whether the file extension of path can be loaded.
func Supported(path string) bool {
	return slices.Contains(supported, strings.ToLower(filepath.Ext(path)))
}

// DocumentID derives the stable identifier of a file from its name and bytes.
// Uploading the same file twice yields the same ID.
func DocumentID(name string, raw []byte) string {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

type page struct {
	number int
	text   string
}

// FileLoader implements domain.Loader for PDF, plain text and DOCX files.
type FileLoader struct {
	cleaner *cleaner.Cleaner
	pdf     parser.Parser
	text    parser.Parser
	now     func() time.Time
}

// New creates a loader. Extracted text is passed through c.
func New(ctx context.Context, c *cleaner.Cleaner) (*FileLoader, error) {
	pdfParser, err := newPDFParser(ctx)
	if err != nil {
		return nil, fmt.Errorf("init pdf parser: %w", err)
	}
	if c == nil {
		c = cleaner.New(cleaner.DefaultOptions())
	}
	return &FileLoader{
		cleaner: c,
		pdf:     pdfParser,
		text:    &parser.TextParser{},
		now:     time.Now,
	}, nil
}

// Load reads, extracts and cleans the file at path.
func (l *FileLoader) Load(ctx context.Context, path string) (*domain.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(supported, ext) {
		return nil, fmt.Errorf("%w: %q (supported: %s)", domain.ErrUnsupportedFormat, ext, strings.Join(supported, ", "))
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnreadableFile, err)
	}

	var pages []page
	switch ext {
	case ".pdf":
		pages, err = l.parsePDF(ctx, path, raw)
	case ".txt":
		pages, err = l.parseText(ctx, path, raw)
	case ".docx":
		pages, err = parseDOCX(raw)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrUnreadableFile, filepath.Base(path), err)
	}

	name := filepath.Base(path)
	doc := &domain.Document{
		ID:        DocumentID(name, raw),
		Name:      name,
		Path:      path,
		Ext:       ext,
		Size:      int64(len(raw)),
		CreatedAt: l.now(),
	}
	l.assemble(doc, pages)
	if doc.Text == "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrEmptyDocument, name)
	}
	return doc, nil
}

// assemble cleans every page and joins them with a blank line, recording where
// each page starts.
func (l *FileLoader) assemble(doc *domain.Document, pages []page) {
	var b strings.Builder
	offset := 0
	for _, p := range pages {
		text := l.cleaner.Clean(p.text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
			offset += 2
		}
		if p.number > 0 {
			doc.Pages = append(doc.Pages, domain.Page{Number: p.number, Offset: offset})
		}
		b.WriteString(text)
		offset += utf8.RuneCountInString(text)
	}
	doc.Text = b.String()
}
