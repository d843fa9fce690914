package loader

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	"github.com/cloudwego/eino/components/document/parser"
)

func newPDFParser(ctx context.Context) (parser.Parser, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{ToPages: true})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// parsePDF extracts one page per PDF page. The underlying reader panics on
// some malformed files, so panics are turned into errors.
func (l *FileLoader) parsePDF(ctx context.Context, path string, raw []byte) (pages []page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	docs, err := l.pdf.Parse(ctx, bytes.NewReader(raw), parser.WithURI(path))
	if err != nil {
		return nil, err
	}
	for i, d := range docs {
		pages = append(pages, page{number: i + 1, text: d.Content})
	}
	return pages, nil
}
