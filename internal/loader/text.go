package loader

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/document/parser"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func (l *FileLoader) parseText(ctx context.Context, path string, raw []byte) ([]page, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !utf8.Valid(raw) {
		return nil, errors.New("file is not valid UTF-8 text")
	}
	docs, err := l.text.Parse(ctx, bytes.NewReader(raw), parser.WithURI(path))
	if err != nil {
		return nil, err
	}
	var parts []string
	for _, d := range docs {
		parts = append(parts, d.Content)
	}
	return []page{{text: strings.Join(parts, "\n\n")}}, nil
}
