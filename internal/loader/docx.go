package loader

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const docxBody = "word/document.xml"

// maxDOCXBody caps the uncompressed size of word/document.xml.
var maxDOCXBody int64 = 64 << 20

// parseDOCX streams word/document.xml and emits one line per paragraph,
// including paragraphs nested in tables.
func parseDOCX(raw []byte) ([]page, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open docx archive: %w", err)
	}
	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBody {
			body = f
			break
		}
	}
	if body == nil {
		return nil, errors.New("docx archive has no word/document.xml")
	}
	if body.UncompressedSize64 > uint64(maxDOCXBody) {
		return nil, fmt.Errorf("%s is larger than %d bytes", docxBody, maxDOCXBody)
	}
	rc, err := body.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", docxBody, err)
	}
	defer rc.Close()

	// The header size can lie, so the stream is capped as well.
	lr := &io.LimitedReader{R: rc, N: maxDOCXBody + 1}
	text, err := docxText(lr)
	if lr.N <= 0 {
		return nil, fmt.Errorf("%s is larger than %d bytes", docxBody, maxDOCXBody)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", docxBody, err)
	}
	return []page{{text: text}}, nil
}

func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		b      strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}
