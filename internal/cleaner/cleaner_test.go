package cleaner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	c := New(DefaultOptions())

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"control chars", "Sec\x00tion 1\x0c\r\nText", "Section 1\nText"},
		{"collapse spaces", "The   party \t of the  first part", "The party of the first part"},
		{"collapse newlines", "Clause 1\n\n\n\n\nClause 2", "Clause 1\n\nClause 2"},
		{"trim lines", "  indented  \n   next", "indented\nnext"},
		{"page numbers", "Article 1\n12\nArticle 2\nPage 3\nArticle 3", "Article 1\nArticle 2\nArticle 3"},
		{"page of", "Terms\npage 2 of 10\nmore", "Terms\nmore"},
		{"thai page", "มาตรา 1\nหน้า 4\nมาตรา 2", "มาตรา 1\nมาตรา 2"},
		{"footers", "A\n- 5 -\nB\n[ 6 ]\nC", "A\nB\nC"},
		{"ellipsis and rules", "Name.......... here\n-------", "Name... here\n---"},
		{"zero width", "con\u200btract\ufeff", "contract"},
		{"nbsp", "10\u00a0000 baht", "10 000 baht"},
		{"thai ocr", "สํานักงาน เเละ", "สำนักงาน และ"},
		{"keeps numbers inside text", "Section 12 applies", "Section 12 applies"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Clean(tt.in))
		})
	}
}

func TestCleanOptionsDisabled(t *testing.T) {
	c := New(Options{})
	assert.Equal(t, "A\n12\nB", c.Clean("A\n12\nB"))
	assert.Equal(t, "เเ", c.Clean("เเ"))
}

func TestCleanIsIdempotent(t *testing.T) {
	c := New(DefaultOptions())
	in := "  Contract\r\n\r\n\r\nPage 1\nThe  Buyer.....\n\n\n- 2 -\nSeller  "
	once := c.Clean(in)
	assert.Equal(t, once, c.Clean(once))
}

func TestTextStats(t *testing.T) {
	s := TextStats("First para line one.\nline two\n\nSecond para.")
	assert.Equal(t, Stats{Chars: 43, Words: 8, Lines: 4, Paragraphs: 2}, s)
	assert.Equal(t, Stats{}, TextStats("   "))
}
