// Package cleaner normalises text extracted from legal documents before chunking.
package cleaner

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	spaceRe     = regexp.MustCompile(`[ \t\f\v]+`)
	newlineRe   = regexp.MustCompile(`\n{3,}`)
	ellipsisRe  = regexp.MustCompile(`\.{4,}`)
	dashRe      = regexp.MustCompile(`-{3,}`)
	pageLineRes = []*regexp.Regexp{
		regexp.MustCompile(`^\d{1,3}$`),
		regexp.MustCompile(`^หน้า\s*\d+$`),
		regexp.MustCompile(`(?i)^page\s*\d+(\s*(of|/)\s*\d+)?$`),
		regexp.MustCompile(`^-\s*\d+\s*-$`),
		regexp.MustCompile(`^\[\s*\d+\s*\]$`),
	}
)

var zeroWidth = map[rune]bool{
	'\u200B': true,
	'\u200C': true,
	'\u200D': true,
	'\uFEFF': true,
	'\u2060': true,
	'\u180E': true,
}

// Thai OCR commonly splits sara am and doubles sara e.
var thaiOCRFixes = strings.NewReplacer(
	"ํา", "ำ",
	"เเ", "แ",
)

// Options toggles optional cleaning steps.
type Options struct {
	RemovePageNumbers bool
	FixThaiOCR        bool
}

// DefaultOptions enables every step.
func DefaultOptions() Options {
	return Options{RemovePageNumbers: true, FixThaiOCR: true}
}

// Cleaner applies a fixed set of normalisations to extracted text.
type Cleaner struct {
	opts Options
}

// New creates a cleaner.
func New(opts Options) *Cleaner {
	return &Cleaner{opts: opts}
}

// Clean returns text with control characters removed, page furniture dropped,
// whitespace collapsed and Unicode in NFC form.
func (c *Cleaner) Clean(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = stripRunes(text)
	text = norm.NFC.String(text)
	if c.opts.FixThaiOCR {
		text = thaiOCRFixes.Replace(text)
	}

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(spaceRe.ReplaceAllString(line, " "))
		if c.opts.RemovePageNumbers && isPageLine(line) {
			continue
		}
		kept = append(kept, line)
	}
	text = strings.Join(kept, "\n")

	text = ellipsisRe.ReplaceAllString(text, "...")
	text = dashRe.ReplaceAllString(text, "---")
	text = newlineRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func isPageLine(line string) bool {
	if line == "" {
		return false
	}
	for _, re := range pageLineRes {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// stripRunes drops NUL, form feeds and other control characters except
// newline and tab, drops zero-width characters and maps exotic spaces to ' '.
func stripRunes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case r < 0x20 || r == 0x7F:
		case zeroWidth[r]:
		case r != ' ' && unicode.Is(unicode.Zs, r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Stats summarises a cleaned text.
type Stats struct {
	Chars      int `json:"chars"`
	Words      int `json:"words"`
	Lines      int `json:"lines"`
	Paragraphs int `json:"paragraphs"`
}

// TextStats counts characters, words, lines and blank-line separated paragraphs.
func TextStats(text string) Stats {
	if strings.TrimSpace(text) == "" {
		return Stats{}
	}
	paragraphs := 0
	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) != "" {
			paragraphs++
		}
	}
	return Stats{
		Chars:      len([]rune(text)),
		Words:      len(strings.Fields(text)),
		Lines:      strings.Count(text, "\n") + 1,
		Paragraphs: paragraphs,
	}
}
