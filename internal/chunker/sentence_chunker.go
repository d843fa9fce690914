package chunker

import (
	"unicode"

	"legalqa/internal/domain"
)

// SentenceChunker groups consecutive sentences into chunks, repeating the
// last overlapSentences sentences at the start of the next chunk.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	if overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
	}
}

type span struct{ start, end int }

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。':
		return true
	}
	return false
}

// sentences splits runes after each run of terminators and at every line
// break, trimming surrounding whitespace. Every non-space rune lands in
// exactly one span, so lines of bare punctuation are kept.
func sentences(runes []rune) []span {
	var spans []span
	emit := func(s, e int) {
		for s < e && unicode.IsSpace(runes[s]) {
			s++
		}
		for e > s && unicode.IsSpace(runes[e-1]) {
			e--
		}
		if s < e {
			spans = append(spans, span{start: s, end: e})
		}
	}
	start := 0
	for i := 0; i < len(runes); i++ {
		switch {
		case runes[i] == '\n':
			emit(start, i)
			start = i + 1
		case isTerminator(runes[i]):
			j := i + 1
			for j < len(runes) && isTerminator(runes[j]) {
				j++
			}
			emit(start, j)
			start = j
			i = j - 1
		}
	}
	emit(start, len(runes))
	return spans
}

func (c *SentenceChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	runes := []rune(document.Text)
	sents := sentences(runes)
	if len(sents) == 0 {
		return nil, nil
	}
	var chunks []domain.Chunk
	for i := 0; i < len(sents); {
		end := min(i+c.sentencesPerChunk, len(sents))
		start, stop := sents[i].start, sents[end-1].end
		chunks = append(chunks, newChunk(document, len(chunks), start, runes[start:stop]))
		if end == len(sents) {
			break
		}
		i = max(end-c.overlapSentences, i+1)
	}
	return chunks, nil
}
