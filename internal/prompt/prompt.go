// Package prompt renders the messages sent to the language model and the
// fixed answers returned when no model call is made.
package prompt

import (
	"fmt"
	"strings"
	"text/template"

	"legalqa/internal/domain"
)

// Type selects a prompt template.
type Type string

const (
	QA       Type = "qa"
	Summary  Type = "summary"
	Term     Type = "term"
	Analysis Type = "analysis"
	Thai     Type = "thai"
)

// Types lists every prompt type in display order.
func Types() []Type { return []Type{QA, Summary, Term, Analysis, Thai} }

// ParseType maps a name to a Type. Unknown names fall back to QA.
func ParseType(s string) Type {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Types() {
		if t == known {
			return t
		}
	}
	return QA
}

const systemPrompt = `You are a careful legal document assistant running entirely on the user's computer.
Answer only from the document excerpts provided. Never invent facts, section numbers or case names.
If the excerpts do not contain the answer, say that the documents do not cover it.
Cite the document name and page for every statement you make.`

// NoContext is returned when no document has been uploaded.
const NoContext = "No documents have been uploaded yet. Upload a PDF, TXT or DOCX file first, then ask your question."

// lowRelevance is returned when retrieval finds nothing above the threshold.
const lowRelevance = "No relevant information found in the uploaded documents for: %q\n\nTry rephrasing the question, using terms that appear in the document, or uploading the document that covers this topic."

// Disclaimer is appended to every model answer.
const Disclaimer = "This answer was generated from your documents by a local AI model and is not legal advice. Verify it against the source text and consult a qualified lawyer."

var templates = map[Type]*template.Template{
	QA: template.Must(template.New("qa").Parse(`Document excerpts:
{{.Context}}

Question: {{.Question}}

Answer the question using only the excerpts above. Quote the relevant wording where it helps and cite [document | page].`)),

	Summary: template.Must(template.New("summary").Parse(`Document excerpts:
{{.Context}}

Summarise the document(s) above for a non-lawyer. Cover:
1. The type of document and the parties involved
2. The main obligations and rights of each party
3. Important dates, amounts and deadlines
4. Termination, penalty and dispute clauses
5. Anything unusual that deserves attention
{{if .Question}}
Focus: {{.Question}}{{end}}`)),

	Term: template.Must(template.New("term").Parse(`Document excerpts:
{{.Context}}

Explain the legal term or clause "{{.Question}}" as it is used in the excerpts above. Give its meaning in plain language, how it applies in this document, and cite where it appears.`)),

	Analysis: template.Must(template.New("analysis").Parse(`Document excerpts:
{{.Context}}

Question: {{.Question}}

Analyse the excerpts above with respect to the question. Identify the relevant clauses, the obligations and risks they create for each party, any ambiguity or missing terms, and state your conclusion. Cite [document | page] for each point.`)),

	Thai: template.Must(template.New("thai").Parse(`เอกสารอ้างอิง:
{{.Context}}

คำถาม: {{.Question}}

ตอบคำถามเป็นภาษาไทยโดยใช้เฉพาะข้อมูลจากเอกสารอ้างอิงข้างต้นเท่านั้น หากเอกสารไม่มีข้อมูลให้ตอบว่าไม่พบข้อมูลในเอกสาร และระบุชื่อเอกสารและหน้าที่อ้างอิงทุกครั้ง`)),
}

// FormatContext renders retrieved chunks as numbered, labelled excerpts.
func FormatContext(results []domain.SearchResult) string {
	parts := make([]string, 0, len(results))
	for i, r := range results {
		label := fmt.Sprintf("[Document %d: %s", i+1, r.Chunk.Source)
		if r.Chunk.Page > 0 {
			label += fmt.Sprintf(" | page %d", r.Chunk.Page)
		}
		parts = append(parts, label+"]\n"+strings.TrimSpace(r.Chunk.Text))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// Build renders the system and user messages for a prompt type.
func Build(t Type, question string, results []domain.SearchResult) ([]domain.Message, error) {
	tmpl, ok := templates[t]
	if !ok {
		tmpl = templates[QA]
	}
	var b strings.Builder
	err := tmpl.Execute(&b, struct {
		Context  string
		Question string
	}{FormatContext(results), strings.TrimSpace(question)})
	if err != nil {
		return nil, fmt.Errorf("render %s prompt: %w", t, err)
	}
	return []domain.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: b.String()},
	}, nil
}

// LowRelevance is the answer given when nothing relevant was retrieved.
func LowRelevance(question string) string {
	return fmt.Sprintf(lowRelevance, strings.TrimSpace(question))
}

// WithDisclaimer appends the disclaimer to a model answer.
func WithDisclaimer(answer string) string {
	return strings.TrimSpace(answer) + "\n\n---\n" + Disclaimer
}
