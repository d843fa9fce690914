// Package tui is a terminal chat client over the question answering engine.
package tui

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"legalqa/internal/domain"
	"legalqa/internal/prompt"
)

// Engine is the TUI-facing subset of the service engine.
type Engine interface {
	Ask(ctx context.Context, question string, pt prompt.Type) (*domain.Turn, error)
	Summarize(ctx context.Context, source string) (*domain.Turn, error)
	ResetHistory()
}

type answerMsg struct {
	turn *domain.Turn
	err  error
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	ctx        context.Context
	engine     Engine
	promptType prompt.Type
	title      string
	input      textinput.Model
	viewport   viewport.Model
	spinner    spinner.Model
	turns      []domain.Turn
	pending    string
	busy       bool
	status     string
	// cursor is the excerpt of the last answer being shown, -1 for none.
	cursor int
	ready  bool
}

// New creates a chat model. title is shown in the header, usually the model name.
func New(ctx context.Context, engine Engine, title string, pt prompt.Type) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your documents and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		ctx:        ctx,
		engine:     engine,
		promptType: pt,
		title:      title,
		input:      ti,
		viewport:   viewport.New(0, 0),
		spinner:    sp,
		cursor:     -1,
		status:     "enter ask · ctrl+s summarize · ctrl+l clear · tab excerpts · ctrl+c quit",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := boxStyle.GetFrameSize()
		reserved := 2 + 1 + bh + 1 // header lines, status, input frame, input line
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-bh)
		m.input.Width = max(10, msg.Width-6)
		m.refresh()
		return m, nil
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case answerMsg:
		m.busy = false
		m.pending = ""
		if msg.err != nil {
			m.status = "Error: " + errorHint(msg.err)
		} else {
			m.turns = append(m.turns, *msg.turn)
			m.cursor = -1
			m.status = fmt.Sprintf("Answered from %d excerpt(s)", len(msg.turn.Contexts))
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.input.Reset()
			return m.start(q, func(ctx context.Context) (*domain.Turn, error) {
				return m.engine.Ask(ctx, q, m.promptType)
			})
		case "ctrl+s":
			if m.busy {
				return m, nil
			}
			return m.start("Summarize all documents", func(ctx context.Context) (*domain.Turn, error) {
				return m.engine.Summarize(ctx, "")
			})
		case "ctrl+l":
			m.engine.ResetHistory()
			m.turns = nil
			m.cursor = -1
			m.status = "History cleared"
			m.refresh()
			return m, nil
		case "tab":
			if n := m.excerpts(); n > 0 {
				m.cursor++
				if m.cursor >= n {
					m.cursor = -1
				}
				m.refresh()
			}
			return m, nil
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) start(label string, call func(context.Context) (*domain.Turn, error)) (tea.Model, tea.Cmd) {
	m.busy = true
	m.pending = label
	m.status = "Thinking…"
	m.refresh()
	ctx := m.ctx
	return m, tea.Batch(func() tea.Msg {
		turn, err := call(ctx)
		return answerMsg{turn: turn, err: err}
	}, m.spinner.Tick)
}

// View renders the header, conversation, input and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Legal document assistant")
	sub := dimStyle.Render(fmt.Sprintf("%s · prompt: %s", m.title, m.promptType))
	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + sub + "\n" + boxStyle.Render(m.viewport.View()) + "\n" + boxStyle.Render(m.input.View()) + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderConversation())
	m.viewport.GotoBottom()
}

func (m Model) excerpts() int {
	if len(m.turns) == 0 {
		return 0
	}
	return len(m.turns[len(m.turns)-1].Contexts)
}

func (m Model) renderConversation() string {
	if len(m.turns) == 0 && m.pending == "" {
		return dimStyle.Render("No questions yet. Upload documents with `legalqa ingest`, then ask away.")
	}
	wrap := lipgloss.NewStyle().Width(max(10, m.viewport.Width-2))
	var b strings.Builder
	for _, t := range m.turns {
		b.WriteString(questionStyle.Render("You: "+t.Question) + "\n")
		b.WriteString(wrap.Render(t.Answer) + "\n")
		if refs := formatSources(t.Sources); refs != "" {
			b.WriteString(dimStyle.Render("Sources: "+refs) + "\n")
		}
		b.WriteString("\n")
	}
	if m.cursor >= 0 && len(m.turns) > 0 {
		last := m.turns[len(m.turns)-1]
		r := last.Contexts[m.cursor]
		title := fmt.Sprintf("Excerpt %d/%d  %s  score=%.3f", m.cursor+1, len(last.Contexts), r.Chunk.Source, r.Score)
		b.WriteString(dimStyle.Render(title) + "\n")
		b.WriteString(wrap.Render(highlightBestSentence(r.Chunk.Text, last.Question)) + "\n\n")
	}
	if m.pending != "" {
		b.WriteString(questionStyle.Render("You: "+m.pending) + "\n")
	}
	return b.String()
}

func formatSources(refs []domain.SourceRef) string {
	seen := map[string]bool{}
	var parts []string
	for _, r := range refs {
		label := r.Name
		if r.Page > 0 {
			label += fmt.Sprintf(" p.%d", r.Page)
		}
		if seen[label] {
			continue
		}
		seen[label] = true
		parts = append(parts, label)
	}
	return strings.Join(parts, ", ")
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, domain.ErrModelUnavailable):
		return "the local model server is not reachable. Start it (for example `ollama serve`) and try again."
	case errors.Is(err, domain.ErrModelTimeout):
		return "the local model server timed out. Try a smaller model or a shorter question."
	default:
		return err.Error()
	}
}

var (
	boxStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	headerStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	questionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`[^.!?。\n]+(?:[.!?。]+|\n|$)`)
)

// highlightBestSentence emphasises the sentence sharing most words with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	var sentences []string
	for _, s := range sentenceRe.FindAllString(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	sentences[bestIdx] = highlightStyle.Render(sentences[bestIdx])
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
