package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"legalqa/internal/domain"
	"legalqa/internal/retention"
)

const shutdownTimeout = 5 * time.Second

// truncate shortens s to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// sourceLabels lists each cited document and page once, in citation order.
func sourceLabels(refs []domain.SourceRef) []string {
	seen := map[string]bool{}
	var labels []string
	for _, r := range refs {
		label := r.Name
		if r.Page > 0 {
			label = fmt.Sprintf("%s p.%d", r.Name, r.Page)
		}
		if seen[label] {
			continue
		}
		seen[label] = true
		labels = append(labels, label)
	}
	return labels
}

func printTurn(w io.Writer, turn *domain.Turn) {
	fmt.Fprintln(w, turn.Answer)
	if labels := sourceLabels(turn.Sources); len(labels) > 0 {
		fmt.Fprintf(w, "\nSources: %s\n", strings.Join(labels, ", "))
	}
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func printReport(w io.Writer, verb string, r retention.Report) error {
	fmt.Fprintf(w, "%s %d item(s)\n", verb, r.Deleted)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
	return r.Err()
}
