package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"legalqa/internal/prompt"
)

var (
	askType string
	askJSON bool
)

// NewAskCmd creates the ask command.
func NewAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the indexed documents",
		Long: `Answer a question from the most relevant excerpts of the indexed documents.

Prompt types: qa, summary, term, analysis, thai.

Examples:
  legalqa ask "What is the notice period?"
  legalqa ask --type term "force majeure"`,
		Args: cobra.MinimumNArgs(1),
		RunE: withApp(runAsk),
	}
	cmd.Flags().StringVarP(&askType, "type", "t", string(prompt.QA), "prompt type")
	cmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	return cmd
}

func runAsk(cmd *cobra.Command, args []string, a *app) error {
	question := strings.Join(args, " ")
	turn, err := a.engine.Ask(cmd.Context(), question, prompt.ParseType(askType))
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}
	if askJSON {
		return printJSON(cmd.OutOrStdout(), turn)
	}
	printTurn(cmd.OutOrStdout(), turn)
	return nil
}
