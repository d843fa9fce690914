package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var summarizeSource string

// NewSummarizeCmd creates the summarize command.
func NewSummarizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize one document or all of them",
		Long: `Summarize the indexed documents, or only the one named by --source
(a document ID or file name as listed by "legalqa sources").`,
		Args: cobra.NoArgs,
		RunE: withApp(runSummarize),
	}
	cmd.Flags().StringVarP(&summarizeSource, "source", "s", "", "document ID or file name")
	return cmd
}

func runSummarize(cmd *cobra.Command, _ []string, a *app) error {
	turn, err := a.engine.Summarize(cmd.Context(), summarizeSource)
	if err != nil {
		return fmt.Errorf("summarize failed: %w", err)
	}
	printTurn(cmd.OutOrStdout(), turn)
	return nil
}
