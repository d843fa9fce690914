package commands

import (
	"github.com/spf13/cobra"

	"legalqa/internal/service"
)

var clearScope string

// NewClearCmd creates the clear command.
func NewClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete stored data",
		Long: `Delete stored data. Scopes:
  temp     in-flight upload files
  uploads  saved original files
  vectors  the whole vector index
  all      everything above (default)`,
		Args: cobra.NoArgs,
		RunE: withApp(runClear),
	}
	cmd.Flags().StringVar(&clearScope, "scope", string(service.ScopeAll), "temp, uploads, vectors or all")
	return cmd
}

func runClear(cmd *cobra.Command, _ []string, a *app) error {
	scope, err := service.ParseScope(clearScope)
	if err != nil {
		return err
	}
	return printReport(cmd.OutOrStdout(), "Deleted", a.engine.Clear(cmd.Context(), scope))
}
