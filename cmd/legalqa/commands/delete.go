package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewDeleteCmd creates the delete command.
func NewDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id|name>",
		Short: "Delete a document and its index",
		Long: `Delete one document: its vectors and its saved original file.

Examples:
  legalqa delete lease.pdf
  legalqa delete 3f9a1c0d2b7e4a51`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(runDelete),
	}
}

func runDelete(cmd *cobra.Command, args []string, a *app) error {
	n, err := a.engine.DeleteSource(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	cmd.Printf("Deleted %s (%d chunk(s))\n", args[0], n)
	return nil
}
