package commands

import (
	"github.com/spf13/cobra"
)

// NewCleanupCmd creates the cleanup command.
func NewCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Apply the retention policy now",
		Long: `Remove stale temp files, orphaned uploads and documents older than
retention.days. The same policy runs every time legalqa starts.`,
		Args: cobra.NoArgs,
		RunE: withApp(runCleanup),
	}
}

func runCleanup(cmd *cobra.Command, _ []string, a *app) error {
	report, err := a.engine.Cleanup(cmd.Context())
	if err != nil {
		return err
	}
	return printReport(cmd.OutOrStdout(), "Removed", report)
}
