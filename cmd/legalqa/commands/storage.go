package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewStorageCmd creates the storage command.
func NewStorageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "storage",
		Short: "Show disk usage and retention settings",
		Args:  cobra.NoArgs,
		RunE:  withApp(runStorage),
	}
}

func runStorage(cmd *cobra.Command, _ []string, a *app) error {
	info, err := a.engine.Storage()
	if err != nil {
		return fmt.Errorf("storage info: %w", err)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FOLDER\tFILES\tSIZE\tPATH")
	for _, f := range info.Folders {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", f.Name, f.Files, f.Size, f.Path)
	}
	fmt.Fprintf(w, "total\t\t%s\t\n", info.TotalSize)
	if err := w.Flush(); err != nil {
		return err
	}
	if info.RetentionDays > 0 {
		cmd.Printf("Documents are kept for %d day(s).\n", info.RetentionDays)
	} else {
		cmd.Println("Documents are kept until deleted.")
	}
	if info.AutoDeleteTemp {
		cmd.Println("Temporary files are deleted on exit.")
	}
	return nil
}
