package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// NewIngestCmd creates the ingest command.
func NewIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Index PDF, TXT or DOCX files",
		Long: `Extract, chunk and embed one or more documents into the local vector store.

Re-ingesting a file with the same name replaces its previous version.

Examples:
  legalqa ingest lease.pdf
  legalqa ingest contracts/*.docx`,
		Args: cobra.MinimumNArgs(1),
		RunE: withApp(runIngest),
	}
}

func runIngest(cmd *cobra.Command, args []string, a *app) error {
	out := cmd.OutOrStdout()
	var errs []error
	for _, path := range args {
		res, err := a.engine.Ingest(cmd.Context(), path)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		fmt.Fprintf(out, "Indexed %s (%s): %d page(s), %d word(s), %d chunk(s)", res.Name, res.DocumentID, res.Pages, res.Stats.Words, res.Chunks)
		if res.Replaced > 0 {
			fmt.Fprintf(out, ", replaced %d old chunk(s)", res.Replaced)
		}
		fmt.Fprintln(out)
		if res.Preview != "" {
			fmt.Fprintf(out, "  %s\n", truncate(res.Preview, 300))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d file(s) failed: %w", len(errs), len(args), errors.Join(errs...))
	}
	return nil
}
