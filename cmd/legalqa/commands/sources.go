package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var sourcesJSON bool

// NewSourcesCmd creates the sources command.
func NewSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List indexed documents",
		Args:  cobra.NoArgs,
		RunE:  withApp(runSources),
	}
	cmd.Flags().BoolVar(&sourcesJSON, "json", false, "output as JSON")
	return cmd
}

func runSources(cmd *cobra.Command, _ []string, a *app) error {
	sources, err := a.engine.Sources(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing sources: %w", err)
	}
	if sourcesJSON {
		return printJSON(cmd.OutOrStdout(), sources)
	}
	if len(sources) == 0 {
		cmd.Println("No documents indexed.")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCHUNKS")
	for _, s := range sources {
		fmt.Fprintf(w, "%s\t%s\t%d\n", s.DocumentID, truncate(s.Name, 50), s.Chunks)
	}
	return w.Flush()
}
