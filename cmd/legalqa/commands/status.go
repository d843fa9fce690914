package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statusJSON bool

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show model server and index status",
		Args:  cobra.NoArgs,
		RunE:  withApp(runStatus),
	}
	cmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	return cmd
}

func runStatus(cmd *cobra.Command, _ []string, a *app) error {
	st, err := a.engine.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	if statusJSON {
		return printJSON(cmd.OutOrStdout(), st)
	}
	out := cmd.OutOrStdout()
	reach := "reachable"
	if !st.LLMReachable {
		reach = "not reachable: " + st.LLMError
	}
	fmt.Fprintf(out, "Config:    %s\n", a.cfgPath)
	fmt.Fprintf(out, "LLM:       %s (%s)\n", st.LLM, reach)
	fmt.Fprintf(out, "Model:     %s\n", st.Model)
	if len(st.Models) > 0 {
		fmt.Fprintf(out, "Available: %s\n", strings.Join(st.Models, ", "))
	}
	if st.EmbedderError != "" {
		fmt.Fprintf(out, "Embedder:  %s (not reachable: %s)\n", st.Embedder, st.EmbedderError)
	} else {
		fmt.Fprintf(out, "Embedder:  %s\n", st.Embedder)
	}
	fmt.Fprintf(out, "Documents: %d (%d chunks)\n", len(st.Sources), st.Records)
	return nil
}
