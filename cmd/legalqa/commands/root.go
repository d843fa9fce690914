// Package commands implements the legalqa command line.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	cfgPath   string
	verbose   bool
	logFormat string
)

// NewRootCmd creates the root command. Run without a subcommand it starts
// the web UI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "legalqa",
		Short: "Ask questions about your legal documents, privately",
		Long: `legalqa indexes PDF, TXT and DOCX files and answers questions about them
with a language model running on this computer. Nothing leaves the machine.

Running legalqa without a command starts the web UI on 127.0.0.1.

Examples:
  legalqa
  legalqa ingest lease.pdf nda.docx
  legalqa ask "When can the landlord terminate the lease?"
  legalqa chat --type term`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runServe,
	}

	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default ./config.yaml or ~/.config/legalqa/config.yaml)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text, json or logfmt (overrides config)")
	cmd.Flags().IntVarP(&servePort, "port", "p", 0, "port for the web UI (overrides config)")

	cmd.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewAskCmd(),
		NewChatCmd(),
		NewSummarizeCmd(),
		NewSourcesCmd(),
		NewDeleteCmd(),
		NewClearCmd(),
		NewStatusCmd(),
		NewStorageCmd(),
		NewCleanupCmd(),
		NewVersionCmd(),
	)
	return cmd
}

// Execute runs the command line.
func Execute() error {
	return NewRootCmd().Execute()
}
