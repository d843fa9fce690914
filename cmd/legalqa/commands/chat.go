package commands

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"legalqa/internal/prompt"
	"legalqa/internal/tui"
)

var chatType string

// NewChatCmd creates the chat command.
func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat about the indexed documents in the terminal",
		Long: `Launch the interactive terminal chat.

Controls:
  Enter     - Ask
  Ctrl+S    - Summarize all documents
  Tab       - Show the excerpts behind the last answer
  Ctrl+L    - Clear the conversation
  Ctrl+C    - Quit`,
		Args: cobra.NoArgs,
		RunE: withApp(runChat),
	}
	cmd.Flags().StringVarP(&chatType, "type", "t", string(prompt.QA), "prompt type")
	return cmd
}

func runChat(cmd *cobra.Command, _ []string, a *app) error {
	m := tui.New(cmd.Context(), a.engine, a.title(), prompt.ParseType(chatType))
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
	return err
}
