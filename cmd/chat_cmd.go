package cmd

import (
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat or send a single prompt",
	Long: `Start a conversation with an AI model. Same as running orchat with no
subcommand.

Modes:
  Interactive (default): Full TUI chat interface with history and model switching
  Single-turn (--prompt): Send one message, stream the response, and exit

Examples:
  orchat chat                                 # Interactive chat
  orchat chat -m anthropic/claude-sonnet-4    # With specific model
  orchat chat -p "Explain Go concurrency"     # Single-turn mode
  orchat chat -p "Hello" --stream=false       # Without streaming`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return rootCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&resumeID, "resume", "", "Resume the session with this ID")
	chatCmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Prompt for single-turn mode (omit for interactive chat)")
}
