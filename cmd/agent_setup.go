package cmd

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/vstratful/orchat/internal/config"
)

var agentSetupCmd = &cobra.Command{
	Use:   "agent-setup",
	Short: "Output setup information for AI agents",
	Long: `Output context and setup instructions for AI agents being introduced to this CLI.

This command does NOT require an API key and can be run immediately after installation.

Example:
  orchat agent-setup`,
	Run: func(cmd *cobra.Command, args []string) {
		writeAgentSetup(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(agentSetupCmd)
}

func writeAgentSetup(w io.Writer) {
	resolvedPath, err := config.GetConfigPath()
	if err != nil {
		resolvedPath = "(unable to determine)"
	}

	fmt.Fprintf(w, `# orchat - Agent Setup Guide

## Configuration

Config file location: %s
(Your resolved path: %s)

Create the config file with:
{
  "api_key": "sk-or-v1-your-key-here",
  "default_model": "%s"
}

Alternatively, set the %s environment variable.
Per-project settings (model, reasoning_effort, idle_timeout_seconds,
max_attachment_bytes, log_level) can be placed in %s in the working directory.

## Commands

Single-turn (streams the reply to stdout):
  orchat -p "Explain Go concurrency"
  orchat -m anthropic/claude-sonnet-4 -p "Review @internal/chat/model.go"

Files are attached with @path, or @"path with spaces".

List models:
  orchat models
  orchat models claude --details

Resume session:
  orchat resume <id>
  orchat resume --last
`, configPathDescription(), resolvedPath, config.DefaultModel, config.EnvAPIKey, config.ProjectFileName)
}

// configPathDescription returns the OS-specific human-readable config path.
func configPathDescription() string {
	switch runtime.GOOS {
	case "darwin":
		return "~/Library/Application Support/orchat/config.json"
	case "windows":
		return `%APPDATA%\orchat\config.json`
	default:
		return "~/.config/orchat/config.json"
	}
}
