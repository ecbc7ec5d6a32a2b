package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vstratful/orchat/internal/sdk"
	"github.com/vstratful/orchat/internal/tui/picker"
)

var showDetails bool

var modelsCmd = &cobra.Command{
	Use:   "models [filter]",
	Short: "List available chat models",
	Long: `List the chat models available through OpenRouter.

Examples:
  orchat models                 # List all models
  orchat models claude          # Models whose ID or name contains "claude"
  orchat models --details       # Show detailed info`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().BoolVar(&showDetails, "details", false, "Show detailed model information")
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, firstRun, err := loadConfig()
	if err != nil {
		return err
	}
	if firstRun {
		fmt.Println("\nAPI key saved. Run the command again to list models.")
		return nil
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	models, err := a.client.ListModels(cmd.Context())
	if err != nil {
		return err
	}

	var filter string
	if len(args) > 0 {
		filter = args[0]
	}
	printModels(os.Stdout, filterModels(models, filter), showDetails)
	return nil
}

// filterModels keeps the models whose ID or name contains filter, ignoring case.
func filterModels(models []sdk.ModelInfo, filter string) []sdk.ModelInfo {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		return models
	}
	var out []sdk.ModelInfo
	for _, m := range models {
		if strings.Contains(strings.ToLower(m.ID), filter) || strings.Contains(strings.ToLower(m.Name), filter) {
			out = append(out, m)
		}
	}
	return out
}

func printModels(w io.Writer, models []sdk.ModelInfo, details bool) {
	if len(models) == 0 {
		fmt.Fprintln(w, "No models found.")
		return
	}

	fmt.Fprintf(w, "Found %d models:\n\n", len(models))
	for _, m := range models {
		if details {
			printModelDetails(w, m)
		} else {
			fmt.Fprintf(w, "%-50s %s\n", m.ID, m.Name)
		}
	}
}

func printModelDetails(w io.Writer, m sdk.ModelInfo) {
	fmt.Fprintf(w, "ID: %s\n", m.ID)
	fmt.Fprintf(w, "Name: %s\n", m.Name)
	if m.ContextLength > 0 {
		fmt.Fprintf(w, "Context Length: %s tokens\n", humanize.Comma(int64(m.ContextLength)))
	}
	if m.PromptPrice != "" || m.CompletionPrice != "" {
		fmt.Fprintf(w, "Pricing: prompt=$%s/1M tokens, completion=$%s/1M tokens\n",
			picker.FormatPricePerMillion(m.PromptPrice), picker.FormatPricePerMillion(m.CompletionPrice))
	}
	fmt.Fprintln(w, strings.Repeat("-", 60))
}
