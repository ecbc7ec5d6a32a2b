package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/vstratful/orchat/internal/config"
)

var (
	model             string
	reasoningEffort   string
	idleTimeout       time.Duration
	maxAttachmentSize string
	logLevel          string
	noBanner          bool
	resumeID          string
	prompt            string
	streaming         bool
)

var rootCmd = &cobra.Command{
	Use:   "orchat",
	Short: "Chat with OpenRouter models from your terminal",
	Long: `orchat is a terminal chat client for models served through OpenRouter.

Responses stream as they are generated. Type / for commands and @ to attach
files from the working directory.

Examples:
  orchat                                        # Interactive chat
  orchat --model google/gemini-2.5-flash        # Chat with a specific model
  orchat --resume <session-id>                  # Continue a stored session
  orchat -p "Summarize @README.md"              # Single-turn mode`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, firstRun, err := loadConfig()
		if err != nil {
			return err
		}

		if firstRun {
			configPath, _ := config.GetConfigPath()
			fmt.Printf("\nAPI key saved to %s\n", configPath)
			fmt.Println("\nYou're all set! Try running:")
			fmt.Println("  orchat                    # Interactive chat")
			fmt.Println("  orchat -p \"Hello, world!\" # Single-turn mode")
			return nil
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		if prompt != "" {
			return a.runPrompt(cmd.Context(), prompt)
		}
		return a.runChat(cmd.Context(), resumeID)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&model, "model", "m", "", "Model to use (default: "+config.DefaultModel+")")
	rootCmd.PersistentFlags().StringVar(&reasoningEffort, "reasoning-effort", "", "Reasoning effort: low, medium, high or xhigh")
	rootCmd.PersistentFlags().DurationVar(&idleTimeout, "idle-timeout", 0, "Fail a response after this long without events (default: 2m)")
	rootCmd.PersistentFlags().StringVar(&maxAttachmentSize, "max-attachment-bytes", "", "Largest file an @mention may attach, e.g. 262144 or 256KiB")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&noBanner, "no-banner", false, "Hide the startup banner")
	rootCmd.PersistentFlags().BoolVarP(&streaming, "stream", "s", true, "Stream responses as they are generated")
	rootCmd.Flags().StringVar(&resumeID, "resume", "", "Resume the session with this ID")
	rootCmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Prompt for single-turn mode (omit for interactive chat)")
}

// Execute runs the root command. Interrupts cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// overrides collects the flag values shared by every command.
func overrides() (config.Overrides, error) {
	o := config.Overrides{
		Model:           model,
		ReasoningEffort: reasoningEffort,
		IdleTimeout:     idleTimeout,
		LogLevel:        logLevel,
		NoBanner:        noBanner,
	}
	if maxAttachmentSize != "" {
		n, err := humanize.ParseBytes(maxAttachmentSize)
		if err != nil {
			return o, fmt.Errorf("invalid --max-attachment-bytes: %w", err)
		}
		o.MaxAttachmentBytes = int64(n)
	}
	return o, nil
}

// loadConfig resolves the configuration. The API key is taken from, in order:
// 1. OPENROUTER_API_KEY environment variable
// 2. The project or user config file
// 3. An interactive prompt (first-run experience), saved to the config file
// The boolean reports whether first-run setup happened.
func loadConfig() (*config.AppConfig, bool, error) {
	o, err := overrides()
	if err != nil {
		return nil, false, err
	}
	cfg, err := config.Resolve(o)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.APIKey != "" {
		return cfg, false, nil
	}

	key, err := config.PromptForAPIKey(os.Stdin, os.Stdout)
	if err != nil {
		return nil, false, err
	}

	fileCfg, err := config.Load()
	if err != nil {
		return nil, false, fmt.Errorf("failed to load config: %w", err)
	}
	fileCfg.APIKey = key
	if fileCfg.DefaultModel == "" {
		fileCfg.DefaultModel = config.DefaultModel
	}
	if err := config.Save(fileCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to save config: %v\n", err)
	}

	cfg.APIKey = key
	return cfg, true, nil
}
