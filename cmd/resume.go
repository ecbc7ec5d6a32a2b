package cmd

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/vstratful/orchat/internal/config"
	"github.com/vstratful/orchat/internal/sdk"
	"github.com/vstratful/orchat/internal/tui"
	"github.com/vstratful/orchat/internal/tui/picker"
)

var lastSession bool

var resumeCmd = &cobra.Command{
	Use:   "resume [session-id]",
	Short: "Resume a previous chat session",
	Long: `Resume a previous chat session.

Usage:
  orchat resume           # Opens session picker TUI
  orchat resume <id>      # Resumes session directly by ID
  orchat resume --last    # Resumes most recent session`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
	resumeCmd.Flags().BoolVar(&lastSession, "last", false, "Resume most recent session")
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, firstRun, err := loadConfig()
	if err != nil {
		return err
	}
	if firstRun {
		configPath, _ := config.GetConfigPath()
		fmt.Printf("\nAPI key saved to %s\n", configPath)
		fmt.Println("\nRun the command again to resume a session.")
		return nil
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	id, err := chooseSession(ctx, a.client, args)
	if err != nil {
		return err
	}
	if id == "" {
		return nil
	}

	return a.runChat(ctx, id)
}

// sessionLister is the part of the backend the resume command needs.
type sessionLister interface {
	ListSessions(ctx context.Context) ([]sdk.SessionMetadata, error)
	LastSessionID(ctx context.Context) (string, error)
}

// chooseSession returns the session to resume: the explicit ID, the most
// recent session with --last, or the one picked interactively. An empty ID
// means there is nothing to resume.
func chooseSession(ctx context.Context, client sessionLister, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}

	if lastSession {
		id, err := client.LastSessionID(ctx)
		if errors.Is(err, sdk.ErrSessionNotFound) || (err == nil && id == "") {
			return "", fmt.Errorf("no sessions found")
		}
		return id, err
	}

	sessions, err := client.ListSessions(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No saved sessions found.")
		fmt.Println("Start a new chat with: orchat")
		return "", nil
	}

	selected, err := runSessionPicker(sessions)
	if err != nil {
		return "", fmt.Errorf("failed to show session picker: %w", err)
	}
	if selected == nil {
		return "", nil
	}
	return selected.ID, nil
}

// sessionPickerModel is a standalone picker for the resume command.
type sessionPickerModel struct {
	picker   picker.Model
	selected *sdk.SessionMetadata
}

func (m sessionPickerModel) Init() tea.Cmd {
	return m.picker.Init()
}

func (m sessionPickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "enter" && !m.picker.IsFiltering() {
		m.selected = picker.GetSession(m.picker.SelectedItem())
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)
	return m, cmd
}

func (m sessionPickerModel) View() string {
	if m.picker.Quitting {
		return ""
	}
	return m.picker.View() + "\n" + tui.HelpStyle.Render("Enter: select | Esc/q: cancel | /: filter")
}

// runSessionPicker shows the session picker TUI and returns the selected session.
func runSessionPicker(sessions []sdk.SessionMetadata) (*sdk.SessionMetadata, error) {
	m := sessionPickerModel{
		picker: picker.NewSessionPicker(sessions, 0, 0),
	}
	p := tea.NewProgram(m, tea.WithAltScreen())

	finalModel, err := p.Run()
	if err != nil {
		return nil, err
	}

	if fm, ok := finalModel.(sessionPickerModel); ok {
		return fm.selected, nil
	}
	return nil, nil
}
