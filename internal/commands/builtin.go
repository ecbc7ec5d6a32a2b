package commands

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"golang.org/x/sync/errgroup"

	"github.com/vstratful/orchat/internal/config"
	"github.com/vstratful/orchat/internal/sdk"
)

// HookNames lists the session hooks reported by /hooks.
var HookNames = []string{
	"onSessionStart",
	"onUserPromptSubmitted",
	"onPreToolUse",
	"onPostToolUse",
	"onErrorOccurred",
	"onSessionEnd",
}

// pingTag identifies this client in ping requests.
const pingTag = "orchat"

var errNoClient = errors.New("not connected")

// Default returns the built-in command set.
func Default() *Registry {
	r := &Registry{}
	r.commands = []Command{
		{
			Name:        "help",
			Aliases:     []string{"?"},
			Description: "Show available commands",
			Usage:       "/help",
			Run: func(ctx context.Context, cc *Context, args []string) (Outcome, error) {
				return Info("%s", r.Help()), nil
			},
		},
		{
			Name:        "clear",
			Aliases:     []string{"cls"},
			Description: "Clear the conversation display",
			Usage:       "/clear",
			Run: func(ctx context.Context, cc *Context, args []string) (Outcome, error) {
				return Outcome{Type: OutcomeClear}, nil
			},
		},
		{
			Name:        "exit",
			Aliases:     []string{"quit", "q"},
			Description: "Exit the application",
			Usage:       "/exit",
			Run: func(ctx context.Context, cc *Context, args []string) (Outcome, error) {
				return Outcome{Type: OutcomeExit}, nil
			},
		},
		{
			Name:        "model",
			Description: "Switch model, or pick one from a list",
			Usage:       "/model [name]",
			Run:         runModel,
		},
		{
			Name:        "session",
			Description: "Show, list, create, resume or delete sessions",
			Usage:       "/session [list|new|resume <id>|delete <id>]",
			Run:         runSession,
		},
		{
			Name:        "reasoning",
			Description: "Set the reasoning effort",
			Usage:       "/reasoning [level]",
			Run:         runReasoning,
		},
		{
			Name:        "ping",
			Description: "Check that the server is reachable",
			Usage:       "/ping",
			Run:         runPing,
		},
		{
			Name:        "status",
			Description: "Show connection, auth and session status",
			Usage:       "/status",
			Run:         runStatus,
		},
		{
			Name:        "hooks",
			Description: "List session hooks",
			Usage:       "/hooks",
			Run: func(ctx context.Context, cc *Context, args []string) (Outcome, error) {
				return Info("Available hooks:\n  %s", strings.Join(HookNames, "\n  ")), nil
			},
		},
		{
			Name:        "provider",
			Description: "Show the model provider configuration",
			Usage:       "/provider",
			Run:         runProvider,
		},
		{
			Name:        "mcp",
			Description: "List configured MCP servers",
			Usage:       "/mcp",
			Run:         runMCP,
		},
		{
			Name:        "agent",
			Aliases:     []string{"agents"},
			Description: "List custom agents",
			Usage:       "/agent",
			Run:         runAgents,
		},
		{
			Name:        "copy",
			Description: "Copy the last response to the clipboard",
			Usage:       "/copy",
			Run:         runCopy,
		},
	}
	return r
}

// Help renders the command list.
func (r *Registry) Help() string {
	var b strings.Builder
	b.WriteString("Available commands:\n")

	width := 0
	for _, c := range r.commands {
		width = max(width, len(c.Usage))
	}
	for _, c := range r.commands {
		fmt.Fprintf(&b, "  %-*s  %s", width, c.Usage, c.Description)
		if len(c.Aliases) > 0 {
			aliases := make([]string, len(c.Aliases))
			for i, a := range c.Aliases {
				aliases[i] = "/" + a
			}
			fmt.Fprintf(&b, " (aliases: %s)", strings.Join(aliases, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\nStart a message with // to send it literally.\nMention files with @path to attach them.")
	return b.String()
}

func runModel(ctx context.Context, cc *Context, args []string) (Outcome, error) {
	if len(args) == 0 {
		return Outcome{Type: OutcomeOpenModelPicker}, nil
	}
	return Outcome{Type: OutcomeSetModel, Model: args[0]}, nil
}

const sessionUsage = "Usage: /session [list|new|resume <id>|delete <id>]"

func runSession(ctx context.Context, cc *Context, args []string) (Outcome, error) {
	if len(args) == 0 {
		if cc.Session == nil {
			return Info("No active session."), nil
		}
		return Info("Current session: %s", cc.Session.ID()), nil
	}

	switch action := strings.ToLower(args[0]); action {
	case "new":
		return Outcome{Type: OutcomeNewSession}, nil

	case "resume":
		if len(args) < 2 {
			return Error("Missing session id. Usage: /session resume <id>"), nil
		}
		return Outcome{Type: OutcomeResumeSession, SessionID: args[1]}, nil

	case "delete":
		if len(args) < 2 {
			return Error("Missing session id. Usage: /session delete <id>"), nil
		}
		id := args[1]
		if cc.Session != nil && cc.Session.ID() == id {
			return Error("Cannot delete the active session. Start a new one with /session new first."), nil
		}
		if cc.Client == nil {
			return Outcome{}, errNoClient
		}
		if err := cc.Client.DeleteSession(ctx, id); err != nil {
			return Error("Failed to delete session %s: %v", id, err), nil
		}
		return Info("Deleted session %s", id), nil

	case "list":
		if cc.Client == nil {
			return Outcome{}, errNoClient
		}
		sessions, err := cc.Client.ListSessions(ctx)
		if err != nil {
			return Error("Failed to list sessions: %v", err), nil
		}
		if len(sessions) == 0 {
			return Info("No sessions found."), nil
		}
		var b strings.Builder
		b.WriteString("Sessions:")
		for _, s := range sessions {
			marker := " "
			if cc.Session != nil && cc.Session.ID() == s.ID {
				marker = "*"
			}
			summary := s.Summary
			if summary == "" {
				summary = "(no summary)"
			}
			fmt.Fprintf(&b, "\n%s %s  %s", marker, s.ID, summary)
		}
		return Info("%s", b.String()), nil

	default:
		return Error("Unknown session action %q. %s", action, sessionUsage), nil
	}
}

func runReasoning(ctx context.Context, cc *Context, args []string) (Outcome, error) {
	levels := strings.Join(config.ReasoningEfforts, ", ")
	if len(args) == 0 {
		current := cc.ReasoningEffort
		if current == "" {
			current = "model default"
		}
		return Info("Usage: /reasoning <level>. Current: %s. Levels: %s", current, levels), nil
	}

	level := strings.ToLower(args[0])
	if !config.ValidReasoningEffort(level) {
		return Error("Invalid reasoning level %q. Valid levels: %s", args[0], levels), nil
	}
	return Outcome{Type: OutcomeSetReasoningEffort, ReasoningEffort: level}, nil
}

func runPing(ctx context.Context, cc *Context, args []string) (Outcome, error) {
	if cc.Client == nil {
		return Outcome{}, errNoClient
	}
	start := time.Now()
	resp, err := cc.Client.Ping(ctx, pingTag)
	if err != nil {
		return Error("Ping failed: %v", err), nil
	}
	msg := fmt.Sprintf("Pong! Server time: %s (round trip %s)",
		resp.Timestamp.Format(time.RFC3339), time.Since(start).Round(time.Millisecond))
	if resp.Message != "" {
		msg += "\n" + resp.Message
	}
	return Info("%s", msg), nil
}

func runStatus(ctx context.Context, cc *Context, args []string) (Outcome, error) {
	var (
		mu    sync.Mutex
		lines = map[string]string{}
	)
	set := func(key, line string) {
		mu.Lock()
		lines[key] = line
		mu.Unlock()
	}

	if cc.Client != nil {
		g, gctx := errgroup.WithContext(ctx)

		// Probes never return errors so one failure cannot cancel the others.
		g.Go(func() error {
			state, err := cc.Client.State(gctx)
			if err != nil {
				set("connection", fmt.Sprintf("Connection: unknown (%v)", err))
				return nil
			}
			set("connection", "Connection: "+string(state))
			return nil
		})
		if sp, ok := cc.Client.(sdk.StatusProvider); ok {
			g.Go(func() error {
				st, err := sp.Status(gctx)
				if err != nil || st == nil {
					return nil
				}
				line := "SDK: " + st.Version
				if st.ProtocolVersion != 0 {
					line += fmt.Sprintf(" (protocol %d)", st.ProtocolVersion)
				}
				set("sdk", line)
				return nil
			})
		}
		if ap, ok := cc.Client.(sdk.AuthStatusProvider); ok {
			g.Go(func() error {
				auth, err := ap.AuthStatus(gctx)
				if err != nil || auth == nil {
					return nil
				}
				line := "Auth: not authenticated"
				if auth.Authenticated {
					line = "Auth: authenticated"
					if auth.Login != "" {
						line += " as " + auth.Login
					}
				}
				if auth.Detail != "" {
					line += " (" + auth.Detail + ")"
				}
				set("auth", line)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		set("connection", "Connection: "+string(sdk.StateDisconnected))
	}

	var b strings.Builder
	for _, key := range []string{"connection", "sdk", "auth"} {
		if line, ok := lines[key]; ok {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	if cc.Session != nil {
		fmt.Fprintf(&b, "Session: %s\n", cc.Session.ID())
	} else {
		b.WriteString("Session: none\n")
	}
	model := cc.Model
	if model == "" {
		model = "(default)"
	}
	fmt.Fprintf(&b, "Model: %s", model)
	if cc.ReasoningEffort != "" {
		fmt.Fprintf(&b, "\nReasoning effort: %s", cc.ReasoningEffort)
	}
	return Info("%s", b.String()), nil
}

func runProvider(ctx context.Context, cc *Context, args []string) (Outcome, error) {
	if cc.Config == nil || cc.Config.Provider == nil {
		return Info("Using the default provider (OpenRouter)."), nil
	}
	p := cc.Config.Provider
	return Info("Provider:\n  type:    %s\n  baseUrl: %s\n  wireApi: %s",
		orDash(p.Type), orDash(p.BaseURL), orDash(p.WireAPI)), nil
}

func runMCP(ctx context.Context, cc *Context, args []string) (Outcome, error) {
	if cc.Config == nil || len(cc.Config.MCPServers) == 0 {
		return Info("No MCP servers configured."), nil
	}
	var b strings.Builder
	b.WriteString("MCP servers:")
	for _, name := range slices.Sorted(maps.Keys(cc.Config.MCPServers)) {
		fmt.Fprintf(&b, "\n  %s (%s)", name, orDash(cc.Config.MCPServers[name].Type))
	}
	return Info("%s", b.String()), nil
}

func runAgents(ctx context.Context, cc *Context, args []string) (Outcome, error) {
	if cc.Config == nil || len(cc.Config.Agents) == 0 {
		return Info("No custom agents configured."), nil
	}
	var b strings.Builder
	b.WriteString("Custom agents:")
	for _, a := range cc.Config.Agents {
		fmt.Fprintf(&b, "\n  %s", a.Label())
		if a.Description != "" {
			fmt.Fprintf(&b, " - %s", a.Description)
		}
	}
	return Info("%s", b.String()), nil
}

func runCopy(ctx context.Context, cc *Context, args []string) (Outcome, error) {
	if cc.LastResponse == "" {
		return Error("Nothing to copy yet."), nil
	}
	write := cc.Clipboard
	if write == nil {
		write = clipboard.WriteAll
	}
	if err := write(cc.LastResponse); err != nil {
		return Error("Failed to copy to clipboard: %v", err), nil
	}
	return Info("Copied %d characters to the clipboard.", len([]rune(cc.LastResponse))), nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
