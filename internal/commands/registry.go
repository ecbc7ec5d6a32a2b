// Package commands implements the slash-command registry used by the chat
// controller.
package commands

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/vstratful/orchat/internal/config"
	"github.com/vstratful/orchat/internal/sdk"
)

// OutcomeType discriminates Outcome.
type OutcomeType string

const (
	OutcomeMessage            OutcomeType = "message"
	OutcomeClear              OutcomeType = "clear"
	OutcomeExit               OutcomeType = "exit"
	OutcomeOpenModelPicker    OutcomeType = "open-model-picker"
	OutcomeSetModel           OutcomeType = "set-model"
	OutcomeNewSession         OutcomeType = "new-session"
	OutcomeResumeSession      OutcomeType = "resume-session"
	OutcomeSetReasoningEffort OutcomeType = "set-reasoning-effort"
	OutcomeNoop               OutcomeType = "noop"
)

// Kind annotates system messages.
type Kind string

const (
	KindInfo  Kind = "info"
	KindError Kind = "error"
)

// Outcome is the result of one command invocation. Only the fields relevant
// to Type are set.
type Outcome struct {
	Type OutcomeType

	// Message and Kind are set for OutcomeMessage.
	Message string
	Kind    Kind

	Model           string
	SessionID       string
	ReasoningEffort string
}

// Info returns an informational message outcome.
func Info(format string, args ...any) Outcome {
	return Outcome{Type: OutcomeMessage, Kind: KindInfo, Message: fmt.Sprintf(format, args...)}
}

// Error returns an error message outcome.
func Error(format string, args ...any) Outcome {
	return Outcome{Type: OutcomeMessage, Kind: KindError, Message: fmt.Sprintf(format, args...)}
}

// Context is the state a command runs against. Any field may be zero.
type Context struct {
	Client  sdk.Client
	Session sdk.Session
	Config  *config.AppConfig

	Model           string
	ReasoningEffort string

	// LastResponse is the content of the most recent assistant message.
	LastResponse string

	// Clipboard writes text to the system clipboard.
	Clipboard func(text string) error
}

// Handler runs a command. A returned error is reported as an error message.
type Handler func(ctx context.Context, cc *Context, args []string) (Outcome, error)

// Command is a registry entry.
type Command struct {
	Name        string
	Aliases     []string
	Description string

	// Usage documents the invocation, e.g. "/model [name]". A usage with more
	// than one token means the command takes arguments.
	Usage string

	Run Handler
}

// TakesArgs reports whether the usage string documents arguments.
func (c Command) TakesArgs() bool {
	return len(strings.Fields(c.Usage)) > 1
}

// Matches reports whether name is the command's name or one of its aliases.
func (c Command) Matches(name string) bool {
	if c.Name == name {
		return true
	}
	for _, a := range c.Aliases {
		if a == name {
			return true
		}
	}
	return false
}

// Invocation is a parsed command line.
type Invocation struct {
	Name string
	Args []string
}

// Parse parses a slash command. It returns nil if input does not start with
// "/" or contains no tokens after it. Single and double quotes group words;
// the quotes themselves are removed.
func Parse(input string) *Invocation {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return nil
	}
	tokens := tokenize(input[1:])
	if len(tokens) == 0 {
		return nil
	}
	return &Invocation{
		Name: strings.ToLower(tokens[0]),
		Args: tokens[1:],
	}
}

func tokenize(s string) []string {
	var (
		tokens  []string
		cur     strings.Builder
		quote   rune
		inToken bool
	)
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inToken = true
		case unicode.IsSpace(r):
			if inToken {
				tokens = append(tokens, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteRune(r)
			inToken = true
		}
	}
	if inToken {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

// Registry is an immutable, ordered set of commands.
type Registry struct {
	commands []Command
}

// NewRegistry returns a registry of cmds in the given order.
func NewRegistry(cmds ...Command) *Registry {
	return &Registry{commands: append([]Command(nil), cmds...)}
}

// Commands returns the registered commands in registry order.
func (r *Registry) Commands() []Command {
	return append([]Command(nil), r.commands...)
}

// Lookup finds a command by name or alias. The first match in registry order
// wins.
func (r *Registry) Lookup(name string) (Command, bool) {
	name = strings.ToLower(name)
	for _, c := range r.commands {
		if c.Matches(name) {
			return c, true
		}
	}
	return Command{}, false
}

// Dispatch parses and runs input. ok is false when input is not a command at
// all; an unknown command name is reported through an error outcome.
func (r *Registry) Dispatch(ctx context.Context, cc *Context, input string) (out Outcome, ok bool) {
	inv := Parse(input)
	if inv == nil {
		return Outcome{}, false
	}

	cmd, found := r.Lookup(inv.Name)
	if !found {
		return Error("Unknown command: /%s. Type /help for a list of commands.", inv.Name), true
	}

	if cc == nil {
		cc = &Context{}
	}
	out, err := cmd.Run(ctx, cc, inv.Args)
	if err != nil {
		return Error("/%s failed: %v", cmd.Name, err), true
	}
	return out, true
}
