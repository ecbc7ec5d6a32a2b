package config

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session cannot be found.
var ErrSessionNotFound = errors.New("session not found")

const (
	sessionExt = ".json"

	// maxStoredHistory bounds the input history persisted with a session.
	maxStoredHistory = 1000
)

// SessionAttachment is a file that was attached to a user message.
type SessionAttachment struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// SessionMessage is one turn of a stored conversation.
type SessionMessage struct {
	Role        string              `json:"role"`
	Content     string              `json:"content"`
	Reasoning   string              `json:"reasoning,omitempty"`
	Attachments []SessionAttachment `json:"attachments,omitempty"`
}

// Session is the on-disk record of a conversation. History holds raw input
// lines for arrow-key recall; Messages is what gets replayed on resume.
type Session struct {
	ID              string           `json:"id"`
	Model           string           `json:"model,omitempty"`
	ReasoningEffort string           `json:"reasoning_effort,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	History         []string         `json:"history"`
	Messages        []SessionMessage `json:"messages"`
}

// SessionSummary is the listing form of a session.
type SessionSummary struct {
	ID           string
	Model        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
	Preview      string
}

// NewSession returns an unsaved session with a fresh ID.
func NewSession() *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		History:   []string{},
	}
}

// GetSessionDir returns the directory where sessions are stored.
// Tests replace it.
var GetSessionDir = func() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "sessions"), nil
}

// sessionPath maps an ID to its file. IDs that could escape the session
// directory are reported as not found.
func sessionPath(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	dir, err := GetSessionDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, id+sessionExt), nil
}

// Save writes the session and bumps UpdatedAt. The file is replaced
// atomically so a crash mid-write never leaves a truncated session.
func (s *Session) Save() error {
	path, err := sessionPath(s.ID)
	if err != nil {
		return err
	}
	s.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := writePrivate(path, data); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// AppendHistory records an input line and saves. Only the most recent
// entries are kept.
func (s *Session) AppendHistory(entry string) error {
	s.History = append(s.History, entry)
	if over := len(s.History) - maxStoredHistory; over > 0 {
		s.History = slices.Delete(s.History, 0, over)
	}
	return s.Save()
}

// AppendMessage records a conversation turn and saves.
func (s *Session) AppendMessage(msg SessionMessage) error {
	s.Messages = append(s.Messages, msg)
	return s.Save()
}

// Preview is the first user message on one line, cut to
// PreviewTruncateLength characters.
func (s *Session) Preview() string {
	i := slices.IndexFunc(s.Messages, func(m SessionMessage) bool { return m.Role == "user" })
	if i < 0 {
		return ""
	}
	preview := []rune(strings.Join(strings.Fields(s.Messages[i].Content), " "))
	if len(preview) > PreviewTruncateLength {
		return string(preview[:PreviewTruncateLength-3]) + "..."
	}
	return string(preview)
}

func (s *Session) summary() SessionSummary {
	return SessionSummary{
		ID:           s.ID,
		Model:        s.Model,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		MessageCount: len(s.Messages),
		Preview:      s.Preview(),
	}
}

// LoadSession reads a stored session.
func LoadSession(id string) (*Session, error) {
	path, err := sessionPath(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", id, err)
	}
	return &session, nil
}

// ListSessions summarizes every stored session that has at least one
// message, most recently updated first. Unreadable files are skipped.
func ListSessions() ([]SessionSummary, error) {
	dir, err := GetSessionDir()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []SessionSummary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	summaries := make([]SessionSummary, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != sessionExt {
			continue
		}
		session, err := LoadSession(strings.TrimSuffix(name, sessionExt))
		if err != nil || len(session.Messages) == 0 {
			continue
		}
		summaries = append(summaries, session.summary())
	}

	slices.SortFunc(summaries, func(a, b SessionSummary) int {
		return cmp.Or(b.UpdatedAt.Compare(a.UpdatedAt), strings.Compare(a.ID, b.ID))
	})
	return summaries, nil
}

// GetLatestSession loads the most recently updated non-empty session.
func GetLatestSession() (*Session, error) {
	summaries, err := ListSessions()
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, fmt.Errorf("%w: no sessions found", ErrSessionNotFound)
	}
	return LoadSession(summaries[0].ID)
}

// DeleteSession removes a stored session.
func DeleteSession(id string) error {
	path, err := sessionPath(id)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}
