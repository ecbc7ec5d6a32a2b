package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	configDir := isolate(t)
	path := filepath.Join(configDir, "config.json")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() without a file error = %v", err)
	}
	if cfg.APIKey != "" || cfg.DefaultModel != "" {
		t.Errorf("Load() without a file = %+v, want empty", cfg)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(`{"api_key":"test-api-key","default_model":"a/b"}`), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIKey != "test-api-key" || cfg.DefaultModel != "a/b" {
		t.Errorf("Load() = %+v", cfg)
	}

	if err := os.WriteFile(path, []byte("not valid json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), path) {
		t.Errorf("Load() of bad JSON error = %v, want one naming the file", err)
	}
}

func TestSave(t *testing.T) {
	configDir := isolate(t)

	want := &Config{APIKey: "test-api-key", DefaultModel: "x/y"}
	if err := Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	// A second save replaces the first in place.
	want.DefaultModel = "x/z"
	if err := Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	path := filepath.Join(configDir, "config.json")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 600", perm)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got Config
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("saved file is not JSON: %v", err)
	}
	if got.APIKey != want.APIKey || got.DefaultModel != "x/z" {
		t.Errorf("saved = %+v, want %+v", got, want)
	}

	entries, _ := os.ReadDir(configDir)
	if len(entries) != 1 {
		t.Errorf("config dir has %d entries, want no leftover temp files", len(entries))
	}
}

func TestPaths(t *testing.T) {
	configDir := isolate(t)

	for name, fn := range map[string]func() (string, error){
		"config.json": GetConfigPath,
		"orchat.log":  GetLogPath,
	} {
		got, err := fn()
		if err != nil {
			t.Fatalf("%s: error = %v", name, err)
		}
		if got != filepath.Join(configDir, name) {
			t.Errorf("path = %q, want %s under %s", got, name, configDir)
		}
	}
}

func TestNewAppConfig(t *testing.T) {
	cfg := NewAppConfig()

	want := AppConfig{
		Model:              DefaultModel,
		IdleTimeout:        DefaultIdleTimeout,
		MaxAttachmentBytes: DefaultMaxAttachmentBytes,
		ShowBanner:         true,
		LogLevel:           DefaultLogLevel,
	}
	if cfg.Model != want.Model || cfg.IdleTimeout != want.IdleTimeout ||
		cfg.MaxAttachmentBytes != want.MaxAttachmentBytes || cfg.ShowBanner != want.ShowBanner ||
		cfg.LogLevel != want.LogLevel {
		t.Errorf("NewAppConfig() = %+v, want %+v", cfg, want)
	}
	if DefaultIdleTimeout < time.Second || PreviewTruncateLength <= 3 || DefaultTerminalWidth <= 0 {
		t.Error("defaults out of range")
	}
}

func TestPromptForAPIKey(t *testing.T) {
	var out bytes.Buffer
	key, err := PromptForAPIKey(strings.NewReader("  sk-or-v1-abc  \n"), &out)
	if err != nil || key != "sk-or-v1-abc" {
		t.Errorf("PromptForAPIKey() = %q, %v", key, err)
	}
	if !strings.Contains(out.String(), EnvAPIKey) {
		t.Errorf("prompt %q should mention %s", out.String(), EnvAPIKey)
	}

	// No trailing newline is fine.
	if key, err := PromptForAPIKey(strings.NewReader("sk-2"), &out); err != nil || key != "sk-2" {
		t.Errorf("PromptForAPIKey() without newline = %q, %v", key, err)
	}

	for _, input := range []string{"\n", ""} {
		if _, err := PromptForAPIKey(strings.NewReader(input), &out); err == nil {
			t.Errorf("PromptForAPIKey(%q) error = nil, want error", input)
		}
	}
}

// isolate points the config dir at a temp dir and clears the environment
// variables Resolve consults.
func isolate(t *testing.T) string {
	t.Helper()
	configDir := filepath.Join(t.TempDir(), "orchat")

	originalGetConfigDir := GetConfigDir
	GetConfigDir = func() (string, error) {
		return configDir, nil
	}
	t.Cleanup(func() { GetConfigDir = originalGetConfigDir })

	for _, key := range []string{EnvAPIKey, EnvModel, EnvLogLevel} {
		t.Setenv(key, "")
	}
	return configDir
}

func TestResolve(t *testing.T) {
	t.Run("defaults when nothing is configured", func(t *testing.T) {
		isolate(t)
		workDir := t.TempDir()

		cfg, err := Resolve(Overrides{WorkDir: workDir})
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if cfg.Model != DefaultModel {
			t.Errorf("Model = %q, want %q", cfg.Model, DefaultModel)
		}
		if cfg.LogLevel != DefaultLogLevel {
			t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, DefaultLogLevel)
		}
		if cfg.WorkDir != workDir {
			t.Errorf("WorkDir = %q, want %q", cfg.WorkDir, workDir)
		}
		if cfg.ReasoningEffort != "" {
			t.Errorf("ReasoningEffort = %q, want empty", cfg.ReasoningEffort)
		}
	})

	t.Run("layers file, project, env and flags", func(t *testing.T) {
		isolate(t)
		workDir := t.TempDir()

		if err := Save(&Config{
			APIKey:             "file-key",
			DefaultModel:       "file/model",
			ReasoningEffort:    "low",
			IdleTimeoutSeconds: 30,
			Agents:             []Agent{{Name: "file-agent"}},
		}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		project := `model: project/model
reasoning_effort: medium
provider:
  type: openai
  base_url: http://localhost:8080/v1
  wire_api: chat
mcp_servers:
  github:
    type: stdio
    command: gh-mcp
agents:
  - name: reviewer
    display_name: Code Reviewer
    description: Reviews diffs
`
		if err := os.WriteFile(filepath.Join(workDir, ProjectFileName), []byte(project), 0600); err != nil {
			t.Fatalf("failed to write project file: %v", err)
		}

		t.Setenv(EnvModel, "env/model")
		t.Setenv(EnvLogLevel, "DEBUG")

		cfg, err := Resolve(Overrides{WorkDir: workDir, ReasoningEffort: "XHigh", NoBanner: true})
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}

		if cfg.APIKey != "file-key" {
			t.Errorf("APIKey = %q, want %q", cfg.APIKey, "file-key")
		}
		if cfg.Model != "env/model" {
			t.Errorf("Model = %q, want env to beat project", cfg.Model)
		}
		if cfg.ReasoningEffort != "xhigh" {
			t.Errorf("ReasoningEffort = %q, want flag value lowercased", cfg.ReasoningEffort)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
		}
		if cfg.IdleTimeout != 30*time.Second {
			t.Errorf("IdleTimeout = %v, want 30s from file", cfg.IdleTimeout)
		}
		if cfg.ShowBanner {
			t.Error("ShowBanner = true, want false")
		}
		if cfg.Provider == nil || cfg.Provider.BaseURL != "http://localhost:8080/v1" || cfg.Provider.WireAPI != "chat" {
			t.Errorf("Provider = %+v, want project provider", cfg.Provider)
		}
		if got := cfg.MCPServers["github"]; got.Type != "stdio" || got.Command != "gh-mcp" {
			t.Errorf("MCPServers[github] = %+v", got)
		}
		if len(cfg.Agents) != 1 || cfg.Agents[0].Label() != "Code Reviewer" {
			t.Errorf("Agents = %+v, want project agents to replace file agents", cfg.Agents)
		}
	})

	t.Run("flag idle timeout keeps sub-second precision", func(t *testing.T) {
		isolate(t)

		cfg, err := Resolve(Overrides{WorkDir: t.TempDir(), IdleTimeout: 1500 * time.Millisecond})
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if cfg.IdleTimeout != 1500*time.Millisecond {
			t.Errorf("IdleTimeout = %v, want 1.5s", cfg.IdleTimeout)
		}
	})

	t.Run("rejects unknown reasoning effort", func(t *testing.T) {
		isolate(t)

		_, err := Resolve(Overrides{WorkDir: t.TempDir(), ReasoningEffort: "turbo"})
		if err == nil {
			t.Fatal("Resolve() error = nil, want invalid effort error")
		}
		if !strings.Contains(err.Error(), "low, medium, high, xhigh") {
			t.Errorf("error = %q, want valid levels listed", err)
		}
	})

	t.Run("reports malformed project file", func(t *testing.T) {
		isolate(t)
		workDir := t.TempDir()
		if err := os.WriteFile(filepath.Join(workDir, ProjectFileName), []byte("model: [unclosed"), 0600); err != nil {
			t.Fatalf("failed to write project file: %v", err)
		}

		if _, err := Resolve(Overrides{WorkDir: workDir}); err == nil {
			t.Error("Resolve() error = nil, want parse error")
		}
	})
}

func TestAgentLabel(t *testing.T) {
	tests := []struct {
		agent Agent
		want  string
	}{
		{Agent{Name: "a"}, "a"},
		{Agent{Name: "a", DisplayName: "Agent A"}, "Agent A"},
	}
	for _, tt := range tests {
		if got := tt.agent.Label(); got != tt.want {
			t.Errorf("Label() = %q, want %q", got, tt.want)
		}
	}
}
