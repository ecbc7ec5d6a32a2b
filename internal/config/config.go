// Package config provides configuration management for orchat.
package config

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	// DefaultModel is the default model to use when not configured.
	DefaultModel = "moonshotai/kimi-k2.5"

	// DefaultIdleTimeout is the maximum silence between session events
	// before a response is considered hung.
	DefaultIdleTimeout = 2 * time.Minute

	// DefaultMaxAttachmentBytes caps the size of files attached with @mentions.
	DefaultMaxAttachmentBytes = 1 << 20

	// DefaultLogLevel is used when no level is configured.
	DefaultLogLevel = "warn"

	// DefaultTerminalWidth is used until the terminal reports its size.
	DefaultTerminalWidth = 80

	// PreviewTruncateLength is the max length for session preview text.
	PreviewTruncateLength = 50

	// ProjectFileName is the optional per-project overlay read from the
	// working directory.
	ProjectFileName = ".orchat.yaml"
)

// Environment variables consulted by Resolve.
const (
	EnvAPIKey   = "OPENROUTER_API_KEY"
	EnvModel    = "ORCHAT_MODEL"
	EnvLogLevel = "ORCHAT_LOG_LEVEL"
)

// ReasoningEfforts lists the accepted reasoning effort levels.
var ReasoningEfforts = []string{"low", "medium", "high", "xhigh"}

// ValidReasoningEffort reports whether effort is one of ReasoningEfforts.
func ValidReasoningEffort(effort string) bool {
	return slices.Contains(ReasoningEfforts, effort)
}

// ProviderConfig overrides the default model provider.
type ProviderConfig struct {
	Type    string `json:"type,omitempty" yaml:"type,omitempty"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	WireAPI string `json:"wire_api,omitempty" yaml:"wire_api,omitempty"`
}

// MCPServer describes a configured MCP server.
type MCPServer struct {
	Type    string   `json:"type,omitempty" yaml:"type,omitempty"`
	Command string   `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"`
	URL     string   `json:"url,omitempty" yaml:"url,omitempty"`
}

// Agent describes a custom agent.
type Agent struct {
	Name        string `json:"name" yaml:"name"`
	DisplayName string `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Label returns the display name, falling back to the name.
func (a Agent) Label() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Name
}

// Config holds the application configuration that is persisted to disk.
// The project overlay uses the same shape.
type Config struct {
	APIKey             string               `json:"api_key,omitempty" yaml:"-"`
	DefaultModel       string               `json:"default_model,omitempty" yaml:"model,omitempty"`
	ReasoningEffort    string               `json:"reasoning_effort,omitempty" yaml:"reasoning_effort,omitempty"`
	IdleTimeoutSeconds int                  `json:"idle_timeout_seconds,omitempty" yaml:"idle_timeout_seconds,omitempty"`
	MaxAttachmentBytes int64                `json:"max_attachment_bytes,omitempty" yaml:"max_attachment_bytes,omitempty"`
	LogLevel           string               `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	NoBanner           bool                 `json:"no_banner,omitempty" yaml:"no_banner,omitempty"`
	Provider           *ProviderConfig      `json:"provider,omitempty" yaml:"provider,omitempty"`
	MCPServers         map[string]MCPServer `json:"mcp_servers,omitempty" yaml:"mcp_servers,omitempty"`
	Agents             []Agent              `json:"agents,omitempty" yaml:"agents,omitempty"`
}

// merge copies every non-zero field of other onto c.
func (c *Config) merge(other *Config) {
	if other == nil {
		return
	}
	if other.APIKey != "" {
		c.APIKey = other.APIKey
	}
	if other.DefaultModel != "" {
		c.DefaultModel = other.DefaultModel
	}
	if other.ReasoningEffort != "" {
		c.ReasoningEffort = other.ReasoningEffort
	}
	if other.IdleTimeoutSeconds > 0 {
		c.IdleTimeoutSeconds = other.IdleTimeoutSeconds
	}
	if other.MaxAttachmentBytes > 0 {
		c.MaxAttachmentBytes = other.MaxAttachmentBytes
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.NoBanner {
		c.NoBanner = true
	}
	if other.Provider != nil {
		c.Provider = other.Provider
	}
	if len(other.MCPServers) > 0 {
		c.MCPServers = other.MCPServers
	}
	if len(other.Agents) > 0 {
		c.Agents = other.Agents
	}
}

// AppConfig holds the resolved runtime configuration. It is read-only once
// Resolve returns it.
type AppConfig struct {
	// APIKey is the OpenRouter API key.
	APIKey string

	// Model is the model used for new sessions.
	Model string

	// ReasoningEffort is one of ReasoningEfforts, or empty for the model default.
	ReasoningEffort string

	Provider   *ProviderConfig
	MCPServers map[string]MCPServer
	Agents     []Agent

	// IdleTimeout bounds the silence between events of a streaming response.
	IdleTimeout time.Duration

	// MaxAttachmentBytes caps @mention attachments.
	MaxAttachmentBytes int64

	ShowBanner bool
	LogLevel   string

	// WorkDir is the directory @mentions resolve against.
	WorkDir string
}

// NewAppConfig creates a new AppConfig with default values.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Model:              DefaultModel,
		IdleTimeout:        DefaultIdleTimeout,
		MaxAttachmentBytes: DefaultMaxAttachmentBytes,
		ShowBanner:         true,
		LogLevel:           DefaultLogLevel,
	}
}

// Overrides carries command-line values. Zero values leave the lower layers alone.
type Overrides struct {
	Model              string
	ReasoningEffort    string
	IdleTimeout        time.Duration
	MaxAttachmentBytes int64
	LogLevel           string
	NoBanner           bool
	WorkDir            string
}

// Resolve layers the config file, the project overlay in the working
// directory, environment variables and o, in increasing precedence.
func Resolve(o Overrides) (*AppConfig, error) {
	fileCfg, err := Load()
	if err != nil {
		return nil, err
	}

	workDir := o.WorkDir
	if workDir == "" {
		workDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	project, err := LoadProject(workDir)
	if err != nil {
		return nil, err
	}

	merged := &Config{}
	merged.merge(fileCfg)
	merged.merge(project)
	merged.merge(&Config{
		APIKey:       os.Getenv(EnvAPIKey),
		DefaultModel: os.Getenv(EnvModel),
		LogLevel:     os.Getenv(EnvLogLevel),
	})
	merged.merge(&Config{
		DefaultModel:       o.Model,
		ReasoningEffort:    o.ReasoningEffort,
		IdleTimeoutSeconds: int(o.IdleTimeout / time.Second),
		MaxAttachmentBytes: o.MaxAttachmentBytes,
		LogLevel:           o.LogLevel,
		NoBanner:           o.NoBanner,
	})

	cfg := NewAppConfig()
	cfg.APIKey = merged.APIKey
	cfg.WorkDir = workDir
	cfg.Provider = merged.Provider
	cfg.MCPServers = merged.MCPServers
	cfg.Agents = merged.Agents
	cfg.ShowBanner = !merged.NoBanner
	if merged.DefaultModel != "" {
		cfg.Model = merged.DefaultModel
	}
	if merged.LogLevel != "" {
		cfg.LogLevel = strings.ToLower(merged.LogLevel)
	}
	if merged.MaxAttachmentBytes > 0 {
		cfg.MaxAttachmentBytes = merged.MaxAttachmentBytes
	}
	switch {
	case o.IdleTimeout > 0:
		// Sub-second flag values survive the seconds round trip.
		cfg.IdleTimeout = o.IdleTimeout
	case merged.IdleTimeoutSeconds > 0:
		cfg.IdleTimeout = time.Duration(merged.IdleTimeoutSeconds) * time.Second
	}
	if merged.ReasoningEffort != "" {
		effort := strings.ToLower(merged.ReasoningEffort)
		if !ValidReasoningEffort(effort) {
			return nil, fmt.Errorf("invalid reasoning effort %q (valid: %s)", merged.ReasoningEffort, strings.Join(ReasoningEfforts, ", "))
		}
		cfg.ReasoningEffort = effort
	}

	return cfg, nil
}

// GetConfigDir returns the per-user orchat directory holding the config
// file, sessions and the log. Tests replace it.
var GetConfigDir = func() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "orchat"), nil
}

func configFile(name string) (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// GetConfigPath returns the path of the config file.
func GetConfigPath() (string, error) {
	return configFile("config.json")
}

// GetLogPath returns the path of the log file.
func GetLogPath() (string, error) {
	return configFile("orchat.log")
}

// Load reads the config file. A missing file is an empty Config.
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return &cfg, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadProject reads the project overlay from dir. A missing file yields nil.
func LoadProject(dir string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(dir, ProjectFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ProjectFileName, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ProjectFileName, err)
	}
	return &cfg, nil
}

// Save writes the config file, readable only by the user since it holds
// the API key.
func Save(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := writePrivate(path, data); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// PromptForAPIKey asks for an API key on out and reads one line from in.
func PromptForAPIKey(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprintln(out, "No OpenRouter API key found.")
	fmt.Fprintln(out, "You can get an API key from: https://openrouter.ai/keys")
	fmt.Fprintf(out, "Or set %s instead.\n", EnvAPIKey)
	fmt.Fprint(out, "\nEnter your OpenRouter API key: ")

	key, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && key == "" {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("API key cannot be empty")
	}
	return key, nil
}
