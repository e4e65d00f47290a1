// Package config loads the .quorum/config.yaml a user keeps next to their
// work, applies defaults and environment overrides, and validates the result
// before anything connects to the deliberation service.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// QuorumDir is the per-project directory holding config and logs.
	QuorumDir = ".quorum"

	defaultServerURL = "http://127.0.0.1:8790"

	defaultSelectionGraceSeconds  = 4
	defaultMessageIntervalSeconds = 5
	defaultInitialReveal          = 2
	defaultRevealStep             = 1
	defaultAutoRevealSeconds      = 6
	defaultLazyThreshold          = 30
	defaultRecentWindow           = 12
	defaultReconnectBaseMillis    = 500
	defaultReconnectMaxSeconds    = 30
)

const defaultConfigYAML = `# quorum client configuration
version: 1

server:
  url: http://127.0.0.1:8790

meeting:
  # Seconds of persona_selected silence before expert selection is judged done.
  selection_grace_seconds: 4
  # Seconds between rotating waiting messages.
  message_interval_seconds: 5

visibility:
  initial_reveal: 2
  reveal_step: 1
  auto_reveal_seconds: 6
  lazy_threshold: 30
  recent_window: 12
`

// ServerConfig points the client at the deliberation service.
type ServerConfig struct {
	URL string `yaml:"url"`
}

// MeetingConfig tunes the phase tracker's wall-clock behavior.
type MeetingConfig struct {
	SelectionGraceSeconds  int `yaml:"selection_grace_seconds"`
	MessageIntervalSeconds int `yaml:"message_interval_seconds"`
}

// VisibilityConfig tunes progressive disclosure and lazy rendering.
type VisibilityConfig struct {
	InitialReveal     int `yaml:"initial_reveal"`
	RevealStep        int `yaml:"reveal_step"`
	AutoRevealSeconds int `yaml:"auto_reveal_seconds"`
	LazyThreshold     int `yaml:"lazy_threshold"`
	RecentWindow      int `yaml:"recent_window"`
}

// ReconnectConfig tunes the stream's backoff behavior.
type ReconnectConfig struct {
	BaseMillis int `yaml:"base_millis"`
	MaxSeconds int `yaml:"max_seconds"`
}

// ProjectConfig models .quorum/config.yaml.
type ProjectConfig struct {
	Version    int              `yaml:"version"`
	Server     ServerConfig     `yaml:"server"`
	Meeting    MeetingConfig    `yaml:"meeting"`
	Visibility VisibilityConfig `yaml:"visibility"`
	Reconnect  ReconnectConfig  `yaml:"reconnect"`
}

// Config holds the runtime configuration for the quorum client.
type Config struct {
	// ProjectDir is the directory the user ran `quorum` from.
	ProjectDir string

	// QuorumProjectDir is ProjectDir/.quorum.
	QuorumProjectDir string

	Project ProjectConfig
}

// Init creates the .quorum directory structure and a starter config.
func Init(projectDir string) error {
	quorumDir := filepath.Join(projectDir, QuorumDir)
	for _, dir := range []string{quorumDir, filepath.Join(quorumDir, "logs"), filepath.Join(quorumDir, "exports")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: ensure %s: %w", dir, err)
		}
	}
	path := filepath.Join(quorumDir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// New loads configuration for a project directory.
func New(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:       projectDir,
		QuorumProjectDir: filepath.Join(projectDir, QuorumDir),
		Project:          defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	cfg.Project.applyEnvOverrides()
	cfg.Project.normalize()
	if err := cfg.Project.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LogsDir returns the directory holding session logbooks.
func (c *Config) LogsDir() string {
	return filepath.Join(c.QuorumProjectDir, "logs")
}

// ExportsDir returns the directory transcript exports are written to.
func (c *Config) ExportsDir() string {
	return filepath.Join(c.QuorumProjectDir, "exports")
}

// ConfigPath returns the on-disk location of the project config file.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.QuorumProjectDir, "config.yaml")
}

// ServerURL returns the deliberation service base URL.
func (c *Config) ServerURL() string {
	return c.Project.Server.URL
}

// SelectionGrace returns the expert-selection inactivity window.
func (c *Config) SelectionGrace() time.Duration {
	return time.Duration(c.Project.Meeting.SelectionGraceSeconds) * time.Second
}

// MessageInterval returns the waiting-message rotation period.
func (c *Config) MessageInterval() time.Duration {
	return time.Duration(c.Project.Meeting.MessageIntervalSeconds) * time.Second
}

// AutoRevealInterval returns the active round's auto-reveal pacing.
func (c *Config) AutoRevealInterval() time.Duration {
	return time.Duration(c.Project.Visibility.AutoRevealSeconds) * time.Second
}

// ReconnectBase returns the initial reconnect backoff delay.
func (c *Config) ReconnectBase() time.Duration {
	return time.Duration(c.Project.Reconnect.BaseMillis) * time.Millisecond
}

// ReconnectMax returns the backoff ceiling.
func (c *Config) ReconnectMax() time.Duration {
	return time.Duration(c.Project.Reconnect.MaxSeconds) * time.Second
}

func (c *Config) loadProjectConfig() error {
	path := c.ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version: 1,
		Server:  ServerConfig{URL: defaultServerURL},
		Meeting: MeetingConfig{
			SelectionGraceSeconds:  defaultSelectionGraceSeconds,
			MessageIntervalSeconds: defaultMessageIntervalSeconds,
		},
		Visibility: VisibilityConfig{
			InitialReveal:     defaultInitialReveal,
			RevealStep:        defaultRevealStep,
			AutoRevealSeconds: defaultAutoRevealSeconds,
			LazyThreshold:     defaultLazyThreshold,
			RecentWindow:      defaultRecentWindow,
		},
		Reconnect: ReconnectConfig{
			BaseMillis: defaultReconnectBaseMillis,
			MaxSeconds: defaultReconnectMaxSeconds,
		},
	}
}

// applyEnvOverrides layers QUORUM_* variables over the file config so CI and
// one-off runs can retarget the client without editing yaml.
func (pc *ProjectConfig) applyEnvOverrides() {
	if url := strings.TrimSpace(os.Getenv("QUORUM_SERVER_URL")); url != "" {
		pc.Server.URL = url
	}
	if value := strings.TrimSpace(os.Getenv("QUORUM_SELECTION_GRACE")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			pc.Meeting.SelectionGraceSeconds = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("QUORUM_LAZY_THRESHOLD")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			pc.Visibility.LazyThreshold = parsed
		}
	}
}

func (pc *ProjectConfig) normalize() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	pc.Server.URL = strings.TrimRight(strings.TrimSpace(pc.Server.URL), "/")
	if pc.Server.URL == "" {
		pc.Server.URL = defaultServerURL
	}
	clampPositive(&pc.Meeting.SelectionGraceSeconds, defaultSelectionGraceSeconds)
	clampPositive(&pc.Meeting.MessageIntervalSeconds, defaultMessageIntervalSeconds)
	clampPositive(&pc.Visibility.InitialReveal, defaultInitialReveal)
	clampPositive(&pc.Visibility.RevealStep, defaultRevealStep)
	clampPositive(&pc.Visibility.AutoRevealSeconds, defaultAutoRevealSeconds)
	clampPositive(&pc.Visibility.LazyThreshold, defaultLazyThreshold)
	clampPositive(&pc.Visibility.RecentWindow, defaultRecentWindow)
	clampPositive(&pc.Reconnect.BaseMillis, defaultReconnectBaseMillis)
	clampPositive(&pc.Reconnect.MaxSeconds, defaultReconnectMaxSeconds)
}

func (pc ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("version must be >= 1")
	}
	parsed, err := url.Parse(pc.Server.URL)
	if err != nil {
		return fmt.Errorf("server.url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("server.url must be http or https, got %q", pc.Server.URL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("server.url has no host: %q", pc.Server.URL)
	}
	if pc.Visibility.RecentWindow > pc.Visibility.LazyThreshold {
		return fmt.Errorf("visibility.recent_window (%d) cannot exceed lazy_threshold (%d)",
			pc.Visibility.RecentWindow, pc.Visibility.LazyThreshold)
	}
	return nil
}

func clampPositive(value *int, fallback int) {
	if *value <= 0 {
		*value = fallback
	}
}
