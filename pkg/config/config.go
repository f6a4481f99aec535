// Package config provides configuration loading for the deepresearch CLI.
//
// Configuration is an explicit object built at startup and passed into the
// gateway, orchestrator and store. Values come from (lowest to highest
// precedence): built-in defaults, the optional ~/.deepresearch/config.yaml
// file, and the GEMINI_API_KEY environment variable for the credential. The
// credential is never read from the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nstogner/deepresearch/pkg/agent/gemini"
	"github.com/nstogner/deepresearch/pkg/domain"
)

// Config holds every knob the CLI wires into its components.
type Config struct {
	// APIKey is the Gemini credential. Environment only, never persisted.
	APIKey string `yaml:"-"`

	// Agent is the research agent interactions are created against.
	Agent string `yaml:"agent"`

	// PollIntervalSeconds is the default wait between status polls.
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`

	// OutputDir is the root for timestamped report directories.
	OutputDir string `yaml:"output_dir"`

	// HistoryDB is the path of the local run-history database.
	HistoryDB string `yaml:"history_db"`

	// BaseURL overrides the API endpoint. Mainly for tests.
	BaseURL string `yaml:"base_url"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		Agent:               gemini.DefaultAgent,
		PollIntervalSeconds: int(domain.DefaultPollInterval / time.Second),
		OutputDir:           filepath.Join(os.TempDir(), "deepresearch"),
		HistoryDB:           filepath.Join(home, ".deepresearch", "history.db"),
		BaseURL:             gemini.DefaultBaseURL,
	}
}

// DefaultPath returns the config file location (~/.deepresearch/config.yaml).
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".deepresearch", "config.yaml"), nil
}

// Load builds the configuration from defaults, the optional yaml file at
// path (the default path when empty; absence of the file is not an error)
// and the environment credential.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No file, defaults apply.
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	return cfg, nil
}

// Validate checks the configuration is usable before any remote call.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return domain.ErrMissingAPIKey
	}
	if c.PollIntervalSeconds < 1 {
		return fmt.Errorf("poll_interval_seconds must be >= 1, got %d", c.PollIntervalSeconds)
	}
	return nil
}

// PollInterval returns the configured poll interval as a duration, clamped
// to the domain floor.
func (c *Config) PollInterval() time.Duration {
	d := time.Duration(c.PollIntervalSeconds) * time.Second
	if d < domain.MinPollInterval {
		return domain.MinPollInterval
	}
	return d
}
