package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nstogner/deepresearch/pkg/agent/gemini"
	"github.com/nstogner/deepresearch/pkg/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "test-key" {
		t.Errorf("APIKey = %q, want test-key", cfg.APIKey)
	}
	if cfg.Agent != gemini.DefaultAgent {
		t.Errorf("Agent = %q, want %q", cfg.Agent, gemini.DefaultAgent)
	}
	if cfg.PollIntervalSeconds != 10 {
		t.Errorf("PollIntervalSeconds = %d, want 10", cfg.PollIntervalSeconds)
	}
	if cfg.BaseURL != gemini.DefaultBaseURL {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
agent: custom-research-agent
poll_interval_seconds: 30
output_dir: /var/reports
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent != "custom-research-agent" {
		t.Errorf("Agent = %q", cfg.Agent)
	}
	if cfg.PollIntervalSeconds != 30 {
		t.Errorf("PollIntervalSeconds = %d, want 30", cfg.PollIntervalSeconds)
	}
	if cfg.OutputDir != "/var/reports" {
		t.Errorf("OutputDir = %q", cfg.OutputDir)
	}
	// File values never supply the credential.
	if cfg.APIKey != "test-key" {
		t.Errorf("APIKey = %q, want env value", cfg.APIKey)
	}
}

func TestValidateMissingKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); !errors.Is(err, domain.ErrMissingAPIKey) {
		t.Errorf("Validate = %v, want ErrMissingAPIKey", err)
	}
}

func TestValidateBadInterval(t *testing.T) {
	cfg := Default()
	cfg.APIKey = "test-key"
	cfg.PollIntervalSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero poll interval")
	}
}

func TestPollIntervalFloor(t *testing.T) {
	cfg := Default()
	cfg.PollIntervalSeconds = 0
	if got := cfg.PollInterval(); got != domain.MinPollInterval {
		t.Errorf("PollInterval = %s, want floor %s", got, domain.MinPollInterval)
	}
	cfg.PollIntervalSeconds = 25
	if got := cfg.PollInterval(); got != 25*time.Second {
		t.Errorf("PollInterval = %s, want 25s", got)
	}
}

func TestBrokenYAML(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("agent: [unclosed"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}
