package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/squadron/pkg/models"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Execution.Mode != ModeAPI {
		t.Errorf("expected default mode %q, got %q", ModeAPI, cfg.Execution.Mode)
	}
	if cfg.Orchestrator.MaxSpecialists != 4 {
		t.Errorf("expected max specialists 4, got %d", cfg.Orchestrator.MaxSpecialists)
	}
	if cfg.Orchestrator.Quorum != 0.5 {
		t.Errorf("expected quorum 0.5, got %v", cfg.Orchestrator.Quorum)
	}
	if cfg.Execution.CallTimeout != 0 {
		t.Errorf("expected no call timeout by default, got %v", cfg.Execution.CallTimeout)
	}
	if cfg.Execution.CompletionMarker != "TASK_COMPLETE" {
		t.Errorf("expected completion marker TASK_COMPLETE, got %q", cfg.Execution.CompletionMarker)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestBudget(t *testing.T) {
	tests := []struct {
		st   models.SpecialistType
		want int
	}{
		{models.SpecialistBugfix, 15},
		{models.SpecialistFeatureBuilder, 50},
		{models.SpecialistTestWriter, 15},
		{models.SpecialistCodeQuality, 20},
		{models.SpecialistAdvisor, 10},
		{models.SpecialistDeployment, 10},
		{models.SpecialistMigration, 15},
		{models.SpecialistType("unknown"), 15},
	}

	cfg := Default()
	for _, tt := range tests {
		t.Run(string(tt.st), func(t *testing.T) {
			if got := cfg.Budget(tt.st); got != tt.want {
				t.Errorf("Budget(%s) = %d, want %d", tt.st, got, tt.want)
			}
		})
	}

	cfg.Budgets["bugfix"] = 3
	if got := cfg.Budget(models.SpecialistBugfix); got != 3 {
		t.Errorf("override: Budget(bugfix) = %d, want 3", got)
	}

	var nilCfg *Config
	if got := nilCfg.Budget(models.SpecialistAdvisor); got != 10 {
		t.Errorf("nil config: Budget(advisor) = %d, want 10", got)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
anthropic:
  api_key: test-key
execution:
  mode: cli
  call_timeout: 90s
budgets:
  bugfix: 3
orchestrator:
  max_specialists: 2
  quorum: 0.75
  analyzer: heuristic
paths:
  state_dir: /tmp/squadron-state
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("expected api_key 'test-key', got %q", cfg.Anthropic.APIKey)
	}
	if cfg.Execution.Mode != ModeCLI {
		t.Errorf("expected mode cli, got %q", cfg.Execution.Mode)
	}
	if cfg.Execution.CallTimeout != 90*time.Second {
		t.Errorf("expected call timeout 90s, got %v", cfg.Execution.CallTimeout)
	}
	if cfg.Budget(models.SpecialistBugfix) != 3 {
		t.Errorf("expected bugfix budget 3, got %d", cfg.Budget(models.SpecialistBugfix))
	}
	if cfg.Budget(models.SpecialistFeatureBuilder) != 50 {
		t.Errorf("expected default featurebuilder budget 50, got %d", cfg.Budget(models.SpecialistFeatureBuilder))
	}
	if cfg.Orchestrator.MaxSpecialists != 2 {
		t.Errorf("expected max specialists 2, got %d", cfg.Orchestrator.MaxSpecialists)
	}
	if cfg.Orchestrator.Quorum != 0.75 {
		t.Errorf("expected quorum 0.75, got %v", cfg.Orchestrator.Quorum)
	}
	if cfg.Orchestrator.Synthesizer != "provider" {
		t.Errorf("expected default synthesizer 'provider', got %q", cfg.Orchestrator.Synthesizer)
	}
	if cfg.DBPath() != filepath.Join("/tmp/squadron-state", "state.db") {
		t.Errorf("unexpected DBPath %q", cfg.DBPath())
	}
}

func TestLoadFromPath_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad mode", "execution:\n  mode: telepathy\n"},
		{"quorum above one", "orchestrator:\n  quorum: 1.5\n"},
		{"negative specialists", "orchestrator:\n  max_specialists: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := LoadFromPath(path); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoadFromPath_Missing(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "expanded-value")

	if got := expandEnv("${TEST_VAR}"); got != "expanded-value" {
		t.Errorf("expected 'expanded-value', got %q", got)
	}
	if got := expandEnv("prefix-${TEST_VAR}-suffix"); got != "prefix-expanded-value-suffix" {
		t.Errorf("expected 'prefix-expanded-value-suffix', got %q", got)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	if got := getUserConfigDir(); got != "/custom/config/squadron" {
		t.Errorf("expected '/custom/config/squadron', got %q", got)
	}
}
