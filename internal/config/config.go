// Package config handles configuration loading and management for squadron.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/squadron/pkg/models"
)

// DefaultBudget is the iteration budget for specialist types without an explicit entry.
const DefaultBudget = 15

// Execution modes.
const (
	ModeAPI = "api"
	ModeCLI = "cli"
)

// Config holds all configuration for squadron.
type Config struct {
	Anthropic    AnthropicConfig    `mapstructure:"anthropic"`
	Execution    ExecutionConfig    `mapstructure:"execution"`
	Budgets      map[string]int     `mapstructure:"budgets"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Verification VerificationConfig `mapstructure:"verification"`
	Paths        PathsConfig        `mapstructure:"paths"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	MaxTokens  int    `mapstructure:"max_tokens"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
}

// ExecutionConfig controls how specialists run.
type ExecutionConfig struct {
	// Mode is "api" for direct Messages API calls or "cli" for a claude subprocess.
	Mode string `mapstructure:"mode"`
	// ClaudePath is the claude binary used in cli mode.
	ClaudePath string `mapstructure:"claude_path"`
	// CallTimeout bounds a single provider call. Zero means no deadline.
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	// CompletionMarker is the token the fallback verifier treats as PASS.
	CompletionMarker string `mapstructure:"completion_marker"`
	// BlockedMarker is the prefix the fallback verifier treats as BLOCKED.
	BlockedMarker string `mapstructure:"blocked_marker"`
}

// OrchestratorConfig holds team lead settings.
type OrchestratorConfig struct {
	// MaxSpecialists caps the selected specialists. Zero disables team mode.
	MaxSpecialists int `mapstructure:"max_specialists"`
	// MaxParallel bounds concurrent specialists. Zero means all at once.
	MaxParallel int `mapstructure:"max_parallel"`
	// Quorum is the minimum pass rate accepted by validation.
	Quorum float64 `mapstructure:"quorum"`
	// Analyzer is "heuristic" or "provider".
	Analyzer string `mapstructure:"analyzer"`
	// Synthesizer is "template" or "provider".
	Synthesizer string `mapstructure:"synthesizer"`
}

// VerificationConfig holds verification provider settings.
type VerificationConfig struct {
	// Enabled turns the command verifier on. When off, specialists use the
	// completion marker and synthesis verification blocks.
	Enabled bool `mapstructure:"enabled"`
	// Commands override the detected build/test commands.
	Commands []string `mapstructure:"commands"`
	// StepTimeout bounds each verification command.
	StepTimeout time.Duration `mapstructure:"step_timeout"`
	// ChangeDetector is "gogit" or "cli".
	ChangeDetector string `mapstructure:"change_detector"`
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	// StateDir holds sessions, the state database, logs and signals.
	StateDir string `mapstructure:"state_dir"`
	// CatalogFile optionally overrides the built-in specialist catalog.
	CatalogFile string `mapstructure:"catalog_file"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	// DebugFile enables the JSON debug log under the state dir.
	DebugFile bool `mapstructure:"debug_file"`
}

// Budget returns the iteration budget for a specialist type.
func (c *Config) Budget(t models.SpecialistType) int {
	if c != nil {
		if b, ok := c.Budgets[string(t)]; ok && b > 0 {
			return b
		}
	}
	if b, ok := DefaultBudgets[string(t)]; ok {
		return b
	}
	return DefaultBudget
}

// SessionsDir returns the directory checkpoints are written to.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.Paths.StateDir, "sessions")
}

// DBPath returns the state database path.
func (c *Config) DBPath() string {
	return filepath.Join(c.Paths.StateDir, "state.db")
}

// SignalsDir returns the directory watched for operator signals.
func (c *Config) SignalsDir() string {
	return filepath.Join(c.Paths.StateDir, "signals")
}

// AuditPath returns the audit trail location.
func (c *Config) AuditPath() string {
	return filepath.Join(c.Paths.StateDir, "audit.jsonl")
}

// LogDir returns the directory for debug logs.
func (c *Config) LogDir() string {
	return filepath.Join(c.Paths.StateDir, "logs")
}

// DefaultBudgets are the per-type iteration budgets.
var DefaultBudgets = map[string]int{
	string(models.SpecialistBugfix):         15,
	string(models.SpecialistFeatureBuilder): 50,
	string(models.SpecialistTestWriter):     15,
	string(models.SpecialistCodeQuality):    20,
	string(models.SpecialistAdvisor):        10,
	string(models.SpecialistDeployment):     10,
	string(models.SpecialistMigration):      15,
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, SQUADRON_*)
// 2. Project config (.squadron.yaml in current directory or parent)
// 3. User config (~/.config/squadron/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	bindEnv(v)

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

// Save writes the persistent parts of cfg to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("execution.mode", cfg.Execution.Mode)
	v.Set("execution.call_timeout", cfg.Execution.CallTimeout.String())
	v.Set("orchestrator.max_specialists", cfg.Orchestrator.MaxSpecialists)
	v.Set("orchestrator.quorum", cfg.Orchestrator.Quorum)
	v.Set("orchestrator.analyzer", cfg.Orchestrator.Analyzer)
	v.Set("orchestrator.synthesizer", cfg.Orchestrator.Synthesizer)
	v.Set("verification.enabled", cfg.Verification.Enabled)
	v.Set("budgets", cfg.Budgets)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("anthropic.use_bedrock", false)

	v.SetDefault("execution.mode", ModeAPI)
	v.SetDefault("execution.claude_path", "claude")
	v.SetDefault("execution.call_timeout", "0s")
	v.SetDefault("execution.completion_marker", "TASK_COMPLETE")
	v.SetDefault("execution.blocked_marker", "TASK_BLOCKED:")

	budgets := make(map[string]any, len(DefaultBudgets))
	for k, b := range DefaultBudgets {
		budgets[k] = b
	}
	v.SetDefault("budgets", budgets)

	v.SetDefault("orchestrator.max_specialists", 4)
	v.SetDefault("orchestrator.max_parallel", 0)
	v.SetDefault("orchestrator.quorum", 0.5)
	v.SetDefault("orchestrator.analyzer", "provider")
	v.SetDefault("orchestrator.synthesizer", "provider")

	v.SetDefault("verification.enabled", true)
	v.SetDefault("verification.step_timeout", "5m")
	v.SetDefault("verification.change_detector", "gogit")

	v.SetDefault("paths.state_dir", ".squadron")
	v.SetDefault("paths.catalog_file", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.debug_file", false)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("SQUADRON")
	v.AutomaticEnv()

	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.use_bedrock", "CLAUDE_CODE_USE_BEDROCK")
	v.BindEnv("execution.mode", "SQUADRON_EXECUTION_MODE")
	v.BindEnv("paths.state_dir", "SQUADRON_STATE_DIR")
	v.BindEnv("logging.level", "SQUADRON_LOG_LEVEL")
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch c.Execution.Mode {
	case ModeAPI, ModeCLI:
	default:
		return fmt.Errorf("invalid execution.mode %q: want %q or %q", c.Execution.Mode, ModeAPI, ModeCLI)
	}
	if c.Orchestrator.MaxSpecialists < 0 {
		return fmt.Errorf("invalid orchestrator.max_specialists %d", c.Orchestrator.MaxSpecialists)
	}
	if c.Orchestrator.Quorum < 0 || c.Orchestrator.Quorum > 1 {
		return fmt.Errorf("invalid orchestrator.quorum %v: must be within [0, 1]", c.Orchestrator.Quorum)
	}
	for name, b := range c.Budgets {
		if b < 0 {
			return fmt.Errorf("invalid budget for %s: %d", name, b)
		}
	}
	return nil
}

// getUserConfigDir returns the XDG config directory for squadron.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "squadron")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "squadron")
	}
	return filepath.Join(home, ".config", "squadron")
}

// findProjectConfig searches for .squadron.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".squadron.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	budgets := make(map[string]int, len(DefaultBudgets))
	for k, b := range DefaultBudgets {
		budgets[k] = b
	}
	return &Config{
		Anthropic: AnthropicConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 8192,
		},
		Execution: ExecutionConfig{
			Mode:             ModeAPI,
			ClaudePath:       "claude",
			CompletionMarker: "TASK_COMPLETE",
			BlockedMarker:    "TASK_BLOCKED:",
		},
		Budgets: budgets,
		Orchestrator: OrchestratorConfig{
			MaxSpecialists: 4,
			Quorum:         0.5,
			Analyzer:       "provider",
			Synthesizer:    "provider",
		},
		Verification: VerificationConfig{
			Enabled:        true,
			StepTimeout:    5 * time.Minute,
			ChangeDetector: "gogit",
		},
		Paths: PathsConfig{
			StateDir: ".squadron",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
