package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/squadron/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify squadron configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/squadron/config.yaml
Project-specific overrides can be placed in .squadron.yaml`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		out := cmd.OutOrStdout()

		switch len(args) {
		case 0:
			displayAllConfig(out, cfg)
			return nil
		case 1:
			value, err := getConfigValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, value)
			return nil
		default:
			if err := setConfigValue(cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(out, "Set %s = %s\n", args[0], args[1])
			return nil
		}
	},
}

var configKeys = []string{
	"anthropic.api_key",
	"anthropic.model",
	"anthropic.use_bedrock",
	"execution.mode",
	"execution.call_timeout",
	"orchestrator.max_specialists",
	"orchestrator.quorum",
	"orchestrator.analyzer",
	"orchestrator.synthesizer",
	"verification.enabled",
}

// displayAllConfig prints all configuration values.
func displayAllConfig(w io.Writer, cfg *config.Config) {
	for _, key := range configKeys {
		value, _ := getConfigValue(cfg, key)
		fmt.Fprintf(w, "%s: %s\n", key, value)
	}
	names := make([]string, 0, len(cfg.Budgets))
	for name := range cfg.Budgets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "budgets.%s: %d\n", name, cfg.Budgets[name])
	}
	fmt.Fprintf(w, "credentials: %s\n", config.GetAPIKeySource(cfg))
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	key = strings.ToLower(key)
	if name, ok := strings.CutPrefix(key, "budgets."); ok {
		b, ok := cfg.Budgets[name]
		if !ok {
			return "", fmt.Errorf("no budget configured for %s", name)
		}
		return strconv.Itoa(b), nil
	}

	switch key {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "anthropic.use_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseBedrock), nil
	case "execution.mode":
		return cfg.Execution.Mode, nil
	case "execution.call_timeout":
		return cfg.Execution.CallTimeout.String(), nil
	case "orchestrator.max_specialists":
		return strconv.Itoa(cfg.Orchestrator.MaxSpecialists), nil
	case "orchestrator.quorum":
		return strconv.FormatFloat(cfg.Orchestrator.Quorum, 'f', -1, 64), nil
	case "orchestrator.analyzer":
		return cfg.Orchestrator.Analyzer, nil
	case "orchestrator.synthesizer":
		return cfg.Orchestrator.Synthesizer, nil
	case "verification.enabled":
		return strconv.FormatBool(cfg.Verification.Enabled), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	key = strings.ToLower(key)
	if name, ok := strings.CutPrefix(key, "budgets."); ok {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		if cfg.Budgets == nil {
			cfg.Budgets = make(map[string]int)
		}
		cfg.Budgets[name] = n
		return nil
	}

	switch key {
	case "anthropic.api_key":
		if err := config.ValidateAPIKey(value); err != nil {
			return err
		}
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.use_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for anthropic.use_bedrock: %w", err)
		}
		cfg.Anthropic.UseBedrock = b
	case "execution.mode":
		cfg.Execution.Mode = value
	case "execution.call_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for execution.call_timeout: %w", err)
		}
		cfg.Execution.CallTimeout = d
	case "orchestrator.max_specialists":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for orchestrator.max_specialists: %w", err)
		}
		cfg.Orchestrator.MaxSpecialists = n
	case "orchestrator.quorum":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for orchestrator.quorum: %w", err)
		}
		cfg.Orchestrator.Quorum = f
	case "orchestrator.analyzer":
		if value != selectProvider && value != selectHeuristic {
			return fmt.Errorf("orchestrator.analyzer must be %q or %q", selectProvider, selectHeuristic)
		}
		cfg.Orchestrator.Analyzer = value
	case "orchestrator.synthesizer":
		if value != selectProvider && value != selectTemplate {
			return fmt.Errorf("orchestrator.synthesizer must be %q or %q", selectProvider, selectTemplate)
		}
		cfg.Orchestrator.Synthesizer = value
	case "verification.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for verification.enabled: %w", err)
		}
		cfg.Verification.Enabled = b
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
