package config

import (
	"errors"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when no API key is configured and Bedrock is off.
var ErrNoAPIKey = errors.New("no Anthropic API key configured")

// KeySource represents where provider credentials come from.
type KeySource string

const (
	KeySourceEnv     KeySource = "environment"
	KeySourceConfig  KeySource = "config_file"
	KeySourceBedrock KeySource = "bedrock"
	KeySourceNone    KeySource = "none"
)

// GetAPIKey returns the Anthropic API key.
// It checks the environment first, then the config file.
func GetAPIKey(cfg *Config) (string, error) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key, nil
	}
	if key := configKey(cfg); key != "" {
		return key, nil
	}
	return "", ErrNoAPIKey
}

// GetAPIKeySource returns where credentials would be loaded from.
// Bedrock uses the AWS default credential chain, so no key is needed.
func GetAPIKeySource(cfg *Config) KeySource {
	if cfg != nil && cfg.Anthropic.UseBedrock {
		return KeySourceBedrock
	}
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		return KeySourceEnv
	}
	if configKey(cfg) != "" {
		return KeySourceConfig
	}
	return KeySourceNone
}

// ValidateAPIKey performs basic format validation on an API key.
func ValidateAPIKey(key string) error {
	if key == "" {
		return ErrNoAPIKey
	}
	if !strings.HasPrefix(key, "sk-ant-") {
		return errors.New("invalid API key format: expected 'sk-ant-' prefix")
	}
	if len(key) < 20 {
		return errors.New("invalid API key format: key too short")
	}
	return nil
}

// MaskAPIKey returns a masked version of the API key for display.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 15 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}

func configKey(cfg *Config) string {
	if cfg == nil || cfg.Anthropic.APIKey == "" {
		return ""
	}
	key := os.ExpandEnv(cfg.Anthropic.APIKey)
	if strings.HasPrefix(key, "${") {
		return ""
	}
	return key
}
