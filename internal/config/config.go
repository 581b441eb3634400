package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	App    AppConfig    `yaml:"app"`
	Census CensusConfig `yaml:"census"`
	Sync   SyncConfig   `yaml:"sync"`
	Server ServerConfig `yaml:"server"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	LogLevel string `yaml:"log_level"`
	TestMode bool   `yaml:"test_mode"`
}

// CensusConfig contains Census API settings
type CensusConfig struct {
	APIKey            string `yaml:"api_key"`
	CredentialsName   string `yaml:"credentials_name"`
	BaseURL           string `yaml:"base_url"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	RequestsPerSecond int    `yaml:"requests_per_second"`
	MaxRetries        int    `yaml:"max_retries"`
}

// SyncConfig contains sync run settings
type SyncConfig struct {
	SyncIDs              []int64 `yaml:"sync_ids"`
	ForceFullSync        bool    `yaml:"force_full_sync"`
	MaxWaitSeconds       int     `yaml:"max_wait_seconds"`
	PollFrequencySeconds int     `yaml:"poll_frequency_seconds"`
	MaxPollAttempts      int     `yaml:"max_poll_attempts"`
	RetryAttempts        int     `yaml:"retry_attempts"`
	RetryDelaySeconds    int     `yaml:"retry_delay_seconds"`
	Concurrency          int     `yaml:"concurrency"`
}

// ServerConfig contains server mode settings
type ServerConfig struct {
	Port            int    `yaml:"port"`
	ScheduleEnabled bool   `yaml:"schedule_enabled"`
	Schedule        string `yaml:"schedule"`
}

// Load loads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// Substitute environment variables, e.g. api_key: "${CENSUS_API_KEY}"
	configData := os.ExpandEnv(string(data))

	// Keys missing from the file keep their defaults; an explicit 0 such as
	// max_wait_seconds: 0 or retry_attempts: 0 is kept as written.
	config := Defaults()
	if err := yaml.Unmarshal([]byte(configData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	return &config, nil
}

// Save writes the configuration to a YAML file
func Save(config *Config, configPath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file may hold an API key
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configPath, err)
	}

	return nil
}

// FindConfigFile searches for configuration file in common locations
func FindConfigFile() (string, error) {
	locations := []string{
		"./config.yaml",
		"./config.yml",
		"~/.config/census-sync/config.yaml",
		"~/.config/census-sync/config.yml",
	}

	for _, location := range locations {
		if strings.HasPrefix(location, "~/") {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				continue
			}
			location = strings.Replace(location, "~", homeDir, 1)
		}

		if _, err := os.Stat(location); err == nil {
			return location, nil
		}
	}

	return "", fmt.Errorf("no configuration file found in any of these locations: %v", locations)
}

// Defaults returns the configuration used for any field left unset
func Defaults() Config {
	return Config{
		App: AppConfig{
			LogLevel: "info",
		},
		Census: CensusConfig{
			BaseURL:        "https://app.getcensus.com",
			TimeoutSeconds: 30,
			MaxRetries:     3,
		},
		Sync: SyncConfig{
			MaxWaitSeconds:       900,
			PollFrequencySeconds: 10,
			RetryAttempts:        3,
			RetryDelaySeconds:    10,
			Concurrency:          1,
		},
		Server: ServerConfig{
			Port:     8080,
			Schedule: "0 */6 * * *", // Every 6 hours by default
		},
	}
}

// SetDefaults fills every zero-valued field from Defaults. It is meant for
// configurations built in code, where zero means unset; Load already starts
// from Defaults and must not be followed by SetDefaults.
func (c *Config) SetDefaults() {
	defaults := Defaults()
	// Merge only fails on mismatched types, which cannot happen here.
	_ = mergo.Merge(c, defaults)
}
