package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// ValidateOptions provides options for validation
type ValidateOptions struct {
	SkipAPIKey bool // Skip API key validation (useful during setup)
}

// Validate validates the configuration and returns any errors
func (c *Config) Validate() error {
	return c.ValidateWithOptions(ValidateOptions{})
}

// ValidateWithOptions validates the configuration with custom options
func (c *Config) ValidateWithOptions(opts ValidateOptions) error {
	var errors ValidationErrors

	if c.App.LogLevel != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		if !contains(validLevels, c.App.LogLevel) {
			errors = append(errors, ValidationError{
				Field:   "app.log_level",
				Message: fmt.Sprintf("must be one of: %v", validLevels),
			})
		}
	}

	// Census credentials come either inline or from the keyring
	if !opts.SkipAPIKey && c.Census.APIKey == "" && c.Census.CredentialsName == "" {
		errors = append(errors, ValidationError{
			Field:   "census.api_key",
			Message: "API key or credentials_name is required",
		})
	}

	if c.Census.BaseURL != "" {
		if u, err := url.Parse(c.Census.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "census.base_url",
				Message: fmt.Sprintf("invalid URL: %s", c.Census.BaseURL),
			})
		}
	}

	if c.Census.TimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "census.timeout_seconds",
			Message: "timeout must be non-negative",
		})
	}

	if c.Census.RequestsPerSecond < 0 {
		errors = append(errors, ValidationError{
			Field:   "census.requests_per_second",
			Message: "requests per second must be non-negative",
		})
	}

	for i, id := range c.Sync.SyncIDs {
		if id <= 0 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("sync.sync_ids[%d]", i),
				Message: fmt.Sprintf("invalid sync id: %d", id),
			})
		}
	}

	if c.Sync.MaxWaitSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "sync.max_wait_seconds",
			Message: "max wait seconds must be non-negative",
		})
	}

	if c.Sync.PollFrequencySeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "sync.poll_frequency_seconds",
			Message: "poll frequency seconds must be non-negative",
		})
	}

	if c.Sync.MaxPollAttempts < 0 {
		errors = append(errors, ValidationError{
			Field:   "sync.max_poll_attempts",
			Message: "max poll attempts must be non-negative",
		})
	}

	if c.Sync.RetryAttempts < 0 {
		errors = append(errors, ValidationError{
			Field:   "sync.retry_attempts",
			Message: "retry attempts must be non-negative",
		})
	}

	if c.Sync.RetryDelaySeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "sync.retry_delay_seconds",
			Message: "retry delay seconds must be non-negative",
		})
	}

	if c.Sync.Concurrency < 0 {
		errors = append(errors, ValidationError{
			Field:   "sync.concurrency",
			Message: "concurrency must be non-negative",
		})
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Message: "port must be between 1 and 65535",
		})
	}

	if c.Server.ScheduleEnabled {
		if c.Server.Schedule == "" {
			errors = append(errors, ValidationError{
				Field:   "server.schedule",
				Message: "schedule must be provided when schedule_enabled is true",
			})
		} else if _, err := cron.ParseStandard(c.Server.Schedule); err != nil {
			errors = append(errors, ValidationError{
				Field:   "server.schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}

		if len(c.Sync.SyncIDs) == 0 {
			errors = append(errors, ValidationError{
				Field:   "sync.sync_ids",
				Message: "at least one sync id must be specified when schedule_enabled is true",
			})
		}
	}

	if len(errors) > 0 {
		return errors
	}

	return nil
}

// contains checks if a slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
