package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		App: AppConfig{
			LogLevel: "info",
		},
		Census: CensusConfig{
			APIKey:  "secret-token:abc",
			BaseURL: "https://app.getcensus.com",
		},
		Sync: SyncConfig{
			SyncIDs: []int64{42},
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorFields []string // Expected field names in error
	}{
		{
			name:        "valid config",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name: "credentials name instead of api key",
			mutate: func(c *Config) {
				c.Census.APIKey = ""
				c.Census.CredentialsName = "prod"
			},
			expectError: false,
		},
		{
			name: "missing credentials",
			mutate: func(c *Config) {
				c.Census.APIKey = ""
			},
			expectError: true,
			errorFields: []string{"census.api_key"},
		},
		{
			name: "invalid log level",
			mutate: func(c *Config) {
				c.App.LogLevel = "invalid"
			},
			expectError: true,
			errorFields: []string{"app.log_level"},
		},
		{
			name: "invalid base url",
			mutate: func(c *Config) {
				c.Census.BaseURL = "not a url"
			},
			expectError: true,
			errorFields: []string{"census.base_url"},
		},
		{
			name: "invalid sync id",
			mutate: func(c *Config) {
				c.Sync.SyncIDs = []int64{42, 0}
			},
			expectError: true,
			errorFields: []string{"sync.sync_ids[1]"},
		},
		{
			name: "negative polling settings",
			mutate: func(c *Config) {
				c.Sync.MaxWaitSeconds = -1
				c.Sync.PollFrequencySeconds = -1
				c.Sync.MaxPollAttempts = -1
				c.Sync.RetryAttempts = -1
			},
			expectError: true,
			errorFields: []string{
				"sync.max_wait_seconds",
				"sync.poll_frequency_seconds",
				"sync.max_poll_attempts",
				"sync.retry_attempts",
			},
		},
		{
			name: "invalid port",
			mutate: func(c *Config) {
				c.Server.Port = 70000
			},
			expectError: true,
			errorFields: []string{"server.port"},
		},
		{
			name: "schedule enabled with invalid cron",
			mutate: func(c *Config) {
				c.Server.ScheduleEnabled = true
				c.Server.Schedule = "every tuesday"
			},
			expectError: true,
			errorFields: []string{"server.schedule"},
		},
		{
			name: "schedule enabled without syncs",
			mutate: func(c *Config) {
				c.Server.ScheduleEnabled = true
				c.Server.Schedule = "0 * * * *"
				c.Sync.SyncIDs = nil
			},
			expectError: true,
			errorFields: []string{"sync.sync_ids"},
		},
		{
			name: "schedule enabled with valid cron",
			mutate: func(c *Config) {
				c.Server.ScheduleEnabled = true
				c.Server.Schedule = "*/15 * * * *"
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config)

			err := config.Validate()

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected validation error, got nil")
					return
				}

				errorStr := err.Error()
				for _, field := range tt.errorFields {
					if !containsField(errorStr, field) {
						t.Errorf("Expected error to mention field '%s', but error was: %s", field, errorStr)
					}
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected validation error: %v", err)
				}
			}
		})
	}
}

func TestValidateWithOptions(t *testing.T) {
	tests := []struct {
		name        string
		options     ValidateOptions
		expectError bool
	}{
		{
			name:        "skip API key validation",
			options:     ValidateOptions{SkipAPIKey: true},
			expectError: false,
		},
		{
			name:        "do not skip API key validation",
			options:     ValidateOptions{SkipAPIKey: false},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			config.Census.APIKey = ""

			err := config.ValidateWithOptions(tt.options)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected validation error, got nil")
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected validation error: %v", err)
				}
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Message: "test message",
	}

	expected := "validation error for field 'test.field': test message"
	if err.Error() != expected {
		t.Errorf("Expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestValidationErrors(t *testing.T) {
	errors := ValidationErrors{
		ValidationError{Field: "field1", Message: "message1"},
		ValidationError{Field: "field2", Message: "message2"},
	}

	expected := "validation error for field 'field1': message1; validation error for field 'field2': message2"
	if errors.Error() != expected {
		t.Errorf("Expected error string '%s', got '%s'", expected, errors.Error())
	}
}

// Helper function to check if an error string contains a field name
func containsField(errorStr string, field string) bool {
	return strings.Contains(errorStr, field)
}
