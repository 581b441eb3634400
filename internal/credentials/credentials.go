// Package credentials holds the Census API key and the stores that keep it
// between runs.
package credentials

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/gobeyondidentity/census-sync/internal/census"
	"github.com/gobeyondidentity/census-sync/internal/config"
)

const redacted = "**********"

var validate = validator.New()

// Secret is a string that never prints its value
type Secret string

// Value returns the underlying secret
func (s Secret) Value() string {
	return string(s)
}

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string {
	return s.String()
}

// MarshalJSON keeps the secret out of JSON output
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Credentials authenticate calls to the Census API
type Credentials struct {
	APIKey  Secret `json:"api_key" validate:"required"`
	BaseURL string `json:"base_url,omitempty" validate:"omitempty,url"`
}

// New creates credentials for apiKey
func New(apiKey string) *Credentials {
	return &Credentials{APIKey: Secret(apiKey)}
}

// Validate checks that the credentials can be used to build a client
func (c *Credentials) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fmt.Errorf("invalid credentials: field %s failed '%s' check", fieldErrs[0].Field(), fieldErrs[0].Tag())
		}
		return fmt.Errorf("invalid credentials: %w", err)
	}
	return nil
}

// GetClient returns a newly instantiated client for working with the Census API
func (c *Credentials) GetClient(opts ...census.Option) (*census.Client, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if c.BaseURL != "" {
		opts = append([]census.Option{census.WithBaseURL(c.BaseURL)}, opts...)
	}
	return census.NewClient(c.APIKey.Value(), opts...), nil
}

// FromConfig resolves the credentials a configuration refers to. An inline
// api_key wins over a stored credentials_name.
func FromConfig(cfg *config.Config, store Store) (*Credentials, error) {
	var creds *Credentials
	switch {
	case cfg.Census.APIKey != "":
		creds = New(cfg.Census.APIKey)
	case cfg.Census.CredentialsName != "":
		if store == nil {
			return nil, fmt.Errorf("no credentials store available to load %q", cfg.Census.CredentialsName)
		}
		stored, err := store.Load(cfg.Census.CredentialsName)
		if err != nil {
			return nil, err
		}
		creds = stored
	default:
		return nil, fmt.Errorf("no Census API key configured: set census.api_key or census.credentials_name")
	}

	if creds.BaseURL == "" {
		creds.BaseURL = cfg.Census.BaseURL
	}
	return creds, nil
}

// ClientFromConfig resolves credentials and builds a client with the
// configured timeout, rate limit and retry settings.
func ClientFromConfig(cfg *config.Config, store Store) (*census.Client, error) {
	creds, err := FromConfig(cfg, store)
	if err != nil {
		return nil, err
	}

	return creds.GetClient(
		census.WithTimeout(time.Duration(cfg.Census.TimeoutSeconds)*time.Second),
		census.WithRateLimit(cfg.Census.RequestsPerSecond),
		census.WithMaxRetries(cfg.Census.MaxRetries),
	)
}
