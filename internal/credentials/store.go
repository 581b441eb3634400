package credentials

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
	"github.com/goccy/go-json"
)

const serviceName = "census-sync"

// ErrNotFound is returned when no credentials are stored under a name
var ErrNotFound = errors.New("credentials not found")

// Store persists named credentials so they can be reused across runs
type Store interface {
	Save(name string, creds *Credentials) error
	Load(name string) (*Credentials, error)
	Delete(name string) error
}

// storedCredentials is the on-keyring form; Credentials itself redacts the key.
type storedCredentials struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`
}

// KeyringStore keeps credentials in the operating system keyring
type KeyringStore struct {
	ring keyring.Keyring
}

// OpenKeyringStore opens the system keyring, falling back to an encrypted
// file under fileDir when no native backend is available.
func OpenKeyringStore(fileDir string, filePassword string) (*KeyringStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(filePassword),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewKeyringStore(ring), nil
}

// NewKeyringStore wraps an already opened keyring
func NewKeyringStore(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

// Save stores creds under name, replacing any previous value
func (s *KeyringStore) Save(name string, creds *Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(storedCredentials{
		APIKey:  creds.APIKey.Value(),
		BaseURL: creds.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("encoding credentials %q: %w", name, err)
	}

	err = s.ring.Set(keyring.Item{
		Key:         name,
		Data:        data,
		Label:       "Census Credentials",
		Description: "Census API key",
	})
	if err != nil {
		return fmt.Errorf("setting credentials %q: %w", name, err)
	}
	return nil
}

// Load retrieves the credentials stored under name
func (s *KeyringStore) Load(name string) (*Credentials, error) {
	item, err := s.ring.Get(name)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("getting credentials %q: %w", name, err)
	}

	var stored storedCredentials
	if err := json.Unmarshal(item.Data, &stored); err != nil {
		return nil, fmt.Errorf("decoding credentials %q: %w", name, err)
	}

	return &Credentials{
		APIKey:  Secret(stored.APIKey),
		BaseURL: stored.BaseURL,
	}, nil
}

// Delete removes the credentials stored under name
func (s *KeyringStore) Delete(name string) error {
	if err := s.ring.Remove(name); err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return fmt.Errorf("deleting credentials %q: %w", name, err)
	}
	return nil
}
