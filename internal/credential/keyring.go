// Package credential reads and stores relay secrets in the system keyring.
package credential

import (
	"fmt"

	"github.com/99designs/keyring"
)

// Store is a keyring scoped to one service name.
type Store struct {
	ring keyring.Keyring
}

// Open opens the system keyring for service. The encrypted file backend is
// only offered when filePassword is set.
func Open(service, filePassword string) (*Store, error) {
	backends := []keyring.BackendType{
		keyring.KeychainBackend,
		keyring.SecretServiceBackend,
		keyring.KWalletBackend,
		keyring.WinCredBackend,
		keyring.PassBackend,
	}
	cfg := keyring.Config{
		ServiceName:              service,
		KeychainTrustApplication: true,
	}
	if filePassword != "" {
		backends = append(backends, keyring.FileBackend)
		cfg.FileDir = "~/.config/" + service + "/credentials"
		cfg.FilePasswordFunc = keyring.FixedStringPrompt(filePassword)
	}
	cfg.AllowedBackends = backends

	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Store{ring: ring}, nil
}

// NewStore wraps an already opened keyring.
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Get retrieves a credential value by key.
func (s *Store) Get(key string) (string, error) {
	item, err := s.ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func (s *Store) Set(key, value string) error {
	err := s.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}
