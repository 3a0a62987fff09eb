package store

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringStore keeps the snapshot in the OS keychain under Service/User.
type KeyringStore struct {
	Service string
	User    string
}

func (s *KeyringStore) Load() ([]byte, error) {
	secret, err := keyring.Get(s.Service, s.User)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keychain entry: %w", err)
	}
	return []byte(secret), nil
}

func (s *KeyringStore) Save(snapshot []byte) error {
	if err := keyring.Set(s.Service, s.User, string(snapshot)); err != nil {
		return fmt.Errorf("failed to write keychain entry: %w", err)
	}
	return nil
}

func (s *KeyringStore) Delete() error {
	err := keyring.Delete(s.Service, s.User)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete keychain entry: %w", err)
	}
	return nil
}
