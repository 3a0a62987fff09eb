// Package store keeps serialized account snapshots between runs, either in a
// file (optionally sealed with age) or in the OS keychain.
package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Load when nothing has been stored yet.
var ErrNotFound = errors.New("no stored credentials")

const (
	ModeFile     = "file"
	ModeKeychain = "keychain"

	// DefaultService is the keychain service name.
	DefaultService = "acctl"
)

// Store persists one account snapshot. Every Store satisfies
// account.Persister.
type Store interface {
	Load() ([]byte, error)
	Save(snapshot []byte) error
	Delete() error
}

// New returns the store for mode. path is used by the file store and name by
// the keychain store.
func New(mode, path, name string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeFile:
		if path == "" {
			return nil, errors.New("credentials path is required")
		}
		return &FileStore{Path: path}, nil
	case ModeKeychain:
		if name == "" {
			return nil, errors.New("account name is required")
		}
		return &KeyringStore{Service: DefaultService, User: name}, nil
	default:
		return nil, fmt.Errorf("unsupported token storage %q (expected %s or %s)", mode, ModeFile, ModeKeychain)
	}
}
