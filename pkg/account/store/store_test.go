package store

import (
	"os"
	"path/filepath"
	"testing"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/telekom/account-client/pkg/account"
)

var snapshot = []byte(`{"schema_version":1,"config":{"client_id":"3c49430b43dfba77"}}`)

func TestNew(t *testing.T) {
	s, err := New("", "/tmp/credentials.json", "default")
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = New("Keychain", "", "default")
	require.NoError(t, err)
	assert.Equal(t, &KeyringStore{Service: DefaultService, User: "default"}, s)

	_, err = New("file", "", "default")
	require.Error(t, err)
	_, err = New("keychain", "", "")
	require.Error(t, err)
	_, err = New("vault", "x", "y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported token storage")
}

func TestStoresArePersisters(t *testing.T) {
	var _ account.Persister = (*FileStore)(nil)
	var _ account.Persister = (*KeyringStore)(nil)
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	s := &FileStore{Path: path}

	_, err := s.Load()
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(snapshot))
	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, snapshot, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	dirInfo, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())

	// overwrite leaves no temp files behind
	require.NoError(t, s.Save([]byte(`{}`)))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, s.Delete())
	require.NoError(t, s.Delete())
	_, err = s.Load()
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreSealed(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "credentials.json")
	s := &FileStore{Path: path, Identity: identity}

	require.NoError(t, s.Save(snapshot))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "3c49430b43dfba77")
	assert.True(t, len(raw) > len(ageHeader) && string(raw[:len(ageHeader)]) == ageHeader)

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, snapshot, got)

	// the wrong identity cannot open it
	other, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	_, err = (&FileStore{Path: path, Identity: other}).Load()
	require.Error(t, err)

	// neither can a store without one
	_, err = (&FileStore{Path: path}).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sealed")
}

func TestFileStoreSealedRejectsPlaintext(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, snapshot, 0o600))

	_, err = (&FileStore{Path: path, Identity: identity}).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not sealed")
}

func TestLoadOrCreateIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.txt")
	first, err := LoadOrCreateIdentity(path)
	require.NoError(t, err)
	second, err := LoadOrCreateIdentity(path)
	require.NoError(t, err)
	assert.Equal(t, first.String(), second.String())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))
	_, err = LoadOrCreateIdentity(path)
	require.Error(t, err)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	s := &KeyringStore{Service: DefaultService, User: "default"}

	_, err := s.Load()
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(snapshot))
	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, snapshot, got)

	require.NoError(t, s.Delete())
	require.NoError(t, s.Delete())
	_, err = s.Load()
	require.ErrorIs(t, err, ErrNotFound)
}
