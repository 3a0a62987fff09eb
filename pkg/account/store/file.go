package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

// ageHeader starts every age-encrypted file.
const ageHeader = "age-encryption.org/v1\n"

// FileStore writes the snapshot to Path with 0600 permissions. When Identity is
// set the content is sealed to its recipient and unreadable without it.
type FileStore struct {
	Path     string
	Identity *age.X25519Identity
}

func (s *FileStore) Load() ([]byte, error) {
	content, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	sealed := bytes.HasPrefix(content, []byte(ageHeader))
	switch {
	case s.Identity == nil && sealed:
		return nil, fmt.Errorf("credentials at %s are sealed and no identity is configured", s.Path)
	case s.Identity == nil:
		return content, nil
	case !sealed:
		return nil, fmt.Errorf("credentials at %s are not sealed", s.Path)
	}
	reader, err := age.Decrypt(bytes.NewReader(content), s.Identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting credentials: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted credentials: %w", err)
	}
	return plaintext, nil
}

// Save replaces the file atomically.
func (s *FileStore) Save(snapshot []byte) error {
	content := snapshot
	if s.Identity != nil {
		var sealed bytes.Buffer
		writer, err := age.Encrypt(&sealed, s.Identity.Recipient())
		if err != nil {
			return fmt.Errorf("creating age encryptor: %w", err)
		}
		if _, err := writer.Write(snapshot); err != nil {
			return fmt.Errorf("writing credentials to age encryptor: %w", err)
		}
		if err := writer.Close(); err != nil {
			return fmt.Errorf("finalizing age encryption: %w", err)
		}
		content = sealed.Bytes()
	}
	return writeFileAtomic(s.Path, content)
}

func (s *FileStore) Delete() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create credentials dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credentials: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace credentials: %w", err)
	}
	return nil
}

// LoadOrCreateIdentity reads the age identity at path, generating and writing
// a new one when the file does not exist.
func LoadOrCreateIdentity(path string) (*age.X25519Identity, error) {
	content, err := os.ReadFile(path)
	if err == nil {
		identity, err := age.ParseX25519Identity(strings.TrimSpace(string(content)))
		if err != nil {
			return nil, fmt.Errorf("parsing identity %s: %w", path, err)
		}
		return identity, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read identity: %w", err)
	}
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age identity: %w", err)
	}
	if err := writeFileAtomic(path, []byte(identity.String()+"\n")); err != nil {
		return nil, err
	}
	return identity, nil
}
