package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/go-lichess-client/internal/errors"
)

var _ Store = (*FileStore)(nil)

// FileStore keeps the credential record as a JSON file, optionally encrypted.
type FileStore struct {
	path       string
	passphrase string
	mu         sync.Mutex
}

type FileStoreOption func(*FileStore)

// WithPassphrase encrypts the record at rest.
func WithPassphrase(passphrase string) FileStoreOption {
	return func(s *FileStore) {
		s.passphrase = passphrase
	}
}

// NewFileStore stores the record as <dir>/authState.json.
func NewFileStore(dir string, opts ...FileStoreOption) *FileStore {
	s := &FileStore{path: filepath.Join(dir, StorageKey+".json")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(_ context.Context) (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	switch {
	case s.passphrase != "":
		if raw, err = unseal(s.passphrase, raw); err != nil {
			return nil, err
		}
	case isSealed(raw):
		return nil, errors.Wrapf(errors.ErrWrongPassphrase, "%s is encrypted and no passphrase is set", s.path)
	}

	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidCredentials, "decode %s: %v", s.path, err)
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return &creds, nil
}

func (s *FileStore) Save(_ context.Context, creds *Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	if s.passphrase != "" {
		if data, err = seal(s.passphrase, data); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFileAtomic(s.path, data)
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", s.path, err)
	}
	return nil
}

// writeFileAtomic writes to a temp file in the same directory and renames it
// over path so a crash never leaves a truncated record.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+StorageKey+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
