package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jrsteele09/go-lichess-client/internal/errors"
	"github.com/timshannon/badgerhold/v4"
)

var _ Store = (*BadgerStore)(nil)

// BadgerStore keeps the credential record in an embedded BadgerHold database
// as one JSON value under StorageKey.
type BadgerStore struct {
	db *badgerhold.Store
}

func NewBadgerStore(path string) (*BadgerStore, error) {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credential db path %s: %w", path, err)
	}
	opts := badgerhold.DefaultOptions
	opts.Dir = path
	opts.ValueDir = path
	opts.Logger = nil
	opts.Encoder = json.Marshal
	opts.Decoder = json.Unmarshal
	db, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential db at %s: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Load(_ context.Context) (*Credentials, error) {
	var creds Credentials
	if err := s.db.Get(StorageKey, &creds); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s: %w", StorageKey, err)
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return &creds, nil
}

func (s *BadgerStore) Save(_ context.Context, creds *Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	if err := s.db.Upsert(StorageKey, creds); err != nil {
		return fmt.Errorf("failed to save %s: %w", StorageKey, err)
	}
	return nil
}

func (s *BadgerStore) Clear(_ context.Context) error {
	if err := s.db.Delete(StorageKey, Credentials{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete %s: %w", StorageKey, err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
