package repofake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-lichess-client/credentials"
)

var _ credentials.Store = (*FakeStore)(nil)

// FakeStore is an in-memory credentials.Store with call counters and error
// injection.
type FakeStore struct {
	lock  sync.RWMutex
	creds *credentials.Credentials

	LoadErr  error
	SaveErr  error
	ClearErr error

	Saves  int
	Clears int
}

func NewFakeStore(initial *credentials.Credentials) *FakeStore {
	return &FakeStore{creds: initial.Clone()}
}

func (s *FakeStore) Load(_ context.Context) (*credentials.Credentials, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	return s.creds.Clone(), nil
}

func (s *FakeStore) Save(_ context.Context, creds *credentials.Credentials) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	if err := creds.Validate(); err != nil {
		return err
	}
	s.Saves++
	s.creds = creds.Clone()
	return nil
}

func (s *FakeStore) Clear(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.ClearErr != nil {
		return s.ClearErr
	}
	s.Clears++
	s.creds = nil
	return nil
}

// Current returns the stored record without going through Load.
func (s *FakeStore) Current() *credentials.Credentials {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.creds.Clone()
}

func (s *FakeStore) SaveCount() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.Saves
}
