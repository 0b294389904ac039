// Package memory provides an in-process credstore driver. It is the
// default driver for tests and for callers that do not need credentials
// to outlive the process.
package memory

import (
	"context"
	"sync"

	"github.com/aussiebroadwan/patron/pkg/credstore"
)

// Store holds the credential pair in a mutex-guarded map. The zero value
// is not usable; construct with NewStore.
type Store struct {
	mu    sync.RWMutex
	creds map[credstore.Kind]string
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{creds: make(map[credstore.Kind]string)}
}

func (s *Store) Get(ctx context.Context, kind credstore.Kind) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.creds[kind]
	if !ok {
		return "", credstore.ErrNotFound
	}
	return cred, nil
}

func (s *Store) Save(ctx context.Context, kind credstore.Kind, credential string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds[kind] = credential
	return nil
}

func (s *Store) Clear(ctx context.Context, kind credstore.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.creds, kind)
	return nil
}

func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.creds, credstore.KindAccess)
	delete(s.creds, credstore.KindRefresh)
	return nil
}

func (s *Store) Close() error { return nil }
