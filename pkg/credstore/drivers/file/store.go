// Package file provides an encrypted on-disk credstore driver. The
// credential pair lives in one JSON envelope: a cleartext Argon2id salt
// plus the pair sealed with AES-256-GCM under a key derived from the
// caller's passphrase. Mutations rewrite the file through a temp file and
// rename so a crash mid-write never leaves a torn envelope behind.
//
// The store assumes it is the file's only writer for its lifetime.
package file

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aussiebroadwan/patron/pkg/credstore"
	"github.com/aussiebroadwan/patron/pkg/cryptox"
)

const envelopeVersion = 1

// envelope is the on-disk document. The salt is not secret; the sealed
// payload is a JSON object mapping kind to credential.
type envelope struct {
	Version int    `json:"version"`
	Salt    string `json:"salt"`
	Sealed  string `json:"sealed"`
}

// Store keeps the decrypted pair in memory and rewrites the file on every
// mutation. The passphrase KDF runs once, at open.
type Store struct {
	path string
	key  []byte
	salt []byte

	mu    sync.RWMutex
	creds map[credstore.Kind]string
}

// NewStore opens or creates the credentials file at path. A wrong
// passphrase for an existing file fails here, not on first use.
func NewStore(path, passphrase string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, &credstore.StoreError{Op: "open", Err: err}
	}

	s := &Store{path: path, creds: make(map[credstore.Kind]string)}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		salt, err := cryptox.NewSalt()
		if err != nil {
			return nil, &credstore.StoreError{Op: "open", Err: err}
		}
		s.salt = salt
		s.key = cryptox.DeriveKey(passphrase, salt)
		return s, nil
	}
	if err != nil {
		return nil, &credstore.StoreError{Op: "open", Err: err}
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &credstore.StoreError{Op: "open", Err: fmt.Errorf("parse envelope: %w", err)}
	}
	if env.Version != envelopeVersion {
		return nil, &credstore.StoreError{Op: "open", Err: fmt.Errorf("unsupported envelope version %d", env.Version)}
	}

	s.salt, err = base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, &credstore.StoreError{Op: "open", Err: fmt.Errorf("decode salt: %w", err)}
	}
	s.key = cryptox.DeriveKey(passphrase, s.salt)

	sealed, err := base64.StdEncoding.DecodeString(env.Sealed)
	if err != nil {
		return nil, &credstore.StoreError{Op: "open", Err: fmt.Errorf("decode payload: %w", err)}
	}
	plain, err := cryptox.Open(s.key, sealed)
	if err != nil {
		return nil, &credstore.StoreError{Op: "open", Err: err}
	}
	if err := json.Unmarshal(plain, &s.creds); err != nil {
		return nil, &credstore.StoreError{Op: "open", Err: fmt.Errorf("parse credentials: %w", err)}
	}

	return s, nil
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

	next := s.copyCreds()
	next[kind] = credential
	if err := s.persist(next); err != nil {
		return &credstore.StoreError{Op: "save", Kind: kind, Err: err}
	}
	s.creds = next
	return nil
}

func (s *Store) Clear(ctx context.Context, kind credstore.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.copyCreds()
	delete(next, kind)
	if err := s.persist(next); err != nil {
		return &credstore.StoreError{Op: "clear", Kind: kind, Err: err}
	}
	s.creds = next
	return nil
}

// ClearAll rewrites the envelope without either credential. A single
// atomic write covers both kinds.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[credstore.Kind]string)
	if err := s.persist(next); err != nil {
		return &credstore.StoreError{Op: "clear_all", Err: err}
	}
	s.creds = next
	return nil
}

func (s *Store) Close() error { return nil }

// copyCreds returns a mutable copy so the in-memory state only advances
// once the file write has succeeded.
func (s *Store) copyCreds() map[credstore.Kind]string {
	next := make(map[credstore.Kind]string, len(s.creds))
	for k, v := range s.creds {
		next[k] = v
	}
	return next
}

func (s *Store) persist(creds map[credstore.Kind]string) error {
	plain, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	sealed, err := cryptox.Seal(s.key, plain)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(envelope{
		Version: envelopeVersion,
		Salt:    base64.StdEncoding.EncodeToString(s.salt),
		Sealed:  base64.StdEncoding.EncodeToString(sealed),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	// Write to a temp file in the same directory, then rename over the
	// target. Readers only ever see a complete envelope.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credentials-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), s.path)
}
