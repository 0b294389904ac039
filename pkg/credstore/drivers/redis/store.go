// Package redis provides a credstore driver backed by Redis. Each kind
// lives under its own key beneath a configurable prefix, optionally with
// a TTL so Redis expires a credential on its own schedule.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/patron/pkg/credstore"
)

const defaultPrefix = "patron:credential"

// Config controls key naming and expiry. The zero value is usable.
type Config struct {
	// Prefix namespaces the two keys; the access credential lives at
	// "<prefix>:access". Defaults to "patron:credential".
	Prefix string

	// AccessTTL and RefreshTTL bound how long each credential lives in
	// Redis. Zero keeps a credential until it is replaced or cleared.
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Store persists the credential pair as two Redis string keys.
type Store struct {
	client goredis.UniversalClient
	cfg    Config
}

// NewStore wraps an existing Redis client. The client's lifetime belongs
// to the caller; Close on the store does not close it.
func NewStore(client goredis.UniversalClient, cfg Config) *Store {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	return &Store{client: client, cfg: cfg}
}

func (s *Store) Get(ctx context.Context, kind credstore.Kind) (string, error) {
	cred, err := s.client.Get(ctx, s.key(kind)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", credstore.ErrNotFound
	}
	if err != nil {
		return "", &credstore.StoreError{Op: "get", Kind: kind, Err: err}
	}
	return cred, nil
}

func (s *Store) Save(ctx context.Context, kind credstore.Kind, credential string) error {
	if err := s.client.Set(ctx, s.key(kind), credential, s.ttl(kind)).Err(); err != nil {
		return &credstore.StoreError{Op: "save", Kind: kind, Err: err}
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, kind credstore.Kind) error {
	if err := s.client.Del(ctx, s.key(kind)).Err(); err != nil {
		return &credstore.StoreError{Op: "clear", Kind: kind, Err: err}
	}
	return nil
}

// ClearAll deletes both keys in a single DEL, so both kinds are attempted
// together.
func (s *Store) ClearAll(ctx context.Context) error {
	err := s.client.Del(ctx, s.key(credstore.KindAccess), s.key(credstore.KindRefresh)).Err()
	if err != nil {
		return &credstore.StoreError{Op: "clear_all", Err: err}
	}
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) key(kind credstore.Kind) string {
	return s.cfg.Prefix + ":" + string(kind)
}

func (s *Store) ttl(kind credstore.Kind) time.Duration {
	if kind == credstore.KindRefresh {
		return s.cfg.RefreshTTL
	}
	return s.cfg.AccessTTL
}
