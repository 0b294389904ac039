// Package sqlite provides a credstore driver backed by a SQLite database.
// The credential pair lives in a two-row credentials table keyed by kind.
// Use ":memory:" as the DSN for an ephemeral store in tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/aussiebroadwan/patron/pkg/credstore"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// NewStore opens the SQLite database at dsn. Call ApplyMigrations before
// first use to create or upgrade the schema.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &credstore.StoreError{Op: "open", Err: err}
	}

	// Concurrent dispatch and renewal can hit the database at the same
	// moment; wait out short lock contention instead of failing with BUSY.
	if _, err := db.ExecContext(context.Background(), `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, &credstore.StoreError{Op: "open", Err: err}
	}

	return &Store{db: db}, nil
}

func (s *Store) Get(ctx context.Context, kind credstore.Kind) (string, error) {
	var cred string
	err := s.db.QueryRowContext(ctx,
		`SELECT credential FROM credentials WHERE kind = ?`, string(kind),
	).Scan(&cred)
	if errors.Is(err, sql.ErrNoRows) {
		return "", credstore.ErrNotFound
	}
	if err != nil {
		return "", &credstore.StoreError{Op: "get", Kind: kind, Err: err}
	}
	return cred, nil
}

func (s *Store) Save(ctx context.Context, kind credstore.Kind, credential string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (kind, credential, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (kind) DO UPDATE SET
			credential = excluded.credential,
			updated_at = CURRENT_TIMESTAMP`,
		string(kind), credential,
	)
	if err != nil {
		return &credstore.StoreError{Op: "save", Kind: kind, Err: err}
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, kind credstore.Kind) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE kind = ?`, string(kind),
	)
	if err != nil {
		return &credstore.StoreError{Op: "clear", Kind: kind, Err: err}
	}
	return nil
}

// ClearAll removes both rows in one statement, so both kinds go together
// or the deletion fails as a whole.
func (s *Store) ClearAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credentials`)
	if err != nil {
		return &credstore.StoreError{Op: "clear_all", Err: err}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
