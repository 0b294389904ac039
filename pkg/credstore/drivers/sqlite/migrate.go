package sqlite

import (
	"errors"

	"github.com/aussiebroadwan/patron/pkg/credstore"
	"github.com/aussiebroadwan/patron/pkg/credstore/drivers/sqlite/migrations"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "modernc.org/sqlite"
)

// ApplyMigrations applies any pending migrations from the embedded
// migration files. Safe to call on every open; an already-current schema
// is not an error.
func (s *Store) ApplyMigrations() error {
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return &credstore.StoreError{Op: "migrate", Err: err}
	}

	src, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return &credstore.StoreError{Op: "migrate", Err: err}
	}

	instance, err := migrate.NewWithInstance("iofs", src, "", driver)
	if err != nil {
		return &credstore.StoreError{Op: "migrate", Err: err}
	}

	if err := instance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return &credstore.StoreError{Op: "migrate", Err: err}
	}

	return nil
}
