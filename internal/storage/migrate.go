// Package storage holds the thin persistence-glue pieces that don't
// belong to a single domain package: schema migration and (in
// internal/storage/snapshotstore) the ScoreSnapshot history store.
package storage

import (
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations applies every migration under dir to db using
// golang-migrate. Actual SQL migration files ship outside this core
// (spec.md §1 "persistent schema migration" is an explicit Non-goal),
// so this wrapper exists to satisfy the ambient tooling dependency
// carried from the teacher's go.mod without inventing a migration
// system of our own; operators who do maintain a migrations directory
// can call this from their own boot sequence.
func RunMigrations(db *sql.DB, dir string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("storage: migrate driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", dir), "postgres", driver)
	if err != nil {
		return fmt.Errorf("storage: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("storage: migrate up: %w", err)
	}
	return nil
}
