package store

import (
	"embed"
	"fmt"
	"io/fs"

	"muufin/internal/logging"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
)

//go:embed migrations/*.up.sql migrations/*.down.sql
var migrationsFS embed.FS

// MigrateUp runs all "up" migrations bundled via go:embed.
func MigrateUp(sqlitePath string) error {
	if sqlitePath == "" {
		return fmt.Errorf("migrator: empty sqlite path")
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrator: iofs init: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, "sqlite://"+sqlitePath)
	if err != nil {
		return fmt.Errorf("migrator: create: %w", err)
	}
	defer m.Close()

	if entries, err := fs.ReadDir(migrationsFS, "migrations"); err == nil {
		logging.Debug("Embedded migrations", "count", len(entries))
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrator: up: %w", err)
	}

	if v, d, err := m.Version(); err == nil {
		logging.Info("DB migration version", "version", v, "dirty", d)
	}
	return nil
}
