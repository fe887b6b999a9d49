package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var sessionMigrationsFS embed.FS

// Migrations is a versioned schema applied to a sqlite file.
type Migrations struct {
	Source fs.FS
	Dir    string
	// Table records the applied version.
	Table string
}

// SessionMigrations is the schema of the session store.
func SessionMigrations() Migrations {
	return Migrations{
		Source: sessionMigrationsFS,
		Dir:    "migrations",
		Table:  "session_schema_migrations",
	}
}

// Up applies pending migrations to the database at dbPath and returns the
// resulting schema version.
func (m Migrations) Up(dbPath string) (uint, error) {
	// The migrator closes its connection, so it gets its own pool.
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, fmt.Errorf("open migration database: %w", err)
	}
	defer db.Close()

	driver, err := sqlite.WithInstance(db, &sqlite.Config{MigrationsTable: m.Table})
	if err != nil {
		return 0, fmt.Errorf("create sqlite driver: %w", err)
	}
	src, err := iofs.New(m.Source, m.Dir)
	if err != nil {
		return 0, fmt.Errorf("read migrations %s: %w", m.Dir, err)
	}
	mg, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return 0, fmt.Errorf("create migrator: %w", err)
	}
	defer mg.Close()

	if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}
	version, dirty, err := mg.Version()
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}
