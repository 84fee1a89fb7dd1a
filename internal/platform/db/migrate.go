package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrator applies the embedded schema migrations.
type Migrator struct {
	dsn    string
	logger *slog.Logger
}

// NewMigrator constructs a Migrator for dsn.
func NewMigrator(dsn string, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{dsn: dsn, logger: logger}
}

func (m *Migrator) open() (*migrate.Migrate, func(), error) {
	sqlDB, err := sql.Open("pgx", m.dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("platform/db: open migrate connection: %w", err)
	}
	driver, err := pgxmigrate.WithInstance(sqlDB, &pgxmigrate.Config{})
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("platform/db: migrate driver: %w", err)
	}
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("platform/db: migration source: %w", err)
	}
	mig, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("platform/db: create migrate instance: %w", err)
	}
	return mig, func() { _, _ = mig.Close() }, nil
}

// Up applies every pending migration.
func (m *Migrator) Up() error {
	mig, closeFn, err := m.open()
	if err != nil {
		return err
	}
	defer closeFn()

	from, err := checkVersion(mig)
	if err != nil {
		return err
	}
	if err := mig.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info("database schema up to date", slog.Uint64("version", uint64(from)))
			return nil
		}
		return fmt.Errorf("platform/db: migrate up: %w", err)
	}
	to, _, _ := mig.Version()
	m.logger.Info("database migrated", slog.Uint64("from_version", uint64(from)), slog.Uint64("to_version", uint64(to)))
	return nil
}

// Down rolls back steps migrations.
func (m *Migrator) Down(steps int) error {
	if steps <= 0 {
		return errors.New("platform/db: steps must be positive")
	}
	mig, closeFn, err := m.open()
	if err != nil {
		return err
	}
	defer closeFn()

	from, err := checkVersion(mig)
	if err != nil {
		return err
	}
	if err := mig.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("platform/db: migrate down: %w", err)
	}
	to, _, err := mig.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("platform/db: read version: %w", err)
	}
	m.logger.Info("database rolled back", slog.Uint64("from_version", uint64(from)), slog.Uint64("to_version", uint64(to)))
	return nil
}

// Version reports the applied schema version.
func (m *Migrator) Version() (uint, bool, error) {
	mig, closeFn, err := m.open()
	if err != nil {
		return 0, false, err
	}
	defer closeFn()
	v, dirty, err := mig.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func checkVersion(mig *migrate.Migrate) (uint, error) {
	v, dirty, err := mig.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("platform/db: read version: %w", err)
	}
	if dirty {
		return v, fmt.Errorf("platform/db: database is dirty at version %d, fix manually", v)
	}
	return v, nil
}
