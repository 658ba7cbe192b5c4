package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFiles embed.FS

// RunMigrations applies pending schema migrations. It is idempotent.
func RunMigrations(ctx context.Context, db *DB, logger *zap.Logger) error {
	m, closeDriver, err := newMigrate(ctx, db)
	if err != nil {
		return err
	}
	defer closeDriver()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("No migrations to apply (database up-to-date)", zap.String("dialect", string(db.dialect)))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, _ := m.Version()
	logger.Info("Applied migrations successfully",
		zap.String("dialect", string(db.dialect)),
		zap.Uint("version", newVersion))
	return nil
}

// MigrationVersion returns the applied schema version; 0 means none applied.
func MigrationVersion(ctx context.Context, db *DB) (version uint, dirty bool, err error) {
	m, closeDriver, err := newMigrate(ctx, db)
	if err != nil {
		return 0, false, err
	}
	defer closeDriver()

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// newMigrate builds a migrator on the shared pool. Migrate.Close would close
// the pool itself, so the returned func only releases what was borrowed.
func newMigrate(ctx context.Context, db *DB) (*migrate.Migrate, func(), error) {
	source, err := iofs.New(migrationFiles, "migrations/"+string(db.dialect))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	var driver database.Driver
	release := func() {}
	switch db.dialect {
	case DialectPostgres:
		conn, err := db.conn.Conn(ctx)
		if err != nil {
			source.Close()
			return nil, nil, fmt.Errorf("failed to reserve migration connection: %w", err)
		}
		driver, err = postgres.WithConnection(ctx, conn, &postgres.Config{})
		if err != nil {
			conn.Close()
			source.Close()
			return nil, nil, fmt.Errorf("failed to create migration driver: %w", err)
		}
		release = func() { conn.Close() }
	case DialectSQLite:
		driver, err = sqlite.WithInstance(db.conn.DB, &sqlite.Config{})
		if err != nil {
			source.Close()
			return nil, nil, fmt.Errorf("failed to create migration driver: %w", err)
		}
	default:
		source.Close()
		return nil, nil, fmt.Errorf("no migrations for dialect %q", db.dialect)
	}

	m, err := migrate.NewWithInstance("iofs", source, string(db.dialect), driver)
	if err != nil {
		release()
		source.Close()
		return nil, nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, func() {
		release()
		source.Close()
	}, nil
}
