package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// sqlFS contains the embedded SQL migration files.
//
//go:embed sql/*.sql
var sqlFS embed.FS

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migrations: create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(sqlFS, "sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migrations: init migrate instance: %w", err)
	}
	return m, nil
}

// Up applies all pending database migrations. It is safe to call multiple
// times; when the database schema is up to date, the function is a no-op.
func Up(db *sql.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.With(zap.String("component", "migrations"))

	m, err := newMigrate(db)
	if err != nil {
		return err
	}

	currentVersion := uint(0)
	if v, dirty, verr := m.Version(); verr == nil {
		currentVersion = v
		log.Info("current database schema version", zap.Uint("version", v), zap.Bool("dirty", dirty))
	} else if errors.Is(verr, migrate.ErrNilVersion) {
		log.Info("no existing migration version (fresh database)")
	} else {
		log.Warn("unable to determine current version", zap.Error(verr))
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("database is up to date", zap.Uint("version", currentVersion))
			return nil
		}
		return fmt.Errorf("migrations: apply: %w", err)
	}

	if v, _, err := m.Version(); err == nil {
		log.Info("applied migrations", zap.Uint("version", v))
	} else {
		log.Warn("applied migrations but failed to read new version", zap.Error(err))
	}
	return nil
}

// Version reports the current schema version and whether it is dirty. A fresh
// database reports version 0.
func Version(db *sql.DB) (uint, bool, error) {
	m, err := newMigrate(db)
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("migrations: read version: %w", err)
	}
	return v, dirty, nil
}

// FixDirtyDatabase clears the dirty flag left by an interrupted migration by
// forcing the schema back to the last version that completed.
func FixDirtyDatabase(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	v, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("migrations: read version: %w", err)
	}
	if !dirty {
		return nil
	}

	target := cleanVersionBelow(v)
	if err := m.Force(target); err != nil {
		return fmt.Errorf("migrations: force version %d: %w", target, err)
	}
	return nil
}

// cleanVersionBelow is the last completed version before the dirty version v,
// or database.NilVersion when v was the first migration.
func cleanVersionBelow(v uint) int {
	target := int(v) - 1
	if target < 1 {
		return database.NilVersion
	}
	return target
}

// ForceVersion sets the recorded schema version without running migrations.
func ForceVersion(db *sql.DB, version uint) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Force(int(version)); err != nil {
		return fmt.Errorf("migrations: force version %d: %w", version, err)
	}
	return nil
}

// IsDirty reports whether err is golang-migrate's dirty schema error.
func IsDirty(err error) bool {
	var dirty migrate.ErrDirty
	return errors.As(err, &dirty)
}

// Down rolls back the given number of applied migrations.
func Down(db *sql.DB, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("migrations: steps must be positive, got %d", steps)
	}
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Steps(-steps); err != nil {
		return fmt.Errorf("migrations: roll back %d: %w", steps, err)
	}
	return nil
}
