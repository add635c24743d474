package db

import (
	"embed"
	"errors"
	"fmt"

	migrate "github.com/golang-migrate/migrate/v4"
	// registers the postgres driver for golang-migrate
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"

	"github.com/diewo77/maritime-billing/internal/logger"
	"github.com/diewo77/maritime-billing/internal/models"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// tables that must exist once the schema is in place
var coreTables = []string{"companies", "ships", "operations", "invoices", "invoice_lines", "invoice_sequences"}

// AutoMigrate creates or updates the schema from the GORM models.
func AutoMigrate(db *gorm.DB) error {
	log := logger.WithComponent("db")
	for _, m := range models.All() {
		if err := db.AutoMigrate(m); err != nil {
			log.Error().Err(err).Str("model", fmt.Sprintf("%T", m)).Msg("automigrate failed")
			return fmt.Errorf("automigrate %T: %w", m, err)
		}
	}
	return CheckSchema(db)
}

// CheckSchema fails when a core table is missing.
func CheckSchema(db *gorm.DB) error {
	for _, table := range coreTables {
		if !db.Migrator().HasTable(table) {
			return errors.New("missing table after migration: " + table)
		}
	}
	return nil
}

// MigrateSQL applies the embedded SQL migrations with golang-migrate.
// Postgres only; dsn may be in key=value or URL form.
func MigrateSQL(dsn string) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, ToURLDSN(NormalizeDSN(dsn)))
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	v, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}
	log := logger.WithComponent("db")
	log.Info().Uint("version", v).Bool("dirty", dirty).Msg("sql migrations applied")
	return nil
}
