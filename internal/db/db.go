// Package db opens the GORM connection, applies migrations and seeds the
// reference data.
package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/diewo77/maritime-billing/internal/config"
	"github.com/diewo77/maritime-billing/internal/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ConnectOptions tunes the retry loop; zero values use the defaults.
type ConnectOptions struct {
	Attempts int
	Delay    time.Duration
}

func (o ConnectOptions) withDefaults() ConnectOptions {
	if o.Attempts < 1 {
		o.Attempts = 10
	}
	if o.Delay <= 0 {
		o.Delay = 2 * time.Second
	}
	return o
}

func dialector(cfg config.DatabaseConfig) (gorm.Dialector, string, error) {
	switch cfg.Driver {
	case "", DriverPostgres:
		dsn := PostgresDSN(cfg)
		return postgres.Open(dsn), MaskDSN(dsn), nil
	case DriverSQLite:
		return sqlite.Open(cfg.Path), cfg.Path, nil
	default:
		return nil, "", fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}
}

// Connect opens the database, retrying while it comes up. GORM errors are
// translated so unique violations surface as gorm.ErrDuplicatedKey.
func Connect(ctx context.Context, cfg config.DatabaseConfig, opts ConnectOptions) (*gorm.DB, error) {
	log := logger.WithComponent("db")
	opts = opts.withDefaults()
	dial, masked, err := dialector(cfg)
	if err != nil {
		return nil, err
	}

	logLevel := gormlogger.Silent
	if cfg.Debug {
		logLevel = gormlogger.Info
	}
	gcfg := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(logLevel),
		TranslateError: true,
	}

	var db *gorm.DB
	for i := 1; i <= opts.Attempts; i++ {
		db, err = gorm.Open(dial, gcfg)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i).Int("max", opts.Attempts).Msg("database not reachable, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.Delay):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect database after %d attempts: %w", opts.Attempts, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		// one writer at a time
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping failed: %w", err)
	}
	log.Info().Str("driver", dial.Name()).Str("dsn", masked).Msg("database connected")
	return db, nil
}
