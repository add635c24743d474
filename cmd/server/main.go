package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/diewo77/maritime-billing/internal/config"
	"github.com/diewo77/maritime-billing/internal/db"
	"github.com/diewo77/maritime-billing/internal/logger"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "maritime-billing",
	Short:   "Back-office billing server for maritime operations",
	Version: version,
	// without subcommand the server starts
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	Long: `Apply database migrations and exit.

By default the schema is derived from the GORM models. With --sql (or
MIGRATIONS_SQL=1) the embedded versioned SQL migrations are applied instead;
this path is postgres only.`,
	RunE: runMigrate,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the reference catalogue (operations, demo company, suppliers)",
	RunE:  runSeed,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep-overdue",
	Short: "Mark issued invoices past their due date as overdue",
	Long: `Mark issued invoices past their due date as overdue.

Meant to be run by an external scheduler (cron, k8s CronJob). Running it
twice on the same day changes nothing the second time.`,
	Example: `  maritime-billing sweep-overdue`,
	RunE:    runSweep,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, sweepCmd)
	migrateCmd.Flags().Bool("sql", false, "Use the embedded SQL migrations (golang-migrate)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log := logger.WithComponent("cmd")
		log.Error().Err(err).Msg("command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads .env and the configuration, then sets up logging.
func bootstrap() (*config.Config, error) {
	// .env is optional
	_ = godotenv.Load()
	cfg := config.Load()
	if err := logger.Setup(cfg.Log); err != nil {
		return nil, fmt.Errorf("logger setup: %w", err)
	}
	return cfg, nil
}

func connect(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	return db.Connect(ctx, cfg.Database, db.ConnectOptions{})
}

func migrate(cfg *config.Config, conn *gorm.DB, useSQL bool) error {
	if useSQL {
		if cfg.Database.Driver == db.DriverSQLite {
			return errors.New("sql migrations require postgres")
		}
		if err := db.MigrateSQL(db.PostgresDSN(cfg.Database)); err != nil {
			return err
		}
		return db.CheckSchema(conn)
	}
	return db.AutoMigrate(conn)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("server")
	cfg, err := bootstrap()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx := cmd.Context()
	conn, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	if cfg.App.Migrations || cfg.App.SQLMigrations {
		if err := migrate(cfg, conn, cfg.App.SQLMigrations); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		log.Info().Msg("migrations completed")
	}
	if cfg.App.Seed {
		if err := db.Seed(conn); err != nil {
			return fmt.Errorf("seeding failed: %w", err)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      NewApp(conn, cfg),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Server.Port).Bool("dev", cfg.App.Dev).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-quit:
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
	log.Info().Msg("server stopped gracefully")
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}
	useSQL, _ := cmd.Flags().GetBool("sql")
	conn, err := connect(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	if err := migrate(cfg, conn, useSQL || cfg.App.SQLMigrations); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log := logger.WithComponent("migrate")
	log.Info().Bool("sql", useSQL).Msg("migrations completed successfully")
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}
	conn, err := connect(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	return db.Seed(conn)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}
	conn, err := connect(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	n, err := newInvoiceService(conn, cfg).UpdateOverdueInvoices(cmd.Context())
	if err != nil {
		return fmt.Errorf("overdue sweep: %w", err)
	}
	log := logger.WithComponent("sweep")
	log.Info().Int64("updated", n).Msg("overdue sweep done")
	return nil
}
