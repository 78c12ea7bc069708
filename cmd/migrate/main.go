package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/saturnino-fabrica-de-software/proctor/internal/config"
	"github.com/saturnino-fabrica-de-software/proctor/internal/database"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	action := flag.String("action", "up", "Migration action: up, down, version, force")
	steps := flag.Int("steps", 1, "Migrations to roll back (for down action)")
	version := flag.Int("version", 0, "Target version (for force action)")
	dbName := flag.String("db", "proctor", "Database name recorded by the migrator")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := config.NewLogger(cfg.Environment)

	db, err := database.NewPool(database.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	migrator, err := database.NewMigrator(db, *dbName)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() { _ = migrator.Close() }()

	switch *action {
	case "up":
		if err := migrator.Up(); err != nil {
			return fmt.Errorf("migration up failed: %w", err)
		}
		logger.Info("migrations applied")

	case "down":
		if *steps < 1 {
			return fmt.Errorf("steps must be positive, got %d", *steps)
		}
		if err := migrator.Steps(-*steps); err != nil {
			return fmt.Errorf("migration down failed: %w", err)
		}
		logger.Info("migrations rolled back", slog.Int("steps", *steps))

	case "version":
		v, dirty, err := migrator.Version()
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		logger.Info("schema version", slog.Uint64("version", uint64(v)), slog.Bool("dirty", dirty))

	case "force":
		if *version == 0 {
			return fmt.Errorf("version flag is required for force action")
		}
		if err := migrator.Force(*version); err != nil {
			return fmt.Errorf("force migration failed: %w", err)
		}
		logger.Info("migration version forced", slog.Int("version", *version))

	default:
		return fmt.Errorf("invalid action: %s (use: up, down, version, force)", *action)
	}

	return nil
}
