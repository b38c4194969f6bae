// Command import-directory loads the employee master and attendance register into the claims database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/garyjia/lunch-claims/internal/config"
	"github.com/garyjia/lunch-claims/internal/infrastructure/importer"
	"github.com/garyjia/lunch-claims/internal/infrastructure/persistence/repository"
	"github.com/garyjia/lunch-claims/pkg/database"
	"github.com/garyjia/lunch-claims/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	file := flag.String("file", "", "workbook with EmployeeMaster and Attendance sheets")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: import-directory -file directory.xlsx [-config configs/config.yaml]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: "stdout",
		Format:     "console",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(context.Background(), cfg, *file, logger); err != nil {
		logger.Error("Import failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, path string, logger *zap.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	dir, err := importer.ReadDirectory(f)
	if err != nil {
		return err
	}

	db, err := database.New(database.Config{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		DSN:    cfg.Database.DSN,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := database.NewMigrator(db, logger).RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	return importer.NewImporter(db,
		repository.NewEmployeeRepository(db, logger),
		repository.NewAttendanceRepository(db, logger),
		logger,
	).Import(ctx, dir)
}
