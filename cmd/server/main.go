package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/lunch-claims/internal/application/port"
	"github.com/garyjia/lunch-claims/internal/application/service"
	"github.com/garyjia/lunch-claims/internal/config"
	"github.com/garyjia/lunch-claims/internal/domain/claim"
	"github.com/garyjia/lunch-claims/internal/domain/entity"
	"github.com/garyjia/lunch-claims/internal/infrastructure/external/lark"
	"github.com/garyjia/lunch-claims/internal/infrastructure/external/openai"
	"github.com/garyjia/lunch-claims/internal/infrastructure/persistence/repository"
	"github.com/garyjia/lunch-claims/internal/infrastructure/storage"
	httpapi "github.com/garyjia/lunch-claims/internal/interfaces/http"
	"github.com/garyjia/lunch-claims/internal/observability/metrics"
	"github.com/garyjia/lunch-claims/pkg/database"
	"github.com/garyjia/lunch-claims/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting lunch claim service",
		zap.String("address", cfg.Server.Addr()),
		zap.String("database", cfg.Database.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Service stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Server exited successfully")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := database.New(database.Config{
		Driver:          cfg.Database.Driver,
		Path:            cfg.Database.Path,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := database.NewMigrator(db, logger).RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	if err := os.MkdirAll(cfg.Storage.BillDir, 0755); err != nil {
		return fmt.Errorf("failed to create bill directory: %w", err)
	}

	employeeRepo := repository.NewEmployeeRepository(db, logger)
	attendanceRepo := repository.NewAttendanceRepository(db, logger)
	claimRepo := repository.NewClaimRepository(db, logger)
	files := storage.NewLocalFileStorage(cfg.Storage.BillDir, logger)

	prompts, err := openai.LoadPrompts(cfg.OpenAI.PromptsPath)
	if err != nil {
		return fmt.Errorf("failed to load prompts: %w", err)
	}
	if cfg.OpenAI.MaxTokens > 0 {
		prompts.BillExtraction.MaxTokens = cfg.OpenAI.MaxTokens
	}
	if cfg.OpenAI.Temperature > 0 {
		prompts.BillExtraction.Temperature = cfg.OpenAI.Temperature
	}
	extractor := openai.NewBillExtractor(openai.Config{
		APIKey:   cfg.OpenAI.APIKey,
		BaseURL:  cfg.OpenAI.BaseURL,
		Model:    cfg.OpenAI.Model,
		Currency: cfg.Policy.Currency,
	}, prompts, logger)

	var notifier port.StatusNotifier
	if cfg.Lark.Enabled {
		client := lark.NewClient(lark.Config{
			AppID:     cfg.Lark.AppID,
			AppSecret: cfg.Lark.AppSecret,
			Timeout:   cfg.Lark.APITimeout,
		}, logger)
		notifier = lark.NewStatusNotifier(client, logger)
		logger.Info("Lark status notifications enabled")
	}

	var (
		registry *prometheus.Registry
		gatherer prometheus.Gatherer
	)
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		gatherer = registry
	}
	var claimMetrics *metrics.ClaimMetrics
	if registry != nil {
		claimMetrics = metrics.NewClaimMetrics(registry)
	}

	policy := claim.Policy{
		RatePerPerson:   decimal.NewFromFloat(cfg.Policy.RatePerPerson).Round(entity.AmountPlaces),
		ClaimWindowDays: cfg.Policy.ClaimWindowDays,
		AmountTolerance: decimal.NewFromFloat(cfg.Policy.AmountTolerance).Round(entity.AmountPlaces),
		MaxBills:        cfg.Extraction.MaxBills,
	}

	claimService := service.NewClaimService(service.ClaimServiceConfig{
		Policy:            policy,
		Concurrency:       cfg.Extraction.Concurrency,
		ExtractionTimeout: cfg.OpenAI.Timeout,
	}, employeeRepo, attendanceRepo, claimRepo, extractor, files, claimMetrics, logger)
	approvalService := service.NewApprovalService(claimRepo, employeeRepo, notifier, claimMetrics, logger)

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
		MetricsPath:     cfg.Metrics.Path,
	}, claimService, approvalService, gatherer, logger)

	return server.Start(ctx)
}
