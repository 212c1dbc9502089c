package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/harvestproof/harvestproof-engine/pkg/clients"
	"github.com/harvestproof/harvestproof-engine/pkg/config"
	"github.com/harvestproof/harvestproof-engine/pkg/database"
	"github.com/harvestproof/harvestproof-engine/pkg/handlers"
	"github.com/harvestproof/harvestproof-engine/pkg/logging"
	"github.com/harvestproof/harvestproof-engine/pkg/middleware"
	"github.com/harvestproof/harvestproof-engine/pkg/repositories"
	"github.com/harvestproof/harvestproof-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

// retentionInterval is how often expired satellite reports are pruned.
const retentionInterval = 6 * time.Hour

func main() {
	// Load .env if present; real environments set variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", cfg.Database.Host),
		zap.String("redis", cfg.Redis.Host))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	if err := database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = sqlDB.Close()

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	calibration, err := services.LoadCalibration(cfg.CalibrationPath)
	if err != nil {
		logger.Fatal("Failed to load calibration table", zap.Error(err))
	}

	// Repositories
	batchRepo := repositories.NewBatchRepository(db)
	stageRepo := repositories.NewStageRepository(db)
	certRepo := repositories.NewCertificateRepository(db)
	reportRepo := repositories.NewReportRepository(db)

	// External collaborators
	evidenceClient := clients.NewEvidenceClient(cfg.Services.Evidence, logger)
	imageryClient := clients.NewImageryClient(cfg.Services.Imagery, logger)
	anchorClient := clients.NewAnchorClient(cfg.Services.Anchor, logger)
	pinClient := clients.NewPinClient(cfg.Services.Pin, logger)

	// Quota counter: shared via Redis when available, process-local otherwise.
	var quota services.QuotaCounter
	quotaBackend := "redis"
	if redisClient != nil {
		quota = services.NewRedisQuotaCounter(redisClient, cfg.Satellite.MonthlyBudgetUnits)
	} else {
		logger.Warn("Redis not configured, satellite quota is tracked per-process")
		quota = services.NewMemoryQuotaCounter(cfg.Satellite.MonthlyBudgetUnits)
		quotaBackend = "memory"
	}

	// Services
	ledger := services.NewStageLedgerService(batchRepo, stageRepo, logger)
	eligibility := services.NewEligibilityService(batchRepo, stageRepo, reportRepo, evidenceClient, cfg.Evidence, logger)
	analysis := services.NewSatelliteAnalysisService(imageryClient, reportRepo, quota, calibration, cfg.Satellite, logger)
	certs := services.NewCertificateService(certRepo, batchRepo, stageRepo, eligibility, anchorClient, pinClient, logger)
	retention := services.NewRetentionService(reportRepo, logger)

	retention.RunScheduler(ctx, retentionInterval)

	// HTTP surface
	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, calibration, quotaBackend, logger).RegisterRoutes(mux)
	handlers.NewBatchHandler(batchRepo, logger).RegisterRoutes(mux)
	handlers.NewStageHandler(ledger, logger).RegisterRoutes(mux)
	handlers.NewCertificateHandler(certs, eligibility, logger).RegisterRoutes(mux)
	handlers.NewSatelliteHandler(analysis, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting harvestproof-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
		os.Exit(1)
	}
}
