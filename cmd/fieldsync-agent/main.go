package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/fieldsync-api/api/swagger"
	"github.com/noah-isme/fieldsync-api/internal/handler"
	"github.com/noah-isme/fieldsync-api/internal/middleware"
	"github.com/noah-isme/fieldsync-api/internal/repository"
	"github.com/noah-isme/fieldsync-api/internal/service"
	"github.com/noah-isme/fieldsync-api/pkg/cache"
	"github.com/noah-isme/fieldsync-api/pkg/config"
	"github.com/noah-isme/fieldsync-api/pkg/database"
	"github.com/noah-isme/fieldsync-api/pkg/jobs"
	"github.com/noah-isme/fieldsync-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/fieldsync-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/fieldsync-api/pkg/middleware/requestid"
	"github.com/noah-isme/fieldsync-api/pkg/remote"
	"github.com/noah-isme/fieldsync-api/pkg/storage"
)

// @title FieldSync Agent API
// @version 0.1.0
// @description Offline fieldwork agent: local checklist store, durable sync queue and conflict resolution
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewSQLite(cfg.Database)
	if err != nil {
		logr.Fatal("failed to open local store", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		logr.Fatal("failed to migrate local store", zap.Error(err))
	}

	var statusCache *repository.CacheRepository
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, status cache disabled", zap.Error(err))
			statusCache = repository.NewCacheRepository(nil, logr)
		} else {
			statusCache = repository.NewCacheRepository(client, logr)
			defer statusCache.Close()
		}
	} else {
		statusCache = repository.NewCacheRepository(nil, logr)
	}

	queueRepo := repository.NewQueueRepository(db, cfg.Sync.CoalesceWrites)
	checklistRepo := repository.NewChecklistRepository(db)
	evidenceRepo := repository.NewEvidenceRepository(db)
	findingRepo := repository.NewFindingRepository(db)

	remoteClient := remote.New(cfg.Remote)
	validate := validator.New()
	metrics := service.NewMetricsService()

	engine := service.NewSyncEngine(queueRepo, checklistRepo, evidenceRepo, findingRepo, remoteClient, cfg.Sync, metrics, logr)
	go engine.RunAuto(ctx)

	conflictSvc := service.NewConflictService(queueRepo, checklistRepo, evidenceRepo, findingRepo, logr)
	fieldworkSvc := service.NewFieldworkService(
		checklistRepo, findingRepo, evidenceRepo, queueRepo,
		engine, remoteClient, statusCache,
		validate, cfg.Sync, metrics, logr,
	)
	captureSvc := service.NewCaptureService(evidenceRepo, checklistRepo, queueRepo, nil, validate, cfg.Evidence, cfg.Sync.MaxRetries, logr)

	dataDir := filepath.Dir(cfg.Database.Path)
	dataStorage, err := storage.NewLocalStorage(dataDir)
	if err != nil {
		logr.Fatal("failed to prepare data directory", zap.Error(err))
	}
	preflightSvc := service.NewPreflightService(db, dataStorage, checklistRepo, nil, nil, dataDir, cfg.Preflight, logr)

	var exportSvc *service.ExportService
	var jobQueue *jobs.Queue
	if cfg.Exports.Enabled {
		files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Fatal("failed to prepare exports directory", zap.Error(err))
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		reportRepo := repository.NewReportRepository(db)

		jobQueue = jobs.NewQueue("field_reports", func(ctx context.Context, job jobs.Job) error {
			return exportSvc.Process(ctx, job)
		}, jobs.QueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
			Logger:     logr,
		})
		exportSvc = service.NewExportService(reportRepo, checklistRepo, evidenceRepo, findingRepo, jobQueue, files, signer, cfg.Exports.SignedURLTTL, logr)

		jobQueue.Start(ctx)
		defer jobQueue.Stop()
		if err := exportSvc.RecoverPending(ctx); err != nil {
			logr.Warn("failed to recover unfinished export jobs", zap.Error(err))
		}
		go exportSvc.CleanupLoop(ctx, cfg.Exports.CleanupInterval)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	checklistHandler := handler.NewChecklistHandler(fieldworkSvc)
	evidenceHandler := handler.NewEvidenceHandler(captureSvc, fieldworkSvc)
	findingHandler := handler.NewFindingHandler(fieldworkSvc)
	syncHandler := handler.NewSyncHandler(fieldworkSvc, conflictSvc, queueRepo)
	preflightHandler := handler.NewPreflightHandler(preflightSvc)

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/reviews/:id/initialize", checklistHandler.Initialize)
		api.GET("/reviews/:id/checklist", checklistHandler.List)
		api.POST("/reviews/:id/close", checklistHandler.Close)
		api.GET("/reviews/:id/preflight", preflightHandler.Run)
		api.GET("/reviews/:id/findings", findingHandler.List)

		api.PATCH("/checklist-items/:id", checklistHandler.UpdateItem)
		api.GET("/checklist-items/:id/evidence", evidenceHandler.List)
		api.POST("/checklist-items/:id/evidence", evidenceHandler.Capture)

		api.GET("/evidence/:id/blob", evidenceHandler.Blob)
		api.PATCH("/evidence/:id/annotations", evidenceHandler.Annotate)
		api.DELETE("/evidence/:id", evidenceHandler.Discard)

		api.POST("/findings", findingHandler.Create)
		api.PATCH("/findings/:id", findingHandler.Update)
		api.DELETE("/findings/:id", findingHandler.Delete)

		api.POST("/sync", syncHandler.Trigger)
		api.GET("/sync/status", syncHandler.Status)
		api.GET("/sync/queue", syncHandler.Queue)
		api.POST("/sync/retry-failed", syncHandler.RetryFailed)
		api.GET("/sync/conflicts", syncHandler.Conflicts)
		api.POST("/sync/conflicts/:id/resolve", syncHandler.ResolveConflict)

		if exportSvc != nil {
			exportHandler := handler.NewExportHandler(exportSvc)
			api.POST("/field-reports", exportHandler.Create)
			api.GET("/field-reports/:id", exportHandler.Status)
			api.GET("/field-reports/download", exportHandler.Download)
		}
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Info("agent starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("forced shutdown", zap.Error(err))
	}
}
