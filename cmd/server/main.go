package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appsubmission "github.com/pos/backend/internal/application/submission"
	"github.com/pos/backend/internal/domain/submission"
	"github.com/pos/backend/internal/infrastructure/auth"
	"github.com/pos/backend/internal/infrastructure/config"
	"github.com/pos/backend/internal/infrastructure/fbrclient"
	"github.com/pos/backend/internal/infrastructure/logger"
	"github.com/pos/backend/internal/infrastructure/persistence"
	"github.com/pos/backend/internal/infrastructure/refdata"
	"github.com/pos/backend/internal/infrastructure/telemetry"
	"github.com/pos/backend/internal/infrastructure/vault"
	"github.com/pos/backend/internal/interfaces/http/handler"
	"github.com/pos/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting POS backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Tracing must be installed before the database so the gorm plugin picks
	// up the global provider
	tracer, err := telemetry.Setup(context.Background(), cfg.Telemetry, cfg.App.Name, log)
	if err != nil {
		log.Fatal("Failed to set up tracing", zap.Error(err))
	}
	defer func() {
		if err := tracer.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	// Database
	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Repositories
	saleRepo := persistence.NewGormSaleRepository(db.DB)
	queueRepo := persistence.NewGormSubmissionQueueRepository(db.DB)
	credentialRepo := persistence.NewGormCredentialRepository(db.DB)
	refDataRepo := persistence.NewGormRefDataRepository(db.DB)
	auditRepo := persistence.NewGormAuditLogRepository(db.DB)

	// Credential vault: the master key is loaded once and never logged
	masterKey, err := vault.MasterKey(cfg.Vault)
	if err != nil {
		log.Fatal("Failed to load vault master key", zap.Error(err))
	}
	credentialVault, err := vault.New(credentialRepo, masterKey, log)
	if err != nil {
		log.Fatal("Failed to initialise credential vault", zap.Error(err))
	}

	// Reference data cache, optionally backed by redis
	refDataOpts := []refdata.Option{refdata.WithLogger(log)}
	if cfg.RefData.RedisEnabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing redis client", zap.Error(err))
			}
		}()
		refDataOpts = append(refDataOpts, refdata.WithRedis(redisClient, cfg.RefData.RedisTTL))
	}
	refDataCache := refdata.New(refDataRepo, cfg.RefData.MemoryTTL, refDataOpts...)

	// FBR gateway client
	fbrClient := fbrclient.New(cfg.FBR.SubmitTimeout, log)

	// Application services
	backoff := submission.BackoffPolicy{
		BaseDelay: cfg.FBR.BaseBackoff,
		MaxDelay:  cfg.FBR.MaxBackoff,
		Jitter:    cfg.FBR.BackoffJitter,
	}
	submissionService := appsubmission.NewService(
		saleRepo, queueRepo, credentialVault, refDataCache, fbrClient,
		appsubmission.ServiceConfig{MaxAttempts: cfg.FBR.MaxAttempts}, log,
	)
	worker := appsubmission.NewWorker(
		queueRepo, saleRepo, credentialVault, fbrClient, auditRepo,
		appsubmission.WorkerConfig{
			BatchSize:     cfg.FBR.BatchSize,
			LeaseDuration: cfg.FBR.LeaseDuration,
			SubmitTimeout: cfg.FBR.SubmitTimeout,
			RunDeadline:   cfg.FBR.RunDeadline,
			PollInterval:  cfg.FBR.WorkerInterval,
			Backoff:       backoff,
		}, log,
	)

	// Embedded ticker worker; the external cron trigger stays safe alongside it
	if cfg.FBR.WorkerEnabled {
		worker.Start(context.Background())
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := worker.Stop(stopCtx); err != nil {
				log.Error("Error stopping submission worker", zap.Error(err))
			}
		}()
	}

	// HTTP surface
	jwtService := auth.NewJWTService(cfg.JWT)
	fbrHandler := handler.NewFBRHandler(submissionService, worker, auditRepo, log)
	systemHandler := handler.NewSystemHandler(db)

	ginMode := gin.ReleaseMode
	if cfg.App.Env != "production" {
		ginMode = gin.DebugMode
	}
	engine := router.New(router.Dependencies{
		Logger:     log,
		JWTService: jwtService,
		FBR:        fbrHandler,
		System:     systemHandler,
		GinMode:    ginMode,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
