package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	appsubmission "github.com/pos/backend/internal/application/submission"
	"github.com/pos/backend/internal/domain/submission"
	"github.com/pos/backend/internal/infrastructure/config"
	"github.com/pos/backend/internal/infrastructure/fbrclient"
	"github.com/pos/backend/internal/infrastructure/logger"
	"github.com/pos/backend/internal/infrastructure/persistence"
	"github.com/pos/backend/internal/infrastructure/vault"
)

// fbrworker runs exactly one pass over the submission queue and exits.
// Intended for an external scheduler (cron, systemd timer, Kubernetes
// CronJob); overlapping invocations and the API server's embedded worker
// are safe because every entry is handed to exactly one claim token.
//
// Exit codes: 0 on a completed pass (individual entry failures included),
// 1 on an infrastructure failure that aborted the pass.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize logger:", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	summary, err := runOnce(cfg, log)
	if summary != nil {
		if out, jsonErr := json.Marshal(summary); jsonErr == nil {
			fmt.Println(string(out))
		}
	}
	if err != nil {
		log.Error("Queue pass aborted", zap.Error(err))
		os.Exit(1)
	}
}

func runOnce(cfg *config.Config, log *zap.Logger) (*appsubmission.RunSummary, error) {
	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	saleRepo := persistence.NewGormSaleRepository(db.DB)
	queueRepo := persistence.NewGormSubmissionQueueRepository(db.DB)
	credentialRepo := persistence.NewGormCredentialRepository(db.DB)
	auditRepo := persistence.NewGormAuditLogRepository(db.DB)

	masterKey, err := vault.MasterKey(cfg.Vault)
	if err != nil {
		return nil, fmt.Errorf("failed to load vault master key: %w", err)
	}
	credentialVault, err := vault.New(credentialRepo, masterKey, log)
	if err != nil {
		return nil, err
	}

	worker := appsubmission.NewWorker(
		queueRepo, saleRepo, credentialVault, fbrclient.New(cfg.FBR.SubmitTimeout, log), auditRepo,
		appsubmission.WorkerConfig{
			BatchSize:     cfg.FBR.BatchSize,
			LeaseDuration: cfg.FBR.LeaseDuration,
			SubmitTimeout: cfg.FBR.SubmitTimeout,
			RunDeadline:   cfg.FBR.RunDeadline,
			Backoff: submission.BackoffPolicy{
				BaseDelay: cfg.FBR.BaseBackoff,
				MaxDelay:  cfg.FBR.MaxBackoff,
				Jitter:    cfg.FBR.BackoffJitter,
			},
		}, log,
	)

	return worker.RunOnce(context.Background())
}
