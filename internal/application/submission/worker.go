package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pos/backend/internal/domain/fbr"
	"github.com/pos/backend/internal/domain/sale"
	"github.com/pos/backend/internal/domain/shared"
	"github.com/pos/backend/internal/domain/submission"
)

// WorkerConfig holds configuration for the queue worker
type WorkerConfig struct {
	BatchSize     int
	LeaseDuration time.Duration
	SubmitTimeout time.Duration
	RunDeadline   time.Duration
	PollInterval  time.Duration
	Backoff       submission.BackoffPolicy
}

// DefaultWorkerConfig returns default configuration
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:     25,
		LeaseDuration: 5 * time.Minute,
		SubmitTimeout: 30 * time.Second,
		RunDeadline:   10 * time.Minute,
		PollInterval:  2 * time.Minute,
	}
}

// RunSummary is the outcome of one worker pass over the queue.
// ConfigErrors counts entries released over tenant misconfiguration;
// DeadlineReleased counts claims handed back untouched because the run
// deadline expired before they were reached.
type RunSummary struct {
	Claimed          int           `json:"claimed"`
	Synced           int           `json:"synced"`
	Retrying         int           `json:"retrying"`
	DeadLettered     int           `json:"dead_lettered"`
	ConfigErrors     int           `json:"config_errors"`
	DeadlineReleased int           `json:"deadline_released"`
	InfraErrors      int           `json:"infra_errors"`
	Duration         time.Duration `json:"duration"`
}

// Worker drains due queue entries against the authority. Multiple workers,
// or a worker overlapping an external cron trigger, are safe: ClaimDue hands
// each entry to exactly one claim token.
type Worker struct {
	queue       submission.Repository
	sales       sale.Repository
	credentials fbr.CredentialResolver
	authority   fbr.InvoiceService
	notifier    submission.Notifier
	config      WorkerConfig
	logger      *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a new queue worker
func NewWorker(
	queue submission.Repository,
	sales sale.Repository,
	credentials fbr.CredentialResolver,
	authority fbr.InvoiceService,
	notifier submission.Notifier,
	config WorkerConfig,
	logger *zap.Logger,
) *Worker {
	def := DefaultWorkerConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.LeaseDuration <= 0 {
		config.LeaseDuration = def.LeaseDuration
	}
	if config.SubmitTimeout <= 0 {
		config.SubmitTimeout = def.SubmitTimeout
	}
	if config.RunDeadline <= 0 {
		config.RunDeadline = def.RunDeadline
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	return &Worker{
		queue:       queue,
		sales:       sales,
		credentials: credentials,
		authority:   authority,
		notifier:    notifier,
		config:      config,
		logger:      logger,
	}
}

// RunOnce claims one batch of due entries and processes each to a terminal
// outcome for this pass. Per-entry failures never abort the batch; the
// returned error is reserved for infrastructure failures (the claim query
// itself), which drive the trigger binary's exit code.
func (w *Worker) RunOnce(ctx context.Context) (*RunSummary, error) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, w.config.RunDeadline)
	defer cancel()

	summary := &RunSummary{}
	token := uuid.New()

	entries, err := w.queue.ClaimDue(ctx, w.config.BatchSize, token, w.config.LeaseDuration)
	if err != nil {
		summary.InfraErrors++
		summary.Duration = time.Since(started)
		return summary, fmt.Errorf("failed to claim due entries: %w", err)
	}
	summary.Claimed = len(entries)

	for _, entry := range entries {
		if ctx.Err() != nil {
			// Run deadline reached: hand unprocessed claims back untouched
			if w.releaseEntry(context.WithoutCancel(ctx), entry, token, "run deadline reached", summary) {
				summary.DeadlineReleased++
			}
			continue
		}
		w.processEntry(ctx, entry, token, summary)
	}

	summary.Duration = time.Since(started)
	w.logger.Info("submission queue pass complete",
		zap.Int("claimed", summary.Claimed),
		zap.Int("synced", summary.Synced),
		zap.Int("retrying", summary.Retrying),
		zap.Int("dead_lettered", summary.DeadLettered),
		zap.Int("config_errors", summary.ConfigErrors),
		zap.Int("deadline_released", summary.DeadlineReleased),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// processEntry resolves the credential, submits the frozen payload, and
// classifies the outcome into exactly one transition.
func (w *Worker) processEntry(ctx context.Context, entry *submission.Entry, token uuid.UUID, summary *RunSummary) {
	cred, err := w.credentials.Resolve(ctx, entry.TenantID)
	if err != nil {
		if errors.Is(err, shared.ErrFBRNotConfigured) {
			if w.releaseEntry(ctx, entry, token, "FBR credentials not configured", summary) {
				summary.ConfigErrors++
			}
			return
		}
		summary.InfraErrors++
		w.logger.Error("failed to resolve tenant credential",
			zap.String("entry_id", entry.ID.String()),
			zap.Error(err),
		)
		return
	}

	var payload fbr.WirePayload
	if err := json.Unmarshal(entry.PayloadSnapshot, &payload); err != nil {
		// A snapshot that no longer parses can never be submitted
		w.resolveEntry(ctx, entry, token, summary, func() error {
			return entry.MarkPermanentFailure("payload snapshot is corrupt: " + err.Error())
		})
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, w.config.SubmitTimeout)
	ack, err := w.authority.SubmitInvoice(callCtx, cred, &payload)
	cancel()

	switch {
	case err == nil:
		w.resolveEntry(ctx, entry, token, summary, func() error {
			return entry.MarkSynced(ack.InvoiceNumber)
		})

	case errors.Is(err, shared.ErrFBRNotConfigured):
		// The authority refused the token mid-flight; a tenant setup
		// problem, not a submission failure
		if w.releaseEntry(ctx, entry, token, err.Error(), summary) {
			summary.ConfigErrors++
		}

	default:
		var perm *fbr.PermanentError
		if errors.As(err, &perm) {
			w.resolveEntry(ctx, entry, token, summary, func() error {
				return entry.MarkPermanentFailure(perm.Error())
			})
			return
		}
		w.resolveEntry(ctx, entry, token, summary, func() error {
			return entry.MarkTransientFailure(err.Error(), w.config.Backoff)
		})
	}
}

// resolveEntry applies a transition, persists it under the claim token, and
// propagates the outcome to the sale, the notifier, and the summary
func (w *Worker) resolveEntry(ctx context.Context, entry *submission.Entry, token uuid.UUID, summary *RunSummary, transition func() error) {
	if err := transition(); err != nil {
		summary.InfraErrors++
		w.logger.Error("illegal queue entry transition",
			zap.String("entry_id", entry.ID.String()),
			zap.String("state", string(entry.State)),
			zap.Error(err),
		)
		return
	}

	if err := w.queue.Update(ctx, entry, token); err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			// Lease expired and another worker took over; it owns the outcome now
			w.logger.Warn("lost claim while resolving entry",
				zap.String("entry_id", entry.ID.String()),
			)
			return
		}
		summary.InfraErrors++
		w.logger.Error("failed to persist entry outcome",
			zap.String("entry_id", entry.ID.String()),
			zap.Error(err),
		)
		return
	}

	var outcome submission.Outcome
	switch entry.State {
	case submission.StateSynced:
		summary.Synced++
		outcome = submission.OutcomeSynced
	case submission.StateRetrying:
		summary.Retrying++
		outcome = submission.OutcomeRetrying
	case submission.StateDeadLetter:
		summary.DeadLettered++
		outcome = submission.OutcomeDeadLettered
	}

	w.propagateToSale(ctx, entry)
	w.notify(ctx, entry, outcome, entry.LastError)
}

// releaseEntry hands a claimed entry back without consuming an attempt,
// pushing its next due time out by one base backoff interval. Reports whether
// the release was persisted; the caller decides which summary bucket it
// lands in. A claim lost to another worker counts nowhere: that worker owns
// the outcome now.
func (w *Worker) releaseEntry(ctx context.Context, entry *submission.Entry, token uuid.UUID, reason string, summary *RunSummary) bool {
	base := w.config.Backoff.BaseDelay
	if base <= 0 {
		base = submission.DefaultBaseDelay
	}
	retryAt := time.Now().Add(base)
	if err := entry.ReleaseLease(reason, retryAt); err != nil {
		summary.InfraErrors++
		w.logger.Error("failed to release entry lease",
			zap.String("entry_id", entry.ID.String()),
			zap.Error(err),
		)
		return false
	}
	if err := w.queue.Update(ctx, entry, token); err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			w.logger.Warn("lost claim while releasing entry",
				zap.String("entry_id", entry.ID.String()),
			)
			return false
		}
		summary.InfraErrors++
		w.logger.Error("failed to persist lease release",
			zap.String("entry_id", entry.ID.String()),
			zap.Error(err),
		)
		return false
	}
	w.notify(ctx, entry, submission.OutcomeReleased, reason)
	return true
}

// propagateToSale mirrors the entry's state onto the sale's fbr_* columns
func (w *Worker) propagateToSale(ctx context.Context, entry *submission.Entry) {
	sl, err := w.sales.FindByID(ctx, entry.TenantID, entry.SaleID)
	if err != nil {
		w.logger.Error("failed to load sale for state propagation",
			zap.String("sale_id", entry.SaleID.String()),
			zap.Error(err),
		)
		return
	}

	switch entry.State {
	case submission.StateSynced:
		sl.MarkSynced(entry.FBRInvoiceNumber)
	case submission.StateDeadLetter:
		sl.MarkFailed(entry.LastError)
	case submission.StateRetrying:
		sl.MarkSubmitted(entry.LastError)
	default:
		return
	}

	if err := w.sales.UpdateFBRState(ctx, sl); err != nil {
		w.logger.Error("failed to propagate entry state to sale",
			zap.String("sale_id", entry.SaleID.String()),
			zap.Error(err),
		)
	}
}

// notify reports the outcome; notifier failures are logged, never fatal
func (w *Worker) notify(ctx context.Context, entry *submission.Entry, outcome submission.Outcome, detail string) {
	if w.notifier == nil || outcome == "" {
		return
	}
	if err := w.notifier.NotifyOutcome(ctx, entry, outcome, detail); err != nil {
		w.logger.Warn("submission notifier failed",
			zap.String("entry_id", entry.ID.String()),
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
	}
}

// Start runs the worker on a ticker until Stop is called. Used by the API
// server when the embedded worker is enabled; an external scheduler hitting
// the trigger binary at the same time is safe.
func (w *Worker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.config.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := w.RunOnce(ctx); err != nil {
					w.logger.Error("submission queue pass failed", zap.Error(err))
				}
			}
		}
	}()

	w.logger.Info("submission worker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize),
	)
}

// Stop gracefully stops the ticker loop
func (w *Worker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("submission worker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
