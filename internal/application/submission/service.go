// Package submission orchestrates the FBR invoice submission engine: the
// enqueue/validate/requeue operations behind the HTTP surface and the queue
// worker that drains due entries against the authority.
package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pos/backend/internal/domain/fbr"
	"github.com/pos/backend/internal/domain/sale"
	"github.com/pos/backend/internal/domain/shared"
	"github.com/pos/backend/internal/domain/submission"
)

// ErrAlreadySynced rejects enqueueing a sale the authority already acknowledged
var ErrAlreadySynced = shared.NewDomainError("ALREADY_SYNCED", "Sale has already been synced with FBR")

// ServiceConfig holds the tunable knobs of the enqueue path
type ServiceConfig struct {
	MaxAttempts int
}

// Service exposes the submission queue operations used by the HTTP surface
type Service struct {
	sales       sale.Repository
	queue       submission.Repository
	credentials fbr.CredentialResolver
	refData     fbr.ReferenceProvider
	authority   fbr.InvoiceService
	config      ServiceConfig
	logger      *zap.Logger
}

// NewService creates a new submission service
func NewService(
	sales sale.Repository,
	queue submission.Repository,
	credentials fbr.CredentialResolver,
	refData fbr.ReferenceProvider,
	authority fbr.InvoiceService,
	config ServiceConfig,
	logger *zap.Logger,
) *Service {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	return &Service{
		sales:       sales,
		queue:       queue,
		credentials: credentials,
		refData:     refData,
		authority:   authority,
		config:      config,
		logger:      logger,
	}
}

// EntryDTO is the queue entry representation returned to clients
type EntryDTO struct {
	ID               uuid.UUID  `json:"id"`
	SaleID           uuid.UUID  `json:"sale_id"`
	Status           string     `json:"status"`
	AttemptCount     int        `json:"attempt_count"`
	MaxAttempts      int        `json:"max_attempts"`
	NextAttemptAt    *time.Time `json:"next_attempt_at,omitempty"`
	LastError        string     `json:"last_error,omitempty"`
	FailureKind      string     `json:"failure_kind,omitempty"`
	InvoiceRefNo     string     `json:"invoice_ref_no"`
	FBRInvoiceNumber string     `json:"fbr_invoice_number,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// QueueListResult is a paginated queue listing
type QueueListResult struct {
	Entries    []EntryDTO `json:"entries"`
	Total      int64      `json:"total"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
	TotalPages int        `json:"total_pages"`
}

// QueueSummaryDTO is the per-state entry count for a tenant
type QueueSummaryDTO struct {
	Pending    int64 `json:"pending"`
	InFlight   int64 `json:"in_flight"`
	Retrying   int64 `json:"retrying"`
	Synced     int64 `json:"synced"`
	DeadLetter int64 `json:"dead_letter"`
	Total      int64 `json:"total"`
}

// Enqueue freezes the sale's wire payload and creates a pending queue entry.
//
// The transform runs here, once per attempt-chain: retries resubmit the
// frozen snapshot, never a regenerated one. A sale that fails local
// validation gets a dead-lettered entry immediately and the full violation
// list comes back as *fbr.ValidationErrors.
func (s *Service) Enqueue(ctx context.Context, tenantID, saleID uuid.UUID) (*EntryDTO, error) {
	sl, err := s.sales.FindByID(ctx, tenantID, saleID)
	if err != nil {
		return nil, err
	}
	if sl.FBRStatus == sale.FBRStatusSynced {
		return nil, ErrAlreadySynced
	}

	cred, err := s.credentials.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	ref, err := s.refData.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := fbr.Transform(sl, cred.Seller, ref)
	if err != nil {
		var verrs *fbr.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, s.deadLetterInvalid(ctx, sl, verrs)
		}
		return nil, err
	}

	snapshot, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to freeze payload snapshot: %w", err)
	}

	entry := submission.NewEntry(tenantID, saleID, payload.InvoiceRefNo, snapshot, s.config.MaxAttempts)
	if err := s.queue.Create(ctx, entry); err != nil {
		return nil, err
	}

	sl.MarkQueued()
	if err := s.sales.UpdateFBRState(ctx, sl); err != nil {
		s.logger.Error("failed to mark sale queued",
			zap.String("sale_id", saleID.String()),
			zap.Error(err),
		)
	}

	s.logger.Info("sale enqueued for FBR submission",
		zap.String("tenant_id", tenantID.String()),
		zap.String("sale_id", saleID.String()),
		zap.String("invoice_ref_no", entry.InvoiceRefNo),
	)
	dto := toEntryDTO(entry)
	return &dto, nil
}

// deadLetterInvalid records a dead-on-arrival chain for a sale that failed
// local validation, then returns the violations to the caller
func (s *Service) deadLetterInvalid(ctx context.Context, sl *sale.Sale, verrs *fbr.ValidationErrors) error {
	entry := submission.NewDeadLetteredEntry(sl.TenantID, sl.ID, fbr.InvoiceRefNo(sl), verrs.Error(), s.config.MaxAttempts)
	if err := s.queue.Create(ctx, entry); err != nil {
		// An active chain already exists; the violations still stand
		if !errors.Is(err, shared.ErrAlreadyQueued) {
			return err
		}
		return verrs
	}

	sl.MarkFailed(verrs.Error())
	if err := s.sales.UpdateFBRState(ctx, sl); err != nil {
		s.logger.Error("failed to mark sale failed",
			zap.String("sale_id", sl.ID.String()),
			zap.Error(err),
		)
	}
	return verrs
}

// Validate transforms the sale without touching the queue, returning every
// violation found. When remote is set and the local transform passes, the
// authority's dry-run endpoint is consulted as well.
func (s *Service) Validate(ctx context.Context, tenantID, saleID uuid.UUID, remote bool) ([]fbr.Violation, error) {
	sl, err := s.sales.FindByID(ctx, tenantID, saleID)
	if err != nil {
		return nil, err
	}
	cred, err := s.credentials.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	ref, err := s.refData.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := fbr.Transform(sl, cred.Seller, ref)
	if err != nil {
		var verrs *fbr.ValidationErrors
		if errors.As(err, &verrs) {
			return verrs.Violations, nil
		}
		return nil, err
	}

	if !remote {
		return nil, nil
	}
	return s.authority.ValidateInvoice(ctx, cred, payload)
}

// Requeue starts a fresh attempt-chain for a dead-lettered entry. The payload
// snapshot is regenerated: a new chain gets a new freeze point, picking up
// whatever reference data or credential fixes prompted the requeue.
func (s *Service) Requeue(ctx context.Context, tenantID, entryID uuid.UUID) (*EntryDTO, error) {
	prev, err := s.queue.FindByID(ctx, tenantID, entryID)
	if err != nil {
		return nil, err
	}
	if prev.State != submission.StateDeadLetter {
		return nil, shared.NewDomainError("NOT_DEAD_LETTERED", "Only dead-lettered entries can be requeued")
	}
	return s.Enqueue(ctx, tenantID, prev.SaleID)
}

// ListQueue returns a tenant's queue entries in one state, newest first
func (s *Service) ListQueue(ctx context.Context, tenantID uuid.UUID, state submission.State, page, pageSize int) (*QueueListResult, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	entries, total, err := s.queue.ListByState(ctx, tenantID, state, page, pageSize)
	if err != nil {
		return nil, err
	}

	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &QueueListResult{
		Entries:    dtos,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// Summary returns the tenant's queue counts by state
func (s *Service) Summary(ctx context.Context, tenantID uuid.UUID) (*QueueSummaryDTO, error) {
	counts, err := s.queue.CountByState(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	dto := &QueueSummaryDTO{
		Pending:    counts[submission.StatePending],
		InFlight:   counts[submission.StateInFlight],
		Retrying:   counts[submission.StateRetrying],
		Synced:     counts[submission.StateSynced],
		DeadLetter: counts[submission.StateDeadLetter],
	}
	dto.Total = dto.Pending + dto.InFlight + dto.Retrying + dto.Synced + dto.DeadLetter
	return dto, nil
}

func toEntryDTO(e *submission.Entry) EntryDTO {
	dto := EntryDTO{
		ID:               e.ID,
		SaleID:           e.SaleID,
		Status:           string(e.State),
		AttemptCount:     e.AttemptCount,
		MaxAttempts:      e.MaxAttempts,
		LastError:        e.LastError,
		FailureKind:      string(e.FailureKind),
		InvoiceRefNo:     e.InvoiceRefNo,
		FBRInvoiceNumber: e.FBRInvoiceNumber,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
	if !e.IsTerminal() {
		next := e.NextAttemptAt
		dto.NextAttemptAt = &next
	}
	return dto
}
