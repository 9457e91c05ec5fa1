package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pos/backend/internal/domain/shared"
	"github.com/pos/backend/internal/domain/submission"
	"github.com/pos/backend/internal/infrastructure/persistence/models"
)

// activeStates are the non-terminal queue states. At most one entry per sale
// may be in any of them.
var activeStates = []string{
	string(submission.StatePending),
	string(submission.StateInFlight),
	string(submission.StateRetrying),
}

// GormSubmissionQueueRepository implements submission.Repository using GORM.
// Claiming is a per-row conditional UPDATE so that overlapping workers, or an
// in-process ticker racing an external cron trigger, never share an entry.
type GormSubmissionQueueRepository struct {
	db *gorm.DB
}

// NewGormSubmissionQueueRepository creates a new GORM-based queue repository
func NewGormSubmissionQueueRepository(db *gorm.DB) *GormSubmissionQueueRepository {
	return &GormSubmissionQueueRepository{db: db}
}

// Create persists a new entry. The partial unique index over active entries
// enforces one chain per sale at the store level, so a duplicate enqueue,
// including one racing a concurrent insert, surfaces as ErrAlreadyQueued.
func (r *GormSubmissionQueueRepository) Create(ctx context.Context, entry *submission.Entry) error {
	err := r.db.WithContext(ctx).Create(models.SubmissionEntryModelFromDomain(entry)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.ErrAlreadyQueued
	}
	return err
}

// Update persists a claimed entry's outcome, guarded by the claim token
func (r *GormSubmissionQueueRepository) Update(ctx context.Context, entry *submission.Entry, token uuid.UUID) error {
	model := models.SubmissionEntryModelFromDomain(entry)
	result := r.db.WithContext(ctx).
		Model(&models.SubmissionEntryModel{}).
		Where("id = ? AND lease_token = ?", entry.ID, token).
		Select("status", "attempt_count", "next_attempt_at", "lease_token",
			"lease_expires_at", "last_error", "failure_kind", "fbr_invoice_number",
			"updated_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// The lease expired and someone else claimed (or resolved) the entry
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// FindByID retrieves an entry scoped to a tenant
func (r *GormSubmissionQueueRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*submission.Entry, error) {
	var model models.SubmissionEntryModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActiveBySale retrieves the non-terminal entry for a sale
func (r *GormSubmissionQueueRepository) FindActiveBySale(ctx context.Context, tenantID, saleID uuid.UUID) (*submission.Entry, error) {
	var model models.SubmissionEntryModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND sale_id = ? AND status IN ?", tenantID, saleID, activeStates).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindLatestBySale retrieves the most recent entry for a sale in any state
func (r *GormSubmissionQueueRepository) FindLatestBySale(ctx context.Context, tenantID, saleID uuid.UUID) (*submission.Entry, error) {
	var model models.SubmissionEntryModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND sale_id = ?", tenantID, saleID).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ClaimDue atomically claims up to limit due entries for one worker.
// Candidates are selected first, then each is claimed with a single
// conditional UPDATE; RowsAffected decides who won a contested row.
func (r *GormSubmissionQueueRepository) ClaimDue(ctx context.Context, limit int, token uuid.UUID, leaseTTL time.Duration) ([]*submission.Entry, error) {
	now := time.Now()

	var candidates []models.SubmissionEntryModel
	if err := r.db.WithContext(ctx).
		Where("(status IN ? AND next_attempt_at <= ?) OR (status = ? AND lease_expires_at <= ?)",
			[]string{string(submission.StatePending), string(submission.StateRetrying)}, now,
			string(submission.StateInFlight), now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&candidates).Error; err != nil {
		return nil, err
	}

	var claimed []*submission.Entry
	for _, candidate := range candidates {
		expiry := now.Add(leaseTTL)
		result := r.db.WithContext(ctx).
			Model(&models.SubmissionEntryModel{}).
			Where("id = ? AND ((status IN ? AND next_attempt_at <= ?) OR (status = ? AND lease_expires_at <= ?))",
				candidate.ID,
				[]string{string(submission.StatePending), string(submission.StateRetrying)}, now,
				string(submission.StateInFlight), now).
			Updates(map[string]interface{}{
				"status":           string(submission.StateInFlight),
				"lease_token":      token,
				"lease_expires_at": expiry,
				"updated_at":       now,
			})
		if result.Error != nil {
			return claimed, result.Error
		}
		if result.RowsAffected == 0 {
			// Another claimer won this row between the select and the update
			continue
		}

		// Reload so attempt counts reflect any transition that happened
		// after the candidate select
		var fresh models.SubmissionEntryModel
		if err := r.db.WithContext(ctx).
			Where("id = ? AND lease_token = ?", candidate.ID, token).
			First(&fresh).Error; err != nil {
			return claimed, err
		}
		claimed = append(claimed, fresh.ToDomain())
	}
	return claimed, nil
}

// ListByState returns a tenant's entries in the given state, newest first
func (r *GormSubmissionQueueRepository) ListByState(ctx context.Context, tenantID uuid.UUID, state submission.State, page, pageSize int) ([]*submission.Entry, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.SubmissionEntryModel{}).
		Where("tenant_id = ? AND status = ?", tenantID, string(state))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.SubmissionEntryModel
	offset := (page - 1) * pageSize
	if err := query.
		Order("updated_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	entries := make([]*submission.Entry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries, total, nil
}

// CountByState returns entry counts per state for a tenant
func (r *GormSubmissionQueueRepository) CountByState(ctx context.Context, tenantID uuid.UUID) (map[submission.State]int64, error) {
	type stateCount struct {
		Status string
		Count  int64
	}

	var results []stateCount
	if err := r.db.WithContext(ctx).
		Model(&models.SubmissionEntryModel{}).
		Where("tenant_id = ?", tenantID).
		Select("status, count(*) as count").
		Group("status").
		Scan(&results).Error; err != nil {
		return nil, err
	}

	counts := make(map[submission.State]int64)
	for _, res := range results {
		counts[submission.State(res.Status)] = res.Count
	}
	return counts, nil
}

var _ submission.Repository = (*GormSubmissionQueueRepository)(nil)
