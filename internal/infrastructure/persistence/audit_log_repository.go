package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pos/backend/internal/domain/submission"
	"github.com/pos/backend/internal/infrastructure/persistence/models"
)

// GormAuditLogRepository records one immutable audit row per submission
// outcome, implementing submission.Notifier.
type GormAuditLogRepository struct {
	db *gorm.DB
}

// NewGormAuditLogRepository creates a new GormAuditLogRepository
func NewGormAuditLogRepository(db *gorm.DB) *GormAuditLogRepository {
	return &GormAuditLogRepository{db: db}
}

// NotifyOutcome appends an audit row for the entry's latest outcome
func (r *GormAuditLogRepository) NotifyOutcome(ctx context.Context, entry *submission.Entry, outcome submission.Outcome, detail string) error {
	row := &models.SubmissionAuditModel{
		ID:           uuid.New(),
		TenantID:     entry.TenantID,
		SaleID:       entry.SaleID,
		EntryID:      entry.ID,
		InvoiceRefNo: entry.InvoiceRefNo,
		Outcome:      string(outcome),
		AttemptCount: entry.AttemptCount,
		Detail:       detail,
		CreatedAt:    time.Now(),
	}
	return r.db.WithContext(ctx).Create(row).Error
}

// ListBySale returns a sale's audit trail, oldest first
func (r *GormAuditLogRepository) ListBySale(ctx context.Context, tenantID, saleID uuid.UUID) ([]submission.AuditRecord, error) {
	var rows []models.SubmissionAuditModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND sale_id = ?", tenantID, saleID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	records := make([]submission.AuditRecord, len(rows))
	for i, row := range rows {
		records[i] = submission.AuditRecord{
			ID:           row.ID,
			SaleID:       row.SaleID,
			EntryID:      row.EntryID,
			InvoiceRefNo: row.InvoiceRefNo,
			Outcome:      submission.Outcome(row.Outcome),
			AttemptCount: row.AttemptCount,
			Detail:       row.Detail,
			CreatedAt:    row.CreatedAt,
		}
	}
	return records, nil
}

var _ submission.AuditLog = (*GormAuditLogRepository)(nil)
