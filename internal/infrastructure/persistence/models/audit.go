package models

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionAuditModel is one immutable audit row per submission outcome.
// Written by the worker through the notifier port; never updated.
type SubmissionAuditModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID     uuid.UUID `gorm:"type:uuid;not null;index:idx_fbr_audit_tenant_time,priority:1"`
	SaleID       uuid.UUID `gorm:"type:uuid;not null;index"`
	EntryID      uuid.UUID `gorm:"type:uuid;not null;index"`
	InvoiceRefNo string    `gorm:"type:varchar(64);not null"`
	Outcome      string    `gorm:"type:varchar(32);not null"`
	AttemptCount int       `gorm:"not null"`
	Detail       string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"not null;index:idx_fbr_audit_tenant_time,priority:2"`
}

// TableName returns the table name for GORM
func (SubmissionAuditModel) TableName() string {
	return "fbr_audit_logs"
}
