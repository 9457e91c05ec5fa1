package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/pos/backend/internal/domain/submission"
)

// SubmissionEntryModel is the persistence model for submission queue entries.
// The partial unique index on (tenant_id, sale_id) where the status is
// non-terminal enforces the one-active-entry-per-sale invariant in the store
// itself (created by migration, not by AutoMigrate).
type SubmissionEntryModel struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;index:idx_fbr_queue_tenant_status,priority:1"`
	SaleID   uuid.UUID `gorm:"type:uuid;not null;index"`

	Status        string    `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_fbr_queue_tenant_status,priority:2;index:idx_fbr_queue_due,priority:1"`
	AttemptCount  int       `gorm:"not null;default:0"`
	MaxAttempts   int       `gorm:"not null;default:5"`
	NextAttemptAt time.Time `gorm:"not null;index:idx_fbr_queue_due,priority:2"`

	LeaseToken     *uuid.UUID `gorm:"type:uuid"`
	LeaseExpiresAt *time.Time

	LastError   string `gorm:"type:text"`
	FailureKind string `gorm:"type:varchar(20)"`

	PayloadSnapshot  []byte `gorm:"type:jsonb"`
	InvoiceRefNo     string `gorm:"type:varchar(64);not null"`
	FBRInvoiceNumber string `gorm:"type:varchar(64)"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SubmissionEntryModel) TableName() string {
	return "fbr_submission_queue"
}

// ToDomain converts the persistence model to a domain Entry
func (m *SubmissionEntryModel) ToDomain() *submission.Entry {
	return &submission.Entry{
		ID:               m.ID,
		TenantID:         m.TenantID,
		SaleID:           m.SaleID,
		State:            submission.State(m.Status),
		AttemptCount:     m.AttemptCount,
		MaxAttempts:      m.MaxAttempts,
		NextAttemptAt:    m.NextAttemptAt,
		LeaseToken:       m.LeaseToken,
		LeaseExpiresAt:   m.LeaseExpiresAt,
		LastError:        m.LastError,
		FailureKind:      submission.FailureKind(m.FailureKind),
		PayloadSnapshot:  m.PayloadSnapshot,
		InvoiceRefNo:     m.InvoiceRefNo,
		FBRInvoiceNumber: m.FBRInvoiceNumber,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Entry
func (m *SubmissionEntryModel) FromDomain(e *submission.Entry) {
	m.ID = e.ID
	m.TenantID = e.TenantID
	m.SaleID = e.SaleID
	m.Status = string(e.State)
	m.AttemptCount = e.AttemptCount
	m.MaxAttempts = e.MaxAttempts
	m.NextAttemptAt = e.NextAttemptAt
	m.LeaseToken = e.LeaseToken
	m.LeaseExpiresAt = e.LeaseExpiresAt
	m.LastError = e.LastError
	m.FailureKind = string(e.FailureKind)
	m.PayloadSnapshot = e.PayloadSnapshot
	m.InvoiceRefNo = e.InvoiceRefNo
	m.FBRInvoiceNumber = e.FBRInvoiceNumber
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// SubmissionEntryModelFromDomain creates a new persistence model from a domain Entry
func SubmissionEntryModelFromDomain(e *submission.Entry) *SubmissionEntryModel {
	m := &SubmissionEntryModel{}
	m.FromDomain(e)
	return m
}
