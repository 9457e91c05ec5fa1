package submission

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Outcome labels what happened to an entry during one worker pass
type Outcome string

const (
	OutcomeSynced       Outcome = "SYNCED"
	OutcomeRetrying     Outcome = "RETRYING"
	OutcomeDeadLettered Outcome = "DEAD_LETTERED"
	OutcomeReleased     Outcome = "RELEASED"
)

// Notifier receives submission outcomes for audit and downstream reactions.
// Implementations must not fail the submission: the worker logs notifier
// errors and moves on.
type Notifier interface {
	NotifyOutcome(ctx context.Context, entry *Entry, outcome Outcome, detail string) error
}

// AuditRecord is one immutable line of a sale's submission history
type AuditRecord struct {
	ID           uuid.UUID
	SaleID       uuid.UUID
	EntryID      uuid.UUID
	InvoiceRefNo string
	Outcome      Outcome
	AttemptCount int
	Detail       string
	CreatedAt    time.Time
}

// AuditLog extends Notifier with the read side of the audit trail
type AuditLog interface {
	Notifier
	ListBySale(ctx context.Context, tenantID, saleID uuid.UUID) ([]AuditRecord, error)
}
