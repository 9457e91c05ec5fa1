package submission

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the persistence port for the submission queue. The
// backing store is the only mutable shared resource of the engine and all
// mutation goes through these operations.
type Repository interface {
	// Create persists a new entry. Fails with shared.ErrAlreadyQueued when an
	// active (non-terminal) entry already exists for the same sale.
	Create(ctx context.Context, entry *Entry) error

	// Update persists the outcome of a claimed entry. The write is conditional
	// on the row still holding the given claim token; losing it to lease
	// expiry and re-claim surfaces as shared.ErrConcurrencyConflict.
	Update(ctx context.Context, entry *Entry, token uuid.UUID) error

	// FindByID loads an entry scoped to a tenant
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Entry, error)

	// FindActiveBySale returns the non-terminal entry for a sale, or
	// shared.ErrNotFound when none exists
	FindActiveBySale(ctx context.Context, tenantID, saleID uuid.UUID) (*Entry, error)

	// FindLatestBySale returns the most recent entry for a sale regardless of
	// state, or shared.ErrNotFound
	FindLatestBySale(ctx context.Context, tenantID, saleID uuid.UUID) (*Entry, error)

	// ClaimDue atomically claims up to limit due entries for the worker
	// identified by token, marking them in_flight with a lease of leaseTTL.
	// Due means: pending/retrying with next_attempt_at elapsed, or in_flight
	// with an expired lease (crash recovery). Two concurrent claimers never
	// receive the same entry.
	ClaimDue(ctx context.Context, limit int, token uuid.UUID, leaseTTL time.Duration) ([]*Entry, error)

	// ListByState returns entries for a tenant in the given state, newest first
	ListByState(ctx context.Context, tenantID uuid.UUID, state State, page, pageSize int) ([]*Entry, int64, error)

	// CountByState returns entry counts per state for a tenant
	CountByState(ctx context.Context, tenantID uuid.UUID) (map[State]int64, error)
}
