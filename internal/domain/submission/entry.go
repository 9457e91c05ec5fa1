package submission

import (
	"time"

	"github.com/google/uuid"

	"github.com/pos/backend/internal/domain/shared"
)

// State is the lifecycle state of a queue entry.
//
//	pending --claim--> in_flight --success--> synced (terminal)
//	in_flight --transient failure, attempts<max--> retrying --due--> in_flight
//	in_flight --permanent failure OR attempts>=max--> dead_letter (terminal)
//	in_flight --lease expiry, no result--> claimable again (crash recovery)
type State string

const (
	StatePending    State = "PENDING"
	StateInFlight   State = "IN_FLIGHT"
	StateRetrying   State = "RETRYING"
	StateSynced     State = "SYNCED"
	StateDeadLetter State = "DEAD_LETTER"
)

// IsValid returns true if the state is a known value
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateInFlight, StateRetrying, StateSynced, StateDeadLetter:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for states that are immutable afterwards
func (s State) IsTerminal() bool {
	return s == StateSynced || s == StateDeadLetter
}

// FailureKind distinguishes why an entry dead-lettered, so an operator can
// tell "the payload was judged invalid" from "retries ran out against a
// healthy payload" (an escalation candidate).
type FailureKind string

const (
	FailureNone       FailureKind = ""
	FailureValidation FailureKind = "VALIDATION"
	FailureExhausted  FailureKind = "EXHAUSTED"
)

// Entry is one submission attempt-chain for a sale. At most one non-terminal
// entry may exist per sale at any time; transitions are driven only through
// the methods below, which reject anything the state machine does not allow.
type Entry struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	SaleID   uuid.UUID

	State        State
	AttemptCount int
	MaxAttempts  int
	// NextAttemptAt is when the entry becomes due for (re)claiming
	NextAttemptAt time.Time

	// LeaseToken and LeaseExpiresAt are set while a worker holds the entry.
	// An expired lease makes the entry claimable again without a result.
	LeaseToken     *uuid.UUID
	LeaseExpiresAt *time.Time

	LastError   string
	FailureKind FailureKind

	// PayloadSnapshot is the wire payload frozen at enqueue time. It is never
	// regenerated within an attempt-chain so every retry resubmits
	// byte-identical data.
	PayloadSnapshot []byte
	InvoiceRefNo    string

	// FBRInvoiceNumber is populated on the synced transition
	FBRInvoiceNumber string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewEntry creates a pending queue entry due immediately
func NewEntry(tenantID, saleID uuid.UUID, invoiceRefNo string, payload []byte, maxAttempts int) *Entry {
	now := time.Now()
	return &Entry{
		ID:              uuid.New(),
		TenantID:        tenantID,
		SaleID:          saleID,
		State:           StatePending,
		AttemptCount:    0,
		MaxAttempts:     maxAttempts,
		NextAttemptAt:   now,
		PayloadSnapshot: payload,
		InvoiceRefNo:    invoiceRefNo,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// NewDeadLetteredEntry creates an entry that is dead on arrival because the
// sale failed local validation at enqueue time. No attempt is ever made.
func NewDeadLetteredEntry(tenantID, saleID uuid.UUID, invoiceRefNo, lastError string, maxAttempts int) *Entry {
	e := NewEntry(tenantID, saleID, invoiceRefNo, nil, maxAttempts)
	e.State = StateDeadLetter
	e.FailureKind = FailureValidation
	e.LastError = lastError
	return e
}

// IsTerminal returns true once the entry reached synced or dead_letter
func (e *Entry) IsTerminal() bool {
	return e.State.IsTerminal()
}

// leaseExpired reports whether a held lease has lapsed
func (e *Entry) leaseExpired(now time.Time) bool {
	return e.LeaseExpiresAt != nil && !e.LeaseExpiresAt.After(now)
}

// Claimable reports whether a worker may claim the entry at the given time
func (e *Entry) Claimable(now time.Time) bool {
	switch e.State {
	case StatePending, StateRetrying:
		return !e.NextAttemptAt.After(now)
	case StateInFlight:
		// Crash recovery: a worker died without resolving the entry
		return e.leaseExpired(now)
	default:
		return false
	}
}

// Claim moves the entry to in_flight under the given worker lease.
// The repository performs the equivalent check atomically against the backing
// store; this method keeps the in-memory copy honest and guards tests.
func (e *Entry) Claim(token uuid.UUID, leaseTTL time.Duration) error {
	now := time.Now()
	if !e.Claimable(now) {
		return shared.ErrInvalidTransition
	}
	expiry := now.Add(leaseTTL)
	e.State = StateInFlight
	e.LeaseToken = &token
	e.LeaseExpiresAt = &expiry
	e.UpdatedAt = now
	return nil
}

// MarkSynced records the authority's acknowledgement. The successful call
// counts as an attempt. Only valid from in_flight; anything else is a
// protocol violation.
func (e *Entry) MarkSynced(invoiceNumber string) error {
	if e.State != StateInFlight {
		return shared.ErrInvalidTransition
	}
	e.AttemptCount++
	e.State = StateSynced
	e.FBRInvoiceNumber = invoiceNumber
	e.LastError = ""
	e.FailureKind = FailureNone
	e.clearLease()
	e.UpdatedAt = time.Now()
	return nil
}

// MarkTransientFailure consumes an attempt and either schedules a retry with
// exponential backoff or dead-letters the entry once attempts are exhausted.
func (e *Entry) MarkTransientFailure(errMsg string, policy BackoffPolicy) error {
	if e.State != StateInFlight {
		return shared.ErrInvalidTransition
	}
	now := time.Now()
	e.AttemptCount++
	e.LastError = errMsg
	e.clearLease()
	e.UpdatedAt = now

	if e.AttemptCount >= e.MaxAttempts {
		e.State = StateDeadLetter
		e.FailureKind = FailureExhausted
		return nil
	}
	e.State = StateRetrying
	e.NextAttemptAt = now.Add(policy.Delay(e.AttemptCount))
	return nil
}

// MarkPermanentFailure dead-letters the entry immediately: the authority
// rejected the payload, so retrying the same bytes cannot succeed.
func (e *Entry) MarkPermanentFailure(errMsg string) error {
	if e.State != StateInFlight {
		return shared.ErrInvalidTransition
	}
	e.AttemptCount++
	e.State = StateDeadLetter
	e.FailureKind = FailureValidation
	e.LastError = errMsg
	e.clearLease()
	e.UpdatedAt = time.Now()
	return nil
}

// ReleaseLease hands the entry back without consuming an attempt. Used for
// configuration-class failures (missing credential, unreachable reference
// data) and run-deadline cancellations, which are not submission failures.
func (e *Entry) ReleaseLease(reason string, retryAt time.Time) error {
	if e.State != StateInFlight {
		return shared.ErrInvalidTransition
	}
	e.State = StatePending
	e.LastError = reason
	e.NextAttemptAt = retryAt
	e.clearLease()
	e.UpdatedAt = time.Now()
	return nil
}

func (e *Entry) clearLease() {
	e.LeaseToken = nil
	e.LeaseExpiresAt = nil
}
