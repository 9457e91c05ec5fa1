package fbr

import (
	"context"
)

// InvoiceService is the outbound port to the external tax authority.
//
// Both operations authenticate with the tenant credential and carry explicit
// timeouts via ctx. Error contract:
//   - *PermanentError: the authority rejected the payload; retrying the same
//     bytes cannot succeed
//   - shared.ErrFBRNotConfigured (wrapped): the credential was refused
//   - any other error: transient infrastructure failure, safe to retry
type InvoiceService interface {
	// ValidateInvoice runs the authority's dry-run validation and returns the
	// violations it reported, if any
	ValidateInvoice(ctx context.Context, cred *Credential, payload *WirePayload) ([]Violation, error)

	// SubmitInvoice submits the invoice for fiscal recording
	SubmitInvoice(ctx context.Context, cred *Credential, payload *WirePayload) (*SubmissionAck, error)
}
