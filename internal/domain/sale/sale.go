package sale

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FBRStatus tracks where a sale stands in the FBR submission pipeline.
// It is mutated only by the submission engine once the sale is queued.
type FBRStatus string

const (
	// FBRStatusNotQueued means the sale has never been handed to the engine
	FBRStatusNotQueued FBRStatus = "NOT_QUEUED"
	// FBRStatusPending means an active queue entry exists but no attempt ran yet
	FBRStatusPending FBRStatus = "PENDING"
	// FBRStatusSubmitted means at least one attempt was made and retries are ongoing
	FBRStatusSubmitted FBRStatus = "SUBMITTED"
	// FBRStatusSynced means the authority acknowledged the invoice
	FBRStatusSynced FBRStatus = "SYNCED"
	// FBRStatusFailed means the latest queue entry dead-lettered
	FBRStatusFailed FBRStatus = "FAILED"
)

// IsValid returns true if the status is a known value
func (s FBRStatus) IsValid() bool {
	switch s {
	case FBRStatusNotQueued, FBRStatusPending, FBRStatusSubmitted, FBRStatusSynced, FBRStatusFailed:
		return true
	default:
		return false
	}
}

// InvoiceType is the fiscal document type reported to FBR
type InvoiceType string

const (
	InvoiceTypeSale   InvoiceType = "SALE"
	InvoiceTypeDebit  InvoiceType = "DEBIT"
	InvoiceTypeCredit InvoiceType = "CREDIT"
)

// IsValid returns true if the invoice type is a known value
func (t InvoiceType) IsValid() bool {
	switch t {
	case InvoiceTypeSale, InvoiceTypeDebit, InvoiceTypeCredit:
		return true
	default:
		return false
	}
}

// Item is one line of a sale. Business facts are immutable once recorded.
type Item struct {
	ID            uuid.UUID
	Description   string
	HSCode        string
	UnitOfMeasure string
	Quantity      decimal.Decimal
	UnitPrice     decimal.Decimal
	// TaxRate is the sales tax percentage applied to this line
	TaxRate decimal.Decimal
	// Discount is an absolute amount deducted from the tax-exclusive value
	Discount      decimal.Decimal
	SROScheduleNo string
	SaleType      string
}

// Sale is a locally recorded point-of-sale transaction owned by a tenant.
// The fbr_* fields are the only mutable part and mirror the latest queue entry.
type Sale struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	SaleNumber string
	Type       InvoiceType
	SaleDate   time.Time

	BuyerName             string
	BuyerNTN              string
	BuyerProvince         string
	BuyerRegistrationType string

	Items []Item

	FBRStatus        FBRStatus
	FBRInvoiceNumber string
	FBRError         string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MarkQueued records that an active queue entry now exists for this sale
func (s *Sale) MarkQueued() {
	s.FBRStatus = FBRStatusPending
	s.FBRError = ""
	s.UpdatedAt = time.Now()
}

// MarkSubmitted records that a submission attempt was made and retries continue
func (s *Sale) MarkSubmitted(lastError string) {
	s.FBRStatus = FBRStatusSubmitted
	s.FBRError = lastError
	s.UpdatedAt = time.Now()
}

// MarkSynced records the authority's acknowledgement
func (s *Sale) MarkSynced(invoiceNumber string) {
	s.FBRStatus = FBRStatusSynced
	s.FBRInvoiceNumber = invoiceNumber
	s.FBRError = ""
	s.UpdatedAt = time.Now()
}

// MarkFailed records a dead-lettered submission with its last error
func (s *Sale) MarkFailed(lastError string) {
	s.FBRStatus = FBRStatusFailed
	s.FBRError = lastError
	s.UpdatedAt = time.Now()
}

// TotalExclTax returns the tax-exclusive total across all items, net of discounts
func (s *Sale) TotalExclTax() decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.Items {
		total = total.Add(it.Quantity.Mul(it.UnitPrice).Sub(it.Discount))
	}
	return total
}

// Repository defines the persistence port for sales.
// The submission engine only reads sales and writes back their FBR state.
type Repository interface {
	// FindByID loads a sale scoped to a tenant
	FindByID(ctx context.Context, tenantID, saleID uuid.UUID) (*Sale, error)
	// UpdateFBRState persists the fbr_status/fbr_invoice_number/fbr_error columns
	UpdateFBRState(ctx context.Context, s *Sale) error
}
