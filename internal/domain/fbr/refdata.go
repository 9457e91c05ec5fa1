package fbr

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TaxRateSchedule is one row of the authority-published rate schedule
type TaxRateSchedule struct {
	RateID      int             `json:"rate_id"`
	Description string          `json:"description"`
	RateValue   decimal.Decimal `json:"rate_value"`
}

// ReferenceDataSet holds the authority-published enumerations used to validate
// invoices before submission. It is tenant-independent, versioned, and treated
// as immutable once built; concurrent readers share a single snapshot.
type ReferenceDataSet struct {
	Version        string                  `json:"version"`
	Provinces      map[string]string       `json:"provinces"`
	HSCodes        map[string]string       `json:"hs_codes"`
	UnitsOfMeasure map[string]string       `json:"units_of_measure"`
	TaxRates       map[int]TaxRateSchedule `json:"tax_rates"`
	LoadedAt       time.Time               `json:"loaded_at"`
}

// HasProvince reports whether the province is part of the enumerated set
func (r *ReferenceDataSet) HasProvince(name string) bool {
	_, ok := r.Provinces[name]
	return ok
}

// HasHSCode reports whether the HS code is known to the authority
func (r *ReferenceDataSet) HasHSCode(code string) bool {
	_, ok := r.HSCodes[code]
	return ok
}

// HasUnitOfMeasure reports whether the unit of measure is known to the authority
func (r *ReferenceDataSet) HasUnitOfMeasure(uom string) bool {
	_, ok := r.UnitsOfMeasure[uom]
	return ok
}

// ReferenceProvider supplies the current reference data snapshot.
// Implementations cache aggressively; Snapshot must be cheap and safe for
// concurrent use.
type ReferenceProvider interface {
	Snapshot(ctx context.Context) (*ReferenceDataSet, error)
}
