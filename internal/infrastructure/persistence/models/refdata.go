package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RefProvinceModel is one authority-published province
type RefProvinceModel struct {
	Code      string    `gorm:"type:varchar(64);primaryKey"`
	Name      string    `gorm:"type:varchar(255);not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RefProvinceModel) TableName() string {
	return "fbr_ref_provinces"
}

// RefHSCodeModel is one authority-published HS code
type RefHSCodeModel struct {
	Code        string    `gorm:"type:varchar(20);primaryKey"`
	Description string    `gorm:"type:varchar(512)"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RefHSCodeModel) TableName() string {
	return "fbr_ref_hs_codes"
}

// RefUnitOfMeasureModel is one authority-published unit of measure
type RefUnitOfMeasureModel struct {
	Code        string    `gorm:"type:varchar(32);primaryKey"`
	Description string    `gorm:"type:varchar(255)"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RefUnitOfMeasureModel) TableName() string {
	return "fbr_ref_uoms"
}

// RefTaxRateModel is one row of the authority's tax rate schedule
type RefTaxRateModel struct {
	RateID      int             `gorm:"primaryKey"`
	Description string          `gorm:"type:varchar(255)"`
	RateValue   decimal.Decimal `gorm:"type:decimal(8,4);not null"`
	UpdatedAt   time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RefTaxRateModel) TableName() string {
	return "fbr_ref_tax_rates"
}

// RefVersionModel records which reference data release is loaded.
// A single row keyed by ID 1.
type RefVersionModel struct {
	ID        int       `gorm:"primaryKey"`
	Version   string    `gorm:"type:varchar(64);not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RefVersionModel) TableName() string {
	return "fbr_ref_versions"
}
