package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pos/backend/internal/domain/sale"
)

// SaleModel is the persistence model for point-of-sale transactions
type SaleModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID   uuid.UUID `gorm:"type:uuid;not null;index:idx_sales_tenant_number,priority:1"`
	SaleNumber string    `gorm:"type:varchar(64);not null;index:idx_sales_tenant_number,priority:2"`
	Type       string    `gorm:"type:varchar(20);not null;default:'SALE'"`
	SaleDate   time.Time `gorm:"not null"`

	BuyerName             string `gorm:"type:varchar(255)"`
	BuyerNTN              string `gorm:"type:varchar(20)"`
	BuyerProvince         string `gorm:"type:varchar(64)"`
	BuyerRegistrationType string `gorm:"type:varchar(20)"`

	Items []SaleItemModel `gorm:"foreignKey:SaleID;constraint:OnDelete:CASCADE"`

	FBRStatus        string `gorm:"type:varchar(20);not null;default:'NOT_QUEUED';index:idx_sales_fbr_status"`
	FBRInvoiceNumber string `gorm:"type:varchar(64)"`
	FBRError         string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SaleModel) TableName() string {
	return "sales"
}

// SaleItemModel is the persistence model for a single sale line
type SaleItemModel struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	SaleID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	Description   string          `gorm:"type:varchar(512);not null"`
	HSCode        string          `gorm:"type:varchar(20);not null"`
	UnitOfMeasure string          `gorm:"type:varchar(32);not null"`
	Quantity      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	TaxRate       decimal.Decimal `gorm:"type:decimal(8,4);not null"`
	Discount      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	SROScheduleNo string          `gorm:"type:varchar(64)"`
	SaleType      string          `gorm:"type:varchar(64)"`
}

// TableName returns the table name for GORM
func (SaleItemModel) TableName() string {
	return "sale_items"
}

// ToDomain converts the persistence model to a domain Sale
func (m *SaleModel) ToDomain() *sale.Sale {
	items := make([]sale.Item, len(m.Items))
	for i, it := range m.Items {
		items[i] = sale.Item{
			ID:            it.ID,
			Description:   it.Description,
			HSCode:        it.HSCode,
			UnitOfMeasure: it.UnitOfMeasure,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice,
			TaxRate:       it.TaxRate,
			Discount:      it.Discount,
			SROScheduleNo: it.SROScheduleNo,
			SaleType:      it.SaleType,
		}
	}
	return &sale.Sale{
		ID:                    m.ID,
		TenantID:              m.TenantID,
		SaleNumber:            m.SaleNumber,
		Type:                  sale.InvoiceType(m.Type),
		SaleDate:              m.SaleDate,
		BuyerName:             m.BuyerName,
		BuyerNTN:              m.BuyerNTN,
		BuyerProvince:         m.BuyerProvince,
		BuyerRegistrationType: m.BuyerRegistrationType,
		Items:                 items,
		FBRStatus:             sale.FBRStatus(m.FBRStatus),
		FBRInvoiceNumber:      m.FBRInvoiceNumber,
		FBRError:              m.FBRError,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Sale
func (m *SaleModel) FromDomain(s *sale.Sale) {
	m.ID = s.ID
	m.TenantID = s.TenantID
	m.SaleNumber = s.SaleNumber
	m.Type = string(s.Type)
	m.SaleDate = s.SaleDate
	m.BuyerName = s.BuyerName
	m.BuyerNTN = s.BuyerNTN
	m.BuyerProvince = s.BuyerProvince
	m.BuyerRegistrationType = s.BuyerRegistrationType
	m.FBRStatus = string(s.FBRStatus)
	m.FBRInvoiceNumber = s.FBRInvoiceNumber
	m.FBRError = s.FBRError
	m.CreatedAt = s.CreatedAt
	m.UpdatedAt = s.UpdatedAt

	m.Items = make([]SaleItemModel, len(s.Items))
	for i, it := range s.Items {
		m.Items[i] = SaleItemModel{
			ID:            it.ID,
			SaleID:        s.ID,
			Description:   it.Description,
			HSCode:        it.HSCode,
			UnitOfMeasure: it.UnitOfMeasure,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice,
			TaxRate:       it.TaxRate,
			Discount:      it.Discount,
			SROScheduleNo: it.SROScheduleNo,
			SaleType:      it.SaleType,
		}
	}
}
