package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/pos/backend/internal/infrastructure/vault"
)

// TenantCredentialModel stores a tenant's FBR integration settings.
// The API token column only ever holds AES-GCM ciphertext; the vault is the
// sole component that can turn it back into bytes worth sending.
type TenantCredentialModel struct {
	TenantID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	TokenCiphertext []byte    `gorm:"type:bytea;not null"`
	TokenNonce      []byte    `gorm:"type:bytea;not null"`
	BaseURL         string    `gorm:"type:varchar(255);not null"`
	SellerNTN       string    `gorm:"type:varchar(20);not null"`
	SellerName      string    `gorm:"type:varchar(255);not null"`
	SellerProvince  string    `gorm:"type:varchar(64);not null"`
	SellerAddress   string    `gorm:"type:varchar(512)"`
	Enabled         bool      `gorm:"not null;default:false"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (TenantCredentialModel) TableName() string {
	return "fbr_tenant_credentials"
}

// ToRecord converts the persistence model to a vault record
func (m *TenantCredentialModel) ToRecord() *vault.Record {
	return &vault.Record{
		TenantID:        m.TenantID,
		TokenCiphertext: m.TokenCiphertext,
		TokenNonce:      m.TokenNonce,
		BaseURL:         m.BaseURL,
		SellerNTN:       m.SellerNTN,
		SellerName:      m.SellerName,
		SellerProvince:  m.SellerProvince,
		SellerAddress:   m.SellerAddress,
		Enabled:         m.Enabled,
	}
}

// FromRecord populates the persistence model from a vault record
func (m *TenantCredentialModel) FromRecord(rec *vault.Record) {
	m.TenantID = rec.TenantID
	m.TokenCiphertext = rec.TokenCiphertext
	m.TokenNonce = rec.TokenNonce
	m.BaseURL = rec.BaseURL
	m.SellerNTN = rec.SellerNTN
	m.SellerName = rec.SellerName
	m.SellerProvince = rec.SellerProvince
	m.SellerAddress = rec.SellerAddress
	m.Enabled = rec.Enabled
}
