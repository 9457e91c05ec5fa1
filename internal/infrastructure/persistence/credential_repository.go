package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pos/backend/internal/domain/shared"
	"github.com/pos/backend/internal/infrastructure/persistence/models"
	"github.com/pos/backend/internal/infrastructure/vault"
)

// GormCredentialRepository implements vault.Store over the tenant credential
// table. Rows hold ciphertext only; this layer never sees a plaintext token.
type GormCredentialRepository struct {
	db *gorm.DB
}

// NewGormCredentialRepository creates a new GormCredentialRepository
func NewGormCredentialRepository(db *gorm.DB) *GormCredentialRepository {
	return &GormCredentialRepository{db: db}
}

// FindByTenant loads a tenant's encrypted credential record
func (r *GormCredentialRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID) (*vault.Record, error) {
	var model models.TenantCredentialModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToRecord(), nil
}

// Upsert stores or replaces a tenant's credential record
func (r *GormCredentialRepository) Upsert(ctx context.Context, rec *vault.Record) error {
	model := &models.TenantCredentialModel{}
	model.FromRecord(rec)
	now := time.Now()
	model.UpdatedAt = now

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.TenantCredentialModel
		err := tx.Where("tenant_id = ?", rec.TenantID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			model.CreatedAt = now
			return tx.Create(model).Error
		case err != nil:
			return err
		default:
			model.CreatedAt = existing.CreatedAt
			return tx.Save(model).Error
		}
	})
}

var _ vault.Store = (*GormCredentialRepository)(nil)
