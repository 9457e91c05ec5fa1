package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pos/backend/internal/domain/sale"
	"github.com/pos/backend/internal/domain/shared"
	"github.com/pos/backend/internal/infrastructure/persistence/models"
)

// GormSaleRepository implements sale.Repository using GORM
type GormSaleRepository struct {
	db *gorm.DB
}

// NewGormSaleRepository creates a new GormSaleRepository
func NewGormSaleRepository(db *gorm.DB) *GormSaleRepository {
	return &GormSaleRepository{db: db}
}

// FindByID finds a sale with its items, scoped to a tenant
func (r *GormSaleRepository) FindByID(ctx context.Context, tenantID, saleID uuid.UUID) (*sale.Sale, error) {
	var model models.SaleModel
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("tenant_id = ? AND id = ?", tenantID, saleID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save persists a sale with its items
func (r *GormSaleRepository) Save(ctx context.Context, s *sale.Sale) error {
	model := &models.SaleModel{}
	model.FromDomain(s)
	return r.db.WithContext(ctx).Create(model).Error
}

// UpdateFBRState persists only the submission-engine-owned columns.
// Business facts of the sale are never touched from this path.
func (r *GormSaleRepository) UpdateFBRState(ctx context.Context, s *sale.Sale) error {
	result := r.db.WithContext(ctx).
		Model(&models.SaleModel{}).
		Where("tenant_id = ? AND id = ?", s.TenantID, s.ID).
		Updates(map[string]interface{}{
			"fbr_status":         string(s.FBRStatus),
			"fbr_invoice_number": s.FBRInvoiceNumber,
			"fbr_error":          s.FBRError,
			"updated_at":         time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ sale.Repository = (*GormSaleRepository)(nil)
