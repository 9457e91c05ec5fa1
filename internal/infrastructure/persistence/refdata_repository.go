package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/pos/backend/internal/domain/fbr"
	"github.com/pos/backend/internal/infrastructure/persistence/models"
)

// GormRefDataRepository loads the authority-published reference data from its
// tables into one immutable snapshot. It is the bottom tier of the refdata
// cache; callers go through the cache, not this repository.
type GormRefDataRepository struct {
	db *gorm.DB
}

// NewGormRefDataRepository creates a new GormRefDataRepository
func NewGormRefDataRepository(db *gorm.DB) *GormRefDataRepository {
	return &GormRefDataRepository{db: db}
}

// Load builds a complete reference data snapshot from the database
func (r *GormRefDataRepository) Load(ctx context.Context) (*fbr.ReferenceDataSet, error) {
	set := &fbr.ReferenceDataSet{
		Provinces:      make(map[string]string),
		HSCodes:        make(map[string]string),
		UnitsOfMeasure: make(map[string]string),
		TaxRates:       make(map[int]fbr.TaxRateSchedule),
		LoadedAt:       time.Now(),
	}

	var provinces []models.RefProvinceModel
	if err := r.db.WithContext(ctx).Find(&provinces).Error; err != nil {
		return nil, err
	}
	for _, p := range provinces {
		set.Provinces[p.Code] = p.Name
	}

	var hsCodes []models.RefHSCodeModel
	if err := r.db.WithContext(ctx).Find(&hsCodes).Error; err != nil {
		return nil, err
	}
	for _, h := range hsCodes {
		set.HSCodes[h.Code] = h.Description
	}

	var uoms []models.RefUnitOfMeasureModel
	if err := r.db.WithContext(ctx).Find(&uoms).Error; err != nil {
		return nil, err
	}
	for _, u := range uoms {
		set.UnitsOfMeasure[u.Code] = u.Description
	}

	var rates []models.RefTaxRateModel
	if err := r.db.WithContext(ctx).Find(&rates).Error; err != nil {
		return nil, err
	}
	for _, rate := range rates {
		set.TaxRates[rate.RateID] = fbr.TaxRateSchedule{
			RateID:      rate.RateID,
			Description: rate.Description,
			RateValue:   rate.RateValue,
		}
	}

	var version models.RefVersionModel
	err := r.db.WithContext(ctx).First(&version, "id = ?", 1).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// No release row yet; the snapshot is still usable, just unversioned
	case err != nil:
		return nil, err
	default:
		set.Version = version.Version
	}

	return set, nil
}
