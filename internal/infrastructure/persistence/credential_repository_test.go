package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pos/backend/internal/domain/shared"
	"github.com/pos/backend/internal/infrastructure/persistence/models"
	"github.com/pos/backend/internal/infrastructure/vault"
)

func setupCredentialTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.TenantCredentialModel{}))
	return db
}

func TestGormCredentialRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormCredentialRepository(setupCredentialTestDB(t))
	tenantID := uuid.New()

	t.Run("missing tenant returns not found", func(t *testing.T) {
		_, err := repo.FindByTenant(ctx, tenantID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("upsert then find round-trips the ciphertext", func(t *testing.T) {
		rec := &vault.Record{
			TenantID:        tenantID,
			TokenCiphertext: []byte{0xde, 0xad, 0xbe, 0xef},
			TokenNonce:      []byte{0x01, 0x02, 0x03},
			BaseURL:         "https://gw.fbr.gov.pk/di_data/v1/di",
			SellerNTN:       "7000007",
			SellerName:      "Test Traders",
			SellerProvince:  "PUNJAB",
			SellerAddress:   "12 Mall Road, Lahore",
			Enabled:         true,
		}
		require.NoError(t, repo.Upsert(ctx, rec))

		found, err := repo.FindByTenant(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, rec.TokenCiphertext, found.TokenCiphertext)
		assert.Equal(t, rec.TokenNonce, found.TokenNonce)
		assert.Equal(t, "7000007", found.SellerNTN)
		assert.True(t, found.Enabled)
	})

	t.Run("upsert replaces the existing record", func(t *testing.T) {
		rec := &vault.Record{
			TenantID:        tenantID,
			TokenCiphertext: []byte{0xca, 0xfe},
			TokenNonce:      []byte{0x09},
			BaseURL:         "https://gw.fbr.gov.pk/di_data/v1/di",
			SellerNTN:       "7000007",
			SellerName:      "Test Traders",
			SellerProvince:  "PUNJAB",
			Enabled:         false,
		}
		require.NoError(t, repo.Upsert(ctx, rec))

		found, err := repo.FindByTenant(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, []byte{0xca, 0xfe}, found.TokenCiphertext)
		assert.False(t, found.Enabled)
	})
}
