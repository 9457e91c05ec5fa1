package vault

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pos/backend/internal/domain/shared"
	"github.com/pos/backend/internal/infrastructure/config"
)

type stubStore struct {
	records map[uuid.UUID]*Record
}

func (s *stubStore) FindByTenant(_ context.Context, tenantID uuid.UUID) (*Record, error) {
	rec, ok := s.records[tenantID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return rec, nil
}

func newTestVault(t *testing.T, store Store) *Vault {
	t.Helper()
	key, err := MasterKey(config.VaultConfig{
		MasterKeyHex: "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff",
	})
	require.NoError(t, err)
	v, err := New(store, key, zap.NewNop())
	require.NoError(t, err)
	return v
}

func sealedRecord(t *testing.T, v *Vault, tenantID uuid.UUID, token string) *Record {
	t.Helper()
	ciphertext, nonce, err := v.Seal(token)
	require.NoError(t, err)
	return &Record{
		TenantID:        tenantID,
		TokenCiphertext: ciphertext,
		TokenNonce:      nonce,
		BaseURL:         "https://gw.fbr.gov.pk/di_data/v1/di",
		SellerNTN:       "7000007",
		SellerName:      "Test Traders",
		SellerProvince:  "PUNJAB",
		SellerAddress:   "12 Mall Road, Lahore",
		Enabled:         true,
	}
}

func TestMasterKey(t *testing.T) {
	t.Run("accepts a 32-byte hex key", func(t *testing.T) {
		key, err := MasterKey(config.VaultConfig{
			MasterKeyHex: "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff",
		})
		require.NoError(t, err)
		assert.Len(t, key, 32)
	})

	t.Run("rejects a short key", func(t *testing.T) {
		_, err := MasterKey(config.VaultConfig{MasterKeyHex: "deadbeef"})
		assert.Error(t, err)
	})

	t.Run("derives a deterministic key from passphrase and salt", func(t *testing.T) {
		cfg := config.VaultConfig{Passphrase: "correct horse battery staple", KeySalt: "pos-vault-v1"}
		k1, err := MasterKey(cfg)
		require.NoError(t, err)
		k2, err := MasterKey(cfg)
		require.NoError(t, err)
		assert.Equal(t, k1, k2)
		assert.Len(t, k1, 32)
	})

	t.Run("rejects passphrase without salt", func(t *testing.T) {
		_, err := MasterKey(config.VaultConfig{Passphrase: "secret"})
		assert.Error(t, err)
	})

	t.Run("rejects empty configuration", func(t *testing.T) {
		_, err := MasterKey(config.VaultConfig{})
		assert.Error(t, err)
	})
}

func TestVault_Resolve(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("round-trips a sealed token", func(t *testing.T) {
		store := &stubStore{records: map[uuid.UUID]*Record{}}
		v := newTestVault(t, store)
		store.records[tenantID] = sealedRecord(t, v, tenantID, "bearer-token-xyz")

		cred, err := v.Resolve(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, "bearer-token-xyz", cred.Token)
		assert.Equal(t, "https://gw.fbr.gov.pk/di_data/v1/di", cred.BaseURL)
		assert.Equal(t, "7000007", cred.Seller.NTNCNIC)
	})

	t.Run("missing tenant fails as not configured", func(t *testing.T) {
		v := newTestVault(t, &stubStore{records: map[uuid.UUID]*Record{}})
		_, err := v.Resolve(ctx, tenantID)
		assert.ErrorIs(t, err, shared.ErrFBRNotConfigured)
	})

	t.Run("disabled integration fails as not configured", func(t *testing.T) {
		store := &stubStore{records: map[uuid.UUID]*Record{}}
		v := newTestVault(t, store)
		rec := sealedRecord(t, v, tenantID, "token")
		rec.Enabled = false
		store.records[tenantID] = rec

		_, err := v.Resolve(ctx, tenantID)
		assert.ErrorIs(t, err, shared.ErrFBRNotConfigured)
	})

	t.Run("tampered ciphertext fails closed", func(t *testing.T) {
		store := &stubStore{records: map[uuid.UUID]*Record{}}
		v := newTestVault(t, store)
		rec := sealedRecord(t, v, tenantID, "token")
		rec.TokenCiphertext[0] ^= 0xff
		store.records[tenantID] = rec

		_, err := v.Resolve(ctx, tenantID)
		assert.ErrorIs(t, err, shared.ErrFBRNotConfigured)
	})

	t.Run("malformed nonce fails closed", func(t *testing.T) {
		store := &stubStore{records: map[uuid.UUID]*Record{}}
		v := newTestVault(t, store)
		rec := sealedRecord(t, v, tenantID, "token")
		rec.TokenNonce = []byte{0x01}
		store.records[tenantID] = rec

		_, err := v.Resolve(ctx, tenantID)
		assert.ErrorIs(t, err, shared.ErrFBRNotConfigured)
	})

	t.Run("key rotation invalidates old ciphertext without panicking", func(t *testing.T) {
		store := &stubStore{records: map[uuid.UUID]*Record{}}
		oldVault := newTestVault(t, store)
		store.records[tenantID] = sealedRecord(t, oldVault, tenantID, "token")

		newKey, err := MasterKey(config.VaultConfig{
			MasterKeyHex: "ffeeddccbbaa99887766554433221100ffeeddccbbaa99887766554433221100",
		})
		require.NoError(t, err)
		rotated, err := New(store, newKey, zap.NewNop())
		require.NoError(t, err)

		_, err = rotated.Resolve(ctx, tenantID)
		assert.ErrorIs(t, err, shared.ErrFBRNotConfigured)
	})
}
