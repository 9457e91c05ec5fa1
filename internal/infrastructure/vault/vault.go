// Package vault decrypts per-tenant FBR API credentials on demand.
//
// Only ciphertext is ever at rest. Decryption requires the process-wide
// master key loaded at startup; a credential whose ciphertext fails GCM
// integrity verification is treated as absent, never as valid bytes.
package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/scrypt"

	"github.com/pos/backend/internal/domain/fbr"
	"github.com/pos/backend/internal/domain/shared"
	"github.com/pos/backend/internal/infrastructure/config"
)

const masterKeyLen = 32 // AES-256

// Record is a tenant's credential row as stored: token ciphertext (with the
// GCM tag appended), the nonce used to seal it, and the plaintext endpoint
// plus seller profile.
type Record struct {
	TenantID        uuid.UUID
	TokenCiphertext []byte
	TokenNonce      []byte
	BaseURL         string
	SellerNTN       string
	SellerName      string
	SellerProvince  string
	SellerAddress   string
	Enabled         bool
}

// Store loads encrypted credential records. Implementations return
// shared.ErrNotFound when no row exists for the tenant.
type Store interface {
	FindByTenant(ctx context.Context, tenantID uuid.UUID) (*Record, error)
}

// Vault resolves tenant credentials by decrypting stored records with the
// process master key. It holds no mutable state and is safe for concurrent use.
type Vault struct {
	store  Store
	aead   cipher.AEAD
	logger *zap.Logger
}

// MasterKey builds the 32-byte master key from configuration: either a hex
// encoded key or a passphrase stretched with scrypt. The key is never logged.
func MasterKey(cfg config.VaultConfig) ([]byte, error) {
	switch {
	case cfg.MasterKeyHex != "":
		key, err := hex.DecodeString(cfg.MasterKeyHex)
		if err != nil {
			return nil, fmt.Errorf("vault master key is not valid hex")
		}
		if len(key) != masterKeyLen {
			return nil, fmt.Errorf("vault master key must be %d bytes, got %d", masterKeyLen, len(key))
		}
		return key, nil
	case cfg.Passphrase != "":
		if cfg.KeySalt == "" {
			return nil, fmt.Errorf("vault key salt is required with a passphrase")
		}
		return scrypt.Key([]byte(cfg.Passphrase), []byte(cfg.KeySalt), 1<<15, 8, 1, masterKeyLen)
	default:
		return nil, fmt.Errorf("vault master key is not configured")
	}
}

// New creates a vault over the given store and master key
func New(store Store, masterKey []byte, logger *zap.Logger) (*Vault, error) {
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise vault cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise vault cipher: %w", err)
	}
	return &Vault{store: store, aead: aead, logger: logger}, nil
}

// Seal encrypts a plaintext API token, returning ciphertext (tag appended)
// and the random nonce. Used by the tenant-config surface when credentials
// are stored or rotated.
func (v *Vault) Seal(token string) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return v.aead.Seal(nil, nonce, []byte(token), nil), nonce, nil
}

// Resolve implements fbr.CredentialResolver. Any condition that prevents a
// trustworthy decryption (missing row, disabled integration, wrong nonce
// size, authentication tag mismatch) fails closed as ErrFBRNotConfigured.
func (v *Vault) Resolve(ctx context.Context, tenantID uuid.UUID) (*fbr.Credential, error) {
	rec, err := v.store.FindByTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrFBRNotConfigured
		}
		return nil, fmt.Errorf("failed to load tenant credential: %w", err)
	}
	if !rec.Enabled {
		return nil, shared.ErrFBRNotConfigured
	}
	if len(rec.TokenNonce) != v.aead.NonceSize() {
		v.logger.Warn("tenant credential has malformed nonce, treating as not configured",
			zap.String("tenant_id", tenantID.String()))
		return nil, shared.ErrFBRNotConfigured
	}

	token, err := v.aead.Open(nil, rec.TokenNonce, rec.TokenCiphertext, nil)
	if err != nil {
		// Integrity check failed. Corrupted or tampered ciphertext must never
		// be surfaced as a usable credential.
		v.logger.Warn("tenant credential failed integrity verification, treating as not configured",
			zap.String("tenant_id", tenantID.String()))
		return nil, shared.ErrFBRNotConfigured
	}

	return &fbr.Credential{
		TenantID: tenantID,
		Token:    string(token),
		BaseURL:  rec.BaseURL,
		Seller: fbr.Seller{
			NTNCNIC:      rec.SellerNTN,
			BusinessName: rec.SellerName,
			Province:     rec.SellerProvince,
			Address:      rec.SellerAddress,
		},
	}, nil
}

var _ fbr.CredentialResolver = (*Vault)(nil)
