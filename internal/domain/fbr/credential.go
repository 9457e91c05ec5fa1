package fbr

import (
	"context"

	"github.com/google/uuid"
)

// Seller is the tenant's registered seller profile reported on every invoice
type Seller struct {
	NTNCNIC      string
	BusinessName string
	Province     string
	Address      string
}

// Credential is a tenant's decrypted FBR API access.
// The token only ever lives in memory; it is never logged or persisted in
// plaintext, which is why Credential deliberately has no String method.
type Credential struct {
	TenantID uuid.UUID
	Token    string
	BaseURL  string
	Seller   Seller
}

// CredentialResolver decrypts and returns a tenant's FBR credential.
// Resolve fails closed: a missing row, a disabled integration, or a ciphertext
// that does not pass integrity verification all surface as
// shared.ErrFBRNotConfigured.
type CredentialResolver interface {
	Resolve(ctx context.Context, tenantID uuid.UUID) (*Credential, error)
}
