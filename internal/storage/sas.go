package storage

import (
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
)

// DefaultSignatureLifetime is how long a generated account signature stays valid
const DefaultSignatureLifetime = 60 * time.Minute

// SignatureGenerator issues account shared access signatures for the blob
// service with read, write and delete on containers and objects, HTTPS only.
type SignatureGenerator struct {
	credential *azblob.SharedKeyCredential
	lifetime   time.Duration
	now        func() time.Time
}

// NewSignatureGenerator creates a generator for account. A non-positive
// lifetime falls back to DefaultSignatureLifetime.
func NewSignatureGenerator(account *Account, lifetime time.Duration) (*SignatureGenerator, error) {
	credential, err := azblob.NewSharedKeyCredential(account.Name, account.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to create shared key credential: %w", err)
	}

	if lifetime <= 0 {
		lifetime = DefaultSignatureLifetime
	}

	return &SignatureGenerator{
		credential: credential,
		lifetime:   lifetime,
		now:        time.Now,
	}, nil
}

// Generate returns a new signature as an encoded query string, without the leading '?'.
// The expiry is computed from the current time on every call.
func (g *SignatureGenerator) Generate() (string, error) {
	permissions := sas.AccountPermissions{Read: true, Write: true, Delete: true}
	resources := sas.AccountResourceTypes{Container: true, Object: true}

	values := sas.AccountSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		ExpiryTime:    g.now().UTC().Add(g.lifetime),
		Permissions:   permissions.String(),
		ResourceTypes: resources.String(),
	}
	params, err := values.SignWithSharedKey(g.credential)
	if err != nil {
		return "", fmt.Errorf("failed to sign account SAS: %w", err)
	}

	return params.Encode(), nil
}

// Lifetime returns the validity period applied to generated signatures
func (g *SignatureGenerator) Lifetime() time.Duration {
	return g.lifetime
}
