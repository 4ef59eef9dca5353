package accesstoken

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// FileKeyProvider serves a single PEM-encoded public key for every
// organization, matching the single-signer deployment config.Edge models
// (one jwt_public_key_path, not a per-org directory). A multi-tenant
// deployment with distinct per-org signers would swap this for a
// database-backed KeyProvider without touching Validator.
type FileKeyProvider struct {
	key interface{}
}

// LoadFileKeyProvider reads and parses an RSA or ECDSA public key in PEM
// format (PKIX, SubjectPublicKeyInfo).
func LoadFileKeyProvider(path string) (*FileKeyProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("accesstoken: read public key: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("accesstoken: %s is not PEM-encoded", path)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("accesstoken: parse public key: %w", err)
	}
	switch pub.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey:
	default:
		return nil, fmt.Errorf("accesstoken: unsupported public key type %T", pub)
	}
	return &FileKeyProvider{key: pub}, nil
}

// PublicKey implements KeyProvider. organizationID is ignored: every
// organization verifies against the one configured signer.
func (p *FileKeyProvider) PublicKey(organizationID string) (interface{}, error) {
	return p.key, nil
}
