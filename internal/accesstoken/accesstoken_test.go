package accesstoken

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type staticKeyProvider struct {
	key *ecdsa.PrivateKey
}

func (p staticKeyProvider) PublicKey(organizationID string) (interface{}, error) {
	return &p.key.PublicKey, nil
}

type staticRevokeChecker struct {
	revoked bool
}

func (c staticRevokeChecker) IsRevoked(organizationID, scope, subject string, expiresAt time.Time) bool {
	return c.revoked
}

func signToken(t *testing.T, key *ecdsa.PrivateKey, org, scope, subject string, exp time.Time) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		OrganizationID: org,
		Scope:          scope,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func newTestKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestValidateAllowsWellFormedToken(t *testing.T) {
	key := newTestKey(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tok := signToken(t, key, "org-1", "room-1", "viewer-42", now.Add(time.Hour))

	v := &Validator{
		Keys:    staticKeyProvider{key: key},
		Revokes: staticRevokeChecker{revoked: false},
		Now:     func() time.Time { return now },
	}
	d := v.Validate(tok, "org-1", "room-1")
	if !d.Allowed || d.Subject != "viewer-42" {
		t.Fatalf("expected allow, got %+v", d)
	}
}

func TestValidateDeniesExpiredToken(t *testing.T) {
	key := newTestKey(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tok := signToken(t, key, "org-1", "room-1", "viewer-42", now.Add(-time.Minute))

	v := &Validator{
		Keys: staticKeyProvider{key: key},
		Now:  func() time.Time { return now },
	}
	d := v.Validate(tok, "org-1", "room-1")
	if d.Allowed {
		t.Fatalf("expected deny for expired token, got %+v", d)
	}
}

func TestValidateDeniesScopeMismatch(t *testing.T) {
	key := newTestKey(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tok := signToken(t, key, "org-1", "room-1", "viewer-42", now.Add(time.Hour))

	v := &Validator{
		Keys: staticKeyProvider{key: key},
		Now:  func() time.Time { return now },
	}
	d := v.Validate(tok, "org-1", "room-2")
	if d.Allowed {
		t.Fatalf("expected deny for scope mismatch, got %+v", d)
	}
}

func TestValidateDeniesRevokedToken(t *testing.T) {
	key := newTestKey(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tok := signToken(t, key, "org-1", "room-1", "viewer-42", now.Add(time.Hour))

	v := &Validator{
		Keys:    staticKeyProvider{key: key},
		Revokes: staticRevokeChecker{revoked: true},
		Now:     func() time.Time { return now },
	}
	d := v.Validate(tok, "org-1", "room-1")
	if d.Allowed {
		t.Fatalf("expected deny for revoked token, got %+v", d)
	}
}

func TestValidateDeniesWrongSigningKey(t *testing.T) {
	signingKey := newTestKey(t)
	otherKey := newTestKey(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tok := signToken(t, signingKey, "org-1", "room-1", "viewer-42", now.Add(time.Hour))

	v := &Validator{
		Keys: staticKeyProvider{key: otherKey},
		Now:  func() time.Time { return now },
	}
	d := v.Validate(tok, "org-1", "room-1")
	if d.Allowed {
		t.Fatalf("expected deny for signature mismatch, got %+v", d)
	}
}

func TestValidateDeniesEmptyToken(t *testing.T) {
	v := &Validator{Keys: staticKeyProvider{key: newTestKey(t)}}
	d := v.Validate("", "org-1", "room-1")
	if d.Allowed {
		t.Fatalf("expected deny for empty token")
	}
}
