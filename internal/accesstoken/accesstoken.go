// Package accesstoken validates playback tokens at the edge (§4.3, §6): a
// signed JWT scoped to {org, room|recording, exp}, checked against a
// per-organization public key and a revocation table. The validator is a
// pure function of (token, org, scope, now) plus two injected
// collaborators — no global singleton, per §9's capability-interface
// redesign.
package accesstoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Decision is the outcome of validating a token.
type Decision struct {
	Allowed bool
	Reason  string // populated when !Allowed
	Subject string // the subject claim, when Allowed
}

func deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// Claims is the payload structure signed into every playback token.
type Claims struct {
	jwt.RegisteredClaims
	OrganizationID string `json:"org"`
	Scope          string `json:"room_or_recording"` // room_id or recording_id
}

// KeyProvider resolves the public key used to verify tokens issued by an
// organization. Keys are looked up by organization, never embedded in the
// token itself (no `alg: none`, no JWK-from-token trust).
type KeyProvider interface {
	PublicKey(organizationID string) (interface{}, error)
}

// RevokeChecker reports whether a (organization, scope, subject) token has
// been explicitly revoked, independent of its expiry.
type RevokeChecker interface {
	IsRevoked(organizationID, scope, subject string, expiresAt time.Time) bool
}

// Validator is the edge's injected token checker.
type Validator struct {
	Keys    KeyProvider
	Revokes RevokeChecker
	// Now returns the current time; overridable in tests.
	Now func() time.Time
}

func (v *Validator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Validate is the pure decision function described in §9: given a raw
// token string, the organization and room/recording scope the caller
// expects, it returns Allow or Deny(reason). It never panics and never
// performs I/O beyond the injected KeyProvider/RevokeChecker.
func (v *Validator) Validate(tokenString, wantOrg, wantScope string) Decision {
	if tokenString == "" {
		return deny("missing token")
	}

	var claims Claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256", "ES256"}))
	token, err := parser.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		orgID := claims.OrganizationID
		if orgID == "" {
			return nil, errors.New("token missing org claim")
		}
		return v.Keys.PublicKey(orgID)
	})
	if err != nil || !token.Valid {
		return deny("invalid signature or malformed token")
	}

	now := v.now()
	if exp, expErr := claims.GetExpirationTime(); expErr != nil || exp == nil || exp.Before(now) {
		return deny("expired")
	}
	if claims.OrganizationID != wantOrg {
		return deny("organization mismatch")
	}
	if claims.Scope != wantScope {
		return deny("scope mismatch")
	}

	subject := claims.Subject
	exp, _ := claims.GetExpirationTime()
	var expTime time.Time
	if exp != nil {
		expTime = exp.Time
	}
	if v.Revokes != nil && v.Revokes.IsRevoked(claims.OrganizationID, claims.Scope, subject, expTime) {
		return deny("revoked")
	}

	return Decision{Allowed: true, Subject: subject}
}
