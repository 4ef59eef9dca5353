package accesstoken

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RevokeTable is a Postgres-backed RevokeChecker: a row present in
// token_revocations for (organization_id, scope, subject) marks every token
// minted for that subject/scope revoked, regardless of its own exp claim.
// Same plain-pool, no-migration-framework style as recordingdb.DB.
type RevokeTable struct {
	pool *pgxpool.Pool
}

const revokeSchema = `
CREATE TABLE IF NOT EXISTS token_revocations (
	organization_id TEXT NOT NULL,
	scope           TEXT NOT NULL,
	subject         TEXT NOT NULL,
	revoked_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (organization_id, scope, subject)
);
`

// OpenRevokeTable dials a pool against the given DSN and ensures the
// revocation table exists. Callers that already hold a pool for the same
// Postgres instance (recordingdb.DB) may prefer NewRevokeTable instead.
func OpenRevokeTable(ctx context.Context, dsn string) (*RevokeTable, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("accesstoken: open revoke table: %w", err)
	}
	rt := NewRevokeTable(pool)
	if err := rt.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return rt, nil
}

// NewRevokeTable wraps an already-open pool.
func NewRevokeTable(pool *pgxpool.Pool) *RevokeTable {
	return &RevokeTable{pool: pool}
}

// Migrate applies the revocation table schema idempotently.
func (rt *RevokeTable) Migrate(ctx context.Context) error {
	if _, err := rt.pool.Exec(ctx, revokeSchema); err != nil {
		return fmt.Errorf("accesstoken: migrate revoke table: %w", err)
	}
	return nil
}

// Close closes the underlying pool, including a pool that was passed in
// through NewRevokeTable.
func (rt *RevokeTable) Close() { rt.pool.Close() }

// Revoke marks every token for (organizationID, scope, subject) revoked.
func (rt *RevokeTable) Revoke(ctx context.Context, organizationID, scope, subject string) error {
	_, err := rt.pool.Exec(ctx, `
		INSERT INTO token_revocations (organization_id, scope, subject)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, scope, subject) DO NOTHING`,
		organizationID, scope, subject)
	if err != nil {
		return fmt.Errorf("accesstoken: revoke: %w", err)
	}
	return nil
}

// IsRevoked implements RevokeChecker. expiresAt is accepted to satisfy the
// interface but unused: a revocation is permanent regardless of the
// token's own exp claim, since the whole point is to kill a token before
// its natural expiry.
func (rt *RevokeTable) IsRevoked(organizationID, scope, subject string, expiresAt time.Time) bool {
	var exists bool
	err := rt.pool.QueryRow(context.Background(), `
		SELECT EXISTS(SELECT 1 FROM token_revocations WHERE organization_id = $1 AND scope = $2 AND subject = $3)`,
		organizationID, scope, subject,
	).Scan(&exists)
	if err != nil {
		// A store error should not silently grant access; fail closed.
		return true
	}
	return exists
}
