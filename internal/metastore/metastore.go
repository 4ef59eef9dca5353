// Package metastore is the Meta Store capability interface: the KV layer
// manifests and ownership leases rendezvous through (§6). Redis is the
// production backend; an in-memory fake backs tests.
package metastore

import (
	"context"
	"time"
)

// Store is the narrow capability interface transcoder/edge/ingest depend
// on — no global singleton, per the teacher's capability-interface design.
type Store interface {
	// Get returns the value at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes key unconditionally.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. No error if it didn't exist.
	Delete(ctx context.Context, key string) error

	// AcquireLease attempts a compare-and-set claim on key with the given
	// TTL, returning true if this call established (or already owned,
	// via a matching token) the lease.
	AcquireLease(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// RenewLease extends an owned lease's TTL. Returns false if another
	// token holds the lease; an expired lease that no other token has taken
	// is re-acquired and reported as true.
	RenewLease(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// ReleaseLease drops an owned lease immediately.
	ReleaseLease(ctx context.Context, key, token string) error
}

// ErrNotFound is returned by Get when key has no value.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "metastore: key not found" }
