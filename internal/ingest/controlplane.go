package ingest

import (
	"context"
	"fmt"

	"github.com/streamforge/live/internal/ids"
)

// StreamKeyResult is what the control plane returns for a valid stream key.
type StreamKeyResult struct {
	RoomID         ids.ID
	OrganizationID ids.ID
	// ConnectionID is pre-minted by the control plane so the room's
	// connection history is assigned externally, never reused.
	ConnectionID ids.ID
}

// ErrBadStreamKey is returned by ControlPlane implementations when the key
// does not resolve to an active room. Wrapped causes are preserved.
type ErrBadStreamKey struct {
	StreamKey string
	Cause     error
}

func (e *ErrBadStreamKey) Error() string {
	return fmt.Sprintf("bad stream key %q: %v", e.StreamKey, e.Cause)
}
func (e *ErrBadStreamKey) Unwrap() error { return e.Cause }

// ControlPlane resolves an RTMP publish's application+stream-key to the
// room it publishes into. It is external: this service only reads it.
type ControlPlane interface {
	ResolveStreamKey(ctx context.Context, app, streamKey string) (StreamKeyResult, error)
}
