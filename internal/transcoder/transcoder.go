// Package transcoder is the claimed-connection pipeline: decode the ingest
// bidi stream through a managed FFmpeg subprocess, cut CMAF parts/segments
// per rendition, publish them to the Media Store and Meta Store, and
// optionally tap a recording index (§4.2).
package transcoder

import (
	"context"
	"log/slog"
	"time"

	"github.com/streamforge/live/internal/domain"
	"github.com/streamforge/live/internal/eventbus"
	"github.com/streamforge/live/internal/mediastore"
	"github.com/streamforge/live/internal/metastore"
	"github.com/streamforge/live/internal/metrics"
	"github.com/streamforge/live/internal/recordingdb"
)

// RoomLookup resolves the ladder and recording config for a claimed room.
// Backed by the external control plane in production; MetaControlPlane's
// sibling in this package (see claim.go) is the local/dev stand-in.
type RoomLookup interface {
	Ladder(ctx context.Context, roomID string) ([]domain.LadderEntry, error)
	RecordingConfig(ctx context.Context, roomID string) (recordingID string, orgID string, enabled bool, err error)
}

// Deps are the collaborators one transcoder worker process needs, wired by
// cmd/transcoder's main.
type Deps struct {
	Meta       metastore.Store
	Media      mediastore.Store
	Bus        eventbus.Bus
	Rooms      RoomLookup
	Recordings *recordingdb.DB // nil disables the recording tap entirely
	Metrics    *metrics.Metrics

	FFmpegPath string
	LeaseTTL   time.Duration
	// ClaimAcceptTimeout bounds how long a claim waits for ingest to dial
	// the ephemeral listener. Defaults to 10s when zero.
	ClaimAcceptTimeout time.Duration

	// TranscoderID identifies this worker in claim reasons and logs.
	TranscoderID string
	// ListenHost is the interface ephemeral per-connection listeners bind
	// to; ingest must be able to reach it.
	ListenHost string
}

// Worker owns zero or more connection pipelines. One process runs one
// Worker; it races other workers for pending connections across the fleet.
type Worker struct {
	deps Deps
	log  *slog.Logger

	claims *claimLoop
}

// New builds a Worker. Call Run to start claiming connections.
func New(deps Deps, log *slog.Logger) *Worker {
	w := &Worker{deps: deps, log: log}
	w.claims = newClaimLoop(deps, log)
	return w
}

// Run subscribes to the pending-connection channel and races claims until
// ctx is cancelled. It blocks until every in-flight pipeline has exited.
func (w *Worker) Run(ctx context.Context) error {
	return w.claims.run(ctx)
}
