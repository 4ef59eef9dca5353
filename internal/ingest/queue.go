package ingest

import (
	"context"
	"fmt"
	"strings"

	rerrors "github.com/streamforge/live/internal/errors"
	"github.com/streamforge/live/internal/eventbus"
	"github.com/streamforge/live/internal/ids"
	"github.com/streamforge/live/internal/metastore"
)

// Claim is what a transcoder hands back when it takes ownership of a
// connection: its id (for logging/metrics) and the address ingest dials to
// open the bidi IngestWatch stream.
type Claim struct {
	TranscoderID string
	Addr         string
}

// TranscoderQueue is the room's transcoder request queue: ingest announces
// a newly-publishing connection, then waits (bounded by the caller's
// context) for some transcoder to claim it.
type TranscoderQueue interface {
	Announce(ctx context.Context, roomID, organizationID, connectionID ids.ID) error
	AwaitClaim(ctx context.Context, roomID, connectionID ids.ID) (Claim, error)
	// MarkFinished retires a room's active-connection pointer once its
	// publisher disconnects, so edge stops resolving the room to a dead
	// connection's manifests.
	MarkFinished(ctx context.Context, roomID ids.ID) error
}

// RoomChannel is the event bus channel name for a room's lifecycle events,
// shared with transcoder/edge so all three agree on the subject.
func RoomChannel(roomID ids.ID) string { return "room:" + roomID.String() }

// pendingKey is the Meta Store key a transcoder worker scans/watches to
// discover connections awaiting a claim.
func pendingKey(roomID, connectionID ids.ID) string {
	return fmt.Sprintf("pending:%s:%s", roomID.String(), connectionID.String())
}

// MetaQueue implements TranscoderQueue over the Meta Store (for the pending
// announcement a transcoder worker discovers) and the event bus (for the
// claim notification, EventRoomReady, that a transcoder publishes once it
// has taken ownership).
type MetaQueue struct {
	Meta metastore.Store
	Bus  eventbus.Bus
}

func (q *MetaQueue) Announce(ctx context.Context, roomID, organizationID, connectionID ids.ID) error {
	if err := q.Meta.Set(ctx, pendingKey(roomID, connectionID), []byte(connectionID.String())); err != nil {
		return rerrors.NewStoreError("ingest.queue.announce", err)
	}
	if err := metastore.PutActiveConnection(ctx, q.Meta, roomID.String(), metastore.ActiveConnection{
		ConnectionID:   connectionID.String(),
		OrganizationID: organizationID.String(),
	}); err != nil {
		return rerrors.NewStoreError("ingest.queue.announce", err)
	}
	// Best-effort wake-up for idle transcoder workers blocked on
	// PendingChannel. The Meta Store key above is the durable record a
	// worker can still discover by lease-racing after a restart; this
	// publish just avoids making every worker poll.
	_ = q.Bus.Publish(ctx, eventbus.PendingChannel(), eventbus.Event{
		Type:         eventbus.EventConnectionPending,
		RoomID:       roomID.String(),
		ConnectionID: connectionID.String(),
	})
	return nil
}

// MarkFinished clears roomID's active-connection pointer.
func (q *MetaQueue) MarkFinished(ctx context.Context, roomID ids.ID) error {
	if err := metastore.ClearActiveConnection(ctx, q.Meta, roomID.String()); err != nil {
		return rerrors.NewStoreError("ingest.queue.mark_finished", err)
	}
	return nil
}

// PendingKey exposes the Meta Store key for a pending connection so a
// transcoder worker can race to lease it after learning of it via
// EventConnectionPending (or after a restart, by scanning its own
// previously-seen candidates — the bus carries no backlog).
func PendingKey(roomID, connectionID ids.ID) string { return pendingKey(roomID, connectionID) }

// AwaitClaim blocks until a transcoder publishes EventRoomReady for this
// connection, or ctx is done (the caller bounds this with the configured
// transcoder-wait timeout).
func (q *MetaQueue) AwaitClaim(ctx context.Context, roomID, connectionID ids.ID) (Claim, error) {
	sub, err := q.Bus.Subscribe(ctx, RoomChannel(roomID))
	if err != nil {
		return Claim{}, rerrors.NewClaimError("ingest.queue.await_claim", err)
	}
	defer sub.Close()

	wantConn := connectionID.String()
	for {
		select {
		case <-ctx.Done():
			return Claim{}, rerrors.NewClaimError("ingest.queue.await_claim", ctx.Err())
		case ev, ok := <-sub.Events():
			if !ok {
				return Claim{}, rerrors.NewClaimError("ingest.queue.await_claim", fmt.Errorf("subscription closed"))
			}
			if ev.Type != eventbus.EventRoomReady || ev.ConnectionID != wantConn {
				continue
			}
			transcoderID, addr, perr := parseClaimReason(ev.Reason)
			if perr != nil {
				return Claim{}, rerrors.NewClaimError("ingest.queue.await_claim", perr)
			}
			return Claim{TranscoderID: transcoderID, Addr: addr}, nil
		}
	}
}

// EncodeClaimReason packs the claiming transcoder's id and dial address
// into the Event.Reason field the transcoder publishes with EventRoomReady.
func EncodeClaimReason(transcoderID, addr string) string {
	return transcoderID + "@" + addr
}

func parseClaimReason(reason string) (transcoderID, addr string, err error) {
	transcoderID, addr, ok := strings.Cut(reason, "@")
	if !ok || transcoderID == "" || addr == "" {
		return "", "", fmt.Errorf("malformed claim reason %q", reason)
	}
	return transcoderID, addr, nil
}
