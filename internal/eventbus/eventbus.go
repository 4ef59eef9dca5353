// Package eventbus is the lifecycle event fan-out between Ingest,
// Transcoder, and Edge: RoomReady, RoomDisconnected, RoomModified, and the
// ingest-side disconnect signal (§6).
package eventbus

import (
	"context"
	"encoding/json"
)

// EventType is the closed set of lifecycle events carried on the bus.
type EventType string

const (
	EventRoomReady         EventType = "room_ready"
	EventRoomDisconnected  EventType = "room_disconnected"
	EventRoomModified      EventType = "room_modified"
	EventIngestDisconnect  EventType = "ingest_disconnect"
	// EventConnectionPending is broadcast on PendingChannel by ingest's
	// TranscoderQueue.Announce: any idle transcoder worker races to lease
	// the connection via the Meta Store, then answers with EventRoomReady.
	EventConnectionPending EventType = "connection_pending"
	// EventManifestUpdated is published by the transcoder's single manifest
	// writer on the channel named by metastore.ManifestKey after every
	// Meta Store write, fanning the update out to edge readers blocked on
	// that manifest in awaitManifest. Many readers, one writer per key.
	EventManifestUpdated EventType = "manifest_updated"
)

// PendingChannel is the well-known channel transcoder workers subscribe to
// for newly-announced connections awaiting a claim.
func PendingChannel() string { return "transcoders:pending" }

// Event is the envelope published and received on every channel.
type Event struct {
	Type         EventType `json:"type"`
	RoomID       string    `json:"room_id"`
	ConnectionID string    `json:"connection_id,omitempty"`
	Reason       string    `json:"reason,omitempty"`
}

// Bus is the pub/sub capability interface ingest/transcoder/edge depend on.
type Bus interface {
	// Publish sends event on channel. Delivery is best-effort: a
	// publish with no subscribers is a silent no-op, matching Redis
	// pub/sub semantics.
	Publish(ctx context.Context, channel string, event Event) error
	// Subscribe opens a Subscription to channel. The caller must Close it.
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription delivers events from one Subscribe call until Close.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

func encode(e Event) ([]byte, error) { return json.Marshal(e) }

func decode(b []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(b, &e)
	return e, err
}
