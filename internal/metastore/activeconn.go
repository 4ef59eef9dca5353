package metastore

import (
	"context"
	"encoding/json"
	"fmt"
)

// ActiveConnectionKey is the Meta Store key recording which connection is
// currently live for a room, so edge can resolve a room id to the
// manifests it should read without holding any connection state itself.
func ActiveConnectionKey(roomID string) string {
	return fmt.Sprintf("room:active:%s", roomID)
}

// LastConnectionKey is the Meta Store key recording the most recent
// connection a room ever had, live or not. Unlike ActiveConnectionKey this
// is never cleared on disconnect, so edge can still find a just-finished
// room's master manifest to decide between serving its final state and
// returning 410 (per §4.3's failure semantics), instead of the pointer
// disappearing at the same moment the room goes offline.
func LastConnectionKey(roomID string) string {
	return fmt.Sprintf("room:last:%s", roomID)
}

// ActiveConnection is the value stored at ActiveConnectionKey and
// LastConnectionKey.
type ActiveConnection struct {
	ConnectionID   string `json:"connection_id"`
	OrganizationID string `json:"organization_id"`
}

// PutActiveConnection records roomID's current connection, both as the
// live pointer and as the durable last-connection pointer. Ingest calls
// this when a publisher starts.
func PutActiveConnection(ctx context.Context, s Store, roomID string, ac ActiveConnection) error {
	b, err := json.Marshal(ac)
	if err != nil {
		return err
	}
	if err := s.Set(ctx, ActiveConnectionKey(roomID), b); err != nil {
		return err
	}
	return s.Set(ctx, LastConnectionKey(roomID), b)
}

// GetActiveConnection reads roomID's current connection, or ErrNotFound if
// the room has never published or has since gone offline.
func GetActiveConnection(ctx context.Context, s Store, roomID string) (*ActiveConnection, error) {
	return getConnectionAt(ctx, s, ActiveConnectionKey(roomID))
}

// GetLastConnection reads roomID's most recent connection, live or
// finished, or ErrNotFound if the room has never published.
func GetLastConnection(ctx context.Context, s Store, roomID string) (*ActiveConnection, error) {
	return getConnectionAt(ctx, s, LastConnectionKey(roomID))
}

func getConnectionAt(ctx context.Context, s Store, key string) (*ActiveConnection, error) {
	b, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var ac ActiveConnection
	if err := json.Unmarshal(b, &ac); err != nil {
		return nil, err
	}
	return &ac, nil
}

// ClearActiveConnection drops roomID's live-connection pointer. Ingest
// calls this when a publisher disconnects; the last-connection pointer
// stays in place so edge can still resolve the room to its final manifest
// state (finished manifests stay readable until the transcoder also
// retires them, per the 410 rule in §4.3).
func ClearActiveConnection(ctx context.Context, s Store, roomID string) error {
	return s.Delete(ctx, ActiveConnectionKey(roomID))
}
