package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	rerrors "github.com/streamforge/live/internal/errors"
	"github.com/streamforge/live/internal/ids"
	"github.com/streamforge/live/internal/metastore"
)

// MetaControlPlane is a Meta Store-backed ControlPlane. The real control
// plane is an external collaborator reached over gRPC (spec.md §CLI
// surface); this stands in for local/dev deployments where room CRUD is
// pushed into the same store ingest already depends on, keyed by stream
// key under the "room:bykey:" prefix.
type MetaControlPlane struct {
	Meta metastore.Store
}

// roomRecord is the JSON shape a room CRUD writer stores at
// "room:bykey:<streamKey>".
type roomRecord struct {
	RoomID         ids.ID `json:"room_id"`
	OrganizationID ids.ID `json:"organization_id"`
}

func roomByKeyKey(streamKey string) string { return "room:bykey:" + streamKey }

func (c *MetaControlPlane) ResolveStreamKey(ctx context.Context, _ string, streamKey string) (StreamKeyResult, error) {
	raw, err := c.Meta.Get(ctx, roomByKeyKey(streamKey))
	if err != nil {
		if err == metastore.ErrNotFound {
			return StreamKeyResult{}, &ErrBadStreamKey{StreamKey: streamKey, Cause: fmt.Errorf("no room registered for this key")}
		}
		return StreamKeyResult{}, rerrors.NewStoreError("ingest.control_plane.resolve", err)
	}

	var rec roomRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return StreamKeyResult{}, &ErrBadStreamKey{StreamKey: streamKey, Cause: err}
	}

	return StreamKeyResult{
		RoomID:         rec.RoomID,
		OrganizationID: rec.OrganizationID,
		ConnectionID:   ids.New(),
	}, nil
}
