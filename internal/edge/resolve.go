package edge

import (
	"context"
	"errors"

	"github.com/streamforge/live/internal/domain"
	rerrors "github.com/streamforge/live/internal/errors"
	"github.com/streamforge/live/internal/ids"
	"github.com/streamforge/live/internal/metastore"
)

// ErrUnknownTarget means the org/room-or-recording path segment names
// nothing edge has ever heard of (maps to 404).
var ErrUnknownTarget = errors.New("edge: unknown room or recording")

// ErrTargetGone means the room finished and no recording was kept for it
// (maps to 410).
var ErrTargetGone = errors.New("edge: room finished, no recording available")

// ErrOrgMismatch means the resolved target belongs to a different
// organization than the request path claims (maps to 404, never 403 —
// cross-org existence is not revealed).
var ErrOrgMismatch = errors.New("edge: organization mismatch")

// playbackTarget is what a {org}/{room_or_recording} path segment resolves
// to: either the live connection currently producing manifests for a room,
// or a sealed recording being served as VOD.
type playbackTarget struct {
	Live         bool
	ConnectionID ids.ID
	RecordingID  ids.ID
	Renditions   []string // VOD only: every rendition the recording has rows for
}

// resolveTarget maps a path segment to a playbackTarget. The segment is
// tried first as a room id against the live/last connection pointers
// (§6's active-connection tracking), then as a recording id directly —
// transcoder's RecordingConfig(roomID) mints one stable recording id per
// room, so in practice the same id resolves both ways once a room has a
// recording config, but edge never needs to know which case it is ahead
// of time.
func resolveTarget(ctx context.Context, deps Deps, orgID, idStr string) (*playbackTarget, error) {
	id, err := ids.Parse(idStr)
	if err != nil {
		return nil, ErrUnknownTarget
	}

	if ac, err := metastore.GetActiveConnection(ctx, deps.Meta, id.String()); err == nil {
		if ac.OrganizationID != orgID {
			return nil, ErrOrgMismatch
		}
		connID, perr := ids.Parse(ac.ConnectionID)
		if perr != nil {
			return nil, ErrUnknownTarget
		}
		master, merr := metastore.GetMasterManifest(ctx, deps.Meta, connID.String())
		if merr == nil && !master.Finished {
			return &playbackTarget{Live: true, ConnectionID: connID}, nil
		}
	} else if err != metastore.ErrNotFound {
		return nil, rerrors.NewStoreError("edge.resolve.active_connection", err)
	}

	// Not currently live (or never was). See whether the room ever
	// published at all, to distinguish "unknown" from "finished, gone".
	sawRoom := false
	if last, err := metastore.GetLastConnection(ctx, deps.Meta, id.String()); err == nil {
		if last.OrganizationID != orgID {
			return nil, ErrOrgMismatch
		}
		sawRoom = true
	} else if err != metastore.ErrNotFound {
		return nil, rerrors.NewStoreError("edge.resolve.last_connection", err)
	}

	if deps.Recordings != nil {
		renditions, rerr := deps.Recordings.ListRenditions(ctx, id)
		if rerr == nil && len(renditions) > 0 {
			return &playbackTarget{Live: false, RecordingID: id, Renditions: renditions}, nil
		}
	}

	if sawRoom {
		return nil, ErrTargetGone
	}
	return nil, ErrUnknownTarget
}

// liveRenditionManifest loads the live manifest for a (connection,
// rendition). Returns ErrUnknownTarget if the rendition was never
// initialized (e.g. the ladder doesn't include it).
func liveRenditionManifest(ctx context.Context, deps Deps, connID ids.ID, rendition domain.Rendition) (*domain.RenditionManifest, error) {
	m, err := metastore.GetRenditionManifest(ctx, deps.Meta, connID.String(), rendition.String())
	if err != nil {
		if err == metastore.ErrNotFound {
			return nil, ErrUnknownTarget
		}
		return nil, rerrors.NewStoreError("edge.resolve.rendition_manifest", err)
	}
	return m, nil
}
