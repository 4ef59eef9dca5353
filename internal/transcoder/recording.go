package transcoder

import (
	"context"
	"log/slog"

	"github.com/streamforge/live/internal/domain"
	"github.com/streamforge/live/internal/ids"
)

// recordingTap mirrors every part this rendition emits into the recording
// index (§6), once a room's RecordingConfig says to. Each CMAF part the
// Media Store already holds becomes its own recording_segment row — the
// same one-fragment-per-unit simplification the part cutter makes (see
// cutter.go), rather than re-assembling per-CMAF-segment recording files.
type recordingTap struct {
	db             recordingdbClient
	recordingID    ids.ID
	organizationID ids.ID
	rendition      domain.Rendition
	timescale      uint32

	accumTS uint64
}

// recordingdbClient is the subset of *recordingdb.DB the tap calls,
// satisfied directly by Deps.Recordings.
type recordingdbClient interface {
	CreateRecording(ctx context.Context, r *domain.Recording) error
	AppendSegment(ctx context.Context, recordingID ids.ID, rendition string, seg domain.RecordingSegment) error
}

// newRecordingTap resolves the room's recording config and, if enabled,
// registers the rendition's recording row. Returns nil if recording is
// disabled for this room or the config lookup fails — the caller treats a
// nil tap as "don't record," never as an error worth failing the pipeline
// over.
func (p *pipeline) newRecordingTap(ctx context.Context, rendition domain.Rendition, initKey string, timescale uint32) *recordingTap {
	return newRecordingTapWithDB(p, p.deps.Recordings, ctx, rendition, initKey, timescale)
}

// newRecordingTapWithDB is newRecordingTap's body against the narrow
// recordingdbClient interface, split out so tests can substitute a fake in
// place of *recordingdb.DB.
func newRecordingTapWithDB(p *pipeline, db recordingdbClient, ctx context.Context, rendition domain.Rendition, initKey string, timescale uint32) *recordingTap {
	recordingID, orgID, enabled, err := p.deps.Rooms.RecordingConfig(ctx, p.roomID.String())
	if err != nil || !enabled {
		if err != nil {
			p.log.Warn("recording config lookup failed, recording disabled", "error", err)
		}
		return nil
	}
	recID, err := ids.Parse(recordingID)
	if err != nil {
		p.log.Warn("recording config returned unparseable recording id", "recording_id", recordingID, "error", err)
		return nil
	}
	orgIDParsed, err := ids.Parse(orgID)
	if err != nil {
		p.log.Warn("recording config returned unparseable organization id", "organization_id", orgID, "error", err)
		return nil
	}

	rec := &domain.Recording{
		OrganizationID: orgIDParsed,
		RecordingID:    recID,
		Rendition:      rendition,
		InitSegmentKey: initKey,
	}
	if err := db.CreateRecording(ctx, rec); err != nil {
		p.log.Error("create recording row failed", "error", err)
		return nil
	}

	return &recordingTap{
		db:             db,
		recordingID:    recID,
		organizationID: orgIDParsed,
		rendition:      rendition,
		timescale:      timescale,
	}
}

// onPart appends one sealed recording_segment row for the part just
// written to the Media Store. Failures are logged, not propagated: a
// missed recording row never tears down the live pipeline.
func (t *recordingTap) onPart(ctx context.Context, log *slog.Logger, part *domain.Part, key string) {
	startMs := tsToMillis(t.accumTS, t.timescale)
	t.accumTS += part.DurationTS
	endMs := tsToMillis(t.accumTS, t.timescale)

	seg := domain.RecordingSegment{
		Idx:       part.PartIdx,
		ID:        ids.New(),
		StartTime: startMs,
		EndTime:   endMs,
		SizeBytes: int64(len(part.Bytes)),
		S3Key:     key,
	}
	if err := t.db.AppendSegment(ctx, t.recordingID, t.rendition.String(), seg); err != nil {
		log.Error("append recording segment failed", "error", err)
	}
}

func tsToMillis(ts uint64, timescale uint32) int64 {
	if timescale == 0 {
		return 0
	}
	return int64(ts * 1000 / uint64(timescale))
}
