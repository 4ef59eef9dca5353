package recordingdb

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS recordings (
	recording_id     TEXT NOT NULL,
	organization_id  TEXT NOT NULL,
	rendition        TEXT NOT NULL,
	init_segment_key TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (recording_id, rendition)
);

CREATE TABLE IF NOT EXISTS recording_segments (
	id            TEXT PRIMARY KEY,
	recording_id  TEXT NOT NULL,
	rendition     TEXT NOT NULL,
	idx           BIGINT NOT NULL,
	start_time_ms BIGINT NOT NULL,
	end_time_ms   BIGINT NOT NULL,
	size_bytes    BIGINT NOT NULL,
	object_key    TEXT NOT NULL,
	FOREIGN KEY (recording_id, rendition) REFERENCES recordings (recording_id, rendition)
);
CREATE INDEX IF NOT EXISTS recording_segments_by_recording
	ON recording_segments (recording_id, rendition, idx);

CREATE TABLE IF NOT EXISTS recording_thumbnails (
	id            TEXT PRIMARY KEY,
	recording_id  TEXT NOT NULL,
	rendition     TEXT NOT NULL,
	idx           BIGINT NOT NULL,
	start_time_ms BIGINT NOT NULL,
	size_bytes    BIGINT NOT NULL,
	FOREIGN KEY (recording_id, rendition) REFERENCES recordings (recording_id, rendition)
);
CREATE INDEX IF NOT EXISTS recording_thumbnails_by_recording
	ON recording_thumbnails (recording_id, rendition, idx);
`

// Migrate applies the schema idempotently. No migration framework: the
// index is small and additive, matching the teacher pack's preference for
// plain `CREATE TABLE IF NOT EXISTS` over a versioned migrator.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("recordingdb: migrate: %w", err)
	}
	return nil
}
