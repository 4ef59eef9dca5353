// Package recordingdb is the durable Postgres-backed index of recordings,
// recording_segment, and recording_thumbnail rows (§6). The Media Store
// holds the bytes; this package holds the queryable metadata pointing at
// them.
package recordingdb

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streamforge/live/internal/domain"
	"github.com/streamforge/live/internal/ids"
)

// DB is the recording index, backed by a pgx connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// Config configures the pool dial.
type Config struct {
	DSN                 string
	MaxConnections      int32
	MinConnections      int32
	MaxConnLifetime     time.Duration
	MaxConnIdleTime     time.Duration
	HealthCheckInterval time.Duration
}

// Open dials the pool and runs Migrate.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("recordingdb: parse dsn: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("recordingdb: open pool: %w", err)
	}
	db := &DB{pool: pool}
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the pool.
func (db *DB) Close() { db.pool.Close() }

// Ping checks connectivity.
func (db *DB) Ping(ctx context.Context) error { return db.pool.Ping(ctx) }

func (db *DB) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("recordingdb: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("recordingdb: commit: %w", err)
	}
	return nil
}

// CreateRecording inserts the row for a freshly started recording.
func (db *DB) CreateRecording(ctx context.Context, r *domain.Recording) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO recordings (recording_id, organization_id, rendition, init_segment_key)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (recording_id, rendition) DO NOTHING`,
		r.RecordingID.String(), r.OrganizationID.String(), r.Rendition.String(), r.InitSegmentKey)
	if err != nil {
		return fmt.Errorf("recordingdb: create recording: %w", err)
	}
	return nil
}

// AppendSegment inserts one sealed recording_segment row within a
// transaction, so a crash mid-write never leaves a segment indexed without
// its bytes having been durably stored first (the caller writes to the
// Media Store before calling this).
func (db *DB) AppendSegment(ctx context.Context, recordingID ids.ID, rendition string, seg domain.RecordingSegment) error {
	return db.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO recording_segments
				(id, recording_id, rendition, idx, start_time_ms, end_time_ms, size_bytes, object_key)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING`,
			seg.ID.String(), recordingID.String(), rendition, seg.Idx,
			seg.StartTime, seg.EndTime, seg.SizeBytes, seg.S3Key)
		if err != nil {
			return fmt.Errorf("recordingdb: append segment: %w", err)
		}
		return nil
	})
}

// AppendThumbnail inserts one sealed recording_thumbnail row.
func (db *DB) AppendThumbnail(ctx context.Context, recordingID ids.ID, rendition string, thumb domain.RecordingThumbnail) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO recording_thumbnails (id, recording_id, rendition, idx, start_time_ms, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		thumb.ID.String(), recordingID.String(), rendition, thumb.Idx, thumb.StartTime, thumb.SizeBytes)
	if err != nil {
		return fmt.Errorf("recordingdb: append thumbnail: %w", err)
	}
	return nil
}

// GetRecording loads a recording and all of its segments/thumbnails for one
// rendition.
func (db *DB) GetRecording(ctx context.Context, recordingID ids.ID, rendition string) (*domain.Recording, error) {
	var rec domain.Recording
	var recIDStr, orgIDStr, renditionStr string
	err := db.pool.QueryRow(ctx, `
		SELECT recording_id, organization_id, rendition, init_segment_key
		FROM recordings WHERE recording_id = $1 AND rendition = $2`,
		recordingID.String(), rendition,
	).Scan(&recIDStr, &orgIDStr, &renditionStr, &rec.InitSegmentKey)
	if err != nil {
		return nil, fmt.Errorf("recordingdb: get recording: %w", err)
	}
	if rec.RecordingID, err = ids.Parse(recIDStr); err != nil {
		return nil, fmt.Errorf("recordingdb: parse recording_id: %w", err)
	}
	if rec.OrganizationID, err = ids.Parse(orgIDStr); err != nil {
		return nil, fmt.Errorf("recordingdb: parse organization_id: %w", err)
	}
	rec.Rendition = parseRendition(renditionStr)

	segRows, err := db.pool.Query(ctx, `
		SELECT id, idx, start_time_ms, end_time_ms, size_bytes, object_key
		FROM recording_segments WHERE recording_id = $1 AND rendition = $2 ORDER BY idx ASC`,
		recordingID.String(), rendition)
	if err != nil {
		return nil, fmt.Errorf("recordingdb: list segments: %w", err)
	}
	defer segRows.Close()
	for segRows.Next() {
		var seg domain.RecordingSegment
		var idStr string
		if err := segRows.Scan(&idStr, &seg.Idx, &seg.StartTime, &seg.EndTime, &seg.SizeBytes, &seg.S3Key); err != nil {
			return nil, fmt.Errorf("recordingdb: scan segment: %w", err)
		}
		if seg.ID, err = ids.Parse(idStr); err != nil {
			return nil, fmt.Errorf("recordingdb: parse segment id: %w", err)
		}
		rec.Segments = append(rec.Segments, seg)
	}
	if err := segRows.Err(); err != nil {
		return nil, fmt.Errorf("recordingdb: segment rows: %w", err)
	}

	thumbRows, err := db.pool.Query(ctx, `
		SELECT id, idx, start_time_ms, size_bytes
		FROM recording_thumbnails WHERE recording_id = $1 AND rendition = $2 ORDER BY idx ASC`,
		recordingID.String(), rendition)
	if err != nil {
		return nil, fmt.Errorf("recordingdb: list thumbnails: %w", err)
	}
	defer thumbRows.Close()
	for thumbRows.Next() {
		var thumb domain.RecordingThumbnail
		var idStr string
		if err := thumbRows.Scan(&idStr, &thumb.Idx, &thumb.StartTime, &thumb.SizeBytes); err != nil {
			return nil, fmt.Errorf("recordingdb: scan thumbnail: %w", err)
		}
		if thumb.ID, err = ids.Parse(idStr); err != nil {
			return nil, fmt.Errorf("recordingdb: parse thumbnail id: %w", err)
		}
		rec.Thumbnails = append(rec.Thumbnails, thumb)
	}
	if err := thumbRows.Err(); err != nil {
		return nil, fmt.Errorf("recordingdb: thumbnail rows: %w", err)
	}
	return &rec, nil
}

// ListRenditions returns every rendition a recording has a row for, so a
// caller can build a playback tree without already knowing the room's
// ladder (the ladder may have changed since the recording was made).
func (db *DB) ListRenditions(ctx context.Context, recordingID ids.ID) ([]string, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT rendition FROM recordings WHERE recording_id = $1 ORDER BY rendition ASC`,
		recordingID.String())
	if err != nil {
		return nil, fmt.Errorf("recordingdb: list renditions: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("recordingdb: scan rendition: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recordingdb: rendition rows: %w", err)
	}
	return out, nil
}

func parseRendition(s string) domain.Rendition {
	for _, e := range domain.DefaultLadder {
		if e.Rendition.String() == s {
			return e.Rendition
		}
	}
	return domain.RenditionSource
}
