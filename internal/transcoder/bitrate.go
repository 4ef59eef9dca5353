package transcoder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/streamforge/live/internal/domain"
	"github.com/streamforge/live/internal/ids"
)

// bitrateSampleInterval is how often an accumulated window is flushed to
// the Meta Store, the cadence the control plane's bitrate-sanity dashboards
// poll at (SPEC_FULL.md §4.2, sourced from the original stream_bitrate_update
// job).
const bitrateSampleInterval = 5 * time.Second

// BitrateSample is the Meta Store value one (connection, rendition) pair's
// bitrate sampler publishes every bitrateSampleInterval.
type BitrateSample struct {
	ConnectionID       ids.ID           `json:"connection_id"`
	Rendition          domain.Rendition `json:"rendition"`
	BitrateBps         int64            `json:"bitrate_bps"`
	SampledAtUnixMilli int64            `json:"sampled_at_unix_milli"`
}

// BitrateKey builds the Meta Store key one rendition's bitrate sample lives
// at. Exported so the control plane (or a future edge debug endpoint) can
// read it with the same layout the sampler writes.
func BitrateKey(connectionID ids.ID, rendition domain.Rendition) string {
	return fmt.Sprintf("bitrate:%s:%s", connectionID.String(), rendition.String())
}

// bitrateSampler accumulates part sizes/durations for one (connection,
// rendition) and periodically derives and publishes a bitrate sample. It
// never retries a failed write: a missed sample just means the dashboard
// goes one window stale, not a pipeline failure.
type bitrateSampler struct {
	deps      Deps
	connID    ids.ID
	rendition domain.Rendition

	accumBytes int64
	accumTS    uint64
	timescale  uint32
}

func newBitrateSampler(deps Deps, roomID, connID ids.ID, rendition domain.Rendition) *bitrateSampler {
	_ = roomID // samples are keyed by connection; room is implicit via the connection's owning room
	return &bitrateSampler{deps: deps, connID: connID, rendition: rendition}
}

// record folds one emitted part into the current window and flushes it once
// the window has accumulated bitrateSampleInterval of track time.
func (b *bitrateSampler) record(sizeBytes int, durationTS uint64, timescale uint32) {
	b.accumBytes += int64(sizeBytes)
	b.accumTS += durationTS
	b.timescale = timescale
	if b.timescale == 0 {
		return
	}
	if time.Duration(b.accumTS)*time.Second/time.Duration(b.timescale) >= bitrateSampleInterval {
		b.flush(context.Background())
	}
}

// flush publishes (and resets) the current window, if it has any data. Safe
// to call on an empty window and safe to call more than once.
func (b *bitrateSampler) flush(ctx context.Context) {
	if b.accumTS == 0 || b.timescale == 0 {
		return
	}
	seconds := float64(b.accumTS) / float64(b.timescale)
	if seconds <= 0 {
		return
	}
	sample := BitrateSample{
		ConnectionID:       b.connID,
		Rendition:          b.rendition,
		BitrateBps:         int64(float64(b.accumBytes*8) / seconds),
		SampledAtUnixMilli: timeNow().UnixMilli(),
	}
	if buf, err := json.Marshal(sample); err == nil {
		_ = b.deps.Meta.Set(ctx, BitrateKey(b.connID, b.rendition), buf)
	}
	b.accumBytes = 0
	b.accumTS = 0
}

// timeNow is the one clock read in this package, isolated so tests can
// override it.
var timeNow = time.Now
