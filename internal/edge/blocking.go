package edge

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/streamforge/live/internal/domain"
	"github.com/streamforge/live/internal/eventbus"
	"github.com/streamforge/live/internal/ids"
	"github.com/streamforge/live/internal/metastore"
)

// blockingRequest captures the LL-HLS blocking-reload query parameters a
// rendition playlist request can carry (§4.3), plus this module's two
// alternative tokens for callers that want to wait on absolute part
// position rather than (segment, part) pairs:
//
//   - _HLS_msn / _HLS_part: the standard pair. Block until the manifest
//     has produced a part whose (segment_idx, seg_part_idx) > (msn, part).
//   - _SCUF_part: block until the manifest's absolute next part index
//     exceeds N — useful for a client tracking parts continuously across
//     segment boundaries instead of per-segment sequence numbers.
//   - _SCUF_ipart: block until a part more recent than absolute index N
//     has been independent (a keyframe boundary) — useful for a client
//     that only cares about being able to start decoding, not about every
//     intermediate part.
type blockingRequest struct {
	hasMSN bool
	msn    uint64
	part   uint64

	hasSCUFPart bool
	scufPart    uint64

	hasSCUFIPart bool
	scufIPart    uint64
}

func parseBlockingRequest(q url.Values) (blockingRequest, bool) {
	var br blockingRequest
	if v := q.Get("_HLS_msn"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return br, false
		}
		br.hasMSN = true
		br.msn = n
		if p := q.Get("_HLS_part"); p != "" {
			pn, err := strconv.ParseUint(p, 10, 64)
			if err != nil {
				return br, false
			}
			br.part = pn
		}
	}
	if v := q.Get("_SCUF_part"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return br, false
		}
		br.hasSCUFPart = true
		br.scufPart = n
	}
	if v := q.Get("_SCUF_ipart"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return br, false
		}
		br.hasSCUFIPart = true
		br.scufIPart = n
	}
	return br, true
}

// satisfied reports whether m already contains what br is waiting for. A
// request with no blocking tokens is always satisfied (the caller wants
// the playlist as it stands, no reload semantics).
func (br blockingRequest) satisfied(m *domain.RenditionManifest) bool {
	if br.hasMSN {
		if m.NextSegmentIdx > br.msn {
			// fine, later segment already exists
		} else if m.NextSegmentIdx == br.msn && m.NextSegmentPartIdx > br.part {
			// fine, requested part of the current segment exists
		} else {
			return false
		}
	}
	if br.hasSCUFPart && m.NextPartIdx <= br.scufPart {
		return false
	}
	if br.hasSCUFIPart && m.LastIndependentPartIdx <= br.scufIPart {
		return false
	}
	return true
}

// awaitManifest blocks until br is satisfied, the manifest finishes, or cap
// elapses, returning the manifest's latest state either way (the timeout
// case serves "the current manifest" per §4.3's test 4). Wake-ups come from
// a single-writer/many-reader broadcast: the transcoder's manifest writer
// publishes on deps.Bus keyed by the manifest's own Meta Store key
// (metastore.ManifestKey) after every cut, and every blocked reader for
// that key subscribes to the same channel. A slower poll ticker runs
// alongside as a safety net — it covers a nil Bus (no eventbus configured),
// a notify that raced the Meta Store write, and the deps.Bus outage case —
// so blocking correctness never depends on pub/sub delivery.
func awaitManifest(ctx context.Context, deps Deps, connID ids.ID, rendition domain.Rendition, br blockingRequest, blockCap time.Duration) (*domain.RenditionManifest, time.Duration, error) {
	start := time.Now()
	m, err := liveRenditionManifest(ctx, deps, connID, rendition)
	if err != nil {
		return nil, 0, err
	}
	if !br.hasMSN && !br.hasSCUFPart && !br.hasSCUFIPart {
		return m, 0, nil
	}
	if br.satisfied(m) || m.Finished {
		return m, time.Since(start), nil
	}

	var notify <-chan eventbus.Event
	if deps.Bus != nil {
		channel := metastore.ManifestKey(connID.String(), rendition.String())
		if sub, err := deps.Bus.Subscribe(ctx, channel); err == nil {
			defer sub.Close()
			notify = sub.Events()
		}
	}

	deadline := start.Add(blockCap)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	refresh := func() (bool, error) {
		next, err := liveRenditionManifest(ctx, deps, connID, rendition)
		if err == nil {
			m = next
		} else if err != metastore.ErrNotFound {
			return false, err
		}
		return br.satisfied(m) || m.Finished || time.Now().After(deadline), nil
	}
	for {
		select {
		case <-ctx.Done():
			return m, time.Since(start), ctx.Err()
		case <-notify:
			if done, err := refresh(); err != nil {
				return m, time.Since(start), err
			} else if done {
				return m, time.Since(start), nil
			}
		case <-ticker.C:
			if done, err := refresh(); err != nil {
				return m, time.Since(start), err
			} else if done {
				return m, time.Since(start), nil
			}
		}
	}
}
