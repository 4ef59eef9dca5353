// Package domain holds the core data model shared across Ingest,
// Transcoder, and Edge: Room, Connection, Rendition, Track, Part, Segment,
// live manifests, and Recording.
package domain

import (
	"fmt"

	"github.com/streamforge/live/internal/ids"
)

// RoomStatus is the control-plane lifecycle state of a Room.
type RoomStatus int

const (
	RoomStatusOffline RoomStatus = iota
	RoomStatusWaitingForTranscoder
	RoomStatusReady
)

func (s RoomStatus) String() string {
	switch s {
	case RoomStatusOffline:
		return "offline"
	case RoomStatusWaitingForTranscoder:
		return "waiting_for_transcoder"
	case RoomStatusReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Room is the control-plane input describing a stream destination. Rooms
// are owned externally; this pipeline only reads them.
type Room struct {
	ID                  ids.ID
	OrganizationID      ids.ID
	StreamKey           string
	TranscodingConfigID *ids.ID
	RecordingConfigID   *ids.ID
	Status              RoomStatus
}

// Connection is a single publisher session, owned by ingest for its
// lifetime. A connection_id is never reused.
type Connection struct {
	ID                   ids.ID
	RoomID               ids.ID
	OrganizationID       ids.ID
	StartedAtUnixMilli    int64
	TranscoderID         *string
	BytesInSinceKeyframe uint64
	LastKeyframeAtUnixMilli int64
}

// Rendition is the closed set of output qualities a room's ladder can
// produce.
type Rendition int

const (
	RenditionSource Rendition = iota
	RenditionHd
	RenditionSd
	RenditionLd
	RenditionAudioSource
	RenditionAudioHigh
	RenditionAudioLow
)

func (r Rendition) String() string {
	switch r {
	case RenditionSource:
		return "source"
	case RenditionHd:
		return "hd"
	case RenditionSd:
		return "sd"
	case RenditionLd:
		return "ld"
	case RenditionAudioSource:
		return "audio_source"
	case RenditionAudioHigh:
		return "audio_high"
	case RenditionAudioLow:
		return "audio_low"
	default:
		return "unknown"
	}
}

// IsAudio reports whether this rendition carries an audio-only track.
func (r Rendition) IsAudio() bool {
	switch r {
	case RenditionAudioSource, RenditionAudioHigh, RenditionAudioLow:
		return true
	default:
		return false
	}
}

// ParseRendition is String's inverse. Returns an error for any name not in
// the closed rendition set, so a caller parsing an untrusted path segment
// (edge's {rendition} route param) can reject it rather than silently
// falling back to a default.
func ParseRendition(s string) (Rendition, error) {
	for r := RenditionSource; r <= RenditionAudioLow; r++ {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("domain: unknown rendition %q", s)
}

// PartKeyPrefix is the Media Store key prefix shared by one
// (connection, rendition)'s init segment and every part it cuts. Edge and
// Transcoder must agree on this layout exactly, the same way they agree on
// ManifestKey.
func PartKeyPrefix(connID ids.ID, r Rendition) string {
	return fmt.Sprintf("parts/%s/%s", connID.String(), r.String())
}

// PartObjectKey is the Media Store key for one cut part.
func PartObjectKey(connID ids.ID, r Rendition, partIdx uint64) string {
	return fmt.Sprintf("%s/%d.m4s", PartKeyPrefix(connID, r), partIdx)
}

// InitObjectKey is the Media Store key for a rendition's init segment.
func InitObjectKey(connID ids.ID, r Rendition) string {
	return PartKeyPrefix(connID, r) + "/init.mp4"
}

// TimeBase is the rational clock of a track's MP4 timescale.
type TimeBase struct {
	Num uint32
	Den uint32
}

// Track is the per-(connection, rendition) sample clock and init segment
// state, owned by exactly one transcoder for the connection's lifetime.
type Track struct {
	ConnectionID             ids.ID
	Rendition                Rendition
	CodecTag                 string
	InitSegmentBytes         []byte
	TimeBase                 TimeBase
	NextPartIdx              uint64
	NextSegmentIdx           uint64
	NextSegmentPartIdx       uint64
	LastIndependentPartIdx   uint64
}

// Part is one CMAF chunk: the unit the part cutter emits and the unit Edge
// serves at `.m4s`.
type Part struct {
	ConnectionID    ids.ID
	Rendition       Rendition
	PartIdx         uint64
	SegmentIdx      uint64
	SegmentPartIdx  uint64
	DurationTS      uint64
	Independent     bool
	Bytes           []byte
}

// Segment is an ordered run of parts starting at an independent part.
type Segment struct {
	ConnectionID ids.ID
	Rendition    Rendition
	SegmentIdx   uint64
	PartIdxStart uint64
	PartIdxEnd   uint64 // inclusive
}

// PartRef is the manifest's lightweight reference to one part, enough for
// edge to build an HLS playlist entry without re-reading the full part.
type PartRef struct {
	Idx         uint64
	SegmentIdx  uint64
	SegPartIdx  uint64
	DurationTS  uint64
	Independent bool
	Key         string
}

// SegRef is the manifest's reference to one completed segment.
type SegRef struct {
	Idx          uint64
	PartIdxStart uint64
	PartIdxEnd   uint64
}

// RenditionManifest is the live, single-writer-per-key manifest stored in
// the Meta Store for one (connection, rendition).
type RenditionManifest struct {
	ConnectionID           ids.ID
	Rendition              Rendition
	InitKey                string
	Parts                  []PartRef
	Segments               []SegRef
	NextPartIdx            uint64
	NextSegmentIdx         uint64
	NextSegmentPartIdx     uint64
	LastIndependentPartIdx uint64
	Timescale              uint32
	Finished               bool
}

// MasterManifest lists the rendition manifest keys and timescales for a
// connection, the root of the playback tree.
type MasterManifest struct {
	ConnectionID ids.ID
	Renditions   []RenditionRef
	Finished     bool
}

// RenditionRef points at one rendition's manifest key within the master.
type RenditionRef struct {
	Rendition Rendition
	ManifestKey string
	Timescale   uint32
}

// RecordingSegment is a sealed, durable segment row.
type RecordingSegment struct {
	Idx       uint64
	ID        ids.ID
	StartTime int64 // unix millis
	EndTime   int64
	SizeBytes int64
	S3Key     string
}

// RecordingThumbnail is a sealed, durable thumbnail row.
type RecordingThumbnail struct {
	Idx       uint64
	ID        ids.ID
	StartTime int64
	SizeBytes int64
}

// Recording is the durable object-store artifact for a room's recording
// config, one per rendition.
type Recording struct {
	OrganizationID ids.ID
	RecordingID    ids.ID
	Rendition      Rendition
	Segments       []RecordingSegment
	Thumbnails     []RecordingThumbnail
	InitSegmentKey string
}
