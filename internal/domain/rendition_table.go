package domain

// LadderEntry is the fixed canonical target for one Rendition: the
// width/height/fps/bitrate/codec-hint tuple the transcoder's FFmpeg encode
// ladder is configured from. Folded in from the original stream_variant
// concept, which keeps this as a first-class row rather than an implicit
// constant.
type LadderEntry struct {
	Rendition  Rendition
	Width      int
	Height     int
	FPS        int
	BitrateBps int
	CodecHint  string // "avc1", "hev1" for video; "mp4a" for audio
}

// DefaultLadder is the canonical per-room rendition ladder. A room's
// transcoding_config_id may narrow this to a subset; the table itself is
// fixed.
var DefaultLadder = []LadderEntry{
	{Rendition: RenditionSource, Width: 0, Height: 0, FPS: 0, BitrateBps: 0, CodecHint: "avc1"}, // 0 = passthrough of publisher geometry
	{Rendition: RenditionHd, Width: 1280, Height: 720, FPS: 30, BitrateBps: 3_000_000, CodecHint: "avc1"},
	{Rendition: RenditionSd, Width: 854, Height: 480, FPS: 30, BitrateBps: 1_200_000, CodecHint: "avc1"},
	{Rendition: RenditionLd, Width: 640, Height: 360, FPS: 30, BitrateBps: 600_000, CodecHint: "avc1"},
	{Rendition: RenditionAudioSource, BitrateBps: 0, CodecHint: "mp4a"},
	{Rendition: RenditionAudioHigh, BitrateBps: 128_000, CodecHint: "mp4a"},
	{Rendition: RenditionAudioLow, BitrateBps: 64_000, CodecHint: "mp4a"},
}

// LadderEntryFor looks up the canonical target for a rendition.
func LadderEntryFor(r Rendition) (LadderEntry, bool) {
	for _, e := range DefaultLadder {
		if e.Rendition == r {
			return e, true
		}
	}
	return LadderEntry{}, false
}
