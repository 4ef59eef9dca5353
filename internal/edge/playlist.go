package edge

import (
	"fmt"
	"strings"

	"github.com/streamforge/live/internal/domain"
)

const (
	partTargetSeconds = 0.5
	hlsVersion         = 9
)

// buildMasterPlaylist renders master.m3u8 from a live connection's master
// manifest. Child URIs carry the caller's query string (token + any
// blocking params a player forwards) so the media playlist request is
// authorized the same way the master request was.
func buildMasterPlaylist(master *domain.MasterManifest, rawQuery string) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	fmt.Fprintf(&b, "#EXT-X-VERSION:%d\n", hlsVersion)
	for _, r := range master.Renditions {
		bw := bandwidthEstimate(r.Rendition)
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,NAME=%q\n", bw, r.Rendition.String())
		fmt.Fprintf(&b, "%s%s\n", r.Rendition.String()+".m3u8", withQuery(rawQuery))
	}
	return b.String()
}

// buildVODMasterPlaylist renders master.m3u8 for a sealed recording,
// listing every rendition the recording index has rows for.
func buildVODMasterPlaylist(renditions []string, rawQuery string) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	fmt.Fprintf(&b, "#EXT-X-VERSION:%d\n", hlsVersion)
	for _, r := range renditions {
		rend, err := domain.ParseRendition(r)
		bw := uint64(2_000_000)
		if err == nil {
			bw = bandwidthEstimate(rend)
		}
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,NAME=%q\n", bw, r)
		fmt.Fprintf(&b, "%s%s\n", r+".m3u8", withQuery(rawQuery))
	}
	return b.String()
}

// bandwidthEstimate is a coarse, static per-rendition bitrate used only to
// populate EXT-X-STREAM-INF's mandatory BANDWIDTH attribute; the transcoder's
// bitrateSampler tracks the true measured rate server-side, but players
// only use this value for initial ABR ordering before their own
// measurements kick in.
func bandwidthEstimate(r domain.Rendition) uint64 {
	switch r {
	case domain.RenditionHd:
		return 5_000_000
	case domain.RenditionSd:
		return 2_500_000
	case domain.RenditionLd:
		return 800_000
	case domain.RenditionAudioSource, domain.RenditionAudioHigh:
		return 192_000
	case domain.RenditionAudioLow:
		return 64_000
	default:
		return 6_000_000
	}
}

func withQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	return "?" + rawQuery
}

// buildLiveMediaPlaylist renders a rendition's playlist from its live
// manifest. Every part, including those in already-completed segments, is
// published as its own EXT-X-PART: the store keeps parts as individually
// addressable objects rather than muxing completed segments into one file,
// so there is no single URI a traditional #EXTINF entry could point at.
// Playlist Delta Updates (EXT-X-SKIP) are not implemented, so this always
// returns the full part list; bounding playlist size for long-running
// rooms is left as a known gap (see DESIGN.md).
func buildLiveMediaPlaylist(m *domain.RenditionManifest, partPrefix string) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	fmt.Fprintf(&b, "#EXT-X-VERSION:%d\n", hlsVersion)
	b.WriteString("#EXT-X-TARGETDURATION:2\n")
	fmt.Fprintf(&b, "#EXT-X-PART-INF:PART-TARGET=%.3f\n", partTargetSeconds)
	holdBack := partTargetSeconds * 3
	fmt.Fprintf(&b, "#EXT-X-SERVER-CONTROL:CAN-BLOCK-RELOAD=YES,PART-HOLD-BACK=%.3f\n", holdBack)
	b.WriteString("#EXT-X-MAP:URI=\"init.mp4\"\n")

	firstSeg := uint64(0)
	if len(m.Segments) > 0 {
		firstSeg = m.Segments[0].Idx
	}
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", firstSeg)

	partsBySeg := make(map[uint64][]domain.PartRef)
	for _, p := range m.Parts {
		partsBySeg[p.SegmentIdx] = append(partsBySeg[p.SegmentIdx], p)
	}

	timescale := m.Timescale
	if timescale == 0 {
		timescale = 90000
	}
	for _, seg := range m.Segments {
		for _, p := range partsBySeg[seg.Idx] {
			writePart(&b, p, partPrefix, timescale)
		}
	}
	if m.Finished {
		b.WriteString("#EXT-X-ENDLIST\n")
	} else {
		// preload hint for the next part, standard LL-HLS practice so
		// clients can start the request before the part actually exists.
		fmt.Fprintf(&b, "#EXT-X-PRELOAD-HINT:TYPE=PART,URI=\"%d.m4s\"\n", m.NextPartIdx)
	}
	return b.String()
}

func writePart(b *strings.Builder, p domain.PartRef, partPrefix string, timescale uint32) {
	duration := float64(p.DurationTS) / float64(timescale)
	if duration <= 0 {
		duration = partTargetSeconds
	}
	indep := ""
	if p.Independent {
		indep = ",INDEPENDENT=YES"
	}
	fmt.Fprintf(b, "#EXT-X-PART:DURATION=%.5f,URI=\"%s%d.m4s\"%s\n", duration, partPrefix, p.Idx, indep)
}

// buildVODMediaPlaylist renders a sealed recording's rendition playlist:
// plain EXTINF/URI entries, one per sealed segment, no parts.
func buildVODMediaPlaylist(rec *domain.Recording) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	fmt.Fprintf(&b, "#EXT-X-VERSION:%d\n", hlsVersion)
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")
	b.WriteString("#EXT-X-MAP:URI=\"init.mp4\"\n")
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:0\n")

	maxDuration := 2
	for _, seg := range rec.Segments {
		durSeconds := float64(seg.EndTime-seg.StartTime) / 1000.0
		if int(durSeconds)+1 > maxDuration {
			maxDuration = int(durSeconds) + 1
		}
	}
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", maxDuration)

	for _, seg := range rec.Segments {
		durSeconds := float64(seg.EndTime-seg.StartTime) / 1000.0
		fmt.Fprintf(&b, "#EXTINF:%.3f,\n%d.m4s\n", durSeconds, seg.Idx)
	}
	b.WriteString("#EXT-X-ENDLIST\n")
	return b.String()
}
