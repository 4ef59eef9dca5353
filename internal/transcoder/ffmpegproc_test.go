package transcoder

import (
	"strings"
	"testing"

	"github.com/streamforge/live/internal/domain"
)

func contains(args []string, s string) bool {
	for _, a := range args {
		if a == s {
			return true
		}
	}
	return false
}

func TestRenditionArgs_VideoRenditionScalesAndSetsBitrate(t *testing.T) {
	args := renditionArgs(domain.LadderEntry{
		Rendition: domain.RenditionHd, Width: 1280, Height: 720, FPS: 30, BitrateBps: 3_000_000,
	})
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "scale=1280:720") {
		t.Fatalf("expected a scale filter, got %q", joined)
	}
	if !contains(args, "libx264") {
		t.Fatalf("expected libx264 codec, got %q", joined)
	}
	if !contains(args, "3000000") {
		t.Fatalf("expected the bitrate flag value, got %q", joined)
	}
	if !contains(args, "-an") {
		t.Fatalf("video renditions must drop audio, got %q", joined)
	}
}

func TestRenditionArgs_SourceRenditionOmitsScaleFilter(t *testing.T) {
	args := renditionArgs(domain.LadderEntry{Rendition: domain.RenditionSource})
	joined := strings.Join(args, " ")
	if strings.Contains(joined, "-vf") {
		t.Fatalf("source rendition should pass through without a scale filter, got %q", joined)
	}
}

func TestRenditionArgs_AudioRenditionMapsAudioTrackOnly(t *testing.T) {
	args := renditionArgs(domain.LadderEntry{Rendition: domain.RenditionAudioHigh, BitrateBps: 128_000})
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "0:a:0?") {
		t.Fatalf("expected an audio map, got %q", joined)
	}
	if !contains(args, "aac") {
		t.Fatalf("expected aac codec, got %q", joined)
	}
	if contains(args, "libx264") || contains(args, "-an") {
		t.Fatalf("audio rendition must not carry video flags, got %q", joined)
	}
}

func TestFFmpegProcess_OutputUnknownRenditionReturnsFalse(t *testing.T) {
	p := &ffmpegProcess{outputs: map[domain.Rendition]*renditionPipe{}}
	if _, ok := p.Output(domain.RenditionHd); ok {
		t.Fatalf("expected no output for an unclaimed rendition")
	}
}

func TestFFmpegProcess_CloseOnZeroValueIsSafe(t *testing.T) {
	p := &ffmpegProcess{outputs: map[domain.Rendition]*renditionPipe{}}
	p.Close() // must not panic with no cmd/pipes started
}
