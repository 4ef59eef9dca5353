package domain

import "testing"

func TestLadderEntryForKnownRendition(t *testing.T) {
	entry, ok := LadderEntryFor(RenditionHd)
	if !ok {
		t.Fatalf("expected hd rendition in ladder")
	}
	if entry.Width != 1280 || entry.Height != 720 {
		t.Fatalf("unexpected hd geometry: %dx%d", entry.Width, entry.Height)
	}
}

func TestRenditionIsAudio(t *testing.T) {
	cases := map[Rendition]bool{
		RenditionSource:      false,
		RenditionHd:          false,
		RenditionAudioSource: true,
		RenditionAudioHigh:   true,
		RenditionAudioLow:    true,
	}
	for r, want := range cases {
		if got := r.IsAudio(); got != want {
			t.Errorf("Rendition(%s).IsAudio() = %v, want %v", r, got, want)
		}
	}
}

func TestRenditionManifestZeroValueIsUnfinished(t *testing.T) {
	var m RenditionManifest
	if m.Finished {
		t.Fatalf("zero-value manifest should not be finished")
	}
}
