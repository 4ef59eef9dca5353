package transcoder

import (
	"testing"

	"github.com/streamforge/live/internal/fmp4"
)

func buildFragment(trackID uint32, defaultFlags uint32, firstSampleFlags uint32, hasFirstFlags bool, durations []uint32, flags []uint32) *fmp4.Fragment {
	samples := make([]fmp4.TrunSample, len(durations))
	for i, d := range durations {
		samples[i] = fmp4.TrunSample{Duration: d, Flags: flags[i]}
	}
	run := fmp4.NewTrackRun(samples, true, false, true, false)
	run.HasFirstSampleFlags = hasFirstFlags
	run.FirstSampleFlags = firstSampleFlags

	traf := &fmp4.TrackFragment{
		Header: (&fmp4.TrackFragmentHeader{TrackID: trackID}).WithDefaultSampleFlags(defaultFlags),
		Runs:   []*fmp4.TrackRun{run},
	}
	moof := &fmp4.MovieFragment{
		Header: &fmp4.MovieFragmentHeader{SequenceNumber: 1},
		Tracks: []*fmp4.TrackFragment{traf},
	}
	return &fmp4.Fragment{MovieFragment: moof, MediaData: &fmp4.MediaData{Data: []byte{0, 1, 2, 3}}}
}

func TestFragmentSamples_SumsDurationsAcrossRun(t *testing.T) {
	keyframeFlags := uint32(0) // depends_on=0 (unknown/none) and is_non_sync=0 -> sync sample
	frag := buildFragment(1, 0, keyframeFlags, true, []uint32{3000, 3000, 3000}, []uint32{keyframeFlags, 0x00010000, 0x00010000})

	samples, total, independent := fragmentSamples(frag, 1)
	if len(samples) != 3 {
		t.Fatalf("sample count = %d, want 3", len(samples))
	}
	if total != 9000 {
		t.Fatalf("total duration = %d, want 9000", total)
	}
	if !independent {
		t.Fatalf("expected the fragment to be reported independent")
	}
}

func TestFragmentSamples_NonKeyframeFirstSampleIsNotIndependent(t *testing.T) {
	// A real inter-frame sets both bits together: depends_on_others and
	// is_non_sync_sample.
	nonSync := uint32(sampleDependsOnOthers | sampleIsNonSync)
	frag := buildFragment(1, 0, nonSync, true, []uint32{3000}, []uint32{nonSync})

	_, _, independent := fragmentSamples(frag, 1)
	if independent {
		t.Fatalf("expected a non-sync first sample to report independent=false")
	}
}

func TestFragmentSamples_FallsBackToTfhdDefaultDuration(t *testing.T) {
	samples := []fmp4.TrunSample{{Duration: 0}, {Duration: 0}}
	run := fmp4.NewTrackRun(samples, true, false, true, false)
	traf := &fmp4.TrackFragment{
		Header: (&fmp4.TrackFragmentHeader{TrackID: 1}).WithDefaultSampleDuration(4000),
		Runs:   []*fmp4.TrackRun{run},
	}
	frag := &fmp4.Fragment{
		MovieFragment: &fmp4.MovieFragment{Header: &fmp4.MovieFragmentHeader{SequenceNumber: 1}, Tracks: []*fmp4.TrackFragment{traf}},
		MediaData:     &fmp4.MediaData{Data: []byte{0}},
	}

	_, total, _ := fragmentSamples(frag, 1)
	if total != 8000 {
		t.Fatalf("total duration = %d, want 8000 (2 samples at the 4000 tfhd default)", total)
	}
}

func TestFragmentSamples_IgnoresTracksWithDifferentTrackID(t *testing.T) {
	frag := buildFragment(1, 0, 0, false, []uint32{100}, []uint32{0})
	samples, total, _ := fragmentSamples(frag, 2) // asking for a track id this fragment doesn't carry
	if len(samples) != 0 || total != 0 {
		t.Fatalf("expected no samples for a non-matching track id, got %d samples, total %d", len(samples), total)
	}
}
