package fmp4

import (
	"bytes"
	"testing"
)

func buildSampleInitSegment() *InitSegment {
	avcc := &AVCConfigurationBox{Record: []byte{0x01, 0x64, 0x00, 0x1F, 0xFF, 0xE1, 0x00, 0x00, 0x01, 0x00, 0x00}}
	visual := &VisualSampleEntry{
		CodecName:   "avc1",
		Width:       1280,
		Height:      720,
		CodecConfig: avcc.Mux(),
	}
	sd := &SampleDescription{Visual: visual}
	stbl := NewEmptySampleTable(sd)
	minf := &MediaInformation{VideoHeader: &VideoMediaHeader{}, SampleTable: stbl}
	mdia := &Media{
		Header:           &MediaHeader{Timescale: 90000, Language: "und"},
		Handler:          &HandlerRef{HandlerType: "vide", Name: "VideoHandler"},
		MediaInformation: minf,
	}
	trak := &Track{
		Header: &TrackHeader{TrackID: 1, Width: 1280 << 16, Height: 720 << 16},
		Media:  mdia,
	}
	moov := &Movie{
		Header: &MovieHeader{Timescale: 1000, NextTrackID: 2},
		Tracks: []*Track{trak},
		Extends: &MovieExtends{
			Tracks: []*TrackExtends{{TrackID: 1, DefaultSampleDescriptionIndex: 1}},
		},
	}
	return &InitSegment{
		FileType: &FileType{MajorBrand: "iso5", MinorVersion: 512, CompatibleBrands: []string{"iso5", "iso6", "mp41"}},
		Movie:    moov,
	}
}

func TestInitSegmentRoundTrip(t *testing.T) {
	init := buildSampleInitSegment()
	encoded := init.Mux()

	parsed, consumed, err := DemuxInitSegment(encoded)
	if err != nil {
		t.Fatalf("DemuxInitSegment: %v", err)
	}
	if consumed != len(encoded) {
		t.Fatalf("consumed %d, want %d", consumed, len(encoded))
	}
	if parsed.FileType.MajorBrand != "iso5" {
		t.Fatalf("major brand mismatch: %q", parsed.FileType.MajorBrand)
	}
	if len(parsed.Movie.Tracks) != 1 {
		t.Fatalf("expected 1 track, got %d", len(parsed.Movie.Tracks))
	}
	reencoded := parsed.Mux()
	if !bytes.Equal(reencoded, encoded) {
		t.Fatalf("round trip mismatch: got %d bytes want %d bytes", len(reencoded), len(encoded))
	}
}

func buildSampleFragment() *Fragment {
	tfhd := (&TrackFragmentHeader{TrackID: 1, DefaultBaseIsMoof: true}).
		WithDefaultSampleDuration(3000).
		WithDefaultSampleFlags(0x01010000)
	tfdt := &TrackFragmentDecodeTime{BaseMediaDecodeTime: 270000}
	run := NewTrackRun([]TrunSample{
		{Size: 1200, Flags: 0x02000000},
		{Size: 800},
		{Size: 750},
	}, false, true, true, false)
	run.SetDataOffset(0) // patched after moof size is known, in a real muxer

	traf := &TrackFragment{Header: tfhd, DecodeTime: tfdt, Runs: []*TrackRun{run}}
	moof := &MovieFragment{Header: &MovieFragmentHeader{SequenceNumber: 7}, Tracks: []*TrackFragment{traf}}
	mdat := &MediaData{Data: bytes.Repeat([]byte{0xAB}, 1200+800+750)}
	return &Fragment{MovieFragment: moof, MediaData: mdat}
}

func TestFragmentRoundTrip(t *testing.T) {
	frag := buildSampleFragment()
	encoded := frag.Mux()

	parsed, consumed, err := DemuxFragment(encoded)
	if err != nil {
		t.Fatalf("DemuxFragment: %v", err)
	}
	if consumed != len(encoded) {
		t.Fatalf("consumed %d, want %d", consumed, len(encoded))
	}
	if parsed.MovieFragment.Header.SequenceNumber != 7 {
		t.Fatalf("sequence number mismatch: %d", parsed.MovieFragment.Header.SequenceNumber)
	}
	if len(parsed.MovieFragment.Tracks) != 1 || len(parsed.MovieFragment.Tracks[0].Runs[0].Samples) != 3 {
		t.Fatalf("unexpected track fragment structure")
	}
	reencoded := parsed.Mux()
	if !bytes.Equal(reencoded, encoded) {
		t.Fatalf("round trip mismatch: got %d bytes want %d bytes", len(reencoded), len(encoded))
	}
}

func TestESDescriptorASCRoundTrip(t *testing.T) {
	asc := []byte{0x12, 0x10} // AAC-LC, 44100Hz, stereo
	descr := BuildESDescriptor(asc, 6144, 128000, 128000)
	extracted, err := ASCFromESDescriptor(descr)
	if err != nil {
		t.Fatalf("ASCFromESDescriptor: %v", err)
	}
	if !bytes.Equal(extracted, asc) {
		t.Fatalf("asc mismatch: got %x want %x", extracted, asc)
	}
}

func TestBoxSizeMatchesMuxLength(t *testing.T) {
	init := buildSampleInitSegment()
	if got, want := len(init.FileType.Mux()), init.FileType.Size(); got != want {
		t.Fatalf("ftyp size mismatch: mux=%d size()=%d", got, want)
	}
	if got, want := len(init.Movie.Mux()), init.Movie.Size(); got != want {
		t.Fatalf("moov size mismatch: mux=%d size()=%d", got, want)
	}
	frag := buildSampleFragment()
	if got, want := len(frag.MovieFragment.Mux()), frag.MovieFragment.Size(); got != want {
		t.Fatalf("moof size mismatch: mux=%d size()=%d", got, want)
	}
}
