package fmp4

import "fmt"

// MovieFragmentHeader is the mfhd box: the fragment sequence number.
type MovieFragmentHeader struct {
	SequenceNumber uint32
}

func DemuxMovieFragmentHeader(payload []byte) (*MovieFragmentHeader, error) {
	r := newBoxReader(payload)
	if _, err := r.u32(); err != nil {
		return nil, err
	}
	seq, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("fmp4: mfhd sequence_number: %w", err)
	}
	return &MovieFragmentHeader{SequenceNumber: seq}, nil
}

func (m *MovieFragmentHeader) Size() int { return 8 + 4 + 4 }
func (m *MovieFragmentHeader) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(m.Size()), "mfhd")
	w.u32(0)
	w.u32(m.SequenceNumber)
	return w.bytes()
}

// tfhd flags bits (ISO/IEC 14496-12 §8.8.7).
const (
	tfhdBaseDataOffsetPresent       = 0x000001
	tfhdSampleDescriptionIndexPresent = 0x000002
	tfhdDefaultSampleDurationPresent = 0x000008
	tfhdDefaultSampleSizePresent    = 0x000010
	tfhdDefaultSampleFlagsPresent   = 0x000020
	tfhdDurationIsEmpty             = 0x010000
	tfhdDefaultBaseIsMoof           = 0x020000
)

// TrackFragmentHeader is the tfhd box.
type TrackFragmentHeader struct {
	TrackID                 uint32
	BaseDataOffset          uint64
	SampleDescriptionIndex  uint32
	DefaultSampleDuration   uint32
	DefaultSampleSize       uint32
	DefaultSampleFlags      uint32
	DurationIsEmpty         bool
	DefaultBaseIsMoof       bool

	hasBaseDataOffset bool
	hasSampleDescIdx  bool
	hasDefaultDur     bool
	hasDefaultSize    bool
	hasDefaultFlags   bool
}

func DemuxTrackFragmentHeader(payload []byte) (*TrackFragmentHeader, error) {
	r := newBoxReader(payload)
	if _, err := r.u8(); err != nil {
		return nil, err
	}
	flags, err := r.u24()
	if err != nil {
		return nil, err
	}
	t := &TrackFragmentHeader{
		DurationIsEmpty:   flags&tfhdDurationIsEmpty != 0,
		DefaultBaseIsMoof: flags&tfhdDefaultBaseIsMoof != 0,
	}
	if t.TrackID, err = r.u32(); err != nil {
		return nil, fmt.Errorf("fmp4: tfhd track_ID: %w", err)
	}
	if flags&tfhdBaseDataOffsetPresent != 0 {
		t.hasBaseDataOffset = true
		if t.BaseDataOffset, err = r.u64(); err != nil {
			return nil, err
		}
	}
	if flags&tfhdSampleDescriptionIndexPresent != 0 {
		t.hasSampleDescIdx = true
		if t.SampleDescriptionIndex, err = r.u32(); err != nil {
			return nil, err
		}
	}
	if flags&tfhdDefaultSampleDurationPresent != 0 {
		t.hasDefaultDur = true
		if t.DefaultSampleDuration, err = r.u32(); err != nil {
			return nil, err
		}
	}
	if flags&tfhdDefaultSampleSizePresent != 0 {
		t.hasDefaultSize = true
		if t.DefaultSampleSize, err = r.u32(); err != nil {
			return nil, err
		}
	}
	if flags&tfhdDefaultSampleFlagsPresent != 0 {
		t.hasDefaultFlags = true
		if t.DefaultSampleFlags, err = r.u32(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *TrackFragmentHeader) flags() uint32 {
	var f uint32
	if t.hasBaseDataOffset {
		f |= tfhdBaseDataOffsetPresent
	}
	if t.hasSampleDescIdx {
		f |= tfhdSampleDescriptionIndexPresent
	}
	if t.hasDefaultDur {
		f |= tfhdDefaultSampleDurationPresent
	}
	if t.hasDefaultSize {
		f |= tfhdDefaultSampleSizePresent
	}
	if t.hasDefaultFlags {
		f |= tfhdDefaultSampleFlagsPresent
	}
	if t.DurationIsEmpty {
		f |= tfhdDurationIsEmpty
	}
	if t.DefaultBaseIsMoof {
		f |= tfhdDefaultBaseIsMoof
	}
	return f
}

// WithDefaultSampleDuration sets the default sample duration field present flag.
func (t *TrackFragmentHeader) WithDefaultSampleDuration(d uint32) *TrackFragmentHeader {
	t.hasDefaultDur = true
	t.DefaultSampleDuration = d
	return t
}

// WithDefaultSampleFlags sets the default sample flags field present flag.
func (t *TrackFragmentHeader) WithDefaultSampleFlags(f uint32) *TrackFragmentHeader {
	t.hasDefaultFlags = true
	t.DefaultSampleFlags = f
	return t
}

func (t *TrackFragmentHeader) Size() int {
	n := 8 + 4 + 4
	if t.hasBaseDataOffset {
		n += 8
	}
	if t.hasSampleDescIdx {
		n += 4
	}
	if t.hasDefaultDur {
		n += 4
	}
	if t.hasDefaultSize {
		n += 4
	}
	if t.hasDefaultFlags {
		n += 4
	}
	return n
}

func (t *TrackFragmentHeader) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(t.Size()), "tfhd")
	w.u8(0)
	w.u24(t.flags())
	w.u32(t.TrackID)
	if t.hasBaseDataOffset {
		w.u64(t.BaseDataOffset)
	}
	if t.hasSampleDescIdx {
		w.u32(t.SampleDescriptionIndex)
	}
	if t.hasDefaultDur {
		w.u32(t.DefaultSampleDuration)
	}
	if t.hasDefaultSize {
		w.u32(t.DefaultSampleSize)
	}
	if t.hasDefaultFlags {
		w.u32(t.DefaultSampleFlags)
	}
	return w.bytes()
}

// TrackFragmentDecodeTime is the tfdt box: the track's absolute decode time
// at the start of this fragment, in track timescale units. Always version 1
// (64-bit) here since live ingest can run for arbitrarily long.
type TrackFragmentDecodeTime struct {
	BaseMediaDecodeTime uint64
}

func DemuxTrackFragmentDecodeTime(payload []byte) (*TrackFragmentDecodeTime, error) {
	r := newBoxReader(payload)
	version, err := r.u8()
	if err != nil {
		return nil, err
	}
	if _, err := r.u24(); err != nil {
		return nil, err
	}
	t := &TrackFragmentDecodeTime{}
	if version == 1 {
		if t.BaseMediaDecodeTime, err = r.u64(); err != nil {
			return nil, err
		}
	} else {
		v, err := r.u32()
		if err != nil {
			return nil, err
		}
		t.BaseMediaDecodeTime = uint64(v)
	}
	return t, nil
}

func (t *TrackFragmentDecodeTime) Size() int { return 8 + 4 + 8 }
func (t *TrackFragmentDecodeTime) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(t.Size()), "tfdt")
	w.u8(1)
	w.u24(0)
	w.u64(t.BaseMediaDecodeTime)
	return w.bytes()
}

// trun flags bits (ISO/IEC 14496-12 §8.8.8).
const (
	trunDataOffsetPresent       = 0x000001
	trunFirstSampleFlagsPresent = 0x000004
	trunSampleDurationPresent   = 0x000100
	trunSampleSizePresent       = 0x000200
	trunSampleFlagsPresent      = 0x000400
	trunSampleCompTimeOffset    = 0x000800
)

// TrunSample is one sample entry in a trun box.
type TrunSample struct {
	Duration    uint32
	Size        uint32
	Flags       uint32
	CompTimeOffset int32
}

// TrackRun is the trun box: per-sample durations/sizes/flags for one
// fragment run.
type TrackRun struct {
	DataOffset       int32
	HasDataOffset    bool
	FirstSampleFlags uint32
	HasFirstSampleFlags bool
	Samples          []TrunSample

	hasDuration  bool
	hasSize      bool
	hasFlags     bool
	hasCompTime  bool
}

// NewTrackRun builds a trun that carries the given fields for every sample.
func NewTrackRun(samples []TrunSample, withDuration, withSize, withFlags, withCompTime bool) *TrackRun {
	return &TrackRun{
		Samples:     samples,
		hasDuration: withDuration,
		hasSize:     withSize,
		hasFlags:    withFlags,
		hasCompTime: withCompTime,
	}
}

func DemuxTrackRun(payload []byte) (*TrackRun, error) {
	r := newBoxReader(payload)
	if _, err := r.u8(); err != nil {
		return nil, err
	}
	flags, err := r.u24()
	if err != nil {
		return nil, err
	}
	sampleCount, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("fmp4: trun sample_count: %w", err)
	}
	t := &TrackRun{
		hasDuration: flags&trunSampleDurationPresent != 0,
		hasSize:     flags&trunSampleSizePresent != 0,
		hasFlags:    flags&trunSampleFlagsPresent != 0,
		hasCompTime: flags&trunSampleCompTimeOffset != 0,
	}
	if flags&trunDataOffsetPresent != 0 {
		t.HasDataOffset = true
		v, err := r.u32()
		if err != nil {
			return nil, err
		}
		t.DataOffset = int32(v)
	}
	if flags&trunFirstSampleFlagsPresent != 0 {
		t.HasFirstSampleFlags = true
		if t.FirstSampleFlags, err = r.u32(); err != nil {
			return nil, err
		}
	}
	for i := uint32(0); i < sampleCount; i++ {
		var s TrunSample
		if t.hasDuration {
			if s.Duration, err = r.u32(); err != nil {
				return nil, err
			}
		}
		if t.hasSize {
			if s.Size, err = r.u32(); err != nil {
				return nil, err
			}
		}
		if t.hasFlags {
			if s.Flags, err = r.u32(); err != nil {
				return nil, err
			}
		}
		if t.hasCompTime {
			v, err := r.u32()
			if err != nil {
				return nil, err
			}
			s.CompTimeOffset = int32(v)
		}
		t.Samples = append(t.Samples, s)
	}
	return t, nil
}

func (t *TrackRun) flags() uint32 {
	var f uint32
	if t.HasDataOffset {
		f |= trunDataOffsetPresent
	}
	if t.HasFirstSampleFlags {
		f |= trunFirstSampleFlagsPresent
	}
	if t.hasDuration {
		f |= trunSampleDurationPresent
	}
	if t.hasSize {
		f |= trunSampleSizePresent
	}
	if t.hasFlags {
		f |= trunSampleFlagsPresent
	}
	if t.hasCompTime {
		f |= trunSampleCompTimeOffset
	}
	return f
}

func (t *TrackRun) Size() int {
	n := 8 + 4 + 4
	if t.HasDataOffset {
		n += 4
	}
	if t.HasFirstSampleFlags {
		n += 4
	}
	per := 0
	if t.hasDuration {
		per += 4
	}
	if t.hasSize {
		per += 4
	}
	if t.hasFlags {
		per += 4
	}
	if t.hasCompTime {
		per += 4
	}
	return n + per*len(t.Samples)
}

// SetDataOffset sets the data_offset field (byte offset from the start of
// the moof box to this run's first sample in the sibling mdat).
func (t *TrackRun) SetDataOffset(off int32) {
	t.HasDataOffset = true
	t.DataOffset = off
}

func (t *TrackRun) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(t.Size()), "trun")
	w.u8(0)
	w.u24(t.flags())
	w.u32(uint32(len(t.Samples)))
	if t.HasDataOffset {
		w.u32(uint32(t.DataOffset))
	}
	if t.HasFirstSampleFlags {
		w.u32(t.FirstSampleFlags)
	}
	for _, s := range t.Samples {
		if t.hasDuration {
			w.u32(s.Duration)
		}
		if t.hasSize {
			w.u32(s.Size)
		}
		if t.hasFlags {
			w.u32(s.Flags)
		}
		if t.hasCompTime {
			w.u32(uint32(s.CompTimeOffset))
		}
	}
	return w.bytes()
}

// TrackFragment is the traf box: tfhd + tfdt + one or more trun.
type TrackFragment struct {
	Header      *TrackFragmentHeader
	DecodeTime  *TrackFragmentDecodeTime
	Runs        []*TrackRun
}

func DemuxTrackFragment(payload []byte) (*TrackFragment, error) {
	children, order, err := ReadChildren(payload)
	if err != nil {
		return nil, err
	}
	tf := &TrackFragment{}
	for _, typ := range order {
		switch typ {
		case "tfhd":
			h, err := DemuxTrackFragmentHeader(children[typ])
			if err != nil {
				return nil, err
			}
			tf.Header = h
		case "tfdt":
			d, err := DemuxTrackFragmentDecodeTime(children[typ])
			if err != nil {
				return nil, err
			}
			tf.DecodeTime = d
		case "trun":
			run, err := DemuxTrackRun(children[typ])
			if err != nil {
				return nil, err
			}
			tf.Runs = append(tf.Runs, run)
		}
	}
	if tf.Header == nil {
		return nil, fmt.Errorf("fmp4: traf missing tfhd")
	}
	return tf, nil
}

func (tf *TrackFragment) Size() int {
	n := 8
	if tf.Header != nil {
		n += tf.Header.Size()
	}
	if tf.DecodeTime != nil {
		n += tf.DecodeTime.Size()
	}
	for _, r := range tf.Runs {
		n += r.Size()
	}
	return n
}

func (tf *TrackFragment) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(tf.Size()), "traf")
	w.raw(tf.Header.Mux())
	if tf.DecodeTime != nil {
		w.raw(tf.DecodeTime.Mux())
	}
	for _, r := range tf.Runs {
		w.raw(r.Mux())
	}
	return w.bytes()
}

// MovieFragment is the moof box: mfhd + one traf per track.
type MovieFragment struct {
	Header *MovieFragmentHeader
	Tracks []*TrackFragment
}

func DemuxMovieFragment(payload []byte) (*MovieFragment, error) {
	children, order, err := ReadChildren(payload)
	if err != nil {
		return nil, err
	}
	mf := &MovieFragment{}
	for _, typ := range order {
		switch typ {
		case "mfhd":
			h, err := DemuxMovieFragmentHeader(children[typ])
			if err != nil {
				return nil, err
			}
			mf.Header = h
		case "traf":
			tf, err := DemuxTrackFragment(children[typ])
			if err != nil {
				return nil, err
			}
			mf.Tracks = append(mf.Tracks, tf)
		}
	}
	if mf.Header == nil {
		return nil, fmt.Errorf("fmp4: moof missing mfhd")
	}
	return mf, nil
}

func (mf *MovieFragment) Size() int {
	n := 8 + mf.Header.Size()
	for _, t := range mf.Tracks {
		n += t.Size()
	}
	return n
}

func (mf *MovieFragment) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(mf.Size()), "moof")
	w.raw(mf.Header.Mux())
	for _, t := range mf.Tracks {
		w.raw(t.Mux())
	}
	return w.bytes()
}

// MediaData is the mdat box: raw sample bytes for the sibling moof's runs.
type MediaData struct {
	Data []byte
}

func DemuxMediaData(payload []byte) (*MediaData, error) {
	return &MediaData{Data: payload}, nil
}

func (m *MediaData) Size() int { return 8 + len(m.Data) }
func (m *MediaData) Mux() []byte {
	return wrapBox("mdat", m.Data)
}
