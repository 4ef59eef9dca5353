package fmp4

import "fmt"

// TrackExtends is the trex box: per-track fragment defaults.
type TrackExtends struct {
	TrackID                       uint32
	DefaultSampleDescriptionIndex uint32
	DefaultSampleDuration         uint32
	DefaultSampleSize             uint32
	DefaultSampleFlags            uint32
}

func DemuxTrackExtends(payload []byte) (*TrackExtends, error) {
	r := newBoxReader(payload)
	if _, err := r.u32(); err != nil { // version+flags
		return nil, err
	}
	t := &TrackExtends{}
	var err error
	if t.TrackID, err = r.u32(); err != nil {
		return nil, fmt.Errorf("fmp4: trex track_ID: %w", err)
	}
	if t.DefaultSampleDescriptionIndex, err = r.u32(); err != nil {
		return nil, err
	}
	if t.DefaultSampleDuration, err = r.u32(); err != nil {
		return nil, err
	}
	if t.DefaultSampleSize, err = r.u32(); err != nil {
		return nil, err
	}
	if t.DefaultSampleFlags, err = r.u32(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *TrackExtends) Size() int { return 8 + 4 + 4 + 4 + 4 + 4 + 4 }

func (t *TrackExtends) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(t.Size()), "trex")
	w.u32(0)
	w.u32(t.TrackID)
	w.u32(t.DefaultSampleDescriptionIndex)
	w.u32(t.DefaultSampleDuration)
	w.u32(t.DefaultSampleSize)
	w.u32(t.DefaultSampleFlags)
	return w.bytes()
}

// MovieExtendsHeader is the mehd box: fragmented movie total duration. Only
// emitted for VOD/recording derivatives; live init segments omit it (total
// duration is unknown), matched by a zero-value Present flag.
type MovieExtendsHeader struct {
	Present  bool
	Duration uint64
}

func DemuxMovieExtendsHeader(payload []byte) (*MovieExtendsHeader, error) {
	r := newBoxReader(payload)
	version, err := r.u8()
	if err != nil {
		return nil, err
	}
	if _, err := r.u24(); err != nil {
		return nil, err
	}
	m := &MovieExtendsHeader{Present: true}
	if version == 1 {
		if m.Duration, err = r.u64(); err != nil {
			return nil, err
		}
	} else {
		v, err := r.u32()
		if err != nil {
			return nil, err
		}
		m.Duration = uint64(v)
	}
	return m, nil
}

func (m *MovieExtendsHeader) Size() int { return 8 + 4 + 8 }

func (m *MovieExtendsHeader) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(m.Size()), "mehd")
	w.u8(1) // version 1, 64-bit duration
	w.u24(0)
	w.u64(m.Duration)
	return w.bytes()
}

// MovieExtends is the mvex box: one trex per track, plus optional mehd.
type MovieExtends struct {
	Header *MovieExtendsHeader
	Tracks []*TrackExtends
}

func DemuxMovieExtends(payload []byte) (*MovieExtends, error) {
	children, order, err := ReadChildren(payload)
	if err != nil {
		return nil, err
	}
	me := &MovieExtends{}
	for _, typ := range order {
		switch typ {
		case "mehd":
			h, err := DemuxMovieExtendsHeader(children[typ])
			if err != nil {
				return nil, err
			}
			me.Header = h
		case "trex":
			t, err := DemuxTrackExtends(children[typ])
			if err != nil {
				return nil, err
			}
			me.Tracks = append(me.Tracks, t)
		}
	}
	return me, nil
}

func (m *MovieExtends) Size() int {
	n := 8
	if m.Header != nil && m.Header.Present {
		n += m.Header.Size()
	}
	for _, t := range m.Tracks {
		n += t.Size()
	}
	return n
}

func (m *MovieExtends) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(m.Size()), "mvex")
	if m.Header != nil && m.Header.Present {
		w.raw(m.Header.Mux())
	}
	for _, t := range m.Tracks {
		w.raw(t.Mux())
	}
	return w.bytes()
}
