package fmp4

import "fmt"

// SampleTable is the stbl box: the (empty, for a fragmented track) classic
// sample tables plus the one stsd describing the track's codec.
type SampleTable struct {
	SampleDescription *SampleDescription
	TimeToSample      *TimeToSample
	SampleToChunk     *SampleToChunk
	SampleSize        *SampleSize
	ChunkOffset       *ChunkOffset
}

// NewEmptySampleTable builds the stbl a CMAF init segment needs: one stsd
// entry, every other table empty (all samples live in moof/mdat fragments).
func NewEmptySampleTable(sd *SampleDescription) *SampleTable {
	return &SampleTable{
		SampleDescription: sd,
		TimeToSample:      &TimeToSample{},
		SampleToChunk:     &SampleToChunk{},
		SampleSize:        &SampleSize{},
		ChunkOffset:       &ChunkOffset{},
	}
}

func DemuxSampleTable(payload []byte) (*SampleTable, error) {
	children, order, err := ReadChildren(payload)
	if err != nil {
		return nil, err
	}
	st := &SampleTable{}
	for _, typ := range order {
		switch typ {
		case "stsd":
			sd, err := DemuxSampleDescription(children[typ])
			if err != nil {
				return nil, fmt.Errorf("fmp4: stbl/stsd: %w", err)
			}
			st.SampleDescription = sd
		case "stts":
			v, err := DemuxTimeToSample(children[typ])
			if err != nil {
				return nil, err
			}
			st.TimeToSample = v
		case "stsc":
			v, err := DemuxSampleToChunk(children[typ])
			if err != nil {
				return nil, err
			}
			st.SampleToChunk = v
		case "stsz":
			v, err := DemuxSampleSize(children[typ])
			if err != nil {
				return nil, err
			}
			st.SampleSize = v
		case "stco":
			v, err := DemuxChunkOffset(children[typ])
			if err != nil {
				return nil, err
			}
			st.ChunkOffset = v
		}
	}
	if st.SampleDescription == nil {
		return nil, fmt.Errorf("fmp4: stbl missing stsd")
	}
	return st, nil
}

func (st *SampleTable) Size() int {
	n := 8 + st.SampleDescription.Size()
	if st.TimeToSample != nil {
		n += st.TimeToSample.Size()
	}
	if st.SampleToChunk != nil {
		n += st.SampleToChunk.Size()
	}
	if st.SampleSize != nil {
		n += st.SampleSize.Size()
	}
	if st.ChunkOffset != nil {
		n += st.ChunkOffset.Size()
	}
	return n
}

func (st *SampleTable) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(st.Size()), "stbl")
	w.raw(st.SampleDescription.Mux())
	if st.TimeToSample != nil {
		w.raw(st.TimeToSample.Mux())
	}
	if st.SampleToChunk != nil {
		w.raw(st.SampleToChunk.Mux())
	}
	if st.SampleSize != nil {
		w.raw(st.SampleSize.Mux())
	}
	if st.ChunkOffset != nil {
		w.raw(st.ChunkOffset.Mux())
	}
	return w.bytes()
}

// MediaInformation is the minf box.
type MediaInformation struct {
	VideoHeader *VideoMediaHeader
	SoundHeader *SoundMediaHeader
	SampleTable *SampleTable
}

func DemuxMediaInformation(payload []byte) (*MediaInformation, error) {
	children, order, err := ReadChildren(payload)
	if err != nil {
		return nil, err
	}
	mi := &MediaInformation{}
	for _, typ := range order {
		switch typ {
		case "vmhd":
			v, err := DemuxVideoMediaHeader(children[typ])
			if err != nil {
				return nil, err
			}
			mi.VideoHeader = v
		case "smhd":
			v, err := DemuxSoundMediaHeader(children[typ])
			if err != nil {
				return nil, err
			}
			mi.SoundHeader = v
		case "stbl":
			st, err := DemuxSampleTable(children[typ])
			if err != nil {
				return nil, fmt.Errorf("fmp4: minf/stbl: %w", err)
			}
			mi.SampleTable = st
		}
	}
	if mi.SampleTable == nil {
		return nil, fmt.Errorf("fmp4: minf missing stbl")
	}
	return mi, nil
}

func (mi *MediaInformation) Size() int {
	n := 8 + DataInformation{}.Size() + mi.SampleTable.Size()
	if mi.VideoHeader != nil {
		n += mi.VideoHeader.Size()
	}
	if mi.SoundHeader != nil {
		n += mi.SoundHeader.Size()
	}
	return n
}

func (mi *MediaInformation) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(mi.Size()), "minf")
	if mi.VideoHeader != nil {
		w.raw(mi.VideoHeader.Mux())
	}
	if mi.SoundHeader != nil {
		w.raw(mi.SoundHeader.Mux())
	}
	w.raw(DataInformation{}.Mux())
	w.raw(mi.SampleTable.Mux())
	return w.bytes()
}

// Media is the mdia box.
type Media struct {
	Header           *MediaHeader
	Handler          *HandlerRef
	MediaInformation *MediaInformation
}

func DemuxMedia(payload []byte) (*Media, error) {
	children, order, err := ReadChildren(payload)
	if err != nil {
		return nil, err
	}
	m := &Media{}
	for _, typ := range order {
		switch typ {
		case "mdhd":
			h, err := DemuxMediaHeader(children[typ])
			if err != nil {
				return nil, err
			}
			m.Header = h
		case "hdlr":
			h, err := DemuxHandlerRef(children[typ])
			if err != nil {
				return nil, err
			}
			m.Handler = h
		case "minf":
			mi, err := DemuxMediaInformation(children[typ])
			if err != nil {
				return nil, fmt.Errorf("fmp4: mdia/minf: %w", err)
			}
			m.MediaInformation = mi
		}
	}
	if m.Header == nil || m.Handler == nil || m.MediaInformation == nil {
		return nil, fmt.Errorf("fmp4: mdia missing required child box")
	}
	return m, nil
}

func (m *Media) Size() int {
	return 8 + m.Header.Size() + m.Handler.Size() + m.MediaInformation.Size()
}

func (m *Media) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(m.Size()), "mdia")
	w.raw(m.Header.Mux())
	w.raw(m.Handler.Mux())
	w.raw(m.MediaInformation.Mux())
	return w.bytes()
}

// Track is the trak box.
type Track struct {
	Header *TrackHeader
	Media  *Media
}

func DemuxTrack(payload []byte) (*Track, error) {
	children, order, err := ReadChildren(payload)
	if err != nil {
		return nil, err
	}
	t := &Track{}
	for _, typ := range order {
		switch typ {
		case "tkhd":
			h, err := DemuxTrackHeader(children[typ])
			if err != nil {
				return nil, err
			}
			t.Header = h
		case "mdia":
			m, err := DemuxMedia(children[typ])
			if err != nil {
				return nil, fmt.Errorf("fmp4: trak/mdia: %w", err)
			}
			t.Media = m
		}
	}
	if t.Header == nil || t.Media == nil {
		return nil, fmt.Errorf("fmp4: trak missing required child box")
	}
	return t, nil
}

func (t *Track) Size() int { return 8 + t.Header.Size() + t.Media.Size() }

func (t *Track) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(t.Size()), "trak")
	w.raw(t.Header.Mux())
	w.raw(t.Media.Mux())
	return w.bytes()
}

// Movie is the moov box: mvhd + one trak per track + mvex.
type Movie struct {
	Header *MovieHeader
	Tracks []*Track
	Extends *MovieExtends
}

func DemuxMovie(payload []byte) (*Movie, error) {
	children, order, err := ReadChildren(payload)
	if err != nil {
		return nil, err
	}
	m := &Movie{}
	for _, typ := range order {
		switch typ {
		case "mvhd":
			h, err := DemuxMovieHeader(children[typ])
			if err != nil {
				return nil, err
			}
			m.Header = h
		case "trak":
			t, err := DemuxTrack(children[typ])
			if err != nil {
				return nil, fmt.Errorf("fmp4: moov/trak: %w", err)
			}
			m.Tracks = append(m.Tracks, t)
		case "mvex":
			ext, err := DemuxMovieExtends(children[typ])
			if err != nil {
				return nil, err
			}
			m.Extends = ext
		}
	}
	if m.Header == nil {
		return nil, fmt.Errorf("fmp4: moov missing mvhd")
	}
	return m, nil
}

func (m *Movie) Size() int {
	n := 8 + m.Header.Size()
	for _, t := range m.Tracks {
		n += t.Size()
	}
	if m.Extends != nil {
		n += m.Extends.Size()
	}
	return n
}

func (m *Movie) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(m.Size()), "moov")
	w.raw(m.Header.Mux())
	for _, t := range m.Tracks {
		w.raw(t.Mux())
	}
	if m.Extends != nil {
		w.raw(m.Extends.Mux())
	}
	return w.bytes()
}

// InitSegment is the ftyp+moov pair an FFmpeg rendition socket emits once,
// before its first fragment.
type InitSegment struct {
	FileType *FileType
	Movie    *Movie
}

// DemuxInitSegment splits a byte stream's leading ftyp+moov boxes. Returns
// the parsed segment and the number of bytes consumed.
func DemuxInitSegment(data []byte) (*InitSegment, int, error) {
	pos := 0
	hdr, err := PeekHeader(data)
	if err != nil {
		return nil, 0, err
	}
	if hdr.Type != "ftyp" {
		return nil, 0, fmt.Errorf("fmp4: expected ftyp, got %q", hdr.Type)
	}
	ft, err := DemuxFileType(data[hdr.HeaderSz:hdr.Size])
	if err != nil {
		return nil, 0, fmt.Errorf("fmp4: ftyp: %w", err)
	}
	pos = int(hdr.Size)

	hdr, err = PeekHeader(data[pos:])
	if err != nil {
		return nil, 0, err
	}
	if hdr.Type != "moov" {
		return nil, 0, fmt.Errorf("fmp4: expected moov, got %q", hdr.Type)
	}
	moov, err := DemuxMovie(data[pos+hdr.HeaderSz : pos+int(hdr.Size)])
	if err != nil {
		return nil, 0, fmt.Errorf("fmp4: moov: %w", err)
	}
	pos += int(hdr.Size)
	return &InitSegment{FileType: ft, Movie: moov}, pos, nil
}

func (i *InitSegment) Mux() []byte {
	out := make([]byte, 0, i.FileType.Size()+i.Movie.Size())
	out = append(out, i.FileType.Mux()...)
	out = append(out, i.Movie.Mux()...)
	return out
}

// Fragment is one moof+mdat pair: a CMAF part or media fragment.
type Fragment struct {
	MovieFragment *MovieFragment
	MediaData     *MediaData
}

// DemuxFragment splits a byte stream's leading moof+mdat boxes. Returns the
// parsed fragment and the number of bytes consumed.
func DemuxFragment(data []byte) (*Fragment, int, error) {
	hdr, err := PeekHeader(data)
	if err != nil {
		return nil, 0, err
	}
	if hdr.Type != "moof" {
		return nil, 0, fmt.Errorf("fmp4: expected moof, got %q", hdr.Type)
	}
	moof, err := DemuxMovieFragment(data[hdr.HeaderSz:hdr.Size])
	if err != nil {
		return nil, 0, fmt.Errorf("fmp4: moof: %w", err)
	}
	pos := int(hdr.Size)

	hdr, err = PeekHeader(data[pos:])
	if err != nil {
		return nil, 0, err
	}
	if hdr.Type != "mdat" {
		return nil, 0, fmt.Errorf("fmp4: expected mdat, got %q", hdr.Type)
	}
	mdat, err := DemuxMediaData(data[pos+hdr.HeaderSz : pos+int(hdr.Size)])
	if err != nil {
		return nil, 0, err
	}
	pos += int(hdr.Size)
	return &Fragment{MovieFragment: moof, MediaData: mdat}, pos, nil
}

func (f *Fragment) Mux() []byte {
	out := make([]byte, 0, f.MovieFragment.Size()+f.MediaData.Size())
	out = append(out, f.MovieFragment.Mux()...)
	out = append(out, f.MediaData.Mux()...)
	return out
}
