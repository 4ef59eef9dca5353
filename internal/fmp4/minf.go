package fmp4

import "fmt"

// VideoMediaHeader is the vmhd box (empty-ish header present on video
// tracks).
type VideoMediaHeader struct{}

func DemuxVideoMediaHeader(payload []byte) (*VideoMediaHeader, error) {
	if len(payload) < 12 {
		return nil, fmt.Errorf("fmp4: vmhd too short")
	}
	return &VideoMediaHeader{}, nil
}

func (*VideoMediaHeader) Size() int { return 8 + 4 + 2 + 6 }

func (v *VideoMediaHeader) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(v.Size()), "vmhd")
	w.u8(0)
	w.u24(1) // flags=1, per spec
	w.u16(0) // graphicsmode
	w.u16(0) // opcolor[3]
	w.u16(0)
	w.u16(0)
	return w.bytes()
}

// SoundMediaHeader is the smhd box.
type SoundMediaHeader struct{}

func DemuxSoundMediaHeader(payload []byte) (*SoundMediaHeader, error) {
	if len(payload) < 8 {
		return nil, fmt.Errorf("fmp4: smhd too short")
	}
	return &SoundMediaHeader{}, nil
}

func (*SoundMediaHeader) Size() int { return 8 + 4 + 2 + 2 }

func (s *SoundMediaHeader) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(s.Size()), "smhd")
	w.u8(0)
	w.u24(0)
	w.u16(0) // balance
	w.u16(0) // reserved
	return w.bytes()
}

// DataEntryURL is the url box inside dref: a self-contained (same-file)
// data reference, which is all CMAF needs.
type DataEntryURL struct{}

func (DataEntryURL) Size() int { return 8 + 4 }

func (DataEntryURL) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(DataEntryURL{}.Size()), "url ")
	w.u8(0)
	w.u24(1) // flags=1: media data is in the same file, no location string
	return w.bytes()
}

// DataReference is the dref box: a list of data entries (always one url box
// here).
type DataReference struct{}

func (DataReference) Size() int { return 8 + 4 + 4 + DataEntryURL{}.Size() }

func (DataReference) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(DataReference{}.Size()), "dref")
	w.u8(0)
	w.u24(0)
	w.u32(1) // entry_count
	w.raw(DataEntryURL{}.Mux())
	return w.bytes()
}

// DataInformation is the dinf box wrapping dref.
type DataInformation struct{}

func (DataInformation) Size() int { return 8 + DataReference{}.Size() }

func (DataInformation) Mux() []byte {
	return wrapBox("dinf", DataReference{}.Mux())
}

// SampleToChunk is the stsc box. CMAF init segments carry no samples, so
// this is always the empty table (entry_count=0); kept for demux
// completeness against non-CMAF inputs.
type SampleToChunk struct {
	Entries []struct {
		FirstChunk      uint32
		SamplesPerChunk uint32
		SampleDescIndex uint32
	}
}

func DemuxSampleToChunk(payload []byte) (*SampleToChunk, error) {
	r := newBoxReader(payload)
	if _, err := r.u32(); err != nil { // version+flags
		return nil, err
	}
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	stsc := &SampleToChunk{}
	for i := uint32(0); i < count; i++ {
		var e struct {
			FirstChunk      uint32
			SamplesPerChunk uint32
			SampleDescIndex uint32
		}
		if e.FirstChunk, err = r.u32(); err != nil {
			return nil, err
		}
		if e.SamplesPerChunk, err = r.u32(); err != nil {
			return nil, err
		}
		if e.SampleDescIndex, err = r.u32(); err != nil {
			return nil, err
		}
		stsc.Entries = append(stsc.Entries, e)
	}
	return stsc, nil
}

func (s *SampleToChunk) Size() int { return 8 + 4 + 4 + 12*len(s.Entries) }

func (s *SampleToChunk) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(s.Size()), "stsc")
	w.u32(0)
	w.u32(uint32(len(s.Entries)))
	for _, e := range s.Entries {
		w.u32(e.FirstChunk)
		w.u32(e.SamplesPerChunk)
		w.u32(e.SampleDescIndex)
	}
	return w.bytes()
}

// TimeToSample is the stts box. Always empty in a CMAF init segment.
type TimeToSample struct {
	Entries []struct {
		SampleCount uint32
		SampleDelta uint32
	}
}

func DemuxTimeToSample(payload []byte) (*TimeToSample, error) {
	r := newBoxReader(payload)
	if _, err := r.u32(); err != nil {
		return nil, err
	}
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	stts := &TimeToSample{}
	for i := uint32(0); i < count; i++ {
		var e struct {
			SampleCount uint32
			SampleDelta uint32
		}
		if e.SampleCount, err = r.u32(); err != nil {
			return nil, err
		}
		if e.SampleDelta, err = r.u32(); err != nil {
			return nil, err
		}
		stts.Entries = append(stts.Entries, e)
	}
	return stts, nil
}

func (s *TimeToSample) Size() int { return 8 + 4 + 4 + 8*len(s.Entries) }

func (s *TimeToSample) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(s.Size()), "stts")
	w.u32(0)
	w.u32(uint32(len(s.Entries)))
	for _, e := range s.Entries {
		w.u32(e.SampleCount)
		w.u32(e.SampleDelta)
	}
	return w.bytes()
}

// SampleSize is the stsz box. Always empty (sample_size=0, sample_count=0)
// in a CMAF init segment; per-fragment sizes live in trun.
type SampleSize struct {
	SampleSize  uint32
	EntrySizes  []uint32
}

func DemuxSampleSize(payload []byte) (*SampleSize, error) {
	r := newBoxReader(payload)
	if _, err := r.u32(); err != nil {
		return nil, err
	}
	sampleSize, err := r.u32()
	if err != nil {
		return nil, err
	}
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	ss := &SampleSize{SampleSize: sampleSize}
	if sampleSize == 0 {
		for i := uint32(0); i < count; i++ {
			v, err := r.u32()
			if err != nil {
				return nil, err
			}
			ss.EntrySizes = append(ss.EntrySizes, v)
		}
	}
	return ss, nil
}

func (s *SampleSize) Size() int {
	n := 0
	if s.SampleSize == 0 {
		n = len(s.EntrySizes)
	}
	return 8 + 4 + 4 + 4 + 4*n
}

func (s *SampleSize) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(s.Size()), "stsz")
	w.u32(0)
	w.u32(s.SampleSize)
	if s.SampleSize == 0 {
		w.u32(uint32(len(s.EntrySizes)))
		for _, v := range s.EntrySizes {
			w.u32(v)
		}
	} else {
		w.u32(0)
	}
	return w.bytes()
}

// ChunkOffset is the stco box (32-bit offsets). Always empty in a CMAF init
// segment.
type ChunkOffset struct {
	Offsets []uint32
}

func DemuxChunkOffset(payload []byte) (*ChunkOffset, error) {
	r := newBoxReader(payload)
	if _, err := r.u32(); err != nil {
		return nil, err
	}
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	co := &ChunkOffset{}
	for i := uint32(0); i < count; i++ {
		v, err := r.u32()
		if err != nil {
			return nil, err
		}
		co.Offsets = append(co.Offsets, v)
	}
	return co, nil
}

func (c *ChunkOffset) Size() int { return 8 + 4 + 4 + 4*len(c.Offsets) }

func (c *ChunkOffset) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(c.Size()), "stco")
	w.u32(0)
	w.u32(uint32(len(c.Offsets)))
	for _, v := range c.Offsets {
		w.u32(v)
	}
	return w.bytes()
}
