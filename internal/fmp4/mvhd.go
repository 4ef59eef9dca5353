package fmp4

import "fmt"

// MovieHeader is the mvhd box. Mux writes the layout of Version: 0 (32-bit
// times) or 1 (64-bit times, used by very long recordings); Demux reads
// both.
type MovieHeader struct {
	Version          uint8
	CreationTime     uint64
	ModificationTime uint64
	Timescale        uint32
	Duration         uint64
	Rate             int32 // 16.16 fixed point, default 0x00010000
	Volume           int16 // 8.8 fixed point, default 0x0100
	NextTrackID      uint32
}

func DemuxMovieHeader(payload []byte) (*MovieHeader, error) {
	r := newBoxReader(payload)
	version, err := r.u8()
	if err != nil {
		return nil, fmt.Errorf("fmp4: mvhd version: %w", err)
	}
	if _, err := r.u24(); err != nil { // flags
		return nil, err
	}
	mh := &MovieHeader{Version: version}
	if version == 1 {
		if mh.CreationTime, err = r.u64(); err != nil {
			return nil, err
		}
		if mh.ModificationTime, err = r.u64(); err != nil {
			return nil, err
		}
		if mh.Timescale, err = r.u32(); err != nil {
			return nil, err
		}
		if mh.Duration, err = r.u64(); err != nil {
			return nil, err
		}
	} else {
		ct, err := r.u32()
		if err != nil {
			return nil, err
		}
		mh.CreationTime = uint64(ct)
		mt, err := r.u32()
		if err != nil {
			return nil, err
		}
		mh.ModificationTime = uint64(mt)
		if mh.Timescale, err = r.u32(); err != nil {
			return nil, err
		}
		dur, err := r.u32()
		if err != nil {
			return nil, err
		}
		mh.Duration = uint64(dur)
	}
	rate, err := r.u32()
	if err != nil {
		return nil, err
	}
	mh.Rate = int32(rate)
	vol, err := r.u16()
	if err != nil {
		return nil, err
	}
	mh.Volume = int16(vol)
	// reserved(2) + reserved(4)*2 + matrix(36) + pre_defined(4)*6
	if err := r.need(2 + 8 + 36 + 24); err != nil {
		return nil, err
	}
	r.pos += 2 + 8 + 36 + 24
	if mh.NextTrackID, err = r.u32(); err != nil {
		return nil, err
	}
	return mh, nil
}

// Size returns the exact marshaled box size, header included.
func (mh *MovieHeader) Size() int {
	if mh.Version == 1 {
		return 8 + 4 + 8 + 8 + 4 + 8 + 4 + 2 + 2 + 8 + 36 + 24 + 4
	}
	return 8 + 4 + 4 + 4 + 4 + 4 + 4 + 2 + 2 + 8 + 36 + 24 + 4
}

// Mux serializes the mvhd box, header included.
func (mh *MovieHeader) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(mh.Size()), "mvhd")
	w.u8(mh.Version)
	w.u24(0)
	if mh.Version == 1 {
		w.u64(mh.CreationTime)
		w.u64(mh.ModificationTime)
		w.u32(mh.Timescale)
		w.u64(mh.Duration)
	} else {
		w.u32(uint32(mh.CreationTime))
		w.u32(uint32(mh.ModificationTime))
		w.u32(mh.Timescale)
		w.u32(uint32(mh.Duration))
	}
	rate := mh.Rate
	if rate == 0 {
		rate = 0x00010000
	}
	w.u32(uint32(rate))
	vol := mh.Volume
	if vol == 0 {
		vol = 0x0100
	}
	w.u16(uint16(vol))
	w.u16(0)    // reserved
	w.u32(0)    // reserved
	w.u32(0)    // reserved
	writeUnityMatrix(w)
	for i := 0; i < 6; i++ {
		w.u32(0) // pre_defined
	}
	w.u32(mh.NextTrackID)
	return w.bytes()
}

// writeUnityMatrix writes the standard identity transformation matrix used
// by mvhd/tkhd (9 32-bit fixed-point values, 36 bytes).
func writeUnityMatrix(w *boxWriter) {
	matrix := [9]uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}
	for _, v := range matrix {
		w.u32(v)
	}
}
