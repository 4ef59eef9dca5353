package fmp4

import "fmt"

// TrackHeader is the tkhd box. Mux writes the layout of Version: 0 (32-bit
// times) or 1 (64-bit times, for very long recordings); Demux reads both.
type TrackHeader struct {
	Version          uint8
	Flags            uint32 // bit 0 = track enabled, bit 1 = in movie, bit 2 = in preview
	CreationTime     uint64
	ModificationTime uint64
	TrackID          uint32
	Duration         uint64
	Width            uint32 // 16.16 fixed point
	Height           uint32 // 16.16 fixed point
}

const tkhdDefaultFlags = 0x000007 // enabled | in_movie | in_preview

func DemuxTrackHeader(payload []byte) (*TrackHeader, error) {
	r := newBoxReader(payload)
	version, err := r.u8()
	if err != nil {
		return nil, fmt.Errorf("fmp4: tkhd version: %w", err)
	}
	flags, err := r.u24()
	if err != nil {
		return nil, err
	}
	th := &TrackHeader{Version: version, Flags: flags}
	if version == 1 {
		if th.CreationTime, err = r.u64(); err != nil {
			return nil, err
		}
		if th.ModificationTime, err = r.u64(); err != nil {
			return nil, err
		}
		if th.TrackID, err = r.u32(); err != nil {
			return nil, err
		}
		if _, err := r.u32(); err != nil { // reserved
			return nil, err
		}
		if th.Duration, err = r.u64(); err != nil {
			return nil, err
		}
	} else {
		ct, err := r.u32()
		if err != nil {
			return nil, err
		}
		th.CreationTime = uint64(ct)
		mt, err := r.u32()
		if err != nil {
			return nil, err
		}
		th.ModificationTime = uint64(mt)
		if th.TrackID, err = r.u32(); err != nil {
			return nil, err
		}
		if _, err := r.u32(); err != nil { // reserved
			return nil, err
		}
		dur, err := r.u32()
		if err != nil {
			return nil, err
		}
		th.Duration = uint64(dur)
	}
	if err := r.need(8 + 2 + 2 + 2 + 2 + 36); err != nil { // reserved(8)+layer(2)+alt_group(2)+volume(2)+reserved(2)+matrix(36)
		return nil, err
	}
	r.pos += 8 + 2 + 2 + 2 + 2 + 36
	width, err := r.u32()
	if err != nil {
		return nil, err
	}
	th.Width = width
	height, err := r.u32()
	if err != nil {
		return nil, err
	}
	th.Height = height
	return th, nil
}

// Size returns the exact marshaled box size, header included.
func (th *TrackHeader) Size() int {
	if th.Version == 1 {
		return 8 + 4 + 8 + 8 + 4 + 4 + 8 + 8 + 2 + 2 + 2 + 2 + 36 + 4 + 4
	}
	return 8 + 4 + 4 + 4 + 4 + 4 + 4 + 8 + 2 + 2 + 2 + 2 + 36 + 4 + 4
}

// Mux serializes the tkhd box, header included.
func (th *TrackHeader) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(th.Size()), "tkhd")
	w.u8(th.Version)
	flags := th.Flags
	if flags == 0 {
		flags = tkhdDefaultFlags
	}
	w.u24(flags)
	if th.Version == 1 {
		w.u64(th.CreationTime)
		w.u64(th.ModificationTime)
		w.u32(th.TrackID)
		w.u32(0)
		w.u64(th.Duration)
	} else {
		w.u32(uint32(th.CreationTime))
		w.u32(uint32(th.ModificationTime))
		w.u32(th.TrackID)
		w.u32(0)
		w.u32(uint32(th.Duration))
	}
	w.u32(0) // reserved[2]
	w.u32(0)
	w.u16(0) // layer
	w.u16(0) // alternate_group
	w.u16(0) // volume (0 for video, could be 0x0100 for audio; callers set via Width/Height path only)
	w.u16(0) // reserved
	writeUnityMatrix(w)
	w.u32(th.Width)
	w.u32(th.Height)
	return w.bytes()
}
