package fmp4

import "fmt"

// VisualSampleEntry is a stsd entry for a video track (avc1, hev1, av01).
// CodecConfig holds the already-muxed avcC/hvcC/av1C box (header included).
type VisualSampleEntry struct {
	CodecName   string // "avc1", "hev1", "av01"
	Width       uint16
	Height      uint16
	CodecConfig []byte
	BtrtBox     []byte // optional, already-muxed btrt box
}

func DemuxVisualSampleEntry(codecName string, payload []byte) (*VisualSampleEntry, error) {
	r := newBoxReader(payload)
	if err := r.need(6); err != nil { // reserved[6]
		return nil, err
	}
	r.pos += 6
	if _, err := r.u16(); err != nil { // data_reference_index
		return nil, err
	}
	if err := r.need(2 + 2 + 4*3); err != nil { // pre_defined+reserved+pre_defined[3]
		return nil, err
	}
	r.pos += 2 + 2 + 4*3
	width, err := r.u16()
	if err != nil {
		return nil, fmt.Errorf("fmp4: sample entry width: %w", err)
	}
	height, err := r.u16()
	if err != nil {
		return nil, fmt.Errorf("fmp4: sample entry height: %w", err)
	}
	if err := r.need(4 + 4 + 4 + 2 + 32 + 2 + 2); err != nil {
		// horizresolution+vertresolution+reserved+frame_count+compressorname(32)+depth+pre_defined
		return nil, err
	}
	r.pos += 4 + 4 + 4 + 2 + 32 + 2 + 2
	entry := &VisualSampleEntry{CodecName: codecName, Width: width, Height: height}
	children, order, err := ReadChildren(r.rest())
	if err != nil {
		return nil, fmt.Errorf("fmp4: sample entry children: %w", err)
	}
	for _, typ := range order {
		body := children[typ]
		switch typ {
		case "avcC", "hvcC", "av1C":
			entry.CodecConfig = wrapBox(typ, body)
		case "btrt":
			entry.BtrtBox = wrapBox(typ, body)
		}
	}
	return entry, nil
}

func (e *VisualSampleEntry) Size() int {
	return 8 + 6 + 2 + 2 + 2 + 4*3 + 2 + 2 + 4 + 4 + 4 + 2 + 32 + 2 + 2 + len(e.CodecConfig) + len(e.BtrtBox)
}

func (e *VisualSampleEntry) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(e.Size()), e.CodecName)
	w.u32(0) // reserved[6] part 1
	w.u16(0) // reserved[6] part 2
	w.u16(1) // data_reference_index
	w.u16(0) // pre_defined
	w.u16(0) // reserved
	w.u32(0) // pre_defined[3]
	w.u32(0)
	w.u32(0)
	w.u16(e.Width)
	w.u16(e.Height)
	w.u32(0x00480000) // horizresolution 72 dpi
	w.u32(0x00480000) // vertresolution 72 dpi
	w.u32(0)          // reserved
	w.u16(1)          // frame_count
	w.raw(make([]byte, 32)) // compressorname, empty pascal string
	w.u16(0x0018) // depth
	w.u16(0xFFFF) // pre_defined
	w.raw(e.CodecConfig)
	w.raw(e.BtrtBox)
	return w.bytes()
}

// AudioSampleEntry is a stsd entry for an audio track (mp4a, Opus).
// CodecConfig holds the already-muxed esds/dOps box (header included).
type AudioSampleEntry struct {
	CodecName     string // "mp4a", "Opus"
	ChannelCount  uint16
	SampleSize    uint16
	SampleRate    uint32 // 16.16 fixed point
	CodecConfig   []byte
}

func DemuxAudioSampleEntry(codecName string, payload []byte) (*AudioSampleEntry, error) {
	r := newBoxReader(payload)
	if err := r.need(6); err != nil {
		return nil, err
	}
	r.pos += 6
	if _, err := r.u16(); err != nil { // data_reference_index
		return nil, err
	}
	if err := r.need(4 * 2); err != nil { // reserved[2] (two 32-bit words)
		return nil, err
	}
	r.pos += 8
	channelCount, err := r.u16()
	if err != nil {
		return nil, err
	}
	sampleSize, err := r.u16()
	if err != nil {
		return nil, err
	}
	if err := r.need(2 + 2); err != nil { // pre_defined + reserved
		return nil, err
	}
	r.pos += 4
	sampleRate, err := r.u32()
	if err != nil {
		return nil, err
	}
	entry := &AudioSampleEntry{
		CodecName:    codecName,
		ChannelCount: channelCount,
		SampleSize:   sampleSize,
		SampleRate:   sampleRate,
	}
	children, order, err := ReadChildren(r.rest())
	if err != nil {
		return nil, fmt.Errorf("fmp4: audio sample entry children: %w", err)
	}
	for _, typ := range order {
		if typ == "esds" || typ == "dOps" {
			entry.CodecConfig = wrapBox(typ, children[typ])
		}
	}
	return entry, nil
}

func (e *AudioSampleEntry) Size() int {
	return 8 + 6 + 2 + 8 + 2 + 2 + 2 + 2 + 4 + len(e.CodecConfig)
}

func (e *AudioSampleEntry) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(e.Size()), e.CodecName)
	w.u32(0)
	w.u16(0)
	w.u16(1) // data_reference_index
	w.u32(0) // reserved[2]
	w.u32(0)
	w.u16(e.ChannelCount)
	w.u16(e.SampleSize)
	w.u16(0) // pre_defined
	w.u16(0) // reserved
	w.u32(e.SampleRate)
	w.raw(e.CodecConfig)
	return w.bytes()
}

// SampleDescription is the stsd box, holding exactly one sample entry (a
// single-codec track, which is all a CMAF rendition ever carries).
type SampleDescription struct {
	Visual *VisualSampleEntry
	Audio  *AudioSampleEntry
}

func DemuxSampleDescription(payload []byte) (*SampleDescription, error) {
	r := newBoxReader(payload)
	if _, err := r.u32(); err != nil { // version+flags
		return nil, err
	}
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, fmt.Errorf("fmp4: stsd has no entries")
	}
	hdr, err := PeekHeader(r.rest())
	if err != nil {
		return nil, err
	}
	body := r.rest()[hdr.HeaderSz:hdr.Size]
	sd := &SampleDescription{}
	switch hdr.Type {
	case "avc1", "hev1", "hvc1", "av01":
		v, err := DemuxVisualSampleEntry(hdr.Type, body)
		if err != nil {
			return nil, err
		}
		sd.Visual = v
	case "mp4a", "Opus":
		a, err := DemuxAudioSampleEntry(hdr.Type, body)
		if err != nil {
			return nil, err
		}
		sd.Audio = a
	default:
		return nil, fmt.Errorf("fmp4: unsupported sample entry %q", hdr.Type)
	}
	return sd, nil
}

func (s *SampleDescription) Size() int {
	n := 8 + 4 + 4
	if s.Visual != nil {
		n += s.Visual.Size()
	}
	if s.Audio != nil {
		n += s.Audio.Size()
	}
	return n
}

func (s *SampleDescription) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(s.Size()), "stsd")
	w.u32(0)
	w.u32(1) // entry_count
	if s.Visual != nil {
		w.raw(s.Visual.Mux())
	}
	if s.Audio != nil {
		w.raw(s.Audio.Mux())
	}
	return w.bytes()
}
