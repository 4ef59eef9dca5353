package fmp4

import "fmt"

// AVCConfigurationBox is the avcC box: a raw AVCDecoderConfigurationRecord,
// parsed further by internal/codec/avc when geometry/profile is needed.
type AVCConfigurationBox struct {
	Record []byte
}

func DemuxAVCConfigurationBox(payload []byte) (*AVCConfigurationBox, error) {
	return &AVCConfigurationBox{Record: payload}, nil
}

func (b *AVCConfigurationBox) Size() int { return 8 + len(b.Record) }
func (b *AVCConfigurationBox) Mux() []byte {
	return wrapBox("avcC", b.Record)
}

// HEVCConfigurationBox is the hvcC box.
type HEVCConfigurationBox struct {
	Record []byte
}

func DemuxHEVCConfigurationBox(payload []byte) (*HEVCConfigurationBox, error) {
	return &HEVCConfigurationBox{Record: payload}, nil
}

func (b *HEVCConfigurationBox) Size() int { return 8 + len(b.Record) }
func (b *HEVCConfigurationBox) Mux() []byte {
	return wrapBox("hvcC", b.Record)
}

// AV1ConfigurationBox is the av1C box.
type AV1ConfigurationBox struct {
	Record []byte
}

func DemuxAV1ConfigurationBox(payload []byte) (*AV1ConfigurationBox, error) {
	return &AV1ConfigurationBox{Record: payload}, nil
}

func (b *AV1ConfigurationBox) Size() int { return 8 + len(b.Record) }
func (b *AV1ConfigurationBox) Mux() []byte {
	return wrapBox("av1C", b.Record)
}

// ESDescriptorBox is the esds box wrapping an MPEG-4 ES_Descriptor. The AAC
// AudioSpecificConfig is nested inside the DecoderSpecificInfo descriptor;
// this box stores the already-encoded descriptor tree verbatim and exposes
// the ASC bytes for internal/codec/aac to parse.
type ESDescriptorBox struct {
	Raw []byte // the full ES_Descriptor tree, descriptor tags included
}

// esDescriptorTag / decoderConfigDescTag / decSpecificInfoTag are MPEG-4
// descriptor tag values (ISO/IEC 14496-1 §8.3).
const (
	esDescriptorTag      = 0x03
	decoderConfigDescTag = 0x04
	decSpecificInfoTag   = 0x05
	slConfigDescrTag     = 0x06
)

// BuildESDescriptor constructs a minimal esds descriptor tree around a raw
// AudioSpecificConfig payload, using the AAC-LC object type id (0x40) and a
// generic audio stream type.
func BuildESDescriptor(ascPayload []byte, bufferSizeDB uint32, maxBitrate, avgBitrate uint32) []byte {
	dsi := appendDescriptor(nil, decSpecificInfoTag, ascPayload)

	var decCfg []byte
	decCfg = append(decCfg, 0x40)                  // objectTypeIndication: AAC-LC
	decCfg = append(decCfg, 0x15)                  // streamType=5 (audio) << 2 | upStream(0) | reserved(1)
	decCfg = append(decCfg, byte(bufferSizeDB>>16), byte(bufferSizeDB>>8), byte(bufferSizeDB))
	decCfg = append(decCfg, byte(maxBitrate>>24), byte(maxBitrate>>16), byte(maxBitrate>>8), byte(maxBitrate))
	decCfg = append(decCfg, byte(avgBitrate>>24), byte(avgBitrate>>16), byte(avgBitrate>>8), byte(avgBitrate))
	decCfg = append(decCfg, dsi...)
	decCfgDescr := appendDescriptor(nil, decoderConfigDescTag, decCfg)

	slConfig := appendDescriptor(nil, slConfigDescrTag, []byte{0x02})

	var es []byte
	es = append(es, 0x00, 0x00) // ES_ID
	es = append(es, 0x00)       // flags
	es = append(es, decCfgDescr...)
	es = append(es, slConfig...)
	return appendDescriptor(nil, esDescriptorTag, es)
}

// appendDescriptor wraps payload with an MPEG-4 descriptor tag and its
// variable-length size field (the classic 0x80-continuation encoding,
// emitted in its minimal form: one byte for lengths below 0x80).
func appendDescriptor(dst []byte, tag byte, payload []byte) []byte {
	dst = append(dst, tag)
	dst = append(dst, encodeDescriptorLength(len(payload))...)
	dst = append(dst, payload...)
	return dst
}

func encodeDescriptorLength(n int) []byte {
	if n < 0x80 {
		return []byte{byte(n)}
	}
	var out []byte
	for n > 0 {
		b := byte(n & 0x7F)
		n >>= 7
		if len(out) > 0 {
			b |= 0x80
		}
		out = append([]byte{b}, out...)
	}
	return out
}

// ASCFromESDescriptor extracts the DecoderSpecificInfo (AudioSpecificConfig)
// payload from a raw esds descriptor tree, or an error if malformed.
func ASCFromESDescriptor(raw []byte) ([]byte, error) {
	tag, payload, _, err := readDescriptor(raw)
	if err != nil || tag != esDescriptorTag {
		return nil, fmt.Errorf("fmp4: esds: expected ES_Descriptor, got tag=%d err=%v", tag, err)
	}
	// Skip ES_ID(2)+flags(1) within the ES_Descriptor payload.
	if len(payload) < 3 {
		return nil, fmt.Errorf("fmp4: esds: truncated ES_Descriptor")
	}
	rest := payload[3:]
	dcTag, dcPayload, _, err := readDescriptor(rest)
	if err != nil || dcTag != decoderConfigDescTag {
		return nil, fmt.Errorf("fmp4: esds: expected DecoderConfigDescriptor")
	}
	if len(dcPayload) < 13 {
		return nil, fmt.Errorf("fmp4: esds: truncated DecoderConfigDescriptor")
	}
	dsiTag, dsiPayload, _, err := readDescriptor(dcPayload[13:])
	if err != nil || dsiTag != decSpecificInfoTag {
		return nil, fmt.Errorf("fmp4: esds: expected DecoderSpecificInfo")
	}
	return dsiPayload, nil
}

func readDescriptor(b []byte) (tag byte, payload []byte, consumed int, err error) {
	if len(b) < 2 {
		return 0, nil, 0, fmt.Errorf("fmp4: descriptor too short")
	}
	tag = b[0]
	pos := 1
	length := 0
	for {
		if pos >= len(b) {
			return 0, nil, 0, fmt.Errorf("fmp4: descriptor length truncated")
		}
		c := b[pos]
		pos++
		length = (length << 7) | int(c&0x7F)
		if c&0x80 == 0 {
			break
		}
	}
	if pos+length > len(b) {
		return 0, nil, 0, fmt.Errorf("fmp4: descriptor payload truncated")
	}
	return tag, b[pos : pos+length], pos + length, nil
}

func (b *ESDescriptorBox) Size() int { return 8 + 4 + len(b.Raw) }
func (b *ESDescriptorBox) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(b.Size()), "esds")
	w.u32(0) // version+flags
	w.raw(b.Raw)
	return w.bytes()
}

func DemuxESDescriptorBox(payload []byte) (*ESDescriptorBox, error) {
	r := newBoxReader(payload)
	if _, err := r.u32(); err != nil {
		return nil, err
	}
	return &ESDescriptorBox{Raw: r.rest()}, nil
}

// BitRateBox is the btrt box: decode buffer size, max/avg bitrate.
type BitRateBox struct {
	BufferSizeDB uint32
	MaxBitrate   uint32
	AvgBitrate   uint32
}

func DemuxBitRateBox(payload []byte) (*BitRateBox, error) {
	r := newBoxReader(payload)
	b := &BitRateBox{}
	var err error
	if b.BufferSizeDB, err = r.u32(); err != nil {
		return nil, err
	}
	if b.MaxBitrate, err = r.u32(); err != nil {
		return nil, err
	}
	if b.AvgBitrate, err = r.u32(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *BitRateBox) Size() int { return 8 + 4 + 4 + 4 }
func (b *BitRateBox) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(b.Size()), "btrt")
	w.u32(b.BufferSizeDB)
	w.u32(b.MaxBitrate)
	w.u32(b.AvgBitrate)
	return w.bytes()
}

// ColorInfoBox is the colr box (nclx type, the only variant this pipeline
// produces).
type ColorInfoBox struct {
	ColorPrimaries         uint16
	TransferCharacteristics uint16
	MatrixCoefficients     uint16
	FullRange              bool
}

func DemuxColorInfoBox(payload []byte) (*ColorInfoBox, error) {
	r := newBoxReader(payload)
	colorType, err := r.bytes(4)
	if err != nil {
		return nil, err
	}
	if string(colorType) != "nclx" {
		return nil, fmt.Errorf("fmp4: unsupported colr type %q", colorType)
	}
	c := &ColorInfoBox{}
	if c.ColorPrimaries, err = r.u16(); err != nil {
		return nil, err
	}
	if c.TransferCharacteristics, err = r.u16(); err != nil {
		return nil, err
	}
	if c.MatrixCoefficients, err = r.u16(); err != nil {
		return nil, err
	}
	b, err := r.u8()
	if err != nil {
		return nil, err
	}
	c.FullRange = b&0x80 != 0
	return c, nil
}

func (c *ColorInfoBox) Size() int { return 8 + 4 + 2 + 2 + 2 + 1 }
func (c *ColorInfoBox) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(c.Size()), "colr")
	w.raw([]byte("nclx"))
	w.u16(c.ColorPrimaries)
	w.u16(c.TransferCharacteristics)
	w.u16(c.MatrixCoefficients)
	if c.FullRange {
		w.u8(0x80)
	} else {
		w.u8(0)
	}
	return w.bytes()
}

// PixelAspectRatioBox is the pasp box.
type PixelAspectRatioBox struct {
	HSpacing uint32
	VSpacing uint32
}

func DemuxPixelAspectRatioBox(payload []byte) (*PixelAspectRatioBox, error) {
	r := newBoxReader(payload)
	p := &PixelAspectRatioBox{}
	var err error
	if p.HSpacing, err = r.u32(); err != nil {
		return nil, err
	}
	if p.VSpacing, err = r.u32(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PixelAspectRatioBox) Size() int { return 8 + 4 + 4 }
func (p *PixelAspectRatioBox) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(p.Size()), "pasp")
	w.u32(p.HSpacing)
	w.u32(p.VSpacing)
	return w.bytes()
}

// CleanApertureBox is the clap box.
type CleanApertureBox struct {
	CleanApertureWidthN, CleanApertureWidthD   uint32
	CleanApertureHeightN, CleanApertureHeightD uint32
	HorizOffN, HorizOffD                       uint32
	VertOffN, VertOffD                         uint32
}

func DemuxCleanApertureBox(payload []byte) (*CleanApertureBox, error) {
	r := newBoxReader(payload)
	c := &CleanApertureBox{}
	fields := []*uint32{
		&c.CleanApertureWidthN, &c.CleanApertureWidthD,
		&c.CleanApertureHeightN, &c.CleanApertureHeightD,
		&c.HorizOffN, &c.HorizOffD,
		&c.VertOffN, &c.VertOffD,
	}
	for _, f := range fields {
		v, err := r.u32()
		if err != nil {
			return nil, err
		}
		*f = v
	}
	return c, nil
}

func (c *CleanApertureBox) Size() int { return 8 + 4*8 }
func (c *CleanApertureBox) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(c.Size()), "clap")
	w.u32(c.CleanApertureWidthN)
	w.u32(c.CleanApertureWidthD)
	w.u32(c.CleanApertureHeightN)
	w.u32(c.CleanApertureHeightD)
	w.u32(c.HorizOffN)
	w.u32(c.HorizOffD)
	w.u32(c.VertOffN)
	w.u32(c.VertOffD)
	return w.bytes()
}
