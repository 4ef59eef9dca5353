// Package avc parses the AVCDecoderConfigurationRecord (ISO/IEC 14496-15)
// and the SPS NALU it carries, extracting the picture geometry and profile
// fields the manifest and fmp4 stsd box need.
package avc

import (
	"fmt"

	"github.com/streamforge/live/internal/bitio"
)

// DecoderConfig is a parsed AVCDecoderConfigurationRecord.
type DecoderConfig struct {
	ConfigurationVersion uint8
	AVCProfileIndication  uint8
	ProfileCompatibility  uint8
	AVCLevelIndication    uint8
	LengthSizeMinusOne    uint8 // NALU length prefix size - 1 (typically 3, i.e. 4-byte lengths)
	SPS                   [][]byte
	PPS                   [][]byte
}

// ParseDecoderConfig parses the AVCDecoderConfigurationRecord, as delivered
// in an AVC sequence header FLV tag / the fmp4 avcC box payload.
func ParseDecoderConfig(data []byte) (*DecoderConfig, error) {
	r := bitio.NewReader(data)
	cfg := &DecoderConfig{}
	var err error
	if cfg.ConfigurationVersion, err = r.ReadU8(); err != nil {
		return nil, fmt.Errorf("avc: configurationVersion: %w", err)
	}
	if cfg.AVCProfileIndication, err = r.ReadU8(); err != nil {
		return nil, fmt.Errorf("avc: profile: %w", err)
	}
	if cfg.ProfileCompatibility, err = r.ReadU8(); err != nil {
		return nil, fmt.Errorf("avc: profile compat: %w", err)
	}
	if cfg.AVCLevelIndication, err = r.ReadU8(); err != nil {
		return nil, fmt.Errorf("avc: level: %w", err)
	}
	b, err := r.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("avc: lengthSizeMinusOne: %w", err)
	}
	cfg.LengthSizeMinusOne = b & 0x03

	numSPS, err := r.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("avc: numOfSPS: %w", err)
	}
	for i := 0; i < int(numSPS&0x1F); i++ {
		nalu, err := readLengthPrefixedNALU(r)
		if err != nil {
			return nil, fmt.Errorf("avc: sps[%d]: %w", i, err)
		}
		cfg.SPS = append(cfg.SPS, nalu)
	}

	numPPS, err := r.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("avc: numOfPPS: %w", err)
	}
	for i := 0; i < int(numPPS); i++ {
		nalu, err := readLengthPrefixedNALU(r)
		if err != nil {
			return nil, fmt.Errorf("avc: pps[%d]: %w", i, err)
		}
		cfg.PPS = append(cfg.PPS, nalu)
	}
	return cfg, nil
}

func readLengthPrefixedNALU(r *bitio.Reader) ([]byte, error) {
	length, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	return r.ReadBytes(int(length))
}

// Marshal serializes the config back to an AVCDecoderConfigurationRecord.
func (c *DecoderConfig) Marshal() []byte {
	w := bitio.NewWriter(16)
	w.WriteU8(c.ConfigurationVersion)
	w.WriteU8(c.AVCProfileIndication)
	w.WriteU8(c.ProfileCompatibility)
	w.WriteU8(c.AVCLevelIndication)
	w.WriteU8(0xFC | c.LengthSizeMinusOne)
	w.WriteU8(0xE0 | uint8(len(c.SPS)))
	for _, sps := range c.SPS {
		w.WriteU16(uint16(len(sps)))
		w.WriteBytes(sps)
	}
	w.WriteU8(uint8(len(c.PPS)))
	for _, pps := range c.PPS {
		w.WriteU16(uint16(len(pps)))
		w.WriteBytes(pps)
	}
	return w.Bytes()
}

// SPSInfo is the subset of SPS fields the pipeline needs: picture geometry
// and chroma/bit-depth, used for manifest codec strings and stsd visual
// sample entry fields.
type SPSInfo struct {
	ProfileIDC        uint8
	LevelIDC          uint8
	ChromaFormatIDC   uint8
	BitDepthLuma      uint8
	BitDepthChroma    uint8
	Width             int
	Height            int
}

// highProfiles lists the profile_idc values whose SPS carries chroma_format_idc and
// bit-depth fields in the SPS; others default chroma 4:2:0, 8-bit.
var highProfiles = map[uint8]bool{
	100: true, 110: true, 122: true, 244: true,
	44: true, 83: true, 86: true, 118: true, 128: true,
	138: true, 139: true, 134: true, 135: true,
}

// ParseSPS parses an AVC Sequence Parameter Set NALU (Annex B RBSP, with the
// NALU header byte still present) and computes display geometry.
func ParseSPS(nalu []byte) (*SPSInfo, error) {
	if len(nalu) < 4 {
		return nil, fmt.Errorf("avc: sps too short")
	}
	rbsp := unescapeEmulationPrevention(nalu[1:]) // drop NALU header byte
	br := bitio.NewBitReader(rbsp)

	profileIDC, err := br.ReadBits(8)
	if err != nil {
		return nil, fmt.Errorf("avc: profile_idc: %w", err)
	}
	if _, err := br.ReadBits(8); err != nil { // constraint flags + reserved
		return nil, fmt.Errorf("avc: constraint flags: %w", err)
	}
	levelIDC, err := br.ReadBits(8)
	if err != nil {
		return nil, fmt.Errorf("avc: level_idc: %w", err)
	}
	info := &SPSInfo{ProfileIDC: uint8(profileIDC), LevelIDC: uint8(levelIDC), ChromaFormatIDC: 1, BitDepthLuma: 8, BitDepthChroma: 8}

	if _, err := br.ReadUE(); err != nil { // seq_parameter_set_id
		return nil, fmt.Errorf("avc: sps_id: %w", err)
	}
	if highProfiles[info.ProfileIDC] {
		chromaFormatIDC, err := br.ReadUE()
		if err != nil {
			return nil, fmt.Errorf("avc: chroma_format_idc: %w", err)
		}
		info.ChromaFormatIDC = uint8(chromaFormatIDC)
		if chromaFormatIDC == 3 {
			if _, err := br.ReadFlag(); err != nil { // separate_colour_plane_flag
				return nil, err
			}
		}
		bdLuma, err := br.ReadUE()
		if err != nil {
			return nil, fmt.Errorf("avc: bit_depth_luma_minus8: %w", err)
		}
		info.BitDepthLuma = uint8(bdLuma) + 8
		bdChroma, err := br.ReadUE()
		if err != nil {
			return nil, fmt.Errorf("avc: bit_depth_chroma_minus8: %w", err)
		}
		info.BitDepthChroma = uint8(bdChroma) + 8
		if _, err := br.ReadFlag(); err != nil { // qpprime_y_zero_transform_bypass_flag
			return nil, err
		}
		seqScalingMatrixPresent, err := br.ReadFlag()
		if err != nil {
			return nil, err
		}
		if seqScalingMatrixPresent {
			count := 8
			if info.ChromaFormatIDC == 3 {
				count = 12
			}
			for i := 0; i < count; i++ {
				present, err := br.ReadFlag()
				if err != nil {
					return nil, err
				}
				if present {
					size := 16
					if i >= 6 {
						size = 64
					}
					if err := skipScalingList(br, size); err != nil {
						return nil, err
					}
				}
			}
		}
	}

	if _, err := br.ReadUE(); err != nil { // log2_max_frame_num_minus4
		return nil, fmt.Errorf("avc: log2_max_frame_num: %w", err)
	}
	picOrderCntType, err := br.ReadUE()
	if err != nil {
		return nil, fmt.Errorf("avc: pic_order_cnt_type: %w", err)
	}
	switch picOrderCntType {
	case 0:
		if _, err := br.ReadUE(); err != nil { // log2_max_pic_order_cnt_lsb_minus4
			return nil, err
		}
	case 1:
		if _, err := br.ReadFlag(); err != nil { // delta_pic_order_always_zero_flag
			return nil, err
		}
		if _, err := br.ReadSE(); err != nil { // offset_for_non_ref_pic
			return nil, err
		}
		if _, err := br.ReadSE(); err != nil { // offset_for_top_to_bottom_field
			return nil, err
		}
		numRefFramesInCycle, err := br.ReadUE()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < numRefFramesInCycle; i++ {
			if _, err := br.ReadSE(); err != nil {
				return nil, err
			}
		}
	}
	if _, err := br.ReadUE(); err != nil { // max_num_ref_frames
		return nil, fmt.Errorf("avc: max_num_ref_frames: %w", err)
	}
	if _, err := br.ReadFlag(); err != nil { // gaps_in_frame_num_value_allowed_flag
		return nil, err
	}
	picWidthInMbsMinus1, err := br.ReadUE()
	if err != nil {
		return nil, fmt.Errorf("avc: pic_width_in_mbs: %w", err)
	}
	picHeightInMapUnitsMinus1, err := br.ReadUE()
	if err != nil {
		return nil, fmt.Errorf("avc: pic_height_in_map_units: %w", err)
	}
	frameMbsOnly, err := br.ReadFlag()
	if err != nil {
		return nil, fmt.Errorf("avc: frame_mbs_only_flag: %w", err)
	}
	if !frameMbsOnly {
		if _, err := br.ReadFlag(); err != nil { // mb_adaptive_frame_field_flag
			return nil, err
		}
	}
	if _, err := br.ReadFlag(); err != nil { // direct_8x8_inference_flag
		return nil, err
	}

	frameCropping, err := br.ReadFlag()
	if err != nil {
		return nil, err
	}
	var cropLeft, cropRight, cropTop, cropBottom uint32
	if frameCropping {
		if cropLeft, err = br.ReadUE(); err != nil {
			return nil, err
		}
		if cropRight, err = br.ReadUE(); err != nil {
			return nil, err
		}
		if cropTop, err = br.ReadUE(); err != nil {
			return nil, err
		}
		if cropBottom, err = br.ReadUE(); err != nil {
			return nil, err
		}
	}

	frameMbsOnlyBit := uint32(0)
	if frameMbsOnly {
		frameMbsOnlyBit = 1
	}
	width := (picWidthInMbsMinus1 + 1) * 16
	height := (2 - frameMbsOnlyBit) * (picHeightInMapUnitsMinus1 + 1) * 16

	cropUnitX, cropUnitY := chromaCropUnits(info.ChromaFormatIDC, frameMbsOnly)
	width -= cropUnitX * (cropLeft + cropRight)
	height -= cropUnitY * (cropTop + cropBottom)

	info.Width = int(width)
	info.Height = int(height)
	return info, nil
}

func chromaCropUnits(chromaFormatIDC uint8, frameMbsOnly bool) (uint32, uint32) {
	var subWidthC, subHeightC uint32 = 2, 2
	switch chromaFormatIDC {
	case 0: // monochrome
		subWidthC, subHeightC = 1, 1
	case 1: // 4:2:0
		subWidthC, subHeightC = 2, 2
	case 2: // 4:2:2
		subWidthC, subHeightC = 2, 1
	case 3: // 4:4:4
		subWidthC, subHeightC = 1, 1
	}
	cropUnitX := subWidthC
	cropUnitY := subHeightC
	if !frameMbsOnly {
		cropUnitY *= 2
	}
	return cropUnitX, cropUnitY
}

func skipScalingList(br *bitio.BitReader, size int) error {
	lastScale, nextScale := int32(8), int32(8)
	for i := 0; i < size; i++ {
		if nextScale != 0 {
			deltaScale, err := br.ReadSE()
			if err != nil {
				return err
			}
			nextScale = (lastScale + deltaScale + 256) % 256
		}
		if nextScale != 0 {
			lastScale = nextScale
		}
	}
	return nil
}

// unescapeEmulationPrevention removes the 0x03 emulation-prevention byte
// that follows every 0x00 0x00 in Annex B RBSP data.
func unescapeEmulationPrevention(b []byte) []byte {
	out := make([]byte, 0, len(b))
	zeroRun := 0
	for _, c := range b {
		if zeroRun >= 2 && c == 0x03 {
			zeroRun = 0
			continue
		}
		if c == 0x00 {
			zeroRun++
		} else {
			zeroRun = 0
		}
		out = append(out, c)
	}
	return out
}
