// Package hevc parses the HEVCDecoderConfigurationRecord (ISO/IEC 14496-15)
// carried in the Enhanced RTMP hvcC sequence header and the fmp4 hvcC box.
package hevc

import (
	"fmt"

	"github.com/streamforge/live/internal/bitio"
)

// NALUArray is one of the VPS/SPS/PPS (or SEI) arrays in the config record.
type NALUArray struct {
	ArrayCompleteness bool
	NALUnitType       uint8
	NALUs             [][]byte
}

// DecoderConfig is a parsed HEVCDecoderConfigurationRecord.
type DecoderConfig struct {
	ConfigurationVersion       uint8
	GeneralProfileSpace        uint8
	GeneralTierFlag            bool
	GeneralProfileIDC          uint8
	GeneralProfileCompat       uint32
	GeneralConstraintIndicator uint64 // 48 bits
	GeneralLevelIDC            uint8
	MinSpatialSegmentationIDC  uint16
	ParallelismType            uint8
	ChromaFormat               uint8
	BitDepthLumaMinus8         uint8
	BitDepthChromaMinus8       uint8
	AvgFrameRate               uint16
	ConstantFrameRate          uint8
	NumTemporalLayers          uint8
	TemporalIDNested           bool
	LengthSizeMinusOne         uint8
	Arrays                     []NALUArray
}

// ParseDecoderConfig parses an HEVCDecoderConfigurationRecord.
func ParseDecoderConfig(data []byte) (*DecoderConfig, error) {
	if len(data) < 23 {
		return nil, fmt.Errorf("hevc: config record too short: %d bytes", len(data))
	}
	r := bitio.NewReader(data)
	cfg := &DecoderConfig{}

	b, _ := r.ReadU8()
	cfg.ConfigurationVersion = b

	b, _ = r.ReadU8()
	cfg.GeneralProfileSpace = b >> 6
	cfg.GeneralTierFlag = (b>>5)&0x01 == 1
	cfg.GeneralProfileIDC = b & 0x1F

	compat, err := r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("hevc: profile compatibility: %w", err)
	}
	cfg.GeneralProfileCompat = compat

	constraintHi, err := r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("hevc: constraint indicator hi: %w", err)
	}
	constraintLo, err := r.ReadU16()
	if err != nil {
		return nil, fmt.Errorf("hevc: constraint indicator lo: %w", err)
	}
	cfg.GeneralConstraintIndicator = uint64(constraintHi)<<16 | uint64(constraintLo)

	if cfg.GeneralLevelIDC, err = r.ReadU8(); err != nil {
		return nil, fmt.Errorf("hevc: level idc: %w", err)
	}

	minSpatialSeg, err := r.ReadU16()
	if err != nil {
		return nil, fmt.Errorf("hevc: min spatial segmentation: %w", err)
	}
	cfg.MinSpatialSegmentationIDC = minSpatialSeg & 0x0FFF

	if cfg.ParallelismType, err = r.ReadU8(); err != nil {
		return nil, fmt.Errorf("hevc: parallelism type: %w", err)
	}
	cfg.ParallelismType &= 0x03

	chromaFmt, err := r.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("hevc: chroma format: %w", err)
	}
	cfg.ChromaFormat = chromaFmt & 0x03

	bdLuma, err := r.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("hevc: bit depth luma: %w", err)
	}
	cfg.BitDepthLumaMinus8 = bdLuma & 0x07

	bdChroma, err := r.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("hevc: bit depth chroma: %w", err)
	}
	cfg.BitDepthChromaMinus8 = bdChroma & 0x07

	if cfg.AvgFrameRate, err = r.ReadU16(); err != nil {
		return nil, fmt.Errorf("hevc: avg frame rate: %w", err)
	}

	b, err = r.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("hevc: layer/length byte: %w", err)
	}
	cfg.ConstantFrameRate = (b >> 6) & 0x03
	cfg.NumTemporalLayers = (b >> 3) & 0x07
	cfg.TemporalIDNested = (b>>2)&0x01 == 1
	cfg.LengthSizeMinusOne = b & 0x03

	numArrays, err := r.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("hevc: numOfArrays: %w", err)
	}
	for i := 0; i < int(numArrays); i++ {
		hdr, err := r.ReadU8()
		if err != nil {
			return nil, fmt.Errorf("hevc: array[%d] header: %w", i, err)
		}
		arr := NALUArray{
			ArrayCompleteness: hdr&0x80 != 0,
			NALUnitType:       hdr & 0x3F,
		}
		count, err := r.ReadU16()
		if err != nil {
			return nil, fmt.Errorf("hevc: array[%d] count: %w", i, err)
		}
		for j := 0; j < int(count); j++ {
			length, err := r.ReadU16()
			if err != nil {
				return nil, fmt.Errorf("hevc: array[%d] nalu[%d] length: %w", i, j, err)
			}
			nalu, err := r.ReadBytes(int(length))
			if err != nil {
				return nil, fmt.Errorf("hevc: array[%d] nalu[%d]: %w", i, j, err)
			}
			arr.NALUs = append(arr.NALUs, nalu)
		}
		cfg.Arrays = append(cfg.Arrays, arr)
	}
	return cfg, nil
}

// Marshal serializes the config back to an HEVCDecoderConfigurationRecord.
func (c *DecoderConfig) Marshal() []byte {
	w := bitio.NewWriter(32)
	w.WriteU8(c.ConfigurationVersion)
	w.WriteU8((c.GeneralProfileSpace << 6) | boolBit(c.GeneralTierFlag)<<5 | (c.GeneralProfileIDC & 0x1F))
	w.WriteU32(c.GeneralProfileCompat)
	w.WriteU32(uint32(c.GeneralConstraintIndicator >> 16))
	w.WriteU16(uint16(c.GeneralConstraintIndicator & 0xFFFF))
	w.WriteU8(c.GeneralLevelIDC)
	w.WriteU16(0xF000 | c.MinSpatialSegmentationIDC)
	w.WriteU8(0xFC | c.ParallelismType)
	w.WriteU8(0xFC | c.ChromaFormat)
	w.WriteU8(0xF8 | c.BitDepthLumaMinus8)
	w.WriteU8(0xF8 | c.BitDepthChromaMinus8)
	w.WriteU16(c.AvgFrameRate)
	w.WriteU8((c.ConstantFrameRate << 6) | (c.NumTemporalLayers << 3) | boolBit(c.TemporalIDNested)<<2 | c.LengthSizeMinusOne)
	w.WriteU8(uint8(len(c.Arrays)))
	for _, arr := range c.Arrays {
		hdr := arr.NALUnitType & 0x3F
		if arr.ArrayCompleteness {
			hdr |= 0x80
		}
		w.WriteU8(hdr)
		w.WriteU16(uint16(len(arr.NALUs)))
		for _, nalu := range arr.NALUs {
			w.WriteU16(uint16(len(nalu)))
			w.WriteBytes(nalu)
		}
	}
	return w.Bytes()
}

func boolBit(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// NALUnitTypeVPS/SPS/PPS are the NALU unit type values used in Arrays.
const (
	NALUnitTypeVPS = 32
	NALUnitTypeSPS = 33
	NALUnitTypePPS = 34
)

// SPSByType returns the first NALU payload for the given array type, or nil.
func (c *DecoderConfig) SPSByType(naluType uint8) []byte {
	for _, arr := range c.Arrays {
		if arr.NALUnitType == naluType && len(arr.NALUs) > 0 {
			return arr.NALUs[0]
		}
	}
	return nil
}
