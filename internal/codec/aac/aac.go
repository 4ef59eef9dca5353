// Package aac parses the AudioSpecificConfig (ISO/IEC 14496-3 §1.6.2.1)
// carried in the AAC sequence header, including the 24-bit escape for
// samplingFrequencyIndex 15 (explicit frequency) that table-driven decoders
// often miss.
package aac

import (
	"fmt"

	"github.com/streamforge/live/internal/bitio"
)

// sampleRates is the standard samplingFrequencyIndex table (0..12); index 13
// and 14 are reserved, index 15 means "read 24 explicit bits" (escape code).
var sampleRates = [13]int{
	96000, 88200, 64000, 48000, 44100, 32000,
	24000, 22050, 16000, 12000, 11025, 8000, 7350,
}

const explicitFrequencyIndex = 15

// AudioSpecificConfig is the parsed AAC ASC.
type AudioSpecificConfig struct {
	ObjectType           uint8
	SamplingFrequencyIndex uint8
	SamplingFrequency    int // resolved Hz, from table or explicit escape
	ChannelConfig        uint8
}

// Parse parses an AudioSpecificConfig payload (the bytes following the
// AACPacketType byte in an AAC sequence header FLV tag).
func Parse(data []byte) (*AudioSpecificConfig, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("aac: asc too short: %d bytes", len(data))
	}
	br := bitio.NewBitReader(data)
	cfg := &AudioSpecificConfig{}

	objType, err := br.ReadBits(5)
	if err != nil {
		return nil, fmt.Errorf("aac: audioObjectType: %w", err)
	}
	if objType == 31 {
		// Escape: extended object type = 32 + audioObjectTypeExt (6 bits).
		ext, err := br.ReadBits(6)
		if err != nil {
			return nil, fmt.Errorf("aac: extended audioObjectType: %w", err)
		}
		objType = 32 + ext
	}
	cfg.ObjectType = uint8(objType)

	freqIdx, err := br.ReadBits(4)
	if err != nil {
		return nil, fmt.Errorf("aac: samplingFrequencyIndex: %w", err)
	}
	cfg.SamplingFrequencyIndex = uint8(freqIdx)
	if freqIdx == explicitFrequencyIndex {
		explicit, err := br.ReadBits(24)
		if err != nil {
			return nil, fmt.Errorf("aac: explicit samplingFrequency: %w", err)
		}
		cfg.SamplingFrequency = int(explicit)
	} else if int(freqIdx) < len(sampleRates) {
		cfg.SamplingFrequency = sampleRates[freqIdx]
	} else {
		return nil, fmt.Errorf("aac: reserved samplingFrequencyIndex %d", freqIdx)
	}

	chanCfg, err := br.ReadBits(4)
	if err != nil {
		return nil, fmt.Errorf("aac: channelConfiguration: %w", err)
	}
	cfg.ChannelConfig = uint8(chanCfg)

	return cfg, nil
}

// Marshal serializes the config back to an AudioSpecificConfig payload.
func (c *AudioSpecificConfig) Marshal() []byte {
	bw := bitio.NewBitWriter()
	if c.ObjectType >= 32 {
		bw.WriteBits(31, 5)
		bw.WriteBits(uint64(c.ObjectType)-32, 6)
	} else {
		bw.WriteBits(uint64(c.ObjectType), 5)
	}
	bw.WriteBits(uint64(c.SamplingFrequencyIndex), 4)
	if c.SamplingFrequencyIndex == explicitFrequencyIndex {
		bw.WriteBits(uint64(c.SamplingFrequency), 24)
	}
	bw.WriteBits(uint64(c.ChannelConfig), 4)
	return bw.Bytes()
}
