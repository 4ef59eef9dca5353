// Package av1 parses the AV1CodecConfigurationRecord (AOM AV1 in ISOBMFF
// §A.2) carried in the Enhanced RTMP av1C sequence header and the fmp4
// av1C box.
package av1

import (
	"fmt"

	"github.com/streamforge/live/internal/bitio"
)

// DecoderConfig is a parsed AV1CodecConfigurationRecord.
type DecoderConfig struct {
	SeqProfile           uint8
	SeqLevelIdx0         uint8
	SeqTier0             bool
	HighBitdepth         bool
	TwelveBit            bool
	Monochrome           bool
	ChromaSubsamplingX   bool
	ChromaSubsamplingY   bool
	ChromaSamplePosition uint8
	InitialPresentationDelayPresent bool
	InitialPresentationDelayMinusOne uint8
	ConfigOBUs          []byte // sequence header and any other leading OBUs
}

// ParseDecoderConfig parses an AV1CodecConfigurationRecord.
func ParseDecoderConfig(data []byte) (*DecoderConfig, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("av1: config record too short: %d bytes", len(data))
	}
	br := bitio.NewBitReader(data)

	marker, err := br.ReadBits(1)
	if err != nil {
		return nil, err
	}
	if marker != 1 {
		return nil, fmt.Errorf("av1: marker bit must be 1")
	}
	version, err := br.ReadBits(7)
	if err != nil {
		return nil, err
	}
	if version != 1 {
		return nil, fmt.Errorf("av1: unsupported config record version %d", version)
	}

	cfg := &DecoderConfig{}
	seqProfile, _ := br.ReadBits(3)
	cfg.SeqProfile = uint8(seqProfile)
	levelIdx, _ := br.ReadBits(5)
	cfg.SeqLevelIdx0 = uint8(levelIdx)
	tier, err := br.ReadFlag()
	if err != nil {
		return nil, err
	}
	cfg.SeqTier0 = tier

	if cfg.HighBitdepth, err = br.ReadFlag(); err != nil {
		return nil, err
	}
	if cfg.TwelveBit, err = br.ReadFlag(); err != nil {
		return nil, err
	}
	if cfg.Monochrome, err = br.ReadFlag(); err != nil {
		return nil, err
	}
	if cfg.ChromaSubsamplingX, err = br.ReadFlag(); err != nil {
		return nil, err
	}
	if cfg.ChromaSubsamplingY, err = br.ReadFlag(); err != nil {
		return nil, err
	}
	chromaPos, err := br.ReadBits(2)
	if err != nil {
		return nil, err
	}
	cfg.ChromaSamplePosition = uint8(chromaPos)

	if _, err := br.ReadBits(3); err != nil { // reserved
		return nil, err
	}
	present, err := br.ReadFlag()
	if err != nil {
		return nil, err
	}
	cfg.InitialPresentationDelayPresent = present
	if present {
		delay, err := br.ReadBits(4)
		if err != nil {
			return nil, err
		}
		cfg.InitialPresentationDelayMinusOne = uint8(delay)
	} else {
		if _, err := br.ReadBits(4); err != nil { // reserved
			return nil, err
		}
	}

	br.ByteAlign()
	remaining := br.BitsRemaining() / 8
	cfg.ConfigOBUs = data[len(data)-remaining:]
	return cfg, nil
}

// Marshal serializes the config back to an AV1CodecConfigurationRecord.
func (c *DecoderConfig) Marshal() []byte {
	bw := bitio.NewBitWriter()
	bw.WriteBits(1, 1) // marker
	bw.WriteBits(1, 7) // version
	bw.WriteBits(uint64(c.SeqProfile), 3)
	bw.WriteBits(uint64(c.SeqLevelIdx0), 5)
	bw.WriteBits(uint64(boolBit(c.SeqTier0)), 1)
	bw.WriteBits(uint64(boolBit(c.HighBitdepth)), 1)
	bw.WriteBits(uint64(boolBit(c.TwelveBit)), 1)
	bw.WriteBits(uint64(boolBit(c.Monochrome)), 1)
	bw.WriteBits(uint64(boolBit(c.ChromaSubsamplingX)), 1)
	bw.WriteBits(uint64(boolBit(c.ChromaSubsamplingY)), 1)
	bw.WriteBits(uint64(c.ChromaSamplePosition), 2)
	bw.WriteBits(0, 3) // reserved
	bw.WriteBits(uint64(boolBit(c.InitialPresentationDelayPresent)), 1)
	if c.InitialPresentationDelayPresent {
		bw.WriteBits(uint64(c.InitialPresentationDelayMinusOne), 4)
	} else {
		bw.WriteBits(0, 4)
	}
	out := bw.Bytes()
	return append(out, c.ConfigOBUs...)
}

func boolBit(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
