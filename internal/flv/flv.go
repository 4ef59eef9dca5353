// Package flv demuxes the FLV tag stream carried inside RTMP audio/video/
// script messages. It recognizes both the legacy (AVC-only) video tag
// layout and the "Enhanced RTMP" extensions that add FourCC-keyed packet
// types for HEVC and AV1.
package flv

import (
	"fmt"

	"github.com/streamforge/live/internal/bitio"
)

// TagType identifies the FLV tag kind.
type TagType uint8

const (
	TagAudio  TagType = 8
	TagVideo  TagType = 9
	TagScript TagType = 18
)

// AudioFormat is the legacy FLV SoundFormat nibble.
type AudioFormat uint8

const (
	AudioFormatAAC  AudioFormat = 10
	AudioFormatOpus AudioFormat = 13 // Opus as a legacy SoundFormat id; this package parses no audio FourCC headers.
)

// AACPacketType distinguishes the AAC sequence header from raw frames.
type AACPacketType uint8

const (
	AACPacketTypeSequenceHeader AACPacketType = 0
	AACPacketTypeRaw            AACPacketType = 1
)

// AudioTag is a parsed FLV audio tag body (message type 8).
type AudioTag struct {
	Format      AudioFormat
	SampleRate  uint8 // legacy 2-bit code, informational only; real rate comes from ASC
	SampleSize  uint8
	Stereo      bool
	PacketType  AACPacketType
	IsAAC       bool
	Payload     []byte // sequence header bytes, or raw frame bytes
}

// ParseAudioTag parses an FLV audio tag body.
func ParseAudioTag(data []byte) (*AudioTag, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("flv: empty audio tag")
	}
	r := bitio.NewReader(data)
	b0, err := r.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("flv: audio header: %w", err)
	}
	tag := &AudioTag{
		Format:     AudioFormat(b0 >> 4),
		SampleRate: (b0 >> 2) & 0x03,
		SampleSize: (b0 >> 1) & 0x01,
		Stereo:     b0&0x01 == 1,
	}
	if tag.Format == AudioFormatAAC {
		tag.IsAAC = true
		pt, err := r.ReadU8()
		if err != nil {
			return nil, fmt.Errorf("flv: aac packet type: %w", err)
		}
		tag.PacketType = AACPacketType(pt)
	}
	tag.Payload = r.Remaining()
	return tag, nil
}

// FrameType is the FLV video FrameType nibble (1=key, 2=inter, ...).
type FrameType uint8

const (
	FrameTypeKey        FrameType = 1
	FrameTypeInter      FrameType = 2
	FrameTypeDisposable FrameType = 3
	FrameTypeGenerated  FrameType = 4
	FrameTypeCommand    FrameType = 5
)

// VideoCodec identifies the elementary video codec in a tag.
type VideoCodec uint8

const (
	VideoCodecUnknown VideoCodec = iota
	VideoCodecAVC
	VideoCodecHEVC
	VideoCodecAV1
)

// AVCPacketType distinguishes sequence header / NALU / end-of-sequence.
type AVCPacketType uint8

const (
	AVCPacketTypeSequenceHeader AVCPacketType = 0
	AVCPacketTypeNALU           AVCPacketType = 1
	AVCPacketTypeEndOfSequence  AVCPacketType = 2
)

// Enhanced RTMP packet types (FourCC-keyed path), per the public Enhanced
// RTMP spec's ExVideoTagHeader. Only the subset this pipeline needs.
type ExPacketType uint8

const (
	ExPacketTypeSequenceStart    ExPacketType = 0
	ExPacketTypeCodedFrames      ExPacketType = 1
	ExPacketTypeSequenceEnd      ExPacketType = 2
	ExPacketTypeCodedFramesX     ExPacketType = 3 // no composition time offset
	ExPacketTypeMetadata         ExPacketType = 4
	ExPacketTypeMPEG2TSSequence  ExPacketType = 5
)

var fourCCToCodec = map[[4]byte]VideoCodec{
	{'h', 'v', 'c', '1'}: VideoCodecHEVC,
	{'h', 'e', 'v', 'c'}: VideoCodecHEVC,
	{'a', 'v', '0', '1'}: VideoCodecAV1,
}

// VideoTag is a parsed FLV video tag body (message type 9), covering both
// the legacy AVC layout and the Enhanced RTMP FourCC layout.
type VideoTag struct {
	FrameType         FrameType
	Codec             VideoCodec
	IsEnhanced        bool
	AVCPacketType     AVCPacketType // legacy path only
	ExPacketType      ExPacketType  // enhanced path only
	CompositionTimeMS int32
	Payload           []byte
}

const enhancedRTMPFrameMarker = 0x80 // top bit of byte 0 signals the enhanced (FourCC) layout

// ParseVideoTag parses an FLV video tag body, dispatching on whether the
// enhanced-RTMP bit is set in the first byte.
func ParseVideoTag(data []byte) (*VideoTag, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("flv: empty video tag")
	}
	b0 := data[0]
	if b0&enhancedRTMPFrameMarker != 0 {
		return parseEnhancedVideoTag(data)
	}
	return parseLegacyVideoTag(data)
}

func parseLegacyVideoTag(data []byte) (*VideoTag, error) {
	r := bitio.NewReader(data)
	b0, _ := r.ReadU8()
	vt := &VideoTag{FrameType: FrameType((b0 >> 4) & 0x0F)}
	codecID := b0 & 0x0F
	switch codecID {
	case 7:
		vt.Codec = VideoCodecAVC
	default:
		return nil, fmt.Errorf("flv: unsupported legacy codec id %d", codecID)
	}
	pt, err := r.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("flv: avc packet type: %w", err)
	}
	vt.AVCPacketType = AVCPacketType(pt)
	cts, err := r.ReadU24()
	if err != nil {
		return nil, fmt.Errorf("flv: composition time: %w", err)
	}
	vt.CompositionTimeMS = signExtend24(cts)
	vt.Payload = r.Remaining()
	return vt, nil
}

// parseEnhancedVideoTag parses the Enhanced RTMP ExVideoTagHeader layout:
// bit7 = enhanced marker, bits 6-4 = FrameType, bits 3-0 = PacketType,
// followed by a 4-byte FourCC codec identifier.
func parseEnhancedVideoTag(data []byte) (*VideoTag, error) {
	r := bitio.NewReader(data)
	b0, _ := r.ReadU8()
	vt := &VideoTag{
		IsEnhanced:   true,
		FrameType:    FrameType((b0 >> 4) & 0x07),
		ExPacketType: ExPacketType(b0 & 0x0F),
	}
	fourCCBytes, err := r.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("flv: fourcc: %w", err)
	}
	var fourCC [4]byte
	copy(fourCC[:], fourCCBytes)
	codec, ok := fourCCToCodec[fourCC]
	if !ok {
		return nil, fmt.Errorf("flv: unsupported enhanced fourcc %q", fourCCBytes)
	}
	vt.Codec = codec
	if vt.ExPacketType == ExPacketTypeCodedFrames {
		cts, err := r.ReadU24()
		if err != nil {
			return nil, fmt.Errorf("flv: enhanced composition time: %w", err)
		}
		vt.CompositionTimeMS = signExtend24(cts)
	}
	vt.Payload = r.Remaining()
	return vt, nil
}

func signExtend24(v uint32) int32 {
	if v&0x800000 != 0 {
		return int32(v) - 0x1000000
	}
	return int32(v)
}

// IsKeyframe reports whether the tag begins an independent picture, the
// signal the Part cutter uses to decide segment-independent boundaries.
func (vt *VideoTag) IsKeyframe() bool {
	return vt.FrameType == FrameTypeKey
}

// IsSequenceHeader reports whether this tag carries codec config data
// rather than coded picture/audio data.
func (vt *VideoTag) IsSequenceHeader() bool {
	if vt.IsEnhanced {
		return vt.ExPacketType == ExPacketTypeSequenceStart
	}
	return vt.AVCPacketType == AVCPacketTypeSequenceHeader
}

// IsSequenceHeaderTag reports whether this audio tag carries an AudioSpecificConfig.
func (at *AudioTag) IsSequenceHeaderTag() bool {
	return at.IsAAC && at.PacketType == AACPacketTypeSequenceHeader
}
