package flv

import "testing"

func TestParseAudioTagAACSequenceHeader(t *testing.T) {
	data := []byte{0xAF, 0x00, 0x12, 0x10}
	tag, err := ParseAudioTag(data)
	if err != nil {
		t.Fatalf("ParseAudioTag: %v", err)
	}
	if !tag.IsAAC {
		t.Fatalf("expected AAC format")
	}
	if tag.PacketType != AACPacketTypeSequenceHeader {
		t.Fatalf("expected sequence header packet type, got %d", tag.PacketType)
	}
	if !tag.IsSequenceHeaderTag() {
		t.Fatalf("IsSequenceHeaderTag should be true")
	}
	if len(tag.Payload) != 2 {
		t.Fatalf("expected 2 payload bytes, got %d", len(tag.Payload))
	}
}

func TestParseVideoTagLegacyAVCKeyframe(t *testing.T) {
	data := []byte{0x17, 0x01, 0x00, 0x00, 0x00, 0xDE, 0xAD}
	vt, err := ParseVideoTag(data)
	if err != nil {
		t.Fatalf("ParseVideoTag: %v", err)
	}
	if vt.Codec != VideoCodecAVC {
		t.Fatalf("expected AVC codec")
	}
	if !vt.IsKeyframe() {
		t.Fatalf("expected keyframe")
	}
	if vt.AVCPacketType != AVCPacketTypeNALU {
		t.Fatalf("expected NALU packet type")
	}
	if len(vt.Payload) != 2 {
		t.Fatalf("expected 2 payload bytes, got %d", len(vt.Payload))
	}
}

func TestParseVideoTagEnhancedHEVC(t *testing.T) {
	b0 := byte(enhancedRTMPFrameMarker) | (byte(FrameTypeKey) << 4) | byte(ExPacketTypeCodedFrames)
	data := []byte{b0, 'h', 'v', 'c', '1', 0x00, 0x00, 0x00, 0xBE, 0xEF}
	vt, err := ParseVideoTag(data)
	if err != nil {
		t.Fatalf("ParseVideoTag: %v", err)
	}
	if !vt.IsEnhanced {
		t.Fatalf("expected enhanced tag")
	}
	if vt.Codec != VideoCodecHEVC {
		t.Fatalf("expected HEVC codec")
	}
	if !vt.IsKeyframe() {
		t.Fatalf("expected keyframe")
	}
	if len(vt.Payload) != 2 {
		t.Fatalf("expected 2 payload bytes, got %d", len(vt.Payload))
	}
}

func TestParseVideoTagEnhancedSequenceStart(t *testing.T) {
	b0 := byte(enhancedRTMPFrameMarker) | (byte(FrameTypeKey) << 4) | byte(ExPacketTypeSequenceStart)
	data := []byte{b0, 'a', 'v', '0', '1', 0x01, 0x02, 0x03}
	vt, err := ParseVideoTag(data)
	if err != nil {
		t.Fatalf("ParseVideoTag: %v", err)
	}
	if vt.Codec != VideoCodecAV1 {
		t.Fatalf("expected AV1 codec")
	}
	if !vt.IsSequenceHeader() {
		t.Fatalf("expected sequence header")
	}
	if len(vt.Payload) != 3 {
		t.Fatalf("expected 3 payload bytes (no composition time for sequence start), got %d", len(vt.Payload))
	}
}

func TestParseVideoTagUnsupportedFourCC(t *testing.T) {
	b0 := byte(enhancedRTMPFrameMarker) | (byte(FrameTypeKey) << 4) | byte(ExPacketTypeCodedFrames)
	data := []byte{b0, 'z', 'z', 'z', 'z'}
	if _, err := ParseVideoTag(data); err == nil {
		t.Fatalf("expected error for unsupported fourcc")
	}
}
