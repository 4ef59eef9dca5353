package transcoder

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/streamforge/live/internal/ids"
	"github.com/streamforge/live/internal/ingest"
)

func TestFLVFileHeader_HasExpectedMagicAndFlags(t *testing.T) {
	h := flvFileHeader()
	if len(h) != 13 {
		t.Fatalf("header length = %d, want 13", len(h))
	}
	if string(h[0:3]) != "FLV" {
		t.Fatalf("bad magic: %q", h[0:3])
	}
	if h[3] != 1 {
		t.Fatalf("version = %d, want 1", h[3])
	}
	if h[4] != 0x05 {
		t.Fatalf("flags = %#x, want 0x05 (audio+video)", h[4])
	}
	if binary.BigEndian.Uint32(h[5:9]) != 9 {
		t.Fatalf("header size field = %d, want 9", binary.BigEndian.Uint32(h[5:9]))
	}
}

func TestEncodeFLVTag_VideoTagLayout(t *testing.T) {
	frame := ingest.Frame{Timestamp: 0x01020304, Kind: ingest.FrameVideo, Data: []byte{0xAA, 0xBB, 0xCC}}
	tag := encodeFLVTag(frame)

	if len(tag) != 11+3+4 {
		t.Fatalf("tag length = %d, want %d", len(tag), 11+3+4)
	}
	if tag[0] != 9 {
		t.Fatalf("tag type = %d, want 9 (video)", tag[0])
	}
	dataSize := int(tag[1])<<16 | int(tag[2])<<8 | int(tag[3])
	if dataSize != 3 {
		t.Fatalf("data size = %d, want 3", dataSize)
	}
	if !bytes.Equal(tag[11:14], frame.Data) {
		t.Fatalf("payload mismatch: got %x, want %x", tag[11:14], frame.Data)
	}
	prevTagSize := binary.BigEndian.Uint32(tag[14:18])
	if prevTagSize != uint32(len(tag)-4) {
		t.Fatalf("prev tag size = %d, want %d", prevTagSize, len(tag)-4)
	}
}

func TestEncodeFLVTag_AudioAndMetadataTagTypes(t *testing.T) {
	audio := encodeFLVTag(ingest.Frame{Kind: ingest.FrameAudio, Data: []byte{1}})
	if audio[0] != 8 {
		t.Fatalf("audio tag type = %d, want 8", audio[0])
	}
	meta := encodeFLVTag(ingest.Frame{Kind: ingest.FrameMetadata, Data: []byte{1}})
	if meta[0] != 18 {
		t.Fatalf("metadata tag type = %d, want 18", meta[0])
	}
}

func TestReadBoxBytes_ReadsExactlyOneBox(t *testing.T) {
	box := make([]byte, 16)
	binary.BigEndian.PutUint32(box[0:4], 16)
	copy(box[4:8], "ftyp")
	buf := bytes.NewReader(append(append([]byte{}, box...), []byte("trailing")...))

	got, err := readBoxBytes(buf)
	if err != nil {
		t.Fatalf("readBoxBytes: %v", err)
	}
	if !bytes.Equal(got, box) {
		t.Fatalf("got %x, want %x", got, box)
	}
	rest, _ := io.ReadAll(buf)
	if string(rest) != "trailing" {
		t.Fatalf("expected the reader to stop at the box boundary, got %q", rest)
	}
}

func TestReadBoxBytes_RejectsUndersizedBox(t *testing.T) {
	box := make([]byte, 8)
	binary.BigEndian.PutUint32(box[0:4], 4) // smaller than the 8-byte header itself
	if _, err := readBoxBytes(bytes.NewReader(box)); err == nil {
		t.Fatalf("expected an error for an undersized box")
	}
}

func TestReadBoxBytes_PropagatesShortRead(t *testing.T) {
	box := make([]byte, 4)
	binary.BigEndian.PutUint32(box[0:4], 16) // claims 16 bytes total but only 4 are present
	if _, err := readBoxBytes(bytes.NewReader(box)); err == nil {
		t.Fatalf("expected an error for a truncated box")
	}
}

func TestPartKeyPrefixAndObjectKey_AreStable(t *testing.T) {
	connID := ids.New()
	prefix := partKeyPrefix(connID, 0)
	key := partObjectKey(connID, 0, 7)
	if key != prefix+"/7.m4s" {
		t.Fatalf("partObjectKey = %q, want %q", key, prefix+"/7.m4s")
	}
}
