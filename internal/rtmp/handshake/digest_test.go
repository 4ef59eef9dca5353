package handshake

import (
	"crypto/rand"
	"testing"
)

func buildDigestC1(t *testing.T, sch digestScheme) []byte {
	t.Helper()
	c1 := make([]byte, PacketSize)
	if _, err := rand.Read(c1); err != nil {
		t.Fatalf("rand: %v", err)
	}
	blockStart := 0
	if sch == scheme1 {
		blockStart = digestBlockSize
	}
	block := c1[blockStart : blockStart+digestBlockSize]
	digestPos := blockStart + offsetInBlock(block)

	without := make([]byte, 0, PacketSize-digestSize)
	without = append(without, c1[:digestPos]...)
	without = append(without, c1[digestPos+digestSize:]...)
	digest := hmac256(fpKey(), without)
	copy(c1[digestPos:digestPos+digestSize], digest)
	return c1
}

func TestProbeDigestSchemeScheme0(t *testing.T) {
	c1 := buildDigestC1(t, scheme0)
	sch, _ := probeDigestScheme(c1)
	if sch != scheme0 {
		t.Fatalf("expected scheme0, got %v", sch)
	}
}

func TestProbeDigestSchemeScheme1(t *testing.T) {
	c1 := buildDigestC1(t, scheme1)
	sch, _ := probeDigestScheme(c1)
	if sch != scheme1 {
		t.Fatalf("expected scheme1, got %v", sch)
	}
}

func TestProbeDigestSchemeNoneForRandomData(t *testing.T) {
	c1 := make([]byte, PacketSize)
	if _, err := rand.Read(c1); err != nil {
		t.Fatalf("rand: %v", err)
	}
	sch, _ := probeDigestScheme(c1)
	if sch != schemeNone {
		t.Fatalf("expected schemeNone for non-digest-shaped C1, got %v", sch)
	}
}
