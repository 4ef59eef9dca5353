package transcoder

import "testing"

func TestPartCutter_FirstPartOpensSegmentZero(t *testing.T) {
	c := newPartCutter(90000)
	partIdx, segIdx, segPartIdx := c.feed(22500, true)
	if partIdx != 0 || segIdx != 0 || segPartIdx != 0 {
		t.Fatalf("got (%d,%d,%d), want (0,0,0)", partIdx, segIdx, segPartIdx)
	}
}

func TestPartCutter_StaysInSegmentUntilMinDurationReached(t *testing.T) {
	c := newPartCutter(90000)
	c.feed(22500, true) // part 0, opens segment 0

	// An independent part arriving before the segment minimum (2s) must not
	// cut a new segment.
	_, segIdx, segPartIdx := c.feed(22500, true)
	if segIdx != 0 || segPartIdx != 1 {
		t.Fatalf("got (seg=%d, segPart=%d), want (0,1)", segIdx, segPartIdx)
	}
}

func TestPartCutter_CutsNewSegmentOnceMinDurationAndIndependent(t *testing.T) {
	c := newPartCutter(90000) // minSegmentTS = 90000*2 = 180000

	total := uint64(0)
	partIdx, segIdx, segPartIdx := uint64(0), uint64(0), uint64(0)
	for total < 180000 {
		partIdx, segIdx, segPartIdx = c.feed(22500, false)
		total += 22500
	}
	_ = partIdx

	// Next independent part should open segment 1 at segment-part 0.
	nextPart, nextSeg, nextSegPart := c.feed(22500, true)
	if nextSeg != segIdx+1 {
		t.Fatalf("segment did not advance: got %d, want %d", nextSeg, segIdx+1)
	}
	if nextSegPart != 0 {
		t.Fatalf("new segment's first part has segPartIdx = %d, want 0", nextSegPart)
	}
	if nextPart != partIdx+1 {
		t.Fatalf("part index did not advance monotonically: got %d, want %d", nextPart, partIdx+1)
	}
	_ = segPartIdx
}

func TestPartCutter_NonIndependentPartNeverCutsSegment(t *testing.T) {
	c := newPartCutter(90000)
	c.feed(1_000_000, true) // far past the segment minimum

	_, segIdx, segPartIdx := c.feed(1_000_000, false)
	if segIdx != 0 || segPartIdx != 1 {
		t.Fatalf("non-independent part cut a new segment: got (seg=%d, segPart=%d)", segIdx, segPartIdx)
	}
}

func TestPartCutter_PartIndexAlwaysMonotonic(t *testing.T) {
	c := newPartCutter(48000)
	var last uint64
	for i := 0; i < 50; i++ {
		partIdx, _, _ := c.feed(12000, i%7 == 0)
		if i > 0 && partIdx != last+1 {
			t.Fatalf("part index jumped at i=%d: got %d, want %d", i, partIdx, last+1)
		}
		last = partIdx
	}
}
