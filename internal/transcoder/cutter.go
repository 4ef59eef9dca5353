package transcoder

// partCutter assigns each emitted CMAF part its (part_idx, segment_idx,
// segment_part_idx), honoring §4.2 step 5's segment-cut rule: a segment
// closes when its cumulative duration has reached the minimum AND the
// next part is independent. FFmpeg is configured with
// frag_keyframe+frag_duration so each emitted fragment already sits close
// to the target part cadence (250-350ms); this cutter promotes every
// fragment straight to a part rather than re-splicing sample data across
// fragment boundaries, and only decides where SEGMENTS break.
type partCutter struct {
	minSegmentTS uint64

	nextPartIdx   uint64
	haveSegment   bool
	curSegmentIdx uint64
	curSegPartIdx uint64
	segAccumTS    uint64
}

func newPartCutter(timescale uint32) *partCutter {
	ts := uint64(timescale)
	if ts == 0 {
		ts = 90000
	}
	return &partCutter{minSegmentTS: ts * uint64(segmentMinDuration/1_000_000_000)}
}

// feed registers one fragment-as-part of durationTS ticks, independent iff
// its first sample is a keyframe, and returns the indices to stamp on it.
func (c *partCutter) feed(durationTS uint64, independent bool) (partIdx, segmentIdx, segmentPartIdx uint64) {
	partIdx = c.nextPartIdx
	c.nextPartIdx++

	if independent && c.haveSegment && c.segAccumTS >= c.minSegmentTS {
		c.curSegmentIdx++
		c.curSegPartIdx = 0
		c.segAccumTS = 0
	}
	c.haveSegment = true

	segmentIdx = c.curSegmentIdx
	segmentPartIdx = c.curSegPartIdx
	c.curSegPartIdx++
	c.segAccumTS += durationTS
	return
}
