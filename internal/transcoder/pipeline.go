package transcoder

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/streamforge/live/internal/domain"
	"github.com/streamforge/live/internal/eventbus"
	"github.com/streamforge/live/internal/fmp4"
	"github.com/streamforge/live/internal/ids"
	"github.com/streamforge/live/internal/ingest"
	"github.com/streamforge/live/internal/mediastore"
	"github.com/streamforge/live/internal/metastore"
	"github.com/streamforge/live/internal/retry"
)

// partMinDuration is also FFmpeg's configured frag_duration: fragments
// already arrive close to this cadence, so the cutter (cutter.go) only
// decides segment boundaries rather than re-accumulating sample durations.
const (
	partMinDuration    = 250 * time.Millisecond
	segmentMinDuration = 2 * time.Second
)

// pipeline is one claimed connection's full fan-out: ingest link -> FFmpeg
// -> per-rendition box parse -> part/segment cutter -> Media Store +
// manifest publish (+ optional recording tap).
type pipeline struct {
	deps   Deps
	log    *slog.Logger
	roomID ids.ID
	connID ids.ID
	ladder []domain.LadderEntry
	conn   net.Conn

	ffmpeg *ffmpegProcess

	muMaster sync.Mutex
	master   domain.MasterManifest
}

func newPipeline(deps Deps, log *slog.Logger, roomID, connID ids.ID, ladder []domain.LadderEntry, conn net.Conn) *pipeline {
	return &pipeline{deps: deps, log: log, roomID: roomID, connID: connID, ladder: ladder, conn: conn}
}

// run drives the connection until the ingest link closes, FFmpeg dies, or
// ctx is cancelled. It always leaves the connection in a terminal state:
// either the ingest side observed a Signal, or the link is closed.
func (p *pipeline) run(ctx context.Context) {
	defer p.conn.Close()

	proc, err := startFFmpegProcess(p.deps.FFmpegPath, p.ladder)
	if err != nil {
		p.log.Error("failed to start ffmpeg", "error", err)
		p.signalFatal("ffmpeg_start_failed")
		return
	}
	p.ffmpeg = proc
	defer proc.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.pumpIngestToFFmpeg(ctx)
		cancel()
	}()

	for _, entry := range p.ladder {
		out, ok := proc.Output(entry.Rendition)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(entry domain.LadderEntry, r io.Reader) {
			defer wg.Done()
			if err := p.runRendition(ctx, entry, r); err != nil && ctx.Err() == nil {
				p.log.Error("rendition pipeline failed", "rendition", entry.Rendition.String(), "error", err)
			}
		}(entry, out)
	}

	exitErr := make(chan error, 1)
	go func() { exitErr <- proc.Wait() }()

	select {
	case <-ctx.Done():
	case err := <-exitErr:
		p.log.Warn("ffmpeg exited", "error", err)
		cancel()
		if bytesSinceKeyframeIsSafeBoundary() {
			p.signalReconnect("ffmpeg_exited")
		} else {
			p.signalFatal("ffmpeg_exited")
		}
	}
	wg.Wait()

	p.muMaster.Lock()
	p.master.Finished = true
	finalMaster := p.master
	p.muMaster.Unlock()
	if len(finalMaster.Renditions) > 0 {
		if err := retry.Do(context.Background(), retry.DefaultPolicy, func() error {
			return metastore.PutMasterManifest(context.Background(), p.deps.Meta, &finalMaster)
		}); err != nil {
			p.log.Warn("final master manifest publish failed", "error", err)
		}
	}
}

// bytesSinceKeyframeIsSafeBoundary is a placeholder for the real boundary
// check: ingest (not transcoder) owns bytes-since-keyframe bookkeeping, so
// the transcoder always requests a reconnect on its own crash and lets
// ingest apply the safe-boundary rule from its side (see
// internal/ingest.Session.handleReconnect).
func bytesSinceKeyframeIsSafeBoundary() bool { return true }

func (p *pipeline) signalReconnect(reason string) {
	_ = ingest.WriteSignal(p.conn, ingest.Signal{Type: ingest.SignalReconnect, Reason: reason})
}

func (p *pipeline) signalFatal(reason string) {
	_ = ingest.WriteSignal(p.conn, ingest.Signal{Type: ingest.SignalFatal, Reason: reason})
}

// pumpIngestToFFmpeg reads Frames off the ingest link and re-wraps them as
// FLV tags on FFmpeg's stdin, the format FFmpeg's "-f flv" demuxer expects.
func (p *pipeline) pumpIngestToFFmpeg(ctx context.Context) {
	w := p.ffmpeg.Stdin()
	if _, err := w.Write(flvFileHeader()); err != nil {
		p.log.Error("write flv header failed", "error", err)
		return
	}
	for {
		if ctx.Err() != nil {
			return
		}
		frame, err := ingest.ReadFrame(p.conn)
		if err != nil {
			if ctx.Err() == nil {
				p.log.Info("ingest link closed", "error", err)
			}
			return
		}
		if _, err := w.Write(encodeFLVTag(frame)); err != nil {
			p.log.Error("write flv tag failed", "error", err)
			return
		}
	}
}

func flvFileHeader() []byte {
	// "FLV", version 1, flags (audio+video), header size 9, PreviousTagSize0=0.
	return []byte{'F', 'L', 'V', 1, 0x05, 0, 0, 0, 9, 0, 0, 0, 0}
}

func encodeFLVTag(f ingest.Frame) []byte {
	var tagType byte
	switch f.Kind {
	case ingest.FrameAudio:
		tagType = 8
	case ingest.FrameVideo:
		tagType = 9
	default:
		tagType = 18
	}
	dataSize := len(f.Data)
	out := make([]byte, 11+dataSize+4)
	out[0] = tagType
	out[1] = byte(dataSize >> 16)
	out[2] = byte(dataSize >> 8)
	out[3] = byte(dataSize)
	out[4] = byte(f.Timestamp >> 16)
	out[5] = byte(f.Timestamp >> 8)
	out[6] = byte(f.Timestamp)
	out[7] = byte(f.Timestamp >> 24) // timestamp extended byte
	// out[8:11] stream id, always 0
	copy(out[11:], f.Data)
	binary.BigEndian.PutUint32(out[11+dataSize:], uint32(11+dataSize))
	return out
}

// runRendition owns one rendition's output socket end to end: parse the
// init segment, then loop parsing fragments into the part/segment cutter
// and publishing.
func (p *pipeline) runRendition(ctx context.Context, entry domain.LadderEntry, r io.Reader) error {
	br := bufio.NewReaderSize(r, 256<<10)

	track, initBytes, err := p.readInitSegment(br)
	if err != nil {
		return fmt.Errorf("read init segment: %w", err)
	}
	initKey := partKeyPrefix(p.connID, entry.Rendition) + "/init.mp4"
	if err := p.writeMedia(ctx, initKey, initBytes, mediastore.ContentType(initKey)); err != nil {
		return fmt.Errorf("write init segment: %w", err)
	}

	cutter := newPartCutter(track.TimeBase.Den)
	manifest := &domain.RenditionManifest{
		ConnectionID: p.connID,
		Rendition:    entry.Rendition,
		InitKey:      initKey,
		Timescale:    track.TimeBase.Den,
	}
	if err := p.updateMasterManifest(ctx, entry.Rendition, track.TimeBase.Den); err != nil {
		p.log.Warn("master manifest publish failed", "rendition", entry.Rendition.String(), "error", err)
	}

	var rec *recordingTap
	if p.deps.Recordings != nil && p.deps.Rooms != nil {
		rec = p.newRecordingTap(ctx, entry.Rendition, initKey, track.TimeBase.Den)
	}

	bitrate := newBitrateSampler(p.deps, p.roomID, p.connID, entry.Rendition)
	defer bitrate.flush(ctx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		frag, trackID, err := readFragment(br)
		if err != nil {
			if err == io.EOF {
				manifest.Finished = true
				if err := retry.Do(ctx, retry.DefaultPolicy, func() error {
					return metastore.PutRenditionManifest(ctx, p.deps.Meta, p.connID.String(), manifest)
				}); err != nil {
					p.log.Warn("final manifest publish failed", "rendition", entry.Rendition.String(), "error", err)
				}
				p.notifyManifestUpdated(ctx, entry.Rendition)
				return nil
			}
			return fmt.Errorf("read fragment: %w", err)
		}
		_, durTotal, independent := fragmentSamples(frag, trackID)
		partIdx, segIdx, segPartIdx := cutter.feed(durTotal, independent)
		part := &domain.Part{
			ConnectionID:   p.connID,
			Rendition:      entry.Rendition,
			PartIdx:        partIdx,
			SegmentIdx:     segIdx,
			SegmentPartIdx: segPartIdx,
			DurationTS:     durTotal,
			Independent:    independent,
			Bytes:          frag.Mux(),
		}
		key, err := p.publishPart(ctx, entry.Rendition, manifest, part)
		if err != nil {
			return fmt.Errorf("publish part: %w", err)
		}
		bitrate.record(len(part.Bytes), part.DurationTS, track.TimeBase.Den)
		if rec != nil {
			rec.onPart(ctx, p.log, part, key)
		}
	}
}

func (p *pipeline) readInitSegment(r io.Reader) (*domain.Track, []byte, error) {
	ftypBuf, err := readBoxBytes(r)
	if err != nil {
		return nil, nil, err
	}
	moovBuf, err := readBoxBytes(r)
	if err != nil {
		return nil, nil, err
	}
	full := append(ftypBuf, moovBuf...)
	init, consumed, err := fmp4.DemuxInitSegment(full)
	if err != nil {
		return nil, nil, err
	}
	_ = consumed
	if len(init.Movie.Tracks) == 0 {
		return nil, nil, fmt.Errorf("fmp4: init segment has no tracks")
	}
	trak := init.Movie.Tracks[0]
	sd := trak.Media.MediaInformation.SampleTable.SampleDescription
	var codecTag string
	switch {
	case sd.Visual != nil:
		codecTag = sd.Visual.CodecName
	case sd.Audio != nil:
		codecTag = sd.Audio.CodecName
	}
	track := &domain.Track{
		ConnectionID:     p.connID,
		CodecTag:         codecTag,
		InitSegmentBytes: full,
		TimeBase:         domain.TimeBase{Num: 1, Den: trak.Media.Header.Timescale},
	}
	return track, full, nil
}

// readBoxBytes reads exactly one top-level box, header included, off r.
func readBoxBytes(r io.Reader) ([]byte, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(hdr[0:4])
	if size < 8 {
		return nil, fmt.Errorf("fmp4: invalid top-level box size %d", size)
	}
	body := make([]byte, size)
	copy(body, hdr[:])
	if _, err := io.ReadFull(r, body[8:]); err != nil {
		return nil, err
	}
	return body, nil
}

// readFragment reads one moof+mdat pair and returns it along with the
// track id its traf names (a rendition output carries exactly one track).
func readFragment(r io.Reader) (*fmp4.Fragment, uint32, error) {
	moofBuf, err := readBoxBytes(r)
	if err != nil {
		return nil, 0, err
	}
	mdatBuf, err := readBoxBytes(r)
	if err != nil {
		return nil, 0, err
	}
	full := append(moofBuf, mdatBuf...)
	frag, _, err := fmp4.DemuxFragment(full)
	if err != nil {
		return nil, 0, err
	}
	var trackID uint32
	if len(frag.MovieFragment.Tracks) > 0 {
		trackID = frag.MovieFragment.Tracks[0].Header.TrackID
	}
	return frag, trackID, nil
}

// rawSample is one decoded sample's accounting fields plus its byte range
// in the fragment's mdat.
type rawSample struct {
	duration uint32
	keyframe bool
}

// fragmentSamples flattens every trun run in frag's lone traf into ordered
// samples, and reports whether the fragment opens on a keyframe.
func fragmentSamples(frag *fmp4.Fragment, trackID uint32) ([]rawSample, uint64, bool) {
	var samples []rawSample
	var total uint64
	independent := false
	for _, traf := range frag.MovieFragment.Tracks {
		if traf.Header.TrackID != trackID {
			continue
		}
		for ri, run := range traf.Runs {
			for si, s := range run.Samples {
				dur := s.Duration
				if dur == 0 {
					dur = traf.Header.DefaultSampleDuration
				}
				flags := s.Flags
				if si == 0 && run.HasFirstSampleFlags {
					flags = run.FirstSampleFlags
				} else if flags == 0 {
					flags = traf.Header.DefaultSampleFlags
				}
				isSync := flags&sampleDependsOnOthers == 0 || flags&sampleIsNonSync == 0
				if ri == 0 && si == 0 {
					independent = isSync
				}
				samples = append(samples, rawSample{duration: dur, keyframe: isSync})
				total += uint64(dur)
			}
		}
	}
	return samples, total, independent
}

// ISO/IEC 14496-12 sample_flags bit layout (the portion this pipeline
// reads): bit 0x00010000 is sample_is_non_sync_sample.
const (
	sampleDependsOnOthers = 0x01000000
	sampleIsNonSync       = 0x00010000
)

func partKeyPrefix(connID ids.ID, r domain.Rendition) string {
	return domain.PartKeyPrefix(connID, r)
}

func partObjectKey(connID ids.ID, r domain.Rendition, partIdx uint64) string {
	return domain.PartObjectKey(connID, r, partIdx)
}

func (p *pipeline) publishPart(ctx context.Context, r domain.Rendition, manifest *domain.RenditionManifest, part *domain.Part) (string, error) {
	key := partObjectKey(p.connID, r, part.PartIdx)
	if err := p.writeMedia(ctx, key, part.Bytes, mediastore.ContentType(key)); err != nil {
		return "", err
	}

	manifest.Parts = append(manifest.Parts, domain.PartRef{
		Idx: part.PartIdx, SegmentIdx: part.SegmentIdx, SegPartIdx: part.SegmentPartIdx,
		DurationTS: part.DurationTS, Independent: part.Independent, Key: key,
	})
	manifest.NextPartIdx = part.PartIdx + 1
	manifest.NextSegmentPartIdx = part.SegmentPartIdx + 1
	if part.Independent {
		manifest.LastIndependentPartIdx = part.PartIdx
	}
	if part.SegmentPartIdx == 0 {
		if len(manifest.Segments) > 0 {
			manifest.Segments[len(manifest.Segments)-1].PartIdxEnd = part.PartIdx - 1
		}
		manifest.Segments = append(manifest.Segments, domain.SegRef{Idx: part.SegmentIdx, PartIdxStart: part.PartIdx})
		manifest.NextSegmentIdx = part.SegmentIdx + 1
	}

	err := retry.Do(ctx, retry.DefaultPolicy, func() error {
		return metastore.PutRenditionManifest(ctx, p.deps.Meta, p.connID.String(), manifest)
	})
	if err == nil {
		p.notifyManifestUpdated(ctx, r)
	}
	return key, err
}

// notifyManifestUpdated fans out a manifest cut to any edge readers blocked
// on it, on the channel named by the manifest's own Meta Store key: one
// writer (this pipeline) publishing to many subscribers (awaitManifest).
// Best-effort — the Meta Store write above is the durable source of truth,
// this only shortcuts edge's poll fallback.
func (p *pipeline) notifyManifestUpdated(ctx context.Context, r domain.Rendition) {
	if p.deps.Bus == nil {
		return
	}
	channel := metastore.ManifestKey(p.connID.String(), r.String())
	if err := p.deps.Bus.Publish(ctx, channel, eventbus.Event{
		Type:         eventbus.EventManifestUpdated,
		ConnectionID: p.connID.String(),
	}); err != nil {
		p.log.Warn("manifest update notify failed", "rendition", r.String(), "error", err)
	}
}

// updateMasterManifest registers (or updates the timescale of) one
// rendition in the connection's master manifest and republishes it. Called
// once per rendition as soon as its init segment is parsed, so edge can
// build master.m3u8 without waiting for every rendition to produce parts.
func (p *pipeline) updateMasterManifest(ctx context.Context, rendition domain.Rendition, timescale uint32) error {
	p.muMaster.Lock()
	p.master.ConnectionID = p.connID
	found := false
	for i := range p.master.Renditions {
		if p.master.Renditions[i].Rendition == rendition {
			p.master.Renditions[i].Timescale = timescale
			found = true
			break
		}
	}
	if !found {
		p.master.Renditions = append(p.master.Renditions, domain.RenditionRef{
			Rendition:   rendition,
			ManifestKey: metastore.ManifestKey(p.connID.String(), rendition.String()),
			Timescale:   timescale,
		})
	}
	snapshot := p.master
	p.muMaster.Unlock()

	return retry.Do(ctx, retry.DefaultPolicy, func() error {
		return metastore.PutMasterManifest(ctx, p.deps.Meta, &snapshot)
	})
}

func (p *pipeline) writeMedia(ctx context.Context, key string, data []byte, contentType string) error {
	return retry.Do(ctx, retry.DefaultPolicy, func() error {
		return p.deps.Media.Write(ctx, key, data, contentType)
	})
}
