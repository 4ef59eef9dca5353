package transcoder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/streamforge/live/internal/domain"
	"github.com/streamforge/live/internal/ids"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeRoomLookup struct {
	ladder       []domain.LadderEntry
	recordingID  string
	orgID        string
	enabled      bool
	recordingErr error
}

func (f *fakeRoomLookup) Ladder(ctx context.Context, roomID string) ([]domain.LadderEntry, error) {
	return f.ladder, nil
}

func (f *fakeRoomLookup) RecordingConfig(ctx context.Context, roomID string) (string, string, bool, error) {
	return f.recordingID, f.orgID, f.enabled, f.recordingErr
}

type fakeRecordingDB struct {
	mu         sync.Mutex
	created    []domain.Recording
	appended   []domain.RecordingSegment
	failCreate bool
}

func (f *fakeRecordingDB) CreateRecording(ctx context.Context, r *domain.Recording) error {
	if f.failCreate {
		return errors.New("create failed")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, *r)
	return nil
}

func (f *fakeRecordingDB) AppendSegment(ctx context.Context, recordingID ids.ID, rendition string, seg domain.RecordingSegment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, seg)
	return nil
}

func newTestPipeline(rooms RoomLookup) *pipeline {
	return &pipeline{
		deps:   Deps{Rooms: rooms},
		log:    testLogger(),
		roomID: ids.New(),
		connID: ids.New(),
	}
}

func TestNewRecordingTap_DisabledReturnsNil(t *testing.T) {
	p := newTestPipeline(&fakeRoomLookup{enabled: false})
	p.deps.Recordings = nil // newRecordingTap doesn't consult this directly, guarded by caller

	rec := p.newRecordingTap(context.Background(), domain.RenditionHd, "init.mp4", 90000)
	if rec != nil {
		t.Fatalf("expected nil tap when recording disabled")
	}
}

func TestNewRecordingTap_UnparseableIDsReturnsNil(t *testing.T) {
	p := newTestPipeline(&fakeRoomLookup{enabled: true, recordingID: "not-a-uuid", orgID: ids.New().String()})
	rec := p.newRecordingTap(context.Background(), domain.RenditionHd, "init.mp4", 90000)
	if rec != nil {
		t.Fatalf("expected nil tap when recording id is unparseable")
	}
}

func TestNewRecordingTap_CreatesRecordingRowWhenEnabled(t *testing.T) {
	db := &fakeRecordingDB{}
	recID, orgID := ids.New(), ids.New()
	p := newTestPipeline(&fakeRoomLookup{enabled: true, recordingID: recID.String(), orgID: orgID.String()})

	rec := newRecordingTapWithDB(p, db, context.Background(), domain.RenditionHd, "init.mp4", 90000)
	if rec == nil {
		t.Fatalf("expected a non-nil tap")
	}
	if len(db.created) != 1 {
		t.Fatalf("expected 1 recording row created, got %d", len(db.created))
	}
	if db.created[0].RecordingID != recID {
		t.Fatalf("recording id = %v, want %v", db.created[0].RecordingID, recID)
	}
}

func TestRecordingTap_OnPartAppendsSegmentWithAdvancingTimes(t *testing.T) {
	db := &fakeRecordingDB{}
	tap := &recordingTap{db: db, recordingID: ids.New(), rendition: domain.RenditionHd, timescale: 90000}

	part1 := &domain.Part{PartIdx: 0, DurationTS: 90000, Bytes: make([]byte, 100)}
	tap.onPart(context.Background(), testLogger(), part1, "parts/x/0.m4s")

	part2 := &domain.Part{PartIdx: 1, DurationTS: 45000, Bytes: make([]byte, 50)}
	tap.onPart(context.Background(), testLogger(), part2, "parts/x/1.m4s")

	if len(db.appended) != 2 {
		t.Fatalf("expected 2 appended segments, got %d", len(db.appended))
	}
	if db.appended[0].StartTime != 0 || db.appended[0].EndTime != 1000 {
		t.Fatalf("part 0 times = [%d,%d], want [0,1000]", db.appended[0].StartTime, db.appended[0].EndTime)
	}
	if db.appended[1].StartTime != 1000 || db.appended[1].EndTime != 1500 {
		t.Fatalf("part 1 times = [%d,%d], want [1000,1500]", db.appended[1].StartTime, db.appended[1].EndTime)
	}
}
