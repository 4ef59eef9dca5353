package edge

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/streamforge/live/internal/domain"
	"github.com/streamforge/live/internal/ids"
	"github.com/streamforge/live/internal/mediastore"
	"github.com/streamforge/live/internal/metastore"
	"github.com/streamforge/live/internal/metrics"
)

type fakeRecordingIndex struct {
	renditions map[string][]string
	records    map[string]*domain.Recording // key: recordingID+":"+rendition
}

func (f *fakeRecordingIndex) ListRenditions(_ context.Context, recordingID ids.ID) ([]string, error) {
	return f.renditions[recordingID.String()], nil
}

func (f *fakeRecordingIndex) GetRecording(_ context.Context, recordingID ids.ID, rendition string) (*domain.Recording, error) {
	rec, ok := f.records[recordingID.String()+":"+rendition]
	if !ok {
		return nil, metastore.ErrNotFound
	}
	return rec, nil
}

func newTestDeps() Deps {
	return Deps{
		Meta:    metastore.NewMemStore(),
		Media:   mediastore.NewMemStore(),
		Metrics: metrics.NewWithRegisterer(prometheus.NewRegistry()),
	}
}

func TestResolveTarget_LiveRoom(t *testing.T) {
	deps := newTestDeps()
	room, org, conn := ids.New(), ids.New(), ids.New()

	if err := metastore.PutActiveConnection(context.Background(), deps.Meta, room.String(), metastore.ActiveConnection{
		ConnectionID: conn.String(), OrganizationID: org.String(),
	}); err != nil {
		t.Fatalf("PutActiveConnection: %v", err)
	}
	if err := metastore.PutMasterManifest(context.Background(), deps.Meta, &domain.MasterManifest{ConnectionID: conn}); err != nil {
		t.Fatalf("PutMasterManifest: %v", err)
	}

	target, err := resolveTarget(context.Background(), deps, org.String(), room.String())
	if err != nil {
		t.Fatalf("resolveTarget: %v", err)
	}
	if !target.Live || target.ConnectionID != conn {
		t.Fatalf("unexpected target: %+v", target)
	}
}

func TestResolveTarget_UnknownRoom(t *testing.T) {
	deps := newTestDeps()
	_, err := resolveTarget(context.Background(), deps, ids.New().String(), ids.New().String())
	if err != ErrUnknownTarget {
		t.Fatalf("err = %v, want ErrUnknownTarget", err)
	}
}

func TestResolveTarget_FinishedRoomNoRecordingIsGone(t *testing.T) {
	deps := newTestDeps()
	room, org, conn := ids.New(), ids.New(), ids.New()

	if err := metastore.PutActiveConnection(context.Background(), deps.Meta, room.String(), metastore.ActiveConnection{
		ConnectionID: conn.String(), OrganizationID: org.String(),
	}); err != nil {
		t.Fatalf("PutActiveConnection: %v", err)
	}
	if err := metastore.ClearActiveConnection(context.Background(), deps.Meta, room.String()); err != nil {
		t.Fatalf("ClearActiveConnection: %v", err)
	}
	if err := metastore.PutMasterManifest(context.Background(), deps.Meta, &domain.MasterManifest{ConnectionID: conn, Finished: true}); err != nil {
		t.Fatalf("PutMasterManifest: %v", err)
	}

	_, err := resolveTarget(context.Background(), deps, org.String(), room.String())
	if err != ErrTargetGone {
		t.Fatalf("err = %v, want ErrTargetGone", err)
	}
}

func TestResolveTarget_FinishedRoomWithRecordingIsVOD(t *testing.T) {
	deps := newTestDeps()
	room, org, conn := ids.New(), ids.New(), ids.New()
	deps.Recordings = &fakeRecordingIndex{renditions: map[string][]string{
		room.String(): {"hd", "source"},
	}}

	if err := metastore.PutActiveConnection(context.Background(), deps.Meta, room.String(), metastore.ActiveConnection{
		ConnectionID: conn.String(), OrganizationID: org.String(),
	}); err != nil {
		t.Fatalf("PutActiveConnection: %v", err)
	}
	if err := metastore.ClearActiveConnection(context.Background(), deps.Meta, room.String()); err != nil {
		t.Fatalf("ClearActiveConnection: %v", err)
	}
	if err := metastore.PutMasterManifest(context.Background(), deps.Meta, &domain.MasterManifest{ConnectionID: conn, Finished: true}); err != nil {
		t.Fatalf("PutMasterManifest: %v", err)
	}

	target, err := resolveTarget(context.Background(), deps, org.String(), room.String())
	if err != nil {
		t.Fatalf("resolveTarget: %v", err)
	}
	if target.Live || target.RecordingID != room {
		t.Fatalf("unexpected target: %+v", target)
	}
}

func TestResolveTarget_OrgMismatch(t *testing.T) {
	deps := newTestDeps()
	room, org, conn := ids.New(), ids.New(), ids.New()
	if err := metastore.PutActiveConnection(context.Background(), deps.Meta, room.String(), metastore.ActiveConnection{
		ConnectionID: conn.String(), OrganizationID: org.String(),
	}); err != nil {
		t.Fatalf("PutActiveConnection: %v", err)
	}

	_, err := resolveTarget(context.Background(), deps, ids.New().String(), room.String())
	if err != ErrOrgMismatch {
		t.Fatalf("err = %v, want ErrOrgMismatch", err)
	}
}
