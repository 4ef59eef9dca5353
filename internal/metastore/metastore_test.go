package metastore

import (
	"context"
	"testing"
	"time"

	"github.com/streamforge/live/internal/domain"
	"github.com/streamforge/live/internal/ids"
)

func TestMemStoreGetSetDelete(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err := s.Get(ctx, "k")
	if err != nil || string(v) != "v" {
		t.Fatalf("get = %q, %v", v, err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "k"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemStoreLeaseExclusivity(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	ok, err := s.AcquireLease(ctx, "room-1", "transcoder-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first claim to succeed: %v %v", ok, err)
	}
	ok, err = s.AcquireLease(ctx, "room-1", "transcoder-b", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second claim to fail while held: %v %v", ok, err)
	}
	ok, err = s.RenewLease(ctx, "room-1", "transcoder-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("owner renew should succeed: %v %v", ok, err)
	}
	if err := s.ReleaseLease(ctx, "room-1", "transcoder-a"); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = s.AcquireLease(ctx, "room-1", "transcoder-b", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected claim to succeed after release: %v %v", ok, err)
	}
}

func TestMemStoreLeaseExpiry(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if ok, err := s.AcquireLease(ctx, "k", "a", time.Millisecond); err != nil || !ok {
		t.Fatalf("initial claim: %v %v", ok, err)
	}
	time.Sleep(5 * time.Millisecond)
	ok, err := s.AcquireLease(ctx, "k", "b", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected claim to succeed after expiry: %v %v", ok, err)
	}
}

func TestRenditionManifestRoundTrip(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	connID := ids.New()

	m := &domain.RenditionManifest{
		ConnectionID: connID,
		Rendition:    domain.RenditionHd,
		InitKey:      "init/hd.mp4",
		Timescale:    90000,
		Parts: []domain.PartRef{
			{Idx: 0, SegmentIdx: 0, SegPartIdx: 0, DurationTS: 5400, Independent: true, Key: "p0"},
		},
	}
	if err := PutRenditionManifest(ctx, s, connID.String(), m); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := GetRenditionManifest(ctx, s, connID.String(), "hd")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.InitKey != m.InitKey || len(got.Parts) != 1 || got.Parts[0].Key != "p0" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestMasterManifestRoundTrip(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	connID := ids.New()

	m := &domain.MasterManifest{
		ConnectionID: connID,
		Renditions: []domain.RenditionRef{
			{Rendition: domain.RenditionHd, ManifestKey: ManifestKey(connID.String(), "hd"), Timescale: 90000},
		},
	}
	if err := PutMasterManifest(ctx, s, m); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := GetMasterManifest(ctx, s, connID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Renditions) != 1 || got.Renditions[0].Rendition != domain.RenditionHd {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
