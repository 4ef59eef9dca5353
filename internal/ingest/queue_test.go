package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/streamforge/live/internal/eventbus"
	"github.com/streamforge/live/internal/ids"
	"github.com/streamforge/live/internal/metastore"
)

func TestMetaQueue_AnnounceWritesPendingKey(t *testing.T) {
	meta := metastore.NewMemStore()
	bus := eventbus.NewMemBus()
	q := &MetaQueue{Meta: meta, Bus: bus}

	room := ids.New()
	org := ids.New()
	conn := ids.New()
	if err := q.Announce(context.Background(), room, org, conn); err != nil {
		t.Fatalf("Announce: %v", err)
	}

	got, err := meta.Get(context.Background(), pendingKey(room, conn))
	if err != nil {
		t.Fatalf("Get pending key: %v", err)
	}
	if string(got) != conn.String() {
		t.Fatalf("pending value = %q, want %q", got, conn.String())
	}

	ac, err := metastore.GetActiveConnection(context.Background(), meta, room.String())
	if err != nil {
		t.Fatalf("GetActiveConnection: %v", err)
	}
	if ac.ConnectionID != conn.String() || ac.OrganizationID != org.String() {
		t.Fatalf("unexpected active connection: %+v", ac)
	}
}

func TestMetaQueue_MarkFinishedClearsActiveConnection(t *testing.T) {
	meta := metastore.NewMemStore()
	q := &MetaQueue{Meta: meta, Bus: eventbus.NewMemBus()}

	room, org, conn := ids.New(), ids.New(), ids.New()
	if err := q.Announce(context.Background(), room, org, conn); err != nil {
		t.Fatalf("Announce: %v", err)
	}
	if err := q.MarkFinished(context.Background(), room); err != nil {
		t.Fatalf("MarkFinished: %v", err)
	}
	if _, err := metastore.GetActiveConnection(context.Background(), meta, room.String()); err != metastore.ErrNotFound {
		t.Fatalf("expected ErrNotFound after MarkFinished, got %v", err)
	}
}

func TestMetaQueue_AwaitClaimReturnsOnMatchingEvent(t *testing.T) {
	bus := eventbus.NewMemBus()
	q := &MetaQueue{Meta: metastore.NewMemStore(), Bus: bus}

	room := ids.New()
	conn := ids.New()

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = bus.Publish(context.Background(), RoomChannel(room), eventbus.Event{
			Type:         eventbus.EventRoomReady,
			RoomID:       room.String(),
			ConnectionID: conn.String(),
			Reason:       EncodeClaimReason("tc-1", "127.0.0.1:9100"),
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	claim, err := q.AwaitClaim(ctx, room, conn)
	if err != nil {
		t.Fatalf("AwaitClaim: %v", err)
	}
	if claim.TranscoderID != "tc-1" || claim.Addr != "127.0.0.1:9100" {
		t.Fatalf("unexpected claim: %+v", claim)
	}
}

func TestMetaQueue_AwaitClaimIgnoresOtherConnections(t *testing.T) {
	bus := eventbus.NewMemBus()
	q := &MetaQueue{Meta: metastore.NewMemStore(), Bus: bus}

	room := ids.New()
	conn := ids.New()
	other := ids.New()

	go func() {
		_ = bus.Publish(context.Background(), RoomChannel(room), eventbus.Event{
			Type:         eventbus.EventRoomReady,
			RoomID:       room.String(),
			ConnectionID: other.String(),
			Reason:       EncodeClaimReason("tc-1", "127.0.0.1:9100"),
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := q.AwaitClaim(ctx, room, conn); err == nil {
		t.Fatalf("expected timeout error, got nil")
	}
}

func TestParseClaimReason(t *testing.T) {
	id, addr, err := parseClaimReason("tc-7@10.0.0.1:9000")
	if err != nil || id != "tc-7" || addr != "10.0.0.1:9000" {
		t.Fatalf("parseClaimReason = %q, %q, %v", id, addr, err)
	}
	if _, _, err := parseClaimReason("malformed"); err == nil {
		t.Fatalf("expected error for malformed reason")
	}
}
