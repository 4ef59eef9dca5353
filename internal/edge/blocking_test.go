package edge

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/streamforge/live/internal/domain"
	"github.com/streamforge/live/internal/eventbus"
	"github.com/streamforge/live/internal/ids"
	"github.com/streamforge/live/internal/metastore"
)

func TestParseBlockingRequest(t *testing.T) {
	q, _ := url.ParseQuery("_HLS_msn=3&_HLS_part=2")
	br, ok := parseBlockingRequest(q)
	if !ok || !br.hasMSN || br.msn != 3 || br.part != 2 {
		t.Fatalf("unexpected parse: %+v, ok=%v", br, ok)
	}

	if _, ok := parseBlockingRequest(url.Values{"_HLS_msn": {"not-a-number"}}); ok {
		t.Fatalf("expected parse failure for malformed msn")
	}
}

func TestBlockingRequest_Satisfied(t *testing.T) {
	m := &domain.RenditionManifest{NextSegmentIdx: 4, NextSegmentPartIdx: 1, NextPartIdx: 40, LastIndependentPartIdx: 36}

	cases := []struct {
		name string
		br   blockingRequest
		want bool
	}{
		{"earlier segment", blockingRequest{hasMSN: true, msn: 3, part: 0}, true},
		{"current segment earlier part", blockingRequest{hasMSN: true, msn: 4, part: 0}, true},
		{"current segment not yet reached", blockingRequest{hasMSN: true, msn: 4, part: 1}, false},
		{"future segment", blockingRequest{hasMSN: true, msn: 5, part: 0}, false},
		{"scuf part satisfied", blockingRequest{hasSCUFPart: true, scufPart: 39}, true},
		{"scuf part not satisfied", blockingRequest{hasSCUFPart: true, scufPart: 40}, false},
		{"scuf ipart satisfied", blockingRequest{hasSCUFIPart: true, scufIPart: 35}, true},
		{"scuf ipart not satisfied", blockingRequest{hasSCUFIPart: true, scufIPart: 36}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.br.satisfied(m); got != c.want {
				t.Fatalf("satisfied() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestAwaitManifest_NoBlockingTokensReturnsImmediately(t *testing.T) {
	deps := newTestDeps()
	connID := ids.New()
	manifest := &domain.RenditionManifest{ConnectionID: connID, Rendition: domain.RenditionHd, NextSegmentIdx: 1}
	if err := metastore.PutRenditionManifest(context.Background(), deps.Meta, connID.String(), manifest); err != nil {
		t.Fatalf("PutRenditionManifest: %v", err)
	}

	m, waited, err := awaitManifest(context.Background(), deps, connID, domain.RenditionHd, blockingRequest{}, time.Second)
	if err != nil {
		t.Fatalf("awaitManifest: %v", err)
	}
	if waited != 0 {
		t.Fatalf("waited = %v, want 0", waited)
	}
	if m.NextSegmentIdx != 1 {
		t.Fatalf("unexpected manifest: %+v", m)
	}
}

func TestAwaitManifest_UnblocksWhenManifestCatchesUp(t *testing.T) {
	deps := newTestDeps()
	connID := ids.New()
	put := func(next uint64) {
		if err := metastore.PutRenditionManifest(context.Background(), deps.Meta, connID.String(), &domain.RenditionManifest{
			ConnectionID: connID, Rendition: domain.RenditionHd, NextSegmentIdx: next,
		}); err != nil {
			t.Fatalf("PutRenditionManifest: %v", err)
		}
	}
	put(0)

	go func() {
		time.Sleep(75 * time.Millisecond)
		put(2)
	}()

	br := blockingRequest{hasMSN: true, msn: 1, part: 0}
	m, waited, err := awaitManifest(context.Background(), deps, connID, domain.RenditionHd, br, 2*time.Second)
	if err != nil {
		t.Fatalf("awaitManifest: %v", err)
	}
	if waited < 50*time.Millisecond {
		t.Fatalf("waited = %v, expected to actually block", waited)
	}
	if m.NextSegmentIdx != 2 {
		t.Fatalf("unexpected manifest: %+v", m)
	}
}

// TestAwaitManifest_WakesOnBusNotifyWithoutWaitingForPoll proves awaitManifest
// returns on the manifest-updated notify rather than idling until the next
// poll tick: the ticker is 50ms, but the put+publish below land at 10ms, so a
// poll-only implementation would still be short of its first tick.
func TestAwaitManifest_WakesOnBusNotifyWithoutWaitingForPoll(t *testing.T) {
	deps := newTestDeps()
	deps.Bus = eventbus.NewMemBus()
	connID := ids.New()
	if err := metastore.PutRenditionManifest(context.Background(), deps.Meta, connID.String(), &domain.RenditionManifest{
		ConnectionID: connID, Rendition: domain.RenditionHd, NextSegmentIdx: 0,
	}); err != nil {
		t.Fatalf("PutRenditionManifest: %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		if err := metastore.PutRenditionManifest(context.Background(), deps.Meta, connID.String(), &domain.RenditionManifest{
			ConnectionID: connID, Rendition: domain.RenditionHd, NextSegmentIdx: 2,
		}); err != nil {
			t.Errorf("PutRenditionManifest: %v", err)
			return
		}
		channel := metastore.ManifestKey(connID.String(), domain.RenditionHd.String())
		if err := deps.Bus.Publish(context.Background(), channel, eventbus.Event{Type: eventbus.EventManifestUpdated}); err != nil {
			t.Errorf("Publish: %v", err)
		}
	}()

	br := blockingRequest{hasMSN: true, msn: 1, part: 0}
	start := time.Now()
	m, _, err := awaitManifest(context.Background(), deps, connID, domain.RenditionHd, br, 2*time.Second)
	if err != nil {
		t.Fatalf("awaitManifest: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= 45*time.Millisecond {
		t.Fatalf("elapsed = %v, expected notify to unblock well before the 50ms poll tick", elapsed)
	}
	if m.NextSegmentIdx != 2 {
		t.Fatalf("unexpected manifest: %+v", m)
	}
}

func TestAwaitManifest_TimesOutAndServesCurrentState(t *testing.T) {
	deps := newTestDeps()
	connID := ids.New()
	if err := metastore.PutRenditionManifest(context.Background(), deps.Meta, connID.String(), &domain.RenditionManifest{
		ConnectionID: connID, Rendition: domain.RenditionHd, NextSegmentIdx: 3,
	}); err != nil {
		t.Fatalf("PutRenditionManifest: %v", err)
	}

	br := blockingRequest{hasMSN: true, msn: 999, part: 0}
	start := time.Now()
	m, waited, err := awaitManifest(context.Background(), deps, connID, domain.RenditionHd, br, 150*time.Millisecond)
	if err != nil {
		t.Fatalf("awaitManifest: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 140*time.Millisecond {
		t.Fatalf("returned too early: %v", elapsed)
	}
	if waited < 140*time.Millisecond {
		t.Fatalf("waited = %v, want close to cap", waited)
	}
	if m.NextSegmentIdx != 3 {
		t.Fatalf("unexpected manifest: %+v", m)
	}
}
