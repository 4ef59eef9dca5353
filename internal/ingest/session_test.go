package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/streamforge/live/internal/config"
	"github.com/streamforge/live/internal/eventbus"
	"github.com/streamforge/live/internal/ids"
	"github.com/streamforge/live/internal/rtmp/chunk"
	"github.com/streamforge/live/internal/rtmp/rpc"
)

type fakeSender struct {
	mu     sync.Mutex
	sent   []*chunk.Message
	closed bool
}

func (f *fakeSender) SendMessage(m *chunk.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeSender) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeControlPlane struct {
	result StreamKeyResult
	err    error
}

func (f *fakeControlPlane) ResolveStreamKey(_ context.Context, _, _ string) (StreamKeyResult, error) {
	return f.result, f.err
}

type fakeQueue struct {
	claim       Claim
	claimErr    error
	announceErr error
	claimDelay  time.Duration
}

func (f *fakeQueue) Announce(context.Context, ids.ID, ids.ID, ids.ID) error { return f.announceErr }

func (f *fakeQueue) MarkFinished(context.Context, ids.ID) error { return nil }

func (f *fakeQueue) AwaitClaim(ctx context.Context, _, _ ids.ID) (Claim, error) {
	if f.claimDelay > 0 {
		select {
		case <-time.After(f.claimDelay):
		case <-ctx.Done():
			return Claim{}, ctx.Err()
		}
	}
	return f.claim, f.claimErr
}

type fakeLink struct {
	mu      sync.Mutex
	frames  []Frame
	signals chan Signal
	closed  bool
}

func newFakeLink() *fakeLink { return &fakeLink{signals: make(chan Signal, 4)} }

func (f *fakeLink) Send(_ context.Context, fr Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeLink) Recv(ctx context.Context) (Signal, error) {
	select {
	case sig, ok := <-f.signals:
		if !ok {
			return Signal{}, fmt.Errorf("link closed")
		}
		return sig, nil
	case <-ctx.Done():
		return Signal{}, ctx.Err()
	}
}

func (f *fakeLink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.signals)
	}
	return nil
}

type fakeDialer struct {
	link TranscoderLink
	err  error
}

func (f *fakeDialer) Dial(context.Context, Claim) (TranscoderLink, error) { return f.link, f.err }

func newTestSession(t *testing.T, deps Deps) (*Session, *fakeSender) {
	t.Helper()
	fs := &fakeSender{}
	s := NewSession(fs, deps, slog.Default())
	return s, fs
}

func TestSession_HandlePublishSuccess(t *testing.T) {
	link := newFakeLink()
	room, conn := ids.New(), ids.New()
	deps := Deps{
		ControlPlane: &fakeControlPlane{result: StreamKeyResult{RoomID: room, ConnectionID: conn}},
		Queue:        &fakeQueue{claim: Claim{TranscoderID: "tc-1", Addr: "x:1"}},
		Dialer:       &fakeDialer{link: link},
		Bus:          eventbus.NewMemBus(),
		Policy:       config.DefaultPolicyThresholds,
	}
	s, _ := newTestSession(t, deps)
	s.app = "live"

	if err := s.handlePublish(context.Background(), &rpc.PublishCommand{StreamKey: "live/abc"}); err != nil {
		t.Fatalf("handlePublish: %v", err)
	}
	if s.state != StatePublishing {
		t.Fatalf("state = %v, want StatePublishing", s.state)
	}
}

func TestSession_HandlePublishBadStreamKey(t *testing.T) {
	deps := Deps{
		ControlPlane: &fakeControlPlane{err: &ErrBadStreamKey{StreamKey: "bad", Cause: fmt.Errorf("no such room")}},
		Queue:        &fakeQueue{},
		Dialer:       &fakeDialer{},
		Policy:       config.DefaultPolicyThresholds,
	}
	s, fs := newTestSession(t, deps)

	if err := s.handlePublish(context.Background(), &rpc.PublishCommand{StreamKey: "bad"}); err == nil {
		t.Fatalf("expected error for bad stream key")
	}
	if len(fs.sent) == 0 {
		t.Fatalf("expected onStatus error message to be sent")
	}
}

func TestSession_HandlePublishClaimTimeout(t *testing.T) {
	deps := Deps{
		ControlPlane:      &fakeControlPlane{result: StreamKeyResult{RoomID: ids.New(), ConnectionID: ids.New()}},
		Queue:             &fakeQueue{claimErr: fmt.Errorf("no transcoder available")},
		Dialer:            &fakeDialer{},
		Policy:            config.DefaultPolicyThresholds,
		TranscoderWaitMax: 20 * time.Millisecond,
	}
	s, _ := newTestSession(t, deps)

	if err := s.handlePublish(context.Background(), &rpc.PublishCommand{StreamKey: "live/abc"}); err == nil {
		t.Fatalf("expected claim timeout error")
	}
}

func TestSession_ForwardMediaTracksKeyframeCadence(t *testing.T) {
	link := newFakeLink()
	deps := Deps{
		ControlPlane: &fakeControlPlane{},
		Queue:        &fakeQueue{},
		Dialer:       &fakeDialer{},
		Policy:       config.PolicyThresholds{MaxBytesSinceKeyframe: 10},
	}
	s, _ := newTestSession(t, deps)
	s.link = link

	keyframe := []byte{0x17, 0, 0, 0, 0}
	if err := s.forwardMedia(context.Background(), &chunk.Message{TypeID: 9, Payload: keyframe}); err != nil {
		t.Fatalf("forwardMedia keyframe: %v", err)
	}
	if s.bytesSinceKeyframe != 0 {
		t.Fatalf("bytesSinceKeyframe after keyframe = %d, want 0", s.bytesSinceKeyframe)
	}

	interFrame := []byte{0x27, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	if err := s.forwardMedia(context.Background(), &chunk.Message{TypeID: 9, Payload: interFrame}); err == nil {
		t.Fatalf("expected cadence violation error")
	}
}

func TestSession_HandleReconnectSafeBoundaryRewaits(t *testing.T) {
	room, conn := ids.New(), ids.New()
	nextLink := newFakeLink()
	deps := Deps{
		ControlPlane:      &fakeControlPlane{result: StreamKeyResult{RoomID: room, ConnectionID: conn}},
		Queue:             &fakeQueue{claim: Claim{TranscoderID: "tc-2", Addr: "x:2"}},
		Dialer:            &fakeDialer{link: nextLink},
		Policy:            config.DefaultPolicyThresholds,
		TranscoderWaitMax: time.Second,
	}
	s, _ := newTestSession(t, deps)
	s.roomID, s.connectionID = room, conn
	s.link = newFakeLink()
	s.bytesSinceKeyframe = 0

	s.handleReconnect(context.Background())

	if s.link != nextLink {
		t.Fatalf("expected session to rebind to the new transcoder link after safe reconnect")
	}
	if s.state == StateClosed {
		t.Fatalf("session should remain open after a safe-boundary reconnect")
	}
}

func TestSession_HandleReconnectUnsafeBoundaryDropsPublisher(t *testing.T) {
	deps := Deps{
		ControlPlane: &fakeControlPlane{},
		Queue:        &fakeQueue{},
		Dialer:       &fakeDialer{},
		Policy:       config.DefaultPolicyThresholds,
	}
	s, _ := newTestSession(t, deps)
	s.link = newFakeLink()
	s.bytesSinceKeyframe = 4096

	s.handleReconnect(context.Background())

	if s.state != StateClosed {
		t.Fatalf("expected session closed after unsafe-boundary reconnect, state = %v", s.state)
	}
}

func TestSession_ClosePublishesDisconnectEvent(t *testing.T) {
	bus := eventbus.NewMemBus()
	room, conn := ids.New(), ids.New()
	deps := Deps{
		ControlPlane: &fakeControlPlane{},
		Queue:        &fakeQueue{},
		Dialer:       &fakeDialer{},
		Bus:          bus,
		Policy:       config.DefaultPolicyThresholds,
	}
	s, fs := newTestSession(t, deps)
	s.roomID, s.connectionID = room, conn

	sub, err := bus.Subscribe(context.Background(), RoomChannel(room))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	s.Close("test close")

	if !fs.closed {
		t.Fatalf("expected underlying connection closed")
	}
	select {
	case ev := <-sub.Events():
		if ev.Type != eventbus.EventIngestDisconnect || ev.ConnectionID != conn.String() {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected disconnect event, got none")
	}

	// Closing twice must be a no-op, not a double-close panic.
	s.Close("second close")
}
