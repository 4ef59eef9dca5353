package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	rerrors "github.com/streamforge/live/internal/errors"
	"github.com/streamforge/live/internal/eventbus"
	"github.com/streamforge/live/internal/ids"
	iconn "github.com/streamforge/live/internal/rtmp/conn"
	"github.com/streamforge/live/internal/rtmp/amf"
	"github.com/streamforge/live/internal/rtmp/chunk"
	"github.com/streamforge/live/internal/rtmp/rpc"
)

// SessionState is the connection's chunk stream state machine (§4.1).
type SessionState int

const (
	StateWaitingForHandshake SessionState = iota // handshake already done by conn.Accept; kept for completeness
	StateWaitingForConnect
	StateWaitingForPublish
	StatePublishing
	StateClosed
)

// FailureReason is the taxonomy surfaced to the publisher via onStatus.
type FailureReason string

const (
	FailureHandshakeFailed          FailureReason = "HandshakeFailed"
	FailureBadStreamKey             FailureReason = "BadStreamKey"
	FailureNoTranscoder              FailureReason = "NoTranscoder"
	FailurePublisherTimeout          FailureReason = "PublisherTimeout"
	FailureKeyframeCadenceViolated   FailureReason = "KeyframeCadenceViolated"
	FailureInternalError             FailureReason = "InternalError"
)

// sender is the minimal connection surface a Session needs (mirrors the
// teacher's publish_handler.sender interface).
type sender interface {
	SendMessage(*chunk.Message) error
	Close() error
}

// Session owns one publisher connection end to end: command negotiation,
// control-plane validation, the transcoder claim wait, media forwarding,
// the bytes-since-keyframe cap, and failover. It records when video last
// arrived but runs no liveness timer on it.
type Session struct {
	conn sender
	deps Deps
	log  *slog.Logger

	mu                sync.Mutex
	state             SessionState
	app               string
	streamKey         string
	connectionID      ids.ID
	roomID            ids.ID
	organizationID    ids.ID
	bytesSinceKeyframe uint64
	lastVideoAt       time.Time

	link TranscoderLink

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession wires a freshly-accepted connection to its dependencies. Call
// Attach to install the RTMP handlers and start driving the session.
func NewSession(conn sender, deps Deps, log *slog.Logger) *Session {
	return &Session{
		conn:  conn,
		deps:  deps.applyDefaults(),
		log:   log,
		state: StateWaitingForConnect,
		done:  make(chan struct{}),
	}
}

// Done is closed once the session reaches StateClosed.
func (s *Session) Done() <-chan struct{} { return s.done }

// handleConnect replies to the RTMP connect command, per §4.1 step 1.
func (s *Session) handleConnect(cc *rpc.ConnectCommand) error {
	s.mu.Lock()
	s.app = cc.App
	s.mu.Unlock()
	resp, err := rpc.BuildConnectResponse(cc.TransactionID, "Connection succeeded.")
	if err != nil {
		return rerrors.NewProtocolError("ingest.connect", err)
	}
	return s.conn.SendMessage(resp)
}

// handleCreateStream replies with a fresh stream id, per §4.1 step 2.
func (s *Session) handleCreateStream(cs *rpc.CreateStreamCommand, allocator *rpc.StreamIDAllocator) error {
	resp, _, err := rpc.BuildCreateStreamResponse(cs.TransactionID, allocator)
	if err != nil {
		return rerrors.NewProtocolError("ingest.create_stream", err)
	}
	return s.conn.SendMessage(resp)
}

// handlePublish validates the stream key against the control plane, waits
// for a transcoder claim, and opens the bidi watch stream — §4.1 steps 3-5.
func (s *Session) handlePublish(ctx context.Context, pc *rpc.PublishCommand) error {
	res, err := s.deps.ControlPlane.ResolveStreamKey(ctx, s.app, pc.StreamKey)
	if err != nil {
		s.failStatus(FailureBadStreamKey, err)
		return err
	}

	s.mu.Lock()
	s.streamKey = pc.StreamKey
	s.connectionID = res.ConnectionID
	s.roomID = res.RoomID
	s.organizationID = res.OrganizationID
	s.state = StateWaitingForPublish
	s.lastVideoAt = time.Now()
	s.mu.Unlock()

	if err := s.deps.Queue.Announce(ctx, res.RoomID, res.OrganizationID, res.ConnectionID); err != nil {
		s.failStatus(FailureNoTranscoder, err)
		return err
	}

	if err := s.waitForTranscoder(ctx); err != nil {
		s.failStatus(FailureNoTranscoder, err)
		return err
	}

	s.mu.Lock()
	s.state = StatePublishing
	s.mu.Unlock()

	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordConnectionStart()
	}
	return nil
}

// waitForTranscoder blocks until a transcoder claims the connection,
// bounded by TranscoderWaitMax, and dials the resulting bidi stream.
func (s *Session) waitForTranscoder(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.deps.TranscoderWaitMax)
	defer cancel()

	start := time.Now()
	claim, err := s.deps.Queue.AwaitClaim(waitCtx, s.roomID, s.connectionID)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ClaimWaitSeconds.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if s.deps.Metrics != nil {
			s.deps.Metrics.ClaimTimeouts.Inc()
		}
		return rerrors.NewClaimError("ingest.wait_transcoder", err)
	}

	link, err := s.deps.Dialer.Dial(ctx, claim)
	if err != nil {
		return rerrors.NewClaimError("ingest.dial_transcoder", err)
	}
	s.mu.Lock()
	s.link = link
	s.mu.Unlock()
	return nil
}

// forwardMedia translates one RTMP audio/video/script message into an
// IngestWatch Frame and forwards it, updating the keyframe/liveness state.
func (s *Session) forwardMedia(ctx context.Context, msg *chunk.Message) error {
	s.mu.Lock()
	link := s.link
	s.mu.Unlock()
	if link == nil {
		return rerrors.NewProtocolError("ingest.forward", fmt.Errorf("no transcoder link"))
	}

	kind := FrameMetadata
	switch msg.TypeID {
	case 8:
		kind = FrameAudio
	case 9:
		kind = FrameVideo
	}

	isKeyframe := kind == FrameVideo && isVideoKeyframe(msg.Payload)
	s.mu.Lock()
	if kind == FrameVideo {
		s.lastVideoAt = time.Now()
		if isKeyframe {
			s.bytesSinceKeyframe = 0
		} else {
			s.bytesSinceKeyframe += uint64(len(msg.Payload))
		}
	}
	overflow := s.bytesSinceKeyframe > s.deps.Policy.MaxBytesSinceKeyframe
	s.mu.Unlock()

	if overflow {
		s.failStatus(FailureKeyframeCadenceViolated, fmt.Errorf("bytes since keyframe exceeded %d", s.deps.Policy.MaxBytesSinceKeyframe))
		return rerrors.NewProtocolError("ingest.keyframe_cadence", fmt.Errorf("cadence violated"))
	}

	return link.Send(ctx, Frame{Timestamp: msg.Timestamp, Kind: kind, Data: msg.Payload})
}

// isVideoKeyframe inspects the legacy AVC FLV video tag frame-type nibble.
func isVideoKeyframe(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	frameType := (payload[0] >> 4) & 0x0F
	return frameType == 1
}

// watchSignals runs for the lifetime of the transcoder link, handling
// SignalReconnect (failover, §4.1) and SignalFatal (drop).
func (s *Session) watchSignals(ctx context.Context) {
	for {
		s.mu.Lock()
		link := s.link
		s.mu.Unlock()
		if link == nil {
			return
		}
		sig, err := link.Recv(ctx)
		if err != nil {
			return
		}
		switch sig.Type {
		case SignalReconnect:
			s.handleReconnect(ctx)
		case SignalFatal:
			s.Close(fmt.Sprintf("transcoder fatal: %s", sig.Reason))
			return
		}
	}
}

// handleReconnect implements the failover rule: only re-enter the claim
// wait if we're at a safe (bytes-since-keyframe == 0) boundary; otherwise
// the publisher is dropped.
func (s *Session) handleReconnect(ctx context.Context) {
	s.mu.Lock()
	safe := s.bytesSinceKeyframe == 0
	oldLink := s.link
	s.link = nil
	s.mu.Unlock()
	if oldLink != nil {
		_ = oldLink.Close()
	}
	if !safe {
		s.Close("transcoder disconnected at unsafe boundary")
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.TranscoderFailovers.Inc()
	}
	if err := s.waitForTranscoder(ctx); err != nil {
		s.Close("failover: no transcoder available")
	}
}

// failStatus sends an onStatus error to the publisher (best-effort).
func (s *Session) failStatus(reason FailureReason, cause error) {
	info := map[string]interface{}{
		"level":       "error",
		"code":        "NetStream.Publish.Failed",
		"description": string(reason),
	}
	if cause != nil {
		info["description"] = fmt.Sprintf("%s: %v", reason, cause)
	}
	payload, err := amf.EncodeAll("onStatus", float64(0), nil, info)
	if err != nil {
		return
	}
	_ = s.conn.SendMessage(&chunk.Message{TypeID: 20, Payload: payload, MessageLength: uint32(len(payload))})
}

// Close tears the session down and, if it ever reached
// StateWaitingForPublish, publishes a room-disconnect event.
func (s *Session) Close(reason string) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	link := s.link
	s.link = nil
	connID := s.connectionID
	roomID := s.roomID
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if link != nil {
		_ = link.Close()
	}
	_ = s.conn.Close()
	close(s.done)

	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordConnectionEnd()
	}
	if !connID.IsNil() && s.deps.Bus != nil {
		_ = s.deps.Bus.Publish(context.Background(), RoomChannel(roomID), eventbus.Event{
			Type:         eventbus.EventIngestDisconnect,
			RoomID:       roomID.String(),
			ConnectionID: connID.String(),
			Reason:       reason,
		})
	}
	if !connID.IsNil() && s.deps.Queue != nil {
		_ = s.deps.Queue.MarkFinished(context.Background(), roomID)
	}
}

// Attach installs a command dispatcher and media handler on c, mirroring
// the teacher's attachCommandHandling but routing publish/media through the
// Session instead of a local stream registry. Call after iconn.Accept.
func (s *Session) Attach(parent context.Context, c *iconn.Connection) {
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	allocator := rpc.NewStreamIDAllocator()
	d := rpc.NewDispatcher(func() string {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.app
	})

	d.OnConnect = func(cc *rpc.ConnectCommand, _ *chunk.Message) error {
		return s.handleConnect(cc)
	}
	d.OnCreateStream = func(cs *rpc.CreateStreamCommand, _ *chunk.Message) error {
		return s.handleCreateStream(cs, allocator)
	}
	d.OnPublish = func(pc *rpc.PublishCommand, _ *chunk.Message) error {
		if err := s.handlePublish(ctx, pc); err != nil {
			s.log.Warn("publish rejected", "conn_id", c.ID(), "error", err)
			s.Close("publish rejected")
			return nil
		}
		go s.watchSignals(ctx)
		return nil
	}

	c.SetMessageHandler(func(m *chunk.Message) {
		if m == nil {
			return
		}
		if m.TypeID == 8 || m.TypeID == 9 || m.TypeID == 18 {
			s.mu.Lock()
			publishing := s.state == StatePublishing
			s.mu.Unlock()
			if !publishing {
				return
			}
			if err := s.forwardMedia(ctx, m); err != nil {
				s.log.Warn("forward media failed", "conn_id", c.ID(), "error", err)
				s.Close("media forward failed")
			}
			return
		}
		if m.TypeID != 20 {
			return
		}
		if err := d.Dispatch(m); err != nil {
			s.log.Warn("dispatch error", "conn_id", c.ID(), "error", err)
		}
	})
}
