package transcoder

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/streamforge/live/internal/domain"
	"github.com/streamforge/live/internal/eventbus"
	"github.com/streamforge/live/internal/ids"
	"github.com/streamforge/live/internal/ingest"
)

// claimLoop is one worker's race for pending connections: it subscribes to
// eventbus.PendingChannel() and, for every EventConnectionPending it sees,
// attempts a compare-and-set lease on the connection's Meta Store key.
// Losing the race is the expected, silent outcome — some other worker got
// there first.
type claimLoop struct {
	deps Deps
	log  *slog.Logger

	wg sync.WaitGroup
}

func newClaimLoop(deps Deps, log *slog.Logger) *claimLoop {
	return &claimLoop{deps: deps, log: log.With("component", "transcoder.claim")}
}

func (c *claimLoop) run(ctx context.Context) error {
	sub, err := c.deps.Bus.Subscribe(ctx, eventbus.PendingChannel())
	if err != nil {
		return fmt.Errorf("transcoder: subscribe pending channel: %w", err)
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			c.wg.Wait()
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				c.wg.Wait()
				return nil
			}
			if ev.Type != eventbus.EventConnectionPending {
				continue
			}
			c.tryClaim(ctx, ev)
		}
	}
}

func (c *claimLoop) tryClaim(ctx context.Context, ev eventbus.Event) {
	roomID, err := ids.Parse(ev.RoomID)
	if err != nil {
		c.log.Warn("pending event with unparseable room id", "room_id", ev.RoomID, "error", err)
		return
	}
	connID, err := ids.Parse(ev.ConnectionID)
	if err != nil {
		c.log.Warn("pending event with unparseable connection id", "connection_id", ev.ConnectionID, "error", err)
		return
	}

	key := ingest.PendingKey(roomID, connID)
	ttl := c.deps.LeaseTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	ok, err := c.deps.Meta.AcquireLease(ctx, key, c.deps.TranscoderID, ttl)
	if err != nil {
		c.log.Error("lease acquire failed", "room_id", ev.RoomID, "connection_id", ev.ConnectionID, "error", err)
		return
	}
	if !ok {
		return // another worker already owns this connection
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runClaimed(ctx, roomID, connID, key)
	}()
}

// runClaimed owns a connection end to end: open the ephemeral listener,
// announce the claim, accept the one inbound dial, run the pipeline, and
// release the lease when the pipeline exits.
func (c *claimLoop) runClaimed(ctx context.Context, roomID, connID ids.ID, leaseKey string) {
	log := c.log.With("room_id", roomID.String(), "connection_id", connID.String())

	host := c.deps.ListenHost
	if host == "" {
		host = "0.0.0.0"
	}
	listener, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		log.Error("failed to open claim listener", "error", err)
		_ = c.deps.Meta.ReleaseLease(ctx, leaseKey, c.deps.TranscoderID)
		return
	}
	defer listener.Close()

	reason := ingest.EncodeClaimReason(c.deps.TranscoderID, listener.Addr().String())
	if err := c.deps.Bus.Publish(ctx, ingest.RoomChannel(roomID), eventbus.Event{
		Type:         eventbus.EventRoomReady,
		RoomID:       roomID.String(),
		ConnectionID: connID.String(),
		Reason:       reason,
	}); err != nil {
		log.Error("failed to publish claim", "error", err)
		_ = c.deps.Meta.ReleaseLease(ctx, leaseKey, c.deps.TranscoderID)
		return
	}

	acceptTimeout := c.deps.ClaimAcceptTimeout
	if acceptTimeout <= 0 {
		acceptTimeout = 10 * time.Second
	}
	acceptCtx, cancel := context.WithTimeout(ctx, acceptTimeout)
	defer cancel()
	conn, err := acceptWithContext(acceptCtx, listener)
	if err != nil {
		log.Warn("ingest never dialed claim listener", "error", err)
		_ = c.deps.Meta.ReleaseLease(ctx, leaseKey, c.deps.TranscoderID)
		return
	}

	renewCtx, stopRenew := context.WithCancel(ctx)
	go c.renewLease(renewCtx, leaseKey)

	ladder := domain.DefaultLadder
	if c.deps.Rooms != nil {
		if l, err := c.deps.Rooms.Ladder(ctx, roomID.String()); err == nil && len(l) > 0 {
			ladder = l
		}
	}

	p := newPipeline(c.deps, log, roomID, connID, ladder, conn)
	p.run(ctx)

	stopRenew()
	_ = c.deps.Meta.ReleaseLease(ctx, leaseKey, c.deps.TranscoderID)
}

func (c *claimLoop) renewLease(ctx context.Context, key string) {
	ttl := c.deps.LeaseTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := c.deps.Meta.RenewLease(ctx, key, c.deps.TranscoderID, ttl)
			if err != nil || !ok {
				c.log.Warn("lease renewal lost", "key", key, "error", err)
				return
			}
		}
	}
}

func acceptWithContext(ctx context.Context, l net.Listener) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := l.Accept()
		ch <- result{conn, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.conn, r.err
	}
}
