// Package ingest accepts one inbound RTMP publish, hands its media frames to
// a transcoder over a private framed watch protocol, tolerates transcoder
// loss, and emits room lifecycle events. It generalizes the teacher's
// rtmp/{conn,server,relay,rpc} stack: the handshake/chunk/command layers are
// unchanged, but the registry-of-local-subscribers model is replaced by a
// control-plane stream-key check and a transcoder claim handshake.
package ingest

import (
	"time"

	"github.com/streamforge/live/internal/config"
	"github.com/streamforge/live/internal/eventbus"
	"github.com/streamforge/live/internal/metrics"
)

// Deps are the capability interfaces a Server needs; every one is narrow
// and independently fakeable, per the module's no-global-singleton design.
type Deps struct {
	ControlPlane    ControlPlane
	Queue           TranscoderQueue
	Dialer          Dialer
	Bus             eventbus.Bus
	Metrics         *metrics.Metrics
	Policy          config.PolicyThresholds
	TranscoderWaitMax time.Duration
	// LivenessTimeout is the no-video window for a publisher liveness
	// watchdog. It defaults to 15s when unset; no session code reads it, so
	// a publisher that stops sending video is not dropped on a timer.
	LivenessTimeout time.Duration
}

func (d Deps) applyDefaults() Deps {
	if d.TranscoderWaitMax <= 0 {
		d.TranscoderWaitMax = 10 * time.Second
	}
	if d.LivenessTimeout <= 0 {
		d.LivenessTimeout = 15 * time.Second
	}
	if d.Policy.MaxBytesSinceKeyframe == 0 {
		d.Policy = config.DefaultPolicyThresholds
	}
	return d
}
