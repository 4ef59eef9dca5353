// Package edge is the stateless HTTP surface that resolves playback
// tokens, reads live manifests and media parts from the Meta/Media stores,
// and serves HLS/LL-HLS playlists and CMAF parts (§4.3). It generalizes the
// teacher's httpServer.Server: gin.Engine, a Cache-Control-per-content-type
// convention, and c.Data byte responses are kept; the teacher's in-process
// streammanager/segmenter lookups are replaced by Meta/Media Store reads
// and a room-or-recording resolver since edge owns no connection state of
// its own.
package edge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/streamforge/live/internal/accesstoken"
	"github.com/streamforge/live/internal/config"
	"github.com/streamforge/live/internal/domain"
	"github.com/streamforge/live/internal/eventbus"
	"github.com/streamforge/live/internal/ids"
	"github.com/streamforge/live/internal/mediastore"
	"github.com/streamforge/live/internal/metastore"
	"github.com/streamforge/live/internal/metrics"
)

// RecordingIndex is the narrow slice of recordingdb.DB edge needs: look up
// a sealed recording's segments for one rendition, and discover which
// renditions a recording has without already knowing the room's ladder.
type RecordingIndex interface {
	GetRecording(ctx context.Context, recordingID ids.ID, rendition string) (*domain.Recording, error)
	ListRenditions(ctx context.Context, recordingID ids.ID) ([]string, error)
}

// Deps are the capability interfaces a Server needs; every one is narrow
// and independently fakeable, matching the rest of the module's
// no-global-singleton design.
type Deps struct {
	Meta       metastore.Store
	Media      mediastore.Store
	Recordings RecordingIndex // nil disables VOD playback, live-only deployments
	Tokens     *accesstoken.Validator
	Metrics    *metrics.Metrics
	Policy     config.PolicyThresholds
	// Bus delivers manifest-updated notifications from the transcoder's
	// writer to awaitManifest's blocked readers. Nil falls back to
	// polling only (see awaitManifest).
	Bus eventbus.Bus
}

func (d Deps) applyDefaults() Deps {
	if d.Policy.EdgeBlockingCap <= 0 {
		d.Policy = config.DefaultPolicyThresholds
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	return d
}

// Config holds the edge listener's configuration knobs.
type Config struct {
	ListenAddr string
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
}

// Server is the gin-backed HTTP server edge runs. It generalizes the
// teacher's httpServer.Server, wrapping the engine in a net/http.Server so
// Stop can drain in-flight blocking-reload requests via context instead of
// gin's bare Run.
type Server struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	router *gin.Engine
	http   *http.Server

	mu sync.RWMutex
	l  net.Listener
}

// New creates an unstarted Server and wires its routes.
func New(cfg Config, deps Deps, log *slog.Logger) *Server {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:  cfg,
		deps: deps.applyDefaults(),
		log:  log.With("component", "edge_server"),
	}
	s.router = s.setupRouter()
	s.http = &http.Server{Handler: s.router}
	return s
}

// Start binds the listener and begins serving in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.l != nil {
		s.mu.Unlock()
		return errors.New("edge server already started")
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	s.l = ln
	s.mu.Unlock()

	s.log.Info("edge server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("edge server exited", "error", err)
		}
	}()
	return nil
}

// Stop drains in-flight requests (including blocking reloads, bounded by
// the policy's EdgeBlockingCap) and stops the listener.
func (s *Server) Stop() error {
	s.mu.RLock()
	started := s.l != nil
	s.mu.RUnlock()
	if !started {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.deps.Policy.EdgeBlockingCap+5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		return err
	}
	s.log.Info("edge server stopped")
	return nil
}

// Addr returns the bound listener address, or nil if not started.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.l == nil {
		return nil
	}
	return s.l.Addr()
}
