package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	iconn "github.com/streamforge/live/internal/rtmp/conn"
)

// Config holds the ingest listener's configuration knobs.
type Config struct {
	ListenAddr string
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":1935"
	}
}

// Server accepts RTMP publishers, performs the handshake via conn.Accept,
// and drives each one through a Session. It generalizes the teacher's
// rtmp/server.Server: no Registry of local subscribers, no relay/recording
// wiring — every connection's media goes to exactly one claimed transcoder.
type Server struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	mu          sync.RWMutex
	l           net.Listener
	sessions    map[string]*Session
	acceptingWg sync.WaitGroup
	closing     bool
}

// New creates an unstarted Server.
func New(cfg Config, deps Deps, log *slog.Logger) *Server {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		deps:     deps.applyDefaults(),
		log:      log.With("component", "ingest_server"),
		sessions: make(map[string]*Session),
	}
}

// Start begins listening and launches the accept loop.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.l != nil {
		s.mu.Unlock()
		return errors.New("ingest server already started")
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	s.l = ln
	s.mu.Unlock()

	s.log.Info("ingest server listening", "addr", ln.Addr().String())
	s.acceptingWg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.acceptingWg.Done()
	for {
		s.mu.RLock()
		l := s.l
		s.mu.RUnlock()
		if l == nil {
			return
		}
		raw, err := l.Accept()
		if err != nil {
			s.mu.RLock()
			closing := s.closing
			s.mu.RUnlock()
			if closing || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept error", "error", err)
			continue
		}

		single := &singleConnListener{conn: raw}
		c, err := iconn.Accept(single)
		if err != nil {
			s.log.Warn("handshake failed", "remote", raw.RemoteAddr().String(), "error", err)
			continue
		}

		sess := NewSession(c, s.deps, s.log)
		s.mu.Lock()
		s.sessions[c.ID()] = sess
		s.mu.Unlock()

		sess.Attach(context.Background(), c)
		c.Start()

		go func(id string, done <-chan struct{}) {
			<-done
			s.mu.Lock()
			delete(s.sessions, id)
			s.mu.Unlock()
		}(c.ID(), sess.Done())
	}
}

// Stop stops accepting new connections, closes every active session, and
// waits for the accept loop to exit.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.l == nil {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	l := s.l
	s.l = nil
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	_ = l.Close()

	for _, sess := range sessions {
		sess.Close("server shutdown")
	}

	s.acceptingWg.Wait()
	s.log.Info("ingest server stopped")
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

// SessionCount returns the number of currently tracked sessions.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// singleConnListener adapts one pre-accepted net.Conn to net.Listener so
// iconn.Accept (written against a Listener) can run its handshake on a
// connection this server already has in hand.
type singleConnListener struct{ conn net.Conn }

func (s *singleConnListener) Accept() (net.Conn, error) {
	if s.conn == nil {
		return nil, errors.New("no conn")
	}
	c := s.conn
	s.conn = nil
	return c, nil
}

func (s *singleConnListener) Close() error {
	if s.conn != nil {
		_ = s.conn.Close()
	}
	return nil
}

func (s *singleConnListener) Addr() net.Addr {
	if s.conn != nil {
		return s.conn.LocalAddr()
	}
	return &net.TCPAddr{}
}
