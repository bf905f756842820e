package chatserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/codefionn/amchat/internal/amtcp"
	"github.com/codefionn/amchat/internal/config"
	"github.com/codefionn/amchat/internal/consts"
	"github.com/codefionn/amchat/internal/filetransfer"
	"github.com/codefionn/amchat/internal/logger"
	"github.com/codefionn/amchat/internal/rooms"
	"github.com/codefionn/amchat/internal/transport"
)

var (
	// ErrServerStopped is returned when serving on a stopped server.
	ErrServerStopped = errors.New("server stopped")
	// ErrUserNotFound is returned by Kick for an unknown user.
	ErrUserNotFound = errors.New("user not found")
)

// Server accepts chat and file transfer connections and serves each one on
// its own goroutine.
type Server struct {
	cfg     config.ServerConfig
	log     *logger.Logger
	rooms   *rooms.Registry
	hub     *Hub
	handler ChatCommandHandler
	files   *filetransfer.Server

	tlsConfig *tls.Config
	registry  *prometheus.Registry
	metrics   *Metrics

	mu        sync.Mutex
	stopped   bool
	listeners []net.Listener
	conns     map[string]io.Closer
	wg        sync.WaitGroup
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// Option customizes a Server.
type Option func(*Server)

// WithHandler replaces the default chat application.
func WithHandler(h ChatCommandHandler) Option {
	return func(s *Server) {
		s.handler = h
	}
}

// WithTLSConfig sets the listener TLS configuration instead of loading it
// from the configured certificate files.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(s *Server) {
		s.tlsConfig = cfg
	}
}

// NewServer creates a server from cfg. log may be nil to use the global
// logger.
func NewServer(cfg *config.ServerConfig, log *logger.Logger, opts ...Option) (*Server, error) {
	log = logger.OrGlobal(log).WithPrefix("server")

	s := &Server{
		cfg:      *cfg,
		log:      log,
		registry: prometheus.NewRegistry(),
		conns:    make(map[string]io.Closer),
		stopCh:   make(chan struct{}),
	}
	if s.cfg.MaxConnections <= 0 {
		s.cfg.MaxConnections = consts.DefaultMaxConnections
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.tlsConfig == nil {
		tlsCfg, err := transport.ServerTLSConfig(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS configuration: %w", err)
		}
		s.tlsConfig = tlsCfg
	}

	s.rooms = rooms.New(log)
	s.hub = NewHub(s.rooms, log)
	if s.handler == nil {
		s.handler = NewApplication(s.hub, s.rooms, log)
	}
	s.files = filetransfer.NewServer(filetransfer.NewStore(cfg.FileDir), log)
	s.metrics = NewMetrics(s.registry, s.hub.Count, s.rooms.Count)

	return s, nil
}

// Hub returns the connection registry.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Rooms returns the room registry.
func (s *Server) Rooms() *rooms.Registry {
	return s.rooms
}

// Gatherer exposes the server's metrics for scraping.
func (s *Server) Gatherer() prometheus.Gatherer {
	return s.registry
}

// TLSEnabled reports whether the TCP listener uses TLS.
func (s *Server) TLSEnabled() bool {
	return s.tlsConfig != nil
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled or Stop is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := transport.Listen(s.cfg.ListenAddr, s.tlsConfig, s.cfg.MaxConnections)
	if err != nil {
		return err
	}
	s.log.Info("chat server listening on %s (tls: %t, max connections: %d)",
		ln.Addr(), s.TLSEnabled(), s.cfg.MaxConnections)
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is cancelled or Stop is
// called. The listener is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		ln.Close()
		return ErrServerStopped
	}
	s.listeners = append(s.listeners, ln)
	s.mu.Unlock()

	acceptDone := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-s.stopCh:
		case <-acceptDone:
		}
		ln.Close()
		return nil
	})
	g.Go(func() error {
		defer close(acceptDone)
		return s.acceptLoop(ctx, ln)
	})
	return g.Wait()
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isStopped() || ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.log.Info("listener %s closed, exiting accept loop", ln.Addr())
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.log.Warn("temporary accept error: %v", err)
				time.Sleep(consts.Timeout1Second / 10)
				continue
			}
			return fmt.Errorf("accept on %s: %w", ln.Addr(), err)
		}

		go s.ServeConn(ctx, conn, conn.RemoteAddr().String())
	}
}

// ServeConn serves one connection until it ends: it reads the mode byte and
// runs either the chat protocol or a file transfer. It closes conn before
// returning.
func (s *Server) ServeConn(ctx context.Context, conn io.ReadWriteCloser, remote string) {
	id := uuid.NewString()
	if !s.track(id, conn) {
		conn.Close()
		return
	}
	defer s.untrack(id, conn)

	log := s.log.WithPrefix("conn " + id[:8])
	if nc, ok := conn.(net.Conn); ok {
		if err := transport.Handshake(ctx, nc); err != nil {
			log.Debug("unable to establish secure connection with %s: %v", remote, err)
			return
		}
	}

	mode, err := amtcp.ReadMode(conn)
	if err != nil {
		log.Debug("no valid mode selector from %s: %v", remote, err)
		return
	}
	s.metrics.modeSelected(mode)

	switch mode {
	case amtcp.ModeChat:
		s.serveChat(newSession(id, remote, conn, log))
	case amtcp.ModeFileTransfer:
		if err := s.files.Serve(conn); err != nil {
			log.Debug("file transfer with %s ended: %v", remote, err)
		}
	}
}

func (s *Server) track(id string, conn io.Closer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.conns[id] = conn
	s.wg.Add(1)
	s.metrics.connectionOpened()
	return true
}

func (s *Server) untrack(id string, conn io.Closer) {
	conn.Close()
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
	s.metrics.connectionClosed()
	s.wg.Done()
}

func (s *Server) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Kick sends name a disconnect event and closes their connection.
func (s *Server) Kick(name string) error {
	session, ok := s.hub.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUserNotFound, name)
	}
	s.log.Info("kicking %q", name)
	return session.Kick()
}

// Stop closes all listeners, disconnects every client and waits for their
// goroutines to finish.
func (s *Server) Stop() error {
	var result error
	s.stopOnce.Do(func() {
		s.log.Info("stopping chat server")

		s.mu.Lock()
		s.stopped = true
		listeners := s.listeners
		s.listeners = nil
		s.mu.Unlock()
		close(s.stopCh)

		for _, ln := range listeners {
			if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				result = multierror.Append(result, fmt.Errorf("close listener: %w", err))
			}
		}

		if err := s.hub.Shutdown(); err != nil {
			s.log.Debug("kick during shutdown: %v", err)
		}

		// Unregistered chat and file transfer connections.
		s.mu.Lock()
		remaining := make([]io.Closer, 0, len(s.conns))
		for _, c := range s.conns {
			remaining = append(remaining, c)
		}
		s.mu.Unlock()
		for _, c := range remaining {
			c.Close()
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(consts.Timeout5Seconds):
			result = multierror.Append(result, errors.New("timed out waiting for connections to close"))
		}

		s.log.Info("chat server stopped")
	})
	return result
}
