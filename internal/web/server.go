// Package web serves the HTTP gateway next to the chat listener: the chat
// byte stream over WebSocket, Prometheus metrics and a health check.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codefionn/amchat/internal/chatserver"
	"github.com/codefionn/amchat/internal/consts"
	"github.com/codefionn/amchat/internal/logger"
	"github.com/codefionn/amchat/internal/pprof"
	"github.com/codefionn/amchat/internal/transport"
)

// Health is the body of /healthz.
type Health struct {
	Status string `json:"status"`
	Users  int    `json:"users"`
	Rooms  int    `json:"rooms"`
}

// Server represents the HTTP gateway
type Server struct {
	addr       string
	chat       *chatserver.Server
	log        *logger.Logger
	router     *httprouter.Router
	upgrader   websocket.Upgrader
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a gateway for chat listening on addr.
func NewServer(addr string, chat *chatserver.Server, log *logger.Logger) *Server {
	log = logger.OrGlobal(log).WithPrefix("web")
	s := &Server{
		addr:   addr,
		chat:   chat,
		log:    log,
		router: httprouter.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  consts.ChannelCapacity,
			WriteBufferSize: consts.ChannelCapacity,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.setupRoutes()
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: consts.Timeout10Seconds,
		ErrorLog:          logger.NewStdLogger(log, slog.LevelWarn),
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/ws", s.handleWebSocket)
	s.router.GET("/healthz", s.handleHealth)
	s.router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(s.chat.Gatherer(), promhttp.HandlerOpts{
		ErrorLog: logger.NewStdLogger(s.log, slog.LevelError),
	}))
}

// EnableProfiling adds the /debug/pprof routes. Call it before Start.
func (s *Server) EnableProfiling() {
	pprof.Register(s.router)
}

// Handler returns the gateway's routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		s.log.Info("gateway listening on %s", ln.Addr())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address once Start succeeded.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop shuts the HTTP server down. WebSocket sessions are hijacked
// connections and end when the chat server stops.
func (s *Server) Stop() error {
	s.log.Info("stopping gateway")
	ctx, cancel := context.WithTimeout(context.Background(), consts.Timeout5Seconds)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// handleWebSocket carries one chat connection, mode byte first, over binary
// messages. It returns when the connection ends.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("failed to upgrade WebSocket from %s: %v", r.RemoteAddr, err)
		return
	}
	s.log.Debug("WebSocket connection from %s", r.RemoteAddr)
	s.chat.ServeConn(r.Context(), transport.NewWSConn(conn), r.RemoteAddr)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	health := Health{
		Status: "ok",
		Users:  s.chat.Hub().Count(),
		Rooms:  s.chat.Rooms().Count(),
	}
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.log.Debug("write health response: %v", err)
	}
}
