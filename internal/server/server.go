package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/tagsync/internal/flags"
	"github.com/zjrosen/tagsync/internal/log"
)

// Server wraps the Handler with an http.Server for lifecycle management.
type Server struct {
	handler  *Handler
	server   *http.Server
	listener net.Listener
	addr     string
	port     int // Actual port after binding (useful when using :0)
}

// ServerConfig configures the server.
type ServerConfig struct {
	// Addr is the address to listen on (e.g., "127.0.0.1:7777").
	Addr string
	// Controller applies intents.
	Controller Controller
	Flags      *flags.Registry
	Tracer     trace.Tracer
	// ReadHeaderTimeout bounds reading request headers.
	ReadHeaderTimeout time.Duration
	// WriteTimeout bounds each websocket frame write.
	WriteTimeout time.Duration
	// Heartbeat is the websocket ping and SSE keepalive interval.
	Heartbeat time.Duration
}

// NewServer binds the listener and builds the server.
// If Addr uses port 0, the OS assigns a port; use Port() to read it.
func NewServer(cfg ServerConfig) (*Server, error) {
	handler := NewHandler(HandlerConfig{
		Controller:   cfg.Controller,
		Flags:        cfg.Flags,
		Tracer:       cfg.Tracer,
		WriteTimeout: cfg.WriteTimeout,
		Heartbeat:    cfg.Heartbeat,
	})

	readHeaderTimeout := cfg.ReadHeaderTimeout
	if readHeaderTimeout == 0 {
		readHeaderTimeout = 10 * time.Second
	}

	// Create listener first to get the actual port (important for :0)
	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}

	port := 0
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}

	// Request contexts end on shutdown so streaming handlers return.
	base, cancelBase := context.WithCancel(context.Background())
	srv := &http.Server{
		Handler:           handler.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return base },
		// No WriteTimeout: SSE and websocket connections are long-lived.
	}
	srv.RegisterOnShutdown(cancelBase)
	srv.RegisterOnShutdown(handler.closeSessions)

	return &Server{
		handler:  handler,
		server:   srv,
		listener: listener,
		addr:     cfg.Addr,
		port:     port,
	}, nil
}

// Start serves until the server is stopped. It returns http.ErrServerClosed after Stop.
func (s *Server) Start() error {
	log.Info(log.CatServer, "Starting server", "addr", s.listener.Addr().String(), "port", s.port)
	return s.server.Serve(s.listener)
}

// Stop closes websocket sessions and gracefully shuts down.
func (s *Server) Stop(ctx context.Context) error {
	log.Info(log.CatServer, "Stopping server")
	return s.server.Shutdown(ctx)
}

// Port returns the bound port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}
