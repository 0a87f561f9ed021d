// Package httpserver is the generic HTTP layer the transport adapter mounts
// its reception handler on. It owns the listener and reports the real bound
// port, which makes ":0" usable in tests and single-host deployments.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds server configuration.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:         "0.0.0.0:8800",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// Server accepts inbound connections and dispatches to registered handlers.
type Server struct {
	addr   string
	mux    *http.ServeMux
	server *http.Server
	logger *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	paths    map[string]bool
}

// New creates a server. It does not listen until Listen is called.
func New(cfg *Config, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	return &Server{
		addr:   cfg.Addr,
		mux:    mux,
		logger: logger,
		paths:  make(map[string]bool),
		server: &http.Server{
			Handler:      mux,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// RegisterHandler mounts handler at path. Registering the same path twice
// is an error.
func (s *Server) RegisterHandler(path string, handler http.Handler) error {
	if path == "" || path[0] != '/' {
		return fmt.Errorf("invalid handler path %q", path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paths[path] {
		return fmt.Errorf("path %s already registered", path)
	}
	s.paths[path] = true
	s.mux.Handle(path, handler)

	s.logger.Debug("Registered handler", zap.String("path", path))
	return nil
}

// Listen binds the listener and returns the actual bound port.
func (s *Server) Listen() (int, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return 0, fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	port := ln.Addr().(*net.TCPAddr).Port
	s.logger.Info("HTTP layer listening", zap.String("addr", ln.Addr().String()))
	return port, nil
}

// Port returns the bound port, or 0 before Listen.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Serve blocks serving requests until Shutdown. Listen must have succeeded.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	if ln == nil {
		return fmt.Errorf("serve called before listen")
	}

	if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
