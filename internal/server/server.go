package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Server wraps an *http.Server to provide start/shutdown lifecycle.
type Server struct {
	// Streaming disables the write timeout, for servers whose connections
	// are upgraded to long-lived websockets.
	Streaming bool

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// Extracted constants to avoid magic numbers and centralize tuning knobs.
const (
	maxHeaderBytes    = 1 << 20 // 1 MB
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
)

var errNotListening = errors.New("server is not listening")

// newHTTPServer builds a configured *http.Server for the given address and handler.
func newHTTPServer(addr string, handler http.Handler, streaming bool) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		MaxHeaderBytes:    maxHeaderBytes,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	if streaming {
		srv.WriteTimeout = 0
	}
	return srv
}

// normalizeAddr ensures the provided port is a valid address (accepts "8080", ":8080" or "host:8080").
func normalizeAddr(port string) string {
	if port == "" {
		return ""
	}
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

// Listen binds the port so callers learn about conflicts before serving.
func (s *Server) Listen(port string, handler http.Handler) error {
	addr := normalizeAddr(port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.httpServer = newHTTPServer(addr, handler, s.Streaming)
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// Serve blocks until the server stops. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Serve() error {
	s.mu.Lock()
	srv, ln := s.httpServer, s.listener
	s.mu.Unlock()
	if srv == nil {
		return errNotListening
	}
	return srv.Serve(ln)
}

// Addr returns the bound address, or "" before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully stops the server, allowing in-flight requests to complete.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, ln := s.httpServer, s.listener
	s.httpServer, s.listener = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	// not yet tracked by srv when Serve was never called
	_ = ln.Close()
	return err
}
