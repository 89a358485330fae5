package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Server wraps the http.Server with sensible defaults.
type Server struct {
	inner *http.Server
}

// New constructs a server listening on the provided port. There is no write
// timeout: event streams stay open for the life of the client.
func New(port int, handler http.Handler) *Server {
	return &Server{
		inner: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
	}
}

// OnShutdown registers fn to run when Shutdown starts. Hijacked connections
// such as websockets are not tracked by the server and must be closed here.
func (s *Server) OnShutdown(fn func()) {
	s.inner.RegisterOnShutdown(fn)
}

// Start begins serving HTTP traffic. A clean shutdown returns nil.
func (s *Server) Start() error {
	return s.Serve(nil)
}

// Serve accepts connections on ln, or on the configured port when ln is nil.
func (s *Server) Serve(ln net.Listener) error {
	var err error
	if ln == nil {
		err = s.inner.ListenAndServe()
	} else {
		err = s.inner.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully terminates the HTTP server. A zero timeout falls back
// to ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = ShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.inner.Shutdown(ctx)
}
