// Package server hosts the MCP session router and the HTTP server
// lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	readHeaderTimeout = 60 * time.Second
	idleConnTimeout   = 180 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server runs the HTTP listener. Handler is the full route tree; Router is
// shut down first so open event streams end before the listener drains.
type Server struct {
	addr    string
	handler http.Handler
	router  *Router
	logger  *zap.Logger

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	running    bool
}

func New(addr string, handler http.Handler, router *Router, logger *zap.Logger) *Server {
	return &Server{
		addr:    addr,
		handler: handler,
		router:  router,
		logger:  logger.Named("http"),
	}
}

// Listen binds the address without serving yet, so callers learn about a
// busy port before anything else starts.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	ln, err := listen(s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// Addr is the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleConnTimeout,
		MaxHeaderBytes:    1 << 20,
		ConnState:         s.logConnectionState,
	}
	s.running = true
	srv, ln := s.httpServer, s.listener
	s.mu.Unlock()

	if s.router != nil {
		s.router.StartSweeper()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("HTTP server started", zap.String("address", ln.Addr().String()))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errCh:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.logger.Error("HTTP server error", zap.Error(err))
		return err
	}
}

// Shutdown closes every session and then drains the listener, forcing it
// closed if ctx expires first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		s.logger.Debug("Server stop requested but server is not running")
		return nil
	}
	s.logger.Info("Shutting down HTTP server")

	if s.router != nil {
		s.router.Shutdown(ctx)
	}

	var err error
	if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
		s.logger.Warn("Failed to gracefully shutdown HTTP server, forcing close", zap.Error(shutdownErr))
		if closeErr := s.httpServer.Close(); closeErr != nil {
			s.logger.Error("Error forcing HTTP server close", zap.Error(closeErr))
		}
		err = shutdownErr
	}
	s.httpServer = nil
	s.listener = nil
	s.running = false
	s.logger.Info("HTTP server stopped")
	return err
}

// logConnectionState logs HTTP connection state changes for debugging client issues
func (s *Server) logConnectionState(conn net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew, http.StateClosed, http.StateHijacked:
		s.logger.Debug("Client connection state changed",
			zap.String("remote_addr", conn.RemoteAddr().String()),
			zap.String("state", state.String()))
	case http.StateActive, http.StateIdle:
	}
}
