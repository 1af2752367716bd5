// Package server runs the sidecar's HTTP listener with a bounded drain on
// shutdown.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"docrelay/logger"
)

// DefaultDrainTimeout bounds how long Stop waits for in-flight requests.
const DefaultDrainTimeout = 2 * time.Second

// Server owns one listener and its accept loop.
type Server struct {
	httpServer   *http.Server
	drainTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	done     chan struct{}
	serveErr error
}

// New prepares a server on addr. Nothing is bound until Start.
func New(addr string, handler http.Handler, drainTimeout time.Duration) *Server {
	if drainTimeout <= 0 {
		drainTimeout = DefaultDrainTimeout
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 30 * time.Second,
		},
		drainTimeout: drainTimeout,
		done:         make(chan struct{}),
	}
}

// Start binds the listener and runs the accept loop in its own goroutine.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return errors.New("server already started")
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	logger.Infof("Listening on %s", ln.Addr())

	go func() {
		defer close(s.done)
		err := s.httpServer.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.mu.Lock()
		s.serveErr = err
		s.mu.Unlock()
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops accepting connections and waits for in-flight requests up to
// the drain timeout, then closes whatever is left.
func (s *Server) Stop(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(ctx, s.drainTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(drainCtx)
	if err != nil {
		logger.Warnf("Drain did not finish within %s, closing connections: %v", s.drainTimeout, err)
		if closeErr := s.httpServer.Close(); closeErr != nil {
			return closeErr
		}
	}

	s.mu.Lock()
	started := s.listener != nil
	s.mu.Unlock()
	if started {
		<-s.done
	}
	return nil
}

// Wait blocks until the accept loop exits. A loop ended by Stop returns nil.
func (s *Server) Wait() error {
	s.mu.Lock()
	started := s.listener != nil
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serveErr
}
