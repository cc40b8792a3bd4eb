package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/grainway/batchgate/errors"
)

// ShutdownTimeout bounds how long Stop waits for in-flight requests and
// the hub goroutine.
const ShutdownTimeout = 10 * time.Second

// Start binds the configured port and begins serving. The webhook URL
// is registered with the tracker out of band, so a taken port is a hard
// error rather than something to hop away from.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return errors.NewConfigurationError("failed to bind port %d: %v", s.cfg.Port, err)
	}
	s.port = listener.Addr().(*net.TCPAddr).Port

	s.startHub()

	s.httpServer = &http.Server{
		Handler: s.Handler(),
		// Sweeps over large boards hold the response open well past
		// interactive timescales.
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	s.startedAt = time.Now()
	s.logger.Infow("Server ready",
		"port", s.port,
		"max_clients", MaxClients)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Errorw("HTTP server terminated unexpectedly", "error", err)
		}
	}()

	return nil
}

// Port reports the bound port. Useful when Config.Port was 0.
func (s *Server) Port() int {
	return s.port
}

// Stop drains in-flight requests, closes WebSocket clients, and waits
// for the hub and listener goroutines.
func (s *Server) Stop() error {
	s.logger.Infow("Initiating server shutdown")

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warnw("HTTP shutdown did not finish cleanly", "error", err)
		}
	}

	// Close client connections before cancelling the hub so the pumps
	// unblock and exit.
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.Unlock()
	for _, client := range clients {
		client.conn.Close()
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(ShutdownTimeout):
		s.logger.Warnw("Timed out waiting for server goroutines")
	}

	s.logger.Infow("Server shutdown complete",
		"broadcast_drops", s.broadcastDrops.Load())
	return nil
}
