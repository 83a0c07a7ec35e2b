package pop3

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"
)

// shutdownTimeout is the maximum time to wait for in-flight connections
// during graceful shutdown.
const shutdownTimeout = 30 * time.Second

// ServerConfig holds the configuration for a POP3 server.
type ServerConfig struct {
	// ListenAddr is the address to listen on (e.g., ":2110").
	ListenAddr string

	// Hostname is the server hostname used in the greeting banner.
	Hostname string

	// PostOffice authenticates users and opens mailboxes.
	PostOffice PostOffice
}

// Server is a POP3 server that accepts connections and delegates mailbox
// access to a configured PostOffice.
type Server struct {
	config   ServerConfig
	listener net.Listener

	// wg tracks in-flight session goroutines for graceful shutdown.
	wg sync.WaitGroup
}

// New creates a new POP3 Server with the given configuration.
func New(cfg ServerConfig) *Server {
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}
	return &Server{config: cfg}
}

// ListenAndServe starts the POP3 server and blocks until the context is
// cancelled. On context cancellation, it stops accepting new connections
// and waits up to 30 seconds for in-flight sessions to complete.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return err
	}
	s.listener = ln

	slog.Info("POP3 server listening",
		"addr", ln.Addr().String(),
		"backend", s.config.PostOffice.Name(),
	)

	go func() {
		<-ctx.Done()
		slog.Info("shutting down POP3 server")
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				// Expected error from listener close during shutdown
				s.waitForSessions()
				return nil
			default:
				slog.Error("accept error", "error", err)
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			session := NewSession(conn, s.config.PostOffice, s.config.Hostname)
			session.Handle(ctx)
		}()
	}
}

// waitForSessions waits for all in-flight sessions to complete, with a
// maximum timeout to prevent indefinite blocking.
func (s *Server) waitForSessions() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("all sessions completed")
	case <-time.After(shutdownTimeout):
		slog.Warn("shutdown timeout reached, forcing close")
	}
}

// Addr returns the listener address, or empty string if not listening.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
