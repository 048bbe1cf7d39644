// Package server implements the connection/session manager: one TCP
// listener, one sequential session per connection, connection-scoped
// confirmation state and a graceful stop lifecycle. Servers are plain
// values with explicit Start/Stop; multiple independent instances can run
// in one process.
package server

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nodebridge/nodebridge/pkg/config"
	"github.com/nodebridge/nodebridge/pkg/confirm"
	"github.com/nodebridge/nodebridge/pkg/dispatch"
	"github.com/nodebridge/nodebridge/pkg/logging"
	"github.com/nodebridge/nodebridge/pkg/metrics"
)

// Server accepts client connections and runs one session per connection.
type Server struct {
	cfg        config.Config
	dispatcher *dispatch.Dispatcher
	signer     *confirm.Signer
	metrics    *metrics.Registry
	logger     logging.Logger

	listener net.Listener
	stopCh   chan struct{}
	wg       sync.WaitGroup
	running  atomic.Bool
	mu       sync.Mutex // protects startup/shutdown sequences and sessions

	sessions map[string]*Session
}

// New creates a server. metrics may be nil in tests.
func New(cfg config.Config, dispatcher *dispatch.Dispatcher, m *metrics.Registry, logger logging.Logger) *Server {
	return &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		signer:     confirm.NewSigner(),
		metrics:    m,
		logger:     logger.With(logging.F("component", "server")),
		stopCh:     make(chan struct{}),
		sessions:   make(map[string]*Session),
	}
}

// Start binds the listener and begins accepting connections.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return fmt.Errorf("server already running")
	}
	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr, err)
	}
	s.listener = listener
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("server started", logging.F("addr", listener.Addr().String()))
	return nil
}

// Addr returns the bound listener address, for tests using ":0".
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every live session, then waits for session
// goroutines to drain, bounded by timeout.
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		return nil
	}
	s.running.Store(false)
	close(s.stopCh)
	if s.listener != nil {
		s.listener.Close()
	}
	for _, session := range s.sessions {
		session.close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("server stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timed out after %v", timeout)
	}
}

// acceptLoop accepts connections, bounded by a handler semaphore so a
// connection flood cannot exhaust the process.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	sem := make(chan struct{}, s.cfg.MaxConnections)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				s.logger.Warn("accept failed", logging.Err(err))
				continue
			}
		}

		select {
		case sem <- struct{}{}:
			session := s.newSession(conn)
			s.trackSession(session)
			s.wg.Add(1)
			go func() {
				defer func() {
					s.untrackSession(session)
					<-sem
					s.wg.Done()
				}()
				session.run()
			}()
		default:
			s.logger.Warn("connection rejected: at capacity",
				logging.F("remote", conn.RemoteAddr().String()),
				logging.F("capacity", s.cfg.MaxConnections))
			if s.metrics != nil {
				s.metrics.ConnectionsRejected.Inc()
			}
			conn.Close()
		}
	}
}

func (s *Server) trackSession(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.id] = session
	if s.metrics != nil {
		s.metrics.ConnectionsTotal.Inc()
		s.metrics.ConnectionsActive.Inc()
	}
}

func (s *Server) untrackSession(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, session.id)
	if s.metrics != nil {
		s.metrics.ConnectionsActive.Dec()
	}
}
