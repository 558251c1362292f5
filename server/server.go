// Package server dispatches TCP clients onto per-connection session
// coordinators sharing one graph store. Two dispatchers are available: a
// worker goroutine per connection (default) and a single-loop reactor.
package server

import (
	"bufio"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/net/netutil"

	"hulld/config"
	"hulld/graph"
	"hulld/out"
	"hulld/session"
)

// Server accepts line-oriented TCP clients and feeds their input to the
// shared store through per-connection coordinators.
type Server struct {
	cfg    config.Config
	store  *graph.Store
	logger *out.Logger

	mu     sync.Mutex
	ln     net.Listener
	conns  map[string]net.Conn
	closed bool

	wg sync.WaitGroup
}

func New(cfg config.Config, store *graph.Store, logger *out.Logger) *Server {
	return &Server{
		cfg:    cfg,
		store:  store,
		logger: logger,
		conns:  make(map[string]net.Conn),
	}
}

// ListenAndServe binds the configured address and serves until Close.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	return s.Serve(ln)
}

// Serve runs the configured dispatcher on ln, capping concurrent clients
// at the configured maximum. It returns once the listener is closed and
// every live connection has drained.
func (s *Server) Serve(ln net.Listener) error {
	limited := netutil.LimitListener(ln, s.cfg.MaxClients)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		limited.Close()
		return errors.New("server closed")
	}
	s.ln = limited
	s.mu.Unlock()

	if s.cfg.Mode == config.ModeReactor {
		return s.serveReactor(limited)
	}
	return s.serveWorkers(limited)
}

// Close stops accepting, closes every live connection, and waits for the
// dispatcher to drain. Shutdown is cooperative: workers notice their
// closed connections, nothing is cancelled mid-operation.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.ln
	conns := make([]net.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, c := range conns {
		c.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Server) policy() session.Policy {
	return session.ParsePolicy(s.cfg.Policy)
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// track registers the connection and reserves a worker slot under the
// same lock that Close uses, so a tracked connection is always part of
// the close snapshot and its wg.Add never races a started Wait. It
// reports false when the server is already closing; the caller must drop
// the connection.
func (s *Server) track(id string, conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[id] = conn
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
}

func (s *Server) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// serveWorkers is the thread-per-connection dispatcher: the store's lock
// is the sole cross-connection serialization point.
func (s *Server) serveWorkers(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.wg.Wait()
			if s.isClosed() {
				return nil
			}
			return errors.Wrap(err, "accept")
		}
		id := uuid.NewString()
		if !s.track(id, conn) {
			// accepted while Close was running
			conn.Close()
			continue
		}
		go s.worker(id, conn)
	}
}

// worker runs the read/extract/process/respond cycle for one connection.
// Each complete line gets its response written back before the next line
// is processed, preserving per-connection order.
func (s *Server) worker(id string, conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(id)
	defer conn.Close()

	coord := session.New(id, s.store, s.policy(), s.logger.Errorf)
	defer coord.Close()

	s.logger.Debugf("client %s connected from %s", id, conn.RemoteAddr())
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if strings.HasSuffix(line, "\n") {
			if resp := coord.HandleLine(line); resp != "" {
				if _, werr := conn.Write([]byte(resp + "\n")); werr != nil {
					s.logger.Debugf("client %s write: %v", id, werr)
					return
				}
			}
		}
		if err != nil {
			if err != io.EOF && !s.isClosed() {
				s.logger.Debugf("client %s read: %v", id, err)
			}
			s.logger.Debugf("client %s disconnected", id)
			return
		}
	}
}
