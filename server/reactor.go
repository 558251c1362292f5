package server

import (
	"bytes"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"hulld/session"
)

// The reactor dispatcher is the event-loop counterpart of serveWorkers:
// shallow per-connection readers forward raw chunks over one channel to a
// single processing goroutine that owns every per-connection accumulator
// and coordinator. No graph operation ever runs concurrently with another
// in this mode; the store lock is just the portable baseline.

const housekeepingInterval = time.Second

// connEvent is what readers and the acceptor deliver to the loop. Exactly
// one of conn (new connection), data (readable bytes), or closed is set.
type connEvent struct {
	id     string
	conn   net.Conn
	data   []byte
	closed bool
}

// connState is the loop-owned state for one connection.
type connState struct {
	conn  net.Conn
	coord *session.Coordinator
	inbuf []byte
}

func (s *Server) serveReactor(ln net.Listener) error {
	events := make(chan connEvent, 64)
	acceptDone := make(chan error, 1)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				acceptDone <- err
				return
			}
			id := uuid.NewString()
			if !s.track(id, conn) {
				// accepted while Close was running
				conn.Close()
				continue
			}
			// the registration event precedes any read event for this id
			// because the reader starts only after it is queued
			events <- connEvent{id: id, conn: conn}
			go s.readPump(id, conn, events)
		}
	}()

	states := make(map[string]*connState)
	ticker := time.NewTicker(housekeepingInterval)
	defer ticker.Stop()

	var loopErr error
	accepting := true
	for accepting || s.connCount() > 0 {
		select {
		case ev := <-events:
			s.handleEvent(states, ev)

		case err := <-acceptDone:
			accepting = false
			if !s.isClosed() {
				loopErr = errors.Wrap(err, "accept")
				// drag the remaining readers down so the loop can drain
				s.mu.Lock()
				for _, c := range s.conns {
					c.Close()
				}
				s.mu.Unlock()
			}

		case <-ticker.C:
			// bounded wait: gives the loop a chance to re-check shutdown
			// even when no client is talking
		}
	}

	s.wg.Wait()
	return loopErr
}

func (s *Server) handleEvent(states map[string]*connState, ev connEvent) {
	switch {
	case ev.conn != nil:
		states[ev.id] = &connState{
			conn:  ev.conn,
			coord: session.New(ev.id, s.store, s.policy(), s.logger.Errorf),
		}
		s.logger.Debugf("client %s connected from %s", ev.id, ev.conn.RemoteAddr())

	case ev.closed:
		if st := states[ev.id]; st != nil {
			st.coord.Close()
			st.conn.Close()
			delete(states, ev.id)
		}
		s.untrack(ev.id)
		s.logger.Debugf("client %s disconnected", ev.id)

	default:
		st := states[ev.id]
		if st == nil {
			return
		}
		st.inbuf = append(st.inbuf, ev.data...)
		s.processBuffered(st)
	}
}

// processBuffered cuts complete newline-terminated lines off the front of
// the accumulator and answers them in arrival order. A trailing partial
// line stays buffered until more bytes arrive.
func (s *Server) processBuffered(st *connState) {
	for {
		i := bytes.IndexByte(st.inbuf, '\n')
		if i < 0 {
			return
		}
		line := string(st.inbuf[:i+1])
		st.inbuf = st.inbuf[i+1:]
		if resp := st.coord.HandleLine(line); resp != "" {
			if _, err := st.conn.Write([]byte(resp + "\n")); err != nil {
				s.logger.Debugf("client %s write: %v", st.coord.ID(), err)
				return
			}
		}
	}
}

// readPump blocks on the socket so the processing loop never has to. It
// reports raw chunks and, finally, the close of its connection.
func (s *Server) readPump(id string, conn net.Conn, events chan<- connEvent) {
	defer s.wg.Done()
	buf := make([]byte, 1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			events <- connEvent{id: id, data: append([]byte(nil), buf[:n]...)}
		}
		if err != nil {
			events <- connEvent{id: id, closed: true}
			return
		}
	}
}
