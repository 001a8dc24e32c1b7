// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// Server is the accept loop of the sample server. Each accepted connection
// is dispatched on its own goroutine so a slow client never holds up accept.
type Server struct {
	ln net.Listener
	d  *Dispatcher

	mu       sync.Mutex
	inflight map[net.Conn]struct{}
}

// NewServer returns a Server accepting on ln.
func NewServer(ln net.Listener, d *Dispatcher) *Server {
	return &Server{ln: ln, d: d, inflight: make(map[net.Conn]struct{})}
}

// Addr returns the listener address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve accepts connections until ctx is cancelled or the listener is
// closed. On cancel, connections still waiting for their request line are
// closed; Serve waits for their dispatches before returning.
func (s *Server) Serve(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.ln.Close()
			s.closeInflight()
		case <-stop:
		}
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	var backoff time.Duration
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept: %w", err)
			}
			// Transient failure (e.g. out of file descriptors).
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff *= 2
			}
			if backoff > time.Second {
				backoff = time.Second
			}
			log.Printf("server: accept error: %v; retrying in %v", err, backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if !s.track(ctx, conn) {
			conn.Close()
			return nil
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.untrack(conn)
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	peer := conn.RemoteAddr().String()
	outcome, err := s.d.Dispatch(conn)
	if err != nil {
		log.Printf("server: %s: %s (%s): %v", peer, outcome, PolicyFor(err), err)
	}
}

// track records conn as in flight. It reports false once ctx is done, so a
// connection accepted during shutdown is never left unclosed.
func (s *Server) track(ctx context.Context, conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	s.inflight[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.inflight, conn)
	s.mu.Unlock()
}

func (s *Server) closeInflight() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.inflight {
		conn.Close()
	}
}
