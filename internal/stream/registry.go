// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package stream fans samples out to every subscribed network client.
package stream

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Mode is how a client connection is served.
type Mode int

const (
	OneShot Mode = iota
	Streaming
)

func (m Mode) String() string {
	if m == Streaming {
		return "streaming"
	}
	return "one-shot"
}

// Conn is the write side of a client connection. net.Conn satisfies it.
type Conn interface {
	Write(p []byte) (int, error)
	Close() error
	SetWriteDeadline(t time.Time) error
}

// Client is an accepted connection and how it is being served.
type Client struct {
	Conn Conn
	Peer string
	Mode Mode
}

// ErrNotStreaming is returned when registering a one-shot client.
var ErrNotStreaming = errors.New("only streaming clients can be registered")

// ClientWriteError reports a failed write to a client. The client is dropped.
type ClientWriteError struct {
	Peer string
	Err  error
}

func (e *ClientWriteError) Error() string {
	return fmt.Sprintf("write to client %s: %v", e.Peer, e.Err)
}

func (e *ClientWriteError) Unwrap() error { return e.Err }

// Registry is the set of streaming clients, keyed by connection handle.
// Registration from the accept path and pruning from the broadcast path are
// serialized by mu.
type Registry struct {
	mu      sync.Mutex
	clients map[Conn]*Client
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[Conn]*Client)}
}

// Register adds a streaming client. Registering a handle that is already
// present is a no-op and reports false.
func (r *Registry) Register(c *Client) (bool, error) {
	if c == nil || c.Conn == nil {
		return false, errors.New("register: nil client")
	}
	if c.Mode != Streaming {
		return false, ErrNotStreaming
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c.Conn]; ok {
		return false, nil
	}
	r.clients[c.Conn] = c
	return true, nil
}

// Remove drops the client owning conn and closes conn. It reports whether the
// client was registered; an unregistered conn is left untouched.
func (r *Registry) Remove(conn Conn) bool {
	r.mu.Lock()
	_, ok := r.clients[conn]
	delete(r.clients, conn)
	r.mu.Unlock()
	if ok {
		conn.Close()
	}
	return ok
}

// Contains reports whether conn is registered.
func (r *Registry) Contains(conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.clients[conn]
	return ok
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// CloseAll closes and removes every client.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[Conn]*Client)
	r.mu.Unlock()
	for conn := range clients {
		conn.Close()
	}
}

func (r *Registry) snapshot() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}
