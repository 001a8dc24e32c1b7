// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package stream

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"
)

// Options configures a Broadcaster.
type Options struct {
	// WriteTimeout bounds each client write. Zero means no deadline.
	WriteTimeout time.Duration
	// NewlineDelimited appends '\n' to every frame. The default wire format has
	// no delimiter: frames are bare JSON objects written back to back.
	NewlineDelimited bool
}

// Result counts the outcome of one broadcast.
type Result struct {
	Delivered int
	Dropped   int
}

// Broadcaster delivers each value to every client in a Registry, at most once
// and best effort. A failed write drops that client only.
type Broadcaster struct {
	reg  *Registry
	opts Options
}

// NewBroadcaster returns a Broadcaster over reg.
func NewBroadcaster(reg *Registry, opts Options) *Broadcaster {
	return &Broadcaster{reg: reg, opts: opts}
}

// Registry returns the registry this broadcaster delivers to.
func (b *Broadcaster) Registry() *Registry { return b.reg }

// Broadcast serializes v once as JSON and writes it to every registered client.
func (b *Broadcaster) Broadcast(v any) (Result, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return Result{}, fmt.Errorf("encode frame: %w", err)
	}
	if b.opts.NewlineDelimited {
		payload = append(payload, '\n')
	}
	return b.BroadcastRaw(payload), nil
}

// BroadcastRaw writes payload to every registered client concurrently and
// removes the clients whose write failed.
func (b *Broadcaster) BroadcastRaw(payload []byte) Result {
	clients := b.reg.snapshot()
	if len(clients) == 0 {
		return Result{}
	}

	errs := make([]error, len(clients))
	var wg sync.WaitGroup
	for i, c := range clients {
		wg.Add(1)
		go func(i int, c *Client) {
			defer wg.Done()
			errs[i] = Send(c.Conn, c.Peer, payload, b.opts.WriteTimeout)
		}(i, c)
	}
	wg.Wait()

	var res Result
	for i, err := range errs {
		if err == nil {
			res.Delivered++
			continue
		}
		res.Dropped++
		if b.reg.Remove(clients[i].Conn) {
			log.Printf("stream: client %s disconnected: %v", clients[i].Peer, err)
		}
	}
	return res
}

// Send writes p to conn under an optional deadline. Any failure is returned
// as a *ClientWriteError.
func Send(conn Conn, peer string, p []byte, timeout time.Duration) error {
	if timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return &ClientWriteError{Peer: peer, Err: err}
		}
	}
	if _, err := conn.Write(p); err != nil {
		return &ClientWriteError{Peer: peer, Err: err}
	}
	return nil
}
