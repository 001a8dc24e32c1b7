// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"time"

	"github.com/relabs-tech/inertial_streamer/internal/imu"
	"github.com/relabs-tech/inertial_streamer/internal/stream"
)

const (
	statusOK         = "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\n\r\n"
	statusBadRequest = "HTTP/1.1 400 BAD REQUEST\r\n\r\n"
	statusNotFound   = "HTTP/1.1 404 NOT FOUND\r\n\r\n"
	statusError      = "HTTP/1.1 500 INTERNAL SERVER ERROR\r\n\r\n"
)

// SensorQuerier is the read side of the sensor used by one-shot requests.
type SensorQuerier interface {
	ReadGyro() (imu.Vector, error)
	ReadAccel() (imu.Vector, error)
	ReadTemperature() (float64, error)
}

// MalformedRequestError is returned for a request line that is not
// "GET PATH PROTOCOL".
type MalformedRequestError struct {
	Line   string
	Reason string
}

func (e *MalformedRequestError) Error() string {
	return fmt.Sprintf("malformed request %q: %s", e.Line, e.Reason)
}

// Outcome is the terminal state a dispatched connection reached.
type Outcome int

const (
	OutcomeMalformed Outcome = iota
	OutcomeOneShot
	OutcomeStreaming
	OutcomeNotFound
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMalformed:
		return "malformed"
	case OutcomeOneShot:
		return "one-shot"
	case OutcomeStreaming:
		return "streaming"
	case OutcomeNotFound:
		return "not-found"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

type dispatchState int

const (
	awaitingRequestLine dispatchState = iota
	routing
	oneShotReply
	streamRegister
	notFound
	closed
)

type query func(SensorQuerier) (any, error)

var oneShotRoutes = map[string]query{
	"/gyro": func(s SensorQuerier) (any, error) {
		v, err := s.ReadGyro()
		return v, err
	},
	"/accel": func(s SensorQuerier) (any, error) {
		v, err := s.ReadAccel()
		return v, err
	},
	"/temp": func(s SensorQuerier) (any, error) {
		v, err := s.ReadTemperature()
		return v, err
	},
}

const streamPath = "/stream"

// DispatcherOptions bounds the work spent on one request.
type DispatcherOptions struct {
	Budget       int           // max bytes read for the request line
	ReadTimeout  time.Duration // deadline for that read; 0 disables it
	WriteTimeout time.Duration // deadline for one-shot replies; 0 disables it
}

// Dispatcher routes one accepted connection to a one-shot reply, to the
// stream registry, or to an error reply.
type Dispatcher struct {
	sensor SensorQuerier
	reg    *stream.Registry
	opts   DispatcherOptions
}

// NewDispatcher returns a Dispatcher. A non-positive budget falls back to
// 1024 bytes.
func NewDispatcher(sensor SensorQuerier, reg *stream.Registry, opts DispatcherOptions) *Dispatcher {
	if opts.Budget <= 0 {
		opts.Budget = 1024
	}
	return &Dispatcher{sensor: sensor, reg: reg, opts: opts}
}

// Dispatch reads one request from conn and runs it to a terminal state.
// Every outcome except OutcomeStreaming closes conn before returning. The
// returned error is informational: the accept loop logs it and moves on.
func (d *Dispatcher) Dispatch(conn net.Conn) (Outcome, error) {
	peer := conn.RemoteAddr().String()

	var (
		state   = awaitingRequestLine
		outcome Outcome
		path    string
		result  error
	)
	for state != closed {
		switch state {
		case awaitingRequestLine:
			line, err := d.readRequestLine(conn)
			if err == nil {
				path, err = parseRequestLine(line)
			}
			if err != nil {
				result = err
				outcome = OutcomeMalformed
				d.reply(conn, peer, statusBadRequest, nil)
				state = closed
				continue
			}
			state = routing

		case routing:
			if path == streamPath {
				state = streamRegister
			} else if _, ok := oneShotRoutes[path]; ok {
				state = oneShotReply
			} else {
				state = notFound
			}

		case oneShotReply:
			outcome, result = d.oneShot(conn, peer, oneShotRoutes[path])
			state = closed

		case streamRegister:
			if err := d.register(conn, peer); err != nil {
				outcome, result = OutcomeFailed, err
				conn.Close()
				return outcome, result
			}
			// The registry owns conn from here on.
			return OutcomeStreaming, nil

		case notFound:
			outcome = OutcomeNotFound
			result = d.reply(conn, peer, statusNotFound, nil)
			state = closed
		}
	}
	conn.Close()
	return outcome, result
}

// readRequestLine performs a single bounded read, mirroring clients that
// send the whole request line in one segment without a terminator.
func (d *Dispatcher) readRequestLine(conn net.Conn) (string, error) {
	if d.opts.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(d.opts.ReadTimeout))
		defer conn.SetReadDeadline(time.Time{})
	}
	buf := make([]byte, d.opts.Budget)
	n, err := conn.Read(buf)
	if n == 0 {
		reason := "empty request"
		if err != nil && !errors.Is(err, io.EOF) {
			reason = fmt.Sprintf("read: %v", err)
		}
		return "", &MalformedRequestError{Reason: reason}
	}
	line, _, _ := strings.Cut(string(buf[:n]), "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

// parseRequestLine returns the path of a "GET PATH PROTOCOL" line.
func parseRequestLine(line string) (string, error) {
	tokens := strings.Split(line, " ")
	if len(tokens) != 3 {
		return "", &MalformedRequestError{Line: line, Reason: fmt.Sprintf("want 3 tokens, got %d", len(tokens))}
	}
	method, path := tokens[0], tokens[1]
	if method != "GET" {
		return "", &MalformedRequestError{Line: line, Reason: fmt.Sprintf("method %q not supported", method)}
	}
	if path == "" {
		return "", &MalformedRequestError{Line: line, Reason: "empty path"}
	}
	return path, nil
}

func (d *Dispatcher) oneShot(conn net.Conn, peer string, q query) (Outcome, error) {
	v, err := q(d.sensor)
	if err != nil {
		d.reply(conn, peer, statusError, nil)
		return OutcomeFailed, fmt.Errorf("query sensor: %w", err)
	}
	body, err := json.Marshal(v)
	if err != nil {
		d.reply(conn, peer, statusError, nil)
		return OutcomeFailed, fmt.Errorf("encode reply: %w", err)
	}
	if err := d.reply(conn, peer, statusOK, body); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeOneShot, nil
}

func (d *Dispatcher) reply(conn net.Conn, peer, status string, body []byte) error {
	msg := append([]byte(status), body...)
	return stream.Send(conn, peer, msg, d.opts.WriteTimeout)
}

func (d *Dispatcher) register(conn net.Conn, peer string) error {
	added, err := d.reg.Register(&stream.Client{Conn: conn, Peer: peer, Mode: stream.Streaming})
	if err != nil {
		return fmt.Errorf("register stream client: %w", err)
	}
	if added {
		log.Printf("server: client %s streaming (%d clients)", peer, d.reg.Len())
	}
	return nil
}
