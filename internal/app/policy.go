// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"

	"github.com/relabs-tech/inertial_streamer/internal/sensors"
	"github.com/relabs-tech/inertial_streamer/internal/stream"
)

// Action is what a loop does about an error.
type Action int

const (
	SkipTick Action = iota
	Fatal
	DropConnection
	CloseConnection
)

func (a Action) String() string {
	switch a {
	case SkipTick:
		return "skip-tick"
	case Fatal:
		return "fatal"
	case DropConnection:
		return "drop-connection"
	case CloseConnection:
		return "close-connection"
	}
	return "unknown"
}

// PolicyFor maps an error to the action the caller must take.
func PolicyFor(err error) Action {
	var (
		busErr       *sensors.BusError
		rangeErr     *sensors.UnsupportedRangeError
		protoErr     *sensors.ProtocolError
		writeErr     *stream.ClientWriteError
		malformedErr *MalformedRequestError
	)
	switch {
	case errors.As(err, &busErr):
		return SkipTick
	case errors.As(err, &rangeErr), errors.As(err, &protoErr):
		return Fatal
	case errors.As(err, &writeErr):
		return DropConnection
	case errors.As(err, &malformedErr):
		return CloseConnection
	}
	return SkipTick
}
