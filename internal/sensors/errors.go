// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"fmt"
)

// ErrBusTimeout is wrapped by a BusError when a transaction does not complete
// within the bus timeout.
var ErrBusTimeout = errors.New("bus transaction timed out")

// ErrInvalidRangeCode is returned by WriteRaw for a range register value that
// is not in the range tables.
var ErrInvalidRangeCode = errors.New("invalid range code")

// BusError reports a failed transfer on the register bus (NACK, timeout,
// disconnected bus). It is never retried internally.
type BusError struct {
	Op  string // "read" or "write"
	Reg byte
	Err error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("bus %s 0x%02X: %v", e.Op, e.Reg, e.Err)
}

func (e *BusError) Unwrap() error { return e.Err }

// UnsupportedRangeError is returned when a range value is not one of the
// enumerated settings for its kind.
type UnsupportedRangeError struct {
	Kind  RangeKind
	Value int
}

func (e *UnsupportedRangeError) Error() string {
	return fmt.Sprintf("unsupported %s range %d%s (supported: %v)", e.Kind, e.Value, e.Kind.Unit(), Values(e.Kind))
}

// ProtocolError is returned when the device reports a range code that is not
// in the table. This usually means wrong wiring or a different chip.
type ProtocolError struct {
	Kind RangeKind
	Code byte
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("device reported unknown %s code 0x%02X", e.Kind, e.Code)
}
