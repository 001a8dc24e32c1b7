// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3"
)

// RegisterBus performs register-addressed reads and writes against one device.
// Transactions are serialized: at most one is in flight on the device at a time.
type RegisterBus struct {
	dev     conn.Conn
	timeout time.Duration
	sem     chan struct{}
}

// NewRegisterBus wraps dev. A timeout of zero waits indefinitely for the bus.
func NewRegisterBus(dev conn.Conn, timeout time.Duration) *RegisterBus {
	return &RegisterBus{
		dev:     dev,
		timeout: timeout,
		sem:     make(chan struct{}, 1),
	}
}

func (b *RegisterBus) String() string {
	return b.dev.String()
}

// ReadRegister reads n consecutive bytes starting at reg.
func (b *RegisterBus) ReadRegister(reg byte, n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("read 0x%02X: invalid length %d", reg, n)
	}
	buf := make([]byte, n)
	if err := b.tx("read", reg, []byte{reg}, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteRegister writes data starting at reg.
func (b *RegisterBus) WriteRegister(reg byte, data ...byte) error {
	w := make([]byte, 0, len(data)+1)
	w = append(w, reg)
	w = append(w, data...)
	return b.tx("write", reg, w, nil)
}

func (b *RegisterBus) tx(op string, reg byte, w, r []byte) error {
	if b.timeout <= 0 {
		b.sem <- struct{}{}
		err := b.dev.Tx(w, r)
		<-b.sem
		if err != nil {
			return &BusError{Op: op, Reg: reg, Err: err}
		}
		return nil
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case b.sem <- struct{}{}:
	case <-timer.C:
		return &BusError{Op: op, Reg: reg, Err: ErrBusTimeout}
	}

	// The slot is released by the goroutine, so a stalled transfer keeps
	// other callers off the device until it actually returns.
	done := make(chan error, 1)
	go func() {
		defer func() { <-b.sem }()
		done <- b.dev.Tx(w, r)
	}()

	select {
	case err := <-done:
		if err != nil {
			return &BusError{Op: op, Reg: reg, Err: err}
		}
		return nil
	case <-timer.C:
		return &BusError{Op: op, Reg: reg, Err: ErrBusTimeout}
	}
}

// DecodeSignedPair combines a big-endian (high, low) byte pair into a
// two's-complement 16-bit value.
func DecodeSignedPair(high, low byte) int16 {
	return int16(uint16(high)<<8 | uint16(low))
}
