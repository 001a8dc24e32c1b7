// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sensorstest provides an in-memory MPU-6050 register file for tests.
package sensorstest

import (
	"errors"
	"sync"

	"periph.io/x/conn/v3"
)

// Device implements conn.Conn over a 256-byte register file. A transaction
// with a read buffer reads consecutive registers starting at w[0]; one without
// writes w[1:] starting at w[0].
type Device struct {
	mu     sync.Mutex
	regs   [256]byte
	err    error
	reads  int
	writes int
}

// New returns a device that identifies as a genuine MPU-6050 with every range
// register at code 0 (250 dps, 2 g, 260 Hz).
func New() *Device {
	d := &Device{}
	d.regs[0x75] = 0x68
	return d
}

func (d *Device) String() string { return "sensorstest.Device" }

func (d *Device) Duplex() conn.Duplex { return conn.Half }

func (d *Device) Tx(w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	if len(w) == 0 {
		return errors.New("sensorstest: missing register address")
	}
	reg := int(w[0])
	if len(r) > 0 {
		for i := range r {
			r[i] = d.regs[(reg+i)&0xFF]
		}
		d.reads++
		return nil
	}
	for i, b := range w[1:] {
		d.regs[(reg+i)&0xFF] = b
	}
	d.writes++
	return nil
}

// SetErr makes every following transaction fail with err. nil clears it.
func (d *Device) SetErr(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

// SetReg stores a single register value.
func (d *Device) SetReg(reg, v byte) {
	d.mu.Lock()
	d.regs[reg] = v
	d.mu.Unlock()
}

// Reg returns a single register value.
func (d *Device) Reg(reg byte) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[reg]
}

// SetInt16 stores v big-endian at reg, reg+1.
func (d *Device) SetInt16(reg byte, v int16) {
	d.mu.Lock()
	d.regs[reg] = byte(uint16(v) >> 8)
	d.regs[(int(reg)+1)&0xFF] = byte(uint16(v))
	d.mu.Unlock()
}

// SetVector stores three consecutive big-endian int16 values from reg.
func (d *Device) SetVector(reg byte, x, y, z int16) {
	d.SetInt16(reg, x)
	d.SetInt16(reg+2, y)
	d.SetInt16(reg+4, z)
}

// Reads returns the number of read transactions served.
func (d *Device) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

// Writes returns the number of write transactions served.
func (d *Device) Writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}
