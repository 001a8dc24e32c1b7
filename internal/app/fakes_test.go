// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/relabs-tech/inertial_streamer/internal/imu"
)

// recordConn is a net.Conn that reads from a fixed request and records
// everything written to it.
type recordConn struct {
	in *strings.Reader

	mu     sync.Mutex
	out    bytes.Buffer
	read   int
	closed bool
}

func newRecordConn(request string) *recordConn {
	return &recordConn{in: strings.NewReader(request)}
}

func (c *recordConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.in.Read(p)
	c.read += n
	return n, err
}

func (c *recordConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	return c.out.Write(p)
}

func (c *recordConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *recordConn) written() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.String()
}

func (c *recordConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *recordConn) LocalAddr() net.Addr                { return fakeAddr("local") }
func (c *recordConn) RemoteAddr() net.Addr               { return fakeAddr("10.0.0.2:50000") }
func (c *recordConn) SetDeadline(t time.Time) error      { return nil }
func (c *recordConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *recordConn) SetWriteDeadline(t time.Time) error { return nil }

type fakeAddr string

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return string(a) }

type fakeSensor struct {
	gyro, accel imu.Vector
	temp        float64
	err         error
}

func (s *fakeSensor) ReadGyro() (imu.Vector, error)     { return s.gyro, s.err }
func (s *fakeSensor) ReadAccel() (imu.Vector, error)    { return s.accel, s.err }
func (s *fakeSensor) ReadTemperature() (float64, error) { return s.temp, s.err }

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var _ io.ReadWriteCloser = (*recordConn)(nil)
