// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/relabs-tech/inertial_streamer/internal/imu"
	"github.com/relabs-tech/inertial_streamer/internal/stream"
)

func startServer(t *testing.T, sensor SensorQuerier) (*Server, *stream.Registry, context.CancelFunc, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	reg := stream.NewRegistry()
	srv := NewServer(ln, NewDispatcher(sensor, reg, DispatcherOptions{
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		reg.CloseAll()
	})
	return srv, reg, cancel, done
}

func TestServerOneShotOverTCP(t *testing.T) {
	srv, _, _, _ := startServer(t, &fakeSensor{temp: 21.5})

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := io.WriteString(conn, "GET /temp HTTP/1.1\r\n\r\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got, want := string(resp), statusOK+"21.5"; got != want {
		t.Fatalf("response = %q, want %q", got, want)
	}
}

func TestServerStreamsBroadcasts(t *testing.T) {
	srv, reg, _, _ := startServer(t, &fakeSensor{})
	b := stream.NewBroadcaster(reg, stream.Options{WriteTimeout: time.Second})

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	io.WriteString(conn, "GET /stream HTTP/1.1\r\n\r\n")
	eventually(t, "stream registration", func() bool { return reg.Len() == 1 })

	want := []imu.Sample{
		{Gyro: imu.Vector{1, 2, 3}, Accel: imu.Vector{0, 0, 1}, Temp: 30},
		{Gyro: imu.Vector{-1, 0, 0}, Accel: imu.Vector{0, 1, 0}, Temp: 30.5},
	}
	for _, s := range want {
		if res, err := b.Broadcast(s); err != nil || res.Delivered != 1 {
			t.Fatalf("Broadcast = %+v, %v", res, err)
		}
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	dec := json.NewDecoder(conn)
	for i, w := range want {
		var got imu.Sample
		if err := dec.Decode(&got); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if got != w {
			t.Fatalf("frame %d = %+v, want %+v", i, got, w)
		}
	}
}

func TestServerStopsOnCancel(t *testing.T) {
	srv, _, cancel, done := startServer(t, &fakeSensor{})
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if _, err := net.Dial("tcp", srv.Addr().String()); err == nil {
		t.Fatal("listener still accepting")
	}
}

func TestServerCancelClosesSilentClients(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	// no read deadline: only cancellation can end the dispatch
	srv := NewServer(ln, NewDispatcher(&fakeSensor{}, stream.NewRegistry(), DispatcherOptions{}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	silent, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer silent.Close()
	eventually(t, "the connection to be in flight", func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.inflight) == 1
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve blocked on a client that never sent a request")
	}
	silent.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadAll(silent); err != nil {
		t.Fatalf("silent client not closed: %v", err)
	}
}

func TestServerSurvivesMalformedRequest(t *testing.T) {
	srv, _, _, _ := startServer(t, &fakeSensor{temp: 20})

	bad, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	io.WriteString(bad, "BREW /coffee\r\n")
	bad.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, _ := io.ReadAll(bad)
	bad.Close()
	if string(resp) != statusBadRequest {
		t.Fatalf("bad request response = %q", resp)
	}

	good, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial after malformed request: %v", err)
	}
	defer good.Close()
	io.WriteString(good, "GET /temp HTTP/1.1\r\n\r\n")
	good.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, _ = io.ReadAll(good)
	if string(resp) != statusOK+"20" {
		t.Fatalf("response = %q", resp)
	}
}
