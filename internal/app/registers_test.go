// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/inertial_streamer/internal/sensors"
	"github.com/relabs-tech/inertial_streamer/internal/sensors/sensorstest"
	"github.com/relabs-tech/inertial_streamer/internal/stream"
)

func TestParseRegisterRanges(t *testing.T) {
	got, err := ParseRegisterRanges("0x19-0x1C, 0x6B ,107-108")
	if err != nil {
		t.Fatalf("ParseRegisterRanges: %v", err)
	}
	want := []RegisterRange{{0x19, 0x1C}, {0x6B, 0x6B}, {0x6B, 0x6C}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	if got, err := ParseRegisterRanges(""); err != nil || len(got) != 0 {
		t.Fatalf("empty = %v, %v", got, err)
	}
	for _, bad := range []string{"0x1C-0x19", "0x100", "zz", "0x19-"} {
		if _, err := ParseRegisterRanges(bad); err == nil {
			t.Errorf("%q accepted", bad)
		}
	}
}

func newTestDebugger(writable string) (*RegisterDebugger, *sensorstest.Device) {
	dev := sensorstest.New()
	r := sensors.NewReader(sensors.NewRegisterBus(dev, 0))
	ranges, err := ParseRegisterRanges(writable)
	if err != nil {
		panic(err)
	}
	d := NewRegisterDebugger(r, ranges)
	d.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return d, dev
}

func TestRegisterDebuggerRead(t *testing.T) {
	d, _ := newTestDebugger("")
	resp := d.handle(registerCmd{Action: "read", Addr: "0x75"})
	if resp.Type != "register_data" || resp.Value != "0x68" || resp.Address != "0x75" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Timestamp != "2026-01-02T03:04:05Z" {
		t.Fatalf("timestamp = %q", resp.Timestamp)
	}
	if resp := d.handle(registerCmd{Action: "read", Addr: "nope"}); resp.Type != "error" {
		t.Fatalf("bad address: %+v", resp)
	}
}

func TestRegisterDebuggerWriteRespectsRanges(t *testing.T) {
	d, dev := newTestDebugger("0x1B-0x1C")

	resp := d.handle(registerCmd{Action: "write", Addr: "0x1B", Value: "0x18"})
	if resp.Type != "register_data" || resp.Message != "write successful" {
		t.Fatalf("resp = %+v", resp)
	}
	if dev.Reg(0x1B) != 0x18 {
		t.Fatalf("GYRO_CONFIG = 0x%02X", dev.Reg(0x1B))
	}

	resp = d.handle(registerCmd{Action: "write", Addr: "0x6B", Value: "0x80"})
	if resp.Type != "error" {
		t.Fatalf("write outside ranges allowed: %+v", resp)
	}
	if dev.Reg(0x6B) != 0 {
		t.Fatal("register written anyway")
	}

	ro, _ := newTestDebugger("")
	if resp := ro.handle(registerCmd{Action: "write", Addr: "0x1B", Value: "0x08"}); resp.Type != "error" {
		t.Fatalf("read-only debugger wrote: %+v", resp)
	}
}

func TestSampleLoopSurvivesRegisterWrites(t *testing.T) {
	dev := sensorstest.New()
	dev.SetReg(0x1B, 0x80) // self-test bit set, not a range code
	r := sensors.NewReader(sensors.NewRegisterBus(dev, 0))
	ranges, err := ParseRegisterRanges("0x19-0x1C")
	if err != nil {
		t.Fatalf("ParseRegisterRanges: %v", err)
	}
	d := NewRegisterDebugger(r, ranges)

	pub := &fakePublisher{}
	reg := stream.NewRegistry()
	p := NewProducer(r, stream.NewBroadcaster(reg, stream.Options{}), pub, time.Millisecond, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	reads := dev.Reads()
	eventually(t, "ticks against a bad gyro code", func() bool { return dev.Reads() > reads+5 })

	resp := d.handle(registerCmd{Action: "write", Addr: "0x1B", Value: "0x80"})
	if resp.Type != "error" {
		t.Fatalf("write of an unknown gyro code accepted: %+v", resp)
	}
	resp = d.handle(registerCmd{Action: "write", Addr: "0x1B", Value: "0x08"})
	if resp.Type != "register_data" {
		t.Fatalf("resp = %+v", resp)
	}
	eventually(t, "a sample after the range was fixed", func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.got) > 0
	})

	select {
	case err := <-done:
		t.Fatalf("sample loop exited: %v", err)
	default:
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run = %v", err)
	}
}

func TestRegisterDebuggerReadAllAndExport(t *testing.T) {
	d, dev := newTestDebugger("")
	dev.SetReg(0x1C, 0x08)

	resp := d.handle(registerCmd{Action: "read_all"})
	if resp.Type != "register_data" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Registers["0x1C"] != "0x08" || resp.Registers["0x75"] != "0x68" {
		t.Fatalf("registers = %v", resp.Registers)
	}
	// 6-byte blocks expand to one entry per byte
	if _, ok := resp.Registers["0x40"]; !ok {
		t.Fatal("ACCEL_OUT block not expanded")
	}

	exp := d.handle(registerCmd{Action: "export_config"})
	if exp.Type != "export_config" || exp.Config == nil || exp.Config.Version != 1 {
		t.Fatalf("export = %+v", exp)
	}
	if !reflect.DeepEqual(exp.Config.Registers, resp.Registers) {
		t.Fatal("export differs from read_all")
	}

	dev.SetErr(errors.New("nack"))
	if resp := d.handle(registerCmd{Action: "read_all"}); resp.Type != "error" {
		t.Fatalf("read_all on failing bus: %+v", resp)
	}
}

func TestRegisterDebuggerUnknownAction(t *testing.T) {
	d, _ := newTestDebugger("")
	if resp := d.handle(registerCmd{Action: "reboot"}); resp.Type != "error" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp := d.handle(registerCmd{}); resp.Type != "error" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestRegisterDebuggerOverWebSocket(t *testing.T) {
	d, _ := newTestDebugger("")
	m := NewWebMirror(stream.NewRegistry(), time.Second)
	m.HandleRegisters(d)
	srv := httptest.NewServer(m)
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/registers"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	var greeting RegisterResponse
	if err := ws.ReadJSON(&greeting); err != nil {
		t.Fatalf("read map: %v", err)
	}
	if greeting.Type != "register_map" || len(greeting.RegisterMap) != len(sensors.RegisterMap()) {
		t.Fatalf("greeting = %+v", greeting)
	}

	ws.WriteJSON(registerCmd{Action: "read", Addr: "0x75"})
	var resp RegisterResponse
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Value != "0x68" {
		t.Fatalf("resp = %+v", resp)
	}
}
