// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/inertial_streamer/internal/sensors"
)

// RegisterAccess is raw register access to the sensor.
type RegisterAccess interface {
	ReadRaw(reg byte, n int) ([]byte, error)
	WriteRaw(reg, value byte) error
}

// RegisterRange is an inclusive span of register addresses.
type RegisterRange struct {
	Lo, Hi byte
}

// ParseRegisterRanges parses a list like "0x19-0x1C,0x6B". An empty string
// yields no ranges.
func ParseRegisterRanges(s string) ([]RegisterRange, error) {
	var out []RegisterRange
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		loStr, hiStr, isSpan := strings.Cut(part, "-")
		lo, err := parseRegByte(loStr)
		if err != nil {
			return nil, fmt.Errorf("register range %q: %w", part, err)
		}
		hi := lo
		if isSpan {
			if hi, err = parseRegByte(hiStr); err != nil {
				return nil, fmt.Errorf("register range %q: %w", part, err)
			}
		}
		if hi < lo {
			return nil, fmt.Errorf("register range %q: end before start", part)
		}
		out = append(out, RegisterRange{Lo: lo, Hi: hi})
	}
	return out, nil
}

func parseRegByte(s string) (byte, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}

// registerCmd is a request from the debug page.
type registerCmd struct {
	Action string `json:"action"` // get_map, read, read_all, write, export_config
	Addr   string `json:"addr,omitempty"`
	Value  string `json:"value,omitempty"`
}

// RegisterResponse is sent back for every command.
type RegisterResponse struct {
	Type        string                 `json:"type"` // register_map, register_data, export_config, error
	Address     string                 `json:"addr,omitempty"`
	Value       string                 `json:"value,omitempty"`
	Registers   map[string]string      `json:"registers,omitempty"`
	RegisterMap []sensors.RegisterInfo `json:"register_map,omitempty"`
	Config      *RegisterConfigFile    `json:"config,omitempty"`
	Timestamp   string                 `json:"timestamp,omitempty"`
	Message     string                 `json:"message,omitempty"`
}

// RegisterConfigFile is an exported register snapshot.
type RegisterConfigFile struct {
	Version   int               `json:"version"`
	Timestamp string            `json:"timestamp"`
	Registers map[string]string `json:"registers"` // hex address -> hex value
}

// RegisterDebugger answers register commands over a WebSocket. Writes are
// refused outside the configured ranges.
type RegisterDebugger struct {
	dev      RegisterAccess
	writable []RegisterRange
	now      func() time.Time
}

// NewRegisterDebugger returns a debugger over dev.
func NewRegisterDebugger(dev RegisterAccess, writable []RegisterRange) *RegisterDebugger {
	return &RegisterDebugger{dev: dev, writable: writable, now: time.Now}
}

// Serve runs the command loop on ws until the peer disconnects.
func (d *RegisterDebugger) Serve(ws *websocket.Conn) {
	defer ws.Close()

	if err := ws.WriteJSON(d.handle(registerCmd{Action: "get_map"})); err != nil {
		log.Printf("register_debug: error sending register map: %v", err)
		return
	}
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("register_debug: websocket error: %v", err)
			}
			return
		}
		var cmd registerCmd
		resp := RegisterResponse{}
		if err := json.Unmarshal(data, &cmd); err != nil {
			resp = errorResponse("invalid command: %v", err)
		} else {
			resp = d.handle(cmd)
		}
		if err := ws.WriteJSON(resp); err != nil {
			log.Printf("register_debug: write error: %v", err)
			return
		}
	}
}

func errorResponse(format string, args ...any) RegisterResponse {
	return RegisterResponse{Type: "error", Message: fmt.Sprintf(format, args...)}
}

func (d *RegisterDebugger) handle(cmd registerCmd) RegisterResponse {
	switch cmd.Action {
	case "get_map":
		return RegisterResponse{Type: "register_map", RegisterMap: sensors.RegisterMap()}
	case "read":
		return d.read(cmd)
	case "read_all":
		regs, err := d.readAll()
		if err != nil {
			return errorResponse("read all error: %v", err)
		}
		return RegisterResponse{Type: "register_data", Registers: regs, Timestamp: d.timestamp()}
	case "write":
		return d.write(cmd)
	case "export_config":
		regs, err := d.readAll()
		if err != nil {
			return errorResponse("export error: %v", err)
		}
		return RegisterResponse{
			Type:    "export_config",
			Message: "config exported",
			Config:  &RegisterConfigFile{Version: 1, Timestamp: d.timestamp(), Registers: regs},
		}
	case "":
		return errorResponse("missing action field")
	}
	return errorResponse("unknown action: %s", cmd.Action)
}

func (d *RegisterDebugger) read(cmd registerCmd) RegisterResponse {
	addr, err := parseRegByte(cmd.Addr)
	if err != nil {
		return errorResponse("invalid address format: %s", cmd.Addr)
	}
	b, err := d.dev.ReadRaw(addr, 1)
	if err != nil {
		return errorResponse("read error: %v", err)
	}
	return RegisterResponse{
		Type:      "register_data",
		Address:   hexByte(addr),
		Value:     hexByte(b[0]),
		Timestamp: d.timestamp(),
	}
}

func (d *RegisterDebugger) readAll() (map[string]string, error) {
	out := make(map[string]string)
	for _, info := range sensors.RegisterMap() {
		b, err := d.dev.ReadRaw(info.Address, info.Length)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", info.Name, err)
		}
		for i, v := range b {
			out[hexByte(info.Address+byte(i))] = hexByte(v)
		}
	}
	return out, nil
}

func (d *RegisterDebugger) write(cmd registerCmd) RegisterResponse {
	addr, err := parseRegByte(cmd.Addr)
	if err != nil {
		return errorResponse("invalid address format: %s", cmd.Addr)
	}
	value, err := parseRegByte(cmd.Value)
	if err != nil {
		return errorResponse("invalid value format: %s", cmd.Value)
	}
	if !d.writableAddr(addr) {
		return errorResponse("register %s not in allowed write ranges", hexByte(addr))
	}
	if err := d.dev.WriteRaw(addr, value); err != nil {
		return errorResponse("write error: %v", err)
	}
	log.Printf("register_debug: wrote %s = %s", hexByte(addr), hexByte(value))
	return RegisterResponse{
		Type:      "register_data",
		Address:   hexByte(addr),
		Value:     hexByte(value),
		Timestamp: d.timestamp(),
		Message:   "write successful",
	}
}

func (d *RegisterDebugger) writableAddr(addr byte) bool {
	for _, r := range d.writable {
		if addr >= r.Lo && addr <= r.Hi {
			return true
		}
	}
	return false
}

func (d *RegisterDebugger) timestamp() string {
	return d.now().Format(time.RFC3339)
}

func hexByte(b byte) string {
	return fmt.Sprintf("0x%02X", b)
}
