// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/inertial_streamer/internal/sensors"
)

// CalibrationHandler recalibrates the live sensor on request from a browser.
// Streaming continues during the run with the previous offsets; the new ones
// take effect atomically when it completes.
type CalibrationHandler struct {
	r    *sensors.Reader
	opts sensors.CalibrationOptions
	path string // "" keeps results in memory only

	running sync.Mutex
}

// NewCalibrationHandler returns a handler that saves each successful run to
// path when path is set.
func NewCalibrationHandler(r *sensors.Reader, opts sensors.CalibrationOptions, path string) *CalibrationHandler {
	return &CalibrationHandler{r: r, opts: opts, path: path}
}

// calibrationCmd is a message from the calibration page.
type calibrationCmd struct {
	Action     string `json:"action"` // start, cancel
	ZeroAccelZ *bool  `json:"zero_accel_z,omitempty"`
}

// CalibrationResponse is a message to the calibration page.
type CalibrationResponse struct {
	Type     string                   `json:"type"` // progress, complete, error
	Progress float64                  `json:"progress,omitempty"`
	Results  *sensors.CalibrationFile `json:"results,omitempty"`
	Message  string                   `json:"message,omitempty"`
}

type calibrationSession struct {
	h      *CalibrationHandler
	ws     *websocket.Conn
	wmu    sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Serve runs the command loop on ws until the peer disconnects. A
// disconnect cancels a run in progress.
func (h *CalibrationHandler) Serve(ws *websocket.Conn) {
	s := &calibrationSession{h: h, ws: ws}
	defer func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		ws.Close()
	}()

	for {
		var cmd calibrationCmd
		if err := ws.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("calibration: websocket read error: %v", err)
			}
			return
		}
		switch cmd.Action {
		case "start":
			s.start(cmd)
		case "cancel":
			if s.cancel != nil {
				log.Printf("calibration: cancelled by user")
				s.cancel()
			}
		default:
			s.send(CalibrationResponse{Type: "error", Message: fmt.Sprintf("unknown action: %s", cmd.Action)})
		}
	}
}

func (s *calibrationSession) start(cmd calibrationCmd) {
	if !s.h.running.TryLock() {
		s.send(CalibrationResponse{Type: "error", Message: "calibration already running"})
		return
	}
	opts := s.h.opts
	if cmd.ZeroAccelZ != nil {
		opts.ZeroAccelZ = *cmd.ZeroAccelZ
	}
	opts.Progress = func(done, total int) {
		s.send(CalibrationResponse{Type: "progress", Progress: 100 * float64(done) / float64(total)})
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.h.running.Unlock()
		defer cancel()
		s.send(s.h.run(ctx, opts))
	}()
}

func (h *CalibrationHandler) run(ctx context.Context, opts sensors.CalibrationOptions) CalibrationResponse {
	log.Printf("calibration: started from web, %d samples", opts.Samples)
	rep, err := sensors.Calibrate(ctx, h.r, opts)
	if err != nil {
		log.Printf("calibration: %v", err)
		return CalibrationResponse{Type: "error", Message: err.Error()}
	}

	now := time.Now()
	res := &sensors.CalibrationFile{
		CalibrationAt: now.Format(time.RFC3339),
		Samples:       rep.Samples,
		ZeroAccelZ:    opts.ZeroAccelZ,
		GyroOffset:    rep.Offsets.Gyro,
		AccelOffset:   rep.Offsets.Accel,
		GyroStdDev:    rep.GyroStdDev,
		AccelStdDev:   rep.AccelStdDev,
		Confidence:    rep.Confidence(),
	}
	msg := "offsets applied"
	if h.path != "" {
		if err := sensors.SaveCalibration(h.path, rep, opts, now); err != nil {
			log.Printf("calibration: %v", err)
			msg = fmt.Sprintf("offsets applied, not saved: %v", err)
		} else {
			log.Printf("calibration: saved results to %s", h.path)
			msg = "offsets applied and saved to " + h.path
		}
	}
	return CalibrationResponse{Type: "complete", Results: res, Message: msg}
}

func (s *calibrationSession) send(resp CalibrationResponse) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.ws.WriteJSON(resp); err != nil {
		log.Printf("calibration: websocket write error: %v", err)
	}
}
