// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/relabs-tech/inertial_streamer/internal/imu"
)

func TestCalibrateGravityCompensation(t *testing.T) {
	cases := []struct {
		name       string
		zeroAccelZ bool
		wantZ      float64
	}{
		{"gravity kept", false, 0.0},
		{"z zeroed", true, 1.0},
	}
	for _, c := range cases {
		r, dev := newTestReader()
		dev.SetVector(regAccelXoutH, 0, 0, 16384) // (0, 0, 1 g) at ±2g
		dev.SetVector(regGyroXoutH, 131, -262, 0) // (1, -2, 0) °/s at ±250

		rep, err := Calibrate(context.Background(), r, CalibrationOptions{Samples: 10, ZeroAccelZ: c.zeroAccelZ})
		if err != nil {
			t.Fatalf("%s: Calibrate: %v", c.name, err)
		}
		if !vecAlmostEqual(rep.Offsets.Accel, imu.Vector{0, 0, c.wantZ}) {
			t.Errorf("%s: accel offset = %v, want [0 0 %v]", c.name, rep.Offsets.Accel, c.wantZ)
		}
		if !vecAlmostEqual(rep.Offsets.Gyro, imu.Vector{1, -2, 0}) {
			t.Errorf("%s: gyro offset = %v, want [1 -2 0]", c.name, rep.Offsets.Gyro)
		}
		if r.Offsets() != rep.Offsets {
			t.Errorf("%s: reader offsets %v not installed", c.name, r.Offsets())
		}
		if rep.Samples != 10 {
			t.Errorf("%s: samples = %d", c.name, rep.Samples)
		}
		if !vecAlmostEqual(rep.AccelStdDev, imu.Vector{}) {
			t.Errorf("%s: constant input gave stddev %v", c.name, rep.AccelStdDev)
		}

		g, err := r.ReadGyro()
		if err != nil {
			t.Fatal(err)
		}
		if !vecAlmostEqual(g, imu.Vector{}) {
			t.Errorf("%s: gyro after calibration = %v, want zero", c.name, g)
		}
		a, err := r.ReadAccel()
		if err != nil {
			t.Fatal(err)
		}
		if !vecAlmostEqual(a, imu.Vector{0, 0, 1 - c.wantZ}) {
			t.Errorf("%s: accel after calibration = %v", c.name, a)
		}
	}
}

func TestCalibrateIgnoresPreviousOffsets(t *testing.T) {
	r, dev := newTestReader()
	dev.SetVector(regGyroXoutH, 262, 0, 0)
	r.SetOffsets(Offsets{Gyro: imu.Vector{100, 100, 100}})

	rep, err := Calibrate(context.Background(), r, CalibrationOptions{Samples: 3, ZeroAccelZ: true})
	if err != nil {
		t.Fatal(err)
	}
	if !vecAlmostEqual(rep.Offsets.Gyro, imu.Vector{2, 0, 0}) {
		t.Errorf("gyro offset = %v, want [2 0 0]", rep.Offsets.Gyro)
	}
}

func TestCalibrateFailureKeepsOffsets(t *testing.T) {
	r, dev := newTestReader()
	prev := Offsets{Gyro: imu.Vector{1, 2, 3}, Accel: imu.Vector{0.1, 0.2, 0.3}}
	r.SetOffsets(prev)
	dev.SetErr(errors.New("nack"))

	_, err := Calibrate(context.Background(), r, CalibrationOptions{Samples: 5})
	var be *BusError
	if !errors.As(err, &be) {
		t.Fatalf("Calibrate error = %v, want *BusError", err)
	}
	if r.Offsets() != prev {
		t.Errorf("offsets changed on failure: %v", r.Offsets())
	}
}

func TestCalibrateInvalidSamples(t *testing.T) {
	r, _ := newTestReader()
	if _, err := Calibrate(context.Background(), r, CalibrationOptions{Samples: 0}); err == nil {
		t.Fatal("expected error for zero samples")
	}
}

func TestCalibrateCancelled(t *testing.T) {
	r, _ := newTestReader()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Calibrate(ctx, r, CalibrationOptions{Samples: 1000, Delay: 10 * time.Millisecond})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Calibrate error = %v, want context.Canceled", err)
	}
	if r.Offsets() != (Offsets{}) {
		t.Errorf("offsets changed after cancellation: %v", r.Offsets())
	}
}

func TestCalibrationFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration", "mpu6050.json")
	rep := CalibrationReport{
		Offsets: Offsets{
			Gyro:  imu.Vector{0.5, -1.25, 2},
			Accel: imu.Vector{0.01, -0.02, 0.98},
		},
		Samples:    100,
		GyroStdDev: imu.Vector{0.1, 0.1, 0.1},
	}
	at := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	if err := SaveCalibration(path, rep, CalibrationOptions{ZeroAccelZ: true}, at); err != nil {
		t.Fatalf("SaveCalibration: %v", err)
	}
	f, err := LoadCalibration(path)
	if err != nil {
		t.Fatalf("LoadCalibration: %v", err)
	}
	if f.Offsets() != rep.Offsets {
		t.Errorf("offsets = %+v, want %+v", f.Offsets(), rep.Offsets)
	}
	if f.CalibrationAt != "2026-10-18T12:00:00Z" || f.Samples != 100 || !f.ZeroAccelZ {
		t.Errorf("metadata = %+v", f)
	}

	if _, err := LoadCalibration(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCalibrationConfidence(t *testing.T) {
	cases := []struct {
		std  float64
		want float64
	}{
		{0, 1},
		{stillStdGood, 1},
		{stillStdBad, confFloor},
		{10, confFloor},
		{(stillStdGood + stillStdBad) / 2, 1 - 0.95*0.5},
	}
	for _, c := range cases {
		rep := CalibrationReport{GyroStdDev: imu.Vector{c.std, c.std, c.std}}
		if got := rep.Confidence(); !almostEqual(got, c.want) {
			t.Errorf("std %v: confidence = %v, want %v", c.std, got, c.want)
		}
	}
}
