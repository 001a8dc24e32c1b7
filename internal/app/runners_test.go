// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/relabs-tech/inertial_streamer/internal/config"
	"github.com/relabs-tech/inertial_streamer/internal/imu"
	"github.com/relabs-tech/inertial_streamer/internal/sensors"
	"github.com/relabs-tech/inertial_streamer/internal/sensors/sensorstest"
)

func newDeviceReader() (*sensors.Reader, *sensorstest.Device) {
	dev := sensorstest.New()
	return sensors.NewReader(sensors.NewRegisterBus(dev, 0)), dev
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.GyroRangeDPS = 500
	cfg.AccelRangeG = 4
	cfg.LPFHz = 44
	cfg.CalibrationSamples = 3
	cfg.CalibrationDelayMS = 0
	return cfg
}

func TestPrepareSensorConfiguresAndCalibrates(t *testing.T) {
	r, dev := newDeviceReader()
	dev.SetVector(0x3B, 0, 0, 8192) // 1 g at ±4 g
	cfg := testConfig()
	cfg.CalibrationFile = filepath.Join(t.TempDir(), "cal", "offsets.json")

	if err := PrepareSensor(context.Background(), r, cfg); err != nil {
		t.Fatalf("PrepareSensor: %v", err)
	}
	if dev.Reg(0x6B) != 0x01 {
		t.Errorf("PWR_MGMT_1 = 0x%02X, want awake", dev.Reg(0x6B))
	}
	if dev.Reg(0x1B) != 0x08 || dev.Reg(0x1C) != 0x08 || dev.Reg(0x1A) != 0x03 {
		t.Errorf("config registers = 0x%02X 0x%02X 0x%02X", dev.Reg(0x1B), dev.Reg(0x1C), dev.Reg(0x1A))
	}

	f, err := sensors.LoadCalibration(cfg.CalibrationFile)
	if err != nil {
		t.Fatalf("calibration not saved: %v", err)
	}
	if f.Samples != 3 || f.AccelOffset != (imu.Vector{0, 0, 0}) {
		t.Errorf("saved calibration = %+v", f)
	}
}

func TestPrepareSensorLoadsOffsets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offsets.json")
	rep := sensors.CalibrationReport{
		Offsets: sensors.Offsets{Gyro: imu.Vector{1, 2, 3}, Accel: imu.Vector{0.1, 0, 0}},
		Samples: 50,
	}
	if err := sensors.SaveCalibration(path, rep, sensors.DefaultCalibrationOptions(), time.Now()); err != nil {
		t.Fatalf("SaveCalibration: %v", err)
	}

	r, _ := newDeviceReader()
	cfg := testConfig()
	cfg.CalibrateOnStart = false
	cfg.CalibrationFile = path
	if err := PrepareSensor(context.Background(), r, cfg); err != nil {
		t.Fatalf("PrepareSensor: %v", err)
	}
	if r.Offsets() != rep.Offsets {
		t.Fatalf("offsets = %+v, want %+v", r.Offsets(), rep.Offsets)
	}
}

func TestPrepareSensorUnsupportedRangeIsFatal(t *testing.T) {
	r, dev := newDeviceReader()
	cfg := testConfig()
	cfg.GyroRangeDPS = 999

	err := PrepareSensor(context.Background(), r, cfg)
	if PolicyFor(err) != Fatal {
		t.Fatalf("err = %v, policy %s, want fatal", err, PolicyFor(err))
	}
	if dev.Reg(0x1B) != 0 || dev.Reg(0x1C) != 0 || dev.Reg(0x1A) != 0 {
		t.Fatal("range registers written despite invalid configuration")
	}
}

func TestPrepareSensorToleratesCloneID(t *testing.T) {
	r, dev := newDeviceReader()
	dev.SetReg(0x75, 0x72)
	cfg := testConfig()
	cfg.CalibrateOnStart = false
	if err := PrepareSensor(context.Background(), r, cfg); err != nil {
		t.Fatalf("PrepareSensor: %v", err)
	}
}

func TestCalibrateInteractive(t *testing.T) {
	r, dev := newDeviceReader()
	dev.SetVector(0x3B, 0, 0, 16384)
	var out bytes.Buffer
	opts := sensors.CalibrationOptions{Samples: 5, ZeroAccelZ: true}

	rep, err := CalibrateInteractive(context.Background(), r, opts, strings.NewReader("\n"), &out)
	if err != nil {
		t.Fatalf("CalibrateInteractive: %v", err)
	}
	if rep.Offsets.Accel != (imu.Vector{0, 0, 1}) {
		t.Fatalf("accel offset = %v", rep.Offsets.Accel)
	}
	for _, want := range []string{"Press ENTER", "Accel offset (g):   X=0.0000 Y=0.0000 Z=1.0000", "Confidence: 1.00"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestDefaultCalibrationPath(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	got := DefaultCalibrationPath("calibration", at)
	want := filepath.Join("calibration", "2026-03-04T05-06-07Z_mpu6050_calibration.json")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPrintRegisterDump(t *testing.T) {
	r, dev := newDeviceReader()
	dev.SetReg(0x6B, 0x40)
	dev.SetReg(0x1C, 0x18)
	dev.SetVector(0x43, -1, 2, 300)

	vals, err := r.Dump()
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	var out bytes.Buffer
	if err := PrintRegisterDump(&out, vals); err != nil {
		t.Fatalf("PrintRegisterDump: %v", err)
	}
	for _, want := range []string{"WHO_AM_I", "MPU-6050", "sleeping", "16 g", "250 dps", "260 Hz", "36.53 °C", "raw x=-1 y=2 z=300"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("dump missing %q:\n%s", want, out.String())
		}
	}
}
