// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/relabs-tech/inertial_streamer/internal/config"
	"github.com/relabs-tech/inertial_streamer/internal/sensors"
)

// DefaultCalibrationPath names a new calibration file under dir.
func DefaultCalibrationPath(dir string, at time.Time) string {
	ts := at.Format("2006-01-02T15-04-05Z07-00")
	return filepath.Join(dir, fmt.Sprintf("%s_mpu6050_calibration.json", ts))
}

// CalibrateInteractive prompts on out, waits for ENTER on in, runs the
// calibration and prints the result.
func CalibrateInteractive(ctx context.Context, r *sensors.Reader, opts sensors.CalibrationOptions, in io.Reader, out io.Writer) (sensors.CalibrationReport, error) {
	fmt.Fprintln(out, "=== MPU-6050 steady-state calibration ===")
	if opts.ZeroAccelZ {
		fmt.Fprintln(out, "Accel Z will be zeroed at rest.")
	} else {
		fmt.Fprintln(out, "Lay the sensor flat, Z axis up: accel Z keeps 1 g.")
	}
	fmt.Fprintln(out, "Place the device on a stable surface and do not touch it.")
	fmt.Fprintf(out, "Press ENTER to start (%d samples, %v apart)...", opts.Samples, opts.Delay)
	if _, err := bufio.NewReader(in).ReadString('\n'); err != nil && err != io.EOF {
		return sensors.CalibrationReport{}, fmt.Errorf("read prompt: %w", err)
	}
	fmt.Fprintln(out)

	rep, err := sensors.Calibrate(ctx, r, opts)
	if err != nil {
		return rep, err
	}

	g, a := rep.Offsets.Gyro, rep.Offsets.Accel
	fmt.Fprintf(out, "Gyro offset (dps):  X=%.4f Y=%.4f Z=%.4f\n", g[0], g[1], g[2])
	fmt.Fprintf(out, "Accel offset (g):   X=%.4f Y=%.4f Z=%.4f\n", a[0], a[1], a[2])
	fmt.Fprintf(out, "Gyro stddev (dps):  X=%.4f Y=%.4f Z=%.4f\n", rep.GyroStdDev[0], rep.GyroStdDev[1], rep.GyroStdDev[2])
	fmt.Fprintf(out, "Confidence: %.2f\n", rep.Confidence())
	return rep, nil
}

// RunCalibration calibrates the configured sensor and writes the offsets to
// path, or to CALIBRATION_FILE, or to a timestamped file under ./calibration.
func RunCalibration(ctx context.Context, cfg *config.Config, path string, in io.Reader, out io.Writer) error {
	r, closeBus, err := OpenSensor(cfg)
	if err != nil {
		return err
	}
	defer closeBus()

	if err := r.Wake(); err != nil {
		return fmt.Errorf("wake sensor: %w", err)
	}
	if err := r.Configure(cfg.GyroRangeDPS, cfg.AccelRangeG, cfg.LPFHz); err != nil {
		return err
	}

	opts := CalibrationOptions(cfg)
	rep, err := CalibrateInteractive(ctx, r, opts, in, out)
	if err != nil {
		return err
	}

	now := time.Now()
	if path == "" {
		path = cfg.CalibrationFile
	}
	if path == "" {
		path = DefaultCalibrationPath("calibration", now)
	}
	if err := sensors.SaveCalibration(path, rep, opts, now); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nWrote: %s\n", path)
	return nil
}
