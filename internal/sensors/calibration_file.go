// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/relabs-tech/inertial_streamer/internal/imu"
)

const calibrationSchemaVersion = 1

// CalibrationFile is the on-disk form of a calibration run.
type CalibrationFile struct {
	SchemaVersion int        `json:"schema_version"`
	CalibrationAt string     `json:"calibration_at"` // RFC3339
	Samples       int        `json:"samples"`
	ZeroAccelZ    bool       `json:"zero_accel_z"`
	GyroOffset    imu.Vector `json:"gyro_offset"`
	AccelOffset   imu.Vector `json:"accel_offset"`
	GyroStdDev    imu.Vector `json:"gyro_stddev"`
	AccelStdDev   imu.Vector `json:"accel_stddev"`
	Confidence    float64    `json:"confidence"`
}

// SaveCalibration writes rep to path as indented JSON, creating parent
// directories as needed.
func SaveCalibration(path string, rep CalibrationReport, opts CalibrationOptions, at time.Time) error {
	f := CalibrationFile{
		SchemaVersion: calibrationSchemaVersion,
		CalibrationAt: at.Format(time.RFC3339),
		Samples:       rep.Samples,
		ZeroAccelZ:    opts.ZeroAccelZ,
		GyroOffset:    rep.Offsets.Gyro,
		AccelOffset:   rep.Offsets.Accel,
		GyroStdDev:    rep.GyroStdDev,
		AccelStdDev:   rep.AccelStdDev,
		Confidence:    rep.Confidence(),
	}
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create calibration dir: %w", err)
		}
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write calibration file: %w", err)
	}
	return nil
}

// LoadCalibration reads offsets previously written by SaveCalibration.
func LoadCalibration(path string) (CalibrationFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return CalibrationFile{}, fmt.Errorf("read calibration file: %w", err)
	}
	var f CalibrationFile
	if err := json.Unmarshal(b, &f); err != nil {
		return CalibrationFile{}, fmt.Errorf("parse calibration file %s: %w", path, err)
	}
	if f.SchemaVersion != calibrationSchemaVersion {
		return CalibrationFile{}, fmt.Errorf("calibration file %s: unsupported schema version %d", path, f.SchemaVersion)
	}
	return f, nil
}

// Offsets returns the stored offsets.
func (f CalibrationFile) Offsets() Offsets {
	return Offsets{Gyro: f.GyroOffset, Accel: f.AccelOffset}
}
