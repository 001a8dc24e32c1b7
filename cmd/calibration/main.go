// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Steady-state calibration for the MPU-6050.
//
// Averages gyro and accel readings with the device at rest and writes the
// offsets as JSON. The streamer loads them from CALIBRATION_FILE when
// CALIBRATE_ON_START=false.
//
// Run:
//
//	go run ./cmd/calibration -out calibration/offsets.json
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/inertial_streamer/internal/app"
	"github.com/relabs-tech/inertial_streamer/internal/config"
)

func main() {
	configPath := flag.String("config", "inertial_config.txt", "Path to configuration file")
	out := flag.String("out", "", "Output file (default: CALIBRATION_FILE, or ./calibration/<time>_mpu6050_calibration.json)")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunCalibration(ctx, config.Get(), *out, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
