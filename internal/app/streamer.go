// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/physic"

	"github.com/relabs-tech/inertial_streamer/internal/config"
	"github.com/relabs-tech/inertial_streamer/internal/sensors"
	"github.com/relabs-tech/inertial_streamer/internal/stream"
)

// OpenSensor opens the configured I2C device and returns a Reader over it.
// The returned func releases the bus.
func OpenSensor(cfg *config.Config) (*sensors.Reader, func(), error) {
	speed := physic.Frequency(cfg.I2CSpeedKHz) * physic.KiloHertz
	dev, bus, err := sensors.OpenI2C(cfg.I2CBus, cfg.I2CAddr, speed)
	if err != nil {
		return nil, func() {}, err
	}
	rb := sensors.NewRegisterBus(dev, config.Duration(cfg.BusTimeoutMS))
	log.Printf("sensors: MPU-6050 on %s", rb)
	return sensors.NewReader(rb), func() { bus.Close() }, nil
}

// CalibrationOptions builds calibration options from cfg.
func CalibrationOptions(cfg *config.Config) sensors.CalibrationOptions {
	return sensors.CalibrationOptions{
		Samples:    cfg.CalibrationSamples,
		Delay:      config.Duration(cfg.CalibrationDelayMS),
		ZeroAccelZ: cfg.CalibrationZeroAccelZ,
	}
}

// PrepareSensor wakes the device, applies the configured ranges and installs
// offsets, either from a fresh calibration or from the calibration file.
// An unsupported range is returned as is; its policy is Fatal.
func PrepareSensor(ctx context.Context, r *sensors.Reader, cfg *config.Config) error {
	if err := r.Wake(); err != nil {
		return fmt.Errorf("wake sensor: %w", err)
	}
	id, err := r.WhoAmI()
	if err != nil {
		return fmt.Errorf("read WHO_AM_I: %w", err)
	}
	if id != sensors.ExpectedWhoAmI {
		log.Printf("sensors: WARNING: WHO_AM_I=0x%02X, expected 0x%02X (clone?); continuing", id, sensors.ExpectedWhoAmI)
	}

	if err := r.Configure(cfg.GyroRangeDPS, cfg.AccelRangeG, cfg.LPFHz); err != nil {
		return err
	}

	switch {
	case cfg.CalibrateOnStart:
		opts := CalibrationOptions(cfg)
		log.Printf("calibration: keep the sensor still, taking %d samples", opts.Samples)
		rep, err := sensors.Calibrate(ctx, r, opts)
		if err != nil {
			return err
		}
		log.Printf("calibration: done, confidence %.2f", rep.Confidence())
		if cfg.CalibrationFile != "" {
			if err := sensors.SaveCalibration(cfg.CalibrationFile, rep, opts, time.Now()); err != nil {
				log.Printf("calibration: %v", err)
			} else {
				log.Printf("calibration: wrote %s", cfg.CalibrationFile)
			}
		}
	case cfg.CalibrationFile != "":
		f, err := sensors.LoadCalibration(cfg.CalibrationFile)
		if err != nil {
			log.Printf("calibration: %v; running without offsets", err)
			break
		}
		r.SetOffsets(f.Offsets())
		log.Printf("calibration: loaded offsets from %s (taken %s)", cfg.CalibrationFile, f.CalibrationAt)
	}

	s, err := r.Settings()
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	log.Printf("sensors: gyro ±%d dps, accel ±%d g, lpf %d Hz", s.GyroRange, s.AccelRange, s.LPF)
	log.Printf("sensors: gyro offset %v, accel offset %v", s.Offsets.Gyro, s.Offsets.Accel)
	return nil
}

// RunStreamer prepares the sensor and runs the sample server, the sample
// loop and the optional mirrors until ctx is done or one of them fails.
func RunStreamer(ctx context.Context, cfg *config.Config) error {
	log.Println("starting inertial-streamer")

	writable, err := ParseRegisterRanges(cfg.RegisterDebugWritable)
	if err != nil {
		return err
	}

	reader, closeBus, err := OpenSensor(cfg)
	if err != nil {
		return err
	}
	defer closeBus()

	if err := PrepareSensor(ctx, reader, cfg); err != nil {
		return err
	}
	defer func() {
		if err := reader.Sleep(); err != nil {
			log.Printf("sensors: sleep on shutdown: %v", err)
		}
	}()

	ln, err := net.Listen("tcp", cfg.ServerAddr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ServerAddr(), err)
	}
	log.Printf("server: listening on %s", ln.Addr())

	reg := stream.NewRegistry()
	defer reg.CloseAll()
	writeTimeout := config.Duration(cfg.ClientWriteTimeoutMS)
	b := stream.NewBroadcaster(reg, stream.Options{
		WriteTimeout:     writeTimeout,
		NewlineDelimited: cfg.StreamNewlineDelimited,
	})

	var pub SamplePublisher
	if cfg.MQTTBroker != "" {
		p, err := NewMQTTPublisher(cfg.MQTTBroker, cfg.MQTTClientID, cfg.TopicSample)
		if err != nil {
			log.Printf("mqtt: %v; mirror disabled", err)
		} else {
			defer p.Close()
			pub = p
		}
	}

	producer := NewProducer(reader, b, pub,
		config.Duration(cfg.SampleInterval),
		config.Duration(cfg.ConsoleLogInterval),
	)
	server := NewServer(ln, NewDispatcher(reader, reg, DispatcherOptions{
		Budget:       cfg.RequestBudget,
		ReadTimeout:  config.Duration(cfg.RequestReadTimeoutMS),
		WriteTimeout: writeTimeout,
	}))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Serve(gctx) })
	g.Go(func() error { return producer.Run(gctx) })

	if cfg.WebServerPort != 0 {
		web := NewWebMirror(reg, writeTimeout)
		web.HandleLatest(producer.Latest)
		web.HandleRegisters(NewRegisterDebugger(reader, writable))
		web.HandleCalibration(NewCalibrationHandler(reader, CalibrationOptions(cfg), cfg.CalibrationFile))
		addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.WebServerPort)
		g.Go(func() error { return ServeHTTPUntil(gctx, addr, web) })
	}

	err = g.Wait()
	log.Println("inertial-streamer stopped")
	return err
}
