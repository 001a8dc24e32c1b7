// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/relabs-tech/inertial_streamer/internal/imu"
)

// CalibrationOptions controls a steady-state calibration run.
type CalibrationOptions struct {
	Samples int
	Delay   time.Duration // pause between consecutive samples

	// ZeroAccelZ stores the raw Z mean as the offset so Z reads 0 at rest.
	// When false, 1 g is subtracted from the Z mean so Z reads 1 g lying flat.
	ZeroAccelZ bool

	// Progress, if set, is called after each sample with the count so far.
	Progress func(done, total int)
}

// DefaultCalibrationOptions returns 100 samples, 100 ms apart, Z zeroed.
func DefaultCalibrationOptions() CalibrationOptions {
	return CalibrationOptions{
		Samples:    100,
		Delay:      100 * time.Millisecond,
		ZeroAccelZ: true,
	}
}

// CalibrationReport is the result of a calibration run.
type CalibrationReport struct {
	Offsets     Offsets
	Samples     int
	GyroStdDev  imu.Vector // °/s
	AccelStdDev imu.Vector // g
}

// Stillness thresholds on the mean gyro standard deviation, in °/s.
const (
	stillStdGood = 0.05
	stillStdBad  = 0.5
	confFloor    = 0.05
)

// Confidence rates how still the device was during the run, from confFloor
// (moved a lot) to 1 (still). Offsets taken while moving are biased.
func (r CalibrationReport) Confidence() float64 {
	s := (r.GyroStdDev[0] + r.GyroStdDev[1] + r.GyroStdDev[2]) / 3
	switch {
	case s <= stillStdGood:
		return 1.0
	case s >= stillStdBad:
		return confFloor
	default:
		t := (s - stillStdGood) / (stillStdBad - stillStdGood)
		return 1.0 - 0.95*t
	}
}

// Calibrate averages opts.Samples unbiased gyro and accel readings and installs
// the means as the reader's offsets.
//
// Samples are taken without any offset applied. Readers on other goroutines
// keep seeing the previous offsets until the new ones are stored at the end;
// if the run fails the previous offsets stay in place.
func Calibrate(ctx context.Context, r *Reader, opts CalibrationOptions) (CalibrationReport, error) {
	if opts.Samples <= 0 {
		return CalibrationReport{}, fmt.Errorf("calibration: sample count must be positive, got %d", opts.Samples)
	}

	gyro := make([]imu.Vector, 0, opts.Samples)
	accel := make([]imu.Vector, 0, opts.Samples)

	for i := 0; i < opts.Samples; i++ {
		if i > 0 && opts.Delay > 0 {
			if err := sleepCtx(ctx, opts.Delay); err != nil {
				return CalibrationReport{}, err
			}
		} else if err := ctx.Err(); err != nil {
			return CalibrationReport{}, err
		}

		g, err := r.readScaled(Gyro)
		if err != nil {
			return CalibrationReport{}, fmt.Errorf("calibration sample %d gyro: %w", i, err)
		}
		a, err := r.readScaled(Accel)
		if err != nil {
			return CalibrationReport{}, fmt.Errorf("calibration sample %d accel: %w", i, err)
		}
		gyro = append(gyro, g)
		accel = append(accel, a)
		if opts.Progress != nil {
			opts.Progress(i+1, opts.Samples)
		}
	}

	gMean, gStd := meanStd(gyro)
	aMean, aStd := meanStd(accel)
	if !opts.ZeroAccelZ {
		aMean[2] -= 1.0
	}

	off := Offsets{Gyro: gMean, Accel: aMean}
	r.SetOffsets(off)

	return CalibrationReport{
		Offsets:     off,
		Samples:     opts.Samples,
		GyroStdDev:  gStd,
		AccelStdDev: aStd,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// meanStd returns the per-axis mean and population standard deviation.
func meanStd(xs []imu.Vector) (mean, sd imu.Vector) {
	if len(xs) == 0 {
		return mean, sd
	}
	n := float64(len(xs))
	for _, v := range xs {
		mean = mean.Add(v)
	}
	mean = mean.Scale(1 / n)
	var s imu.Vector
	for _, v := range xs {
		d := v.Sub(mean)
		s = s.Add(imu.Vector{d[0] * d[0], d[1] * d[1], d[2] * d[2]})
	}
	for i := range sd {
		sd[i] = math.Sqrt(s[i] / n)
	}
	return mean, sd
}
