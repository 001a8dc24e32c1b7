// Package orientation estimates attitude from streamed IMU samples.
package orientation

import (
	"math"

	"github.com/relabs-tech/inertial_streamer/internal/imu"
)

// Pose is roll and pitch in degrees. There is no magnetometer, so no yaw.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
}

const rad2deg = 180.0 / math.Pi

// FromAccel computes roll and pitch from the gravity vector alone.
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func FromAccel(a imu.Vector) Pose {
	ax, ay, az := a[0], a[1], a[2]
	return Pose{
		Roll:  math.Atan2(ay, az) * rad2deg,
		Pitch: math.Atan2(-ax, math.Sqrt(ay*ay+az*az)) * rad2deg,
	}
}

// Filter is a complementary filter: gyro rates are integrated and pulled
// towards the accelerometer tilt with weight 1-Alpha per update.
type Filter struct {
	Alpha float64

	pose    Pose
	started bool
}

// NewFilter returns a filter with the given gyro weight, clamped to [0, 1].
func NewFilter(alpha float64) *Filter {
	return &Filter{Alpha: math.Max(0, math.Min(1, alpha))}
}

// Update folds one sample taken dt seconds after the previous one into the
// estimate. The first update, or any with dt <= 0, resets to the accel tilt.
func (f *Filter) Update(s imu.Sample, dt float64) Pose {
	tilt := FromAccel(s.Accel)
	if !f.started || dt <= 0 {
		f.pose = tilt
		f.started = true
		return f.pose
	}
	f.pose.Roll = f.Alpha*(f.pose.Roll+s.Gyro[0]*dt) + (1-f.Alpha)*tilt.Roll
	f.pose.Pitch = f.Alpha*(f.pose.Pitch+s.Gyro[1]*dt) + (1-f.Alpha)*tilt.Pitch
	return f.pose
}

// Pose returns the current estimate.
func (f *Filter) Pose() Pose { return f.pose }
