// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

// RangeKind selects one of the sensor's range tables.
type RangeKind int

const (
	Gyro RangeKind = iota
	Accel
	LowPassFilter
)

func (k RangeKind) String() string {
	switch k {
	case Gyro:
		return "gyro"
	case Accel:
		return "accel"
	case LowPassFilter:
		return "lpf"
	}
	return "unknown"
}

// Unit is the physical unit of the kind's range values.
func (k RangeKind) Unit() string {
	switch k {
	case Gyro:
		return "dps"
	case Accel:
		return "g"
	case LowPassFilter:
		return "Hz"
	}
	return ""
}

// Supported range values.
const (
	GyroRange250DPS  = 250
	GyroRange500DPS  = 500
	GyroRange1000DPS = 1000
	GyroRange2000DPS = 2000

	AccelRange2G  = 2
	AccelRange4G  = 4
	AccelRange8G  = 8
	AccelRange16G = 16

	LPF5Hz   = 5
	LPF10Hz  = 10
	LPF21Hz  = 21
	LPF44Hz  = 44
	LPF94Hz  = 94
	LPF184Hz = 184
	LPF260Hz = 260
)

type rangeEntry struct {
	value int
	code  byte
}

// Gyro and accel codes are FS_SEL already shifted into bits 4:3 of
// GYRO_CONFIG / ACCEL_CONFIG. LPF codes are DLPF_CFG in bits 2:0 of CONFIG
// (accelerometer bandwidth column of the datasheet).
var rangeTables = map[RangeKind][]rangeEntry{
	Gyro: {
		{GyroRange250DPS, 0x00},
		{GyroRange500DPS, 0x08},
		{GyroRange1000DPS, 0x10},
		{GyroRange2000DPS, 0x18},
	},
	Accel: {
		{AccelRange2G, 0x00},
		{AccelRange4G, 0x08},
		{AccelRange8G, 0x10},
		{AccelRange16G, 0x18},
	},
	LowPassFilter: {
		{LPF260Hz, 0x00},
		{LPF184Hz, 0x01},
		{LPF94Hz, 0x02},
		{LPF44Hz, 0x03},
		{LPF21Hz, 0x04},
		{LPF10Hz, 0x05},
		{LPF5Hz, 0x06},
	},
}

// LSB per unit for each full-scale setting.
var sensitivity = map[RangeKind]map[int]float64{
	Gyro: {
		GyroRange250DPS:  131.0,
		GyroRange500DPS:  65.5,
		GyroRange1000DPS: 32.8,
		GyroRange2000DPS: 16.4,
	},
	Accel: {
		AccelRange2G:  16384.0,
		AccelRange4G:  8192.0,
		AccelRange8G:  4096.0,
		AccelRange16G: 2048.0,
	},
}

// ToCode returns the register code for a range value.
func ToCode(kind RangeKind, value int) (byte, error) {
	for _, e := range rangeTables[kind] {
		if e.value == value {
			return e.code, nil
		}
	}
	return 0, &UnsupportedRangeError{Kind: kind, Value: value}
}

// FromCode returns the range value for a register code read from the device.
func FromCode(kind RangeKind, code byte) (int, error) {
	for _, e := range rangeTables[kind] {
		if e.code == code {
			return e.value, nil
		}
	}
	return 0, &ProtocolError{Kind: kind, Code: code}
}

// Values lists the supported range values of a kind, in table order.
func Values(kind RangeKind) []int {
	entries := rangeTables[kind]
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.value
	}
	return out
}

// Sensitivity returns the LSB-per-unit divisor for a gyro or accel range.
func Sensitivity(kind RangeKind, value int) (float64, error) {
	if s, ok := sensitivity[kind][value]; ok {
		return s, nil
	}
	return 0, &UnsupportedRangeError{Kind: kind, Value: value}
}
