// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/relabs-tech/inertial_streamer/internal/config"
	"github.com/relabs-tech/inertial_streamer/internal/sensors"
)

// RunRegisterDump prints every known register of the configured sensor.
func RunRegisterDump(cfg *config.Config, out io.Writer) error {
	r, closeBus, err := OpenSensor(cfg)
	if err != nil {
		return err
	}
	defer closeBus()

	vals, err := r.Dump()
	if err != nil {
		return err
	}
	return PrintRegisterDump(out, vals)
}

// PrintRegisterDump writes one aligned line per register with a decoded
// value where one applies.
func PrintRegisterDump(out io.Writer, vals []sensors.RegisterValue) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADDR\tNAME\tACCESS\tVALUE\tDECODED")
	for _, v := range vals {
		hex := make([]string, len(v.Data))
		for i, b := range v.Data {
			hex[i] = fmt.Sprintf("%02X", b)
		}
		fmt.Fprintf(w, "0x%02X\t%s\t%s\t%s\t%s\n",
			v.Info.Address, v.Info.Name, v.Info.Access, strings.Join(hex, " "), decodeRegister(v))
	}
	return w.Flush()
}

func decodeRegister(v sensors.RegisterValue) string {
	switch v.Info.Name {
	case "CONFIG":
		return decodeRange(sensors.LowPassFilter, v.Data[0])
	case "GYRO_CONFIG":
		return decodeRange(sensors.Gyro, v.Data[0])
	case "ACCEL_CONFIG":
		return decodeRange(sensors.Accel, v.Data[0])
	case "WHO_AM_I":
		if v.Data[0] == sensors.ExpectedWhoAmI {
			return "MPU-6050"
		}
		return "unexpected id"
	case "PWR_MGMT_1":
		if v.Data[0]&0x40 != 0 {
			return "sleeping"
		}
		return "awake"
	case "TEMP_OUT":
		return fmt.Sprintf("%.2f °C", sensors.Celsius(sensors.DecodeSignedPair(v.Data[0], v.Data[1])))
	case "ACCEL_OUT", "GYRO_OUT":
		return fmt.Sprintf("raw x=%d y=%d z=%d",
			sensors.DecodeSignedPair(v.Data[0], v.Data[1]),
			sensors.DecodeSignedPair(v.Data[2], v.Data[3]),
			sensors.DecodeSignedPair(v.Data[4], v.Data[5]),
		)
	}
	return ""
}

func decodeRange(kind sensors.RangeKind, code byte) string {
	v, err := sensors.FromCode(kind, code)
	if err != nil {
		return "unknown code"
	}
	return fmt.Sprintf("%d %s", v, kind.Unit())
}
