// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// OpenI2C initializes the periph host drivers and opens the device at addr on
// the named bus ("" selects the first available bus). The returned closer
// releases the bus.
func OpenI2C(busName string, addr uint16, speed physic.Frequency) (*i2c.Dev, i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("periph host init: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, fmt.Errorf("I2C bus open (%q): %w", busName, err)
	}

	if speed > 0 {
		if err := bus.SetSpeed(speed); err != nil {
			log.Printf("sensors: I2C bus %s: speed %s not applied: %v", bus, speed, err)
		}
	}

	return &i2c.Dev{Addr: addr, Bus: bus}, bus, nil
}
