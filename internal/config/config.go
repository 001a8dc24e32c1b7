package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all application configuration values.
type Config struct {
	// I2C bus
	I2CBus       string // periph bus name; "" selects the first bus
	I2CAddr      uint16
	I2CSpeedKHz  int
	BusTimeoutMS int // 0 disables the per-transaction timeout

	// Sensor ranges, in physical units. Validated by the sensor range tables
	// when written at startup, not here.
	GyroRangeDPS int
	AccelRangeG  int
	LPFHz        int

	// Calibration
	CalibrateOnStart      bool
	CalibrationSamples    int
	CalibrationDelayMS    int
	CalibrationZeroAccelZ bool
	CalibrationFile       string

	// Timing
	SampleInterval     int // milliseconds
	ConsoleLogInterval int // milliseconds

	// Sample server
	ServerHost             string
	ServerPort             int
	RequestBudget          int // bytes
	RequestReadTimeoutMS   int
	ClientWriteTimeoutMS   int
	StreamNewlineDelimited bool

	// MQTT mirror (disabled when MQTTBroker is empty)
	MQTTBroker   string
	MQTTClientID string
	TopicSample  string

	// WebSocket mirror (disabled when 0)
	WebServerPort int

	// Register debugger on the web mirror. Empty means read-only.
	RegisterDebugWritable string // e.g. "0x19-0x1C,0x6B"
}

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	return &Config{
		I2CAddr:      0x68,
		I2CSpeedKHz:  400,
		BusTimeoutMS: 200,

		GyroRangeDPS: 250,
		AccelRangeG:  2,
		LPFHz:        44,

		CalibrateOnStart:      true,
		CalibrationSamples:    100,
		CalibrationDelayMS:    100,
		CalibrationZeroAccelZ: false,

		SampleInterval:     100,
		ConsoleLogInterval: 1000,

		ServerHost:           "0.0.0.0",
		ServerPort:           80,
		RequestBudget:        1024,
		RequestReadTimeoutMS: 5000,
		ClientWriteTimeoutMS: 500,

		MQTTClientID: "inertial-streamer",
		TopicSample:  "inertial/sample",
	}
}

// Package-level singleton. globalConfig is only set through InitGlobal and
// read through Get, both under configMu.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()
	return Parse(file)
}

// Parse reads KEY=VALUE lines on top of Default(). Blank lines and lines
// starting with '#' are skipped.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseInt(key, value string, min int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < min {
		return 0, fmt.Errorf("%s must be >= %d, got %d", key, min, v)
	}
	return v, nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// I2C bus
	case "I2C_BUS":
		c.I2CBus = value
	case "I2C_ADDR":
		addr, perr := strconv.ParseUint(value, 0, 16)
		if perr != nil {
			return fmt.Errorf("invalid I2C_ADDR %q: %w", value, perr)
		}
		if addr > 0x7F {
			return fmt.Errorf("I2C_ADDR must be a 7-bit address, got 0x%X", addr)
		}
		c.I2CAddr = uint16(addr)
	case "I2C_SPEED_KHZ":
		c.I2CSpeedKHz, err = parseInt(key, value, 0)
	case "BUS_TIMEOUT_MS":
		c.BusTimeoutMS, err = parseInt(key, value, 0)

	// Sensor ranges
	case "GYRO_RANGE_DPS":
		c.GyroRangeDPS, err = parseInt(key, value, 0)
	case "ACCEL_RANGE_G":
		c.AccelRangeG, err = parseInt(key, value, 0)
	case "LPF_HZ":
		c.LPFHz, err = parseInt(key, value, 0)

	// Calibration
	case "CALIBRATE_ON_START":
		c.CalibrateOnStart, err = parseBool(key, value)
	case "CALIBRATION_SAMPLES":
		c.CalibrationSamples, err = parseInt(key, value, 1)
	case "CALIBRATION_DELAY_MS":
		c.CalibrationDelayMS, err = parseInt(key, value, 0)
	case "CALIBRATION_ZERO_ACCEL_Z":
		c.CalibrationZeroAccelZ, err = parseBool(key, value)
	case "CALIBRATION_FILE":
		c.CalibrationFile = value

	// Timing
	case "SAMPLE_INTERVAL":
		c.SampleInterval, err = parseInt(key, value, 1)
	case "CONSOLE_LOG_INTERVAL":
		c.ConsoleLogInterval, err = parseInt(key, value, 0)

	// Sample server
	case "SERVER_HOST":
		c.ServerHost = value
	case "SERVER_PORT":
		c.ServerPort, err = parseInt(key, value, 0)
	case "REQUEST_BUDGET":
		c.RequestBudget, err = parseInt(key, value, 16)
	case "REQUEST_READ_TIMEOUT_MS":
		c.RequestReadTimeoutMS, err = parseInt(key, value, 0)
	case "CLIENT_WRITE_TIMEOUT_MS":
		c.ClientWriteTimeoutMS, err = parseInt(key, value, 0)
	case "STREAM_NEWLINE_DELIMITED":
		c.StreamNewlineDelimited, err = parseBool(key, value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "TOPIC_SAMPLE":
		c.TopicSample = value

	// Web
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value, 0)
	case "REGISTER_DEBUG_WRITABLE":
		c.RegisterDebugWritable = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks cross-field constraints.
func (c *Config) validate() error {
	if c.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT out of range: %d", c.ServerPort)
	}
	if c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT out of range: %d", c.WebServerPort)
	}
	if c.WebServerPort != 0 && c.WebServerPort == c.ServerPort {
		return fmt.Errorf("WEB_SERVER_PORT must differ from SERVER_PORT (%d)", c.ServerPort)
	}
	if c.MQTTBroker != "" && c.TopicSample == "" {
		return fmt.Errorf("TOPIC_SAMPLE is required when MQTT_BROKER is set")
	}
	return nil
}

// ServerAddr is the host:port the sample server listens on.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// Duration converts a millisecond setting to a time.Duration.
func Duration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// InitGlobal initializes the global configuration from file.
// Only the first call has any effect.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// InitDefault installs Default() as the global configuration when none was
// loaded, including after a failed InitGlobal.
func InitDefault() {
	configOnce.Do(func() {})
	configMu.Lock()
	defer configMu.Unlock()
	if globalConfig == nil {
		globalConfig = Default()
	}
}

// Get returns the global configuration instance.
// InitGlobal or InitDefault must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
