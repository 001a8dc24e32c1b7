package sensors

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/relabs-tech/inertial_streamer/internal/imu"
)

// Offsets are the per-axis biases subtracted from every gyro and accel reading.
type Offsets struct {
	Gyro  imu.Vector `json:"gyro"`
	Accel imu.Vector `json:"accel"`
}

// Settings is a snapshot of the device configuration and current offsets.
type Settings struct {
	GyroRange  int
	AccelRange int
	LPF        int
	Offsets    Offsets
}

// Reader converts MPU-6050 register values into physical units.
//
// All bus work goes through mu, so a data read from one goroutine and a range
// write from another never interleave. Range settings are cached after the
// first read and refreshed on every Write*Range call.
type Reader struct {
	bus *RegisterBus

	mu     sync.Mutex
	ranges map[RangeKind]int

	offsets atomic.Pointer[Offsets]
}

// NewReader returns a Reader with zero offsets.
func NewReader(bus *RegisterBus) *Reader {
	r := &Reader{
		bus:    bus,
		ranges: make(map[RangeKind]int),
	}
	r.offsets.Store(&Offsets{})
	return r
}

// Wake clears the sleep bit and selects the gyro PLL clock.
func (r *Reader) Wake() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bus.WriteRegister(regPwrMgmt1, pwrWake)
}

// Sleep puts the device in low-power mode. The device stops updating its data
// registers, so reads after Sleep return the last values sampled before it.
func (r *Reader) Sleep() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bus.WriteRegister(regPwrMgmt1, pwrSleep)
}

// WhoAmI reads the identity register.
func (r *Reader) WhoAmI() (byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.bus.ReadRegister(regWhoAmI, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadTemperature returns the die temperature in °C.
func (r *Reader) ReadTemperature() (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.bus.ReadRegister(regTempOutH, 2)
	if err != nil {
		return 0, err
	}
	return Celsius(DecodeSignedPair(b[0], b[1])), nil
}

// Celsius converts a raw TEMP_OUT value to °C.
func Celsius(raw int16) float64 {
	return float64(raw)/340.0 + 36.53
}

// ReadGyro returns angular rate in °/s with the gyro offset removed.
func (r *Reader) ReadGyro() (imu.Vector, error) {
	v, err := r.readScaled(Gyro)
	if err != nil {
		return imu.Vector{}, err
	}
	return v.Sub(r.Offsets().Gyro), nil
}

// ReadAccel returns acceleration in g with the accel offset removed.
func (r *Reader) ReadAccel() (imu.Vector, error) {
	v, err := r.readScaled(Accel)
	if err != nil {
		return imu.Vector{}, err
	}
	return v.Sub(r.Offsets().Accel), nil
}

// ReadSample performs one full gyro, accel and temperature cycle.
func (r *Reader) ReadSample() (imu.Sample, error) {
	g, err := r.ReadGyro()
	if err != nil {
		return imu.Sample{}, fmt.Errorf("gyro: %w", err)
	}
	a, err := r.ReadAccel()
	if err != nil {
		return imu.Sample{}, fmt.Errorf("accel: %w", err)
	}
	t, err := r.ReadTemperature()
	if err != nil {
		return imu.Sample{}, fmt.Errorf("temperature: %w", err)
	}
	return imu.Sample{Gyro: g, Accel: a, Temp: t}, nil
}

// readScaled reads one 6-byte data block and divides by the range sensitivity.
// No offset is applied.
func (r *Reader) readScaled(kind RangeKind) (imu.Vector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rng, err := r.rangeLocked(kind)
	if err != nil {
		return imu.Vector{}, err
	}
	div, err := Sensitivity(kind, rng)
	if err != nil {
		return imu.Vector{}, err
	}

	reg := byte(regGyroXoutH)
	if kind == Accel {
		reg = regAccelXoutH
	}
	b, err := r.bus.ReadRegister(reg, 6)
	if err != nil {
		return imu.Vector{}, err
	}
	return imu.Vector{
		float64(DecodeSignedPair(b[0], b[1])) / div,
		float64(DecodeSignedPair(b[2], b[3])) / div,
		float64(DecodeSignedPair(b[4], b[5])) / div,
	}, nil
}

func (r *Reader) rangeLocked(kind RangeKind) (int, error) {
	if v, ok := r.ranges[kind]; ok {
		return v, nil
	}
	return r.readRangeLocked(kind)
}

func (r *Reader) readRangeLocked(kind RangeKind) (int, error) {
	b, err := r.bus.ReadRegister(configRegister(kind), 1)
	if err != nil {
		return 0, err
	}
	v, err := FromCode(kind, b[0])
	if err != nil {
		return 0, err
	}
	r.ranges[kind] = v
	return v, nil
}

func (r *Reader) writeRange(kind RangeKind, value int) error {
	code, err := ToCode(kind, value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.bus.WriteRegister(configRegister(kind), code); err != nil {
		delete(r.ranges, kind)
		return err
	}
	r.ranges[kind] = value
	return nil
}

func (r *Reader) readRange(kind RangeKind) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readRangeLocked(kind)
}

func configRegister(kind RangeKind) byte {
	switch kind {
	case Gyro:
		return regGyroConfig
	case Accel:
		return regAccelConfig
	default:
		return regConfig
	}
}

// WriteGyroRange sets the gyro full-scale range in °/s.
func (r *Reader) WriteGyroRange(dps int) error { return r.writeRange(Gyro, dps) }

// WriteAccelRange sets the accelerometer full-scale range in g.
func (r *Reader) WriteAccelRange(g int) error { return r.writeRange(Accel, g) }

// WriteLPF sets the digital low-pass filter cutoff in Hz.
func (r *Reader) WriteLPF(hz int) error { return r.writeRange(LowPassFilter, hz) }

// ReadGyroRange reads the gyro range from the device.
func (r *Reader) ReadGyroRange() (int, error) { return r.readRange(Gyro) }

// ReadAccelRange reads the accel range from the device.
func (r *Reader) ReadAccelRange() (int, error) { return r.readRange(Accel) }

// ReadLPF reads the low-pass filter cutoff from the device.
func (r *Reader) ReadLPF() (int, error) { return r.readRange(LowPassFilter) }

// Configure validates all three settings before writing any of them.
func (r *Reader) Configure(gyroDPS, accelG, lpfHz int) error {
	if _, err := ToCode(Gyro, gyroDPS); err != nil {
		return err
	}
	if _, err := ToCode(Accel, accelG); err != nil {
		return err
	}
	if _, err := ToCode(LowPassFilter, lpfHz); err != nil {
		return err
	}
	if err := r.WriteGyroRange(gyroDPS); err != nil {
		return fmt.Errorf("write gyro range: %w", err)
	}
	if err := r.WriteAccelRange(accelG); err != nil {
		return fmt.Errorf("write accel range: %w", err)
	}
	if err := r.WriteLPF(lpfHz); err != nil {
		return fmt.Errorf("write lpf: %w", err)
	}
	return nil
}

// Offsets returns the offsets currently applied to readings.
func (r *Reader) Offsets() Offsets {
	return *r.offsets.Load()
}

// SetOffsets replaces both offset vectors in one step.
func (r *Reader) SetOffsets(o Offsets) {
	r.offsets.Store(&o)
}

// Settings reads the live range settings from the device.
func (r *Reader) Settings() (Settings, error) {
	var s Settings
	var err error
	if s.GyroRange, err = r.ReadGyroRange(); err != nil {
		return s, err
	}
	if s.AccelRange, err = r.ReadAccelRange(); err != nil {
		return s, err
	}
	if s.LPF, err = r.ReadLPF(); err != nil {
		return s, err
	}
	s.Offsets = r.Offsets()
	return s, nil
}

// ReadRaw reads n consecutive registers without interpretation.
func (r *Reader) ReadRaw(reg byte, n int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bus.ReadRegister(reg, n)
}

// WriteRaw writes one register. Values for the range registers must be codes
// from the range tables; anything else is left unwritten. A write to a range
// register drops the cached setting so the next data read refetches it.
func (r *Reader) WriteRaw(reg, value byte) error {
	for _, kind := range []RangeKind{Gyro, Accel, LowPassFilter} {
		if configRegister(kind) != reg {
			continue
		}
		if _, err := FromCode(kind, value); err != nil {
			return fmt.Errorf("register 0x%02X: 0x%02X is not a %s range code: %w", reg, value, kind, ErrInvalidRangeCode)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, kind := range []RangeKind{Gyro, Accel, LowPassFilter} {
		if configRegister(kind) == reg {
			delete(r.ranges, kind)
		}
	}
	return r.bus.WriteRegister(reg, value)
}

// RegisterValue is one entry of a register dump.
type RegisterValue struct {
	Info RegisterInfo
	Data []byte
}

// Dump reads every register in RegisterMap. It stops at the first bus error.
func (r *Reader) Dump() ([]RegisterValue, error) {
	regs := RegisterMap()
	out := make([]RegisterValue, 0, len(regs))
	for _, info := range regs {
		b, err := r.ReadRaw(info.Address, info.Length)
		if err != nil {
			return out, fmt.Errorf("dump %s: %w", info.Name, err)
		}
		out = append(out, RegisterValue{Info: info, Data: b})
	}
	return out, nil
}
