// Package bme280 reads the Bosch BME280 temperature, pressure and humidity
// sensor over I²C in forced mode.
//
// Reading a sample is split in two steps so that callers control the
// lifetime of the factory calibration: ReadCalibration loads the constants
// from the sensor NVM, and Sense uses them to compensate one measurement.
//
// Datasheet: https://www.bosch-sensortec.com/media/boschsensortec/downloads/datasheets/bst-bme280-ds002.pdf
package bme280

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
)

const (
	// DefaultAddress is the address used when SDO is pulled to ground.
	DefaultAddress uint16 = 0x76
	// AlternateAddress is the address used when SDO is pulled to VDDIO.
	AlternateAddress uint16 = 0x77

	chipID byte = 0x60
)

const (
	regCalib00  byte = 0x88
	regChipID   byte = 0xD0
	regCalib26  byte = 0xE1
	regCtrlHum  byte = 0xF2
	regStatus   byte = 0xF3
	regCtrlMeas byte = 0xF4
	regData     byte = 0xF7

	modeForced     byte = 0x01
	statusMeasure  byte = 1 << 3
	statusImUpdate byte = 1 << 0
)

var (
	// ErrUnexpectedChipID is returned when the device at the address is not a BME280.
	ErrUnexpectedChipID = errors.New("bme280: unexpected chip id")
	// ErrInvalidCalibration is returned when the calibration block read from the
	// device cannot be used for compensation.
	ErrInvalidCalibration = errors.New("bme280: invalid calibration")
	// ErrCalibrationMismatch is returned when the calibration was read from a
	// different address than the one being sampled.
	ErrCalibrationMismatch = errors.New("bme280: calibration read from another address")
	// ErrMeasurementTimeout is returned when the device is still converting
	// after Opts.MeasurementTimeout.
	ErrMeasurementTimeout = errors.New("bme280: measurement timeout")
)

// Oversampling is the oversampling ratio of one measurement channel.
type Oversampling uint8

// Possible oversampling values. Off skips the channel entirely.
const (
	Off  Oversampling = 0
	O1x  Oversampling = 1
	O2x  Oversampling = 2
	O4x  Oversampling = 3
	O8x  Oversampling = 4
	O16x Oversampling = 5
)

func (o Oversampling) factor() float64 {
	if o == Off {
		return 0
	}
	return float64(int(1) << (o - 1))
}

// Opts holds the configuration options for the device.
type Opts struct {
	Temperature Oversampling
	Pressure    Oversampling
	Humidity    Oversampling
	// MeasurementTimeout bounds the wait for a forced measurement after the
	// datasheet conversion time has elapsed. 0 means no timeout.
	MeasurementTimeout time.Duration
	// PollInterval is the delay between two status reads. Leave 0 to use the default.
	PollInterval time.Duration
}

// DefaultOpts is the single shot weather monitoring configuration from the
// datasheet (section 3.5.1).
var DefaultOpts = Opts{
	Temperature:        O1x,
	Pressure:           O1x,
	Humidity:           O1x,
	MeasurementTimeout: 100 * time.Millisecond,
	PollInterval:       2 * time.Millisecond,
}

// Dev is a handle to a BME280 on an I²C bus.
type Dev struct {
	d    *i2c.Dev
	opts Opts
}

// NewI2C returns a Dev for the sensor at addr. No I/O is done. The Opts can be nil.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if addr != DefaultAddress && addr != AlternateAddress {
		return nil, fmt.Errorf("bme280: invalid address %#02x, must be %#02x or %#02x", addr, DefaultAddress, AlternateAddress)
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultOpts.PollInterval
	}
	if o.Temperature == Off {
		return nil, errors.New("bme280: temperature oversampling cannot be off")
	}
	if o.Temperature > O16x || o.Pressure > O16x || o.Humidity > O16x {
		return nil, errors.New("bme280: invalid oversampling")
	}
	return &Dev{d: &i2c.Dev{Bus: b, Addr: addr}, opts: o}, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("BME280{%s}", d.d)
}

// ReadCalibration checks the chip id and loads the factory calibration.
func (d *Dev) ReadCalibration() (*Calibration, error) {
	var id [1]byte
	if err := d.d.Tx([]byte{regChipID}, id[:]); err != nil {
		return nil, fmt.Errorf("bme280: read chip id: %w", err)
	}
	if id[0] != chipID {
		return nil, fmt.Errorf("%w: %#02x", ErrUnexpectedChipID, id[0])
	}

	var tp [26]byte
	if err := d.d.Tx([]byte{regCalib00}, tp[:]); err != nil {
		return nil, fmt.Errorf("bme280: read calibration: %w", err)
	}
	var h [7]byte
	if err := d.d.Tx([]byte{regCalib26}, h[:]); err != nil {
		return nil, fmt.Errorf("bme280: read humidity calibration: %w", err)
	}

	c, err := parseCalibration(tp[:], h[:])
	if err != nil {
		return nil, err
	}
	c.addr = d.d.Addr
	return c, nil
}

// Sense triggers one forced measurement, waits for it and returns the
// compensated values.
func (d *Dev) Sense(c *Calibration) (Measurement, error) {
	if c == nil {
		return Measurement{}, ErrInvalidCalibration
	}
	if c.addr != d.d.Addr {
		return Measurement{}, fmt.Errorf("%w: %#02x != %#02x", ErrCalibrationMismatch, c.addr, d.d.Addr)
	}

	// ctrl_hum only takes effect after a write to ctrl_meas.
	if err := d.d.Tx([]byte{regCtrlHum, byte(d.opts.Humidity)}, nil); err != nil {
		return Measurement{}, fmt.Errorf("bme280: write ctrl_hum: %w", err)
	}
	ctrl := byte(d.opts.Temperature)<<5 | byte(d.opts.Pressure)<<2 | modeForced
	if err := d.d.Tx([]byte{regCtrlMeas, ctrl}, nil); err != nil {
		return Measurement{}, fmt.Errorf("bme280: write ctrl_meas: %w", err)
	}

	wait := d.measurementTime()
	deadline := time.Now().Add(wait + d.opts.MeasurementTimeout)
	time.Sleep(wait)
	if err := d.waitReady(deadline); err != nil {
		return Measurement{}, err
	}

	var buf [8]byte
	if err := d.d.Tx([]byte{regData}, buf[:]); err != nil {
		return Measurement{}, fmt.Errorf("bme280: read data: %w", err)
	}
	r := Raw{
		Pressure:    int32(buf[0])<<12 | int32(buf[1])<<4 | int32(buf[2])>>4,
		Temperature: int32(buf[3])<<12 | int32(buf[4])<<4 | int32(buf[5])>>4,
		Humidity:    int32(buf[6])<<8 | int32(buf[7]),

		SkipPressure: d.opts.Pressure == Off,
		SkipHumidity: d.opts.Humidity == Off,
	}
	return c.Compensate(r), nil
}

func (d *Dev) waitReady(deadline time.Time) error {
	var status [1]byte
	for {
		if err := d.d.Tx([]byte{regStatus}, status[:]); err != nil {
			return fmt.Errorf("bme280: read status: %w", err)
		}
		if status[0]&(statusMeasure|statusImUpdate) == 0 {
			return nil
		}
		if d.opts.MeasurementTimeout > 0 && !time.Now().Before(deadline) {
			return ErrMeasurementTimeout
		}
		time.Sleep(d.opts.PollInterval)
	}
}

// measurementTime is the maximum conversion time from datasheet appendix B.
func (d *Dev) measurementTime() time.Duration {
	ms := 1.25 + 2.3*d.opts.Temperature.factor()
	if d.opts.Pressure != Off {
		ms += 2.3*d.opts.Pressure.factor() + 0.575
	}
	if d.opts.Humidity != Off {
		ms += 2.3*d.opts.Humidity.factor() + 0.575
	}
	return time.Duration(ms * float64(time.Millisecond))
}
