package bmetemp

import (
	"errors"
	"fmt"
	"strconv"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/chvck/bmetemp/bme280"
)

// PeriphDriver reads the BME280 registers directly over a periph.io i2c bus.
type PeriphDriver struct {
	opts bme280.Opts
	open func(port int) (i2c.BusCloser, error)
}

// NewPeriphDriver creates and returns a PeriphDriver. The opts can be nil.
func NewPeriphDriver(opts *bme280.Opts) *PeriphDriver {
	if opts == nil {
		opts = &bme280.DefaultOpts
	}
	return &PeriphDriver{
		opts: *opts,
		open: openPeriphBus,
	}
}

func openPeriphBus(port int) (i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	return i2creg.Open(strconv.Itoa(port))
}

type periphBus struct {
	bus  i2c.BusCloser
	port int
}

func (pb *periphBus) Close() error {
	return pb.bus.Close()
}

// OpenBus opens the i2c bus with the given number.
func (pd *PeriphDriver) OpenBus(port int) (BusHandle, error) {
	bus, err := pd.open(port)
	if err != nil {
		return nil, &DeviceError{Op: "open bus", Port: port, Err: err}
	}
	return &periphBus{bus: bus, port: port}, nil
}

// LoadCalibration verifies the chip id and reads the calibration at addr.
func (pd *PeriphDriver) LoadCalibration(bus BusHandle, addr uint16) (CalibrationParameters, error) {
	pb, dev, err := pd.device(bus, addr)
	if err != nil {
		return nil, err
	}

	cal, err := dev.ReadCalibration()
	if err != nil {
		if errors.Is(err, bme280.ErrUnexpectedChipID) || errors.Is(err, bme280.ErrInvalidCalibration) {
			return nil, &CalibrationError{Addr: addr, Err: err}
		}
		return nil, &DeviceError{Op: "load calibration", Port: pb.port, Addr: addr, Err: err}
	}

	return cal, nil
}

// Sample takes one forced mode measurement and compensates it with cal.
func (pd *PeriphDriver) Sample(bus BusHandle, addr uint16, cal CalibrationParameters) (*SensorSample, error) {
	pb, dev, err := pd.device(bus, addr)
	if err != nil {
		return nil, err
	}

	c, ok := cal.(*bme280.Calibration)
	if !ok {
		return nil, &CalibrationError{Addr: addr, Err: fmt.Errorf("unsupported calibration %T", cal)}
	}

	m, err := dev.Sense(c)
	if err != nil {
		if errors.Is(err, bme280.ErrCalibrationMismatch) || errors.Is(err, bme280.ErrInvalidCalibration) {
			return nil, &CalibrationError{Addr: addr, Err: err}
		}
		return nil, &DeviceError{Op: "sample", Port: pb.port, Addr: addr, Err: err}
	}

	return &SensorSample{
		Temperature: m.Temperature,
		Pressure:    m.Pressure / 100,
		Humidity:    m.Humidity,
	}, nil
}

func (pd *PeriphDriver) device(bus BusHandle, addr uint16) (*periphBus, *bme280.Dev, error) {
	pb, ok := bus.(*periphBus)
	if !ok {
		return nil, nil, fmt.Errorf("unsupported bus handle %T", bus)
	}

	dev, err := bme280.NewI2C(pb.bus, addr, &pd.opts)
	if err != nil {
		return nil, nil, &DeviceError{Op: "open device", Port: pb.port, Addr: addr, Err: err}
	}

	return pb, dev, nil
}
