package bmetemp

import (
	"fmt"
	"os"

	"github.com/maciej/bme280"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/io/i2c"
)

const (
	devfsRegChipID = 0xD0
	devfsChipID    = 0x60
)

// devfsDevice is the register access the maciej/bme280 driver needs, plus Close.
type devfsDevice interface {
	ReadReg(reg byte, buf []byte) error
	WriteReg(reg byte, buf []byte) error
	Close() error
}

func openDevfsDevice(path string, addr int) (devfsDevice, error) {
	device, err := i2c.Open(&i2c.Devfs{Dev: path}, addr)
	if err != nil {
		return nil, err
	}
	return device, nil
}

// DevfsDriver reads the BME280 through the maciej/bme280 driver on a /dev/i2c-N device node.
type DevfsDriver struct {
	settings bme280.Settings
	open     func(path string, addr int) (devfsDevice, error)
}

// NewDevfsDriver creates and returns a DevfsDriver.
func NewDevfsDriver() *DevfsDriver {
	// IBM recommended settings for weather stations
	return &DevfsDriver{
		settings: bme280.Settings{
			Filter:                  bme280.FilterOff,
			PressureOversampling:    bme280.Oversampling1x,
			TemperatureOversampling: bme280.Oversampling1x,
			HumidityOversampling:    bme280.Oversampling1x,
		},
		open: openDevfsDevice,
	}
}

func devfsPath(port int) string {
	return fmt.Sprintf("/dev/i2c-%d", port)
}

// devfsBus holds the device opened at calibration time; the kernel binds the
// slave address to the file descriptor, so the device is opened per address.
type devfsBus struct {
	port   int
	device devfsDevice
	driver *bme280.Driver
}

// Close releases the device. The driver shares it and is never closed on its own.
func (db *devfsBus) Close() error {
	if db.device == nil {
		return nil
	}
	return db.device.Close()
}

type devfsCalibration struct {
	addr   uint16
	driver *bme280.Driver
}

func (dc *devfsCalibration) Address() uint16 {
	return dc.addr
}

// OpenBus checks that the bus device node is available.
func (dd *DevfsDriver) OpenBus(port int) (BusHandle, error) {
	path := devfsPath(port)
	if _, err := os.Stat(path); err != nil {
		return nil, &DeviceError{Op: "open bus", Port: port, Err: err}
	}
	return &devfsBus{port: port}, nil
}

// LoadCalibration opens the device at addr, checks the chip id and initialises the driver in forced mode,
// which reads the calibration.
func (dd *DevfsDriver) LoadCalibration(bus BusHandle, addr uint16) (CalibrationParameters, error) {
	db, ok := bus.(*devfsBus)
	if !ok {
		return nil, fmt.Errorf("unsupported bus handle %T", bus)
	}
	if db.device != nil {
		return nil, &CalibrationError{Addr: addr, Err: fmt.Errorf("bus already calibrated")}
	}

	device, err := dd.open(devfsPath(db.port), int(addr))
	if err != nil {
		return nil, &DeviceError{Op: "open device", Port: db.port, Addr: addr, Err: err}
	}
	db.device = device

	// The driver retries the chip id and reports a NACK and a foreign chip alike.
	id := make([]byte, 1)
	if err := device.ReadReg(devfsRegChipID, id); err != nil {
		return nil, &DeviceError{Op: "load calibration", Port: db.port, Addr: addr, Err: err}
	}
	if id[0] != devfsChipID {
		return nil, &CalibrationError{Addr: addr, Err: fmt.Errorf("unexpected chip id %#x", id[0])}
	}

	driver := bme280.New(device)
	if err := driver.InitWith(bme280.ModeForced, dd.settings); err != nil {
		log.WithError(err).
			WithField("component", "DevfsDriver").
			Debug("driver failed to initialise")
		return nil, &CalibrationError{Addr: addr, Err: err}
	}
	db.driver = driver

	return &devfsCalibration{addr: addr, driver: driver}, nil
}

// Sample reads one measurement through the driver initialised by LoadCalibration.
func (dd *DevfsDriver) Sample(bus BusHandle, addr uint16, cal CalibrationParameters) (*SensorSample, error) {
	db, ok := bus.(*devfsBus)
	if !ok {
		return nil, fmt.Errorf("unsupported bus handle %T", bus)
	}
	dc, ok := cal.(*devfsCalibration)
	if !ok || dc.driver != db.driver || dc.addr != addr {
		return nil, &CalibrationError{Addr: addr, Err: fmt.Errorf("calibration does not belong to this bus session")}
	}

	response, err := dc.driver.Read()
	if err != nil {
		return nil, &DeviceError{Op: "sample", Port: db.port, Addr: addr, Err: err}
	}

	return &SensorSample{
		Temperature: response.Temperature,
		Pressure:    response.Pressure,
		Humidity:    response.Humidity,
	}, nil
}
