package bmetemp

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// SensorReader takes single readings from a BME280.
type SensorReader struct {
	driver SensorDriver
	port   int
	addr   uint16
}

// NewSensorReader creates and returns a SensorReader.
func NewSensorReader(driver SensorDriver, config SensorConfig) *SensorReader {
	return &SensorReader{
		driver: driver,
		port:   config.Port,
		addr:   config.Address,
	}
}

// Read opens the bus, loads the calibration, takes one sample and releases the
// bus. Failures are returned as *DeviceError or *CalibrationError.
func (sr *SensorReader) Read() (*SensorSample, error) {
	logger := log.WithField("component", "SensorReader").
		WithField("port", sr.port).
		WithField("address", fmt.Sprintf("%#02x", sr.addr))

	bus, err := sr.driver.OpenBus(sr.port)
	if err != nil {
		return nil, sr.deviceError("open bus", err)
	}
	defer func() {
		if closeErr := bus.Close(); closeErr != nil {
			logger.WithError(closeErr).Error("bus failed to close")
		}
	}()
	logger.Debug("bus opened")

	cal, err := sr.driver.LoadCalibration(bus, sr.addr)
	if err != nil {
		return nil, sr.calibrationError(err)
	}
	if cal.Address() != sr.addr {
		return nil, &CalibrationError{
			Addr: sr.addr,
			Err:  fmt.Errorf("calibration loaded from %#02x", cal.Address()),
		}
	}
	logger.Debug("calibration loaded")

	sample, err := sr.driver.Sample(bus, sr.addr, cal)
	if err != nil {
		return nil, sr.deviceError("sample", err)
	}
	logger.WithField("temperature", sample.Temperature).Debug("sample taken")

	return sample, nil
}

func (sr *SensorReader) deviceError(op string, err error) error {
	if isTyped(err) {
		return err
	}
	return &DeviceError{Op: op, Port: sr.port, Addr: sr.addr, Err: err}
}

func (sr *SensorReader) calibrationError(err error) error {
	if isTyped(err) {
		return err
	}
	return &CalibrationError{Addr: sr.addr, Err: err}
}

func isTyped(err error) bool {
	var deviceErr *DeviceError
	var calErr *CalibrationError
	return errors.As(err, &deviceErr) || errors.As(err, &calErr)
}
