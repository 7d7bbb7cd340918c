package bmetemp

import "fmt"

// DeviceError is returned when the bus cannot be opened, the sensor does not
// acknowledge at its address, or a measurement cannot be completed.
type DeviceError struct {
	Op   string
	Port int
	Addr uint16
	Err  error
}

func (e *DeviceError) Error() string {
	if e.Addr == 0 {
		return fmt.Sprintf("%s i2c-%d: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s i2c-%d@%#02x: %v", e.Op, e.Port, e.Addr, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// CalibrationError is returned when the calibration handshake or the
// validation of the calibration block fails.
type CalibrationError struct {
	Addr uint16
	Err  error
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("calibration %#02x: %v", e.Addr, e.Err)
}

func (e *CalibrationError) Unwrap() error {
	return e.Err
}
