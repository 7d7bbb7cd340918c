package bmetemp

import "io"

const (
	// DefaultBME280Addr is the default address to use for connecting to the BME280.
	DefaultBME280Addr = 0x76

	// DefaultI2CPort is the default i2c bus number, /dev/i2c-1 on a Raspberry Pi.
	DefaultI2CPort = 1
)

// BusHandle is an open i2c bus. It is owned by a single read and closed exactly once.
type BusHandle interface {
	io.Closer
}

// CalibrationParameters are the factory constants of one sensor, valid only for
// the bus session and address they were loaded from.
type CalibrationParameters interface {
	Address() uint16
}

// SensorSample is one compensated reading.
type SensorSample struct {
	Temperature float64 `json:"temperature"` // °C
	Pressure    float64 `json:"pressure"`    // hPa
	Humidity    float64 `json:"humidity"`    // %RH
}

// Centidegrees returns the temperature multiplied by 100.
func (s SensorSample) Centidegrees() float64 {
	return s.Temperature * 100
}

// SensorDriver is the capability needed to take a reading from a BME280.
type SensorDriver interface {
	OpenBus(port int) (BusHandle, error)
	LoadCalibration(bus BusHandle, addr uint16) (CalibrationParameters, error)
	Sample(bus BusHandle, addr uint16, cal CalibrationParameters) (*SensorSample, error)
}
