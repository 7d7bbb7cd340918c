package bmetemp

import (
	"fmt"

	"github.com/chvck/bmetemp/bme280"
)

// NewSensorDriver returns the SensorDriver selected by the config.
func NewSensorDriver(config SensorConfig) (SensorDriver, error) {
	switch config.Driver {
	case DriverPeriph, "":
		opts := bme280.DefaultOpts
		opts.MeasurementTimeout = config.MeasurementTimeout()
		return NewPeriphDriver(&opts), nil
	case DriverDevfs:
		return NewDevfsDriver(), nil
	default:
		return nil, fmt.Errorf("unknown sensor driver %q", config.Driver)
	}
}
