package bmetemp

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Supported values for SensorConfig.Driver.
const (
	DriverPeriph = "periph"
	DriverDevfs  = "devfs"
)

// SensorConfig is the set of configuration properties for reading the BME280.
type SensorConfig struct {
	Driver               string `json:"driver"`
	Port                 int    `json:"port"`
	Address              uint16 `json:"address"`
	MeasurementTimeoutMs int    `json:"measurementTimeoutMs"`
}

// MeasurementTimeout returns the configured measurement wait bound.
func (sc SensorConfig) MeasurementTimeout() time.Duration {
	return time.Duration(sc.MeasurementTimeoutMs) * time.Millisecond
}

// DatabaseConfig is the set of configuration properties for recording samples. An empty path disables recording.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// PublisherConfig is the set of configuration properties for sending samples upstream.
type PublisherConfig struct {
	HTTP EndpointConfig `json:"http"`
	MQTT MQTTConfig     `json:"mqtt"`
}

// AppConfig is the set of configuration properties for setting up the application.
type AppConfig struct {
	Sensor    SensorConfig    `json:"sensor"`
	Database  DatabaseConfig  `json:"database"`
	Publisher PublisherConfig `json:"publisher"`
	path      string
}

// NewAppConfig creates a new AppConfig holding the defaults. An empty path means no config file.
func NewAppConfig(path string) *AppConfig {
	return &AppConfig{
		Sensor: SensorConfig{
			Driver:               DriverPeriph,
			Port:                 DefaultI2CPort,
			Address:              DefaultBME280Addr,
			MeasurementTimeoutMs: 100,
		},
		Publisher: PublisherConfig{
			HTTP: EndpointConfig{
				Scheme: "https",
				SendSamples: Endpoint{
					Method: "PUT",
					Path:   "samples",
				},
			},
			MQTT: MQTTConfig{
				ClientID: "bmetemp",
				Topic:    "bmetemp/temperature",
			},
		},
		path: path,
	}
}

// Parse reads and parses the config file over the defaults.
func (ac *AppConfig) Parse() error {
	if ac.path != "" {
		bytes, err := os.ReadFile(ac.path)
		if err != nil {
			return err
		}

		if err := json.Unmarshal(bytes, ac); err != nil {
			return err
		}
	}

	if ac.Publisher.HTTP.Host != "" && ac.Database.Path == "" {
		return fmt.Errorf("publisher http host %q requires a database path", ac.Publisher.HTTP.Host)
	}

	return ac.Sensor.validate()
}

func (sc SensorConfig) validate() error {
	if sc.Port < 0 {
		return fmt.Errorf("invalid i2c port %d", sc.Port)
	}
	if sc.MeasurementTimeoutMs < 0 {
		return fmt.Errorf("invalid measurement timeout %dms", sc.MeasurementTimeoutMs)
	}

	switch sc.Driver {
	case DriverPeriph:
		if sc.Address != 0x76 && sc.Address != 0x77 {
			return fmt.Errorf("invalid BME280 address %#02x, must be 0x76 or 0x77", sc.Address)
		}
	case DriverDevfs:
		if sc.Address == 0 || sc.Address > 0x7F {
			return fmt.Errorf("invalid i2c address %#02x", sc.Address)
		}
	default:
		return fmt.Errorf("unknown sensor driver %q", sc.Driver)
	}

	return nil
}
