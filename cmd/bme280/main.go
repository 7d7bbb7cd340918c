package main

import (
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/chvck/bmetemp"
)

func main() {
	driverName := flag.String("driver", bmetemp.DriverPeriph, "sensor driver: periph or devfs")
	port := flag.Int("port", bmetemp.DefaultI2CPort, "i2c bus number")
	addr := flag.Uint("addr", bmetemp.DefaultBME280Addr, "i2c address of the BME280")
	flag.Parse()

	log.SetOutput(os.Stderr)
	log.SetLevel(log.DebugLevel)

	config := bmetemp.SensorConfig{
		Driver:               *driverName,
		Port:                 *port,
		Address:              uint16(*addr),
		MeasurementTimeoutMs: 100,
	}

	driver, err := bmetemp.NewSensorDriver(config)
	if err != nil {
		log.WithError(err).Fatal("failed to create driver")
	}

	response, err := bmetemp.NewSensorReader(driver, config).Read()
	if err != nil {
		log.WithError(err).Fatal("failed to read sample")
	}

	fmt.Printf("Humidity: %f, Temperature: %f, Pressure: %f\n", response.Humidity, response.Temperature,
		response.Pressure)
}
