package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/chvck/bmetemp"
)

func init() {
	log.SetFormatter(&log.TextFormatter{})

	// stdout carries the reading only.
	log.SetOutput(os.Stderr)

	log.SetLevel(log.WarnLevel)
}

type driverFactory func(bmetemp.SensorConfig) (bmetemp.SensorDriver, error)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, bmetemp.NewSensorDriver))
}

func run(args []string, stdout io.Writer, newDriver driverFactory) int {
	flags := flag.NewFlagSet("readtemp", flag.ContinueOnError)
	configPath := flags.String("config", "", "path to an optional config file")
	debug := flags.Bool("debug", false, "enables debug logging on stderr")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	config := bmetemp.NewAppConfig(*configPath)
	if err := config.Parse(); err != nil {
		log.Error(err)
		return 1
	}

	driver, err := newDriver(config.Sensor)
	if err != nil {
		log.Error(err)
		return 1
	}

	sample, err := bmetemp.NewSensorReader(driver, config.Sensor).Read()
	if err != nil {
		log.Error(err)
		return 1
	}
	timestamp := time.Now().Unix()

	fmt.Fprintln(stdout, sample.Centidegrees())

	forward(config, *sample, timestamp)

	return 0
}

// forward records and publishes the sample when configured. Failures are logged only; the reading has already
// been printed.
func forward(config *bmetemp.AppConfig, sample bmetemp.SensorSample, timestamp int64) {
	if config.Database.Path != "" {
		record(config, sample, timestamp)
	}

	if config.Publisher.MQTT.Server != "" {
		publisher, err := bmetemp.NewMQTTPublisher(config.Publisher.MQTT)
		if err != nil {
			log.WithError(err).WithField("component", "readtemp").Error("failed to connect to mqtt broker")
			return
		}
		defer publisher.Close()

		if err := publisher.Publish(sample, timestamp); err != nil {
			log.WithError(err).WithField("component", "readtemp").Error("failed to publish sample")
		}
	}
}

func record(config *bmetemp.AppConfig, sample bmetemp.SensorSample, timestamp int64) {
	logger := log.WithField("component", "readtemp").WithField("database", config.Database.Path)

	datastore, closeDB, err := bmetemp.OpenSqliteDataStore(config.Database.Path)
	if err != nil {
		logger.WithError(err).Error("failed to open datastore")
		return
	}
	defer func() {
		if err := closeDB(); err != nil {
			logger.WithError(err).Error("datastore failed to close")
		}
	}()

	err = datastore.Write(bmetemp.SampleRow{
		Timestamp: timestamp,
		Port:      config.Sensor.Port,
		Address:   config.Sensor.Address,
		Sample:    sample,
	})
	if err != nil {
		logger.WithError(err).Error("failed to record sample")
		return
	}

	if config.Publisher.HTTP.Host != "" {
		cli := &http.Client{Timeout: 10 * time.Second}
		// Errors are logged by the publisher; unsent rows go out with the next reading.
		_ = bmetemp.NewPublisher(datastore, config.Publisher.HTTP, cli).Process()
	}
}
