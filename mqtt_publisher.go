package bmetemp

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

const mqttTimeout = 5 * time.Second

// MQTTConfig is the set of configuration properties for publishing samples to a broker. An empty server
// disables publishing.
type MQTTConfig struct {
	Server   string `json:"server"`
	ClientID string `json:"clientId"`
	Username string `json:"username"`
	Password string `json:"password"`
	Topic    string `json:"topic"`
	QoS      byte   `json:"qos"`
	Retain   bool   `json:"retain"`
}

// mqttPayload carries the reading in the Matter TemperatureMeasurement convention
// (MeasuredValue in 0.01°C) next to the raw values.
type mqttPayload struct {
	MeasuredValue int64   `json:"measured_value"`
	Temperature   float64 `json:"temperature"`
	Pressure      float64 `json:"pressure"`
	Humidity      float64 `json:"humidity"`
	Timestamp     int64   `json:"timestamp"`
}

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes single samples to an MQTT topic.
type MQTTPublisher struct {
	client mqttClient
	topic  string
	qos    byte
	retain bool
}

// NewMQTTPublisher connects to the broker and returns an MQTTPublisher.
func NewMQTTPublisher(config MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(config.Server).
		SetClientID(config.ClientID).
		SetConnectTimeout(mqttTimeout)
	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		return nil, fmt.Errorf("mqtt connect: timed out after %s", mqttTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	return newMQTTPublisher(client, config), nil
}

func newMQTTPublisher(client mqttClient, config MQTTConfig) *MQTTPublisher {
	return &MQTTPublisher{
		client: client,
		topic:  config.Topic,
		qos:    config.QoS,
		retain: config.Retain,
	}
}

// Publish sends the sample taken at timestamp.
func (mp *MQTTPublisher) Publish(sample SensorSample, timestamp int64) error {
	body, err := json.Marshal(mqttPayload{
		MeasuredValue: int64(math.Round(sample.Centidegrees())),
		Temperature:   sample.Temperature,
		Pressure:      sample.Pressure,
		Humidity:      sample.Humidity,
		Timestamp:     timestamp,
	})
	if err != nil {
		return err
	}

	token := mp.client.Publish(mp.topic, mp.qos, mp.retain, body)
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("mqtt publish %s: timed out after %s", mp.topic, mqttTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", mp.topic, err)
	}

	log.WithField("component", "MQTTPublisher").
		WithField("topic", mp.topic).
		Debug("published sample")
	return nil
}

// Close disconnects from the broker.
func (mp *MQTTPublisher) Close() {
	mp.client.Disconnect(250)
}
