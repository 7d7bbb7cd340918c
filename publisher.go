package bmetemp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	log "github.com/sirupsen/logrus"
)

// Endpoint represents a target endpoint.
type Endpoint struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// EndpointConfig represents the configuration of all endpoints that the publisher will send to. An empty host
// disables publishing.
type EndpointConfig struct {
	Scheme      string   `json:"scheme"`
	Host        string   `json:"host"`
	SendSamples Endpoint `json:"sendSamples"`
}

// Publisher is responsible for sending recorded samples upstream.
type Publisher struct {
	endpointConfig EndpointConfig
	datastore      DataStore
	cli            PublisherHTTPClient
}

// PublisherHTTPClient is the http client that will be used by a Publisher.
type PublisherHTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// NewPublisher creates a new Publisher.
func NewPublisher(store DataStore, config EndpointConfig, cli PublisherHTTPClient) *Publisher {
	return &Publisher{
		datastore:      store,
		endpointConfig: config,
		cli:            cli,
	}
}

// Process sends every unpublished sample in one request and marks them published once accepted.
func (p *Publisher) Process() error {
	logger := log.WithField("component", "Publisher").WithField("event", "Process")

	unpublished, err := p.datastore.ReadUnpublished()
	if err != nil {
		logger.WithError(err).Error("failed to read unpublished samples from store")
		return err
	}

	if len(unpublished) == 0 {
		logger.Info("no unpublished samples seen")
		return nil
	}

	body, err := json.Marshal(unpublished)
	if err != nil {
		logger.WithError(err).Error("failed to marshal unpublished samples")
		return err
	}

	scheme := p.endpointConfig.Scheme
	if scheme == "" {
		scheme = "https"
	}
	req, err := http.NewRequest(
		p.endpointConfig.SendSamples.Method,
		(&url.URL{
			Scheme: scheme,
			Host:   p.endpointConfig.Host,
			Path:   p.endpointConfig.SendSamples.Path,
		}).String(),
		io.NopCloser(bytes.NewReader(body)),
	)
	if err != nil {
		logger.WithError(err).Error("failed to create request")
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := p.cli.Do(req)
	if err != nil {
		logger.WithError(err).Error("failed to send http request")
		return err
	}
	if resp.Body != nil {
		defer resp.Body.Close()
	}

	if resp.StatusCode != http.StatusCreated {
		logger.WithField("statusCode", resp.StatusCode).Error("unexpected status code received")
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	err = p.datastore.UpdatePublished(
		unpublished[0].Timestamp,
		unpublished[len(unpublished)-1].Timestamp,
	)
	if err != nil {
		return errors.Join(errors.New("samples sent but not marked published"), err)
	}

	logger.WithField("count", len(unpublished)).Debug("published samples")
	return nil
}
