// Package clientconfig pushes the beacon configuration that browsers load:
// the current public key description and the ingestion endpoint.
package clientconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-jose/go-jose/v4"
)

// BeaconConfig is the JSON object served to every beacon instantiation.
type BeaconConfig struct {
	Key      jose.JSONWebKey `json:"key"`
	Endpoint string          `json:"endpoint"`
}

// Publisher replaces the externally hosted beacon configuration.
type Publisher interface {
	Publish(ctx context.Context, cfg BeaconConfig) error
}

// HTTPPublisher PUTs the configuration to its hosting URL.
type HTTPPublisher struct {
	URL    string
	Client *http.Client
}

// NewHTTPPublisher constructs a publisher for the given hosting URL.
func NewHTTPPublisher(url string, client *http.Client) *HTTPPublisher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPublisher{URL: url, Client: client}
}

// Publish replaces the hosted configuration object.
func (p *HTTPPublisher) Publish(ctx context.Context, cfg BeaconConfig) error {
	body, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("config push: unexpected status %d", resp.StatusCode)
	}
	return nil
}
