// Package mqtttelemetry implements [domain.TelemetryReporter] over MQTT,
// publishing phase metric reports to a per-device topic.
package mqtttelemetry

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/domain"
)

// Config configures the reporter's MQTT connection.
type Config struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// PublishTimeout bounds each publish; zero means 10s.
	PublishTimeout time.Duration
}

// Reporter implements [domain.TelemetryReporter] by publishing JSON
// reports to edge/<deviceID>/telemetry with QoS 1.
type Reporter struct {
	client  mqtt.Client
	topic   string
	device  domain.DeviceID
	timeout time.Duration
}

type report struct {
	DeviceID  string    `json:"device_id"`
	Metrics   []string  `json:"metrics"`
	Timestamp time.Time `json:"timestamp"`
}

// New connects to the broker and returns a reporter for the device.
func New(deviceID domain.DeviceID, cfg Config) (*Reporter, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", cfg.BrokerURL, token.Error())
	}

	timeout := cfg.PublishTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Reporter{
		client:  client,
		topic:   fmt.Sprintf("edge/%s/telemetry", deviceID),
		device:  deviceID,
		timeout: timeout,
	}, nil
}

func (r *Reporter) ReportMetrics(metrics []string) error {
	payload, err := json.Marshal(report{
		DeviceID:  string(r.device),
		Metrics:   metrics,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal telemetry report: %w", err)
	}

	token := r.client.Publish(r.topic, 1, false, payload)
	if !token.WaitTimeout(r.timeout) {
		return fmt.Errorf("publish to %s: timed out after %s", r.topic, r.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", r.topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (r *Reporter) Close() {
	r.client.Disconnect(250)
}
