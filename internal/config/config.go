// Package config loads agent configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the agent needs to run on one device.
type Config struct {
	DeviceID    string
	DeviceGroup string

	// Local paths. All default under DataDir when unset.
	DataDir   string
	CacheDir  string
	UpdateDir string
	JournalDB string

	SyncInterval        time.Duration
	UpdateCheckInterval time.Duration
	NetworkTimeout      time.Duration

	AWSRegion    string
	DeviceTable  string
	RolloutTable string
	SyncBucket   string

	// MQTT telemetry is optional; disabled when the broker URL is empty.
	MQTTBrokerURL string
	MQTTClientID  string
	MQTTUsername  string
	MQTTPassword  string
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getenv("EDGE_DATA_DIR", "/var/lib/edge-agent")
	deviceID := os.Getenv("EDGE_DEVICE_ID")

	cfg := &Config{
		DeviceID:    deviceID,
		DeviceGroup: getenv("EDGE_DEVICE_GROUP", "default"),

		DataDir:   dataDir,
		CacheDir:  getenv("EDGE_CACHE_DIR", dataDir+"/cache"),
		UpdateDir: getenv("EDGE_UPDATE_DIR", dataDir+"/updates"),
		JournalDB: getenv("EDGE_JOURNAL_DB", dataDir+"/journal.db"),

		SyncInterval:        getenvDuration("EDGE_SYNC_INTERVAL", 5*time.Minute),
		UpdateCheckInterval: getenvDuration("EDGE_UPDATE_CHECK_INTERVAL", 15*time.Minute),
		NetworkTimeout:      getenvDuration("EDGE_NETWORK_TIMEOUT", 30*time.Second),

		AWSRegion:    getenv("AWS_REGION", "us-east-1"),
		DeviceTable:  getenv("EDGE_DEVICE_TABLE", "edge-devices"),
		RolloutTable: getenv("EDGE_ROLLOUT_TABLE", "edge-rollouts"),
		SyncBucket:   getenv("EDGE_SYNC_BUCKET", "edge-sync"),

		MQTTBrokerURL: os.Getenv("EDGE_MQTT_BROKER_URL"),
		MQTTClientID:  getenv("EDGE_MQTT_CLIENT_ID", "edge-agent-"+deviceID),
		MQTTUsername:  os.Getenv("EDGE_MQTT_USERNAME"),
		MQTTPassword:  os.Getenv("EDGE_MQTT_PASSWORD"),
	}

	if cfg.DeviceID == "" {
		return nil, errors.New("EDGE_DEVICE_ID must be set")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Bare numbers are read as seconds.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
