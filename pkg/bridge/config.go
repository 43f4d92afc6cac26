// Package bridge wires together the routing table, the downstream and
// upstream ENet hosts, and the fake web endpoint into a running
// growtopia-proxy process.
package bridge

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// Config is the persisted configuration for the bridge, stored as a JSON
// file (config.json in the working directory unless another path is given).
type Config struct {
	WebServerPort  uint16 `json:"web_server_port"`
	ENetServerPort uint16 `json:"enet_server_port"`

	// MinimumClientVersion, if set, rejects server_data requests from an
	// older reported client version, e.g. "4.61".
	MinimumClientVersion string `json:"minimum_client_version"`

	LogLevel  zerolog.Level `json:"log_level"`
	LogPretty bool          `json:"log_pretty"`
}

// DefaultConfig returns the configuration used when config.json is absent.
func DefaultConfig() Config {
	return Config{
		WebServerPort:  443,
		ENetServerPort: 17111,
		LogLevel:       zerolog.InfoLevel,
		LogPretty:      true,
	}
}

// LoadOrInit reads config.json from path, creating it with DefaultConfig
// if it does not exist.
func LoadOrInit(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		c := DefaultConfig()
		if err := c.save(path); err != nil {
			return Config{}, fmt.Errorf("bridge: init config: %w", err)
		}
		return c, nil
	} else if err != nil {
		return Config{}, fmt.Errorf("bridge: read config: %w", err)
	}

	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return Config{}, fmt.Errorf("bridge: parse config: %w", err)
	}
	return c, nil
}

func (c Config) save(path string) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

// SetWebServerPort updates the web server port and persists the change.
func (c *Config) SetWebServerPort(path string, port uint16) error {
	c.WebServerPort = port
	return c.save(path)
}

// SetENetServerPort updates the ENet server port and persists the change.
func (c *Config) SetENetServerPort(path string, port uint16) error {
	c.ENetServerPort = port
	return c.save(path)
}
