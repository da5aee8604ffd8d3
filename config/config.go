// Package config loads the daemon configuration file.
package config

import (
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config is the daemon configuration. Durations are JSON numbers in
// milliseconds.
type Config struct {
	// StorageDir holds the per-controller name cache.
	StorageDir string `json:"storage_dir"`
	// Transport selects "hci" raw sockets or an "uart" H4 port.
	Transport string `json:"transport"`
	// UARTDevice is the serial port path for the uart transport.
	UARTDevice string `json:"uart_device"`

	CommandTimeoutMs  int `json:"command_timeout_ms"`
	ReconnectPeriodMs int `json:"reconnect_period_ms"`
	PinTimeoutMs      int `json:"pin_timeout_ms"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		StorageDir:        "/var/lib/bluetooth",
		Transport:         "hci",
		CommandTimeoutMs:  100,
		ReconnectPeriodMs: 5000,
		PinTimeoutMs:      30000,
	}
}

// Load reads path over the defaults. A missing file is not an error;
// the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, errors.Wrapf(err, "can't read config %s", path)
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "can't parse config %s", path)
	}
	if err := cfg.validate(); err != nil {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Transport {
	case "hci":
	case "uart":
		if c.UARTDevice == "" {
			return errors.New("uart transport needs uart_device")
		}
	default:
		return errors.Errorf("unknown transport %q", c.Transport)
	}
	if c.CommandTimeoutMs <= 0 || c.ReconnectPeriodMs <= 0 || c.PinTimeoutMs <= 0 {
		return errors.New("timeouts must be positive")
	}
	return nil
}

// CommandTimeout converts the configured milliseconds.
func (c Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutMs) * time.Millisecond
}

func (c Config) ReconnectPeriod() time.Duration {
	return time.Duration(c.ReconnectPeriodMs) * time.Millisecond
}

func (c Config) PinTimeout() time.Duration {
	return time.Duration(c.PinTimeoutMs) * time.Millisecond
}
