// Package config loads xblive's YAML configuration file, the sole
// recognized options being the logging setup and the discovery
// scanner's tunables.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jihwankim/xblive/pkg/discovery"
	"github.com/jihwankim/xblive/pkg/xlog"
)

// Config is the root of xblive's configuration file.
type Config struct {
	Framework FrameworkConfig `yaml:"framework"`
	Discovery DiscoveryConfig `yaml:"discovery"`
}

// FrameworkConfig contains general settings.
type FrameworkConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Duration wraps time.Duration so config files write human-friendly
// strings like "3s" or "2m" rather than raw nanosecond integers; yaml.v3
// has no built-in notion of time.Duration, so this implements
// yaml.Marshaler/Unmarshaler itself via time.ParseDuration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// DiscoveryConfig mirrors discovery.Config with YAML tags and a payload
// name in place of the internal Payload enum.
type DiscoveryConfig struct {
	ScanFrequency      Duration `yaml:"scan_frequency"`
	DisconnectTimeout  Duration `yaml:"disconnect_timeout"`
	TimeoutAttempts    int      `yaml:"timeout_attempts"`
	RemoveOnDisconnect bool     `yaml:"remove_on_disconnect"`
	AutoStart          bool     `yaml:"auto_start"`
	Payload            string   `yaml:"payload"`
	IncludeICSBridge   bool     `yaml:"include_ics_bridge"`
}

// DefaultConfig returns the documented defaults: info/text logging, a
// 3s scan frequency, a 2x timeout multiplier, eviction disabled,
// auto-start disabled.
func DefaultConfig() *Config {
	d := discovery.DefaultConfig()
	return &Config{
		Framework: FrameworkConfig{
			LogLevel:  string(xlog.LevelInfo),
			LogFormat: string(xlog.FormatText),
		},
		Discovery: DiscoveryConfig{
			ScanFrequency:      Duration(d.ScanFrequency),
			TimeoutAttempts:    d.TimeoutAttempts,
			RemoveOnDisconnect: d.RemoveOnDisconnect,
			AutoStart:          false,
			Payload:            "jtag",
		},
	}
}

// Load reads and parses a YAML config file, expanding ${VAR} /
// $VAR references against the process environment before parsing. A
// missing file is not an error: Load returns DefaultConfig() instead,
// so xblive runs with sane defaults out of the box.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = "xblive.yaml"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := []byte(os.ExpandEnv(string(data)))
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Validate checks the recognized fields for obviously broken values.
func (c *Config) Validate() error {
	if c.Discovery.ScanFrequency <= 0 {
		return fmt.Errorf("config: discovery.scan_frequency must be positive")
	}
	if c.Discovery.DisconnectTimeout < 0 {
		return fmt.Errorf("config: discovery.disconnect_timeout must not be negative")
	}
	switch c.Discovery.Payload {
	case "", "jtag", "devkit":
	default:
		return fmt.Errorf("config: discovery.payload must be %q or %q, got %q", "jtag", "devkit", c.Discovery.Payload)
	}
	return nil
}

// ScannerConfig translates the YAML configuration into a
// discovery.Config ready to pass to discovery.NewScanner.
func (c *Config) ScannerConfig() discovery.Config {
	payload := discovery.PayloadJtag
	if c.Discovery.Payload == "devkit" {
		payload = discovery.PayloadDevkit
	}

	return discovery.Config{
		ScanFrequency:      time.Duration(c.Discovery.ScanFrequency),
		DisconnectTimeout:  time.Duration(c.Discovery.DisconnectTimeout),
		TimeoutAttempts:    c.Discovery.TimeoutAttempts,
		RemoveOnDisconnect: c.Discovery.RemoveOnDisconnect,
		AutoStart:          c.Discovery.AutoStart,
		Payload:            payload,
		IncludeICSBridge:   c.Discovery.IncludeICSBridge,
	}
}

// LoggerConfig translates the YAML configuration into an xlog.LoggerConfig.
func (c *Config) LoggerConfig() xlog.LoggerConfig {
	return xlog.LoggerConfig{
		Level:  xlog.ParseLevel(c.Framework.LogLevel),
		Format: xlog.Format(c.Framework.LogFormat),
	}
}
