// Package config loads the resilience settings from a YAML file
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jzx17/resilience/pkg/network"
	"github.com/jzx17/resilience/pkg/retry"
	"github.com/jzx17/resilience/pkg/stuck"
	"github.com/jzx17/resilience/pkg/types"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration
type Config struct {
	Retry   retry.Policy  `yaml:"retry"`
	Network NetworkConfig `yaml:"network"`
	Stuck   stuck.Config  `yaml:"stuck"`
	Preview PreviewConfig `yaml:"preview"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// NetworkConfig holds the monitor schedule and the probe target
type NetworkConfig struct {
	network.Config `yaml:",inline"`
	ProbeURL       string `yaml:"probe_url"` // small same-origin static file
}

// PreviewConfig holds the signing endpoint and analysis polling settings
type PreviewConfig struct {
	SignEndpoint     string        `yaml:"sign_endpoint"`
	AnalysisEndpoint string        `yaml:"analysis_endpoint"`
	Token            string        `yaml:"token"`
	URLExpiry        time.Duration `yaml:"url_expiry"`
	PollInterval     time.Duration `yaml:"poll_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the configuration used when a file leaves a field out
func Default() Config {
	return Config{
		Retry:   retry.DefaultPolicy(),
		Network: NetworkConfig{Config: network.DefaultConfig()},
		Stuck:   stuck.DefaultConfig(),
		Preview: PreviewConfig{
			URLExpiry:    time.Hour,
			PollInterval: 5 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Addr: ":9090"},
	}
}

// Load reads configuration from a YAML file, expanding ${VAR} references
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid field at once
func (c *Config) Validate() error {
	var errs []error
	if err := c.Retry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("retry: %w", err))
	}

	for _, f := range []struct {
		name string
		d    time.Duration
	}{
		{"network.healthy_interval", c.Network.HealthyInterval},
		{"network.limited_interval", c.Network.LimitedInterval},
		{"network.probe_timeout", c.Network.ProbeTimeout},
		{"network.latency_threshold", c.Network.LatencyThreshold},
		{"stuck.threshold", c.Stuck.Threshold},
		{"stuck.check_interval", c.Stuck.CheckInterval},
		{"preview.url_expiry", c.Preview.URLExpiry},
		{"preview.poll_interval", c.Preview.PollInterval},
	} {
		if f.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", f.name, f.d))
		}
	}

	for _, f := range []struct{ name, value string }{
		{"network.probe_url", c.Network.ProbeURL},
		{"preview.sign_endpoint", c.Preview.SignEndpoint},
		{"preview.analysis_endpoint", c.Preview.AnalysisEndpoint},
	} {
		if f.value == "" {
			continue
		}
		if u, err := url.Parse(f.value); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s %q is not an absolute url", f.name, f.value))
		}
	}

	if _, err := c.Logging.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be text or json", c.Logging.Format))
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics.addr is required when metrics are enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", types.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// SlogLevel parses the configured level
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging.level %q: %w", l.Level, err)
	}
	return level, nil
}
