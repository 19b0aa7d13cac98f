package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for the capture worker and its consumer.
// Fields may be loaded from a JSON or YAML file and overridden by command-line flags.
type Config struct {
	Debug bool `json:"debug" yaml:"debug"`

	// Source descriptor; empty keeps the worker idle.
	CaptureSource string `json:"capture_source" yaml:"capture_source"`

	// Capture parameters
	ScalePercent          int     `json:"scale_percent" yaml:"scale_percent"`
	FPS                   float64 `json:"fps" yaml:"fps"`
	RequestWaitMS         int     `json:"request_wait_ms" yaml:"request_wait_ms"`
	IdleWaitMS            int     `json:"idle_wait_ms" yaml:"idle_wait_ms"`
	RetryDelayMS          int     `json:"retry_delay_ms" yaml:"retry_delay_ms"`
	BackpressureThreshold int     `json:"backpressure_threshold" yaml:"backpressure_threshold"`

	// Consumer parameters
	RequestIntervalMS int    `json:"request_interval_ms" yaml:"request_interval_ms"`
	RequestTimeoutMS  int    `json:"request_timeout_ms" yaml:"request_timeout_ms"`
	OutputDir         string `json:"output_dir" yaml:"output_dir"`
	SaveEvery         int    `json:"save_every" yaml:"save_every"`

	// How often the config file is polled for a new capture_source. 0 disables.
	ReloadIntervalMS int `json:"reload_interval_ms" yaml:"reload_interval_ms"`
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		Debug:                 false,
		CaptureSource:         "",
		ScalePercent:          75,
		FPS:                   120,
		RequestWaitMS:         20,
		IdleWaitMS:            20,
		RetryDelayMS:          100,
		BackpressureThreshold: 2,
		RequestIntervalMS:     33,
		RequestTimeoutMS:      500,
		OutputDir:             "",
		SaveEvery:             0,
		ReloadIntervalMS:      1000,
	}
}

// Validate clamps/normalizes values to safe ranges.
func (c *Config) Validate() error {
	c.CaptureSource = strings.TrimSpace(c.CaptureSource)
	if c.ScalePercent <= 0 || c.ScalePercent > 100 {
		c.ScalePercent = 75
	}
	if c.FPS <= 0 {
		c.FPS = 120
	}
	if c.RequestWaitMS <= 0 {
		c.RequestWaitMS = 20
	}
	if c.IdleWaitMS <= 0 {
		c.IdleWaitMS = 20
	}
	if c.RetryDelayMS < 0 {
		c.RetryDelayMS = 100
	}
	if c.BackpressureThreshold <= 0 {
		c.BackpressureThreshold = 2
	}
	if c.RequestIntervalMS <= 0 {
		c.RequestIntervalMS = 33
	}
	if c.RequestTimeoutMS <= 0 {
		c.RequestTimeoutMS = 500
	}
	if c.SaveEvery < 0 {
		c.SaveEvery = 0
	}
	if c.ReloadIntervalMS < 0 {
		c.ReloadIntervalMS = 0
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load attempts to read configuration from the given JSON or YAML file path. If the
// file does not exist it returns DefaultConfig(). On decode error it returns defaults
// with the error. Environment variables in the file are expanded.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	data = []byte(os.ExpandEnv(string(data)))
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return DefaultConfig(), fmt.Errorf("parse config: %w", err)
	}
	_ = cfg.Validate()
	return cfg, nil
}

// Save writes the configuration to the given path, in YAML for .yaml/.yml
// paths and JSON otherwise.
func (c *Config) Save(path string) error {
	_ = c.Validate()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
