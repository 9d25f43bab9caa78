// Package config defines the fieldscout configuration file.
package config

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/fieldscout/analyzer"
	"go.viam.com/fieldscout/capture"
	"go.viam.com/fieldscout/device"
	"go.viam.com/fieldscout/logging"
	"go.viam.com/fieldscout/sampler"
)

// Config is the whole configuration file.
type Config struct {
	Devices      DevicesConfig       `json:"devices"`
	Capture      capture.Constraints `json:"capture"`
	Sampler      SamplerConfig       `json:"sampler"`
	Analyzer     AnalyzerConfig      `json:"analyzer"`
	ContextLabel string              `json:"context_label"`
	Web          WebConfig           `json:"web"`
	Log          logging.Config      `json:"log"`

	// ConfigFilePath is the file this config was read from, if any.
	ConfigFilePath string `json:"-"`
}

// DevicesConfig controls device discovery.
type DevicesConfig struct {
	// Dir is watched for video nodes appearing and disappearing.
	Dir      string `json:"dir,omitempty"`
	Debounce string `json:"debounce,omitempty"`
}

// SamplerConfig is the on-disk form of sampler.Config.
type SamplerConfig struct {
	Interval    string  `json:"interval,omitempty"`
	Scale       float64 `json:"scale,omitempty"`
	JPEGQuality int     `json:"jpeg_quality,omitempty"`
}

// AnalyzerConfig selects and configures the analyzer.
type AnalyzerConfig struct {
	Type          string                 `json:"type"`
	Attributes    map[string]interface{} `json:"attributes,omitempty"`
	RatePerMinute float64                `json:"rate_per_minute,omitempty"`
}

// WebConfig configures the HTTP server.
type WebConfig struct {
	Address     string   `json:"address,omitempty"`
	CORSOrigins []string `json:"cors_origins,omitempty"`
}

// Default values filled in by applyDefaults.
const (
	DefaultAddress      = "localhost:8090"
	DefaultContextLabel = analyzer.Cotton
)

func (c *Config) applyDefaults() {
	if c.Devices.Dir == "" {
		c.Devices.Dir = device.DefaultDeviceDir
	}
	if c.Devices.Debounce == "" {
		c.Devices.Debounce = device.DefaultDebounce.String()
	}
	defaultConstraints := capture.DefaultConstraints()
	if c.Capture.Width == 0 {
		c.Capture.Width = defaultConstraints.Width
	}
	if c.Capture.Height == 0 {
		c.Capture.Height = defaultConstraints.Height
	}
	if c.Sampler.Interval == "" {
		c.Sampler.Interval = sampler.DefaultInterval.String()
	}
	if c.Sampler.Scale == 0 {
		c.Sampler.Scale = sampler.DefaultScale
	}
	if c.Sampler.JPEGQuality == 0 {
		c.Sampler.JPEGQuality = sampler.DefaultJPEGQuality
	}
	if c.Analyzer.Type == "" {
		c.Analyzer.Type = analyzer.TypeGemini
	}
	if c.Analyzer.RatePerMinute == 0 {
		c.Analyzer.RatePerMinute = analyzer.DefaultRequestsPerMinute
	}
	if c.ContextLabel == "" {
		c.ContextLabel = string(DefaultContextLabel)
	}
	if c.Web.Address == "" {
		c.Web.Address = DefaultAddress
	}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate() error {
	if _, err := c.DebounceInterval(); err != nil {
		return goutils.NewConfigValidationError("devices.debounce", err)
	}
	if c.Capture.Width < 0 || c.Capture.Height < 0 {
		return goutils.NewConfigValidationError("capture",
			errors.Errorf("dimensions must be positive, got %dx%d", c.Capture.Width, c.Capture.Height))
	}
	samplerConf, err := c.SamplerConfig()
	if err != nil {
		return goutils.NewConfigValidationError("sampler.interval", err)
	}
	if err := samplerConf.Validate("sampler"); err != nil {
		return err
	}
	if err := c.Analyzer.Validate("analyzer"); err != nil {
		return err
	}
	if _, err := analyzer.ParseDatasetLabel(c.ContextLabel); err != nil {
		return goutils.NewConfigValidationError("context_label", err)
	}
	if c.Web.Address == "" {
		return goutils.NewConfigValidationFieldRequiredError("web", "address")
	}
	if c.Log.Level != "" {
		if _, err := logging.LevelFromString(c.Log.Level); err != nil {
			return goutils.NewConfigValidationError("log.level", err)
		}
	}
	if c.Log.File != nil && c.Log.File.Path == "" {
		return goutils.NewConfigValidationFieldRequiredError("log.file", "path")
	}
	return nil
}

// Validate checks the analyzer type is known and its rate is sane.
func (c *AnalyzerConfig) Validate(path string) error {
	if c.Type == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "type")
	}
	known := false
	for _, t := range analyzer.RegisteredTypes() {
		if t == c.Type {
			known = true
		}
	}
	if !known {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("unknown analyzer type %q (known: %v)", c.Type, analyzer.RegisteredTypes()))
	}
	if c.RatePerMinute < 0 {
		return goutils.NewConfigValidationError(fmt.Sprintf("%s.rate_per_minute", path),
			errors.Errorf("must not be negative, got %v", c.RatePerMinute))
	}
	return nil
}

// SamplerConfig converts the sampler section.
func (c *Config) SamplerConfig() (sampler.Config, error) {
	interval, err := time.ParseDuration(c.Sampler.Interval)
	if err != nil {
		return sampler.Config{}, errors.Wrapf(err, "invalid interval %q", c.Sampler.Interval)
	}
	return sampler.Config{Interval: interval, Scale: c.Sampler.Scale, JPEGQuality: c.Sampler.JPEGQuality}, nil
}

// DebounceInterval parses devices.debounce.
func (c *Config) DebounceInterval() (time.Duration, error) {
	if c.Devices.Debounce == "" {
		return device.DefaultDebounce, nil
	}
	d, err := time.ParseDuration(c.Devices.Debounce)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid debounce %q", c.Devices.Debounce)
	}
	return d, nil
}

// Label returns the parsed context label.
func (c *Config) Label() analyzer.DatasetLabel {
	label, err := analyzer.ParseDatasetLabel(c.ContextLabel)
	if err != nil {
		return DefaultContextLabel
	}
	return label
}
