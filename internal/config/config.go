// Package config loads qa-validator settings from a .env file, an optional
// YAML file and QAV_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/qa-validator/internal/fixture"
	"github.com/rcliao/qa-validator/internal/logging"
	"github.com/rcliao/qa-validator/internal/model"
	"github.com/rcliao/qa-validator/internal/pipeline"
)

// Environment variable names.
const (
	EnvConfig      = "QAV_CONFIG"
	EnvLogLevel    = "QAV_LOG_LEVEL"
	EnvLogFormat   = "QAV_LOG_FORMAT"
	EnvTick        = "QAV_TICK"
	EnvSettleDelay = "QAV_SETTLE_DELAY"
	EnvTemplate    = "QAV_TEMPLATE"
)

// Config holds all runtime settings.
type Config struct {
	LogLevel    string           `yaml:"log_level"`
	LogFormat   string           `yaml:"log_format"`
	Tick        time.Duration    `yaml:"tick"`
	SettleDelay time.Duration    `yaml:"settle_delay"`
	Template    string           `yaml:"template"`
	Stages      []pipeline.Stage `yaml:"stages"`
}

// Load builds a Config. path overrides QAV_CONFIG; when both are empty no
// file is read. A missing .env file is not an error.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	var cfg Config
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfig))
	}
	if path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = fileCfg
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads a YAML configuration file without applying env or defaults.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		c.LogFormat = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTemplate)); v != "" {
		c.Template = v
	}
	for name, dst := range map[string]*time.Duration{
		EnvTick:        &c.Tick,
		EnvSettleDelay: &c.SettleDelay,
	} {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", name, err)
		}
		*dst = d
	}
	return nil
}

func (c *Config) applyDefaults() error {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	defaults := pipeline.DefaultConfig()
	if c.Tick <= 0 {
		c.Tick = defaults.Tick
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = defaults.SettleDelay
	}
	if len(c.Stages) == 0 {
		stages, err := fixture.Stages()
		if err != nil {
			return fmt.Errorf("default stages: %w", err)
		}
		c.Stages = stages
	}
	return nil
}

// Validate checks the values that cannot be defaulted.
func (c Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log format must be text or json, got %q", c.LogFormat)
	}
	for _, s := range c.Stages {
		if strings.TrimSpace(s.Name) == "" {
			return errors.New("stage name must not be empty")
		}
		if s.Duration < 0 {
			return fmt.Errorf("stage %q has negative duration", s.Name)
		}
	}
	return nil
}

// Level returns the parsed log level.
func (c Config) Level() slog.Level {
	level, _ := logging.ParseLevel(c.LogLevel)
	return level
}

// PipelineConfig returns the pipeline settings.
func (c Config) PipelineConfig(logger *slog.Logger) pipeline.Config {
	return pipeline.Config{
		Stages:      c.Stages,
		Tick:        c.Tick,
		SettleDelay: c.SettleDelay,
		Logger:      logger,
	}
}

// LoadTemplate returns the configured source template, or the embedded one.
func (c Config) LoadTemplate() (model.Fragment, error) {
	if c.Template != "" {
		return fixture.LoadTemplate(c.Template)
	}
	return fixture.Template()
}
