// Package config loads analyzer configuration from a YAML file. Every
// field has a default, a missing file yields the defaults, and invalid
// values are normalized rather than fatal so a partial config never keeps
// the server from starting.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML can carry string forms like "100ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full analyzer configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Dataset  DatasetConfig  `yaml:"dataset"`
	Playback PlaybackConfig `yaml:"playback"`
	Outage   OutageConfig   `yaml:"outage"`
}

// ServerConfig controls the HTTP listeners.
type ServerConfig struct {
	ListenAddr      string   `yaml:"listen_addr"`
	MetricsAddr     string   `yaml:"metrics_addr"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig mirrors the logging package's Config.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatasetConfig controls ingestion.
type DatasetConfig struct {
	// Autoload names a telemetry file loaded at startup. Empty skips it.
	Autoload    string `yaml:"autoload"`
	MaxWarnings int    `yaml:"max_warnings"`
}

// PlaybackConfig controls the replay loop.
type PlaybackConfig struct {
	// TickInterval drives the server-side advancement loop. Zero disables
	// the loop; clients then step playback through the API.
	TickInterval Duration `yaml:"tick_interval"`
	MinSpeed     float64  `yaml:"min_speed"`
	MaxSpeed     float64  `yaml:"max_speed"`
}

// OutageConfig controls outage analysis defaults.
type OutageConfig struct {
	DefaultThresholdDB float64 `yaml:"default_threshold_db"`
}

// Default returns the configuration used when no file is provided.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			MetricsAddr:     ":9090",
			ShutdownTimeout: Duration(5 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Dataset: DatasetConfig{
			MaxWarnings: 100,
		},
		Playback: PlaybackConfig{
			TickInterval: Duration(100 * time.Millisecond),
			MinSpeed:     1,
			MaxSpeed:     500,
		},
		Outage: OutageConfig{
			DefaultThresholdDB: 3.0,
		},
	}
}

// Load reads the configuration at path, layered over the defaults. An
// empty path or a missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

// normalize folds out-of-range values back to their defaults.
func (c *Config) normalize() {
	def := Default()
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = def.Server.ListenAddr
	}
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = def.Server.MetricsAddr
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	if c.Dataset.MaxWarnings < 0 {
		c.Dataset.MaxWarnings = def.Dataset.MaxWarnings
	}
	if c.Playback.TickInterval < 0 {
		c.Playback.TickInterval = def.Playback.TickInterval
	}
	if c.Playback.MinSpeed <= 0 || c.Playback.MaxSpeed < c.Playback.MinSpeed {
		c.Playback.MinSpeed = def.Playback.MinSpeed
		c.Playback.MaxSpeed = def.Playback.MaxSpeed
	}
	if c.Outage.DefaultThresholdDB < 0 {
		c.Outage.DefaultThresholdDB = def.Outage.DefaultThresholdDB
	}
}
