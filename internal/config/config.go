package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the ctwizard configuration file.
type Config struct {
	Version string `yaml:"version"`

	// Tool is the conntrack executable, resolved through PATH when bare.
	Tool string `yaml:"tool"`

	Capture Capture `yaml:"capture"`
	Run     Run     `yaml:"run"`
	Log     Log     `yaml:"log"`
	History History `yaml:"history"`
}

type Capture struct {
	Dir        string `yaml:"dir"`
	Prefix     string `yaml:"prefix"`
	Ext        string `yaml:"ext"`
	FlushEvery uint64 `yaml:"flush_every"`
	// MaxBytes caps the bytes appended by one run; 0 disables the cap.
	MaxBytes uint64 `yaml:"max_bytes"`
}

type Run struct {
	GracePeriod  time.Duration `yaml:"grace_period"`
	DrainTimeout time.Duration `yaml:"drain_timeout"`
	// MaxDuration stops a run after this long; 0 means no limit.
	MaxDuration time.Duration `yaml:"max_duration"`
}

type Log struct {
	Level  string   `yaml:"level"`
	Writer []string `yaml:"writer"`
	File   LogFile  `yaml:"file"`
}

type LogFile struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type History struct {
	// DSN of the sqlite run journal; empty disables it.
	DSN string `yaml:"dsn"`
}

// NewConfig returns the defaults.
func NewConfig() *Config {
	return &Config{
		Version: "1.0.0",
		Tool:    "conntrack",
		Capture: Capture{
			Dir:        "/var",
			Prefix:     "conntrack",
			Ext:        "conntrackcap",
			FlushEvery: 1,
		},
		Run: Run{
			GracePeriod:  3 * time.Second,
			DrainTimeout: time.Second,
		},
		Log: Log{
			Level:  "info",
			Writer: []string{"file"},
			File: LogFile{
				Path:       "ctwizard.log",
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
		History: History{
			DSN: "ctwizard.sqlite3",
		},
	}
}

// Load reads path over the defaults. A missing file is not an error when
// optional is set.
func Load(path string, optional bool) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Tool == "" {
		return errors.New("tool must not be empty")
	}
	if c.Run.GracePeriod <= 0 {
		return fmt.Errorf("run.grace_period must be positive, got %s", c.Run.GracePeriod)
	}
	if c.Run.DrainTimeout <= 0 {
		return fmt.Errorf("run.drain_timeout must be positive, got %s", c.Run.DrainTimeout)
	}
	if c.Run.MaxDuration < 0 {
		return fmt.Errorf("run.max_duration must not be negative, got %s", c.Run.MaxDuration)
	}
	for _, w := range c.Log.Writer {
		switch w {
		case "console", "file":
		default:
			return fmt.Errorf("log.writer: unknown writer %q", w)
		}
	}
	return nil
}
