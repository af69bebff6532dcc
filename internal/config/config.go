// Package config loads HeartFlow settings from the environment.
package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, falling back to system environment variables")
	}
}

type Config struct {
	LogLevel  string `env:"HEARTFLOW_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"HEARTFLOW_LOG_FORMAT" envDefault:"console"`
	LogOutput string `env:"HEARTFLOW_LOG_OUTPUT" envDefault:"stdout"`
	LogFile   string `env:"HEARTFLOW_LOG_FILE"`

	BaseInterval time.Duration `env:"HEARTFLOW_BASE_INTERVAL" envDefault:"60s"`
	MinInterval  time.Duration `env:"HEARTFLOW_MIN_INTERVAL" envDefault:"15s"`
	MaxInterval  time.Duration `env:"HEARTFLOW_MAX_INTERVAL" envDefault:"10m"`

	Talkative     float64 `env:"HEARTFLOW_TALKATIVE" envDefault:"0.5"`
	Personality   string  `env:"HEARTFLOW_PERSONALITY" envDefault:"companion"`
	InnerThoughts bool    `env:"HEARTFLOW_INNER_THOUGHTS" envDefault:"true"`
	Curiosity     bool    `env:"HEARTFLOW_CURIOSITY" envDefault:"true"`
	ProactiveCare bool    `env:"HEARTFLOW_PROACTIVE_CARE" envDefault:"true"`

	WMCapacity         int           `env:"HEARTFLOW_WM_CAPACITY" envDefault:"10"`
	WMPromoteThreshold float64       `env:"HEARTFLOW_WM_PROMOTE_THRESHOLD" envDefault:"0.6"`
	WMRetention        time.Duration `env:"HEARTFLOW_WM_RETENTION" envDefault:"30m"`

	MemoryBackend string `env:"HEARTFLOW_MEMORY_BACKEND" envDefault:"file"`
	FileStorePath string `env:"HEARTFLOW_FILESTORE_PATH" envDefault:"data/memories.json"`
	SQLitePath    string `env:"HEARTFLOW_SQLITE_PATH" envDefault:"data/memories.db"`
	RedisURL      string `env:"HEARTFLOW_REDIS_URL"`

	SnapshotPath     string        `env:"HEARTFLOW_SNAPSHOT_PATH" envDefault:"data/agent_state.json"`
	SnapshotInterval time.Duration `env:"HEARTFLOW_SNAPSHOT_INTERVAL" envDefault:"30s"`
}

func New() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.MinInterval <= 0 {
		return fmt.Errorf("HEARTFLOW_MIN_INTERVAL must be positive, got %s", c.MinInterval)
	}
	if c.BaseInterval < c.MinInterval {
		return fmt.Errorf("HEARTFLOW_BASE_INTERVAL %s is below HEARTFLOW_MIN_INTERVAL %s", c.BaseInterval, c.MinInterval)
	}
	if c.MaxInterval < c.BaseInterval {
		return fmt.Errorf("HEARTFLOW_MAX_INTERVAL %s is below HEARTFLOW_BASE_INTERVAL %s", c.MaxInterval, c.BaseInterval)
	}
	if c.Talkative < 0 || c.Talkative > 1 {
		return fmt.Errorf("HEARTFLOW_TALKATIVE must be in [0,1], got %g", c.Talkative)
	}
	if c.WMCapacity <= 0 {
		return fmt.Errorf("HEARTFLOW_WM_CAPACITY must be positive, got %d", c.WMCapacity)
	}
	if c.WMPromoteThreshold < 0 || c.WMPromoteThreshold > 1 {
		return fmt.Errorf("HEARTFLOW_WM_PROMOTE_THRESHOLD must be in [0,1], got %g", c.WMPromoteThreshold)
	}
	if c.WMRetention <= 0 {
		return fmt.Errorf("HEARTFLOW_WM_RETENTION must be positive, got %s", c.WMRetention)
	}
	switch c.MemoryBackend {
	case "file", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown HEARTFLOW_MEMORY_BACKEND %q (want file, sqlite or redis)", c.MemoryBackend)
	}
	if c.MemoryBackend == "redis" && c.RedisURL == "" {
		return fmt.Errorf("HEARTFLOW_MEMORY_BACKEND is redis but HEARTFLOW_REDIS_URL is not set")
	}
	if c.SnapshotInterval <= 0 {
		return fmt.Errorf("HEARTFLOW_SNAPSHOT_INTERVAL must be positive, got %s", c.SnapshotInterval)
	}
	return nil
}
