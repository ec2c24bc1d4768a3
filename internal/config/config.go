// Package config holds the process configuration: defaults, an optional
// YAML file and MISSIONZ_* environment variables, applied in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abhisek/missionz/internal/governor"
)

// Config is the full process configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store"`
	User       UserConfig       `yaml:"user"`
	KV         KVConfig         `yaml:"kv"`
	Cache      CacheConfig      `yaml:"cache"`
	Governor   GovernorConfig   `yaml:"governor"`
	Completion CompletionConfig `yaml:"completion"`
	Generation GenerationConfig `yaml:"generation"`
	Replay     ReplayConfig     `yaml:"replay"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// StoreConfig selects the mission table backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`    // empty means the default sqlite path
}

// UserConfig identifies the session's user.
type UserConfig struct {
	ID   string `yaml:"id"`
	Tier string `yaml:"tier"`
}

// KVConfig selects where cache, queue and governor state live.
type KVConfig struct {
	Backend  string `yaml:"backend"` // "sqlite", "memory" or "redis"
	RedisURL string `yaml:"redis_url"`
}

// CacheConfig controls the free-tier result cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// GovernorConfig controls the free-tier request budget.
type GovernorConfig struct {
	HourlyLimit int `yaml:"hourly_limit"`
	WarnAt      int `yaml:"warn_at"`
}

// CompletionConfig controls the write-verify loop.
type CompletionConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
}

// GenerationConfig selects and time-boxes mission generation. An empty
// endpoint generates missions locally.
type GenerationConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	APIKey       string        `yaml:"api_key"`
	Timeout      time.Duration `yaml:"timeout"`
	RecheckDelay time.Duration `yaml:"recheck_delay"`
}

// ReplayConfig controls pending queue replay.
type ReplayConfig struct {
	Interval time.Duration `yaml:"interval"`
	Rate     float64       `yaml:"rate"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the metrics endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a Config with production defaults.
func Default() Config {
	return Config{
		Store:      StoreConfig{Driver: "sqlite"},
		User:       UserConfig{Tier: string(governor.TierFree)},
		KV:         KVConfig{Backend: "sqlite"},
		Cache:      CacheConfig{TTL: 5 * time.Minute},
		Governor:   GovernorConfig{HourlyLimit: governor.DefaultHourlyLimit, WarnAt: governor.DefaultWarnAt},
		Completion: CompletionConfig{MaxAttempts: 3, BackoffBase: 500 * time.Millisecond},
		Generation: GenerationConfig{Timeout: 15 * time.Second, RecheckDelay: 5 * time.Second},
		Replay:     ReplayConfig{Interval: time.Minute, Rate: 2},
		Log:        LogConfig{Level: "info", Format: "text"},
		Metrics:    MetricsConfig{Addr: ":9090"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (or
// MISSIONZ_CONFIG when path is empty; no file is fine) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("MISSIONZ_CONFIG")
	}
	if path != "" {
		var err error
		if cfg, err = LoadFile(path, cfg); err != nil {
			return Config{}, err
		}
	}
	return FromEnv(cfg)
}

// LoadFile overlays the YAML file at path onto base. Keys missing from
// the file keep their base value.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// FromEnv overlays MISSIONZ_* environment variables onto base.
func FromEnv(base Config) (Config, error) {
	cfg := base
	var errs []error

	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("MISSIONZ_DB_DRIVER", &cfg.Store.Driver)
	str("MISSIONZ_DB", &cfg.Store.DSN)
	str("MISSIONZ_USER", &cfg.User.ID)
	str("MISSIONZ_TIER", &cfg.User.Tier)
	str("MISSIONZ_KV_BACKEND", &cfg.KV.Backend)
	str("MISSIONZ_REDIS_URL", &cfg.KV.RedisURL)
	duration("MISSIONZ_CACHE_TTL", &cfg.Cache.TTL)
	integer("MISSIONZ_HOURLY_LIMIT", &cfg.Governor.HourlyLimit)
	integer("MISSIONZ_WARN_AT", &cfg.Governor.WarnAt)
	integer("MISSIONZ_MAX_ATTEMPTS", &cfg.Completion.MaxAttempts)
	duration("MISSIONZ_BACKOFF_BASE", &cfg.Completion.BackoffBase)
	str("MISSIONZ_GENERATION_ENDPOINT", &cfg.Generation.Endpoint)
	str("MISSIONZ_GENERATION_API_KEY", &cfg.Generation.APIKey)
	duration("MISSIONZ_GENERATION_TIMEOUT", &cfg.Generation.Timeout)
	duration("MISSIONZ_RECHECK_DELAY", &cfg.Generation.RecheckDelay)
	duration("MISSIONZ_REPLAY_INTERVAL", &cfg.Replay.Interval)
	float("MISSIONZ_REPLAY_RATE", &cfg.Replay.Rate)
	str("MISSIONZ_LOG_LEVEL", &cfg.Log.Level)
	str("MISSIONZ_LOG_FORMAT", &cfg.Log.Format)
	str("MISSIONZ_METRICS_ADDR", &cfg.Metrics.Addr)

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration can open a session.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if c.Store.DSN == "" {
			return errors.New("MISSIONZ_DB is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database driver: %q", c.Store.Driver)
	}

	if c.User.ID == "" {
		return errors.New("user id is required (--user or MISSIONZ_USER)")
	}
	if _, err := governor.ParseTier(c.User.Tier); err != nil {
		return err
	}

	switch c.KV.Backend {
	case "sqlite", "memory":
	case "redis":
		if c.KV.RedisURL == "" {
			return errors.New("MISSIONZ_REDIS_URL is required for the redis kv backend")
		}
	default:
		return fmt.Errorf("unknown kv backend: %q", c.KV.Backend)
	}

	if c.Governor.HourlyLimit <= 0 {
		return fmt.Errorf("hourly limit must be positive, got %d", c.Governor.HourlyLimit)
	}
	if c.Governor.WarnAt <= 0 || c.Governor.WarnAt > c.Governor.HourlyLimit {
		return fmt.Errorf("warn threshold must be within 1..%d, got %d", c.Governor.HourlyLimit, c.Governor.WarnAt)
	}
	if c.Completion.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", c.Completion.MaxAttempts)
	}
	if c.Completion.BackoffBase < 0 {
		return errors.New("backoff base must not be negative")
	}
	if c.Generation.Timeout <= 0 {
		return errors.New("generation timeout must be positive")
	}
	if c.Replay.Rate < 0 {
		return errors.New("replay rate must not be negative")
	}
	return nil
}
