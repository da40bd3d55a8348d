// Package daemon manages the MOODI server lifecycle and configuration.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
	_ "time/tzdata" // game.timezone must resolve on hosts without zoneinfo

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/moodi-app/moodi/internal/domain"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all server configuration.
type Config struct {
	API       APIConfig       `toml:"api"`
	Store     StoreConfig     `toml:"store"`
	LLM       LLMConfig       `toml:"llm"`
	Cache     CacheConfig     `toml:"cache"`
	Game      GameConfig      `toml:"game"`
	Logging   LoggingConfig   `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host           string  `toml:"host"`
	Port           int     `toml:"port"`
	RequestTimeout string  `toml:"request_timeout"`
	RateLimitRPS   float64 `toml:"rate_limit_rps"`
	RateLimitBurst int     `toml:"rate_limit_burst"`
}

// StoreConfig selects and configures the game store.
type StoreConfig struct {
	Driver      string `toml:"driver"`
	Dir         string `toml:"dir"`
	DatabaseURL string `toml:"database_url"`
	MaxConns    int32  `toml:"max_conns"`
}

// LLMConfig configures the OpenAI-compatible provider.
type LLMConfig struct {
	BaseURL         string `toml:"base_url"`
	APIKey          string `toml:"api_key"`
	Model           string `toml:"model"`
	ModerationModel string `toml:"moderation_model"`
	Moderation      bool   `toml:"moderation"`
	Timeout         string `toml:"timeout"`
}

// CacheConfig configures the Redis artifact cache.
type CacheConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	TTL      string `toml:"ttl"`
}

// GameConfig controls gamification rules that vary per deployment.
type GameConfig struct {
	Timezone string             `toml:"timezone"`
	Unlocks  []domain.UnlockDef `toml:"unlocks"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// TelemetryConfig controls the metrics endpoint.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := moodiHome()
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			RequestTimeout: "60s",
			RateLimitRPS:   2,
			RateLimitBurst: 5,
		},
		Store: StoreConfig{
			Driver:   DriverSQLite,
			Dir:      homeDir,
			MaxConns: 10,
		},
		LLM: LLMConfig{
			BaseURL:         "https://api.openai.com/v1",
			Model:           "gpt-4.1-mini",
			ModerationModel: "omni-moderation-latest",
			Moderation:      true,
			Timeout:         "30s",
		},
		Cache: CacheConfig{
			Addr: "127.0.0.1:6379",
			TTL:  "24h",
		},
		Game: GameConfig{
			Timezone: "UTC",
			Unlocks:  domain.DefaultUnlockCatalog(),
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       filepath.Join(homeDir, "moodi.log"),
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
	}
}

// LoadConfig reads $MOODI_HOME/config.toml, falling back to defaults, then
// applies .env files and environment overrides.
func LoadConfig() (Config, error) {
	home := moodiHome()
	loadDotEnv(filepath.Join(home, ".env"), ".env")
	return loadConfigFile(filepath.Join(home, "config.toml"))
}

func loadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("stat config: %w", err)
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadDotEnv loads each existing file. Variables already set win.
func loadDotEnv(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// applyEnv overlays environment variables on cfg.
func applyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("MOODI_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("MOODI_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("MOODI_DATABASE_URL"); v != "" {
		cfg.Store.Driver = DriverPostgres
		cfg.Store.DatabaseURL = v
	}
	if v := os.Getenv("MOODI_REDIS_ADDR"); v != "" {
		cfg.Cache.Enabled = true
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("MOODI_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("MOODI_TIMEZONE"); v != "" {
		cfg.Game.Timezone = v
	}
}

// Validate reports settings that would prevent the server from starting.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Dir == "" {
			errs = append(errs, errors.New("store.dir is required for sqlite"))
		}
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("store.database_url is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q: want sqlite or postgres", c.Store.Driver))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	for _, u := range c.Game.Unlocks {
		if u.ID == "" || u.Threshold < 0 {
			errs = append(errs, fmt.Errorf("game.unlocks: invalid entry %+v", u))
		}
	}
	for name, s := range map[string]string{
		"api.request_timeout": c.API.RequestTimeout,
		"llm.timeout":         c.LLM.Timeout,
		"cache.ttl":           c.Cache.TTL,
	} {
		if s == "" {
			continue
		}
		if _, err := time.ParseDuration(s); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Location returns the game timezone that defines calendar days.
func (c Config) Location() (*time.Location, error) {
	if c.Game.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Game.Timezone)
	if err != nil {
		return nil, fmt.Errorf("game.timezone: %w", err)
	}
	return loc, nil
}

// SaveConfig writes the config to $MOODI_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(moodiHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// moodiHome returns the MOODI data directory.
func moodiHome() string {
	if env := os.Getenv("MOODI_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".moodi")
}

// MoodiHome is exported for use by other packages.
func MoodiHome() string {
	return moodiHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
