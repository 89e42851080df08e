// Package config loads the service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the file and environment are silent.
const (
	// DefaultAddr is the default listen address.
	DefaultAddr = ":8317"
	// DefaultJWTExpiry is the default token lifetime.
	DefaultJWTExpiry = 24 * time.Hour
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"` // Listen address, e.g. ":8317".
}

// DatabaseConfig holds persistence settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // Postgres or SQLite DSN.
}

// JWTConfig holds token signing settings.
type JWTConfig struct {
	Secret        string `yaml:"secret"`         // HS256 signing secret.
	ExpiryMinutes int    `yaml:"expiry-minutes"` // Token lifetime in minutes.
}

// RedisConfig holds broadcast transport settings. Empty addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // logrus level name.
	File  string `yaml:"file"`  // Optional rotated log file.
}

// SweepConfig controls the in-process expiry sweep ticker.
type SweepConfig struct {
	IntervalMinutes int `yaml:"interval-minutes"` // 0 disables the ticker.
}

// SeedConfig describes the bootstrap super user created on migrate.
type SeedConfig struct {
	Code     string `yaml:"code"`
	Login    string `yaml:"login"`
	Password string `yaml:"password"`
}

// Config is the root configuration document.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Seed     SeedConfig     `yaml:"seed"`
}

// JWTExpiry returns the configured token lifetime.
func (c Config) JWTExpiry() time.Duration {
	if c.JWT.ExpiryMinutes <= 0 {
		return DefaultJWTExpiry
	}
	return time.Duration(c.JWT.ExpiryMinutes) * time.Minute
}

// SweepInterval returns the ticker interval, or zero when disabled.
func (c Config) SweepInterval() time.Duration {
	if c.Sweep.IntervalMinutes <= 0 {
		return 0
	}
	return time.Duration(c.Sweep.IntervalMinutes) * time.Minute
}

// ResolveConfigPath picks the config file path from the flag value, the
// CONFIG_PATH environment variable, or the default location.
func ResolveConfigPath(flagValue string) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	if envPath := strings.TrimSpace(os.Getenv("CONFIG_PATH")); envPath != "" {
		return envPath
	}
	return "config.yaml"
}

// Load reads the YAML file at path and applies environment overrides.
// A missing file is not an error; the environment alone can configure
// the service.
func Load(path string) (Config, error) {
	var cfg Config

	data, errRead := os.ReadFile(path)
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
		}
	} else if !os.IsNotExist(errRead) {
		return Config{}, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	applyEnvOverrides(&cfg)

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultAddr
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return Config{}, fmt.Errorf("config: missing database dsn")
	}
	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		return Config{}, fmt.Errorf("config: missing jwt secret")
	}
	return cfg, nil
}

// applyEnvOverrides lets the environment win over file values.
func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("SERVER_ADDR")); v != "" {
		cfg.Server.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		cfg.Server.Addr = ":" + v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_DSN")); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("JWT_SECRET")); v != "" {
		cfg.JWT.Secret = v
	}
	if v := strings.TrimSpace(os.Getenv("JWT_EXPIRY_MINUTES")); v != "" {
		if minutes, errParse := strconv.Atoi(v); errParse == nil {
			cfg.JWT.ExpiryMinutes = minutes
		}
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.Redis.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_PASSWORD")); v != "" {
		cfg.Redis.Password = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_DB")); v != "" {
		if dbIndex, errParse := strconv.Atoi(v); errParse == nil {
			cfg.Redis.DB = dbIndex
		}
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FILE")); v != "" {
		cfg.Log.File = v
	}
	if v := strings.TrimSpace(os.Getenv("SWEEP_INTERVAL_MINUTES")); v != "" {
		if minutes, errParse := strconv.Atoi(v); errParse == nil {
			cfg.Sweep.IntervalMinutes = minutes
		}
	}
	if v := strings.TrimSpace(os.Getenv("SEED_CODE")); v != "" {
		cfg.Seed.Code = v
	}
	if v := strings.TrimSpace(os.Getenv("SEED_LOGIN")); v != "" {
		cfg.Seed.Login = v
	}
	if v := strings.TrimSpace(os.Getenv("SEED_PASSWORD")); v != "" {
		cfg.Seed.Password = v
	}
}
