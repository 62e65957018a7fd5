// Package config provides YAML-based configuration loading for Haven, with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. HAVEN_AUTH_SECRET.
const EnvPrefix = "HAVEN"

// Supported database drivers.
const (
	DriverSQLite  = "sqlite"
	DriverMySQL   = "mysql"
	DriverMongoDB = "mongodb"
	DriverMemory  = "memory"
)

// Config is the top-level Haven configuration, loaded from haven.yaml.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port           int      `yaml:"port" envconfig:"SERVER_PORT"`
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"SERVER_ALLOWED_ORIGINS"`
}

// DatabaseConfig selects and configures the settings backend.
type DatabaseConfig struct {
	Driver   string `yaml:"driver" envconfig:"DB_DRIVER"`
	Path     string `yaml:"path" envconfig:"DB_PATH"`
	Host     string `yaml:"host" envconfig:"DB_HOST"`
	Port     int    `yaml:"port" envconfig:"DB_PORT"`
	User     string `yaml:"user" envconfig:"DB_USER"`
	Password string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name     string `yaml:"name" envconfig:"DB_NAME"`
	URI      string `yaml:"uri" envconfig:"DB_URI"`
}

// CacheConfig enables the Redis read-through cache when RedisAddr is set.
type CacheConfig struct {
	RedisAddr     string        `yaml:"redis_addr" envconfig:"REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" envconfig:"REDIS_DB"`
	TTL           time.Duration `yaml:"ttl" envconfig:"CACHE_TTL"`
}

// AuthConfig holds the JWT signing settings for the admin guard.
type AuthConfig struct {
	Secret string `yaml:"secret" envconfig:"AUTH_SECRET"`
	Issuer string `yaml:"issuer" envconfig:"AUTH_ISSUER"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level    string `yaml:"level" envconfig:"LOG_LEVEL"`
	Encoding string `yaml:"encoding" envconfig:"LOG_ENCODING"`
	Output   string `yaml:"output" envconfig:"LOG_OUTPUT"`
}

// Load reads a YAML config file from path, applies environment overrides and
// returns a validated Config. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return parse(data, true)
}

// Parse unmarshals YAML bytes into a validated Config. Environment variables
// are not consulted.
func Parse(data []byte) (*Config, error) {
	return parse(data, false)
}

func parse(data []byte, withEnv bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if withEnv {
		if err := cfg.applyEnv(); err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays HAVEN_* variables on top of the file values. Unset
// variables leave the file values alone.
func (c *Config) applyEnv() error {
	for _, section := range []any{&c.Server, &c.Database, &c.Cache, &c.Auth, &c.Log} {
		if err := envconfig.Process(EnvPrefix, section); err != nil {
			return fmt.Errorf("config: env: %w", err)
		}
	}
	return nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	c.Database.Driver = strings.ToLower(c.Database.Driver)
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			c.Database.Path = "haven.db"
		}
	case DriverMySQL:
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	}
	if c.Database.Name == "" {
		c.Database.Name = "haven"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 5 * time.Minute
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "haven"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Encoding == "" {
		c.Log.Encoding = "json"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case DriverSQLite, DriverMySQL, DriverMemory:
	case DriverMongoDB:
		if c.Database.URI == "" {
			errs = append(errs, "database.uri is required for the mongodb driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if c.Auth.Secret == "" {
		errs = append(errs, "auth.secret is required")
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, "cache.ttl must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
