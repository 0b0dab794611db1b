package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the order service
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Redis    RedisConfig    `yaml:"redis"`
	Server   ServerConfig   `yaml:"server"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
	// Path is the SQLite file, ":memory:" for a throwaway database.
	Path string `yaml:"path"`
	// URL overrides the discrete PostgreSQL fields when set.
	URL string `yaml:"url"`
}

// RabbitMQConfig holds RabbitMQ connection configuration
type RabbitMQConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	URL      string `yaml:"url"`
	Prefetch int    `yaml:"prefetch"`
}

// RedisConfig holds the idempotency cache configuration
type RedisConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Addr           string        `yaml:"addr"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port           int           `yaml:"port"`
	Timezone       string        `yaml:"timezone"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Default returns the configuration used when a key is absent
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     5432,
			User:     "deliverus",
			Database: "deliverus",
			SSLMode:  "disable",
			MaxConns: 25,
			MinConns: 5,
			Path:     "deliverus.db",
		},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			User:     "guest",
			Password: "guest",
			Prefetch: 10,
		},
		Redis: RedisConfig{
			Addr:           "localhost:6379",
			IdempotencyTTL: 24 * time.Hour,
		},
		Server: ServerConfig{
			Port:           3000,
			Timezone:       "UTC",
			RequestTimeout: 30 * time.Second,
		},
	}
}

// Load reads configuration from a YAML file and applies environment overrides
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		c.RabbitMQ.URL = v
		c.RabbitMQ.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT value: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate checks the values the service cannot start without
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "postgres":
		if c.Database.URL == "" && c.Database.Host == "" {
			return fmt.Errorf("database.host is required for the postgres driver")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location returns the time zone used for calendar-day boundaries
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Server.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid server.timezone %q: %w", c.Server.Timezone, err)
	}
	return loc, nil
}

// DatabaseURL returns a PostgreSQL connection URL
func (c *Config) DatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Database, c.Database.SSLMode)
}

// RabbitMQURL returns an AMQP connection URL
func (c *Config) RabbitMQURL() string {
	if c.RabbitMQ.URL != "" {
		return c.RabbitMQ.URL
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%d/",
		c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port)
}
