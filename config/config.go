package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSqlite = "sqlite"
	BackendRedis  = "redis"

	DriverPostgres = "postgres"
	DriverSqlite   = "sqlite3"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "coopstore.yaml"

// Config holds all coopStore configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Catalog CatalogConfig `yaml:"catalog"`
	Pricing PricingConfig `yaml:"pricing"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig selects where cart snapshots live.
type StorageConfig struct {
	Backend    string      `yaml:"backend"` // memory, file, sqlite, redis
	Key        string      `yaml:"key"`     // cart key used by the CLI
	Dir        string      `yaml:"dir"`
	SqlitePath string      `yaml:"sqlite_path"`
	Redis      RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTL      string `yaml:"ttl"`
	Channel  string `yaml:"channel"`
}

// CatalogConfig points at the product and coupon database.
type CatalogConfig struct {
	Driver string `yaml:"driver"` // postgres, sqlite3
	DSN    string `yaml:"dsn"`
}

type PricingConfig struct {
	TaxRate string `yaml:"tax_rate"`
}

type ServerConfig struct {
	Addr         string `yaml:"addr"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:    BackendFile,
			Key:        "cart",
			Dir:        "data/carts",
			SqlitePath: "data/carts.db",
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				TTL:     "720h",
				Channel: "coopstore:storage",
			},
		},
		Catalog: CatalogConfig{
			Driver: DriverSqlite,
			DSN:    "data/catalog.db",
		},
		Pricing: PricingConfig{
			TaxRate: "0.08",
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  "15s",
			WriteTimeout: "15s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults. A missing file is not an error; environment
// overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if backend := os.Getenv("STORAGE_BACKEND"); backend != "" {
		c.Storage.Backend = backend
	}
	if key := os.Getenv("CART_KEY"); key != "" {
		c.Storage.Key = key
	}

	host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT")
	if host != "" || port != "" {
		if host == "" {
			host = "localhost"
		}
		if port == "" {
			port = "6379"
		}
		c.Storage.Redis.Addr = host + ":" + port
	}

	if host := os.Getenv("DATABASE_HOST"); host != "" {
		c.Catalog.Driver = DriverPostgres
		c.Catalog.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			os.Getenv("DATABASE_USER"), os.Getenv("DATABASE_PASSWORD"), host,
			os.Getenv("DATABASE_PORT"), os.Getenv("DATABASE_NAME"))
	}
	if driver := os.Getenv("CATALOG_DRIVER"); driver != "" {
		c.Catalog.Driver = driver
	}
	if dsn := os.Getenv("CATALOG_DSN"); dsn != "" {
		c.Catalog.DSN = dsn
	}

	if rate := os.Getenv("TAX_RATE"); rate != "" {
		c.Pricing.TaxRate = rate
	}
	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendFile, BackendSqlite, BackendRedis:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Key == "" {
		return errors.New("storage key must be non-empty")
	}
	if c.Storage.Backend == BackendFile && c.Storage.Dir == "" {
		return errors.New("storage dir is required for the file backend")
	}
	if c.Storage.Backend == BackendSqlite && c.Storage.SqlitePath == "" {
		return errors.New("sqlite_path is required for the sqlite backend")
	}
	if c.Storage.Backend == BackendRedis && c.Storage.Redis.Addr == "" {
		return errors.New("redis addr is required for the redis backend")
	}

	switch c.Catalog.Driver {
	case DriverPostgres, DriverSqlite:
	default:
		return fmt.Errorf("unknown catalog driver %q", c.Catalog.Driver)
	}

	rate, err := decimal.NewFromString(c.Pricing.TaxRate)
	if err != nil {
		return fmt.Errorf("invalid tax rate %q: %w", c.Pricing.TaxRate, err)
	}
	if rate.IsNegative() {
		return fmt.Errorf("tax rate must not be negative, got %s", rate)
	}
	return nil
}

func (c *Config) TaxRate() decimal.Decimal {
	rate, err := decimal.NewFromString(c.Pricing.TaxRate)
	if err != nil {
		return decimal.RequireFromString("0.08")
	}
	return rate
}

// RedisTTL returns 0 (no expiry) for an empty or unparsable ttl.
func (c *Config) RedisTTL() time.Duration {
	d, err := time.ParseDuration(c.Storage.Redis.TTL)
	if err != nil {
		return 0
	}
	return d
}

func (c *Config) GetReadTimeout() time.Duration {
	return parseDurationOr(c.Server.ReadTimeout, 15*time.Second)
}

func (c *Config) GetWriteTimeout() time.Duration {
	return parseDurationOr(c.Server.WriteTimeout, 15*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
