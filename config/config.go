package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres, memory
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// InMemory reports whether the service should run without Postgres.
func (d DatabaseConfig) InMemory() bool {
	return d.Driver == "memory"
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// LedgerConfig tunes the balance mutator and its policies.
type LedgerConfig struct {
	DefaultCurrency             string            `mapstructure:"default_currency"`
	DefaultDailyWithdrawalLimit int64             `mapstructure:"default_daily_withdrawal_limit"`
	WithdrawalWindow            time.Duration     `mapstructure:"withdrawal_window"`
	LockTimeout                 time.Duration     `mapstructure:"lock_timeout"`
	LockTTL                     time.Duration     `mapstructure:"lock_ttl"`
	Serializer                  string            `mapstructure:"serializer"` // local, redis
	MaxRetries                  uint64            `mapstructure:"max_retries"`
	RetryInitialInterval        time.Duration     `mapstructure:"retry_initial_interval"`
	RetryMaxInterval            time.Duration     `mapstructure:"retry_max_interval"`
	BlockCreditsWhenFrozen      bool              `mapstructure:"block_credits_when_frozen"`
	IdempotencyTTL              time.Duration     `mapstructure:"idempotency_ttl"`
	DisplayRates                map[string]string `mapstructure:"display_rates"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: WLG_ (Wallet LedGer).
// Nested keys use underscore: WLG_DATABASE_HOST, WLG_LEDGER_LOCK_TIMEOUT, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "wallet_ledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "wallet-ledger")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("ledger.default_currency", "TKN")
	v.SetDefault("ledger.default_daily_withdrawal_limit", 100000)
	v.SetDefault("ledger.withdrawal_window", "24h")
	v.SetDefault("ledger.lock_timeout", "2s")
	v.SetDefault("ledger.lock_ttl", "10s")
	v.SetDefault("ledger.serializer", "local")
	v.SetDefault("ledger.max_retries", 3)
	v.SetDefault("ledger.retry_initial_interval", "25ms")
	v.SetDefault("ledger.retry_max_interval", "500ms")
	v.SetDefault("ledger.block_credits_when_frozen", true)
	v.SetDefault("ledger.idempotency_ttl", "24h")
	v.SetDefault("ledger.display_rates", map[string]string{
		"TKN":  "1",
		"USDT": "1",
		"ETH":  "0.0004",
	})

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: WLG_DATABASE_HOST -> database.host
	v.SetEnvPrefix("WLG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid database.driver %q: want postgres or memory", c.Database.Driver)
	}
	switch c.Ledger.Serializer {
	case "local", "redis":
	default:
		return fmt.Errorf("invalid ledger.serializer %q: want local or redis", c.Ledger.Serializer)
	}
	if c.Ledger.Serializer == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("ledger.serializer=redis requires redis.enabled")
	}
	if c.Ledger.DefaultDailyWithdrawalLimit < 0 {
		return fmt.Errorf("ledger.default_daily_withdrawal_limit must not be negative")
	}
	return nil
}
