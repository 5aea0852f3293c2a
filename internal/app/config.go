package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/socdo/notifyd/internal/database"
	"github.com/socdo/notifyd/internal/queue"
)

// Config represents the runtime configuration for the notification service.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Push       PushConfig       `mapstructure:"push"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// QueueConfig describes the broker and the worker loop.
type QueueConfig struct {
	Redis      RedisConfig   `mapstructure:"redis"`
	BatchSize  int           `mapstructure:"batch_size"`
	IdleSleep  time.Duration `mapstructure:"idle_sleep"`
	MaxRetries int           `mapstructure:"max_retries"`
	StatsSpec  string        `mapstructure:"stats_schedule"`
}

// RedisConfig holds broker connection options.
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// PushConfig configures the FCM gateway client.
type PushConfig struct {
	CredentialsFile string        `mapstructure:"credentials_file"`
	Endpoint        string        `mapstructure:"endpoint"`
	Timeout         time.Duration `mapstructure:"timeout"`
	ChannelID       string        `mapstructure:"channel_id"`
}

// AuthConfig captures inbound API authentication settings.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// MonitoringConfig enables health checks and metrics, plus the producer-side
// voucher sweep schedule.
type MonitoringConfig struct {
	Prometheus     PrometheusConfig `mapstructure:"prometheus"`
	VoucherSweep   string           `mapstructure:"voucher_sweep_schedule"`
	VoucherEnabled bool             `mapstructure:"voucher_sweep_enabled"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("NOTIFYD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/notifyd.sqlite")

	v.SetDefault("queue.redis.enabled", true)
	v.SetDefault("queue.redis.address", "127.0.0.1:6379")
	v.SetDefault("queue.redis.username", "")
	v.SetDefault("queue.redis.password", "")
	v.SetDefault("queue.redis.db", 0)
	v.SetDefault("queue.redis.key_prefix", "")
	v.SetDefault("queue.batch_size", 50)
	v.SetDefault("queue.idle_sleep", "1s")
	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("queue.stats_schedule", "@every 30s")

	v.SetDefault("push.credentials_file", "./config/service-account.json")
	v.SetDefault("push.timeout", "10s")
	v.SetDefault("push.channel_id", "socdo_channel")

	v.SetDefault("auth.jwt.issuer", "notifyd")
	v.SetDefault("auth.jwt.access_token_ttl", "720h") // 30 days

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.voucher_sweep_enabled", true)
	v.SetDefault("monitoring.voucher_sweep_schedule", "@hourly")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// DatabaseOptions maps the configuration onto the database package's
// connection settings.
func (c *Config) DatabaseOptions() database.Config {
	cfg := database.Config{
		Driver: c.Database.Driver,
		Path:   c.Database.Path,
		DSN:    c.Database.DSN,
	}

	switch strings.ToLower(strings.TrimSpace(c.Database.Driver)) {
	case "mysql":
		cfg.Host = c.Database.MySQL.Host
		cfg.Port = c.Database.MySQL.Port
		cfg.Name = c.Database.MySQL.Database
		cfg.User = c.Database.MySQL.Username
		cfg.Password = c.Database.MySQL.Password
	case "postgres", "postgresql":
		cfg.Host = c.Database.Postgres.Host
		cfg.Port = c.Database.Postgres.Port
		cfg.Name = c.Database.Postgres.Database
		cfg.User = c.Database.Postgres.Username
		cfg.Password = c.Database.Postgres.Password
	}

	return cfg
}

// QueueOptions maps the configuration onto the queue backend settings. An
// empty Addr disables the broker probe.
func (c *Config) QueueOptions() queue.RedisConfig {
	cfg := queue.RedisConfig{
		Username:  c.Queue.Redis.Username,
		Password:  c.Queue.Redis.Password,
		DB:        c.Queue.Redis.DB,
		KeyPrefix: c.Queue.Redis.KeyPrefix,
		Policy:    queue.DefaultRetryPolicy(),
	}
	if c.Queue.Redis.Enabled {
		cfg.Addr = c.Queue.Redis.Address
	}
	if c.Queue.MaxRetries > 0 {
		cfg.Policy.MaxRetries = c.Queue.MaxRetries
	}
	return cfg
}
