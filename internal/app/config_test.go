package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join("testdata")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)

	require.Equal(t, "mysql", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.MySQL.Host)
	require.Equal(t, 3307, cfg.Database.MySQL.Port)

	require.True(t, cfg.Queue.Redis.Enabled)
	require.Equal(t, "redis.example.com:6380", cfg.Queue.Redis.Address)
	require.Equal(t, "socdo:", cfg.Queue.Redis.KeyPrefix)
	require.Equal(t, 25, cfg.Queue.BatchSize)
	require.Equal(t, 2*time.Second, cfg.Queue.IdleSleep)
	require.Equal(t, 5, cfg.Queue.MaxRetries)
	require.Equal(t, "@every 1m", cfg.Queue.StatsSpec)

	require.Equal(t, "/etc/notifyd/service-account.json", cfg.Push.CredentialsFile)
	require.Equal(t, 15*time.Second, cfg.Push.Timeout)
	require.Equal(t, "socdo_promo", cfg.Push.ChannelID)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "socdo-api", cfg.Auth.JWT.Issuer)
	require.Equal(t, 168*time.Hour, cfg.Auth.JWT.TTL)

	require.False(t, cfg.Monitoring.Prometheus.Enabled)
	require.False(t, cfg.Monitoring.VoucherEnabled)
	require.Equal(t, "@daily", cfg.Monitoring.VoucherSweep)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 50, cfg.Queue.BatchSize)
	require.Equal(t, time.Second, cfg.Queue.IdleSleep)
	require.Equal(t, 3, cfg.Queue.MaxRetries)
	require.Equal(t, "notifyd", cfg.Auth.JWT.Issuer)
	require.Equal(t, "socdo_channel", cfg.Push.ChannelID)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
}

func TestDatabaseOptionsMapping(t *testing.T) {
	cfg := Config{
		Database: DatabaseConfig{
			Driver: "postgres",
			Postgres: DBAuthConfig{
				Host: "pg.example.com", Port: 5433,
				Database: "socdo", Username: "svc", Password: "pw",
			},
		},
	}

	opts := cfg.DatabaseOptions()
	require.Equal(t, "postgres", opts.Driver)
	require.Equal(t, "pg.example.com", opts.Host)
	require.Equal(t, 5433, opts.Port)
	require.Equal(t, "socdo", opts.Name)
	require.Equal(t, "svc", opts.User)
}

func TestQueueOptionsMapping(t *testing.T) {
	cfg := Config{
		Queue: QueueConfig{
			Redis:      RedisConfig{Enabled: false, Address: "ignored:6379"},
			MaxRetries: 7,
		},
	}

	opts := cfg.QueueOptions()
	// Disabled broker leaves the address empty so no probe happens.
	require.Empty(t, opts.Addr)
	require.Equal(t, 7, opts.Policy.MaxRetries)

	cfg.Queue.Redis.Enabled = true
	opts = cfg.QueueOptions()
	require.Equal(t, "ignored:6379", opts.Addr)
}
