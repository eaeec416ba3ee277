package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "localhost:6379", cfg.Redis.GetRedisAddr())
	assert.Equal(t, 200, cfg.Registration.MaxRequestsPerDay)
	assert.Equal(t, 24*time.Hour, cfg.Registration.Window)
	assert.False(t, cfg.Registration.ResetExpiredWindows)
	assert.True(t, cfg.Registration.UsesRedis())
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.SweepInterval)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.WatchdogInterval)
	assert.Zero(t, cfg.Telemetry.MaxClockSkew)
	assert.Equal(t, 5*time.Second, cfg.Agent.Interval)
	assert.Equal(t, 10*time.Second, cfg.Agent.Timeout)

	// No secret is configured by default
	require.Error(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loadmon.yaml")
	content := `
server:
  port: "8080"
  trusted_proxies: ["10.0.0.1"]
database:
  driver: postgres
  dsn: postgres://loadmon@localhost/loadmon
envelope:
  secret: secret-key
registration:
  max_requests_per_day: 50
  window: 12h
  quota_backend: database
telemetry:
  max_clock_skew: 2m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"10.0.0.1"}, cfg.Server.TrustedProxies)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 50, cfg.Registration.MaxRequestsPerDay)
	assert.Equal(t, 12*time.Hour, cfg.Registration.Window)
	assert.False(t, cfg.Registration.UsesRedis())
	assert.Equal(t, 2*time.Minute, cfg.Telemetry.MaxClockSkew)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("LOADMON_ENVELOPE_SECRET", "from-env")
	t.Setenv("LOADMON_REGISTRATION_MAX_REQUESTS_PER_DAY", "10")
	t.Setenv("LOADMON_SCHEDULER_WATCHDOG_INTERVAL", "30s")
	t.Setenv("LOADMON_AGENT_SERVER_ID", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateAgent())

	assert.Equal(t, "from-env", cfg.Envelope.Secret)
	assert.Equal(t, 10, cfg.Registration.MaxRequestsPerDay)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.WatchdogInterval)
	assert.Equal(t, 7, cfg.Agent.ServerID)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		cfg.Envelope.Secret = "secret-key"
		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "UnknownDriver", mutate: func(c *Config) { c.Database.Driver = "mysql" }},
		{name: "PostgresWithoutDSN", mutate: func(c *Config) { c.Database.Driver = "postgres" }},
		{name: "SQLiteWithoutPath", mutate: func(c *Config) { c.Database.Path = "" }},
		{name: "UnknownQuotaBackend", mutate: func(c *Config) { c.Registration.QuotaBackend = "memcached" }},
		{name: "ZeroLimit", mutate: func(c *Config) { c.Registration.MaxRequestsPerDay = 0 }},
		{name: "ZeroWindow", mutate: func(c *Config) { c.Registration.Window = 0 }},
		{name: "ZeroSweepInterval", mutate: func(c *Config) { c.Scheduler.SweepInterval = 0 }},
		{name: "NegativeSkew", mutate: func(c *Config) { c.Telemetry.MaxClockSkew = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}

	// Agent needs a server id
	require.Error(t, valid().ValidateAgent())
}
