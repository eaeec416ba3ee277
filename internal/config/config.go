package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const EnvPrefix = "LOADMON"

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Envelope     EnvelopeConfig     `mapstructure:"envelope"`
	Registration RegistrationConfig `mapstructure:"registration"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Agent        AgentConfig        `mapstructure:"agent"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
}

type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"` // postgres or sqlite
	DSN        string `mapstructure:"dsn"`
	Path       string `mapstructure:"path"`
	LogQueries bool   `mapstructure:"log_queries"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type EnvelopeConfig struct {
	Secret string `mapstructure:"secret"`
}

type RegistrationConfig struct {
	MaxRequestsPerDay   int           `mapstructure:"max_requests_per_day"`
	Window              time.Duration `mapstructure:"window"`
	ResetExpiredWindows bool          `mapstructure:"reset_expired_windows"`
	QuotaBackend        string        `mapstructure:"quota_backend"` // redis or database
}

type SchedulerConfig struct {
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	WatchdogInterval time.Duration `mapstructure:"watchdog_interval"`
}

type TelemetryConfig struct {
	MaxClockSkew time.Duration `mapstructure:"max_clock_skew"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// Settings of the reporting agent that runs on monitored nodes
type AgentConfig struct {
	ServerID     int           `mapstructure:"server_id"`
	CollectorURL string        `mapstructure:"collector_url"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

func (r *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (r *RegistrationConfig) UsesRedis() bool {
	return r.QuotaBackend == "redis"
}

// Load reads defaults, then the optional config file, then LOADMON_* environment
// variables. Nested keys map to env names with dots replaced by underscores,
// so envelope.secret is LOADMON_ENVELOPE_SECRET.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "5000")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.path", "data/loadmon.db")
	v.SetDefault("database.log_queries", false)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("envelope.secret", "")

	v.SetDefault("registration.max_requests_per_day", 200)
	v.SetDefault("registration.window", "24h")
	v.SetDefault("registration.reset_expired_windows", false)
	v.SetDefault("registration.quota_backend", "redis")

	v.SetDefault("scheduler.sweep_interval", "24h")
	v.SetDefault("scheduler.watchdog_interval", "5s")

	v.SetDefault("telemetry.max_clock_skew", "0s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("agent.server_id", 0)
	v.SetDefault("agent.collector_url", "http://localhost:5000/api/update_load")
	v.SetDefault("agent.interval", "5s")
	v.SetDefault("agent.timeout", "10s")
}

// Validate checks the settings the collector needs
func (c *Config) Validate() error {
	var errs []error

	if c.Envelope.Secret == "" {
		errs = append(errs, errors.New("envelope.secret is required"))
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for postgres"))
		}
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported database.driver %q", c.Database.Driver))
	}

	switch c.Registration.QuotaBackend {
	case "redis", "database":
	default:
		errs = append(errs, fmt.Errorf("unsupported registration.quota_backend %q", c.Registration.QuotaBackend))
	}

	if c.Registration.MaxRequestsPerDay <= 0 {
		errs = append(errs, errors.New("registration.max_requests_per_day must be positive"))
	}
	if c.Registration.Window <= 0 {
		errs = append(errs, errors.New("registration.window must be positive"))
	}
	if c.Scheduler.SweepInterval <= 0 {
		errs = append(errs, errors.New("scheduler.sweep_interval must be positive"))
	}
	if c.Scheduler.WatchdogInterval <= 0 {
		errs = append(errs, errors.New("scheduler.watchdog_interval must be positive"))
	}
	if c.Telemetry.MaxClockSkew < 0 {
		errs = append(errs, errors.New("telemetry.max_clock_skew must not be negative"))
	}

	return errors.Join(errs...)
}

// ValidateAgent checks the settings the reporting agent needs
func (c *Config) ValidateAgent() error {
	var errs []error

	if c.Envelope.Secret == "" {
		errs = append(errs, errors.New("envelope.secret is required"))
	}
	if c.Agent.ServerID <= 0 {
		errs = append(errs, errors.New("agent.server_id must be positive"))
	}
	if c.Agent.CollectorURL == "" {
		errs = append(errs, errors.New("agent.collector_url is required"))
	}
	if c.Agent.Interval <= 0 {
		errs = append(errs, errors.New("agent.interval must be positive"))
	}
	if c.Agent.Timeout <= 0 {
		errs = append(errs, errors.New("agent.timeout must be positive"))
	}

	return errors.Join(errs...)
}
