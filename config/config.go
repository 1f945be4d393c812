package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/medalarm/pkg/messaging/redis"
)

// EnvPrefix prefixes every environment override, e.g. MEDALARM_SERVER_PORT.
const EnvPrefix = "MEDALARM"

type ServerConfig struct {
	Port           int           `mapstructure:"port" split_words:"true"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" split_words:"true"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" split_words:"true"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes" split_words:"true"`
	Mode           string        `mapstructure:"mode" split_words:"true"`
}

type DatabaseConfig struct {
	URL          string        `mapstructure:"url" split_words:"true"`
	Host         string        `mapstructure:"host" split_words:"true"`
	Port         int           `mapstructure:"port" split_words:"true"`
	User         string        `mapstructure:"user" split_words:"true"`
	Password     string        `mapstructure:"password" split_words:"true"`
	Name         string        `mapstructure:"name" split_words:"true"`
	SSLMode      string        `mapstructure:"sslmode" split_words:"true"`
	MaxOpenConns int           `mapstructure:"max_open_conns" split_words:"true"`
	MaxIdleConns int           `mapstructure:"max_idle_conns" split_words:"true"`
	ConnMaxLife  time.Duration `mapstructure:"conn_max_lifetime" split_words:"true"`
}

// DSN returns URL when set, otherwise a key/value connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	URL          string        `mapstructure:"url" split_words:"true"`
	KeyPrefix    string        `mapstructure:"key_prefix" split_words:"true"`
	MaxRetries   int           `mapstructure:"max_retries" split_words:"true"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" split_words:"true"`
	PoolSize     int           `mapstructure:"pool_size" split_words:"true"`
	MinIdleConns int           `mapstructure:"min_idle_conns" split_words:"true"`
	// LockTTL is the lease on a medication's lifecycle lock, renewed while held.
	LockTTL   time.Duration `mapstructure:"lock_ttl" split_words:"true"`
	LockRetry time.Duration `mapstructure:"lock_retry" split_words:"true"`
}

func (c RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

type JWTConfig struct {
	// Secret enables bearer auth on the API when non-empty.
	Secret string `mapstructure:"secret" split_words:"true"`
	Issuer string `mapstructure:"issuer" split_words:"true"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled" split_words:"true"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" split_words:"true"`
	Burst             int     `mapstructure:"burst" split_words:"true"`
}

type LogConfig struct {
	Level string `mapstructure:"level" split_words:"true"`
	JSON  bool   `mapstructure:"json" split_words:"true"`
}

type ScheduleConfig struct {
	// Timezone is the IANA zone dose times and slots are read in.
	Timezone string `mapstructure:"timezone" split_words:"true"`
}

// Location resolves Timezone; empty means the process's local zone.
func (c ScheduleConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

type PlatformConfig struct {
	Driver        string        `mapstructure:"driver" split_words:"true"`
	Channel       string        `mapstructure:"channel" split_words:"true"`
	PermissionTTL time.Duration `mapstructure:"permission_ttl" split_words:"true"`
	MaxFailures   int           `mapstructure:"max_failures" split_words:"true"`
	BreakerReset  time.Duration `mapstructure:"breaker_reset" split_words:"true"`
	SubmitRate    float64       `mapstructure:"submit_rate" split_words:"true"`
	SubmitBurst   int           `mapstructure:"submit_burst" split_words:"true"`
}

type PreferencesConfig struct {
	CacheDuration   time.Duration `mapstructure:"cache_duration" split_words:"true"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" split_words:"true"`
}

type WorkerConfig struct {
	// ForegroundInterval runs a fallback pass periodically; zero disables it.
	ForegroundInterval time.Duration `mapstructure:"foreground_interval" split_words:"true"`
	PassTimeout        time.Duration `mapstructure:"pass_timeout" split_words:"true"`
	RescheduleOnStart  bool          `mapstructure:"reschedule_on_start" split_words:"true"`
	// HealthPort serves /health/* and metrics for the worker process.
	HealthPort int `mapstructure:"health_port" split_words:"true"`
}

type MonitoringConfig struct {
	Namespace   string `mapstructure:"namespace" split_words:"true"`
	MetricsPath string `mapstructure:"metrics_path" split_words:"true"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server" split_words:"true"`
	Database    DatabaseConfig    `mapstructure:"database" split_words:"true"`
	Redis       RedisConfig       `mapstructure:"redis" split_words:"true"`
	JWT         JWTConfig         `mapstructure:"jwt" split_words:"true"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit" split_words:"true"`
	Log         LogConfig         `mapstructure:"log" split_words:"true"`
	Schedule    ScheduleConfig    `mapstructure:"schedule" split_words:"true"`
	Platform    PlatformConfig    `mapstructure:"platform" split_words:"true"`
	Preferences PreferencesConfig `mapstructure:"preferences" split_words:"true"`
	Worker      WorkerConfig      `mapstructure:"worker" split_words:"true"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring" split_words:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.max_header_bytes", 1<<20)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "medalarm")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.key_prefix", "medalarm:")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.lock_ttl", 30*time.Second)
	v.SetDefault("redis.lock_retry", 50*time.Millisecond)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("log.level", "info")

	v.SetDefault("platform.driver", "broker")
	v.SetDefault("platform.channel", "alarms.commands")
	v.SetDefault("platform.permission_ttl", 24*time.Hour)
	v.SetDefault("platform.max_failures", 5)
	v.SetDefault("platform.breaker_reset", 30*time.Second)
	v.SetDefault("platform.submit_rate", 50.0)
	v.SetDefault("platform.submit_burst", 10)

	v.SetDefault("preferences.cache_duration", 5*time.Minute)
	v.SetDefault("preferences.cleanup_interval", 10*time.Minute)

	v.SetDefault("worker.foreground_interval", 6*time.Hour)
	v.SetDefault("worker.pass_timeout", 5*time.Minute)
	v.SetDefault("worker.reschedule_on_start", true)
	v.SetDefault("worker.health_port", 8081)

	v.SetDefault("monitoring.namespace", "medalarm")
	v.SetDefault("monitoring.metrics_path", "/metrics")
}

// LoadConfig reads the YAML file at path, or config.yml from the usual
// locations when path is empty, then applies MEDALARM_* environment
// overrides. A missing file is not an error when no path was given.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Redis.URL == "" {
		problems = append(problems, "redis.url is required")
	}
	switch c.Platform.Driver {
	case "broker", "recorder":
	default:
		problems = append(problems, fmt.Sprintf("platform.driver %q is not one of broker, recorder", c.Platform.Driver))
	}
	if _, err := c.Schedule.Location(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
