// Package config loads sitepipe configuration from an optional YAML file,
// .env files and SITEPIPE_-prefixed environment variables.
//
// Keys are dotted (scheduler.batch_size); the matching environment
// variable replaces dots with underscores (SITEPIPE_SCHEDULER_BATCH_SIZE).
// .env.local is loaded before .env, and neither overrides variables that
// are already set.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jdziat/sitepipe/pkg/logger"
	"github.com/jdziat/sitepipe/pkg/schedule"
	"github.com/jdziat/sitepipe/pkg/security"
	"github.com/jdziat/sitepipe/pkg/storage"
)

// EnvPrefix is prepended to every environment variable.
const EnvPrefix = "SITEPIPE"

// Config is the full service configuration.
type Config struct {
	Database  Database      `mapstructure:"database"`
	Server    Server        `mapstructure:"server"`
	Scheduler Scheduler     `mapstructure:"scheduler"`
	Pipeline  Pipeline      `mapstructure:"pipeline"`
	Progress  Progress      `mapstructure:"progress"`
	Notify    Notify        `mapstructure:"notify"`
	Inspector Inspector     `mapstructure:"inspector"`
	Generator Generator     `mapstructure:"generator"`
	Deploy    Deploy        `mapstructure:"deploy"`
	Log       logger.Config `mapstructure:"log"`
}

// Database configures the job store connection.
type Database struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	// Pool names a connection pool preset (default, high-concurrency, low-latency, resource-constrained).
	Pool string `mapstructure:"pool"`
}

// Server configures the HTTP surface.
type Server struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	Heartbeat         time.Duration `mapstructure:"heartbeat"`
}

// Scheduler configures the lease scheduler.
type Scheduler struct {
	BatchSize   int           `mapstructure:"batch_size"`
	Pacing      time.Duration `mapstructure:"pacing"`
	Trigger     string        `mapstructure:"trigger"`
	Lease       time.Duration `mapstructure:"lease"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	// Enabled turns the periodic trigger on for serve.
	Enabled bool `mapstructure:"enabled"`
}

// Pipeline configures the executor.
type Pipeline struct {
	StageTimeout time.Duration `mapstructure:"stage_timeout"`
}

// Progress configures the live progress broadcaster.
type Progress struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	DrainGrace    time.Duration `mapstructure:"drain_grace"`
	// RedisAddr enables the cross-process relay when set.
	RedisAddr string `mapstructure:"redis_addr"`
}

// Notify configures enqueue notifications. An empty AMQPURL keeps them
// in process.
type Notify struct {
	AMQPURL string `mapstructure:"amqp_url"`
}

// Inspector configures the domain analysis fetch.
type Inspector struct {
	Scheme  string        `mapstructure:"scheme"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Generator configures the generative service. Without an API key the
// generative stages run on their fallbacks.
type Generator struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
	BaseURL   string `mapstructure:"base_url"`
}

// Deploy configures the object store sites are published to. Without an
// endpoint the deploy stage reports an undeployed result.
type Deploy struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	PublicBaseURL   string `mapstructure:"public_base_url"`
}

// SetDefaults registers a default for every key so environment variables
// can override keys that appear in no file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", storage.DriverSQLite)
	v.SetDefault("database.dsn", "sitepipe.db")
	v.SetDefault("database.pool", "default")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.heartbeat", 15*time.Second)

	v.SetDefault("scheduler.batch_size", 5)
	v.SetDefault("scheduler.pacing", 1500*time.Millisecond)
	v.SetDefault("scheduler.trigger", "1m")
	v.SetDefault("scheduler.lease", 10*time.Minute)
	v.SetDefault("scheduler.max_attempts", 3)
	v.SetDefault("scheduler.enabled", true)

	v.SetDefault("pipeline.stage_timeout", 60*time.Second)

	v.SetDefault("progress.ttl", time.Hour)
	v.SetDefault("progress.sweep_interval", time.Minute)
	v.SetDefault("progress.drain_grace", 30*time.Second)
	v.SetDefault("progress.redis_addr", "")

	v.SetDefault("notify.amqp_url", "")

	v.SetDefault("inspector.scheme", "https")
	v.SetDefault("inspector.timeout", 10*time.Second)

	v.SetDefault("generator.api_key", "")
	v.SetDefault("generator.model", "claude-sonnet-4-5")
	v.SetDefault("generator.max_tokens", 2048)
	v.SetDefault("generator.base_url", "")

	v.SetDefault("deploy.endpoint", "")
	v.SetDefault("deploy.access_key_id", "")
	v.SetDefault("deploy.secret_access_key", "")
	v.SetDefault("deploy.use_ssl", true)
	v.SetDefault("deploy.region", "")
	v.SetDefault("deploy.bucket", "sites")
	v.SetDefault("deploy.public_base_url", "")

	v.SetDefault("log.level", logger.DefaultLevel)
	v.SetDefault("log.development", false)
}

// LoadEnvFiles loads .env.local then .env. Missing files are ignored.
func LoadEnvFiles() error {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// Load reads configuration into a new Config. file may be empty, in which
// case config.yaml is looked up in the working directory and ./config and
// its absence is not an error.
func Load(v *viper.Viper, file string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case storage.DriverSQLite, storage.DriverPostgres:
	default:
		return fmt.Errorf("config: database.driver %q is not sqlite or postgres", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("config: database.dsn is required")
	}
	if c.Server.Addr == "" {
		return errors.New("config: server.addr is required")
	}
	if c.Scheduler.BatchSize < 1 || c.Scheduler.BatchSize > security.MaxBatchSize {
		return fmt.Errorf("config: scheduler.batch_size must be between 1 and %d", security.MaxBatchSize)
	}
	if c.Scheduler.Pacing < 0 {
		return errors.New("config: scheduler.pacing must not be negative")
	}
	if _, err := schedule.Parse(c.Scheduler.Trigger); err != nil {
		return fmt.Errorf("config: scheduler.trigger: %w", err)
	}
	if c.Scheduler.Lease <= 0 {
		return errors.New("config: scheduler.lease must be positive")
	}
	if c.Scheduler.MaxAttempts < 1 {
		return errors.New("config: scheduler.max_attempts must be at least 1")
	}
	if c.Pipeline.StageTimeout <= 0 {
		return errors.New("config: pipeline.stage_timeout must be positive")
	}
	if c.Progress.TTL <= 0 {
		return errors.New("config: progress.ttl must be positive")
	}
	if c.Inspector.Scheme != "http" && c.Inspector.Scheme != "https" {
		return fmt.Errorf("config: inspector.scheme %q is not http or https", c.Inspector.Scheme)
	}
	if c.Deploy.Endpoint != "" && c.Deploy.Bucket == "" {
		return errors.New("config: deploy.bucket is required when deploy.endpoint is set")
	}
	return nil
}
