// Package config provides configuration management using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/robert-malhotra/go-rapi-client/internal/logger"
	"github.com/robert-malhotra/go-rapi-client/pkg/client"
)

// EnvPrefix prefixes every environment variable, e.g. EODMS_RAPI_URL.
const EnvPrefix = "EODMS"

// Config holds all application configuration.
type Config struct {
	RAPI     RAPIConfig     `mapstructure:"rapi"`
	Download DownloadConfig `mapstructure:"download"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Breaker  BreakerConfig  `mapstructure:"breaker"`
}

// RAPIConfig holds the service endpoint, credentials and transport tuning.
type RAPIConfig struct {
	URL              string        `mapstructure:"url"`
	Username         string        `mapstructure:"username"`
	Password         string        `mapstructure:"password"`
	QueryTimeout     time.Duration `mapstructure:"query_timeout"`
	OrderTimeout     time.Duration `mapstructure:"order_timeout"`
	Attempts         int           `mapstructure:"attempts"`
	TimeoutIncrement time.Duration `mapstructure:"timeout_increment"`
	PageSize         int           `mapstructure:"page_size"`
	SearchRetryDelay time.Duration `mapstructure:"search_retry_delay"`
	Workers          int           `mapstructure:"workers"`
}

// DownloadConfig holds the polling settings of the download command.
type DownloadConfig struct {
	Dir         string        `mapstructure:"dir"`
	Wait        time.Duration `mapstructure:"wait"`
	MaxAttempts int           `mapstructure:"max_attempts"` // 0 polls until done
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the endpoint
}

// BreakerConfig toggles the transport circuit breaker.
type BreakerConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Defaults sets the default configuration values on v.
func Defaults(v *viper.Viper) {
	v.SetDefault("rapi.url", client.DefaultBaseURL)
	v.SetDefault("rapi.username", "")
	v.SetDefault("rapi.password", "")
	v.SetDefault("rapi.query_timeout", client.DefaultQueryTimeout)
	v.SetDefault("rapi.order_timeout", client.DefaultOrderTimeout)
	v.SetDefault("rapi.attempts", client.DefaultAttempts)
	v.SetDefault("rapi.timeout_increment", client.DefaultTimeoutIncrement)
	v.SetDefault("rapi.page_size", client.DefaultPageSize)
	v.SetDefault("rapi.search_retry_delay", client.DefaultSearchRetryDelay)
	v.SetDefault("rapi.workers", client.DefaultWorkers)

	v.SetDefault("download.dir", ".")
	v.SetDefault("download.wait", 10*time.Second)
	v.SetDefault("download.max_attempts", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("metrics.addr", "")
	v.SetDefault("breaker.enabled", false)
}

// Load loads configuration from the environment and an optional config
// file. An empty configPath looks for rapi.yaml in the working directory
// and in $HOME/.config/rapi; a missing file is not an error.
func Load(configPath string) (*Config, error) {
	return LoadWith(viper.New(), configPath)
}

// LoadWith is Load on a caller supplied Viper instance, so that command
// line flags bound to v take precedence.
func LoadWith(v *viper.Viper, configPath string) (*Config, error) {
	Defaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// the credential variables of the EODMS tooling
	if err := v.BindEnv("rapi.username", EnvPrefix+"_RAPI_USERNAME", "EODMS_USER"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("rapi.password", EnvPrefix+"_RAPI_PASSWORD", "EODMS_PASSWORD"); err != nil {
		return nil, err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("rapi")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/rapi")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.RAPI.URL == "" {
		return fmt.Errorf("rapi url is required")
	}
	if c.RAPI.Attempts < 1 {
		return fmt.Errorf("invalid attempts: %d", c.RAPI.Attempts)
	}
	if c.RAPI.PageSize < 1 {
		return fmt.Errorf("invalid page size: %d", c.RAPI.PageSize)
	}
	if c.RAPI.Workers < 1 {
		return fmt.Errorf("invalid workers: %d", c.RAPI.Workers)
	}
	if c.Download.MaxAttempts < 0 {
		return fmt.Errorf("invalid download max attempts: %d", c.Download.MaxAttempts)
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("unknown log format: %s", c.Logging.Format)
	}
	return nil
}

// HasCredentials reports whether both username and password are set.
func (c *RAPIConfig) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

// ClientOptions converts the configuration into client options. Logging and
// metrics are wired by the caller.
func (c *Config) ClientOptions() []client.ClientOption {
	opts := []client.ClientOption{
		client.WithQueryTimeout(c.RAPI.QueryTimeout),
		client.WithOrderTimeout(c.RAPI.OrderTimeout),
		client.WithAttempts(c.RAPI.Attempts),
		client.WithTimeoutIncrement(c.RAPI.TimeoutIncrement),
		client.WithPageSize(c.RAPI.PageSize),
		client.WithSearchRetryDelay(c.RAPI.SearchRetryDelay),
		client.WithWorkers(c.RAPI.Workers),
	}
	if c.RAPI.HasCredentials() {
		opts = append(opts, client.WithCredentials(c.RAPI.Username, c.RAPI.Password))
	}
	if c.Breaker.Enabled {
		opts = append(opts, client.WithCircuitBreaker(client.DefaultBreakerSettings()))
	}
	return opts
}
