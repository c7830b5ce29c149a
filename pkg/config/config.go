// Package config loads pagestream settings from a config file, PAGESTREAM_*
// environment variables and command line flags using viper.
//
// Keys (file and env form):
//
//	base_url                        PAGESTREAM_BASE_URL
//	user_agent                      PAGESTREAM_USER_AGENT
//	timeout                         PAGESTREAM_TIMEOUT
//	redis.addr                      PAGESTREAM_REDIS_ADDR
//	redis.password                  PAGESTREAM_REDIS_PASSWORD
//	redis.db                        PAGESTREAM_REDIS_DB
//	pagination.page_size            PAGESTREAM_PAGINATION_PAGE_SIZE
//	pagination.max_concurrency      PAGESTREAM_PAGINATION_MAX_CONCURRENCY
//	pagination.splits_per_worker    PAGESTREAM_PAGINATION_SPLITS_PER_WORKER
//	retry.max_attempts              PAGESTREAM_RETRY_MAX_ATTEMPTS
//	retry.initial_backoff           PAGESTREAM_RETRY_INITIAL_BACKOFF
//	retry.max_backoff               PAGESTREAM_RETRY_MAX_BACKOFF
//	retry.backoff_multiplier        PAGESTREAM_RETRY_BACKOFF_MULTIPLIER
//	rate_limit.critical             PAGESTREAM_RATE_LIMIT_CRITICAL
//	rate_limit.warning              PAGESTREAM_RATE_LIMIT_WARNING
//	rate_limit.healthy              PAGESTREAM_RATE_LIMIT_HEALTHY
//	logger.level                    PAGESTREAM_LOGGER_LEVEL
//	logger.pretty                   PAGESTREAM_LOGGER_PRETTY
//
// Flags bound to the viper instance win over the environment, which wins
// over the file. Unset keys fall back to the package defaults of client,
// pagination, ratelimit and logging.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/pagestream/pkg/client"
	"github.com/Sternrassler/pagestream/pkg/logging"
	"github.com/Sternrassler/pagestream/pkg/pagination"
	"github.com/Sternrassler/pagestream/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "PAGESTREAM"

// Config is the complete pagestream configuration.
type Config struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	Redis      Redis
	Pagination Pagination
	Retry      client.RetryConfig
	RateLimit  ratelimit.Thresholds
	Logger     Logger
}

// Redis configures the connection backing the page cache and the shared
// rate limit state. An empty Addr disables both.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// Pagination configures sequences built from the config.
type Pagination struct {
	PageSize        int
	MaxConcurrency  int
	SplitsPerWorker int
}

// Logger configures the global logger.
type Logger struct {
	Level  logging.LogLevel
	Pretty bool
}

// NewViper returns a viper instance reading PAGESTREAM_* environment
// variables. Flags can be bound to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path, if any, into v and returns the
// resulting configuration. The file format follows the file extension.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		BaseURL:    v.GetString("base_url"),
		UserAgent:  v.GetString("user_agent"),
		Timeout:    getDurationOrDefault(v, "timeout", 30*time.Second),
		Redis:      getRedisConfig(v),
		Pagination: getPaginationConfig(v),
		Retry:      getRetryConfig(v),
		RateLimit:  getRateLimitConfig(v),
		Logger:     getLoggerConfig(v),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that are not validated by client.New.
func (c *Config) Validate() error {
	if c.Pagination.PageSize <= 0 {
		return fmt.Errorf("pagination.page_size must be positive (got %d)", c.Pagination.PageSize)
	}
	if c.Pagination.MaxConcurrency < 1 {
		return fmt.Errorf("pagination.max_concurrency must be >= 1 (got %d)", c.Pagination.MaxConcurrency)
	}
	if c.Pagination.SplitsPerWorker < 1 {
		return fmt.Errorf("pagination.splits_per_worker must be >= 1 (got %d)", c.Pagination.SplitsPerWorker)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive (got %s)", c.Timeout)
	}
	switch strings.ToLower(string(c.Logger.Level)) {
	case "debug", "info", "warn", "warning", "error", "disabled", "off":
	default:
		return fmt.Errorf("logger.level %q is not one of debug, info, warn, error, disabled", c.Logger.Level)
	}
	return nil
}

// Apply makes the configured page size the process-wide default used by
// pagination.NewDefault.
func (c *Config) Apply() error {
	return pagination.SetDefaultPageSize(c.Pagination.PageSize)
}

// NewRedisClient returns a client for the configured Redis, or nil when no
// address is configured.
func (c *Config) NewRedisClient() *redis.Client {
	if c.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	})
}

// ClientConfig returns the HTTP client configuration.
func (c *Config) ClientConfig(redisClient *redis.Client) client.Config {
	cfg := client.DefaultConfig(redisClient, c.BaseURL, c.UserAgent)
	cfg.Timeout = c.Timeout
	cfg.Retry = c.Retry
	cfg.RateLimit = c.RateLimit
	return cfg
}

// ParallelConfig returns the parallel traversal configuration.
func (c *Config) ParallelConfig() pagination.Config {
	return pagination.Config{
		MaxConcurrency:  c.Pagination.MaxConcurrency,
		SplitsPerWorker: c.Pagination.SplitsPerWorker,
	}
}

// LoggingConfig returns the logger configuration, writing to stderr.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Logger.Level
	cfg.Pretty = c.Logger.Pretty
	return cfg
}

func getRedisConfig(v *viper.Viper) Redis {
	return Redis{
		Addr:     v.GetString("redis.addr"),
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),
	}
}

func getPaginationConfig(v *viper.Viper) Pagination {
	def := pagination.DefaultConfig()
	return Pagination{
		PageSize:        getIntOrDefault(v, "pagination.page_size", pagination.InitialDefaultPageSize),
		MaxConcurrency:  getIntOrDefault(v, "pagination.max_concurrency", def.MaxConcurrency),
		SplitsPerWorker: getIntOrDefault(v, "pagination.splits_per_worker", def.SplitsPerWorker),
	}
}

func getRetryConfig(v *viper.Viper) client.RetryConfig {
	def := client.DefaultRetryConfig()
	return client.RetryConfig{
		MaxAttempts:       getIntOrDefault(v, "retry.max_attempts", def.MaxAttempts),
		InitialBackoff:    getDurationOrDefault(v, "retry.initial_backoff", def.InitialBackoff),
		MaxBackoff:        getDurationOrDefault(v, "retry.max_backoff", def.MaxBackoff),
		BackoffMultiplier: getFloat64OrDefault(v, "retry.backoff_multiplier", def.BackoffMultiplier),
	}
}

func getRateLimitConfig(v *viper.Viper) ratelimit.Thresholds {
	def := ratelimit.DefaultThresholds()
	return ratelimit.Thresholds{
		Critical: getIntOrDefault(v, "rate_limit.critical", def.Critical),
		Warning:  getIntOrDefault(v, "rate_limit.warning", def.Warning),
		Healthy:  getIntOrDefault(v, "rate_limit.healthy", def.Healthy),
	}
}

func getLoggerConfig(v *viper.Viper) Logger {
	def := logging.DefaultConfig()
	return Logger{
		Level:  logging.LogLevel(getStringOrDefault(v, "logger.level", string(def.Level))),
		Pretty: getBoolOrDefault(v, "logger.pretty", def.Pretty),
	}
}
