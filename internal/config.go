package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env            string               `mapstructure:"env"`
	Server         ServerConfig         `mapstructure:"http_server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Security       SecurityConfig       `mapstructure:"security"`
	Gateway        GatewayConfig        `mapstructure:"gateway"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Redirect       RedirectConfig       `mapstructure:"redirect"`
	Cache          CacheConfig          `mapstructure:"cache"`
	Observability  ObservabilityConfig  `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	// RequestTimeout bounds a single engine invocation.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Source          string        `mapstructure:"source"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type SecurityConfig struct {
	// CallbackSecret is compared in constant time; CallbackSecretHash (bcrypt) wins when both are set.
	CallbackSecret     string        `mapstructure:"callback_secret"`
	CallbackSecretHash string        `mapstructure:"callback_secret_hash"`
	APITokenSecret     string        `mapstructure:"api_token_secret"`
	APITokenTTL        time.Duration `mapstructure:"api_token_ttl"`
	BCryptCost         int           `mapstructure:"bcrypt_cost"`
}

type GatewayConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	UserSecretKey  string        `mapstructure:"user_secret_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxWorkers     int           `mapstructure:"max_workers"`
	JobQueueSize   int           `mapstructure:"job_queue_size"`
	WorkerPoolSize int           `mapstructure:"worker_pool_size"`
}

type ReconciliationConfig struct {
	DefaultCurrency  string        `mapstructure:"default_currency"`
	TerminalStatuses bool          `mapstructure:"terminal_statuses"`
	StaleAfter       time.Duration `mapstructure:"stale_after"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	BatchSize        int           `mapstructure:"batch_size"`
}

type RedirectConfig struct {
	Scheme         string        `mapstructure:"scheme"`
	Host           string        `mapstructure:"host"`
	AndroidPackage string        `mapstructure:"android_package"`
	AutoDelay      time.Duration `mapstructure:"auto_delay"`
}

type CacheConfig struct {
	RedisAddr string        `mapstructure:"redis_addr"`
	Prefix    string        `mapstructure:"prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfigFromEnv builds the configuration from plain environment variables (container deployments).
func LoadConfigFromEnv() *Config {
	return &Config{
		Env: getEnv("APP_ENV", "production"),
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 3000),
			BaseURL:           getEnv("HTTP_BASE_URL", ""),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			RequestTimeout:    getEnvAsDuration("HTTP_REQUEST_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			Source:          getEnv("DB_SOURCE", ""),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			AutoMigrate:     getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Security: SecurityConfig{
			CallbackSecret:     getEnv("CALLBACK_SECRET", ""),
			CallbackSecretHash: getEnv("CALLBACK_SECRET_HASH", ""),
			APITokenSecret:     getEnv("API_TOKEN_SECRET", ""),
			APITokenTTL:        getEnvAsDuration("API_TOKEN_TTL", 24*time.Hour),
			BCryptCost:         getEnvAsInt("BCRYPT_COST", 12),
		},
		Gateway: GatewayConfig{
			BaseURL:        getEnv("GATEWAY_BASE_URL", "https://dev.toyyibpay.com"),
			UserSecretKey:  getEnv("GATEWAY_USER_SECRET_KEY", ""),
			RequestTimeout: getEnvAsDuration("GATEWAY_REQUEST_TIMEOUT", 10*time.Second),
			MaxWorkers:     getEnvAsInt("GATEWAY_MAX_WORKERS", 4),
			JobQueueSize:   getEnvAsInt("GATEWAY_JOB_QUEUE_SIZE", 100),
			WorkerPoolSize: getEnvAsInt("GATEWAY_WORKER_POOL_SIZE", 4),
		},
		Reconciliation: ReconciliationConfig{
			DefaultCurrency:  getEnv("DEFAULT_CURRENCY", "MYR"),
			TerminalStatuses: getEnvAsBool("TERMINAL_STATUSES", true),
			StaleAfter:       getEnvAsDuration("RECONCILE_STALE_AFTER", 15*time.Minute),
			SweepInterval:    getEnvAsDuration("RECONCILE_SWEEP_INTERVAL", time.Minute),
			BatchSize:        getEnvAsInt("RECONCILE_BATCH_SIZE", 50),
		},
		Redirect: RedirectConfig{
			Scheme:         getEnv("REDIRECT_SCHEME", ""),
			Host:           getEnv("REDIRECT_HOST", "payment-result"),
			AndroidPackage: getEnv("REDIRECT_ANDROID_PACKAGE", ""),
			AutoDelay:      getEnvAsDuration("REDIRECT_AUTO_DELAY", 2*time.Second),
		},
		Cache: CacheConfig{
			RedisAddr: getEnv("REDIS_ADDR", ""),
			Prefix:    getEnv("CACHE_PREFIX", "billpay-relay"),
			TTL:       getEnvAsDuration("CACHE_TTL", 30*time.Second),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Gateway.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("gateway config: %v", err))
	}

	if err := c.Reconciliation.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("reconciliation config: %v", err))
	}

	if err := c.Observability.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
			return fmt.Errorf("invalid base_url %s: %w", c.BaseURL, err)
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case "postgres", "sqlserver", "sqlite":
	default:
		return fmt.Errorf("unsupported driver %q", c.Driver)
	}
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if c.CallbackSecret == "" && c.CallbackSecretHash == "" {
		return errors.New("callback_secret or callback_secret_hash is required")
	}
	if c.CallbackSecretHash != "" && !strings.HasPrefix(c.CallbackSecretHash, "$2") {
		return errors.New("callback_secret_hash must be a bcrypt hash")
	}
	if len(c.APITokenSecret) < 32 {
		return errors.New("api_token_secret must be at least 32 characters")
	}
	if c.APITokenTTL <= 0 {
		return errors.New("api_token_ttl must be positive")
	}
	return nil
}

func (c *GatewayConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	return nil
}

func (c *ReconciliationConfig) Validate() error {
	if len(c.DefaultCurrency) != 3 {
		return errors.New("default_currency must be a 3-letter code")
	}
	if c.BatchSize < 0 {
		return errors.New("batch_size cannot be negative")
	}
	return nil
}

func (c *LoggingConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid level %q", c.Level)
	}
	switch c.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid format %q", c.Format)
	}
	return nil
}
