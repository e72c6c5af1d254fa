package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/frahmantamala/billpay-relay/internal"
	"github.com/frahmantamala/billpay-relay/pkg/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "billpay-relay",
	Short: "ToyyibPay webhook relay",
	Long:  `Receives ToyyibPay return and callback events, reconciles them into orders and hands the payer back to the mobile app.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// a missing .env is normal outside development
		_ = godotenv.Load()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// LoadConfig reads config.yml from path, or the plain environment in containers.
func LoadConfig(path string) (*internal.Config, error) {
	if os.Getenv("APP_ENV") == "production" || os.Getenv("DOCKER_ENV") == "true" {
		cfg := internal.LoadConfigFromEnv()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("error validating config from environment: %w", err)
		}
		initLogger(cfg)
		return cfg, nil
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvPrefix("ENV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	var cfg internal.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("error validating config: %w", err)
	}

	initLogger(&cfg)
	return &cfg, nil
}

// setDefaults mirrors LoadConfigFromEnv so a short config.yml is enough.
func setDefaults(v *viper.Viper) {
	d := internal.LoadConfigFromEnv()
	v.SetDefault("env", "development")
	v.SetDefault("http_server.port", d.Server.Port)
	v.SetDefault("http_server.read_header_timeout", d.Server.ReadHeaderTimeout)
	v.SetDefault("http_server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("http_server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("http_server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("http_server.request_timeout", d.Server.RequestTimeout)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", d.Database.ConnMaxIdleTime)
	v.SetDefault("database.auto_migrate", d.Database.AutoMigrate)
	v.SetDefault("security.api_token_ttl", d.Security.APITokenTTL)
	v.SetDefault("security.bcrypt_cost", d.Security.BCryptCost)
	v.SetDefault("gateway.base_url", d.Gateway.BaseURL)
	v.SetDefault("gateway.request_timeout", d.Gateway.RequestTimeout)
	v.SetDefault("gateway.max_workers", d.Gateway.MaxWorkers)
	v.SetDefault("gateway.job_queue_size", d.Gateway.JobQueueSize)
	v.SetDefault("gateway.worker_pool_size", d.Gateway.WorkerPoolSize)
	v.SetDefault("reconciliation.default_currency", d.Reconciliation.DefaultCurrency)
	v.SetDefault("reconciliation.terminal_statuses", d.Reconciliation.TerminalStatuses)
	v.SetDefault("reconciliation.stale_after", d.Reconciliation.StaleAfter)
	v.SetDefault("reconciliation.sweep_interval", d.Reconciliation.SweepInterval)
	v.SetDefault("reconciliation.batch_size", d.Reconciliation.BatchSize)
	v.SetDefault("redirect.host", d.Redirect.Host)
	v.SetDefault("redirect.auto_delay", d.Redirect.AutoDelay)
	v.SetDefault("cache.prefix", d.Cache.Prefix)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("observability.logging.level", "debug")
	v.SetDefault("observability.logging.format", "text")
}

func initLogger(cfg *internal.Config) {
	logger.Init(cfg.Env, cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "directory containing config.yml")

	rootCmd.AddCommand(httpServerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}
