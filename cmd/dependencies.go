package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-chi/chi"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/billpay-relay/api"
	"github.com/frahmantamala/billpay-relay/db"
	"github.com/frahmantamala/billpay-relay/internal"
	"github.com/frahmantamala/billpay-relay/internal/auth"
	"github.com/frahmantamala/billpay-relay/internal/cache"
	"github.com/frahmantamala/billpay-relay/internal/core/events"
	"github.com/frahmantamala/billpay-relay/internal/order"
	"github.com/frahmantamala/billpay-relay/internal/order/sqlrepo"
	"github.com/frahmantamala/billpay-relay/internal/transport"
	"github.com/frahmantamala/billpay-relay/internal/transport/rest"
	"github.com/frahmantamala/billpay-relay/pkg/logger"
)

// Dependencies is everything a command needs, built once from the config.
type Dependencies struct {
	Config   *internal.Config
	Gorm     *gorm.DB
	DB       *sqlx.DB
	Cache    cache.Cache
	EventBus *events.EventBus
	Orders   *order.Service
	Stale    *sqlrepo.StaleOrderFinder
	Tokens   *auth.JWTTokenGenerator
	Callback *auth.SecretVerifier
	Logger   *slog.Logger
}

// NewDependencies opens the store, runs migrations when configured and wires the engine.
func NewDependencies(ctx context.Context, cfg *internal.Config) (*Dependencies, error) {
	lg := logger.L()

	gdb, sdb, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx, sdb.DB, cfg.Database.Driver, false); err != nil {
			_ = sdb.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	callback, err := auth.NewSecretVerifier(cfg.Security.CallbackSecret, cfg.Security.CallbackSecretHash)
	if err != nil {
		_ = sdb.Close()
		return nil, fmt.Errorf("failed to configure callback secret: %w", err)
	}

	statusCache := cache.New(cfg.Cache.RedisAddr, cfg.Cache.Prefix)
	bus := events.NewEventBus(lg)
	subscribeOrderEvents(bus, lg)

	orders := order.NewService(
		sqlrepo.NewOrderRepository(gdb),
		statusCache,
		bus,
		order.EngineConfig{
			DefaultCurrency:  cfg.Reconciliation.DefaultCurrency,
			TerminalStatuses: cfg.Reconciliation.TerminalStatuses,
			CacheTTL:         cfg.Cache.TTL,
		},
		lg,
	)

	return &Dependencies{
		Config:   cfg,
		Gorm:     gdb,
		DB:       sdb,
		Cache:    statusCache,
		EventBus: bus,
		Orders:   orders,
		Stale:    sqlrepo.NewStaleOrderFinder(sdb),
		Tokens:   auth.NewJWTTokenGenerator(cfg.Security.APITokenSecret, cfg.Security.APITokenTTL),
		Callback: callback,
		Logger:   lg,
	}, nil
}

// Router builds the HTTP surface.
func (d *Dependencies) Router(ctx context.Context) (*chi.Mux, error) {
	doc, err := api.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load openapi description: %w", err)
	}

	router := chi.NewRouter()
	health := rest.NewHealthHandler(map[string]rest.Pinger{
		"database": d.Stale,
		"cache":    d.Cache,
	})
	authHandler := auth.NewHandler(d.Tokens, d.Callback)
	orderHandler := order.NewHandler(d.Orders)
	responder := order.NewResponder(order.RedirectConfig{
		Scheme:         d.Config.Redirect.Scheme,
		Host:           d.Config.Redirect.Host,
		AndroidPackage: d.Config.Redirect.AndroidPackage,
		AutoDelay:      d.Config.Redirect.AutoDelay,
	})
	webhookHandler := order.NewWebhookHandler(transport.NewBaseHandler(d.Logger), d.Orders, responder, d.Config.Server.RequestTimeout)

	if err := rest.RegisterAllRoutes(router, health, authHandler, orderHandler, webhookHandler, doc, d.Logger); err != nil {
		return nil, err
	}
	return router, nil
}

// Close waits for in-flight event handlers and releases connections.
func (d *Dependencies) Close() {
	d.EventBus.Wait()
	if err := d.Cache.Close(); err != nil {
		d.Logger.Error("cache close error", "error", err)
	}
	if err := d.DB.Close(); err != nil {
		d.Logger.Error("database close error", "error", err)
	}
}

func subscribeOrderEvents(bus *events.EventBus, lg *slog.Logger) {
	logEvent := func(ctx context.Context, event events.Event) error {
		lg.Info("order event",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	}
	bus.Subscribe(events.EventTypeOrderPaid, logEvent)
	bus.Subscribe(events.EventTypeOrderFailed, logEvent)
	bus.Subscribe(events.EventTypeOrderAmountMismatch, func(ctx context.Context, event events.Event) error {
		lg.Warn("order amount mismatch",
			"event_id", event.EventID(),
			"payload", event.Payload())
		return nil
	})
}

// initDB opens gorm for the configured dialect and shares its pool with sqlx.
func initDB(cfg internal.DatabaseConfig) (*gorm.DB, *sqlx.DB, error) {
	dialector, driverName, err := dialectorFor(cfg)
	if err != nil {
		return nil, nil, err
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, nil, err
	}

	if cfg.Driver == "sqlite" {
		// one writer connection keeps in-memory databases and file locks sane
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return gdb, sqlx.NewDb(sqlDB, driverName), nil
}

func dialectorFor(cfg internal.DatabaseConfig) (gorm.Dialector, string, error) {
	switch cfg.Driver {
	case "postgres":
		pgxConfig, err := pgx.ParseConfig(cfg.GetDSN())
		if err != nil {
			return nil, "", fmt.Errorf("invalid postgres dsn: %w", err)
		}
		if _, ok := pgxConfig.RuntimeParams["application_name"]; !ok {
			pgxConfig.RuntimeParams["application_name"] = "billpay-relay"
		}
		return postgres.New(postgres.Config{Conn: stdlib.OpenDB(*pgxConfig)}), "pgx", nil
	case "sqlserver":
		return sqlserver.Open(cfg.GetDSN()), "sqlserver", nil
	case "sqlite":
		return sqlite.Open(cfg.GetDSN()), "sqlite3", nil
	}
	return nil, "", fmt.Errorf("unsupported driver %q", cfg.Driver)
}
