package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/utafrali/commerce-fulfillment/pkg/database"
	"github.com/utafrali/commerce-fulfillment/pkg/httpclient"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/client/catalog"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/config"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/migrations"
)

type stores struct {
	pool *pgxpool.Pool
	rdb  *goredis.Client
}

// openStores connects to Postgres, applies migrations and connects to Redis.
// Both connections are registered as closers.
func (a *App) openStores(ctx context.Context, cfg *config.Config) (stores, error) {
	pool, err := database.NewPostgresPool(ctx, database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}, a.logger)
	if err != nil {
		return stores{}, fmt.Errorf("connect to postgres: %w", err)
	}
	a.closers = append(a.closers, closer{"postgres", func(context.Context) error {
		pool.Close()
		return nil
	}})
	a.logger.Info("connected to postgres",
		slog.String("host", cfg.PostgresHost),
		slog.String("database", cfg.PostgresDB),
	)

	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		return stores{}, fmt.Errorf("register pool metrics: %w", err)
	}
	if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
		return stores{}, fmt.Errorf("run migrations: %w", err)
	}
	database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, a.logger)

	redisCfg := database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	}
	rdb, err := database.NewRedisClient(ctx, redisCfg)
	if err != nil {
		return stores{}, fmt.Errorf("connect to redis: %w", err)
	}
	a.closers = append(a.closers, closer{"redis", func(context.Context) error { return rdb.Close() }})
	a.logger.Info("connected to redis", slog.String("addr", redisCfg.Addr()), slog.Int("db", cfg.RedisDB))

	return stores{pool: pool, rdb: rdb}, nil
}

// newCatalogClient builds the catalog client behind a retrying HTTP client and
// a circuit breaker that falls back to CircuitOpenFallback.
func newCatalogClient(cfg *config.Config, logger *slog.Logger) *catalog.Client {
	breaker := httpclient.CircuitBreakerConfig{
		Name:         "fulfillment-catalog",
		MaxRequests:  cfg.CBMaxRequests,
		Interval:     time.Duration(cfg.CBInterval) * time.Second,
		Timeout:      time.Duration(cfg.CBTimeout) * time.Second,
		FailureRatio: cfg.CBFailureRatio,
		MinRequests:  cfg.CBMinRequests,
	}
	base := httpclient.New(httpclient.Config{
		Timeout:         5 * time.Second,
		MaxRetries:      2,
		RetryWaitMin:    200 * time.Millisecond,
		RetryWaitMax:    2 * time.Second,
		MaxConnsPerHost: 100,
	})
	cb := httpclient.NewCircuitBreakerClient(base, breaker, logger).WithFallback(catalog.CircuitOpenFallback)
	return catalog.NewClient(cb, cfg.CatalogServiceURL, logger)
}
