package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/utafrali/commerce-fulfillment/pkg/health"
	pkgkafka "github.com/utafrali/commerce-fulfillment/pkg/kafka"
	"github.com/utafrali/commerce-fulfillment/pkg/middleware"
	"github.com/utafrali/commerce-fulfillment/pkg/tracing"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/config"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/event"
	handler "github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/handler/http"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/promotion"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/repository/postgres"
	redisrepo "github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/repository/redis"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/service"
)

const serviceName = "fulfillment"

// App owns the fulfillment service's connections, HTTP server and consumers.
type App struct {
	logger     *slog.Logger
	httpServer *http.Server
	consumers  []namedConsumer
	// closers run last-registered first on shutdown.
	closers []closer
}

type namedConsumer struct {
	name     string
	consumer *pkgkafka.Consumer
}

type closer struct {
	name  string
	close func(context.Context) error
}

// NewApp connects to every backing service and builds the object graph. On
// error, whatever was opened is closed again.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	a := &App{logger: logger}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.closers = append(a.closers, closer{"tracer", tracerShutdown})

	s, err := a.openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	producer := pkgkafka.NewProducer(pkgkafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
	}, logger)
	a.closers = append(a.closers, closer{"kafka producer", func(context.Context) error { return producer.Close() }})
	if err := producer.WaitReady(ctx, 3, time.Second); err != nil {
		logger.Warn("kafka unreachable, publishing will fail until it recovers", slog.String("error", err.Error()))
	}

	catalogClient := newCatalogClient(cfg, logger)

	stockRepo := postgres.NewStockItemRepository(s.pool)
	promoRepo := postgres.NewPromotionRepository(s.pool)
	events := event.NewProducer(producer, logger)

	inventory := service.NewInventoryService(stockRepo, events, logger, cfg.OCCMaxAttempts)
	orders := service.NewOrderService(
		postgres.NewOrderRepository(s.pool),
		promoRepo,
		catalogClient,
		promotion.NewCalculator(),
		events,
		logger,
		cfg.OCCMaxAttempts,
		cfg.DefaultCurrency,
	)
	reservations := service.NewReservationService(inventory, stockRepo, orders, logger)
	projections := service.NewProjectionService(
		stockRepo,
		postgres.NewSummaryRepository(s.pool),
		redisrepo.NewSummaryCache(s.rdb, time.Duration(cfg.SummaryCacheTTL)*time.Second),
		logger,
	)

	handlers := event.NewConsumer(projections, reservations, orders, logger)
	processed := redisrepo.NewIdempotencyStore(s.rdb, time.Duration(cfg.IdempotencyTTLHrs)*time.Hour)
	for _, sub := range []struct {
		name, topic string
		handle      pkgkafka.Handler
	}{
		{"stock-changed", event.TopicStockChanged, handlers.HandleStockChanged},
		{"order-canceled", event.TopicOrderCanceled, handlers.HandleOrderCanceled},
		{"payment-succeeded", event.TopicPaymentSucceeded, handlers.HandlePaymentSucceeded},
	} {
		a.consumers = append(a.consumers, namedConsumer{
			name: sub.name,
			consumer: pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
				Brokers:   cfg.KafkaBrokers,
				GroupID:   "fulfillment-service-" + sub.name,
				Topic:     sub.topic,
				MinBytes:  1,
				MaxBytes:  10e6,
				EnableDLQ: true,
			}, pkgkafka.IdempotentHandler(processed, sub.handle, logger), logger),
		})
	}

	checks := health.NewHandler()
	checks.RegisterCritical("postgres", s.pool.Ping)
	checks.RegisterNonCritical("redis", func(ctx context.Context) error { return s.rdb.Ping(ctx).Err() })
	checks.RegisterNonCritical("kafka", producer.Ping)

	router := handler.NewRouter(handler.Services{
		Inventory:   inventory,
		Projections: projections,
		Orders:      orders,
		Promotions:  service.NewPromotionService(promoRepo, logger),
	}, checks, logger, handler.RouterOptions{
		PprofCIDRs:  cfg.PprofAllowedCIDRs,
		CORSOrigins: cfg.CORSAllowedOrigins,
		RateLimit: middleware.RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		},
	})

	a.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// Run serves HTTP and runs the consumers until ctx is canceled or one of them
// fails, then shuts down.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1+len(a.consumers))

	go func() {
		a.logger.Info("http server listening", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	for _, c := range a.consumers {
		go func() {
			if err := c.consumer.Start(ctx); err != nil {
				errCh <- fmt.Errorf("%s consumer: %w", c.name, err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
		return a.Shutdown()
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}
}

// Shutdown drains in-flight HTTP requests, stops the consumers and then
// closes the producer, Redis, Postgres and the tracer, in that order.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down")

	var errs []error
	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}
	for _, c := range a.consumers {
		if err := c.consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s consumer: %w", c.name, err))
		}
	}
	if err := a.close(); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	if err != nil {
		a.logger.Error("shutdown finished with errors", slog.String("error", err.Error()))
		return err
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := c.close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
		cancel()
	}
	a.closers = nil
	return errors.Join(errs...)
}
