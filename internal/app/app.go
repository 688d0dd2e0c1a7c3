package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/food-orders/internal/domain/access"
	"github.com/xenking/food-orders/internal/domain/order"
	"github.com/xenking/food-orders/internal/events"
	"github.com/xenking/food-orders/internal/handler"
	"github.com/xenking/food-orders/internal/repository"
	"github.com/xenking/food-orders/pkg/health"
	"github.com/xenking/food-orders/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	applied, err := repository.RunMigrations(ctx, pool)
	if err != nil {
		return errors.Wrap(err, "run migrations")
	}
	lg.Info("Migrations applied", zap.Int64s("versions", applied))

	// Health check service.
	healthSvc := health.New()
	healthSvc.Register(health.Readiness, health.Check{
		Name:    "postgres",
		Timeout: 5 * time.Second,
		Func:    health.PingCheck(pool),
	})
	healthSvc.Register(health.Liveness, health.Check{
		Name:    "goroutines",
		Timeout: time.Second,
		Func:    health.GoroutineCountCheck(10000),
	})

	// Order events.
	var publishOpt []order.Option
	if brokers := events.ParseBrokers(cfg.Kafka.Brokers); len(brokers) > 0 {
		publisher := events.NewPublisher(events.NewWriter(brokers, cfg.Kafka.Topic, cfg.Kafka.Async))
		defer func() {
			if err := publisher.Close(); err != nil {
				lg.Warn("Close event publisher", zap.Error(err))
			}
		}()
		publishOpt = append(publishOpt, order.WithPublisher(publisher))

		if cfg.Kafka.Required {
			healthSvc.Register(health.Readiness, health.Check{
				Name:    "kafka",
				Timeout: 5 * time.Second,
				Func:    health.KafkaCheck(brokers, nil),
			})
		}
		lg.Info("Publishing order events", zap.Strings("brokers", brokers), zap.String("topic", cfg.Kafka.Topic))
	} else {
		lg.Info("No Kafka brokers configured, order events disabled")
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	mux, err := newRouter(ctx, cfg, pool, healthSvc, m.TracerProvider(), m.MeterProvider(), publishOpt...)
	if err != nil {
		return err
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           mux,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newRouter wires repositories, the order service and its HTTP handler onto
// a router that also serves the health endpoints.
func newRouter(
	ctx context.Context,
	cfg *Config,
	pool *pgxpool.Pool,
	healthSvc *health.Health,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	orderOpts ...order.Option,
) (chi.Router, error) {
	// Repositories.
	catalogRepo := repository.NewCatalogRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	parties := repository.NewCachedDirectory(
		repository.NewPartyRepository(pool),
		cfg.PartyCache.Size,
		cfg.PartyCache.TTL,
	)
	txm := repository.NewTxManager(pool)

	// Domain services.
	orderService, err := order.NewService(catalogRepo, parties, orderRepo, txm,
		append(orderOpts,
			order.WithMeterProvider(mp),
			order.WithPageLimits(order.PageLimits{
				Default: cfg.Orders.DefaultLimit,
				Max:     cfg.Orders.MaxLimit,
			}),
		)...,
	)
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}

	// HTTP handlers.
	h := handler.NewHandler(
		handler.HandlerConfig{ImageBaseURL: cfg.ImageBaseURL},
		orderService,
		access.NewResolver(parties),
	)

	mux := chi.NewRouter()
	// Inside the router so request logs carry the matched route pattern.
	mux.Use(
		httpmiddleware.Recovery(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.RequestID(),
		httpmiddleware.Instrument("food-orders", tp, mp),
		httpmiddleware.LogRequests(),
	)
	mux.Get("/livez", healthSvc.LiveEndpoint)
	mux.Get("/readyz", healthSvc.ReadyEndpoint)
	mux.Mount("/api", httpmiddleware.Wrap(h.Routes(),
		httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
			Keys:   cfg.RateLimit.Keys,
		}),
	))
	return mux, nil
}
