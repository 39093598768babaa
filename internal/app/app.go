// Package app wires the API server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/xenking/shopkart/internal/domain/auth"
	"github.com/xenking/shopkart/internal/domain/coupon"
	"github.com/xenking/shopkart/internal/domain/order"
	"github.com/xenking/shopkart/internal/domain/settings"
	"github.com/xenking/shopkart/internal/events"
	"github.com/xenking/shopkart/internal/handler"
	"github.com/xenking/shopkart/internal/storage/postgres"
	"github.com/xenking/shopkart/internal/storage/rediscache"
	"github.com/xenking/shopkart/pkg/health"
	"github.com/xenking/shopkart/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))
	ctx = zctx.Base(ctx, lg)

	shipping, err := cfg.Shipping.Policy()
	if err != nil {
		return errors.Wrap(err, "shipping policy")
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New(
		health.WithLogger(lg.Named("health")),
		health.WithMeterProvider(m.MeterProvider()),
	)
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, postgres.Ping(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	settingsRepo := postgres.NewSettingsRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Optional Redis: settings cache and shared rate limit counters.
	var (
		settingsCache settings.Cache
		limiterStore  httpmiddleware.Store
	)
	if cfg.Redis.Addr != "" {
		rdb, err := rediscache.NewClient(ctx, cfg.Redis.Client())
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = rdb.Close() }()

		settingsCache = rediscache.NewSettingsCache(rdb, rediscache.DefaultSettingsKey, cfg.Redis.SettingsTTL)
		limiterStore = rediscache.NewLimiter(rdb, "")
		healthSvc.AddReadinessCheck("redis", 2*time.Second, rediscache.Ping(rdb))
	}

	// Inbound HTTP and outbound events share one propagator.
	propagator := propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	otel.SetTextMapPropagator(propagator)

	// Optional Kafka: order events.
	var publisher order.Publisher = events.Nop{}
	if cfg.Kafka.Enabled() {
		p := events.NewPublisher(
			events.NewWriter(cfg.Kafka),
			cfg.Kafka.Topic,
			m.TracerProvider(),
			propagator,
		)
		defer func() {
			if err := p.Close(); err != nil {
				lg.Warn("Close event publisher", zap.Error(err))
			}
		}()
		publisher = p
		healthSvc.AddReadinessCheck("kafka", 2*time.Second, events.Ping(cfg.Kafka))
		lg.Info("Publishing order events",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	// Domain services.
	settingsSvc := settings.NewService(settingsRepo, settingsCache)
	couponValidator := coupon.NewRepoValidator(couponRepo)
	checkout := order.NewService(productRepo, couponValidator, orderRepo, settingsSvc, shipping, publisher)
	orderAdmin := order.NewAdminService(orderRepo, publisher)
	couponManager := coupon.NewManager(couponRepo)
	authenticator := auth.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper))

	// HTTP handlers.
	h, err := handler.New(
		handler.Config{ImageBaseURL: cfg.ImageBaseURL},
		handler.Deps{
			Products:  productRepo,
			Validator: couponValidator,
			Checkout:  checkout,
			Orders:    orderAdmin,
			Coupons:   couponManager,
			Settings:  settingsSvc,
			Auth:      authenticator,
		},
		m.MeterProvider(),
	)
	if err != nil {
		return errors.Wrap(err, "create handler")
	}

	router := chi.NewRouter()
	router.Use(
		httpmiddleware.Instrument("shopkart-api", m.TracerProvider(), m.MeterProvider()),
		httpmiddleware.LogRequests(),
	)
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Mount("/api", h.Routes())

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Store:  limiterStore,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
		),
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
