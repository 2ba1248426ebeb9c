package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/practicepulse/libs/auth"
	"github.com/md-rashed-zaman/practicepulse/libs/config"
	"github.com/md-rashed-zaman/practicepulse/libs/db"
	"github.com/md-rashed-zaman/practicepulse/libs/httpx"
	"github.com/md-rashed-zaman/practicepulse/libs/kafkax"
	otelx "github.com/md-rashed-zaman/practicepulse/libs/otel"
	"github.com/md-rashed-zaman/practicepulse/libs/runtime"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/alerts"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/audit"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/billing"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/cache"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/entitlements"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/handlers"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/lifecycle"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/metrics"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/outbox"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/storage"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/tenancy"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/migrations"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.ServiceName)

	// A plan table that is not monotonic by tier is a programming error.
	if err := entitlements.Validate(); err != nil {
		panic(err)
	}

	ctx, stop := runtime.SignalContext(logger)
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		ApplicationName: cfg.ServiceName,
		SlowQuery:       cfg.DBSlowQuery,
		Logger:          logger,
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.Bool("MIGRATE_ON_START", true) {
		if err := db.Migrate(ctx, pool, db.MigrateConfig{FS: migrations.FS, Dir: ".", Table: "practice_goose_version"}, logger); err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
	}

	mt := metrics.New()
	outboxRepo := outbox.NewRepository()
	repo := storage.NewRepository(pool, outboxRepo)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)},
	}

	var (
		invalidator cache.Invalidator = cache.Nop{}
		webhookMW   []httpx.Middleware
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			panic(err)
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()

		invalidator = cache.NewRedisInvalidator(rdb, cfg.CacheKeyPrefix, cfg.CacheChannel, logger, mt)
		rl := httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMin, time.Minute, cfg.RateLimitPrefix)
		webhookMW = append(webhookMW, rl.Middleware(logger, true))
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		logger.Info("redis enabled", "addr", opts.Addr)
	} else {
		webhookMW = append(webhookMW, httpx.NewRateLimiter(cfg.RateLimitPerMin, time.Minute).Middleware())
		logger.Warn("REDIS_URL not set; page cache invalidation disabled, rate limiting is per replica")
	}

	auditWriter := audit.NewWriter(repo, logger, mt)
	canceler := billing.NewStripeCanceler(billing.CancelerConfig{
		SecretKey: cfg.StripeSecretKey,
		Timeout:   cfg.StripeTimeout,
		BaseURL:   cfg.StripeAPIBase,
	}, logger)
	manager := lifecycle.NewManager(repo, canceler, invalidator, auditWriter, logger, lifecycle.WithMetrics(mt))
	processor := billing.NewProcessor(repo, billing.Config{
		WebhookSecret: cfg.WebhookSecret,
		Tolerance:     cfg.WebhookTolerance,
		PriceTiers:    cfg.priceTiers(),
	}, logger, mt)
	if cfg.WebhookSecret == "" {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set; every webhook will be rejected")
	}

	var jwks *auth.JWKSClient
	if cfg.JWKSURL != "" {
		jwks = auth.NewJWKSClient(cfg.JWKSURL, cfg.JWKSCacheTTL)
	}

	h := handlers.New(handlers.Deps{
		Lifecycle:         manager,
		Billing:           processor,
		Alerts:            alerts.NewService(repo, auditWriter),
		Logins:            auditWriter,
		Practices:         repo,
		Tenancy:           tenancy.NewResolver(repo, tenancy.Preference{Secure: runtime.IsProduction()}),
		Verifier:          auth.NewVerifier(cfg.JWTSecret, jwks),
		Logger:            logger,
		WebhookMiddleware: webhookMW,
	})

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		PollEvery: cfg.OutboxPollEvery,
		BatchSize: cfg.OutboxBatchSize,
		Retention: cfg.OutboxRetention,
		Metrics:   mt,
	})
	go publisher.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/metrics", mt.Handler())
	mux.Handle("/api/", h.Routes())

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithClientInfo,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept-Language", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           10 * time.Minute,
		}),
		httpx.WithBodyLimit(2<<20),
		httpx.WithTimeout(cfg.RequestTimeout),
	)
	handler = otelhttp.NewHandler(handler, "practice")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	if err := startGrpcServer(ctx, logger, cfg.GRPCPort, repo); err != nil {
		logger.Error("grpc server failed to start", "err", err)
	}

	<-ctx.Done()
	shutdown(srv, logger)
}

func shutdown(srv *http.Server, logger *slog.Logger) {
	grace, err := config.Duration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Warn("invalid SHUTDOWN_TIMEOUT, using default", "err", err)
		grace = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
