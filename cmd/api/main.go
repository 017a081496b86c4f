package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/resto-billing/internal/analytics"
	"github.com/noah-isme/resto-billing/internal/audit"
	"github.com/noah-isme/resto-billing/internal/auth"
	"github.com/noah-isme/resto-billing/internal/common"
	"github.com/noah-isme/resto-billing/internal/config"
	"github.com/noah-isme/resto-billing/internal/coupon"
	"github.com/noah-isme/resto-billing/internal/db"
	"github.com/noah-isme/resto-billing/internal/health"
	"github.com/noah-isme/resto-billing/internal/lock"
	"github.com/noah-isme/resto-billing/internal/menu"
	"github.com/noah-isme/resto-billing/internal/obs"
	"github.com/noah-isme/resto-billing/internal/order"
	"github.com/noah-isme/resto-billing/internal/ratelimit"
	"github.com/noah-isme/resto-billing/internal/resilience"
	"github.com/noah-isme/resto-billing/internal/rules"
	"github.com/noah-isme/resto-billing/internal/security"
	"github.com/noah-isme/resto-billing/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	decimal.MarshalJSONWithoutQuotes = true

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsEnabled {
		obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)
		resilience.MustRegisterMetrics(cfg.MetricsNamespace, nil)
	}
	tracingEnabled := cfg.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "resto-api",
			Endpoint:      cfg.OTLPEndpoint,
			SamplingRatio: cfg.TracingSampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.RunMigrations {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	startCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := db.Open(startCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	redisClient := mustInitRedis(startCtx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	queueOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse queue redis url")
	}
	queue := asynq.NewClient(queueOpt)
	defer queue.Close()

	rulesBreaker := resilience.NewBreaker("rules-db", cfg.RulesBreakerMinCalls, cfg.RulesBreakerFailureRatio, cfg.RulesBreakerOpenFor).
		WithLogger(logger)
	rulesStore := rules.PGStore{Pool: pool, Logger: logger}
	ruleSource := rules.CachedSource{
		Source: rules.GuardedSource{Source: rulesStore, Breaker: rulesBreaker},
		Cache:  rules.NewCache(redisClient, cfg.RulesCacheTTL),
		Logger: logger,
	}
	validate := validator.New()
	menuRepo := menu.PGRepo{Pool: pool}

	orderSvc := order.NewService(order.ServiceConfig{
		Menu:      menuRepo,
		Rules:     ruleSource,
		Coupons:   ruleSource,
		Store:     order.PGStore{Pool: pool},
		Locker:    lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff, MaxWait: cfg.LockMaxWait},
		Publisher: tasks.Publisher{Client: queue},
		Location:  cfg.BillingTimezone,
		LockTTL:   cfg.LockTTL,
		Logger:    logger,
	})
	orderHandler := &order.Handler{Svc: orderSvc, Validate: validate, Logger: logger}
	orderAdmin := &order.AdminHandler{Handler: *orderHandler}
	couponHandler := &coupon.Handler{
		Svc:      &coupon.Service{Coupons: ruleSource},
		Validate: validate,
		Logger:   logger,
	}
	rulesHandler := &rules.Handler{Source: ruleSource, Invalidator: ruleSource, Logger: logger}
	rulesAdmin := &rules.AdminHandler{Store: rulesStore, Invalidator: ruleSource, Logger: logger}
	menuHandler := &menu.Handler{Catalog: menuRepo, Validate: validate, Logger: logger}
	authMiddleware := auth.Middleware{Verifier: auth.NewVerifier(cfg.AdminJWTSecret, cfg.AdminJWTIssuer)}
	auditStore := audit.PGStore{Pool: pool}
	auditRec := audit.Recorder{
		Store:   auditStore,
		OnError: func(err error) { logger.Error().Err(err).Msg("record audit entry") },
	}
	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	salesHandler := &analytics.Handler{
		Svc: &analytics.Service{
			Store: analytics.PGStore{Pool: pool, Location: cfg.BillingTimezone},
			R:     redisClient,
			TTL:   cfg.AnalyticsCacheTTL,
		},
		Logger: logger,
	}

	previewLimiter, err := ratelimit.NewRedisLimiter(redisClient, cfg.PreviewRateLimit, "ratelimit:preview")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise preview rate limiter")
	}
	previewLimit := ratelimit.Handler{
		Limiter: previewLimiter,
		Key:     ratelimit.ClientKey,
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter store") },
	}

	var httpMetrics *obs.HTTPMetrics
	if cfg.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBuckets), nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers{HSTS: cfg.EnableHSTS}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Location", "X-Total-Count", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	healthHandler := health.Handler{Checker: health.Probe{DB: pool, Redis: redisClient}}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.With(previewLimit.Middleware).Post("/orders/preview", orderHandler.Preview)
		v.With(idem.Middleware).Post("/orders", orderHandler.Place)
		v.Get("/orders/{orderNumber}", orderHandler.Get)
		v.Post("/coupons/validate", couponHandler.Check)
		v.Get("/restaurants", menuHandler.Restaurants)
		v.Get("/restaurants/{restaurantId}/menu", menuHandler.Menu)
		v.Get("/restaurants/{restaurantId}/rules", rulesHandler.Snapshot)

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(authMiddleware.RequireAdmin)
			admin.With(auditRec.Middleware(audit.Route{Action: "rules.invalidate", ResourceType: "restaurant", ResourceIDParam: "restaurantId"})).
				Post("/restaurants/{restaurantId}/rules/invalidate", rulesHandler.Invalidate)
			admin.Post("/rules/validate", rulesHandler.Validate)
			admin.Get("/restaurants/{restaurantId}/rules", rulesAdmin.List)
			admin.With(auditRec.Middleware(audit.Route{Action: "rules.create", ResourceType: "restaurant", ResourceIDParam: "restaurantId"})).
				Post("/restaurants/{restaurantId}/rules/{family}", rulesAdmin.Create)
			admin.With(auditRec.Middleware(audit.Route{Action: "rules.update", ResourceType: "rule", ResourceIDParam: "ruleId"})).
				Put("/restaurants/{restaurantId}/rules/{family}/{ruleId}", rulesAdmin.Update)
			admin.With(auditRec.Middleware(audit.Route{Action: "rules.deactivate", ResourceType: "rule", ResourceIDParam: "ruleId"})).
				Delete("/restaurants/{restaurantId}/rules/{family}/{ruleId}", rulesAdmin.Deactivate)
			admin.With(auditRec.Middleware(audit.Route{Action: "restaurant.upsert", ResourceType: "restaurant", ResourceIDParam: "restaurantId"})).
				Put("/restaurants/{restaurantId}", menuHandler.PutRestaurant)
			admin.With(auditRec.Middleware(audit.Route{Action: "menu.upsert", ResourceType: "menu_item", ResourceIDParam: "itemId"})).
				Put("/restaurants/{restaurantId}/menu/{itemId}", menuHandler.PutItem)
			admin.With(auditRec.Middleware(audit.Route{Action: "menu.retire", ResourceType: "menu_item", ResourceIDParam: "itemId"})).
				Delete("/restaurants/{restaurantId}/menu/{itemId}", menuHandler.RetireItem)
			admin.Get("/restaurants/{restaurantId}/orders", orderAdmin.List)
			admin.With(auditRec.Middleware(audit.Route{Action: "order.status", ResourceType: "order", ResourceIDParam: "orderNumber"})).
				Patch("/orders/{orderNumber}/status", orderAdmin.PatchStatus)
			admin.Get("/audit", audit.Handler{Store: auditStore}.List)
			admin.Get("/restaurants/{restaurantId}/sales", salesHandler.Sales)
			admin.Get("/restaurants/{restaurantId}/top-items", salesHandler.TopItems)
		})
	})

	var handler http.Handler = r
	if tracingEnabled {
		handler = otelhttp.NewHandler(r, "resto-api")
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-ctx.Done()
	health.SetReady(false)
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
