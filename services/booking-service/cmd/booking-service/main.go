package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shuttercraft/studiobook/libs/config"
	"github.com/shuttercraft/studiobook/libs/db"
	"github.com/shuttercraft/studiobook/libs/httpx"
	"github.com/shuttercraft/studiobook/libs/inbox"
	"github.com/shuttercraft/studiobook/libs/kafkax"
	otelx "github.com/shuttercraft/studiobook/libs/otel"
	"github.com/shuttercraft/studiobook/libs/runtime"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/consumer"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/handlers"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/hours"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/outbox"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/pricing"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() { _ = runtime.RunShutdown(5*time.Second, otelShutdown) }()
	}

	loc, err := config.Location("STUDIO_TIMEZONE", "America/Chicago")
	if err != nil {
		panic(err)
	}
	step, err := config.Duration("SLOT_STEP", 15*time.Minute)
	if err != nil {
		panic(err)
	}
	custom, err := customPolicyFromEnv()
	if err != nil {
		panic(err)
	}
	calc, err := pricing.NewCalculator(pricing.DefaultPackages, pricing.DefaultAddOns, custom, config.String("CURRENCY", "USD"))
	if err != nil {
		panic(err)
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	maxConns, err := config.Int("DB_MAX_CONNS", 10)
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(maxConns)})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.String("RUN_MIGRATIONS", "true") != "false" {
		if err := storage.Migrate(ctx, pool); err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
	}

	outboxRepo := outbox.NewRepository()
	repo := storage.NewBookingRepository(pool, outboxRepo, loc)

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
		DrainFor:  5 * time.Second,
	})
	go outboxPublisher.Run(ctx)

	if topic := strings.TrimSpace(config.String("KAFKA_CONSUME_TOPIC", consumer.TopicShootCompleted)); topic != "" && brokers != "" {
		shootConsumer := kafkax.NewConsumer(logger, inbox.NewRepository(pool), kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", service),
			Topic:   topic,
		}, consumer.ShootCompletedHandler(repo, logger))
		go shootConsumer.Run(ctx)
	}

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}

	limitPerMinute, err := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	if err != nil {
		panic(err)
	}
	var limiter httpx.Limiter
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		redisDB, err := config.Int("REDIS_DB", 0)
		if err != nil {
			panic(err)
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer func() { _ = rdb.Close() }()
		limiter = httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "studio-rl"))
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		limiter = httpx.NewMemoryRateLimiter(limitPerMinute, time.Minute)
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}
	rateLimit := httpx.RateLimit(limiter, logger, config.String("RATE_LIMIT_FAIL_OPEN", "true") != "false")

	bookingHandler := handlers.NewBookingHandler(repo, hours.DefaultPolicy(loc), calc, step, logger)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	public := func(h http.HandlerFunc) http.Handler { return rateLimit(h) }
	mux.Handle("/api/v1/public/catalog", public(bookingHandler.Catalog))
	mux.Handle("/api/v1/public/windows", public(bookingHandler.Windows))
	mux.Handle("/api/v1/public/slots", public(bookingHandler.Slots))
	mux.Handle("/api/v1/public/quote", public(bookingHandler.Quote))
	mux.Handle("/api/v1/public/book", public(bookingHandler.Book))
	mux.HandleFunc("/api/v1/reservations", bookingHandler.List)
	mux.HandleFunc("/api/v1/reservations/cancel", bookingHandler.Cancel)

	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: httpx.ParseOrigins(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Idempotency-Key", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(64<<10),
		httpx.WithTimeout(10*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "timezone", loc.String())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	if err := runtime.RunShutdown(10*time.Second, srv.Shutdown); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// customPolicyFromEnv reads CUSTOM_* overrides on top of the default custom pricing.
func customPolicyFromEnv() (pricing.CustomPolicy, error) {
	p := pricing.DefaultCustomPolicy
	var err error
	if p.HourlyRateMinorUnits, err = config.Int64("CUSTOM_HOURLY_RATE_MINOR", p.HourlyRateMinorUnits); err != nil {
		return p, err
	}
	if p.MinimumTotalMinorUnits, err = config.Int64("CUSTOM_MINIMUM_TOTAL_MINOR", p.MinimumTotalMinorUnits); err != nil {
		return p, err
	}
	if p.FamilySurchargeThresholdPeople, err = config.Int("CUSTOM_FAMILY_SURCHARGE_THRESHOLD", p.FamilySurchargeThresholdPeople); err != nil {
		return p, err
	}
	if p.FamilySurchargePerExtraPersonMinorUnits, err = config.Int64("CUSTOM_FAMILY_SURCHARGE_PER_PERSON_MINOR", p.FamilySurchargePerExtraPersonMinorUnits); err != nil {
		return p, err
	}
	return p, nil
}
