package main

import (
	"net/http"
	"time"

	"github.com/shuttercraft/studiobook/libs/config"
	"github.com/shuttercraft/studiobook/libs/db"
	"github.com/shuttercraft/studiobook/libs/httpx"
	"github.com/shuttercraft/studiobook/libs/inbox"
	"github.com/shuttercraft/studiobook/libs/kafkax"
	otelx "github.com/shuttercraft/studiobook/libs/otel"
	"github.com/shuttercraft/studiobook/libs/runtime"
	"github.com/shuttercraft/studiobook/services/analytics-service/internal/handlers"
	"github.com/shuttercraft/studiobook/services/analytics-service/internal/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "analytics-service")
	port, err := config.Port("PORT", "8086")
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

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.String("RUN_MIGRATIONS", "true") != "false" {
		if err := metrics.Migrate(ctx, pool); err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
	}

	repo := metrics.NewRepository(pool)
	inboxRepo := inbox.NewRepository(pool)
	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", service)

	if brokers == "" {
		logger.Warn("KAFKA_BROKERS not set, session events will not be consumed")
	} else {
		for _, topic := range []string{metrics.TopicSessionBooked, metrics.TopicSessionCancelled} {
			c := kafkax.NewConsumer(logger, inboxRepo, kafkax.ConsumerConfig{
				Brokers: brokers,
				GroupID: groupID,
				Topic:   topic,
			}, metrics.SessionEventHandler(repo, logger))
			go c.Run(ctx)
		}
	}

	dailyHandler := handlers.NewDailyHandler(repo, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.HandleFunc("/api/v1/analytics/daily", dailyHandler.Daily)

	handler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithTimeout(10*time.Second),
	)
	handler = otelhttp.NewHandler(handler, "analytics")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
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
