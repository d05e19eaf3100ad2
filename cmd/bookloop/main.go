package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bookloop/bookloop/internal/handlers"
	"github.com/bookloop/bookloop/internal/outbox"
	"github.com/bookloop/bookloop/internal/storage"
	"github.com/bookloop/bookloop/libs/config"
	"github.com/bookloop/bookloop/libs/db"
	"github.com/bookloop/bookloop/libs/httpx"
	"github.com/bookloop/bookloop/libs/kafkax"
	otelx "github.com/bookloop/bookloop/libs/otel"
	"github.com/bookloop/bookloop/libs/runtime"
)

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func main() {
	service := config.String("SERVICE_NAME", "bookloop")
	port, err := config.Port("PORT", "8080")
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
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	scheduleRepo := storage.NewScheduleRepository(pool)
	bookingRepo := storage.NewBookingRepository(pool)
	pollRepo := storage.NewPollRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   kafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	bookingHandler := handlers.NewBookingHandler(scheduleRepo, bookingRepo, outboxRepo, logger)
	pollHandler := handlers.NewPollHandler(pollRepo, outboxRepo, logger)
	settingsHandler := handlers.NewSettingsHandler(scheduleRepo, logger)

	// The public surface is rate limited per client IP; owner routes are not.
	// With Redis configured the window is shared across instances, otherwise
	// each instance counts locally.
	rateLimit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	var limit httpx.Middleware
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		limit = httpx.NewRedisRateLimiter(rdb, rateLimit, time.Minute, service).Middleware(logger, true)
	} else {
		limit = httpx.NewRateLimiter(rateLimit, time.Minute).Middleware()
	}
	public := func(h http.HandlerFunc) http.Handler { return limit(h) }

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)},
	)
	mux.Handle("/api/v1/public/availability", public(bookingHandler.Slots))
	mux.Handle("/api/v1/public/bookings", public(bookingHandler.Create))
	mux.Handle("/api/v1/public/polls/vote", public(pollHandler.Vote))
	mux.Handle("/api/v1/public/polls/tally", public(pollHandler.Tally))
	mux.HandleFunc("/api/v1/schedules", settingsHandler.Schedules)
	mux.HandleFunc("/api/v1/overrides", settingsHandler.Overrides)
	mux.HandleFunc("/api/v1/time-blocks", settingsHandler.TimeBlocks)
	mux.HandleFunc("/api/v1/links", settingsHandler.Links)
	mux.HandleFunc("/api/v1/polls", pollHandler.Create)
	mux.HandleFunc("/api/v1/polls/close", pollHandler.Close)
	mux.HandleFunc("/api/v1/bookings", bookingHandler.List)
	mux.HandleFunc("/api/v1/bookings/cancel", bookingHandler.Cancel)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(30*time.Second),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: splitList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Idempotency-Key", "X-Owner-Id"},
		}),
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, service)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
