package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/example/slotledger/internal/availability"
	"github.com/example/slotledger/internal/booking"
	"github.com/example/slotledger/internal/calendar"
	"github.com/example/slotledger/internal/catalog"
	"github.com/example/slotledger/internal/clock"
	"github.com/example/slotledger/internal/consumer"
	"github.com/example/slotledger/internal/handlers"
	"github.com/example/slotledger/internal/ledger"
	"github.com/example/slotledger/internal/outbox"
	"github.com/example/slotledger/internal/storage/memory"
	"github.com/example/slotledger/internal/storage/postgres"
	"github.com/example/slotledger/libs/config"
	"github.com/example/slotledger/libs/db"
	"github.com/example/slotledger/libs/httpx"
	"github.com/example/slotledger/libs/kafkax"
	otelx "github.com/example/slotledger/libs/otel"
	"github.com/example/slotledger/libs/runtime"
	"github.com/example/slotledger/migrations"
)

// engineStore is the full storage surface the engine needs. Both backends
// implement it; the driver is chosen once at startup, never at runtime.
type engineStore interface {
	booking.ClaimStore
	ledger.Store
	handlers.EventStore
	consumer.Inbox
	Record(ctx context.Context, aggregateType, aggregateID, eventType string, payload []byte) error
}

func main() {
	service := config.String("SERVICE_NAME", "slotledger")
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

	loc, err := time.LoadLocation(config.String("BUSINESS_TZ", "America/New_York"))
	if err != nil {
		logger.Error("invalid BUSINESS_TZ", "err", err)
		panic(err)
	}

	cat := catalog.Default()
	clk := clock.NewSystem()

	var store engineStore
	var pool *db.Pool
	var pgStore *postgres.Store
	switch driver := config.String("STORE_DRIVER", "postgres"); driver {
	case "postgres":
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			panic(err)
		}
		pool, err = db.Open(ctx, dbURL)
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()

		if config.Bool("MIGRATE_ON_START", true) {
			if err := migrations.Apply(ctx, pool.Pool); err != nil {
				logger.Error("migrations failed", "err", err)
				panic(err)
			}
		}
		pgStore = postgres.NewStore(pool)
		store = pgStore
	case "memory":
		logger.Warn("using in-memory store; data does not survive restarts")
		store = memory.NewStore()
	default:
		logger.Error("unknown STORE_DRIVER", "driver", driver)
		panic("unknown STORE_DRIVER: " + driver)
	}

	holds := booking.NewHoldService(store, clk,
		booking.WithHoldTTL(config.Minutes("HOLD_TTL_MINUTES", booking.DefaultHoldTTL)))
	credits := ledger.NewService(store, store, clk, logger)
	promoter := booking.NewPromoter(store, credits, store, clk, logger)

	horizonDays := config.Int("HORIZON_DAYS", 30)
	if horizonDays <= 0 {
		horizonDays = 30
	}
	policy := availability.Policy{
		Lead:    config.Minutes("LEAD_MINUTES", 24*time.Hour),
		Horizon: time.Duration(horizonDays) * 24 * time.Hour,
		BusyPad: config.Minutes("BUSY_PAD_MINUTES", 0),
	}

	var sources []availability.BusySource
	if cal := calendar.New(config.String("CALENDAR_BASE_URL", ""), 3*time.Second); cal != nil {
		sources = append(sources, cal)
		logger.Info("external calendar source enabled")
	}
	avail := availability.NewComputer(cat, loc, store, sources, clk, policy, logger)

	sweeper := booking.NewSweeper(holds, logger,
		time.Duration(config.Int("SWEEP_INTERVAL_SECONDS", 60))*time.Second)
	go sweeper.Run(ctx)

	brokers := config.String("KAFKA_BROKERS", "")
	if pgStore != nil {
		publisher := outbox.NewPublisher(pgStore, logger, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
		go publisher.Run(ctx)
	}
	if brokers != "" {
		billingConsumer := consumer.New(logger, store, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "slotledger"),
			Topics:  []string{consumer.TopicInvoicePaid, consumer.TopicInvoiceRefunded},
		}, consumer.BillingHandler(credits, clk, logger))
		go billingConsumer.Run(ctx)
	}

	h := handlers.New(cat, avail, holds, promoter, credits, store, clk, loc, logger, handlers.Config{
		HorizonDays:                   horizonDays,
		StripeWebhookSecret:           config.String("STRIPE_WEBHOOK_SECRET", ""),
		StripeWebhookToleranceSeconds: config.Int("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300),
	})

	var checks []runtime.ReadyCheck
	if pool != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	}
	if brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	h.Register(mux)

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if limitPerMinute <= 0 {
		limitPerMinute = 120
	}
	var rateLimitMW httpx.Middleware
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	corsMW := httpx.WithCORS(httpx.CORSPolicy{
		AllowedOrigins:   splitList(config.String("CORS_ALLOWED_ORIGINS", "")),
		AllowedMethods:   splitList(config.String("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS")),
		AllowedHeaders:   splitList(config.String("CORS_ALLOWED_HEADERS", "Content-Type,X-Request-Id")),
		AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
		MaxAge:           time.Duration(config.Int("CORS_MAX_AGE_SECONDS", 600)) * time.Second,
	})

	requestTimeout := time.Duration(config.Int("REQUEST_TIMEOUT_SECONDS", 10)) * time.Second
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		corsMW,
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(requestTimeout),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "slotledger")
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
