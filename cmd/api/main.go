package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/99degreesdevs/emuna-back/internal/catalog"
	"github.com/99degreesdevs/emuna-back/internal/config"
	"github.com/99degreesdevs/emuna-back/internal/events"
	"github.com/99degreesdevs/emuna-back/internal/fulfillment"
	"github.com/99degreesdevs/emuna-back/internal/httpx"
	kafkax "github.com/99degreesdevs/emuna-back/internal/kafka"
	"github.com/99degreesdevs/emuna-back/internal/ledger"
	"github.com/99degreesdevs/emuna-back/internal/logging"
	"github.com/99degreesdevs/emuna-back/internal/orders"
	"github.com/99degreesdevs/emuna-back/internal/postgres"
	"github.com/99degreesdevs/emuna-back/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.DBMaxConns)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Error("db migrate", "err", err)
			os.Exit(1)
		}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable, status cache disabled until it recovers", "addr", cfg.RedisAddr, "err", err)
	}
	cache := redisx.StatusCache{Client: rdb}

	// Kafka producers, one per outbound topic
	producers := []*kafkax.Producer{
		kafkax.NewProducer(cfg.KafkaBrokers, events.TopicOrderOutcome, 1024, log),
		kafkax.NewProducer(cfg.KafkaBrokers, events.TopicClassReservation, 1024, log),
	}
	writers := map[string]events.Writer{}
	for _, p := range producers {
		p.Start()
		writers[p.Topic()] = p
	}
	publisher := &events.Publisher{Writers: writers, Service: cfg.ServiceName, Log: log}

	// Domain
	catalogRepo := &catalog.Repo{DB: db}
	store := &ledger.Store{DB: db, LockTimeout: cfg.LockTimeout}
	engine := &fulfillment.Engine{Store: store, Events: publisher, CancelCutoff: cfg.CancelCutoff, Log: log}
	orderRepo := &orders.Repo{DB: db}
	checkout := &orders.Service{Products: catalogRepo, Store: orderRepo, Log: log}

	router := httpx.NewRouter(
		httpx.HealthCheck{Name: "postgres", Ping: db.Ping},
		httpx.HealthCheck{Name: "redis", Optional: true, Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)
	(&httpx.PaymentsHandler{Engine: engine, Cache: cache, Log: log}).Register(router)
	(&httpx.ClassesHandler{Engine: engine, Log: log}).Register(router)
	(&httpx.OrdersHandler{Checkout: checkout, Orders: orderRepo, Shipments: store, Cache: cache, Log: log}).Register(router)
	(&httpx.CatalogHandler{Catalog: catalogRepo, Credits: store, Log: log}).Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// graceful shutdown
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", "err", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	// in-flight requests have finished publishing; flush and close writers
	for _, p := range producers {
		p.Close()
	}
	for _, p := range producers {
		p.WaitClosed()
	}
	cancel()
}
