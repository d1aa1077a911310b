package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/99degreesdevs/emuna-back/internal/classes"
	"github.com/99degreesdevs/emuna-back/internal/config"
	"github.com/99degreesdevs/emuna-back/internal/events"
	"github.com/99degreesdevs/emuna-back/internal/fulfillment"
	kafkax "github.com/99degreesdevs/emuna-back/internal/kafka"
	"github.com/99degreesdevs/emuna-back/internal/ledger"
	"github.com/99degreesdevs/emuna-back/internal/logging"
	"github.com/99degreesdevs/emuna-back/internal/notify"
	"github.com/99degreesdevs/emuna-back/internal/payments"
	"github.com/99degreesdevs/emuna-back/internal/postgres"
	"github.com/99degreesdevs/emuna-back/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.ServiceName+"-worker")

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

	// Producers for the events the engine emits
	producers := []*kafkax.Producer{
		kafkax.NewProducer(cfg.KafkaBrokers, events.TopicOrderOutcome, 1024, log),
		kafkax.NewProducer(cfg.KafkaBrokers, events.TopicClassReservation, 1024, log),
	}
	writers := map[string]events.Writer{}
	for _, p := range producers {
		p.Start()
		writers[p.Topic()] = p
	}

	store := &ledger.Store{DB: db, LockTimeout: cfg.LockTimeout}
	engine := &fulfillment.Engine{
		Store:        store,
		Events:       &events.Publisher{Writers: writers, Service: cfg.ServiceName + "-worker", Log: log},
		CancelCutoff: cfg.CancelCutoff,
		Log:          log,
	}
	svc := &payments.Service{
		Engine: engine,
		Dedup:  redisx.Dedup{Client: rdb, Service: "payments"},
		Cache:  redisx.StatusCache{Client: rdb},
		Log:    log,
	}

	var wg sync.WaitGroup
	run := func(name string, fn func(ctx context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				log.Error("worker exited", "worker", name, "err", err)
				cancel()
			}
		}()
	}

	// Messages that keep failing are parked on <topic>.dlq, then committed.
	var deadLetters []*kafka.Writer
	deadLetter := func(topic string) *kafka.Writer {
		w := kafkax.NewWriter(cfg.KafkaBrokers, kafkax.DeadLetterTopic(topic))
		deadLetters = append(deadLetters, w)
		return w
	}

	// Payment notifications
	payCons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.PaymentsGroup, events.TopicPaymentNotifications, cfg.PaymentsWorkers, log).
		WithDeadLetter(deadLetter(events.TopicPaymentNotifications))
	log.Info("payments consumer started", "group", cfg.PaymentsGroup, "topic", events.TopicPaymentNotifications,
		"workers", cfg.PaymentsWorkers)
	run("payments", func(ctx context.Context) error { return payCons.Start(ctx, svc.HandlePaymentNotification) })

	// Notification relay
	if cfg.AMQPURL != "" {
		rabbit, err := notify.DialRabbit(cfg.AMQPURL, cfg.NotifyQueue, log)
		if err != nil {
			log.Error("rabbitmq", "err", err)
			os.Exit(1)
		}
		defer rabbit.Close()
		relay := &notify.Relay{Sender: rabbit, Log: log}
		for _, topic := range []string{events.TopicOrderOutcome, events.TopicClassReservation} {
			cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifyGroup+"."+topic, topic, 2, log).
				WithDeadLetter(deadLetter(topic))
			run("notify:"+topic, func(ctx context.Context) error { return cons.Start(ctx, relay.Handle) })
		}
		log.Info("notification relay started", "queue", cfg.NotifyQueue)
	} else {
		log.Info("AMQP_URL not set, notification relay disabled")
	}

	// Class expiry
	sweeper := &classes.Sweeper{Store: store, Interval: cfg.SweepInterval, Log: log}
	run("class-sweeper", func(ctx context.Context) error {
		sweeper.Run(ctx)
		return nil
	})

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down worker")
	cancel()
	wg.Wait()
	for _, p := range producers {
		p.Close()
	}
	for _, p := range producers {
		p.WaitClosed()
	}
	for _, w := range deadLetters {
		if err := w.Close(); err != nil {
			log.Warn("dead-letter writer close", "topic", w.Topic, "err", err)
		}
	}
}
