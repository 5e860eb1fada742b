package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"servicebay/internal/util"
	"servicebay/pkg/ai"
	"servicebay/pkg/domain"
	"servicebay/pkg/events"
	"servicebay/pkg/queue"
	"servicebay/services/booking/internal/app"
	"servicebay/services/booking/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.RequireQueue(); err != nil {
		log.Fatalf("invalid worker config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel).With("service", "booking-worker")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = util.ContextWithLogger(ctx, logger)

	policy, _ := domain.PolicyByName(cfg.StatusPolicy)
	appCfg := app.Config{
		StoreDriver:       cfg.StoreDriver,
		DatabaseURL:       cfg.DatabaseURL,
		MongoURI:          cfg.MongoURI,
		MongoDatabase:     cfg.MongoDatabase,
		GenerationTimeout: cfg.GenerationTimeout(),
		Policy:            policy,
		StaffUserIDs:      cfg.StaffUserIDs,
	}
	generator, err := ai.NewGenerator(cfg.GeneratorConfig())
	switch {
	case errors.Is(err, ai.ErrMissingCredential):
		logger.Warn("generation provider credential missing; queued jobs will fail")
	case err != nil:
		log.Fatalf("failed to init generation provider: %v", err)
	default:
		appCfg.Generator = generator
	}

	var publisher events.Publisher = events.LogPublisher{Logger: logger}
	if cfg.RabbitURL != "" {
		rabbit, err := events.NewRabbitPublisher(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			log.Fatalf("failed to connect to broker: %v", err)
		}
		publisher = rabbit
	}
	defer publisher.Close()
	appCfg.Publisher = publisher

	hostname, _ := os.Hostname()
	reportQueue, err := queue.NewRedisJobQueue(cfg.QueueConfig(hostname))
	if err != nil {
		log.Fatalf("failed to init report queue: %v", err)
	}
	defer reportQueue.Close()
	appCfg.Queue = reportQueue

	appCore, err := app.New(appCfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer appCore.Close(context.Background())

	consumersDone := reportQueue.Start(ctx, cfg.QueueConcurrency, appCore.ProcessReportJob)

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	reminderCheckpoint := reportQueue.Checkpoint("reminders")
	if _, err := scheduler.AddFunc(cfg.ReminderSchedule, func() {
		if _, err := appCore.DispatchReminderWindow(ctx, reminderCheckpoint, cfg.ReminderLookback()); err != nil {
			logger.Error("reminder dispatch failed", "err", err)
		}
	}); err != nil {
		log.Fatalf("invalid reminder schedule %q: %v", cfg.ReminderSchedule, err)
	}
	scheduler.Start()

	slog.Info("booking worker started",
		"consumers", cfg.QueueConcurrency,
		"stream", cfg.QueueStream,
		"reminder_schedule", cfg.ReminderSchedule,
	)
	<-ctx.Done()
	slog.Info("booking worker stopping")

	<-scheduler.Stop().Done()
	<-consumersDone
}
