package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bulkload/internal/cache"
	"bulkload/internal/config"
	"bulkload/internal/controller"
	"bulkload/internal/database"
	"bulkload/internal/logging"
	"bulkload/internal/notify"
	"bulkload/internal/orchestrator"
	"bulkload/internal/orchestrator/worker"
	"bulkload/internal/rabbitmq"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("BULKLOAD_CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Setup(cfg.Logging)

	// One unacked delivery per worker slot
	cfg.RabbitMQ.PrefetchCount = max(cfg.RabbitMQ.PrefetchCount, cfg.Ingest.Workers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer db.Close(context.Background())

	redisClient, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize redis cache connection")
	}
	defer redisClient.Close()
	progressCache := cache.NewRedisCache(redisClient, cfg.Redis.Prefix)

	rabbit, err := rabbitmq.NewClientFromConfig(cfg.RabbitMQ)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create RabbitMQ client")
	}
	defer rabbit.Close()

	publisher := notify.NewRedisNotifier(redisClient, cfg.Redis.NotifyChannel)
	defer publisher.Close()
	notifier := notify.NewCachingNotifier(publisher, progressCache, time.Duration(cfg.Redis.ProgressTTL)*time.Second)

	pipeline := orchestrator.NewPipeline(db, notifier, orchestrator.OptionsFromConfig(cfg.Ingest))
	registry := orchestrator.NewWorkerRegistry(
		worker.NewCSVImportWorker(pipeline),
		worker.NewRetryFailedWorker(pipeline, notifier),
	)

	jc := controller.NewJobController(db, rabbit, cfg.RabbitMQ, cfg.Ingest.Workers, registry, progressCache)
	if err := jc.ProcessJobs(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job processing")
	}

	log.Info().
		Int("workers", cfg.Ingest.Workers).
		Int("batchSize", cfg.Ingest.BatchSize).
		Str("queue", cfg.RabbitMQ.QueueName).
		Msg("Worker started")

	<-ctx.Done()
	log.Info().Msg("Shutting down worker")
	jc.StopProcessing()
}
