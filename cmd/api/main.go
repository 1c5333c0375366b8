package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bulkload/internal/aws"
	"bulkload/internal/cache"
	"bulkload/internal/config"
	"bulkload/internal/database"
	"bulkload/internal/logging"
	"bulkload/internal/notify"
	"bulkload/internal/orchestrator"
	"bulkload/internal/orchestrator/worker"
	"bulkload/internal/rabbitmq"
	"bulkload/internal/server"

	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(os.Getenv("BULKLOAD_CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Setup(cfg.Logging)
	log.Info().Str("env", cfg.Env).Msg("Starting bulkload API")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.Ingest.UploadDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Ingest.UploadDir).Msg("Failed to create upload directory")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer db.Close(context.Background())
	log.Info().Msg("MongoDB connection established")

	redisClient, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize redis cache connection")
	}
	defer redisClient.Close()
	progressCache := cache.NewRedisCache(redisClient, cfg.Redis.Prefix)
	log.Info().Msg("Redis connection established")

	rabbit, err := rabbitmq.NewClientFromConfig(cfg.RabbitMQ)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create RabbitMQ client")
	}
	defer rabbit.Close()

	if err := rabbitmq.DeclareTopology(rabbit, cfg.RabbitMQ.ExchangeName, cfg.RabbitMQ.QueueName); err != nil {
		log.Fatal().Err(err).Msg("Failed to declare RabbitMQ topology")
	}

	// Worker events arrive over Redis and fan out to this process's SSE clients
	hub := notify.NewHub()
	if err := notify.NewForwarder(redisClient, cfg.Redis.NotifyChannel).Start(ctx, hub); err != nil {
		log.Fatal().Err(err).Msg("Failed to start notification forwarder")
	}

	// Synchronous retries run in this process and notify local clients directly
	notifier := notify.NewCachingNotifier(hub, progressCache, time.Duration(cfg.Redis.ProgressTTL)*time.Second)
	pipeline := orchestrator.NewPipeline(db, notifier, orchestrator.OptionsFromConfig(cfg.Ingest))
	registry := orchestrator.NewWorkerRegistry(
		worker.NewCSVImportWorker(pipeline),
		worker.NewRetryFailedWorker(pipeline, notifier),
	)

	var files aws.FileService
	if cfg.S3.Enabled {
		fs, err := aws.NewFileService(ctx, cfg.S3)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3 file service")
		}
		if err := fs.TestConnection(ctx); err != nil {
			log.Warn().Err(err).Str("bucket", cfg.S3.Bucket).Msg("S3 bucket not reachable")
		}
		files = fs
	}

	srv := server.New(*cfg, db, progressCache, rabbit, registry, pipeline, hub, files)

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
}
