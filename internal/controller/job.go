package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"bulkload/internal/cache"
	"bulkload/internal/config"
	"bulkload/internal/database"
	"bulkload/internal/model"
	"bulkload/internal/orchestrator"
	"bulkload/internal/orchestrator/worker"
	"bulkload/internal/processor"
	"bulkload/internal/rabbitmq"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// JobController handles job operations
type JobController interface {
	// CreateUploadJob records a queued job for an uploaded file and enqueues it
	CreateUploadJob(ctx context.Context, filePath, fileName, channelID string) (*model.Job, error)

	// EnqueueRetry queues a retry pass over the failed records of a job
	EnqueueRetry(ctx context.Context, jobID, channelID, retriedBy string) error

	// ProcessJobs starts the consumer pool
	ProcessJobs(ctx context.Context) error

	// StopProcessing stops the pool and waits for running tasks
	StopProcessing()

	// Get Available Job Types
	GetAvailableJobTypes() map[string]string

	GetJob(ctx context.Context, jobID string) (*model.Job, error)

	// ListJobs returns a page of jobs and the total matching the filter
	ListJobs(ctx context.Context, filter model.JobFilter) ([]*model.Job, int64, error)

	// GetProgress returns the latest progress event of a job
	GetProgress(ctx context.Context, jobID string) (json.RawMessage, error)
}

// jobController implements JobController
type jobController struct {
	db              database.JobDatabase
	rabbitClient    rabbitmq.Client
	rabbitConfig    config.RabbitMQConfig
	workers         int
	processRegistry orchestrator.WorkerRegistry
	cache           cache.Cache

	consumerTag string
	cancel      context.CancelFunc
	group       *errgroup.Group
	mu          sync.Mutex
	retryDelay  time.Duration
}

// NewJobController creates a new job controller
func NewJobController(db database.JobDatabase, rabbitClient rabbitmq.Client, rabbitConfig config.RabbitMQConfig,
	workers int, registry orchestrator.WorkerRegistry, progressCache cache.Cache) JobController {
	if workers <= 0 {
		workers = 1
	}
	return &jobController{
		db:              db,
		rabbitClient:    rabbitClient,
		rabbitConfig:    rabbitConfig,
		workers:         workers,
		processRegistry: registry,
		cache:           progressCache,
		retryDelay:      5 * time.Second,
	}
}

func (c *jobController) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	return c.db.FindJob(ctx, jobID)
}

func (c *jobController) ListJobs(ctx context.Context, filter model.JobFilter) ([]*model.Job, int64, error) {
	filter.Page, filter.Limit = Paginate(filter.Page, filter.Limit, 10, 100)
	return c.db.ListJobs(ctx, filter)
}

// GetProgress prefers the cached live event and falls back to the stored job
func (c *jobController) GetProgress(ctx context.Context, jobID string) (json.RawMessage, error) {
	if c.cache != nil {
		raw, err := c.cache.Get(ctx, cache.ProgressKey(jobID))
		if err == nil {
			return raw, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Warn().Err(err).Str("jobId", jobID).Msg("Progress cache unavailable")
		}
	}

	job, err := c.db.FindJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	processed := job.ProcessedRecords()
	return json.Marshal(model.ProgressEvent{
		JobID:             job.JobID,
		Status:            job.Status,
		FileName:          job.FileName,
		TotalRecords:      job.TotalRecords,
		ProcessedRecords:  processed,
		SuccessfulRecords: job.SuccessCount,
		FailedRecords:     job.FailureCount,
		Progress:          max(job.Progress, processor.Percent(processed, job.TotalRecords)),
		Message:           job.ErrorMessage,
	})
}

// CreateUploadJob creates a new job and enqueues it
func (c *jobController) CreateUploadJob(ctx context.Context, filePath, fileName, channelID string) (*model.Job, error) {
	job := &model.Job{
		JobID:    uuid.NewString(),
		FileName: fileName,
		Status:   model.StatusQueued,
	}

	if err := c.db.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	task := model.Task{
		JobID:     job.JobID,
		FilePath:  filePath,
		FileName:  fileName,
		ChannelID: channelID,
	}

	if err := c.enqueue(ctx, worker.CSV_IMPORT_TYPE, task); err != nil {
		// Update job status to failed if enqueueing fails
		now := time.Now()
		updateErr := c.db.UpsertJobStatus(ctx, job.JobID, model.JobUpdate{
			Status:       model.Ptr(model.StatusFailed),
			ErrorMessage: model.Ptr("failed to enqueue job"),
			FailedAt:     &now,
		})
		if updateErr != nil {
			log.Error().Err(updateErr).Str("jobId", job.JobID).Msg("Failed to mark job as failed")
		}
		job.Status = model.StatusFailed
		return job, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Info().
		Str("jobId", job.JobID).
		Str("fileName", fileName).
		Msg("Job created and enqueued")

	return job, nil
}

func (c *jobController) EnqueueRetry(ctx context.Context, jobID, channelID, retriedBy string) error {
	if _, err := c.db.FindJob(ctx, jobID); err != nil {
		return err
	}

	task := model.Task{JobID: jobID, ChannelID: channelID, RetriedBy: retriedBy}
	if err := c.enqueue(ctx, worker.RETRY_FAILED_TYPE, task); err != nil {
		return fmt.Errorf("failed to enqueue retry: %w", err)
	}

	log.Info().Str("jobId", jobID).Msg("Retry of failed records enqueued")
	return nil
}

// enqueue publishes a task to RabbitMQ
func (c *jobController) enqueue(ctx context.Context, jobType string, task model.Task) error {
	headers := amqp.Table{
		"job_id":   task.JobID,
		"job_type": jobType,
	}

	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	// Using queue name as routing key
	return c.rabbitClient.Publish(ctx, c.rabbitConfig.ExchangeName, c.rabbitConfig.QueueName, body, headers)
}

// ProcessJobs starts a pool of workers draining the job queue. Each worker
// runs one task at a time.
func (c *jobController) ProcessJobs(ctx context.Context) error {
	if len(c.processRegistry.AvailableWorkers()) == 0 {
		return fmt.Errorf("no job workers registered")
	}

	if err := rabbitmq.DeclareTopology(c.rabbitClient, c.rabbitConfig.ExchangeName, c.rabbitConfig.QueueName); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.consumerTag = fmt.Sprintf("bulkload-consumer-%s", uuid.NewString())

	deliveries := make(chan amqp.Delivery)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(deliveries)
		c.consume(gctx, c.rabbitConfig.QueueName, deliveries)
		return nil
	})

	for i := 0; i < c.workers; i++ {
		g.Go(func() error {
			for delivery := range deliveries {
				c.processDelivery(gctx, delivery)
			}
			return nil
		})
	}
	c.group = g

	log.Info().
		Int("workers", c.workers).
		Strs("jobTypes", c.processRegistry.AvailableWorkers()).
		Msg("Job processing started")
	return nil
}

// StopProcessing stops all job consumers
func (c *jobController) StopProcessing() {
	c.mu.Lock()
	cancel, group := c.cancel, c.group
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	_ = group.Wait()
	log.Info().Msg("Job processing stopped")
}

// consume forwards broker deliveries to out, re-subscribing when the
// broker channel closes, until ctx is done
func (c *jobController) consume(ctx context.Context, queueName string, out chan<- amqp.Delivery) {
	log.Info().
		Str("queue", queueName).
		Str("consumerTag", c.consumerTag).
		Msg("Starting job consumer")

	for {
		if ctx.Err() != nil {
			return
		}

		messages, err := c.rabbitClient.Consume(queueName, c.consumerTag)
		if err != nil {
			log.Error().
				Err(err).
				Str("queue", queueName).
				Msg("Failed to consume from queue")
			if !c.wait(ctx) {
				return
			}
			continue
		}

	forward:
		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-messages:
				if !ok {
					break forward
				}
				select {
				case out <- delivery:
				case <-ctx.Done():
					_ = delivery.Nack(false, true)
					return
				}
			}
		}

		// If we reach here, the channel was closed
		log.Warn().
			Str("queue", queueName).
			Str("consumerTag", c.consumerTag).
			Msg("Consumer channel closed, reconnecting...")

		if !c.wait(ctx) {
			return
		}
	}
}

func (c *jobController) wait(ctx context.Context) bool {
	t := time.NewTimer(c.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// processDelivery handles a single delivery. Successful tasks are acked.
// A failed task is requeued once; a redelivered failure is dropped so a
// broken file cannot loop forever.
func (c *jobController) processDelivery(ctx context.Context, delivery amqp.Delivery) {
	// Extract job type from message headers
	jobType, ok := delivery.Headers["job_type"].(string)
	if !ok {
		log.Error().Msg("Message missing job_type header, rejecting")
		_ = delivery.Nack(false, false) // Don't requeue malformed messages
		return
	}

	task, err := worker.DecodeTask(delivery.Body)
	if err != nil {
		log.Error().Err(err).Str("jobType", jobType).Msg("Malformed job message, rejecting")
		_ = delivery.Nack(false, false)
		return
	}

	logger := log.With().
		Str("jobId", task.JobID).
		Str("jobType", jobType).
		Bool("redelivered", delivery.Redelivered).
		Logger()

	handler, exists := c.processRegistry.Get(jobType)
	if !exists {
		logger.Error().Msg("No worker registered for job type")
		now := time.Now()
		err := c.db.UpsertJobStatus(ctx, task.JobID, model.JobUpdate{
			Status:       model.Ptr(model.StatusFailed),
			ErrorMessage: model.Ptr(fmt.Sprintf("unknown job type %q", jobType)),
			FailedAt:     &now,
		})
		if err != nil && !errors.Is(err, database.ErrJobTerminal) {
			logger.Error().Err(err).Msg("Failed to mark job as failed")
		}
		_ = delivery.Ack(false)
		return
	}

	logger.Info().Msg("Processing job message")

	err = handler.HandleTask(ctx, task)
	switch {
	case err == nil:
		logger.Info().Msg("Job processed successfully")
		_ = delivery.Ack(false)
	case errors.Is(err, orchestrator.ErrJobAlreadyFailed):
		logger.Warn().Err(err).Msg("Job already failed, dropping message")
		_ = delivery.Ack(false)
	case ctx.Err() != nil:
		logger.Warn().Err(err).Msg("Shutting down, returning job to queue")
		_ = delivery.Nack(false, true)
	default:
		requeue := !delivery.Redelivered
		logger.Error().Err(err).Bool("requeue", requeue).Msg("Job processing failed")
		_ = delivery.Nack(false, requeue)
	}
}

func (c *jobController) GetAvailableJobTypes() map[string]string {
	jobTypeMap := make(map[string]string)

	for _, jobType := range c.processRegistry.AvailableWorkers() {
		w, _ := c.processRegistry.Get(jobType)
		jobTypeMap[jobType] = w.Name()
	}

	return jobTypeMap
}
