package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bulkload/internal/config"
	"bulkload/internal/database"
	"bulkload/internal/model"
	"bulkload/internal/notify"
	"bulkload/internal/processor"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBatchSize = 500
	DefaultThrottle  = 100 * time.Millisecond
	DefaultMaxRetry  = 5000
)

var (
	ErrFileNotFound = errors.New("file not found")
	// ErrJobAlreadyFailed is returned when a task targets a job that already failed
	ErrJobAlreadyFailed = errors.New("job already failed")
)

// Store is everything the pipeline persists through
type Store interface {
	processor.RecordWriter
	processor.FailureStore

	FindJob(ctx context.Context, jobID string) (*model.Job, error)
	UpsertJobStatus(ctx context.Context, jobID string, update model.JobUpdate) error
	AdjustJobCounts(ctx context.Context, jobID string, successDelta, failureDelta int) error

	GetFailedRecords(ctx context.Context, jobID string) (*model.FailedJob, error)
	ReplaceFailedRecords(ctx context.Context, jobID string, version int64, entries []model.FailedRecordEntry) error
	AppendRetryLog(ctx context.Context, jobID string, entry model.RetryLog) error
	InsertRetryHistory(ctx context.Context, history *model.RetryHistory) error
}

type Options struct {
	BatchSize         int
	Throttle          time.Duration
	MaxRetry          int
	PlaceholderPolicy processor.PlaceholderPolicy
}

// OptionsFromConfig maps ingest settings onto pipeline options
func OptionsFromConfig(cfg config.IngestConfig) Options {
	return Options{
		BatchSize:         cfg.BatchSize,
		Throttle:          time.Duration(cfg.ThrottleMS) * time.Millisecond,
		MaxRetry:          cfg.MaxRetry,
		PlaceholderPolicy: processor.PlaceholderPolicy(cfg.PlaceholderPolicy),
	}
}

// Pipeline ingests one CSV file per task. Batches of a job run strictly in
// sequence; concurrency comes from running several tasks at once.
type Pipeline struct {
	store      Store
	notifier   notify.Notifier
	normalizer *processor.Normalizer
	writer     *processor.BatchWriter
	opts       Options

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func NewPipeline(store Store, notifier notify.Notifier, opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Throttle < 0 {
		opts.Throttle = 0
	}
	if opts.MaxRetry <= 0 {
		opts.MaxRetry = DefaultMaxRetry
	}
	if notifier == nil {
		notifier = notify.NullNotifier{}
	}

	return &Pipeline{
		store:      store,
		notifier:   notifier,
		normalizer: processor.NewNormalizer(opts.PlaceholderPolicy),
		writer:     processor.NewBatchWriter(store),
		opts:       opts,
		now:        time.Now,
		sleep:      sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// run holds the state of one ingestion pass
type run struct {
	task     model.Task
	fileName string
	logger   zerolog.Logger
}

// Run ingests task.FilePath into the store. Only structural errors are
// returned; record-level failures end up in the job counts and the failure
// aggregate. Running a task whose job already completed returns the stored
// outcome without touching the file.
func (p *Pipeline) Run(ctx context.Context, task model.Task) (*model.IngestResult, error) {
	r := &run{
		task:   task,
		logger: log.With().Str("jobId", task.JobID).Logger(),
	}

	job, err := p.store.FindJob(ctx, task.JobID)
	switch {
	case err == nil && job.Status.IsTerminal():
		r.logger.Info().Str("status", string(job.Status)).Msg("Job already finished, skipping")
		return terminalOutcome(job)
	case err != nil && !errors.Is(err, database.ErrJobNotFound):
		return nil, fmt.Errorf("load job %s: %w", task.JobID, err)
	}

	r.fileName = task.FileName
	if r.fileName == "" && job != nil {
		r.fileName = job.FileName
	}
	if r.fileName == "" {
		r.fileName = filepath.Base(task.FilePath)
	}

	if _, err := os.Stat(task.FilePath); err != nil {
		return nil, p.fail(ctx, r, fmt.Errorf("%w: %s", ErrFileNotFound, task.FilePath))
	}

	start := p.now()
	err = p.store.UpsertJobStatus(ctx, task.JobID, model.JobUpdate{
		Status:    model.Ptr(model.StatusProcessing),
		FileName:  &r.fileName,
		StartedAt: &start,
	})
	if errors.Is(err, database.ErrJobTerminal) {
		return p.reload(ctx, task.JobID)
	}
	if err != nil {
		return nil, fmt.Errorf("mark job %s processing: %w", task.JobID, err)
	}

	p.notifier.Notify(task.ChannelID, model.EventUploadProgress, model.ProgressEvent{
		JobID:     task.JobID,
		Status:    model.StatusProcessing,
		FileName:  r.fileName,
		BatchInfo: model.BatchInfo{BatchSize: p.opts.BatchSize},
		Message:   "Starting file processing",
	})

	columns, rows, err := processor.DecodeFile(task.FilePath)
	if err != nil {
		return nil, p.fail(ctx, r, err)
	}

	total := len(rows)
	if err := p.store.UpsertJobStatus(ctx, task.JobID, model.JobUpdate{TotalRecords: &total}); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to persist total records")
	}
	r.logger.Info().Int("totalRecords", total).Str("fileName", r.fileName).Msg("Starting ingestion")

	agg := processor.NewProgressAggregator(task.JobID, r.fileName, total, p.opts.BatchSize, start, p.now)
	sink := processor.NewFailureSink(p.store)

	batches := SplitIntoBatches(rows, p.opts.BatchSize)
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		event := p.processBatch(ctx, r, batch, i*p.opts.BatchSize, agg, sink)

		err := p.store.UpsertJobStatus(ctx, task.JobID, model.JobUpdate{
			SuccessCount: model.Ptr(agg.Success()),
			FailureCount: model.Ptr(agg.Failed()),
			Progress:     model.Ptr(event.Progress),
		})
		if err != nil {
			r.logger.Warn().Err(err).Int("batch", i+1).Msg("Failed to persist batch progress")
		}

		p.notifier.Notify(task.ChannelID, model.EventUploadProgress, event)

		r.logger.Debug().
			Int("batch", i+1).
			Int("totalBatches", len(batches)).
			Int("processed", event.ProcessedRecords).
			Msg("Batch complete")

		if i < len(batches)-1 {
			if err := p.sleep(ctx, p.opts.Throttle); err != nil {
				return nil, err
			}
		}
	}

	sink.Flush(ctx, task.JobID, columns)

	return p.complete(ctx, r, agg)
}

// processBatch normalizes and writes one batch. offset is the index of the
// batch's first row in the file.
func (p *Pipeline) processBatch(ctx context.Context, r *run, batch []processor.Row, offset int,
	agg *processor.ProgressAggregator, sink *processor.FailureSink) model.ProgressEvent {
	uploadedAt := p.now()
	records := make([]model.StoreRecord, 0, len(batch))
	origin := make([]int, 0, len(batch))

	rejected := 0
	for i, row := range batch {
		record, err := p.normalizer.Normalize(row, offset+i)
		if err != nil {
			sink.Collect(row, nil, offset+i, err.Error())
			rejected++
			continue
		}
		record.JobID = r.task.JobID
		record.UploadedAt = uploadedAt
		records = append(records, record)
		origin = append(origin, i)
	}

	result := p.writer.Write(ctx, records)
	for _, f := range result.Failures {
		i := origin[f.Index]
		record := f.Record
		sink.Collect(batch[i], &record, offset+i, f.Reason)
	}

	agg.Record(0, rejected)
	return agg.Update(result)
}

func (p *Pipeline) complete(ctx context.Context, r *run, agg *processor.ProgressAggregator) (*model.IngestResult, error) {
	result := agg.Result()
	completedAt := p.now()

	err := p.store.UpsertJobStatus(ctx, r.task.JobID, model.JobUpdate{
		Status:       model.Ptr(model.StatusCompleted),
		TotalRecords: model.Ptr(result.TotalRecords),
		SuccessCount: model.Ptr(result.TotalInserted),
		FailureCount: model.Ptr(result.FailedCount),
		Progress:     model.Ptr(100),
		CompletedAt:  &completedAt,
	})
	if err != nil && !errors.Is(err, database.ErrJobTerminal) {
		return nil, fmt.Errorf("mark job %s completed: %w", r.task.JobID, err)
	}

	p.notifier.Notify(r.task.ChannelID, model.EventUploadComplete, model.CompletionEvent{
		JobID:             r.task.JobID,
		Status:            model.StatusCompleted,
		FileName:          r.fileName,
		TotalRecords:      result.TotalRecords,
		ProcessedRecords:  agg.Processed(),
		SuccessfulRecords: result.TotalInserted,
		FailedRecords:     result.FailedCount,
		Progress:          100,
		SuccessRate:       result.SuccessRate,
		Message:           fmt.Sprintf("Processed %d records: %d inserted, %d failed", result.TotalRecords, result.TotalInserted, result.FailedCount),
	})

	p.removeFile(r)

	r.logger.Info().
		Int("totalRecords", result.TotalRecords).
		Int("inserted", result.TotalInserted).
		Int("failed", result.FailedCount).
		Msg("Ingestion completed")

	return result, nil
}

// fail moves the job to failed, emits the error event and cleans up the
// file. It returns cause for propagation.
func (p *Pipeline) fail(ctx context.Context, r *run, cause error) error {
	r.logger.Error().Err(cause).Msg("Ingestion failed")

	failedAt := p.now()
	err := p.store.UpsertJobStatus(ctx, r.task.JobID, model.JobUpdate{
		Status:       model.Ptr(model.StatusFailed),
		FileName:     &r.fileName,
		ErrorMessage: model.Ptr(cause.Error()),
		FailedAt:     &failedAt,
	})
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to mark job as failed")
	}

	p.notifier.Notify(r.task.ChannelID, model.EventUploadError, model.ErrorEvent{
		JobID:    r.task.JobID,
		Status:   model.StatusFailed,
		FileName: r.fileName,
		Message:  "File processing failed",
		Error:    cause.Error(),
	})

	p.removeFile(r)
	return cause
}

func (p *Pipeline) removeFile(r *run) {
	if r.task.FilePath == "" {
		return
	}
	if err := os.Remove(r.task.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn().Err(err).Str("filePath", r.task.FilePath).Msg("Failed to remove source file")
	}
}

func (p *Pipeline) reload(ctx context.Context, jobID string) (*model.IngestResult, error) {
	job, err := p.store.FindJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	return terminalOutcome(job)
}

func terminalOutcome(job *model.Job) (*model.IngestResult, error) {
	if job.Status == model.StatusFailed {
		return nil, fmt.Errorf("%w: %s", ErrJobAlreadyFailed, job.ErrorMessage)
	}
	return &model.IngestResult{
		TotalRecords:  job.TotalRecords,
		TotalInserted: job.SuccessCount,
		FailedCount:   job.FailureCount,
		SuccessRate:   processor.Percent(job.SuccessCount, job.TotalRecords),
	}, nil
}
