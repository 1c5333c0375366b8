package worker

import (
	"context"

	"bulkload/internal/model"
	"bulkload/internal/orchestrator"
)

const (
	RETRY_FAILED_TYPE        = "retry-failed"
	RETRY_FAILED_NAME        = "Retry Failed Records Worker"
	RETRY_FAILED_DESCRIPTION = "Resubmit the failed records of a finished job"
)

// Retrier runs one retry pass over a job's failed records
type Retrier interface {
	RetryFailed(ctx context.Context, jobID, retriedBy string) (*model.RetryResult, error)
}

type retryFailedWorker struct {
	activity
	pipeline Retrier
	notifier Notifier
}

// Notifier is the subset of notify.Notifier used to report retry results
type Notifier interface {
	Notify(channelID, event string, payload any)
}

func NewRetryFailedWorker(pipeline Retrier, notifier Notifier) orchestrator.BatchWorker {
	return &retryFailedWorker{pipeline: pipeline, notifier: notifier}
}

// HandleTask implements orchestrator.BatchWorker.
func (w *retryFailedWorker) HandleTask(ctx context.Context, task model.Task) error {
	defer w.begin()()

	result, err := w.pipeline.RetryFailed(ctx, task.JobID, task.RetriedBy)
	if err != nil {
		return err
	}

	if w.notifier != nil && task.ChannelID != "" {
		w.notifier.Notify(task.ChannelID, model.EventRetryComplete, struct {
			JobID string `json:"jobId"`
			*model.RetryResult
		}{task.JobID, result})
	}
	return nil
}

// Name implements orchestrator.BatchWorker.
func (w *retryFailedWorker) Name() string {
	return RETRY_FAILED_NAME
}

// Description implements orchestrator.BatchWorker.
func (w *retryFailedWorker) Description() string {
	return RETRY_FAILED_DESCRIPTION
}

// Type implements orchestrator.BatchWorker.
func (w *retryFailedWorker) Type() string {
	return RETRY_FAILED_TYPE
}
