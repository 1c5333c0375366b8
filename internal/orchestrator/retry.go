package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"bulkload/internal/database"
	"bulkload/internal/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const DefaultRetriedBy = "admin"

// RetryFailed resubmits up to MaxRetry failed records of jobID straight to the
// writer. Recovered records leave the aggregate; the rest stay in place with
// their retry count bumped. With nothing left to retry it is a no-op.
//
// The aggregate is replaced only if no other writer touched it since it was
// loaded; a pass that loses that race returns database.ErrFailedJobConflict
// and leaves the job counts to the pass that won.
func (p *Pipeline) RetryFailed(ctx context.Context, jobID, retriedBy string) (*model.RetryResult, error) {
	logger := log.With().Str("jobId", jobID).Logger()

	failed, err := p.store.GetFailedRecords(ctx, jobID)
	if errors.Is(err, database.ErrFailedJobNotFound) {
		return &model.RetryResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load failed records of %s: %w", jobID, err)
	}

	entries := uniqueRows(failed.FailedRecords)
	if len(entries) == 0 {
		return &model.RetryResult{}, nil
	}
	if dropped := len(failed.FailedRecords) - len(entries); dropped > 0 {
		logger.Warn().Int("dropped", dropped).Msg("Dropping repeated failed rows")
	}

	limit := min(len(entries), p.opts.MaxRetry)
	pending := entries[:limit]
	deferred := entries[limit:]

	stillFailed := p.retryEntries(ctx, jobID, pending)
	recovered := len(pending) - len(stillFailed)

	remaining := make([]model.FailedRecordEntry, 0, len(stillFailed)+len(deferred))
	remaining = append(remaining, stillFailed...)
	remaining = append(remaining, deferred...)

	if err := p.store.ReplaceFailedRecords(ctx, jobID, failed.Version, remaining); err != nil {
		if errors.Is(err, database.ErrFailedJobConflict) {
			logger.Warn().Msg("Failed records changed during retry, leaving job counts untouched")
		}
		return nil, fmt.Errorf("replace failed records of %s: %w", jobID, err)
	}

	status := model.RetryProcessed
	if len(stillFailed) > 0 {
		status = model.RetryFailed
	}
	if err := p.store.AppendRetryLog(ctx, jobID, model.RetryLog{
		RequeuedCount: len(pending),
		Status:        status,
		Timestamp:     p.now(),
	}); err != nil {
		logger.Warn().Err(err).Msg("Failed to append retry log")
	}

	if retriedBy == "" {
		retriedBy = DefaultRetriedBy
	}
	history := &model.RetryHistory{
		JobID:        jobID,
		RetriedAt:    p.now(),
		TotalRetried: len(pending),
		SuccessCount: recovered,
		FailedCount:  len(stillFailed),
		RetriedBy:    retriedBy,
		Notes:        fmt.Sprintf("Retried %d records: %d recovered, %d still failing", len(pending), recovered, len(stillFailed)),
	}
	if err := p.store.InsertRetryHistory(ctx, history); err != nil {
		logger.Warn().Err(err).Msg("Failed to record retry history")
	}

	p.shiftRecovered(ctx, jobID, recovered)

	logger.Info().
		Int("retried", len(pending)).
		Int("recovered", recovered).
		Int("remaining", len(remaining)).
		Msg("Retry of failed records finished")

	return &model.RetryResult{
		Retried:      len(pending),
		SuccessCount: recovered,
		FailedCount:  len(stillFailed),
		Remaining:    len(remaining),
	}, nil
}

// shiftRecovered moves recovered records from the failure to the success
// count. The shift never exceeds the failures the job still reports.
func (p *Pipeline) shiftRecovered(ctx context.Context, jobID string, recovered int) {
	if recovered <= 0 {
		return
	}
	logger := log.With().Str("jobId", jobID).Logger()

	job, err := p.store.FindJob(ctx, jobID)
	if err != nil {
		logger.Warn().Err(err).Int("recovered", recovered).Msg("Failed to load job for count adjustment")
		return
	}

	shift := min(recovered, job.FailureCount)
	if shift < recovered {
		logger.Warn().Int("recovered", recovered).Int("failureCount", job.FailureCount).Msg("Recovered more records than the job reports as failed")
	}
	if shift <= 0 {
		return
	}
	if err := p.store.AdjustJobCounts(ctx, jobID, shift, -shift); err != nil {
		logger.Warn().Err(err).Int("recovered", shift).Msg("Failed to adjust job counts")
	}
}

// uniqueRows keeps the first entry of every row index, in order
func uniqueRows(entries []model.FailedRecordEntry) []model.FailedRecordEntry {
	seen := make(map[int]struct{}, len(entries))
	out := make([]model.FailedRecordEntry, 0, len(entries))
	for _, entry := range entries {
		if _, ok := seen[entry.RowIndex]; ok {
			continue
		}
		seen[entry.RowIndex] = struct{}{}
		out = append(out, entry)
	}
	return out
}

// retryEntries writes the pending entries and returns the ones that failed
// again, in their original order
func (p *Pipeline) retryEntries(ctx context.Context, jobID string, pending []model.FailedRecordEntry) []model.FailedRecordEntry {
	failures := make(map[int]string, len(pending))
	records := make([]model.StoreRecord, 0, len(pending))
	origin := make([]int, 0, len(pending))

	for i, entry := range pending {
		var record model.StoreRecord
		if entry.Normalized != nil {
			record = *entry.Normalized
		} else {
			// the row never reached the writer in the first pass
			normalized, err := p.normalizer.Normalize(entry.Record, entry.RowIndex)
			if err != nil {
				failures[i] = err.Error()
				continue
			}
			record = normalized
		}
		record.ID = primitive.NilObjectID
		record.JobID = jobID
		record.UploadedAt = p.now()
		records = append(records, record)
		origin = append(origin, i)
	}

	result := p.writer.Write(ctx, records)
	for _, f := range result.Failures {
		failures[origin[f.Index]] = f.Reason
	}

	stillFailed := make([]model.FailedRecordEntry, 0, len(failures))
	for i, entry := range pending {
		reason, ok := failures[i]
		if !ok {
			continue
		}
		entry.RetryCount++
		entry.Reason = reason
		entry.FailedAt = p.now()
		stillFailed = append(stillFailed, entry)
	}

	return stillFailed
}
