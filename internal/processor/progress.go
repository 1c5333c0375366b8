package processor

import (
	"math"
	"time"

	"bulkload/internal/model"
)

// ProgressAggregator keeps the running totals of one job and renders a
// progress event per batch. Totals never decrease.
type ProgressAggregator struct {
	jobID     string
	fileName  string
	total     int
	batchSize int
	batches   int

	success   int
	failed    int
	completed int

	start time.Time
	now   func() time.Time
}

func NewProgressAggregator(jobID, fileName string, total, batchSize int, start time.Time, now func() time.Time) *ProgressAggregator {
	if now == nil {
		now = time.Now
	}
	batches := 0
	if batchSize > 0 {
		batches = (total + batchSize - 1) / batchSize
	}
	return &ProgressAggregator{
		jobID:     jobID,
		fileName:  fileName,
		total:     total,
		batchSize: batchSize,
		batches:   batches,
		start:     start,
		now:       now,
	}
}

// Record adds a pre-write failure (a row the normalizer rejected)
func (a *ProgressAggregator) Record(inserted, failed int) {
	a.success += inserted
	a.failed += failed
}

// Update folds one batch result into the totals and returns the event to emit
func (a *ProgressAggregator) Update(result BatchResult) model.ProgressEvent {
	a.success += result.Inserted
	a.failed += result.Failed()
	a.completed++
	return a.Event()
}

// Event renders the current totals
func (a *ProgressAggregator) Event() model.ProgressEvent {
	processed := a.Processed()
	return model.ProgressEvent{
		JobID:             a.jobID,
		Status:            model.StatusProcessing,
		FileName:          a.fileName,
		TotalRecords:      a.total,
		ProcessedRecords:  processed,
		SuccessfulRecords: a.success,
		FailedRecords:     a.failed,
		Progress:          Percent(processed, a.total),
		ProcessingSpeed:   a.speed(processed),
		BatchInfo: model.BatchInfo{
			TotalBatches:     a.batches,
			CompletedBatches: a.completed,
			CurrentBatch:     a.completed,
			BatchSize:        a.batchSize,
		},
	}
}

func (a *ProgressAggregator) Processed() int { return a.success + a.failed }
func (a *ProgressAggregator) Success() int   { return a.success }
func (a *ProgressAggregator) Failed() int    { return a.failed }

// Result summarises the run
func (a *ProgressAggregator) Result() *model.IngestResult {
	return &model.IngestResult{
		TotalRecords:  a.total,
		TotalInserted: a.success,
		FailedCount:   a.failed,
		SuccessRate:   Percent(a.success, a.total),
	}
}

func (a *ProgressAggregator) speed(processed int) int {
	elapsed := a.now().Sub(a.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return int(math.Round(float64(processed) / elapsed))
}

// Percent returns round(100*part/total) clamped to [0,100]; 0 when total is 0
func Percent(part, total int) int {
	if total <= 0 || part <= 0 {
		return 0
	}
	return min(int(math.Round(100*float64(part)/float64(total))), 100)
}
