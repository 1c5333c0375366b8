package worker

import (
	"context"

	"bulkload/internal/model"
	"bulkload/internal/orchestrator"
)

const (
	CSV_IMPORT_TYPE        = "csv-import"
	CSV_IMPORT_NAME        = "CSV Import Worker"
	CSV_IMPORT_DESCRIPTION = "Stream an uploaded CSV file into the store in throttled batches"
)

// Ingester runs one ingestion pass
type Ingester interface {
	Run(ctx context.Context, task model.Task) (*model.IngestResult, error)
}

type csvImportWorker struct {
	activity
	pipeline Ingester
}

func NewCSVImportWorker(pipeline Ingester) orchestrator.BatchWorker {
	return &csvImportWorker{pipeline: pipeline}
}

// HandleTask implements orchestrator.BatchWorker.
func (w *csvImportWorker) HandleTask(ctx context.Context, task model.Task) error {
	defer w.begin()()
	_, err := w.pipeline.Run(ctx, task)
	return err
}

// Name implements orchestrator.BatchWorker.
func (w *csvImportWorker) Name() string {
	return CSV_IMPORT_NAME
}

// Description implements orchestrator.BatchWorker.
func (w *csvImportWorker) Description() string {
	return CSV_IMPORT_DESCRIPTION
}

// Type implements orchestrator.BatchWorker.
func (w *csvImportWorker) Type() string {
	return CSV_IMPORT_TYPE
}
