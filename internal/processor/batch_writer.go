package processor

import (
	"context"

	"bulkload/internal/model"

	"github.com/rs/zerolog/log"
)

// RecordWriter is the store side of the batch writer
type RecordWriter interface {
	BulkInsert(ctx context.Context, records []model.StoreRecord) (int, error)
	InsertOne(ctx context.Context, record model.StoreRecord) error
}

// WriteFailure is a record the store refused for a reason other than a duplicate.
// Index is the position of the record within the written batch.
type WriteFailure struct {
	Index  int
	Record model.StoreRecord
	Reason string
}

// BatchResult accounts for every record of a batch exactly once:
// Inserted + len(Failures) == len(batch)
type BatchResult struct {
	Inserted   int
	Duplicates int
	Failures   []WriteFailure
}

func (r BatchResult) Failed() int {
	return len(r.Failures)
}

// BatchWriter writes one batch with an unordered bulk insert, falling back to
// one insert per record when the bulk call errors
type BatchWriter struct {
	store RecordWriter
}

func NewBatchWriter(store RecordWriter) *BatchWriter {
	return &BatchWriter{store: store}
}

func (w *BatchWriter) Write(ctx context.Context, batch []model.StoreRecord) BatchResult {
	if len(batch) == 0 {
		return BatchResult{}
	}

	inserted, err := w.store.BulkInsert(ctx, batch)
	if err == nil {
		if inserted != len(batch) {
			log.Warn().Int("batchSize", len(batch)).Int("inserted", inserted).Msg("Bulk insert reported a short count")
		}
		return BatchResult{Inserted: len(batch)}
	}

	log.Warn().Err(err).Int("batchSize", len(batch)).Msg("Bulk insert failed, falling back to single inserts")

	// Records the bulk call already wrote come back as duplicates here.
	var result BatchResult
	for i, record := range batch {
		status := Classify(w.store.InsertOne(ctx, record))
		switch status.Outcome() {
		case OutcomeSuccess:
			result.Inserted++
		case OutcomeDuplicate:
			result.Inserted++
			result.Duplicates++
		default:
			result.Failures = append(result.Failures, WriteFailure{
				Index:  i,
				Record: record,
				Reason: status.Message(),
			})
		}
	}

	return result
}
