package processor

import (
	"context"
	"time"

	"bulkload/internal/model"

	"github.com/rs/zerolog/log"
)

// FailureStore persists the failure aggregate of a job
type FailureStore interface {
	AppendFailedRecords(ctx context.Context, jobID string, columns []string, entries []model.FailedRecordEntry) error
}

// FailureSink buffers every record-level failure of a run and persists them
// in one append when the run ends
type FailureSink struct {
	store   FailureStore
	entries []model.FailedRecordEntry
	now     func() time.Time
}

func NewFailureSink(store FailureStore) *FailureSink {
	return &FailureSink{store: store, now: time.Now}
}

// Collect buffers one failed row. normalized may be nil when the row never
// reached the writer.
func (s *FailureSink) Collect(raw map[string]string, normalized *model.StoreRecord, rowIndex int, reason string) {
	s.entries = append(s.entries, model.FailedRecordEntry{
		Record:     raw,
		Normalized: normalized,
		RowIndex:   rowIndex,
		Reason:     reason,
		FailedAt:   s.now(),
	})
}

func (s *FailureSink) Len() int {
	return len(s.entries)
}

func (s *FailureSink) Entries() []model.FailedRecordEntry {
	return s.entries
}

// Flush appends the buffered entries to the aggregate of jobID. It does
// nothing when no failure was collected. A persistence error is logged and
// swallowed: the run keeps its counts, the entries are lost for retry.
func (s *FailureSink) Flush(ctx context.Context, jobID string, columns []string) bool {
	if len(s.entries) == 0 {
		return false
	}

	if err := s.store.AppendFailedRecords(ctx, jobID, columns, s.entries); err != nil {
		log.Error().Err(err).Str("jobId", jobID).Int("count", len(s.entries)).Msg("Failed to persist failed records")
		return false
	}

	log.Info().Str("jobId", jobID).Int("count", len(s.entries)).Msg("Persisted failed records")
	return true
}
