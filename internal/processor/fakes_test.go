package processor

import (
	"context"
	"errors"
	"fmt"

	"bulkload/internal/database"
	"bulkload/internal/model"
)

// memoryWriter enforces (name, address) uniqueness like the stores index
type memoryWriter struct {
	stored    map[string]model.StoreRecord
	bulkErr   error
	rejects   map[string]error
	bulkCalls int
	oneCalls  int
}

func newMemoryWriter() *memoryWriter {
	return &memoryWriter{stored: map[string]model.StoreRecord{}, rejects: map[string]error{}}
}

func key(r model.StoreRecord) string {
	return r.StoreName + "\x00" + r.StoreAddress
}

func (m *memoryWriter) BulkInsert(ctx context.Context, records []model.StoreRecord) (int, error) {
	m.bulkCalls++
	if m.bulkErr != nil {
		return 0, m.bulkErr
	}
	inserted := 0
	var firstErr error
	for _, r := range records {
		if err := m.insert(r); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		inserted++
	}
	return inserted, firstErr
}

func (m *memoryWriter) InsertOne(ctx context.Context, record model.StoreRecord) error {
	m.oneCalls++
	return m.insert(record)
}

func (m *memoryWriter) insert(r model.StoreRecord) error {
	if err, ok := m.rejects[r.StoreName]; ok {
		return err
	}
	if _, ok := m.stored[key(r)]; ok {
		return fmt.Errorf("%w: %s", database.ErrDuplicateKey, r.StoreName)
	}
	m.stored[key(r)] = r
	return nil
}

type memoryFailureStore struct {
	appends [][]model.FailedRecordEntry
	columns []string
	err     error
}

func (m *memoryFailureStore) AppendFailedRecords(ctx context.Context, jobID string, columns []string, entries []model.FailedRecordEntry) error {
	if m.err != nil {
		return m.err
	}
	m.appends = append(m.appends, entries)
	m.columns = columns
	return nil
}

var errValidation = errors.New("Document failed validation")

func stores(names ...string) []model.StoreRecord {
	out := make([]model.StoreRecord, len(names))
	for i, n := range names {
		out[i] = model.StoreRecord{StoreName: n, StoreAddress: n + " street"}
	}
	return out
}
