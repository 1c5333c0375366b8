package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bulkload/internal/database"
	"bulkload/internal/model"
)

var errValidation = errors.New("Document failed validation")

// memoryStore mimics the Mongo store: unique (name, address), job upserts
// guarded against terminal jobs, one failure aggregate per job
type memoryStore struct {
	mu sync.Mutex

	jobs      map[string]*model.Job
	stores    map[string]model.StoreRecord
	failed    map[string]*model.FailedJob
	histories []model.RetryHistory
	rejects   map[string]error

	appendCalls int
	appendErr   error
	findErr     error

	// beforeReplace runs ahead of ReplaceFailedRecords, outside the lock
	beforeReplace func()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		jobs:    map[string]*model.Job{},
		stores:  map[string]model.StoreRecord{},
		failed:  map[string]*model.FailedJob{},
		rejects: map[string]error{},
	}
}

func storeKey(r model.StoreRecord) string {
	return r.StoreName + "\x00" + r.StoreAddress
}

func (m *memoryStore) insertLocked(r model.StoreRecord) error {
	if err, ok := m.rejects[r.StoreName]; ok {
		return err
	}
	if _, ok := m.stores[storeKey(r)]; ok {
		return fmt.Errorf("%w: %s", database.ErrDuplicateKey, r.StoreName)
	}
	m.stores[storeKey(r)] = r
	return nil
}

func (m *memoryStore) BulkInsert(ctx context.Context, records []model.StoreRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := 0
	var firstErr error
	for _, r := range records {
		if err := m.insertLocked(r); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		inserted++
	}
	return inserted, firstErr
}

func (m *memoryStore) InsertOne(ctx context.Context, record model.StoreRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(record)
}

func (m *memoryStore) AppendFailedRecords(ctx context.Context, jobID string, columns []string, entries []model.FailedRecordEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.appendCalls++
	if m.appendErr != nil {
		return m.appendErr
	}
	agg, ok := m.failed[jobID]
	if !ok {
		agg = &model.FailedJob{JobID: jobID, Columns: columns}
		m.failed[jobID] = agg
	}

	incoming := make(map[int]bool, len(entries))
	for _, e := range entries {
		incoming[e.RowIndex] = true
	}
	kept := agg.FailedRecords[:0:0]
	for _, e := range agg.FailedRecords {
		if !incoming[e.RowIndex] {
			kept = append(kept, e)
		}
	}
	agg.FailedRecords = append(kept, entries...)
	agg.Version++
	return nil
}

func (m *memoryStore) FindJob(ctx context.Context, jobID string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findErr != nil {
		return nil, m.findErr
	}
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, database.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memoryStore) UpsertJobStatus(ctx context.Context, jobID string, u model.JobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if ok && job.Status.IsTerminal() {
		return database.ErrJobTerminal
	}
	if !ok {
		job = &model.Job{JobID: jobID, CreatedAt: time.Now()}
		m.jobs[jobID] = job
	}
	if u.Status != nil {
		job.Status = *u.Status
	}
	if u.FileName != nil {
		job.FileName = *u.FileName
	}
	if u.TotalRecords != nil {
		job.TotalRecords = *u.TotalRecords
	}
	if u.SuccessCount != nil {
		job.SuccessCount = *u.SuccessCount
	}
	if u.FailureCount != nil {
		job.FailureCount = *u.FailureCount
	}
	if u.Progress != nil {
		job.Progress = *u.Progress
	}
	if u.ErrorMessage != nil {
		job.ErrorMessage = *u.ErrorMessage
	}
	if u.StartedAt != nil {
		job.StartedAt = u.StartedAt
	}
	if u.CompletedAt != nil {
		job.CompletedAt = u.CompletedAt
	}
	if u.FailedAt != nil {
		job.FailedAt = u.FailedAt
	}
	return nil
}

func (m *memoryStore) AdjustJobCounts(ctx context.Context, jobID string, successDelta, failureDelta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return database.ErrJobNotFound
	}
	job.SuccessCount += successDelta
	job.FailureCount += failureDelta
	return nil
}

func (m *memoryStore) GetFailedRecords(ctx context.Context, jobID string) (*model.FailedJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	agg, ok := m.failed[jobID]
	if !ok {
		return nil, database.ErrFailedJobNotFound
	}
	cp := *agg
	cp.FailedRecords = append([]model.FailedRecordEntry(nil), agg.FailedRecords...)
	return &cp, nil
}

func (m *memoryStore) ReplaceFailedRecords(ctx context.Context, jobID string, version int64, entries []model.FailedRecordEntry) error {
	if hook := m.beforeReplace; hook != nil {
		m.beforeReplace = nil
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	agg, ok := m.failed[jobID]
	if !ok {
		return database.ErrFailedJobNotFound
	}
	if agg.Version != version {
		return database.ErrFailedJobConflict
	}
	agg.FailedRecords = entries
	agg.Version++
	return nil
}

func (m *memoryStore) AppendRetryLog(ctx context.Context, jobID string, entry model.RetryLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	agg, ok := m.failed[jobID]
	if !ok {
		return database.ErrFailedJobNotFound
	}
	agg.RetryLogs = append(agg.RetryLogs, entry)
	return nil
}

func (m *memoryStore) InsertRetryHistory(ctx context.Context, history *model.RetryHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.histories = append(m.histories, *history)
	return nil
}

func (m *memoryStore) reject(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejects[name] = err
}

func (m *memoryStore) allow(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rejects, name)
}

type sentEvent struct {
	channel string
	event   string
	payload any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (r *recordingNotifier) Notify(channelID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sentEvent{channelID, event, payload})
}

func (r *recordingNotifier) progress() []model.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.ProgressEvent
	for _, e := range r.events {
		if ev, ok := e.payload.(model.ProgressEvent); ok {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recordingNotifier) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.event
	}
	return out
}
