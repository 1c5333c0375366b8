package controller

import (
	"context"
	"errors"
	"io"
	"sync"

	"bulkload/internal/database"
	"bulkload/internal/model"

	amqp "github.com/rabbitmq/amqp091-go"
)

type fakeDB struct {
	mu      sync.Mutex
	jobs    map[string]*model.Job
	failed  map[string]*model.FailedJob
	updates []model.JobUpdate
	stores  int64
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		jobs:   make(map[string]*model.Job),
		failed: make(map[string]*model.FailedJob),
	}
}

func (f *fakeDB) Health() error                   { return nil }
func (f *fakeDB) Close(ctx context.Context) error { return nil }

func (f *fakeDB) CreateJob(ctx context.Context, job *model.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *job
	f.jobs[job.JobID] = &cp
	return nil
}

func (f *fakeDB) FindJob(ctx context.Context, jobID string) (*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, database.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (f *fakeDB) UpsertJobStatus(ctx context.Context, jobID string, update model.JobUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, update)
	job, ok := f.jobs[jobID]
	if !ok {
		job = &model.Job{JobID: jobID}
		f.jobs[jobID] = job
	}
	if job.Status.IsTerminal() {
		return database.ErrJobTerminal
	}
	if update.Status != nil {
		job.Status = *update.Status
	}
	if update.ErrorMessage != nil {
		job.ErrorMessage = *update.ErrorMessage
	}
	return nil
}

func (f *fakeDB) AdjustJobCounts(ctx context.Context, jobID string, successDelta, failureDelta int) error {
	return nil
}

func (f *fakeDB) ListJobs(ctx context.Context, filter model.JobFilter) ([]*model.Job, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Job
	for _, j := range f.jobs {
		out = append(out, j)
	}
	return out, int64(len(out)), nil
}

func (f *fakeDB) CountJobs(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.jobs)), nil
}

func (f *fakeDB) BulkInsert(ctx context.Context, records []model.StoreRecord) (int, error) {
	return len(records), nil
}

func (f *fakeDB) InsertOne(ctx context.Context, record model.StoreRecord) error { return nil }

func (f *fakeDB) ListStores(ctx context.Context, filter model.StoreFilter) ([]model.StoreRecord, int64, error) {
	return []model.StoreRecord{}, f.stores, nil
}

func (f *fakeDB) CountStores(ctx context.Context) (int64, error) { return f.stores, nil }

func (f *fakeDB) AppendFailedRecords(ctx context.Context, jobID string, columns []string, entries []model.FailedRecordEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	agg, ok := f.failed[jobID]
	if !ok {
		agg = &model.FailedJob{JobID: jobID, Columns: columns}
		f.failed[jobID] = agg
	}
	agg.FailedRecords = append(agg.FailedRecords, entries...)
	return nil
}

func (f *fakeDB) GetFailedRecords(ctx context.Context, jobID string) (*model.FailedJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	agg, ok := f.failed[jobID]
	if !ok {
		return nil, database.ErrFailedJobNotFound
	}
	cp := *agg
	return &cp, nil
}

func (f *fakeDB) ReplaceFailedRecords(ctx context.Context, jobID string, version int64, entries []model.FailedRecordEntry) error {
	return nil
}

func (f *fakeDB) AppendRetryLog(ctx context.Context, jobID string, entry model.RetryLog) error {
	return nil
}

func (f *fakeDB) InsertRetryHistory(ctx context.Context, history *model.RetryHistory) error {
	return nil
}

func (f *fakeDB) FailedJobStats(ctx context.Context) (*model.FailedJobStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &model.FailedJobStats{FailedJobs: int64(len(f.failed))}
	for _, agg := range f.failed {
		stats.TotalFailedRecords += int64(len(agg.FailedRecords))
	}
	return stats, nil
}

type published struct {
	exchange   string
	routingKey string
	body       []byte
	headers    amqp.Table
}

type fakeRabbit struct {
	mu         sync.Mutex
	published  []published
	publishErr error
}

func (r *fakeRabbit) Close() error                                       { return nil }
func (r *fakeRabbit) DeclareExchange(name, kind string) error            { return nil }
func (r *fakeRabbit) DeclareQueue(name string) (amqp.Queue, error)       { return amqp.Queue{Name: name}, nil }
func (r *fakeRabbit) BindQueue(queueName, exchangeName, key string) error { return nil }
func (r *fakeRabbit) Health() error                                      { return nil }

func (r *fakeRabbit) Publish(ctx context.Context, exchange, routingKey string, body []byte, headers amqp.Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.publishErr != nil {
		return r.publishErr
	}
	r.published = append(r.published, published{exchange, routingKey, body, headers})
	return nil
}

func (r *fakeRabbit) Consume(queueName string, consumerTag string) (<-chan amqp.Delivery, error) {
	return nil, errors.New("not supported")
}

// ackRecorder captures the acknowledgement of a delivery
type ackRecorder struct {
	acked    bool
	nacked   bool
	requeued bool
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error {
	a.acked = true
	return nil
}

func (a *ackRecorder) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked = true
	a.requeued = requeue
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type stubWorker struct {
	jobType string
	err     error
	tasks   []model.Task
}

func (s *stubWorker) HandleTask(ctx context.Context, task model.Task) error {
	s.tasks = append(s.tasks, task)
	return s.err
}
func (s *stubWorker) Name() string        { return "Stub " + s.jobType }
func (s *stubWorker) Description() string { return "" }
func (s *stubWorker) Type() string        { return s.jobType }
func (s *stubWorker) ActiveTasks() int    { return 0 }

type stubRetrier struct {
	result *model.RetryResult
	calls  int
}

func (s *stubRetrier) RetryFailed(ctx context.Context, jobID, retriedBy string) (*model.RetryResult, error) {
	s.calls++
	return s.result, nil
}

type stubFiles struct {
	key  string
	body string
}

func (s *stubFiles) UploadFile(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.key, s.body = key, string(b)
	return "https://bucket.s3.us-east-1.amazonaws.com/" + key, nil
}

func (s *stubFiles) TestConnection(ctx context.Context) error { return nil }
