package database

import (
	"context"
	"errors"
	"regexp"
	"time"

	"bulkload/internal/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// JobDatabase defines job-related database operations
type JobDatabase interface {
	// Create a new job
	CreateJob(ctx context.Context, job *model.Job) error

	// Find a job by its external job id
	FindJob(ctx context.Context, jobID string) (*model.Job, error)

	// Apply a status transition, creating the job if absent.
	// Returns ErrJobTerminal when the job already completed or failed.
	UpsertJobStatus(ctx context.Context, jobID string, update model.JobUpdate) error

	// Shift counts between success and failure after a retry pass
	AdjustJobCounts(ctx context.Context, jobID string, successDelta, failureDelta int) error

	// List jobs newest first, with the total matching the filter
	ListJobs(ctx context.Context, filter model.JobFilter) ([]*model.Job, int64, error)

	// Count all jobs
	CountJobs(ctx context.Context) (int64, error)
}

// CreateJob creates a new job in the database
func (m *mongoDB) CreateJob(ctx context.Context, job *model.Job) error {
	if job.ID.IsZero() {
		job.ID = primitive.NewObjectID()
	}

	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	if job.Status == "" {
		job.Status = model.StatusQueued
	}

	_, err := m.jobsCol.InsertOne(ctx, job)
	if err != nil {
		log.Error().Err(err).Str("jobId", job.JobID).Msg("Failed to create job")
		return wrapDuplicate(err)
	}

	log.Debug().Str("jobId", job.JobID).Str("fileName", job.FileName).Msg("Created new job")
	return nil
}

// FindJob retrieves a job by its job id
func (m *mongoDB) FindJob(ctx context.Context, jobID string) (*model.Job, error) {
	var job model.Job
	err := m.jobsCol.FindOne(ctx, bson.M{"job_id": jobID}).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrJobNotFound
		}
		log.Error().Err(err).Str("jobId", jobID).Msg("Failed to get job")
		return nil, err
	}

	return &job, nil
}

// UpsertJobStatus applies update to a non-terminal job. Because a redelivered
// task may run the pipeline twice, transitions never blind-insert: the filter
// excludes terminal jobs and the unique job_id index turns the would-be
// insert into a duplicate key error.
func (m *mongoDB) UpsertJobStatus(ctx context.Context, jobID string, update model.JobUpdate) error {
	now := time.Now()
	set := jobUpdateFields(update)
	set["updated_at"] = now

	filter := bson.M{
		"job_id": jobID,
		"status": bson.M{"$nin": bson.A{model.StatusCompleted, model.StatusFailed}},
	}
	doc := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"created_at": now},
	}

	_, err := m.jobsCol.UpdateOne(ctx, filter, doc, options.Update().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrJobTerminal
		}
		log.Error().Err(err).Str("jobId", jobID).Msg("Failed to update job status")
		return err
	}

	if update.Status != nil {
		log.Debug().Str("jobId", jobID).Str("status", string(*update.Status)).Msg("Updated job status")
	}
	return nil
}

func jobUpdateFields(u model.JobUpdate) bson.M {
	set := bson.M{}
	if u.Status != nil {
		set["status"] = *u.Status
	}
	if u.FileName != nil {
		set["file_name"] = *u.FileName
	}
	if u.TotalRecords != nil {
		set["total_records"] = *u.TotalRecords
	}
	if u.SuccessCount != nil {
		set["success_count"] = *u.SuccessCount
	}
	if u.FailureCount != nil {
		set["failure_count"] = *u.FailureCount
	}
	if u.Progress != nil {
		set["progress"] = *u.Progress
	}
	if u.ErrorMessage != nil {
		set["error_message"] = *u.ErrorMessage
	}
	if u.StartedAt != nil {
		set["started_at"] = *u.StartedAt
	}
	if u.CompletedAt != nil {
		set["completed_at"] = *u.CompletedAt
	}
	if u.FailedAt != nil {
		set["failed_at"] = *u.FailedAt
	}
	return set
}

// AdjustJobCounts increments the success and failure counters of a job
func (m *mongoDB) AdjustJobCounts(ctx context.Context, jobID string, successDelta, failureDelta int) error {
	update := bson.M{
		"$inc": bson.M{
			"success_count": successDelta,
			"failure_count": failureDelta,
		},
		"$set": bson.M{"updated_at": time.Now()},
	}

	result, err := m.jobsCol.UpdateOne(ctx, bson.M{"job_id": jobID}, update)
	if err != nil {
		log.Error().Err(err).Str("jobId", jobID).Msg("Failed to adjust job counts")
		return err
	}
	if result.MatchedCount == 0 {
		return ErrJobNotFound
	}

	return nil
}

// ListJobs retrieves jobs matching the filter, newest first
func (m *mongoDB) ListJobs(ctx context.Context, filter model.JobFilter) ([]*model.Job, int64, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"file_name": pattern},
			bson.M{"job_id": pattern},
			bson.M{"status": pattern},
		}
	}

	opts := options.Find().SetSort(bson.M{"created_at": -1})
	if filter.Limit > 0 {
		page := max(filter.Page, 1)
		opts.SetLimit(int64(filter.Limit)).SetSkip(int64((page - 1) * filter.Limit))
	}

	cursor, err := m.jobsCol.Find(ctx, query, opts)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list jobs")
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	jobs := []*model.Job{}
	if err := cursor.All(ctx, &jobs); err != nil {
		log.Error().Err(err).Msg("Failed to decode jobs")
		return nil, 0, err
	}

	total, err := m.jobsCol.CountDocuments(ctx, query)
	if err != nil {
		log.Error().Err(err).Msg("Failed to count jobs")
		return nil, 0, err
	}

	return jobs, total, nil
}

// CountJobs counts every job
func (m *mongoDB) CountJobs(ctx context.Context) (int64, error) {
	return m.jobsCol.CountDocuments(ctx, bson.M{})
}
