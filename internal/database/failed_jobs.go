package database

import (
	"context"
	"errors"
	"time"

	"bulkload/internal/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FailedJobDatabase defines operations on the per-job failure aggregate
type FailedJobDatabase interface {
	// Append entries to the aggregate of jobID, creating it if absent. An entry
	// replaces any stored entry with the same row index.
	AppendFailedRecords(ctx context.Context, jobID string, columns []string, entries []model.FailedRecordEntry) error

	GetFailedRecords(ctx context.Context, jobID string) (*model.FailedJob, error)

	// Replace the failure list of an aggregate still at version. Returns
	// ErrFailedJobConflict when another writer got there first.
	ReplaceFailedRecords(ctx context.Context, jobID string, version int64, entries []model.FailedRecordEntry) error

	AppendRetryLog(ctx context.Context, jobID string, entry model.RetryLog) error

	InsertRetryHistory(ctx context.Context, history *model.RetryHistory) error

	FailedJobStats(ctx context.Context) (*model.FailedJobStats, error)
}

// AppendFailedRecords merges entries into the aggregate with a single
// pipeline upsert. Stored entries whose row index reappears are dropped first,
// so flushing the same rows twice leaves one copy of each.
func (m *mongoDB) AppendFailedRecords(ctx context.Context, jobID string, columns []string, entries []model.FailedRecordEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if columns == nil {
		columns = []string{}
	}

	update := mergeFailedRecords(columns, entries, time.Now())
	_, err := m.failedJobsCol.UpdateOne(ctx, bson.M{"job_id": jobID}, update, options.Update().SetUpsert(true))
	if err != nil {
		log.Error().Err(err).Str("jobId", jobID).Int("count", len(entries)).Msg("Failed to append failed records")
		return err
	}

	log.Debug().Str("jobId", jobID).Int("count", len(entries)).Msg("Appended failed records")
	return nil
}

// mergeFailedRecords builds the pipeline update used by AppendFailedRecords
func mergeFailedRecords(columns []string, entries []model.FailedRecordEntry, now time.Time) mongo.Pipeline {
	rows := make([]int, len(entries))
	for i, entry := range entries {
		rows[i] = entry.RowIndex
	}

	existingRecords := bson.M{"$ifNull": bson.A{"$failed_records", bson.A{}}}
	existingColumns := bson.M{"$ifNull": bson.A{"$columns", bson.A{}}}

	return mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"failed_records": bson.M{"$concatArrays": bson.A{
				bson.M{"$filter": bson.M{
					"input": existingRecords,
					"as":    "entry",
					"cond":  bson.M{"$not": bson.A{bson.M{"$in": bson.A{"$$entry.row_index", rows}}}},
				}},
				bson.M{"$literal": entries},
			}},
			// keep column order; only unseen columns are appended
			"columns": bson.M{"$concatArrays": bson.A{
				existingColumns,
				bson.M{"$filter": bson.M{
					"input": bson.M{"$literal": columns},
					"as":    "column",
					"cond":  bson.M{"$not": bson.A{bson.M{"$in": bson.A{"$$column", existingColumns}}}},
				}},
			}},
			"version":    bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$version", 0}}, 1}},
			"updated_at": now,
			"created_at": bson.M{"$ifNull": bson.A{"$created_at", now}},
			"retry_logs": bson.M{"$ifNull": bson.A{"$retry_logs", bson.A{}}},
		}}},
	}
}

// GetFailedRecords loads the failure aggregate of a job
func (m *mongoDB) GetFailedRecords(ctx context.Context, jobID string) (*model.FailedJob, error) {
	var failed model.FailedJob
	err := m.failedJobsCol.FindOne(ctx, bson.M{"job_id": jobID}).Decode(&failed)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrFailedJobNotFound
		}
		log.Error().Err(err).Str("jobId", jobID).Msg("Failed to get failed records")
		return nil, err
	}

	return &failed, nil
}

// ReplaceFailedRecords overwrites the failure list, keeping columns and retry
// logs. The write only applies while the aggregate is still at version.
func (m *mongoDB) ReplaceFailedRecords(ctx context.Context, jobID string, version int64, entries []model.FailedRecordEntry) error {
	if entries == nil {
		entries = []model.FailedRecordEntry{}
	}

	filter := bson.M{"job_id": jobID}
	if version == 0 {
		// aggregates written before versioning carry no field
		filter["version"] = bson.M{"$in": bson.A{0, nil}}
	} else {
		filter["version"] = version
	}

	update := bson.M{
		"$set": bson.M{
			"failed_records": entries,
			"updated_at":     time.Now(),
		},
		"$inc": bson.M{"version": 1},
	}

	result, err := m.failedJobsCol.UpdateOne(ctx, filter, update)
	if err != nil {
		log.Error().Err(err).Str("jobId", jobID).Msg("Failed to replace failed records")
		return err
	}
	if result.MatchedCount > 0 {
		return nil
	}

	count, err := m.failedJobsCol.CountDocuments(ctx, bson.M{"job_id": jobID})
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrFailedJobNotFound
	}
	return ErrFailedJobConflict
}

func (m *mongoDB) AppendRetryLog(ctx context.Context, jobID string, entry model.RetryLog) error {
	update := bson.M{
		"$push": bson.M{"retry_logs": entry},
		"$set":  bson.M{"updated_at": time.Now()},
	}

	result, err := m.failedJobsCol.UpdateOne(ctx, bson.M{"job_id": jobID}, update)
	if err != nil {
		log.Error().Err(err).Str("jobId", jobID).Msg("Failed to append retry log")
		return err
	}
	if result.MatchedCount == 0 {
		return ErrFailedJobNotFound
	}

	return nil
}

func (m *mongoDB) InsertRetryHistory(ctx context.Context, history *model.RetryHistory) error {
	if history.ID.IsZero() {
		history.ID = primitive.NewObjectID()
	}
	if history.RetriedAt.IsZero() {
		history.RetriedAt = time.Now()
	}

	if _, err := m.retryHistoryCol.InsertOne(ctx, history); err != nil {
		log.Error().Err(err).Str("jobId", history.JobID).Msg("Failed to insert retry history")
		return err
	}

	return nil
}

// FailedJobStats counts failure aggregates and the records they hold
func (m *mongoDB) FailedJobStats(ctx context.Context) (*model.FailedJobStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":         nil,
			"failed_jobs": bson.M{"$sum": 1},
			"total_failed_records": bson.M{
				"$sum": bson.M{"$size": bson.M{"$ifNull": bson.A{"$failed_records", bson.A{}}}},
			},
		}}},
	}

	cursor, err := m.failedJobsCol.Aggregate(ctx, pipeline)
	if err != nil {
		log.Error().Err(err).Msg("Failed to aggregate failed job stats")
		return nil, err
	}
	defer cursor.Close(ctx)

	var stats []model.FailedJobStats
	if err := cursor.All(ctx, &stats); err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return &model.FailedJobStats{}, nil
	}

	return &stats[0], nil
}
