package database

import (
	"context"
	"time"

	"bulkload/internal/config"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Database interface {
	Health() error
	Close(ctx context.Context) error
	JobDatabase
	StoreDatabase
	FailedJobDatabase
}

type mongoDB struct {
	client *mongo.Client
	db     *mongo.Database

	storesCol       *mongo.Collection
	jobsCol         *mongo.Collection
	failedJobsCol   *mongo.Collection
	retryHistoryCol *mongo.Collection
}

func New(config *config.Config) (Database, error) {
	clientOptions := options.Client().ApplyURI(config.MongoDB.URI)
	if config.MongoDB.Username != "" {
		clientOptions.SetAuth(options.Credential{
			Username: config.MongoDB.Username,
			Password: config.MongoDB.Password,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	db := client.Database(config.MongoDB.DB)

	m := &mongoDB{
		client:          client,
		db:              db,
		storesCol:       db.Collection("stores"),
		jobsCol:         db.Collection("jobs"),
		failedJobsCol:   db.Collection("failed_jobs"),
		retryHistoryCol: db.Collection("retry_history"),
	}

	m.createIndexes(ctx)

	return m, nil
}

func (m *mongoDB) createIndexes(ctx context.Context) {
	storeIndexModels := []mongo.IndexModel{
		{
			// Identity of a store; duplicate writes are treated as already present
			Keys:    bson.D{{Key: "store_name", Value: 1}, {Key: "store_address", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "job_id", Value: 1}},
		},
	}

	jobIndexModels := []mongo.IndexModel{
		{
			// Status transitions upsert by job_id
			Keys:    bson.D{{Key: "job_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
		{
			// Index for sorting by creation date
			Keys: bson.D{{Key: "created_at", Value: -1}},
		},
	}

	failedJobIndexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "job_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	retryIndexModels := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "job_id", Value: 1}, {Key: "retried_at", Value: -1}},
		},
	}

	indexes := map[string]struct {
		col    *mongo.Collection
		models []mongo.IndexModel
	}{
		"Stores":       {m.storesCol, storeIndexModels},
		"Jobs":         {m.jobsCol, jobIndexModels},
		"FailedJobs":   {m.failedJobsCol, failedJobIndexModels},
		"RetryHistory": {m.retryHistoryCol, retryIndexModels},
	}

	for name, idx := range indexes {
		if _, err := idx.col.Indexes().CreateMany(ctx, idx.models); err != nil {
			log.Warn().Err(err).Str("Collection", name).Msg("Error creating indexes")
		}
	}
}

// Health implements Database interface
func (m *mongoDB) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	err := m.client.Ping(ctx, nil)

	if err != nil {
		log.Error().Msgf("Database health error: %v", err)
		return err
	}

	return nil
}

func (m *mongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
