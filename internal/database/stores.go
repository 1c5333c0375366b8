package database

import (
	"context"
	"regexp"

	"bulkload/internal/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// StoreDatabase defines store record operations
type StoreDatabase interface {
	// Unordered insert of a whole batch. A non-nil error means some records
	// may not have been written; the count covers those that were.
	BulkInsert(ctx context.Context, records []model.StoreRecord) (int, error)

	// Insert a single record. Uniqueness violations wrap ErrDuplicateKey.
	InsertOne(ctx context.Context, record model.StoreRecord) error

	ListStores(ctx context.Context, filter model.StoreFilter) ([]model.StoreRecord, int64, error)
	CountStores(ctx context.Context) (int64, error)
}

// BulkInsert writes records with a single unordered InsertMany
func (m *mongoDB) BulkInsert(ctx context.Context, records []model.StoreRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	docs := make([]interface{}, len(records))
	for i := range records {
		docs[i] = records[i]
	}

	result, err := m.storesCol.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	inserted := 0
	if result != nil {
		inserted = len(result.InsertedIDs)
	}
	if err != nil {
		log.Debug().Err(err).Int("batchSize", len(records)).Int("inserted", inserted).Msg("Bulk insert failed")
		return inserted, err
	}

	return inserted, nil
}

// InsertOne writes one store record
func (m *mongoDB) InsertOne(ctx context.Context, record model.StoreRecord) error {
	_, err := m.storesCol.InsertOne(ctx, record)
	return wrapDuplicate(err)
}

// ListStores retrieves store records, searching name, city, region, retailer and type
func (m *mongoDB) ListStores(ctx context.Context, filter model.StoreFilter) ([]model.StoreRecord, int64, error) {
	query := bson.M{}
	if filter.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"store_name": pattern},
			bson.M{"city_name": pattern},
			bson.M{"region_name": pattern},
			bson.M{"retailer_name": pattern},
			bson.M{"store_type": pattern},
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "uploaded_at", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Limit > 0 {
		page := max(filter.Page, 1)
		opts.SetLimit(int64(filter.Limit)).SetSkip(int64((page - 1) * filter.Limit))
	}

	cursor, err := m.storesCol.Find(ctx, query, opts)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list stores")
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	stores := []model.StoreRecord{}
	if err := cursor.All(ctx, &stores); err != nil {
		log.Error().Err(err).Msg("Failed to decode stores")
		return nil, 0, err
	}

	total, err := m.storesCol.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	return stores, total, nil
}

func (m *mongoDB) CountStores(ctx context.Context) (int64, error) {
	return m.storesCol.EstimatedDocumentCount(ctx)
}
