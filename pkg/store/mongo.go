package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"dossiersync/pkg/config"
	errs "dossiersync/pkg/errors"
	"dossiersync/pkg/logger"
	"dossiersync/pkg/provider"
	"dossiersync/pkg/retry"
)

// UpsertResult summarizes one page's worth of writes
type UpsertResult struct {
	Inserted int
	Updated  int
	Skipped  int
	Errors   int
}

// Mongo is the document store for dossier records, keyed by the record's
// ID field.
type Mongo struct {
	client       *mongo.Client
	collection   *mongo.Collection
	opTimeout    time.Duration
	writeRetries int
	logger       logger.Logger
}

// Connect establishes the MongoDB connection and verifies it with a ping
func Connect(ctx context.Context, cfg *config.MongoConfig, log logger.Logger) (*Mongo, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "failed to connect to mongodb")
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.OpTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "mongodb ping failed")
	}

	m := &Mongo{
		client:       client,
		collection:   client.Database(cfg.Database).Collection(cfg.Collection),
		opTimeout:    cfg.OpTimeout,
		writeRetries: cfg.WriteRetries,
		logger:       log,
	}

	log.InfoWithFields("connected to mongodb", map[string]interface{}{
		"database":   cfg.Database,
		"collection": cfg.Collection,
	})
	return m, nil
}

// EnsureIndexes creates the indexes upserts and duplicate cleanup rely on
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "ID", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "updated_at", Value: 1}}},
	}

	if _, err := m.collection.Indexes().CreateMany(opCtx, indexes); err != nil {
		return errs.Wrap(errs.ErrorTypeUnknown, err, "failed to create indexes")
	}

	m.logger.Debug("mongodb indexes created or verified")
	return nil
}

// Collection exposes the underlying collection, mainly for tests and
// ad hoc inspection.
func (m *Mongo) Collection() *mongo.Collection {
	return m.collection
}

// BulkUpsert writes one page of records. Each record is upserted by its
// ID: new documents get a created_at stamp, existing ones keep created_at
// and get a fresh updated_at. Records missing an identifier are skipped.
// Individual write failures are retried a small fixed number of times,
// then logged and counted; a bad record never aborts the page.
func (m *Mongo) BulkUpsert(ctx context.Context, records []provider.Record) (UpsertResult, error) {
	var result UpsertResult
	if len(records) == 0 {
		return result, nil
	}

	now := time.Now().UTC()
	for _, record := range records {
		id, ok := record.ID()
		if !ok {
			m.logger.Warn("record missing ID field, skipping")
			result.Skipped++
			continue
		}

		inserted, err := m.upsertOne(ctx, id, record, now)
		if err != nil {
			m.logger.ErrorWithFields("record write failed after retries", map[string]interface{}{
				"record_id": id,
				"error":     err.Error(),
			})
			result.Errors++
			continue
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	m.logger.DebugWithFields("bulk upsert completed", map[string]interface{}{
		"inserted": result.Inserted,
		"updated":  result.Updated,
		"skipped":  result.Skipped,
		"errors":   result.Errors,
	})
	return result, nil
}

// upsertOne writes a single record with bounded retries
func (m *Mongo) upsertOne(ctx context.Context, id interface{}, record provider.Record, now time.Time) (bool, error) {
	// created_at is owned by $setOnInsert; everything else, plus the
	// refreshed updated_at, goes through $set.
	payload := make(bson.M, len(record)+1)
	for k, v := range record {
		if k == "created_at" {
			continue
		}
		payload[k] = v
	}
	payload["updated_at"] = now

	update := bson.M{
		"$set":         payload,
		"$setOnInsert": bson.M{"created_at": now},
	}

	cfg := &retry.Config{
		MaxAttempts: m.writeRetries + 1,
		Backoff:     &retry.ConstantBackoff{Delay: 100 * time.Millisecond},
		RetryIf:     retry.DefaultRetryIf,
		Logger:      m.logger,
	}

	var inserted bool
	err := retry.Do(ctx, func() error {
		opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
		defer cancel()

		res, err := m.collection.UpdateOne(opCtx,
			bson.M{"ID": id}, update, options.Update().SetUpsert(true))
		if err != nil {
			return errs.Wrap(errs.ErrorTypeRecordWrite, err, "upsert failed")
		}
		inserted = res.UpsertedCount > 0
		return nil
	}, cfg)

	return inserted, err
}

// Count returns the number of documents in the collection
func (m *Mongo) Count(ctx context.Context) (int64, error) {
	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	count, err := m.collection.CountDocuments(opCtx, bson.M{})
	if err != nil {
		return 0, errs.Wrap(errs.ErrorTypeUnknown, err, "failed to count documents")
	}
	return count, nil
}

// CleanupDuplicates removes documents sharing an ID, keeping the first of
// each group, and returns the number removed.
func (m *Mongo) CleanupDuplicates(ctx context.Context) (int, error) {
	opCtx, cancel := context.WithTimeout(ctx, 10*m.opTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$ID"},
			{Key: "docs", Value: bson.D{{Key: "$push", Value: "$_id"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$match", Value: bson.D{
			{Key: "count", Value: bson.D{{Key: "$gt", Value: 1}}},
		}}},
	}

	cursor, err := m.collection.Aggregate(opCtx, pipeline)
	if err != nil {
		return 0, errs.Wrap(errs.ErrorTypeUnknown, err, "duplicate scan failed")
	}
	defer cursor.Close(opCtx)

	removed := 0
	for cursor.Next(opCtx) {
		var group struct {
			Docs []interface{} `bson:"docs"`
		}
		if err := cursor.Decode(&group); err != nil {
			return removed, errs.Wrap(errs.ErrorTypeParsing, err, "failed to decode duplicate group")
		}
		if len(group.Docs) < 2 {
			continue
		}

		// Keep the first document, delete the rest
		res, err := m.collection.DeleteMany(opCtx,
			bson.M{"_id": bson.M{"$in": group.Docs[1:]}})
		if err != nil {
			return removed, errs.Wrap(errs.ErrorTypeRecordWrite, err, "failed to delete duplicates")
		}
		removed += int(res.DeletedCount)
	}
	if err := cursor.Err(); err != nil {
		return removed, errs.Wrap(errs.ErrorTypeUnknown, err, "duplicate scan failed")
	}

	m.logger.InfoWithFields("duplicate cleanup completed", map[string]interface{}{
		"removed": removed,
	})
	return removed, nil
}

// Ping verifies the connection is alive
func (m *Mongo) Ping(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()
	return m.client.Ping(opCtx, nil)
}

// Close disconnects from MongoDB
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
