package responselog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// mongoNamespaceExists is the server error code for an existing collection.
const mongoNamespaceExists = 48

// MongoDBSink implements Sink for MongoDB.
// Each measurement is a time-series collection with the tags as its metaField.
type MongoDBSink struct {
	database *mongo.Database
}

// NewMongoDBSink creates a MongoDB sink for measurement.
// The collection is created as a time-series collection if it doesn't exist.
// Retention is handled by the server through expireAfterSeconds.
func NewMongoDBSink(ctx context.Context, database *mongo.Database, measurement string, retentionDays int) (*MongoDBSink, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}
	if measurement == "" {
		measurement = DefaultMeasurement
	}

	create := bson.D{
		{Key: "create", Value: measurement},
		{Key: "timeseries", Value: bson.D{
			{Key: "timeField", Value: "timestamp"},
			{Key: "metaField", Value: "tags"},
			{Key: "granularity", Value: "seconds"},
		}},
	}
	if retentionDays > 0 {
		create = append(create, bson.E{Key: "expireAfterSeconds", Value: int64(retentionDays) * 24 * 60 * 60})
	}

	if err := database.RunCommand(ctx, create).Err(); err != nil {
		var cmdErr mongo.CommandError
		if !errors.As(err, &cmdErr) || cmdErr.Code != mongoNamespaceExists {
			return nil, fmt.Errorf("failed to create %s collection: %w", measurement, err)
		}
	}

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "tags.path", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "status_code", Value: 1}}},
	}
	if _, err := database.Collection(measurement).Indexes().CreateMany(ctx, indexes); err != nil {
		slog.Warn("failed to create some MongoDB indexes", "error", err)
	}

	return &MongoDBSink{database: database}, nil
}

// Commit inserts the record as one measurement document.
func (s *MongoDBSink) Commit(ctx context.Context, schema *Schema, record *Record) error {
	tags, fields, ts := schema.Point(record)

	meta := make(bson.D, 0, len(schema.Tags))
	for _, name := range schema.Tags {
		meta = append(meta, bson.E{Key: name, Value: tags[name]})
	}

	doc := make(bson.D, 0, len(schema.Fields)+2)
	doc = append(doc, bson.E{Key: "timestamp", Value: ts}, bson.E{Key: "tags", Value: meta})
	for _, name := range schema.Fields {
		if v, ok := fields[name]; ok {
			doc = append(doc, bson.E{Key: name, Value: v})
		}
	}

	if _, err := s.database.Collection(schema.Measurement).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert %s document: %w", schema.Measurement, err)
	}
	return nil
}

// Close is a no-op; the client is managed by the storage layer.
func (s *MongoDBSink) Close() error {
	return nil
}
