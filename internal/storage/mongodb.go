package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/cloudetl/pipeline-runner/internal/config"
	"github.com/cloudetl/pipeline-runner/internal/models"
)

const mongoDatabase = "pipeline"

// MongoDBStorage implements Storage using MongoDB. The configured table
// name is used as the collection name.
type MongoDBStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoDBStorage creates a new MongoDB storage instance.
func NewMongoDBStorage(cfg config.Storage) (*MongoDBStorage, error) {
	if cfg.MongoDBURI == "" {
		return nil, fmt.Errorf("MONGODB_URI is required for mongodb storage")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDBURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	return &MongoDBStorage{
		client:     client,
		collection: client.Database(mongoDatabase).Collection(cfg.TableName),
	}, nil
}

// HealthCheck pings the primary to verify the cluster is reachable.
func (m *MongoDBStorage) HealthCheck(ctx context.Context) error {
	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return nil
}

// WriteBatch upserts one chunk of records in a single bulk write, keyed by
// (id, timestamp) for idempotent overwrite.
func (m *MongoDBStorage) WriteBatch(ctx context.Context, records []models.NormalizedRecord) error {
	writes := make([]mongo.WriteModel, 0, len(records))
	for _, record := range records {
		filter := bson.D{{Key: "id", Value: record.ID}, {Key: "timestamp", Value: record.Timestamp}}
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(filter).
			SetReplacement(record).
			SetUpsert(true))
	}

	if _, err := m.collection.BulkWrite(ctx, writes); err != nil {
		return fmt.Errorf("failed to bulk write records: %w", err)
	}
	return nil
}

// GetRecords retrieves stored records with pagination.
func (m *MongoDBStorage) GetRecords(ctx context.Context, limit int, offset int) ([]models.NormalizedRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "id", Value: 1}, {Key: "timestamp", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := m.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []models.NormalizedRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	return records, nil
}

// GetRecordByID returns the most recently processed record for an id.
func (m *MongoDBStorage) GetRecordByID(ctx context.Context, id string) (*models.NormalizedRecord, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})

	var record models.NormalizedRecord
	err := m.collection.FindOne(ctx, bson.D{{Key: "id", Value: id}}, opts).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find record %s: %w", id, err)
	}
	return &record, nil
}

// Close disconnects from MongoDB.
func (m *MongoDBStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
