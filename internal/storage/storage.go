package storage

import (
	"context"
	"fmt"

	"github.com/cloudetl/pipeline-runner/internal/config"
	"github.com/cloudetl/pipeline-runner/internal/models"
)

// Storage is the contract for a persistence backend. WriteBatch is handed
// at most MaxBatchSize records at a time by the BatchWriter; the backend
// owns any internal retry of partially rejected writes.
type Storage interface {
	// HealthCheck verifies the target table/collection is reachable and in
	// an available state.
	HealthCheck(ctx context.Context) error
	// WriteBatch durably writes one chunk of records, all-or-nothing.
	WriteBatch(ctx context.Context, records []models.NormalizedRecord) error
	// GetRecords reads back stored records with pagination.
	GetRecords(ctx context.Context, limit int, offset int) ([]models.NormalizedRecord, error)
	// GetRecordByID returns the most recently processed record for an id,
	// or nil when none exists.
	GetRecordByID(ctx context.Context, id string) (*models.NormalizedRecord, error)
	Close() error
}

// NewStorage creates a storage instance based on configuration.
func NewStorage(cfg config.Storage) (Storage, error) {
	switch cfg.Type {
	case "dynamodb":
		return NewDynamoDBStorage(cfg)
	case "mongodb":
		return NewMongoDBStorage(cfg)
	case "postgresql":
		return NewPostgreSQLStorage(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
