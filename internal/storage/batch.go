package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudetl/pipeline-runner/internal/models"
)

// MaxBatchSize is the largest chunk handed to a backend in one write,
// matching DynamoDB's BatchWriteItem limit.
const MaxBatchSize = 25

// BatchWriter persists records through a Storage backend in bounded-size
// chunks. Either every record is written and the full count is returned,
// or an error is returned; partial counts are never surfaced.
type BatchWriter struct {
	store  Storage
	logger *slog.Logger
}

// NewBatchWriter creates a BatchWriter over the given backend.
func NewBatchWriter(store Storage, logger *slog.Logger) *BatchWriter {
	return &BatchWriter{store: store, logger: logger}
}

// Store writes the records in chunks of MaxBatchSize and returns how many
// were durably written.
func (b *BatchWriter) Store(ctx context.Context, records []models.NormalizedRecord) (int, error) {
	chunks := chunkRecords(records, MaxBatchSize)

	for i, chunk := range chunks {
		if err := b.store.WriteBatch(ctx, chunk); err != nil {
			return 0, fmt.Errorf("failed to write chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}

	b.logger.Info("stored records", "step", "store", "count", len(records), "chunks", len(chunks))
	return len(records), nil
}

// chunkRecords splits records into slices of at most size records each.
func chunkRecords(records []models.NormalizedRecord, size int) [][]models.NormalizedRecord {
	var chunks [][]models.NormalizedRecord
	for len(records) > size {
		chunks = append(chunks, records[:size])
		records = records[size:]
	}
	if len(records) > 0 {
		chunks = append(chunks, records)
	}
	return chunks
}
