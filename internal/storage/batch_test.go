package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cloudetl/pipeline-runner/internal/models"
)

// fakeBackend records chunk sizes handed to WriteBatch.
type fakeBackend struct {
	chunkSizes []int
	writeErr   error
}

func (f *fakeBackend) HealthCheck(context.Context) error { return nil }

func (f *fakeBackend) WriteBatch(_ context.Context, records []models.NormalizedRecord) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.chunkSizes = append(f.chunkSizes, len(records))
	return nil
}

func (f *fakeBackend) GetRecords(context.Context, int, int) ([]models.NormalizedRecord, error) {
	return nil, nil
}

func (f *fakeBackend) GetRecordByID(context.Context, string) (*models.NormalizedRecord, error) {
	return nil, nil
}

func (f *fakeBackend) Close() error { return nil }

func makeRecords(n int) []models.NormalizedRecord {
	records := make([]models.NormalizedRecord, n)
	for i := range records {
		records[i] = models.NormalizedRecord{ID: fmt.Sprintf("%d", i)}
	}
	return records
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBatchWriter_Store_ChunksOf25(t *testing.T) {
	backend := &fakeBackend{}
	writer := NewBatchWriter(backend, discardLogger())

	stored, err := writer.Store(context.Background(), makeRecords(60))

	assert.NoError(t, err)
	assert.Equal(t, 60, stored)
	assert.Equal(t, []int{25, 25, 10}, backend.chunkSizes)
}

func TestBatchWriter_Store_SingleChunk(t *testing.T) {
	backend := &fakeBackend{}
	writer := NewBatchWriter(backend, discardLogger())

	stored, err := writer.Store(context.Background(), makeRecords(25))

	assert.NoError(t, err)
	assert.Equal(t, 25, stored)
	assert.Equal(t, []int{25}, backend.chunkSizes)
}

func TestBatchWriter_Store_Empty(t *testing.T) {
	backend := &fakeBackend{}
	writer := NewBatchWriter(backend, discardLogger())

	stored, err := writer.Store(context.Background(), nil)

	assert.NoError(t, err)
	assert.Equal(t, 0, stored)
	assert.Empty(t, backend.chunkSizes)
}

func TestBatchWriter_Store_BackendError(t *testing.T) {
	backend := &fakeBackend{writeErr: errors.New("write throttled")}
	writer := NewBatchWriter(backend, discardLogger())

	stored, err := writer.Store(context.Background(), makeRecords(30))

	assert.Error(t, err)
	assert.Equal(t, 0, stored)
	assert.Contains(t, err.Error(), "write throttled")
	assert.Contains(t, err.Error(), "chunk 1/2")
}

func TestChunkRecords(t *testing.T) {
	tests := []struct {
		n    int
		want []int
	}{
		{0, nil},
		{1, []int{1}},
		{24, []int{24}},
		{25, []int{25}},
		{26, []int{25, 1}},
		{100, []int{25, 25, 25, 25}},
	}

	for _, tt := range tests {
		chunks := chunkRecords(makeRecords(tt.n), MaxBatchSize)
		var sizes []int
		for _, c := range chunks {
			sizes = append(sizes, len(c))
		}
		assert.Equal(t, tt.want, sizes, "n=%d", tt.n)
	}
}
