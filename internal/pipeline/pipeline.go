// Package pipeline sequences one ETL invocation: health-check the store,
// fetch from the external source, validate and transform, write in
// batches, and report metrics. Each stage returns an explicit result; a
// fatal stage error short-circuits the rest of the run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudetl/pipeline-runner/internal/config"
	"github.com/cloudetl/pipeline-runner/internal/fetch"
	"github.com/cloudetl/pipeline-runner/internal/metrics"
	"github.com/cloudetl/pipeline-runner/internal/models"
	"github.com/cloudetl/pipeline-runner/internal/process"
	"github.com/cloudetl/pipeline-runner/internal/storage"
)

// Metric names emitted per run.
const (
	MetricProcessedRecords = "ProcessedRecords"
	MetricDurationMs       = "ExecutionDurationMs"
	MetricErrors           = "Errors"
)

// Pipeline orchestrates a single run.
type Pipeline struct {
	tableName string
	store     storage.Storage
	writer    *storage.BatchWriter
	fetcher   *fetch.Fetcher
	processor *process.Processor
	reporter  metrics.Reporter
	logger    *slog.Logger

	// now is swapped out in tests for deterministic durations.
	now func() time.Time
}

// New wires a Pipeline from configuration and collaborators.
func New(cfg *config.Config, store storage.Storage, reporter metrics.Reporter, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		tableName: cfg.Storage.TableName,
		store:     store,
		writer:    storage.NewBatchWriter(store, logger),
		fetcher:   fetch.New(cfg.Fetch, logger),
		processor: process.New(cfg.Fetch.SourceURL, logger),
		reporter:  reporter,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes the pipeline once and returns the run result. Failures are
// represented as data; Run never panics on a stage error.
func (p *Pipeline) Run(ctx context.Context) models.RunResult {
	start := p.now()
	p.logger.Info("pipeline invoked", "step", "start", "table", p.tableName)

	// 1. Health check
	if err := p.store.HealthCheck(ctx); err != nil {
		return p.fail(ctx, start, models.RunResult{},
			fmt.Sprintf("%s is not available", p.tableName), err)
	}
	p.logger.Info("store is healthy", "step", "health_check", "table", p.tableName)

	// 2. Fetch
	fetched, err := p.fetcher.Fetch(ctx)
	if err != nil {
		return p.fail(ctx, start, models.RunResult{Attempts: fetched.Attempts}, err.Error(), err)
	}

	// 3. Process
	outcome := p.processor.Process(fetched.Records)
	counts := models.RunResult{
		Fetched:  len(fetched.Records),
		Accepted: len(outcome.Accepted),
		Rejected: outcome.Rejected,
		Attempts: fetched.Attempts,
	}
	if len(outcome.Accepted) == 0 {
		return p.fail(ctx, start, counts, "no valid records after validation", nil)
	}

	// 4. Store
	stored, err := p.writer.Store(ctx, outcome.Accepted)
	if err != nil {
		return p.fail(ctx, start, counts, fmt.Sprintf("failed to store records: %v", err), err)
	}
	counts.Stored = stored

	// 5. Metrics
	durationMs := float64(p.now().Sub(start)) / float64(time.Millisecond)
	p.reporter.Emit(ctx, MetricProcessedRecords, float64(stored), metrics.UnitCount)
	p.reporter.Emit(ctx, MetricDurationMs, durationMs, metrics.UnitMilliseconds)
	p.reporter.Emit(ctx, MetricErrors, 0, metrics.UnitCount)

	p.logger.Info("pipeline completed",
		"step", "done", "stored", stored, "duration_ms", durationMs, "attempts", fetched.Attempts)

	counts.StatusCode = 200
	counts.Message = "OK"
	counts.DurationMs = durationMs
	return counts
}

// fail captures a fatal stage error as a failure result, emitting the
// Errors metric best-effort.
func (p *Pipeline) fail(ctx context.Context, start time.Time, counts models.RunResult, reason string, cause error) models.RunResult {
	durationMs := float64(p.now().Sub(start)) / float64(time.Millisecond)

	p.logger.Error("pipeline failed",
		"step", "fatal", "reason", reason, "duration_ms", durationMs, "error", causeString(cause))
	p.reporter.Emit(ctx, MetricErrors, 1, metrics.UnitCount)

	counts.StatusCode = 500
	counts.Message = "ERROR"
	counts.Error = reason
	counts.DurationMs = durationMs
	return counts
}

func causeString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
